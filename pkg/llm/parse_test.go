package llm

import (
	"testing"
)

func TestParseExtractionPayload(t *testing.T) {
	raw := `{
		"entities": [
			{"name": "Ada Lovelace", "type": "Person", "description": "Mathematician", "properties": {"occupation": "mathematician"}, "confidence": 0.9},
			{"name": "", "type": "Person"}
		],
		"relationships": [
			{"type": "WORKED_IN", "source": {"name": "Ada Lovelace"}, "target": {"name": "Mathematics"}, "description": "worked in the field"}
		]
	}`

	entities, relationships, err := ParseExtractionPayload(raw)
	if err != nil {
		t.Fatalf("ParseExtractionPayload() error = %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("got %d entities, want 1 (empty name dropped)", len(entities))
	}
	e := entities[0]
	if e.Name != "Ada Lovelace" || e.TypeName != "Person" {
		t.Errorf("entity = %+v", e)
	}
	if e.Confidence == nil || *e.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", e.Confidence)
	}
	if e.Properties["occupation"] != "mathematician" {
		t.Errorf("properties = %v", e.Properties)
	}

	if len(relationships) != 1 {
		t.Fatalf("got %d relationships, want 1", len(relationships))
	}
	r := relationships[0]
	if r.RelationshipType != "WORKED_IN" || r.Source.Name != "Ada Lovelace" || r.Target.Name != "Mathematics" {
		t.Errorf("relationship = %+v", r)
	}
}

func TestParseExtractionPayloadCodeFences(t *testing.T) {
	raw := "```json\n{\"entities\": [{\"name\": \"X\", \"type\": \"Thing\"}], \"relationships\": []}\n```"
	entities, _, err := ParseExtractionPayload(raw)
	if err != nil {
		t.Fatalf("ParseExtractionPayload() error = %v", err)
	}
	if len(entities) != 1 || entities[0].Name != "X" {
		t.Errorf("entities = %+v", entities)
	}
}

func TestParseExtractionPayloadEndpointShapes(t *testing.T) {
	raw := `{
		"entities": [],
		"relationships": [
			{"type": "A", "source": "Alpha", "target": {"id": "uuid-1"}},
			{"type": "B", "source_ref": "Bravo", "target_ref": "Charlie"},
			{"type": "C", "source": {}, "target": {"name": "Delta"}},
			{"source": {"name": "no type"}, "target": {"name": "x"}}
		]
	}`

	_, relationships, err := ParseExtractionPayload(raw)
	if err != nil {
		t.Fatalf("ParseExtractionPayload() error = %v", err)
	}
	if len(relationships) != 2 {
		t.Fatalf("got %d relationships, want 2 (empty endpoint and missing type dropped): %+v", len(relationships), relationships)
	}
	if relationships[0].Source.Name != "Alpha" || relationships[0].Target.ID != "uuid-1" {
		t.Errorf("string endpoint not parsed: %+v", relationships[0])
	}
	if relationships[1].Source.Name != "Bravo" || relationships[1].Target.Name != "Charlie" {
		t.Errorf("ref alias not parsed: %+v", relationships[1])
	}
}

func TestParseExtractionPayloadInvalid(t *testing.T) {
	if _, _, err := ParseExtractionPayload(""); err == nil {
		t.Error("expected error for empty input")
	}
	if _, _, err := ParseExtractionPayload("not json at all"); err == nil {
		t.Error("expected error for malformed input")
	}
}
