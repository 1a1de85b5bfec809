package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseExtractionPayload parses a model response into candidate entities and
// relationships. Markdown code fences are stripped, and relationship endpoints
// are accepted in several shapes the models actually produce: an object with
// name/id, a bare string name, or source_ref/target_ref aliases.
func ParseExtractionPayload(raw string) ([]CandidateEntity, []CandidateRelationship, error) {
	cleaned := stripCodeFences(raw)
	if cleaned == "" {
		return nil, nil, fmt.Errorf("empty response")
	}

	var payload struct {
		Entities      []CandidateEntity `json:"entities"`
		Relationships []json.RawMessage `json:"relationships"`
	}
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, nil, fmt.Errorf("parse response JSON: %w", err)
	}

	entities := make([]CandidateEntity, 0, len(payload.Entities))
	for _, e := range payload.Entities {
		if strings.TrimSpace(e.Name) == "" {
			continue
		}
		entities = append(entities, e)
	}

	relationships := make([]CandidateRelationship, 0, len(payload.Relationships))
	for _, raw := range payload.Relationships {
		rel, ok := parseRelationship(raw)
		if !ok {
			continue
		}
		relationships = append(relationships, rel)
	}

	return entities, relationships, nil
}

func parseRelationship(raw json.RawMessage) (CandidateRelationship, bool) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return CandidateRelationship{}, false
	}

	rel := CandidateRelationship{}

	if typRaw, ok := firstField(m, "type", "relationship_type"); ok {
		_ = json.Unmarshal(typRaw, &rel.RelationshipType)
	}
	if rel.RelationshipType == "" {
		return CandidateRelationship{}, false
	}

	if srcRaw, ok := firstField(m, "source", "source_ref", "from"); ok {
		rel.Source = parseEndpoint(srcRaw)
	}
	if tgtRaw, ok := firstField(m, "target", "target_ref", "to"); ok {
		rel.Target = parseEndpoint(tgtRaw)
	}
	if rel.Source == (RelationshipEndpoint{}) || rel.Target == (RelationshipEndpoint{}) {
		return CandidateRelationship{}, false
	}

	if descRaw, ok := m["description"]; ok {
		_ = json.Unmarshal(descRaw, &rel.Description)
	}
	if confRaw, ok := m["confidence"]; ok {
		_ = json.Unmarshal(confRaw, &rel.Confidence)
	}
	if vsRaw, ok := m["verification_status"]; ok {
		_ = json.Unmarshal(vsRaw, &rel.VerificationStatus)
	}

	return rel, true
}

// parseEndpoint accepts {"name": ..., "id": ...} objects or a bare string,
// which is treated as a name.
func parseEndpoint(raw json.RawMessage) RelationshipEndpoint {
	var ep RelationshipEndpoint
	if err := json.Unmarshal(raw, &ep); err == nil && (ep.Name != "" || ep.ID != "") {
		return ep
	}

	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return RelationshipEndpoint{Name: strings.TrimSpace(name)}
	}

	return RelationshipEndpoint{}
}

func firstField(m map[string]json.RawMessage, keys ...string) (json.RawMessage, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
