package templatepacks

import (
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/emergent-company/emergent.strategy-sub002/internal/config"
)

func testService() *Service {
	return &Service{
		cfg: &config.Config{},
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func packAssignment(name string, objectSchemas, relationshipSchemas JSON, customizations *TemplatePackCustomizations) ProjectTemplatePack {
	return ProjectTemplatePack{
		Active:         true,
		Customizations: customizations,
		TemplatePack: &GraphTemplatePack{
			Name:                    name,
			Version:                 "1.0.0",
			ObjectTypeSchemas:       objectSchemas,
			RelationshipTypeSchemas: relationshipSchemas,
		},
	}
}

func TestMergeLaterPackOverrides(t *testing.T) {
	first := packAssignment("base-pack", JSON{
		"Person": map[string]any{"description": "generic person"},
		"Place":  map[string]any{"description": "a place"},
	}, nil, nil)
	second := packAssignment("domain-pack", JSON{
		"Person": map[string]any{"description": "a historical figure"},
	}, nil, nil)

	merged := testService().merge("p1", []ProjectTemplatePack{first, second})

	if len(merged.ObjectSchemas) != 2 {
		t.Fatalf("got %d object schemas, want 2", len(merged.ObjectSchemas))
	}
	person := merged.ObjectSchemas["Person"]
	if person.Description != "a historical figure" {
		t.Errorf("later pack should override: %q", person.Description)
	}
	if !reflect.DeepEqual(person.Sources, []string{"base-pack", "domain-pack"}) {
		t.Errorf("sources = %v", person.Sources)
	}
	if !reflect.DeepEqual(merged.ObjectSchemas["Place"].Sources, []string{"base-pack"}) {
		t.Errorf("place sources = %v", merged.ObjectSchemas["Place"].Sources)
	}
}

func TestMergeCustomizations(t *testing.T) {
	assignment := packAssignment("pack", JSON{
		"Person": map[string]any{"description": "person"},
		"Place":  map[string]any{"description": "place"},
		"Event":  map[string]any{"description": "event"},
	}, JSON{
		"LIVES_IN": map[string]any{"sourceTypes": []any{"Person"}, "target": "Place"},
	}, &TemplatePackCustomizations{
		DisabledTypes: []string{"Event"},
		SchemaOverrides: map[string]any{
			"Person": map[string]any{
				"description": "overridden person",
				"properties": map[string]any{
					"tribe": map[string]any{"type": "string", "description": "tribe membership"},
				},
			},
		},
	})

	merged := testService().merge("p1", []ProjectTemplatePack{assignment})

	if _, ok := merged.ObjectSchemas["Event"]; ok {
		t.Error("disabled type should be excluded")
	}
	person := merged.ObjectSchemas["Person"]
	if person.Description != "overridden person" {
		t.Errorf("override not applied: %q", person.Description)
	}
	if person.Properties["tribe"].Description != "tribe membership" {
		t.Errorf("override property missing: %+v", person.Properties)
	}

	rel := merged.RelationshipSchemas["LIVES_IN"]
	if !reflect.DeepEqual(rel.SourceTypes, []string{"Person"}) {
		t.Errorf("sourceTypes (camelCase) not parsed: %v", rel.SourceTypes)
	}
	if !reflect.DeepEqual(rel.TargetTypes, []string{"Place"}) {
		t.Errorf("singular target not parsed: %v", rel.TargetTypes)
	}
}

func TestMergeEnabledTypesAllowlist(t *testing.T) {
	assignment := packAssignment("pack", JSON{
		"Person": map[string]any{},
		"Place":  map[string]any{},
	}, nil, &TemplatePackCustomizations{
		EnabledTypes: []string{"Person"},
	})

	merged := testService().merge("p1", []ProjectTemplatePack{assignment})
	if len(merged.ObjectSchemas) != 1 {
		t.Fatalf("got %d schemas, want 1", len(merged.ObjectSchemas))
	}
	if _, ok := merged.ObjectSchemas["Person"]; !ok {
		t.Error("enabled type missing")
	}
}

func TestParseRelationshipTypesFieldVariants(t *testing.T) {
	schemas := parseRelationshipTypeSchemas(JSON{
		"A": map[string]any{"source_types": []any{"X"}, "target_types": []any{"Y"}},
		"B": map[string]any{"fromTypes": []any{"X"}, "toTypes": []any{"Y", "Z"}},
		"C": map[string]any{},
	})

	if !reflect.DeepEqual(schemas["A"].SourceTypes, []string{"X"}) {
		t.Errorf("snake_case not parsed: %v", schemas["A"].SourceTypes)
	}
	if !reflect.DeepEqual(schemas["B"].TargetTypes, []string{"Y", "Z"}) {
		t.Errorf("toTypes not parsed: %v", schemas["B"].TargetTypes)
	}
	if schemas["C"].SourceTypes != nil {
		t.Errorf("absent fields should yield nil: %v", schemas["C"].SourceTypes)
	}
}

func TestParseObjectTypeSchemasRequired(t *testing.T) {
	schemas := parseObjectTypeSchemas(JSON{
		"Person": map[string]any{
			"properties": map[string]any{
				"role": map[string]any{"type": "string", "description": "their role"},
			},
			"required":              []any{"role"},
			"extraction_guidelines": "be thorough",
		},
	})

	person := schemas["Person"]
	if !reflect.DeepEqual(person.Required, []string{"role"}) {
		t.Errorf("required = %v", person.Required)
	}
	if person.Properties["role"].Type != "string" {
		t.Errorf("properties = %+v", person.Properties)
	}
	if person.ExtractionGuidelines != "be thorough" {
		t.Errorf("guidelines = %q", person.ExtractionGuidelines)
	}
}
