package llm

import (
	"strings"
	"testing"
)

func TestBuildExtractionPromptSections(t *testing.T) {
	opts := ExtractionOptions{
		ObjectSchemas: map[string]ObjectSchema{
			"Person": {
				Name:        "Person",
				Description: "A human being",
				Properties: map[string]PropertyDef{
					"occupation": {Type: "string", Description: "What they do"},
					"name":       {Type: "string", Description: "excluded top-level"},
					"_internal":  {Type: "string", Description: "excluded reserved"},
				},
				Required: []string{"occupation"},
			},
			"Place": {Name: "Place"},
		},
		RelationshipSchemas: map[string]RelationshipSchema{
			"LIVES_IN": {
				Name:        "LIVES_IN",
				SourceTypes: []string{"Person"},
				TargetTypes: []string{"Place"},
			},
		},
		AvailableTags: []string{"history", "biography"},
	}

	prompt := BuildExtractionPrompt("Ada lived in London.", "", opts)

	for _, want := range []string{
		"Extract ONLY these types: Person, Place",
		"A human being",
		"`occupation` (string) (required): What they do",
		"## Available Relationship Types",
		"### LIVES_IN",
		"Person → Place",
		"## Available Tags",
		"history, biography",
		"## Document",
		"Ada lived in London.",
		"## Output Format",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	if strings.Contains(prompt, "_internal") {
		t.Error("prompt should not include reserved properties")
	}
	if strings.Contains(prompt, "Existing Entities") {
		t.Error("prompt should not include existing-entity section when none given")
	}
}

func TestBuildExtractionPromptAllowedTypesOverride(t *testing.T) {
	opts := ExtractionOptions{
		ObjectSchemas: map[string]ObjectSchema{
			"Person": {Name: "Person"},
			"Place":  {Name: "Place"},
		},
		AllowedTypes: []string{"Person"},
	}

	prompt := BuildExtractionPrompt("text", "", opts)
	if !strings.Contains(prompt, "Extract ONLY these types: Person\n") {
		t.Errorf("allowed types override not applied")
	}
}

func TestBuildExtractionPromptExistingEntities(t *testing.T) {
	opts := ExtractionOptions{
		ObjectSchemas: map[string]ObjectSchema{"Person": {Name: "Person"}},
		ExistingEntities: []ExistingEntity{
			{
				ID: "uuid-1", Name: "Ada Lovelace", TypeName: "Person", Similarity: 0.92,
				Related: []RelatedEntity{
					{Type: "WORKED_IN", Direction: "outgoing", RelatedName: "Mathematics", RelatedType: "Field"},
					{Type: "MENTIONED_IN", Direction: "incoming", RelatedName: "Notes", RelatedType: "Document"},
				},
			},
		},
	}

	prompt := BuildExtractionPrompt("text", "custom base prompt", opts)

	if !strings.HasPrefix(prompt, "custom base prompt") {
		t.Error("base prompt not used")
	}
	for _, want := range []string{
		"## Existing Entities in Knowledge Graph",
		"**Ada Lovelace** [id: uuid-1] (similarity: 92%)",
		"related: WORKED_IN → Mathematics (Field); MENTIONED_IN ← Notes (Document)",
		`{"id": "<existing entity id>"}`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
