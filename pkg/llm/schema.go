package llm

import (
	"sort"

	"google.golang.org/genai"
)

// ExtractionResponseSchema builds the structured-output schema for an
// extraction call. Entity and relationship type names become enums when
// schemas are provided, which constrains the model to the effective types.
func ExtractionResponseSchema(objectSchemas map[string]ObjectSchema, relationshipSchemas map[string]RelationshipSchema) *genai.Schema {
	return &genai.Schema{
		Type:        genai.TypeObject,
		Description: "Entities and relationships extracted from the document",
		Required:    []string{"entities"},
		Properties: map[string]*genai.Schema{
			"entities":      entityArraySchema(objectSchemas),
			"relationships": relationshipArraySchema(relationshipSchemas),
		},
	}
}

func entityArraySchema(objectSchemas map[string]ObjectSchema) *genai.Schema {
	typeSchema := &genai.Schema{
		Type:        genai.TypeString,
		Description: "Entity type (e.g. 'Person', 'Organization', 'Location')",
	}
	if len(objectSchemas) > 0 {
		typeSchema.Enum = sortedKeys(objectSchemas)
		typeSchema.Description = "Entity type from the allowed list"
	}

	return &genai.Schema{
		Type:        genai.TypeArray,
		Description: "Array of extracted entities",
		Items: &genai.Schema{
			Type:     genai.TypeObject,
			Required: []string{"name", "type"},
			Properties: map[string]*genai.Schema{
				"name": {
					Type:        genai.TypeString,
					Description: "Human-readable name of the entity",
				},
				"type": typeSchema,
				"description": {
					Type:        genai.TypeString,
					Description: "Brief description of the entity",
				},
				"properties": {
					Type:        genai.TypeObject,
					Description: "Type-specific attributes extracted from the document",
				},
				"confidence": {
					Type:        genai.TypeNumber,
					Description: "Model confidence in this entity, between 0 and 1",
				},
			},
		},
	}
}

func relationshipArraySchema(relationshipSchemas map[string]RelationshipSchema) *genai.Schema {
	typeSchema := &genai.Schema{
		Type:        genai.TypeString,
		Description: "Relationship type (e.g. 'WORKS_FOR', 'LOCATED_IN')",
	}
	if len(relationshipSchemas) > 0 {
		typeSchema.Enum = sortedKeys(relationshipSchemas)
		typeSchema.Description = "Relationship type from the allowed list"
	}

	endpoint := func(role string) *genai.Schema {
		return &genai.Schema{
			Type:        genai.TypeObject,
			Description: role + " entity reference: name, id, or both",
			Properties: map[string]*genai.Schema{
				"name": {
					Type:        genai.TypeString,
					Description: "Entity name as extracted or as listed in existing entities",
				},
				"id": {
					Type:        genai.TypeString,
					Description: "UUID of an existing entity",
				},
			},
		}
	}

	return &genai.Schema{
		Type:        genai.TypeArray,
		Description: "Array of extracted relationships",
		Items: &genai.Schema{
			Type:     genai.TypeObject,
			Required: []string{"type", "source", "target"},
			Properties: map[string]*genai.Schema{
				"type":   typeSchema,
				"source": endpoint("Source"),
				"target": endpoint("Target"),
				"description": {
					Type:        genai.TypeString,
					Description: "Description of this specific relationship instance",
				},
				"confidence": {
					Type:        genai.TypeNumber,
					Description: "Model confidence in this relationship, between 0 and 1",
				},
			},
		},
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
