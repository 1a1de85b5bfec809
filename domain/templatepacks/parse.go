package templatepacks

import (
	"github.com/emergent-company/emergent.strategy-sub002/pkg/llm"
)

// parseObjectTypeSchemas converts jsonb object_type_schemas into typed
// schemas.
func parseObjectTypeSchemas(raw JSON) map[string]llm.ObjectSchema {
	schemas := make(map[string]llm.ObjectSchema)
	if raw == nil {
		return schemas
	}

	for typeName, schemaRaw := range raw {
		schemaMap, ok := schemaRaw.(map[string]any)
		if !ok {
			continue
		}

		schema := llm.ObjectSchema{Name: typeName}

		if desc, ok := schemaMap["description"].(string); ok {
			schema.Description = desc
		}

		if props, ok := schemaMap["properties"].(map[string]any); ok {
			schema.Properties = make(map[string]llm.PropertyDef)
			for propName, propRaw := range props {
				propMap, ok := propRaw.(map[string]any)
				if !ok {
					continue
				}
				propDef := llm.PropertyDef{}
				if t, ok := propMap["type"].(string); ok {
					propDef.Type = t
				}
				if d, ok := propMap["description"].(string); ok {
					propDef.Description = d
				}
				schema.Properties[propName] = propDef
			}
		}

		if req, ok := schemaMap["required"].([]any); ok {
			for _, r := range req {
				if s, ok := r.(string); ok {
					schema.Required = append(schema.Required, s)
				}
			}
		}

		if guidelines, ok := schemaMap["extraction_guidelines"].(string); ok {
			schema.ExtractionGuidelines = guidelines
		}

		schemas[typeName] = schema
	}

	return schemas
}

// parseRelationshipTypeSchemas converts jsonb relationship_type_schemas into
// typed schemas. Source/target type lists are accepted under several field
// naming conventions packs use in the wild:
//   - source_types / target_types (snake_case)
//   - sourceTypes / targetTypes (camelCase)
//   - fromTypes / toTypes (alternative camelCase)
//   - source / target (singular string)
func parseRelationshipTypeSchemas(raw JSON) map[string]llm.RelationshipSchema {
	schemas := make(map[string]llm.RelationshipSchema)
	if raw == nil {
		return schemas
	}

	for typeName, schemaRaw := range raw {
		schemaMap, ok := schemaRaw.(map[string]any)
		if !ok {
			continue
		}

		schema := llm.RelationshipSchema{Name: typeName}

		if desc, ok := schemaMap["description"].(string); ok {
			schema.Description = desc
		}

		schema.SourceTypes = parseTypesField(schemaMap, "source_types", "sourceTypes", "fromTypes", "source")
		schema.TargetTypes = parseTypesField(schemaMap, "target_types", "targetTypes", "toTypes", "target")

		if guidelines, ok := schemaMap["extraction_guidelines"].(string); ok {
			schema.ExtractionGuidelines = guidelines
		}

		schemas[typeName] = schema
	}

	return schemas
}

// parseTypesField extracts a []string from a schema map, trying multiple
// field names. Supports both array fields and singular string fields.
func parseTypesField(schemaMap map[string]any, keys ...string) []string {
	for _, key := range keys {
		val, ok := schemaMap[key]
		if !ok {
			continue
		}
		if arr, ok := val.([]any); ok {
			var result []string
			for _, item := range arr {
				if s, ok := item.(string); ok {
					result = append(result, s)
				}
			}
			if len(result) > 0 {
				return result
			}
		}
		if s, ok := val.(string); ok && s != "" {
			return []string{s}
		}
	}
	return nil
}

// applySchemaOverrides merges installation overrides into a base schema.
func applySchemaOverrides(base llm.ObjectSchema, overrides any) llm.ObjectSchema {
	overrideMap, ok := overrides.(map[string]any)
	if !ok {
		return base
	}

	if desc, ok := overrideMap["description"].(string); ok {
		base.Description = desc
	}

	if props, ok := overrideMap["properties"].(map[string]any); ok {
		if base.Properties == nil {
			base.Properties = make(map[string]llm.PropertyDef)
		}
		for propName, propRaw := range props {
			propMap, ok := propRaw.(map[string]any)
			if !ok {
				continue
			}
			propDef := base.Properties[propName]
			if t, ok := propMap["type"].(string); ok {
				propDef.Type = t
			}
			if d, ok := propMap["description"].(string); ok {
				propDef.Description = d
			}
			base.Properties[propName] = propDef
		}
	}

	if req, ok := overrideMap["required"].([]any); ok {
		base.Required = nil
		for _, r := range req {
			if s, ok := r.(string); ok {
				base.Required = append(base.Required, s)
			}
		}
	}

	if guidelines, ok := overrideMap["extraction_guidelines"].(string); ok {
		base.ExtractionGuidelines = guidelines
	}

	return base
}
