package llm

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultBasePrompt is the system prompt used when neither the project nor the
// job configures one.
const DefaultBasePrompt = `You are an expert knowledge graph builder. Extract entities and the relationships between them from the document.

For EACH entity, you MUST provide these four fields:
1. name: Clear, descriptive name of the entity (REQUIRED, top-level field)
2. type: Entity type from the allowed list (REQUIRED, top-level field)
3. description: Brief description of what this entity represents (top-level field)
4. properties: An object containing type-specific attributes (CRITICAL - see below)

CRITICAL INSTRUCTIONS FOR PROPERTIES:
- The "properties" field is an object that MUST contain type-specific attributes extracted from the document
- NEVER return an empty properties object {} if there is ANY relevant information in the document
- Extract ALL attributes mentioned or implied in the text for each entity
- The properties object should NOT contain name, type, or description - those are top-level fields

RULES:
- Extract ALL entities that match the allowed types
- Be thorough - don't miss important entities
- Use consistent naming
- Keep descriptions concise but informative
- Only include properties that are explicitly mentioned or clearly implied in the document
- Do NOT guess or fabricate property values
- EVERY entity should have at least one relationship where the document supports one
- Check the source/target type constraints for each relationship type`

// BuildExtractionPrompt assembles the full extraction prompt: base prompt,
// effective schemas, allowed types, available tags, existing-entity context,
// and the source text.
func BuildExtractionPrompt(document, basePrompt string, opts ExtractionOptions) string {
	if basePrompt == "" {
		basePrompt = DefaultBasePrompt
	}

	typesToExtract := opts.AllowedTypes
	if len(typesToExtract) == 0 {
		typesToExtract = make([]string, 0, len(opts.ObjectSchemas))
		for typeName := range opts.ObjectSchemas {
			typesToExtract = append(typesToExtract, typeName)
		}
		sort.Strings(typesToExtract)
	}

	var sb strings.Builder
	sb.WriteString(basePrompt)

	sb.WriteString("\n\n## Entity Types and Their Properties\n\n")
	sb.WriteString(fmt.Sprintf("Extract ONLY these types: %s\n\n", strings.Join(typesToExtract, ", ")))

	topLevelFields := map[string]bool{"name": true, "description": true, "type": true}

	for _, typeName := range typesToExtract {
		schema, ok := opts.ObjectSchemas[typeName]
		if !ok {
			sb.WriteString(fmt.Sprintf("### %s\n\n", typeName))
			continue
		}

		sb.WriteString(fmt.Sprintf("### %s\n", typeName))
		if schema.Description != "" {
			sb.WriteString(schema.Description)
			sb.WriteString("\n")
		}

		if len(schema.Properties) > 0 {
			propNames := make([]string, 0, len(schema.Properties))
			for propName := range schema.Properties {
				if !topLevelFields[propName] && !strings.HasPrefix(propName, "_") {
					propNames = append(propNames, propName)
				}
			}
			sort.Strings(propNames)

			if len(propNames) > 0 {
				sb.WriteString("**Additional Properties** (stored in `properties` object):\n")
				for _, propName := range propNames {
					propDef := schema.Properties[propName]
					propType := propDef.Type
					if propType == "" {
						propType = "string"
					}
					required := ""
					for _, req := range schema.Required {
						if req == propName {
							required = " (required)"
							break
						}
					}
					sb.WriteString(fmt.Sprintf("- `%s` (%s)%s: %s\n", propName, propType, required, propDef.Description))
				}
			}
		}
		if schema.ExtractionGuidelines != "" {
			sb.WriteString(fmt.Sprintf("**Guidelines:**\n%s\n", schema.ExtractionGuidelines))
		}
		sb.WriteString("\n")
	}

	writeRelationshipTypes(&sb, opts.RelationshipSchemas)

	if len(opts.AvailableTags) > 0 {
		sb.WriteString("\n## Available Tags\n\n")
		sb.WriteString("Prefer reusing these existing tags when tagging entities:\n")
		sb.WriteString(strings.Join(opts.AvailableTags, ", "))
		sb.WriteString("\n")
	}

	writeExistingEntities(&sb, typesToExtract, opts.ExistingEntities)

	sb.WriteString("\n## Document\n\n")
	sb.WriteString(document)
	sb.WriteString("\n\n")

	if len(opts.ExistingEntities) > 0 {
		sb.WriteString(outputFormatWithContext)
	} else {
		sb.WriteString(outputFormatBasic)
	}

	return sb.String()
}

func writeRelationshipTypes(sb *strings.Builder, relationshipSchemas map[string]RelationshipSchema) {
	if len(relationshipSchemas) == 0 {
		return
	}

	sb.WriteString("\n## Available Relationship Types\n\n")

	typeNames := make([]string, 0, len(relationshipSchemas))
	for typeName := range relationshipSchemas {
		typeNames = append(typeNames, typeName)
	}
	sort.Strings(typeNames)

	for _, typeName := range typeNames {
		schema := relationshipSchemas[typeName]
		sb.WriteString(fmt.Sprintf("### %s\n", typeName))
		if schema.Description != "" {
			sb.WriteString(schema.Description)
			sb.WriteString("\n\n")
		}

		if len(schema.SourceTypes) > 0 || len(schema.TargetTypes) > 0 {
			sourceStr := "any"
			if len(schema.SourceTypes) > 0 {
				sourceStr = strings.Join(schema.SourceTypes, " or ")
			}
			targetStr := "any"
			if len(schema.TargetTypes) > 0 {
				targetStr = strings.Join(schema.TargetTypes, " or ")
			}
			sb.WriteString(fmt.Sprintf("**Valid entity types:** %s → %s\n\n", sourceStr, targetStr))
		}

		if schema.ExtractionGuidelines != "" {
			sb.WriteString(fmt.Sprintf("**Guidelines:**\n%s\n\n", schema.ExtractionGuidelines))
		}
	}
}

func writeExistingEntities(sb *strings.Builder, typesToExtract []string, existing []ExistingEntity) {
	if len(existing) == 0 {
		return
	}

	sb.WriteString(contextAwareExtractionRules)
	sb.WriteString("\n\n## Existing Entities in Knowledge Graph\n\n")
	sb.WriteString("These entities already exist. Use their exact names and IDs if the document references them:\n\n")

	byType := make(map[string][]ExistingEntity)
	for _, entity := range existing {
		byType[entity.TypeName] = append(byType[entity.TypeName], entity)
	}

	const maxPerType = 10
	const maxTotal = 50
	totalShown := 0

	for _, typeName := range typesToExtract {
		if totalShown >= maxTotal {
			break
		}
		entities, ok := byType[typeName]
		if !ok {
			continue
		}

		sb.WriteString(fmt.Sprintf("### %s\n", typeName))
		toShow := entities
		if len(toShow) > maxPerType {
			toShow = toShow[:maxPerType]
		}

		for _, entity := range toShow {
			if totalShown >= maxTotal {
				break
			}
			similarity := ""
			if entity.Similarity > 0 {
				similarity = fmt.Sprintf(" (similarity: %.0f%%)", entity.Similarity*100)
			}
			desc := ""
			if entity.Description != "" {
				d := entity.Description
				if len(d) > 100 {
					d = d[:100]
				}
				desc = " - " + d
			}
			sb.WriteString(fmt.Sprintf("- **%s** [id: %s]%s%s\n", entity.Name, entity.ID, similarity, desc))
			if related := formatRelated(entity.Related); related != "" {
				sb.WriteString(fmt.Sprintf("  - related: %s\n", related))
			}
			totalShown++
		}

		if len(entities) > maxPerType {
			sb.WriteString(fmt.Sprintf("  _(and %d more)_\n", len(entities)-maxPerType))
		}
	}
	sb.WriteString("\n")
}

// formatRelated renders an entity's one-hop edges as a compact single line,
// e.g. "WORKED_IN → Mathematics (Field); MEMBER_OF ← Royal Society (Organization)".
func formatRelated(related []RelatedEntity) string {
	if len(related) == 0 {
		return ""
	}
	parts := make([]string, 0, len(related))
	for _, r := range related {
		arrow := "→"
		if r.Direction == "incoming" {
			arrow = "←"
		}
		part := fmt.Sprintf("%s %s %s", r.Type, arrow, r.RelatedName)
		if r.RelatedType != "" {
			part += fmt.Sprintf(" (%s)", r.RelatedType)
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "; ")
}

const contextAwareExtractionRules = `
CONTEXT-AWARE EXTRACTION RULES:
- Below is a list of existing entities already in the knowledge graph
- When you find an entity that MATCHES an existing one, use the SAME NAME
- When you find NEW information about an existing entity, include it in the description
- Only extract entities that are mentioned or referenced in THIS document
- Do NOT simply copy existing entities - only include them if the document mentions them
- When referencing an existing entity in a relationship, you may use its id directly`

const outputFormatBasic = `## Output Format

Return a JSON object with an "entities" key and a "relationships" key.

Each entity must have:
- name (string): Entity name
- type (string): One of the allowed types above
- description (string, optional): Brief description
- properties (object, optional): Type-specific attributes found in the document

Each relationship must have:
- type (string): Relationship type from the allowed list above
- source (object): {"name": "<entity name>"} for the source entity
- target (object): {"name": "<entity name>"} for the target entity
- description (string, optional): Description of this relationship instance

Example:
{
  "entities": [
    {
      "name": "Ada Lovelace",
      "type": "Person",
      "description": "English mathematician",
      "properties": {"occupation": "mathematician"}
    }
  ],
  "relationships": [
    {
      "type": "WORKED_IN",
      "source": {"name": "Ada Lovelace"},
      "target": {"name": "Mathematics"},
      "description": "Ada Lovelace worked in the field of mathematics"
    }
  ]
}

Extract all entities and relationships now.`

const outputFormatWithContext = `## Output Format

Return a JSON object with an "entities" key and a "relationships" key.

Each entity must have:
- name (string): Entity name (use exact names from existing entities when matching)
- type (string): One of the allowed types above
- description (string, optional): Brief description
- properties (object, optional): Type-specific attributes found in the document

Each relationship must have:
- type (string): Relationship type from the allowed list above
- source (object): {"name": "<entity name>"} or {"id": "<existing entity id>"}
- target (object): {"name": "<entity name>"} or {"id": "<existing entity id>"}
- description (string, optional): Description of this relationship instance

Example:
{
  "entities": [
    {
      "name": "Jerusalem",
      "type": "Place",
      "description": "Holy city",
      "properties": {"region": "Judea"}
    }
  ],
  "relationships": [
    {
      "type": "LOCATED_IN",
      "source": {"name": "Jerusalem"},
      "target": {"id": "abc-123-uuid"},
      "description": "Jerusalem is located in Judea"
    }
  ]
}

Extract all entities and relationships now.`
