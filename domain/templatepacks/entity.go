// Package templatepacks resolves the effective extraction schemas for a
// project from its installed schema packs.
package templatepacks

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/emergent-company/emergent.strategy-sub002/pkg/llm"
)

// JSON is a jsonb column holding a free-form object.
type JSON map[string]any

// Scan implements sql.Scanner for JSON.
func (j *JSON) Scan(value any) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("unsupported type for JSON: %T", value)
	}
}

// Value implements driver.Valuer for JSON.
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	return json.Marshal(j)
}

// GraphTemplatePack represents a schema pack in kb.graph_template_packs.
// Packs are global resources shared across all organizations.
type GraphTemplatePack struct {
	bun.BaseModel `bun:"kb.graph_template_packs,alias:gtp"`

	ID                      string     `bun:"id,pk,type:uuid"`
	Name                    string     `bun:"name,notnull"`
	Version                 string     `bun:"version,notnull"`
	Description             *string    `bun:"description"`
	ObjectTypeSchemas       JSON       `bun:"object_type_schemas,type:jsonb,notnull"`
	RelationshipTypeSchemas JSON       `bun:"relationship_type_schemas,type:jsonb,default:'{}'"`
	ExtractionPrompts       JSON       `bun:"extraction_prompts,type:jsonb,default:'{}'"`
	PublishedAt             time.Time  `bun:"published_at,default:now()"`
	DeprecatedAt            *time.Time `bun:"deprecated_at"`
	CreatedAt               time.Time  `bun:"created_at,default:now()"`
	UpdatedAt               time.Time  `bun:"updated_at,default:now()"`
}

// ProjectTemplatePack represents a pack installation for a project, in
// kb.project_template_packs.
type ProjectTemplatePack struct {
	bun.BaseModel `bun:"kb.project_template_packs,alias:ptp"`

	ID             string                      `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	ProjectID      string                      `bun:"project_id,notnull,type:uuid"`
	TemplatePackID string                      `bun:"template_pack_id,notnull,type:uuid"`
	InstalledAt    time.Time                   `bun:"installed_at,default:now()"`
	Active         bool                        `bun:"active,default:true"`
	Customizations *TemplatePackCustomizations `bun:"customizations,type:jsonb,default:'{}'"`
	CreatedAt      time.Time                   `bun:"created_at,default:now()"`
	UpdatedAt      time.Time                   `bun:"updated_at,default:now()"`

	TemplatePack *GraphTemplatePack `bun:"rel:belongs-to,join:template_pack_id=id"`
}

// TemplatePackCustomizations holds installation-specific customizations.
type TemplatePackCustomizations struct {
	EnabledTypes    []string       `json:"enabledTypes,omitempty"`
	DisabledTypes   []string       `json:"disabledTypes,omitempty"`
	SchemaOverrides map[string]any `json:"schemaOverrides,omitempty"`
}

// Scan implements sql.Scanner for TemplatePackCustomizations.
func (c *TemplatePackCustomizations) Scan(value any) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return fmt.Errorf("unsupported type for TemplatePackCustomizations: %T", value)
	}
}

// Value implements driver.Valuer for TemplatePackCustomizations.
func (c TemplatePackCustomizations) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Setting is a key/value row in kb.settings.
type Setting struct {
	bun.BaseModel `bun:"kb.settings,alias:s"`

	Key       string    `bun:"key,pk"`
	Value     string    `bun:"value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,default:now()"`
}

// SettingKeyBasePrompt is the settings-store override for the extraction base
// prompt.
const SettingKeyBasePrompt = "extraction.basePrompt"

// ExtractionSchemas is the merged, effective schema set for a project.
type ExtractionSchemas struct {
	ObjectSchemas       map[string]llm.ObjectSchema
	RelationshipSchemas map[string]llm.RelationshipSchema
	// ExtractionPrompts is the shallow merge of pack prompts keyed by name.
	ExtractionPrompts map[string]string
}
