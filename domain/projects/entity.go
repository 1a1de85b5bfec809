// Package projects resolves the tenant scope and per-project extraction
// configuration for jobs.
package projects

import (
	"time"

	"github.com/uptrace/bun"
)

// Project represents a project in the kb.projects table.
type Project struct {
	bun.BaseModel `bun:"table:kb.projects,alias:p"`

	ID             string `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	OrganizationID string `bun:"organization_id,notnull,type:uuid" json:"organizationId"`
	Name           string `bun:"name,notnull" json:"name"`

	ChunkingConfig   *ChunkingConfig   `bun:"chunking_config,type:jsonb" json:"chunkingConfig,omitempty"`
	ExtractionConfig *ExtractionConfig `bun:"extraction_config,type:jsonb" json:"extractionConfig,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull,default:now()" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:now()" json:"updatedAt"`
}

// ChunkingConfig is the per-project chunking configuration.
type ChunkingConfig struct {
	Strategy     string `json:"strategy,omitempty"`
	MaxChunkSize *int   `json:"maxChunkSize,omitempty"`
	MinChunkSize *int   `json:"minChunkSize,omitempty"`
	Overlap      *int   `json:"overlap,omitempty"`
}

// ConfidenceThresholds are the per-project confidence band overrides.
type ConfidenceThresholds struct {
	Min    *float64 `json:"min,omitempty"`
	Review *float64 `json:"review,omitempty"`
	Auto   *float64 `json:"auto,omitempty"`
}

// ExtractionConfig is the per-project extraction configuration. All fields
// are optional; absent values fall back to server defaults, and jobs may
// override them per run.
type ExtractionConfig struct {
	Method               *string               `json:"method,omitempty"`
	TimeoutSeconds       *int                  `json:"timeoutSeconds,omitempty"`
	BatchSizeChars       *int                  `json:"batchSizeChars,omitempty"`
	AllowedTypes         []string              `json:"allowedTypes,omitempty"`
	ConfidenceThresholds *ConfidenceThresholds `json:"confidenceThresholds,omitempty"`
	LinkingStrategy      *string               `json:"linkingStrategy,omitempty"`
	SimilarityThreshold  *float64              `json:"similarityThreshold,omitempty"`
	BasePrompt           *string               `json:"basePrompt,omitempty"`
}
