// Package llm provides language model providers for structured entity and
// relationship extraction.
package llm

import (
	"context"
)

// Extraction methods supported by providers.
const (
	// MethodResponseSchema uses native structured output (response schema).
	MethodResponseSchema = "response_schema"
	// MethodFunctionCalling uses tool-call style structured output.
	MethodFunctionCalling = "function_calling"
)

// ObjectSchema describes an entity type the model may extract.
type ObjectSchema struct {
	Name                 string                 `json:"name"`
	Description          string                 `json:"description,omitempty"`
	Properties           map[string]PropertyDef `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	ExtractionGuidelines string                 `json:"extraction_guidelines,omitempty"`
	// Sources lists the schema packs that contributed to this merged type.
	Sources []string `json:"_sources,omitempty"`
}

// PropertyDef defines a property in an object schema.
type PropertyDef struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// RelationshipSchema describes a relationship type the model may extract.
type RelationshipSchema struct {
	Name                 string   `json:"name"`
	Description          string   `json:"description,omitempty"`
	SourceTypes          []string `json:"source_types,omitempty"`
	TargetTypes          []string `json:"target_types,omitempty"`
	ExtractionGuidelines string   `json:"extraction_guidelines,omitempty"`
	// Sources lists the schema packs that contributed to this merged type.
	Sources []string `json:"_sources,omitempty"`
}

// ExistingEntity provides bounded context about an entity already in the graph
// so the model can suppress duplicates.
type ExistingEntity struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	TypeName    string          `json:"type_name"`
	Description string          `json:"description,omitempty"`
	Properties  map[string]any  `json:"properties,omitempty"`
	Similarity  float64         `json:"similarity,omitempty"`
	Related     []RelatedEntity `json:"related,omitempty"`
}

// RelatedEntity summarizes one edge incident to an existing entity.
type RelatedEntity struct {
	Type        string `json:"type"`
	Direction   string `json:"direction"`
	RelatedName string `json:"related_name"`
	RelatedType string `json:"related_type"`
}

// CallContext carries correlation identifiers attached to each LLM call.
type CallContext struct {
	JobID               string
	ProjectID           string
	TraceID             string
	ParentObservationID string
}

// ExtractionOptions configures a single extraction invocation.
type ExtractionOptions struct {
	ObjectSchemas       map[string]ObjectSchema
	RelationshipSchemas map[string]RelationshipSchema
	AllowedTypes        []string
	AvailableTags       []string
	ExistingEntities    []ExistingEntity
	DocumentChunks      []string

	// Method overrides the provider default (response_schema or
	// function_calling). Empty means provider default.
	Method string
	// TimeoutMs bounds each model call. Zero means provider default.
	TimeoutMs int
	// BatchSizeChars splits the document into character-bounded batches with
	// one model call per batch. Zero means a single call.
	BatchSizeChars int

	Context CallContext
}

// CandidateEntity is an entity proposed by the model, pre-persistence.
type CandidateEntity struct {
	TypeName           string         `json:"type"`
	Name               string         `json:"name"`
	Description        string         `json:"description,omitempty"`
	Properties         map[string]any `json:"properties,omitempty"`
	Confidence         *float64       `json:"confidence,omitempty"`
	VerificationStatus string         `json:"verification_status,omitempty"`
}

// RelationshipEndpoint identifies one end of a proposed relationship, by
// canonical id, by name, or both.
type RelationshipEndpoint struct {
	Name string `json:"name,omitempty"`
	ID   string `json:"id,omitempty"`
}

// CandidateRelationship is a relationship proposed by the model.
type CandidateRelationship struct {
	RelationshipType   string               `json:"type"`
	Source             RelationshipEndpoint `json:"source"`
	Target             RelationshipEndpoint `json:"target"`
	Description        string               `json:"description,omitempty"`
	Confidence         *float64             `json:"confidence,omitempty"`
	VerificationStatus string               `json:"verification_status,omitempty"`
}

// Usage aggregates token accounting across all calls of an extraction.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage record.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// CallRecord describes one model call made during an extraction.
type CallRecord struct {
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	Batch      int    `json:"batch"`
	DurationMs int64  `json:"duration_ms"`
	Usage      *Usage `json:"usage,omitempty"`
}

// RawResponse preserves the per-call envelope for debugging.
type RawResponse struct {
	Provider string       `json:"provider"`
	Model    string       `json:"model"`
	Method   string       `json:"method"`
	Calls    []CallRecord `json:"llm_calls"`
}

// ExtractionResult is the parsed output of an extraction invocation.
type ExtractionResult struct {
	Entities        []CandidateEntity       `json:"entities"`
	Relationships   []CandidateRelationship `json:"relationships"`
	DiscoveredTypes []string                `json:"discovered_types,omitempty"`
	Usage           *Usage                  `json:"usage,omitempty"`
	RawResponse     *RawResponse            `json:"raw_response,omitempty"`
}

// FailedCalls counts calls in the raw response that reported an error.
func (r *ExtractionResult) FailedCalls() int {
	if r == nil || r.RawResponse == nil {
		return 0
	}
	n := 0
	for _, c := range r.RawResponse.Calls {
		if c.Status == "error" {
			n++
		}
	}
	return n
}

// FirstCallError returns the first error message in the raw response.
func (r *ExtractionResult) FirstCallError() string {
	if r == nil || r.RawResponse == nil {
		return ""
	}
	for _, c := range r.RawResponse.Calls {
		if c.Status == "error" && c.Error != "" {
			return c.Error
		}
	}
	return ""
}

// Provider is a language model backend capable of structured extraction.
type Provider interface {
	// Name identifies the provider (e.g. "gemini").
	Name() string

	// IsConfigured reports whether the provider has valid credentials.
	IsConfigured() bool

	// ExtractEntities runs the extraction prompt against the model and
	// returns parsed candidates. A partial result with some failed calls is
	// returned without error; an error is returned only when every call
	// failed or the provider could not run at all.
	ExtractEntities(ctx context.Context, document, basePrompt string, opts ExtractionOptions) (*ExtractionResult, error)
}
