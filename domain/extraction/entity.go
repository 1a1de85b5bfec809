// Package extraction implements the object extraction pipeline: a polling
// worker that claims queued jobs, orchestrates an LLM over source documents,
// applies confidence gates, links candidates against the existing graph, and
// writes the results with provenance back to the source chunks.
package extraction

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// JobStatus is the processing status of an extraction job.
type JobStatus string

const (
	JobStatusQueued         JobStatus = "queued"
	JobStatusRunning        JobStatus = "running"
	JobStatusCompleted      JobStatus = "completed"
	JobStatusRequiresReview JobStatus = "requires_review"
	JobStatusFailed         JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusRequiresReview || s == JobStatusFailed
}

// Source types a job may carry. Only document and manual sources are
// processed; api and bulk_import jobs fail fast.
const (
	SourceTypeDocument   = "document"
	SourceTypeManual     = "manual"
	SourceTypeAPI        = "api"
	SourceTypeBulkImport = "bulk_import"
)

// ObjectExtractionJob represents an extraction job in kb.object_extraction_jobs.
type ObjectExtractionJob struct {
	bun.BaseModel `bun:"table:kb.object_extraction_jobs,alias:oej"`

	ID         string  `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	ProjectID  string  `bun:"project_id,notnull,type:uuid"`
	DocumentID *string `bun:"document_id,type:uuid"`

	Status JobStatus `bun:"status,notnull,default:'queued'"`

	SourceType     *string `bun:"source_type"`
	SourceID       *string `bun:"source_id"`
	SourceMetadata JSON    `bun:"source_metadata,type:jsonb,notnull,default:'{}'"`

	// SubjectID is the requesting user; system jobs leave it empty and
	// produce no notifications.
	SubjectID *string `bun:"subject_id,type:uuid"`

	// ExtractionConfig carries per-job overrides (allowed types, thresholds,
	// method, timeout, batch size, similarity threshold, pipeline mode).
	ExtractionConfig JSON `bun:"extraction_config,type:jsonb,notnull,default:'{}'"`

	TotalItems           int `bun:"total_items,notnull,default:0"`
	ProcessedItems       int `bun:"processed_items,notnull,default:0"`
	SuccessfulItems      int `bun:"successful_items,notnull,default:0"`
	RejectedItems        int `bun:"rejected_items,notnull,default:0"`
	ObjectsCreated       int `bun:"objects_created,notnull,default:0"`
	RelationshipsCreated int `bun:"relationships_created,notnull,default:0"`
	ReviewRequiredCount  int `bun:"review_required_count,notnull,default:0"`

	CreatedObjects  JSONArray `bun:"created_objects,type:jsonb,default:'[]'"`
	DiscoveredTypes JSONArray `bun:"discovered_types,type:jsonb,default:'[]'"`
	DebugInfo       JSON      `bun:"debug_info,type:jsonb"`

	ErrorMessage *string `bun:"error_message"`
	ErrorDetails JSON    `bun:"error_details,type:jsonb"`

	RetryCount int `bun:"retry_count,notnull,default:0"`
	MaxRetries int `bun:"max_retries,notnull,default:3"`

	CreatedAt   time.Time  `bun:"created_at,notnull,default:now()"`
	StartedAt   *time.Time `bun:"started_at"`
	CompletedAt *time.Time `bun:"completed_at"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:now()"`
}

// Pipeline modes. The preverified mode arrives with confidences that already
// reflect verification; the default single-pass mode runs the verifier and
// heuristic scorer chain.
const (
	PipelineModeSinglePass  = "single_pass"
	PipelineModePreverified = "preverified"
)

// JobOverrides are the recognized per-job extraction_config fields. All are
// optional; absent values fall back to project config and server defaults.
type JobOverrides struct {
	AllowedTypes        []string `json:"allowed_types,omitempty"`
	ThresholdMin        *float64 `json:"confidence_threshold_min,omitempty"`
	ThresholdReview     *float64 `json:"confidence_threshold_review,omitempty"`
	ThresholdAuto       *float64 `json:"confidence_threshold_auto,omitempty"`
	Method              *string  `json:"method,omitempty"`
	TimeoutSeconds      *int     `json:"timeout_seconds,omitempty"`
	BatchSizeChars      *int     `json:"batch_size_chars,omitempty"`
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`
	LinkingStrategy     *string  `json:"linking_strategy,omitempty"`
	PipelineMode        *string  `json:"pipeline_mode,omitempty"`
}

// Overrides parses the job's extraction_config. Unknown fields are ignored;
// a malformed config yields empty overrides rather than failing the job.
func (j *ObjectExtractionJob) Overrides() JobOverrides {
	var o JobOverrides
	if len(j.ExtractionConfig) == 0 {
		return o
	}
	raw, err := json.Marshal(map[string]any(j.ExtractionConfig))
	if err != nil {
		return o
	}
	_ = json.Unmarshal(raw, &o)
	return o
}

// SourceTypeOrDefault returns the job's source type, defaulting to document.
func (j *ObjectExtractionJob) SourceTypeOrDefault() string {
	if j.SourceType == nil || *j.SourceType == "" {
		return SourceTypeDocument
	}
	return *j.SourceType
}

// JSON is a helper type for JSONB object columns.
type JSON map[string]any

// Scan implements sql.Scanner for JSON.
func (j *JSON) Scan(value any) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// JSONArray is a helper type for JSONB columns that store arrays.
type JSONArray []any

// Scan implements sql.Scanner for JSONArray.
func (j *JSONArray) Scan(value any) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// ObjectExtractionLog is a step-level log row in kb.object_extraction_logs.
type ObjectExtractionLog struct {
	bun.BaseModel `bun:"table:kb.object_extraction_logs,alias:oel"`

	ID              string     `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	ExtractionJobID string     `bun:"extraction_job_id,notnull,type:uuid"`
	StartedAt       time.Time  `bun:"started_at,notnull,default:now()"`
	CompletedAt     *time.Time `bun:"completed_at"`

	StepIndex     int     `bun:"step_index,notnull"`
	OperationType string  `bun:"operation_type,notnull"`
	OperationName *string `bun:"operation_name"`
	Status        string  `bun:"status,notnull"`
	Message       *string `bun:"message"`

	InputData    JSON    `bun:"input_data,type:jsonb"`
	OutputData   JSON    `bun:"output_data,type:jsonb"`
	ErrorMessage *string `bun:"error_message"`
	ErrorDetails JSON    `bun:"error_details,type:jsonb"`

	DurationMs        *int `bun:"duration_ms"`
	TokensUsed        *int `bun:"tokens_used"`
	EntityCount       *int `bun:"entity_count"`
	RelationshipCount *int `bun:"relationship_count"`
}

// Operation types recorded in extraction logs.
const (
	LogOpLLMCall              = "llm_call"
	LogOpDocumentPreparation  = "document_preparation"
	LogOpSchemaResolution     = "schema_resolution"
	LogOpContextLoading       = "context_loading"
	LogOpVerification         = "verification"
	LogOpObjectCreation       = "object_creation"
	LogOpRelationshipCreation = "relationship_creation"
	LogOpError                = "error"
)

// Step log statuses.
const (
	LogStatusQueued    = "queued"
	LogStatusCompleted = "completed"
	LogStatusFailed    = "failed"
)
