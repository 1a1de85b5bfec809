package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds all worker configuration.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"local"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	Database   DatabaseConfig
	Extraction ExtractionConfig
	Embeddings EmbeddingsConfig
	LLM        LLMConfig
	Otel       OtelConfig
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User         string        `env:"POSTGRES_USER" envDefault:"emergent"`
	Password     string        `env:"POSTGRES_PASSWORD" envDefault:""`
	Database     string        `env:"POSTGRES_DB" envDefault:"emergent"`
	SSLMode      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// ExtractionConfig holds extraction worker and pipeline settings.
type ExtractionConfig struct {
	// WorkerEnabled gates the polling loop entirely.
	WorkerEnabled bool `env:"EXTRACTION_WORKER_ENABLED" envDefault:"true"`
	// WorkerPollIntervalMs is the polling interval in milliseconds.
	WorkerPollIntervalMs int `env:"EXTRACTION_WORKER_POLL_INTERVAL_MS" envDefault:"5000"`
	// WorkerBatchSize is the max number of jobs dequeued per tick.
	WorkerBatchSize int `env:"EXTRACTION_WORKER_BATCH_SIZE" envDefault:"5"`
	// MaxRetries is the max number of attempts per job.
	MaxRetries int `env:"EXTRACTION_MAX_RETRIES" envDefault:"3"`
	// OrphanThresholdMinutes is how long a running job may go without an
	// update before startup recovery resets it to queued.
	OrphanThresholdMinutes int `env:"EXTRACTION_ORPHAN_THRESHOLD_MINUTES" envDefault:"5"`

	// Server-default confidence bands. Jobs and projects may override.
	ConfidenceThresholdMin    float64 `env:"EXTRACTION_CONFIDENCE_THRESHOLD_MIN" envDefault:"0.4"`
	ConfidenceThresholdReview float64 `env:"EXTRACTION_CONFIDENCE_THRESHOLD_REVIEW" envDefault:"0.5"`
	ConfidenceThresholdAuto   float64 `env:"EXTRACTION_CONFIDENCE_THRESHOLD_AUTO" envDefault:"0.8"`

	// EntityLinkingStrategy is key_match, vector_similarity or always_new.
	EntityLinkingStrategy string `env:"EXTRACTION_ENTITY_LINKING_STRATEGY" envDefault:"key_match"`
	// EntitySimilarityThreshold is the default max vector distance for linking.
	EntitySimilarityThreshold float64 `env:"EXTRACTION_ENTITY_SIMILARITY_THRESHOLD" envDefault:"0.5"`

	// DefaultTemplatePackID is auto-installed for projects with no active packs.
	DefaultTemplatePackID string `env:"EXTRACTION_DEFAULT_TEMPLATE_PACK_ID" envDefault:""`
	// BasePrompt is the server-default base prompt, overridden by the settings store.
	BasePrompt string `env:"EXTRACTION_BASE_PROMPT" envDefault:""`

	// VerificationEnabled gates the post-hoc verification stage.
	VerificationEnabled bool `env:"EXTRACTION_VERIFICATION_ENABLED" envDefault:"false"`
	// VerifierURL is the external verifier endpoint.
	VerifierURL string `env:"EXTRACTION_VERIFIER_URL" envDefault:""`

	// TokensPerMinute is the process-local LLM token budget.
	TokensPerMinute int `env:"EXTRACTION_TOKENS_PER_MINUTE" envDefault:"120000"`
	// RateLimitWaitMs is the max wait for token capacity before failing rate-limited.
	RateLimitWaitMs int `env:"EXTRACTION_RATE_LIMIT_WAIT_MS" envDefault:"30000"`

	// ContextEntityLimit bounds the existing-entity context per type.
	ContextEntityLimit int `env:"EXTRACTION_CONTEXT_ENTITY_LIMIT" envDefault:"30"`
}

// PollInterval returns the polling interval as a Duration.
func (e *ExtractionConfig) PollInterval() time.Duration {
	return time.Duration(e.WorkerPollIntervalMs) * time.Millisecond
}

// RateLimitWait returns the capacity wait bound as a Duration.
func (e *ExtractionConfig) RateLimitWait() time.Duration {
	return time.Duration(e.RateLimitWaitMs) * time.Millisecond
}

// EmbeddingsConfig holds embedding service configuration.
type EmbeddingsConfig struct {
	// Enabled gates on-demand chunk embedding generation.
	Enabled bool `env:"EMBEDDINGS_ENABLED" envDefault:"false"`
	// GoogleAPIKey authenticates the Gemini embeddings API.
	GoogleAPIKey string `env:"GOOGLE_API_KEY" envDefault:""`
	// Model is the embedding model name.
	Model string `env:"EMBEDDINGS_MODEL" envDefault:"text-embedding-004"`
	// Dimension is the embedding vector dimension.
	Dimension int `env:"EMBEDDINGS_DIMENSION" envDefault:"768"`
}

// IsEnabled returns true when embeddings are both enabled and configured.
func (e *EmbeddingsConfig) IsEnabled() bool {
	return e.Enabled && e.GoogleAPIKey != ""
}

// LLMConfig holds extraction model configuration.
type LLMConfig struct {
	// Provider selects the extraction provider implementation.
	Provider string `env:"LLM_PROVIDER" envDefault:"gemini"`
	// GoogleAPIKey authenticates the Gemini API.
	GoogleAPIKey string `env:"GOOGLE_API_KEY" envDefault:""`
	// Model is the extraction model name.
	Model string `env:"LLM_MODEL" envDefault:"gemini-2.0-flash"`
	// ExtractionMethod is function_calling or response_schema.
	ExtractionMethod string `env:"LLM_EXTRACTION_METHOD" envDefault:"response_schema"`
	// TimeoutSeconds is the default per-call timeout.
	TimeoutSeconds int `env:"LLM_TIMEOUT_SECONDS" envDefault:"120"`
	// BatchSizeChars splits documents into character-bounded batches; 0 disables batching.
	BatchSizeChars int `env:"LLM_BATCH_SIZE_CHARS" envDefault:"0"`
}

// Timeout returns the default LLM call timeout as a Duration.
func (l *LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// NewConfig parses configuration from the environment.
func NewConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
