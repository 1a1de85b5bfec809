package extraction

import (
	"context"
	"log/slog"
	"sort"

	"github.com/emergent-company/emergent.strategy-sub002/domain/projects"
	"github.com/emergent-company/emergent.strategy-sub002/domain/templatepacks"
	"github.com/emergent-company/emergent.strategy-sub002/internal/config"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/apperror"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/llm"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/logger"
)

// CallSettings are the resolved model-call parameters for one job. Each field
// falls back job override, then project config, then server default.
type CallSettings struct {
	Method         string
	TimeoutMs      int
	BatchSizeChars int
}

// ResolveCallSettings applies the job > project > server precedence for the
// model-call parameters.
func ResolveCallSettings(overrides *JobOverrides, project *projects.Project, cfg *config.Config) CallSettings {
	settings := CallSettings{
		Method:         cfg.LLM.ExtractionMethod,
		TimeoutMs:      cfg.LLM.TimeoutSeconds * 1000,
		BatchSizeChars: cfg.LLM.BatchSizeChars,
	}

	if project != nil && project.ExtractionConfig != nil {
		pc := project.ExtractionConfig
		if pc.Method != nil && *pc.Method != "" {
			settings.Method = *pc.Method
		}
		if pc.TimeoutSeconds != nil && *pc.TimeoutSeconds > 0 {
			settings.TimeoutMs = *pc.TimeoutSeconds * 1000
		}
		if pc.BatchSizeChars != nil && *pc.BatchSizeChars > 0 {
			settings.BatchSizeChars = *pc.BatchSizeChars
		}
	}

	if overrides != nil {
		if overrides.Method != nil && *overrides.Method != "" {
			settings.Method = *overrides.Method
		}
		if overrides.TimeoutSeconds != nil && *overrides.TimeoutSeconds > 0 {
			settings.TimeoutMs = *overrides.TimeoutSeconds * 1000
		}
		if overrides.BatchSizeChars != nil && *overrides.BatchSizeChars > 0 {
			settings.BatchSizeChars = *overrides.BatchSizeChars
		}
	}

	return settings
}

// ResolveAllowedTypes narrows extraction to the job's allowed types, then the
// project's, then everything the merged schemas define (sorted for stable
// prompts).
func ResolveAllowedTypes(overrides *JobOverrides, project *projects.Project, schemas *templatepacks.ExtractionSchemas) []string {
	if overrides != nil && len(overrides.AllowedTypes) > 0 {
		return overrides.AllowedTypes
	}
	if project != nil && project.ExtractionConfig != nil && len(project.ExtractionConfig.AllowedTypes) > 0 {
		return project.ExtractionConfig.AllowedTypes
	}

	types := make([]string, 0, len(schemas.ObjectSchemas))
	for name := range schemas.ObjectSchemas {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

// ResolveBasePrompt prefers the project's base prompt over the settings-store
// one. Empty means the provider's built-in prompt applies.
func ResolveBasePrompt(project *projects.Project, storePrompt string) string {
	if project != nil && project.ExtractionConfig != nil &&
		project.ExtractionConfig.BasePrompt != nil && *project.ExtractionConfig.BasePrompt != "" {
		return *project.ExtractionConfig.BasePrompt
	}
	return storePrompt
}

// ExtractionInputs bundles everything the orchestrator needs for one job run.
type ExtractionInputs struct {
	Job        *ObjectExtractionJob
	Overrides  *JobOverrides
	Project    *projects.Project
	Schemas    *templatepacks.ExtractionSchemas
	BasePrompt string
	Existing   []llm.ExistingEntity
	ChunkTexts []string
	Tags       []string
	TraceID    string
}

// Orchestrator runs the model call for a job with fully resolved options.
type Orchestrator struct {
	provider llm.Provider
	cfg      *config.Config
	log      *slog.Logger
}

// NewOrchestrator creates an orchestrator on the configured provider.
func NewOrchestrator(provider llm.Provider, cfg *config.Config, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		provider: provider,
		cfg:      cfg,
		log:      log.With(logger.Scope("extraction.orchestrator")),
	}
}

// ProviderName reports the backing provider's name for debug envelopes.
func (o *Orchestrator) ProviderName() string {
	if o.provider == nil {
		return ""
	}
	return o.provider.Name()
}

// Options assembles the provider call options for a job.
func (o *Orchestrator) Options(in ExtractionInputs) llm.ExtractionOptions {
	settings := ResolveCallSettings(in.Overrides, in.Project, o.cfg)

	opts := llm.ExtractionOptions{
		ObjectSchemas:       in.Schemas.ObjectSchemas,
		RelationshipSchemas: in.Schemas.RelationshipSchemas,
		AllowedTypes:        ResolveAllowedTypes(in.Overrides, in.Project, in.Schemas),
		AvailableTags:       in.Tags,
		ExistingEntities:    in.Existing,
		DocumentChunks:      in.ChunkTexts,
		Method:              settings.Method,
		TimeoutMs:           settings.TimeoutMs,
		BatchSizeChars:      settings.BatchSizeChars,
		Context: llm.CallContext{
			JobID:     in.Job.ID,
			ProjectID: in.Job.ProjectID,
			TraceID:   in.TraceID,
		},
	}
	return opts
}

// PromptOverhead measures the prompt length excluding the document, for token
// estimation before the call is made.
func (o *Orchestrator) PromptOverhead(basePrompt string, opts llm.ExtractionOptions) int {
	return len(llm.BuildExtractionPrompt("", basePrompt, opts))
}

// Extract runs the model call. Provider failures are classified as LLM errors
// so the retry policy treats them as transient.
func (o *Orchestrator) Extract(ctx context.Context, document string, basePrompt string, opts llm.ExtractionOptions) (*llm.ExtractionResult, error) {
	if o.provider == nil || !o.provider.IsConfigured() {
		return nil, apperror.New(apperror.KindConfig, "no configured LLM provider")
	}

	result, err := o.provider.ExtractEntities(ctx, document, basePrompt, opts)
	if err != nil {
		return nil, apperror.New(apperror.KindLLM, "extraction call failed").WithInternal(err)
	}

	o.log.Info("extraction call completed",
		slog.String("job_id", opts.Context.JobID),
		slog.Int("entities", len(result.Entities)),
		slog.Int("relationships", len(result.Relationships)),
		slog.Int("failed_calls", result.FailedCalls()),
	)
	return result, nil
}
