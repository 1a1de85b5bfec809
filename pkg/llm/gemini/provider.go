// Package gemini implements the llm.Provider interface on the Google Gemini
// API with structured output.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"github.com/emergent-company/emergent.strategy-sub002/pkg/apperror"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/llm"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/logger"
)

const (
	// DefaultModel is the default Gemini model for extraction.
	DefaultModel = "gemini-2.0-flash"

	// DefaultTimeout bounds a single model call when nothing else is configured.
	DefaultTimeout = 120 * time.Second

	// extractionToolName is the function name used for tool-call extraction.
	extractionToolName = "record_extraction"
)

// Config holds the Gemini provider configuration.
type Config struct {
	APIKey string
	Model  string
	// Method is the default extraction method (response_schema or
	// function_calling) when the call options do not override it.
	Method  string
	Timeout time.Duration
}

// Provider calls the Gemini API for structured extraction.
type Provider struct {
	client *genai.Client
	cfg    Config
	log    *slog.Logger
}

// New creates a Gemini extraction provider.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*Provider, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Method == "" {
		cfg.Method = llm.MethodResponseSchema
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	p := &Provider{cfg: cfg, log: log.With(logger.Scope("llm.gemini"))}
	if cfg.APIKey == "" {
		return p, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	p.client = client
	return p, nil
}

// Name returns "gemini".
func (p *Provider) Name() string { return "gemini" }

// IsConfigured reports whether an API client is available.
func (p *Provider) IsConfigured() bool { return p.client != nil }

// ExtractEntities splits the document into batches, runs one model call per
// batch, and merges the parsed candidates. Partial failures yield a partial
// result; an error is returned only when every call failed.
func (p *Provider) ExtractEntities(ctx context.Context, document, basePrompt string, opts llm.ExtractionOptions) (*llm.ExtractionResult, error) {
	if !p.IsConfigured() {
		return nil, apperror.New(apperror.KindConfig, "gemini provider is not configured: missing API key")
	}

	method := opts.Method
	if method == "" {
		method = p.cfg.Method
	}
	timeout := p.cfg.Timeout
	if opts.TimeoutMs > 0 {
		timeout = time.Duration(opts.TimeoutMs) * time.Millisecond
	}

	batches := llm.SplitDocumentBatches(document, opts.BatchSizeChars)
	if len(batches) == 0 {
		return nil, apperror.New(apperror.KindInput, "document is empty")
	}

	schema := llm.ExtractionResponseSchema(opts.ObjectSchemas, opts.RelationshipSchemas)

	result := &llm.ExtractionResult{
		Usage: &llm.Usage{},
		RawResponse: &llm.RawResponse{
			Provider: p.Name(),
			Model:    p.cfg.Model,
			Method:   method,
			Calls:    make([]llm.CallRecord, 0, len(batches)),
		},
	}

	for i, batch := range batches {
		prompt := llm.BuildExtractionPrompt(batch, basePrompt, opts)

		started := time.Now()
		entities, relationships, usage, err := p.generate(ctx, prompt, schema, method, timeout)
		record := llm.CallRecord{
			Status:     "success",
			Batch:      i,
			DurationMs: time.Since(started).Milliseconds(),
			Usage:      usage,
		}
		if err != nil {
			record.Status = "error"
			record.Error = err.Error()
			p.log.Warn("extraction call failed",
				slog.Int("batch", i),
				slog.String("job_id", opts.Context.JobID),
				logger.Error(err),
			)
		} else {
			result.Entities = append(result.Entities, entities...)
			result.Relationships = append(result.Relationships, relationships...)
			result.Usage.Add(usage)
		}
		result.RawResponse.Calls = append(result.RawResponse.Calls, record)

		if ctx.Err() != nil {
			break
		}
	}

	if failed := result.FailedCalls(); failed == len(result.RawResponse.Calls) {
		return nil, apperror.New(apperror.KindLLM, result.FirstCallError()).
			WithDetails(map[string]any{"failed_calls": failed})
	}

	result.DiscoveredTypes = discoverTypes(result.Entities, opts.ObjectSchemas)
	return result, nil
}

func (p *Provider) generate(ctx context.Context, prompt string, schema *genai.Schema, method string, timeout time.Duration) ([]llm.CandidateEntity, []llm.CandidateRelationship, *llm.Usage, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0.1)),
	}
	switch method {
	case llm.MethodFunctionCalling:
		config.Tools = []*genai.Tool{{
			FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name:        extractionToolName,
				Description: "Record the entities and relationships extracted from the document",
				Parameters:  schema,
			}},
		}}
		config.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode:                 genai.FunctionCallingConfigModeAny,
				AllowedFunctionNames: []string{extractionToolName},
			},
		}
	default:
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = schema
	}

	resp, err := p.client.Models.GenerateContent(callCtx, p.cfg.Model, genai.Text(prompt), config)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("generate content: %w", err)
	}

	var raw string
	if method == llm.MethodFunctionCalling {
		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			return nil, nil, usageFromResponse(resp), fmt.Errorf("no function call in response")
		}
		data, err := json.Marshal(calls[0].Args)
		if err != nil {
			return nil, nil, usageFromResponse(resp), fmt.Errorf("marshal function call args: %w", err)
		}
		raw = string(data)
	} else {
		raw = resp.Text()
	}

	entities, relationships, err := llm.ParseExtractionPayload(raw)
	if err != nil {
		return nil, nil, usageFromResponse(resp), err
	}
	return entities, relationships, usageFromResponse(resp), nil
}

func usageFromResponse(resp *genai.GenerateContentResponse) *llm.Usage {
	if resp == nil || resp.UsageMetadata == nil {
		return nil
	}
	return &llm.Usage{
		PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
		CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
	}
}

// discoverTypes returns entity types the model produced that are not in the
// effective object schemas, preserving first-seen order.
func discoverTypes(entities []llm.CandidateEntity, objectSchemas map[string]llm.ObjectSchema) []string {
	var discovered []string
	seen := make(map[string]bool)
	for _, e := range entities {
		if e.TypeName == "" || seen[e.TypeName] {
			continue
		}
		seen[e.TypeName] = true
		if _, ok := objectSchemas[e.TypeName]; !ok {
			discovered = append(discovered, e.TypeName)
		}
	}
	return discovered
}
