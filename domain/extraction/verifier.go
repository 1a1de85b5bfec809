package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/emergent-company/emergent.strategy-sub002/internal/config"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/apperror"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/llm"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/logger"
)

// VerifierService calls an external post-hoc verification endpoint. All
// failures are non-fatal: the pipeline proceeds without adjustments.
type VerifierService struct {
	url     string
	enabled bool
	client  *http.Client
	log     *slog.Logger
}

// NewVerifierService creates the verifier client from configuration.
func NewVerifierService(cfg *config.Config, log *slog.Logger) *VerifierService {
	return &VerifierService{
		url:     cfg.Extraction.VerifierURL,
		enabled: cfg.Extraction.VerificationEnabled && cfg.Extraction.VerifierURL != "",
		client:  &http.Client{Timeout: 60 * time.Second},
		log:     log.With(logger.Scope("extraction.verifier")),
	}
}

// Enabled reports whether verification is configured and switched on.
func (v *VerifierService) Enabled() bool {
	return v.enabled
}

// VerifyEntity is one entity submitted for verification. ID carries the
// entity name so results can be matched back.
type VerifyEntity struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

// VerifyBatchRequest is the verifier call payload.
type VerifyBatchRequest struct {
	SourceText string         `json:"sourceText"`
	Entities   []VerifyEntity `json:"entities"`
	JobID      string         `json:"jobId,omitempty"`
}

// VerificationResult is the verifier's per-entity verdict.
type VerificationResult struct {
	EntityName             string  `json:"entityName"`
	EntityVerified         bool    `json:"entityVerified"`
	OverallConfidence      float64 `json:"overallConfidence"`
	EntityVerificationTier int     `json:"entityVerificationTier"`
}

// VerifyBatchResponse is the verifier call result.
type VerifyBatchResponse struct {
	Results          []VerificationResult `json:"results"`
	Summary          map[string]any       `json:"summary,omitempty"`
	ProcessingTimeMs int64                `json:"processingTimeMs,omitempty"`
}

// VerifyBatch submits the extracted entities with their source text and
// returns per-entity verdicts.
func (v *VerifierService) VerifyBatch(ctx context.Context, req VerifyBatchRequest) (*VerifyBatchResponse, error) {
	if !v.enabled {
		return nil, apperror.New(apperror.KindVerification, "verifier not configured")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperror.New(apperror.KindVerification, "encode verify request").WithInternal(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return nil, apperror.New(apperror.KindVerification, "build verify request").WithInternal(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(httpReq)
	if err != nil {
		return nil, apperror.New(apperror.KindVerification, "verifier unreachable").WithInternal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperror.Newf(apperror.KindVerification, "verifier returned status %d", resp.StatusCode)
	}

	var out VerifyBatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperror.New(apperror.KindVerification, "decode verify response").WithInternal(err)
	}

	v.log.Debug("verification batch completed",
		slog.Int("entities", len(req.Entities)),
		slog.Int("results", len(out.Results)),
		slog.Int64("processing_time_ms", out.ProcessingTimeMs),
	)
	return &out, nil
}

// VerificationMap keys verifier results by normalized entity name.
type VerificationMap map[string]*VerificationResult

// Lookup returns the result for an entity name, or nil.
func (m VerificationMap) Lookup(name string) *VerificationResult {
	if m == nil {
		return nil
	}
	return m[normalizeName(name)]
}

// NewVerificationMap builds a name-keyed lookup from a verify response.
func NewVerificationMap(resp *VerifyBatchResponse) VerificationMap {
	if resp == nil {
		return nil
	}
	m := make(VerificationMap, len(resp.Results))
	for i := range resp.Results {
		r := &resp.Results[i]
		m[normalizeName(r.EntityName)] = r
	}
	return m
}

// verifyEntities converts candidates to the verifier payload shape.
func verifyEntities(candidates []llm.CandidateEntity) []VerifyEntity {
	out := make([]VerifyEntity, 0, len(candidates))
	for _, c := range candidates {
		props := make(map[string]any, len(c.Properties))
		for k, val := range c.Properties {
			if strings.HasPrefix(k, "_") {
				continue
			}
			props[k] = val
		}
		out = append(out, VerifyEntity{
			ID:         c.Name,
			Name:       c.Name,
			Type:       c.TypeName,
			Properties: props,
		})
	}
	return out
}

func fmtVerifierSummary(resp *VerifyBatchResponse) string {
	verified := 0
	for _, r := range resp.Results {
		if r.EntityVerified {
			verified++
		}
	}
	return fmt.Sprintf("%d/%d entities verified", verified, len(resp.Results))
}
