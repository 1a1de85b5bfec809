package extraction

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/emergent-company/emergent.strategy-sub002/internal/config"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/logger"
)

// Correction factor bounds for the estimate-vs-actual reconciliation.
const (
	correctionAlpha = 0.2
	correctionMin   = 0.5
	correctionMax   = 3.0
)

// RateLimiter is a process-local token-budget limiter protecting the LLM
// provider. Estimates are corrected over time by comparing them against
// reported actual usage.
type RateLimiter struct {
	limiter *rate.Limiter
	budget  int
	log     *slog.Logger

	mu         sync.Mutex
	correction float64
}

// NewRateLimiter creates a limiter with the configured tokens-per-minute
// budget.
func NewRateLimiter(cfg *config.Config, log *slog.Logger) *RateLimiter {
	budget := cfg.Extraction.TokensPerMinute
	if budget <= 0 {
		budget = 120000
	}
	return &RateLimiter{
		limiter:    rate.NewLimiter(rate.Limit(float64(budget)/60.0), budget),
		budget:     budget,
		log:        log.With(logger.Scope("extraction.ratelimit")),
		correction: 1.0,
	}
}

// EstimateTokens approximates the token cost of a call: characters divided by
// four, plus a 30% response buffer.
func EstimateTokens(documentLen, promptLen int) int {
	return int(math.Ceil(float64(documentLen+promptLen) / 4.0 * 1.3))
}

// WaitForCapacity blocks until the corrected estimate fits the budget, up to
// timeout. Returns false when capacity was not granted in time. Estimates
// exceeding the whole budget are clamped so a single oversized job cannot
// starve forever.
func (r *RateLimiter) WaitForCapacity(ctx context.Context, estimatedTokens int, timeout time.Duration) bool {
	tokens := r.correctedEstimate(estimatedTokens)
	if tokens > r.budget {
		tokens = r.budget
	}
	if tokens <= 0 {
		return true
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := r.limiter.WaitN(waitCtx, tokens); err != nil {
		r.log.Warn("token budget not granted in time",
			slog.Int("estimated_tokens", estimatedTokens),
			slog.Int("corrected_tokens", tokens),
			slog.Duration("timeout", timeout),
		)
		return false
	}
	return true
}

// ReportActualUsage reconciles an estimate against observed consumption via
// an exponentially-weighted correction factor, clamped to [0.5, 3.0].
func (r *RateLimiter) ReportActualUsage(estimated, actual int) {
	if estimated <= 0 || actual <= 0 {
		return
	}

	ratio := float64(actual) / float64(estimated)

	r.mu.Lock()
	r.correction = (1-correctionAlpha)*r.correction + correctionAlpha*ratio
	if r.correction < correctionMin {
		r.correction = correctionMin
	}
	if r.correction > correctionMax {
		r.correction = correctionMax
	}
	factor := r.correction
	r.mu.Unlock()

	r.log.Debug("reconciled token usage",
		slog.Int("estimated", estimated),
		slog.Int("actual", actual),
		slog.Float64("correction_factor", factor),
	)
}

// RateLimiterStatus reports the limiter's current state.
type RateLimiterStatus struct {
	TokensPerMinute  int     `json:"tokens_per_minute"`
	AvailableTokens  float64 `json:"available_tokens"`
	CorrectionFactor float64 `json:"correction_factor"`
}

// GetStatus returns remaining budget and the current correction factor.
func (r *RateLimiter) GetStatus() RateLimiterStatus {
	r.mu.Lock()
	factor := r.correction
	r.mu.Unlock()

	return RateLimiterStatus{
		TokensPerMinute:  r.budget,
		AvailableTokens:  r.limiter.Tokens(),
		CorrectionFactor: factor,
	}
}

func (r *RateLimiter) correctedEstimate(estimated int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(math.Ceil(float64(estimated) * r.correction))
}
