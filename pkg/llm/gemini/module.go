package gemini

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/emergent-company/emergent.strategy-sub002/internal/config"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/llm"
)

// Module provides the Gemini-backed llm.Provider.
var Module = fx.Module("llm.gemini",
	fx.Provide(NewFromConfig),
)

// NewFromConfig builds the provider from application configuration.
func NewFromConfig(cfg *config.Config, log *slog.Logger) (llm.Provider, error) {
	return New(context.Background(), Config{
		APIKey:  cfg.LLM.GoogleAPIKey,
		Model:   cfg.LLM.Model,
		Method:  cfg.LLM.ExtractionMethod,
		Timeout: cfg.LLM.Timeout(),
	}, log)
}
