package embeddings

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/emergent-company/emergent.strategy-sub002/internal/config"
	embgenai "github.com/emergent-company/emergent.strategy-sub002/pkg/embeddings/genai"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/logger"
)

// Module provides the embeddings fx.Module.
var Module = fx.Module("embeddings",
	fx.Provide(NewService),
)

// Service provides embedding generation with automatic client selection.
type Service struct {
	client  Client
	log     *slog.Logger
	enabled bool
}

// NewNoopService creates a service with a noop client (for testing).
func NewNoopService(log *slog.Logger) *Service {
	return &Service{client: NewNoopClient(), log: log, enabled: false}
}

// NewService creates a new embeddings service.
func NewService(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) *Service {
	log = log.With(logger.Scope("embeddings"))

	if !cfg.Embeddings.IsEnabled() {
		log.Info("embeddings service disabled")
		return &Service{client: NewNoopClient(), log: log, enabled: false}
	}

	svc := &Service{client: NewNoopClient(), log: log, enabled: false}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			client, err := embgenai.NewClient(ctx, embgenai.Config{
				APIKey: cfg.Embeddings.GoogleAPIKey,
				Model:  cfg.Embeddings.Model,
			}, embgenai.WithLogger(log))
			if err != nil {
				// Keep the noop client; extraction proceeds without embeddings.
				log.Error("failed to initialize embeddings client", logger.Error(err))
				return nil
			}
			svc.client = client
			svc.enabled = true
			log.Info("embeddings client initialized", slog.String("model", cfg.Embeddings.Model))
			return nil
		},
	})

	return svc
}

// Enabled reports whether a real embeddings backend is configured.
func (s *Service) Enabled() bool {
	return s.enabled
}

// EmbedQuery generates an embedding for a query string.
func (s *Service) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return s.client.EmbedQuery(ctx, query)
}

// EmbedDocuments generates embeddings for the given documents.
func (s *Service) EmbedDocuments(ctx context.Context, documents []string) ([][]float32, error) {
	return s.client.EmbedDocuments(ctx, documents)
}
