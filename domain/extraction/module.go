package extraction

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/emergent-company/emergent.strategy-sub002/internal/config"
)

// Module provides the extraction fx.Module: job store, rate limiter, step
// logger, verifier, orchestrator and the polling coordinator.
var Module = fx.Module("extraction",
	fx.Provide(
		NewJobStore,
		NewRateLimiter,
		NewStructuredLogger,
		NewVerifierService,
		NewOrchestrator,
		NewJobCoordinator,
	),
	fx.Invoke(registerWorkerLifecycle),
)

// registerWorkerLifecycle starts the coordinator with the app and stops it
// gracefully, waiting for the in-flight batch.
func registerWorkerLifecycle(lc fx.Lifecycle, cfg *config.Config, coordinator *JobCoordinator, log *slog.Logger) {
	if !cfg.Extraction.WorkerEnabled {
		log.Info("extraction worker disabled (EXTRACTION_WORKER_ENABLED=false)")
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return coordinator.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return coordinator.Stop(ctx)
		},
	})
}
