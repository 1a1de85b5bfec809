// Package main is the extraction worker entry point: a headless process that
// polls the job queue and runs the extraction pipeline.
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/emergent-company/emergent.strategy-sub002/domain/chunks"
	"github.com/emergent-company/emergent.strategy-sub002/domain/documents"
	"github.com/emergent-company/emergent.strategy-sub002/domain/extraction"
	"github.com/emergent-company/emergent.strategy-sub002/domain/graph"
	"github.com/emergent-company/emergent.strategy-sub002/domain/notifications"
	"github.com/emergent-company/emergent.strategy-sub002/domain/projects"
	"github.com/emergent-company/emergent.strategy-sub002/domain/templatepacks"
	"github.com/emergent-company/emergent.strategy-sub002/domain/tracing"
	"github.com/emergent-company/emergent.strategy-sub002/internal/config"
	"github.com/emergent-company/emergent.strategy-sub002/internal/database"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/embeddings"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/llm/gemini"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/logger"
)

func main() {
	// Load .env files if present (for local development). Load() won't
	// overwrite existing vars, Overload() will.
	_ = godotenv.Load("../../.env")
	_ = godotenv.Overload("../../.env.local")

	fx.New(
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		database.Module,
		tracing.Module,

		// Model backends
		embeddings.Module,
		gemini.Module,

		// Domain modules
		projects.Module,
		documents.Module,
		chunks.Module,
		graph.Module,
		templatepacks.Module,
		notifications.Module,

		// The extraction pipeline and its polling worker
		extraction.Module,
	).Run()
}
