// Package main applies database migrations. Usage:
//
//	migrate [up|down|status|version]
//
// With no argument it runs "up".
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/emergent-company/emergent.strategy-sub002/internal/config"
	"github.com/emergent-company/emergent.strategy-sub002/internal/database"
	"github.com/emergent-company/emergent.strategy-sub002/internal/migrate"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/logger"
)

func main() {
	_ = godotenv.Load("../../.env")
	_ = godotenv.Overload("../../.env.local")

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	app := fx.New(
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		logger.Module,
		config.Module,
		database.Module,
		migrate.Module,

		fx.Invoke(func(lc fx.Lifecycle, m *migrate.Migrator, log *slog.Logger, shutdowner fx.Shutdowner) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if err := run(ctx, command, m, log); err != nil {
						log.Error("migration failed", logger.Error(err))
						return shutdowner.Shutdown(fx.ExitCode(1))
					}
					return shutdowner.Shutdown()
				},
			})
		}),
	)

	app.Run()
}

func run(ctx context.Context, command string, m *migrate.Migrator, log *slog.Logger) error {
	switch command {
	case "up":
		return m.Up(ctx)
	case "down":
		return m.Down(ctx)
	case "status":
		return m.Status(ctx)
	case "version":
		version, err := m.Version(ctx)
		if err != nil {
			return err
		}
		log.Info("schema version", slog.Int64("version", version))
		return nil
	default:
		return fmt.Errorf("unknown command %q (expected up, down, status or version)", command)
	}
}
