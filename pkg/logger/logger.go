// Package logger provides the application's slog setup and shared attribute helpers.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"go.uber.org/fx"
)

// Module provides the process logger.
var Module = fx.Module("logger",
	fx.Provide(NewLogger),
)

// Scope returns a "scope" attribute identifying the component emitting the log.
func Scope(name string) slog.Attr {
	return slog.String("scope", name)
}

// Error returns an "error" attribute for structured error logging.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// NewLogger creates the process logger. Level comes from LOG_LEVEL
// (debug|info|warn|error, default info). Local environments get a text
// handler, everything else JSON.
func NewLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if env := os.Getenv("GO_ENV"); env == "" || env == "local" || env == "development" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
