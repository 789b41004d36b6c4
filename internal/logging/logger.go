// Package logging configures log/slog and derives request-scoped loggers
// that carry the chi request id, so every line of a single import can be
// correlated.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Setup installs the process-wide default logger.
// Level is one of debug/info/warn/error; format is text or json.
// Unknown values fall back to info and text.
func Setup(level, format string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var h slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// FromContext returns the default logger, enriched with the chi request
// id when the context carries one.
func FromContext(ctx context.Context) *slog.Logger {
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		return slog.Default().With("request_id", reqID)
	}
	return slog.Default()
}

// WithFields returns a request-scoped logger with extra key/value pairs,
// for multi-step operations that log a consistent set of fields:
//
//	log := logging.WithFields(ctx, "snapshot_id", snap.ID, "mode", batch.Mode)
//	log.Info("apply started")
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
