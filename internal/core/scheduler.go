package core

// scheduler.go provides the background retention sweep for old snapshots.
//
// The core never expires snapshots on its own; retention is an external
// policy. The sweep implements that policy for deployments that opt in:
// it periodically deletes snapshots older than the configured horizon.
// It is long-running and context-aware for graceful shutdown, and logs
// failures without taking the application down.

import (
	"context"
	"log/slog"
	"time"
)

// RetentionConfig holds configuration for the snapshot retention sweep.
type RetentionConfig struct {
	// RetentionDays is how long snapshots are kept. Zero or negative
	// disables the sweep entirely.
	RetentionDays int

	// CheckInterval is how often the sweep runs (default: 24h).
	CheckInterval time.Duration
}

// StartRetentionSweep runs the snapshot retention sweep until the context
// is cancelled. It runs once immediately, then every CheckInterval.
func (s *Service) StartRetentionSweep(ctx context.Context, cfg RetentionConfig) {
	if cfg.RetentionDays <= 0 {
		slog.Info("snapshot retention sweep disabled")
		return
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 24 * time.Hour
	}

	slog.Info("snapshot retention sweep started",
		"retention_days", cfg.RetentionDays,
		"check_interval", cfg.CheckInterval,
	)

	s.runRetentionSweep(ctx, cfg)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("snapshot retention sweep stopped")
			return
		case <-ticker.C:
			s.runRetentionSweep(ctx, cfg)
		}
	}
}

// runRetentionSweep performs one deletion cycle.
func (s *Service) runRetentionSweep(ctx context.Context, cfg RetentionConfig) {
	deleted, err := s.DeleteAllSnapshots(ctx, cfg.RetentionDays)
	if err != nil {
		slog.Error("snapshot retention sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("snapshot retention sweep completed",
			"deleted", deleted,
			"retention_days", cfg.RetentionDays,
		)
	}
}
