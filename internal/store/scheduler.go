package store

// scheduler.go runs the periodic retention job that purges finished audit
// jobs past the configured retention window. It is long-running and
// context-aware for graceful shutdown; a failed purge cycle is logged and
// retried on the next tick instead of failing the application.

import (
	"context"
	"log/slog"
	"time"
)

// RetentionConfig holds configuration for the cleanup scheduler.
type RetentionConfig struct {
	RetentionDays   int           // Days to keep finished jobs (default: 90)
	CleanupInterval time.Duration // How often to run (default: 24h)
}

// StartCleanupScheduler starts a background goroutine that periodically
// purges expired jobs. It runs immediately on start, then every
// CleanupInterval, and stops when the context is cancelled.
func (s *Store) StartCleanupScheduler(ctx context.Context, cfg RetentionConfig) {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 90
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 24 * time.Hour
	}

	slog.Info("job cleanup scheduler started",
		"retention_days", cfg.RetentionDays,
		"interval", cfg.CleanupInterval,
	)

	s.runCleanup(ctx, cfg.RetentionDays)

	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("job cleanup scheduler stopped")
			return
		case <-ticker.C:
			s.runCleanup(ctx, cfg.RetentionDays)
		}
	}
}

func (s *Store) runCleanup(ctx context.Context, retentionDays int) {
	start := time.Now()
	purged, err := s.PurgeExpired(ctx, retentionDays)
	if err != nil {
		slog.Error("job purge failed", "error", err)
		return
	}
	slog.Info("purged expired audit jobs",
		"jobs_purged", purged,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
