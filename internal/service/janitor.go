package service

import (
	"context"
	"log/slog"
	"time"
)

// DefaultCleanupInterval is how often the janitor runs when unset.
const DefaultCleanupInterval = time.Hour

// Cleaner removes expired session and revocation rows.
type Cleaner interface {
	CleanupExpiredTokens(ctx context.Context) (CleanupResult, error)
}

// Janitor runs a Cleaner on a fixed interval until its context ends.
type Janitor struct {
	cleaner  Cleaner
	interval time.Duration
	logger   *slog.Logger
}

// NewJanitor creates a janitor. A non-positive interval uses the default.
func NewJanitor(cleaner Cleaner, interval time.Duration, logger *slog.Logger) *Janitor {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	return &Janitor{cleaner: cleaner, interval: interval, logger: logger}
}

// Run blocks, cleaning once per interval. Failures are logged and retried
// on the next tick.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("token janitor started", slog.Duration("interval", j.interval))
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("token janitor stopped")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *Janitor) runOnce(ctx context.Context) {
	if _, err := j.cleaner.CleanupExpiredTokens(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		j.logger.ErrorContext(ctx, "token cleanup failed", slog.String("error", err.Error()))
	}
}
