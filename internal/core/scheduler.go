package core

// scheduler.go runs the subscription expiry job in the background.
//
// Each pass deactivates subscriptions whose expiry has passed and revokes
// the group memberships they granted. A failed pass is logged and retried
// on the next tick; it never stops the scheduler.

import (
	"context"
	"log/slog"
	"time"
)

// Expirer deactivates subscriptions that expired at or before now.
type Expirer interface {
	ExpireSubscriptions(ctx context.Context, now time.Time) (int, error)
}

// ExpiryConfig holds configuration for the expiry scheduler.
type ExpiryConfig struct {
	Interval time.Duration    // How often to run (default: 5m)
	Now      func() time.Time // Clock, time.Now when nil
}

const defaultExpiryInterval = 5 * time.Minute

// StartExpiryScheduler runs one expiry pass immediately and then every
// Interval until ctx is cancelled. It blocks, so callers run it in its own
// goroutine.
func StartExpiryScheduler(ctx context.Context, expirer Expirer, cfg ExpiryConfig, logger *slog.Logger) {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultExpiryInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger = logger.With("component", "expiry_scheduler")
	logger.Info("expiry scheduler started", "interval", cfg.Interval)

	// Run immediately on startup
	runExpiryJob(ctx, expirer, cfg.Now, logger)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("expiry scheduler stopped")
			return
		case <-ticker.C:
			runExpiryJob(ctx, expirer, cfg.Now, logger)
		}
	}
}

// runExpiryJob performs one expiry pass.
func runExpiryJob(ctx context.Context, expirer Expirer, now func() time.Time, logger *slog.Logger) {
	start := time.Now()

	n, err := expirer.ExpireSubscriptions(ctx, now())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Error("expiry job failed", "error", err)
		return
	}

	if n > 0 {
		logger.Info("expiry job completed",
			"subscriptions_expired", n,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return
	}
	logger.Debug("expiry job completed", "duration_ms", time.Since(start).Milliseconds())
}
