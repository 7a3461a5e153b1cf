package http

import (
	"context"
	"log/slog"
	"time"

	"planet-cf/pkg/config"
)

// DefaultCleanupInterval is how often the background sweep runs when
// RATELIMIT_CLEANUP_INTERVAL is not set.
const DefaultCleanupInterval = 5 * time.Minute

// CleanupConfig holds the knobs for the background rate limiter sweep.
type CleanupConfig struct {
	Interval time.Duration
}

// LoadCleanupConfigFromEnv reads RATELIMIT_CLEANUP_INTERVAL ("5m",
// "10m"). A missing or unparseable value selects the default.
func LoadCleanupConfigFromEnv() CleanupConfig {
	return CleanupConfig{
		Interval: config.GetEnvDuration("RATELIMIT_CLEANUP_INTERVAL", DefaultCleanupInterval),
	}
}

// StartRateLimitCleanup sweeps long-idle client IPs out of the rate
// limiter until ctx is cancelled. The limiter also sweeps while serving
// requests; this loop covers quiet periods when no request arrives to
// trigger one. Run it in its own goroutine.
func StartRateLimitCleanup(ctx context.Context, limiter *RateLimiter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("rate limit cleanup started", slog.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			slog.Info("rate limit cleanup stopped")
			return
		case <-ticker.C:
			limiter.CleanupExpired()
		}
	}
}
