package worker

import (
	"fmt"
	"log/slog"
	"time"

	"planet-cf/internal/pkg/config"
)

// WorkerConfig holds the operational configuration for the worker binary:
// the cron schedule driving feed enqueueing, the consumer pool size, and
// the ports of the sidecar HTTP servers.
//
// Configuration sources:
//   - Environment variables (loaded via LoadConfigFromEnv)
//   - Default values (provided by DefaultConfig)
//
// All fields have sensible defaults and validation rules so the worker can
// operate safely even with invalid or missing configuration.
//
// Example usage:
//
//	// Use defaults
//	config := DefaultConfig()
//
//	// Load from environment with fallback
//	config, err := LoadConfigFromEnv(logger, metrics)
//	if err != nil {
//	    // This should never happen with fail-open strategy
//	    log.Fatal("Unexpected configuration error: %v", err)
//	}
type WorkerConfig struct {
	// CronSchedule is the cron expression for the feed scheduling tick.
	// Format: "minute hour day month weekday"
	// Example: "0 * * * *" (top of every hour)
	// Validation: Must be a valid cron expression (5 fields)
	// Default: "0 * * * *"
	CronSchedule string

	// Timezone is the IANA timezone name for cron scheduling.
	// Example: "UTC", "Asia/Tokyo", "America/New_York"
	// Validation: Must be a valid IANA timezone name
	// Default: "UTC"
	Timezone string

	// Concurrency is the number of queue consumer goroutines. Each
	// consumer fetches and stores one feed at a time, so this bounds the
	// number of simultaneous outbound HTTP requests.
	// Range: 1-32
	// Default: 4
	Concurrency int

	// TickTimeout is the wall-clock budget for one scheduling tick
	// (enqueue due feeds plus the retention sweep). After this timeout
	// the tick is cancelled and the next tick starts fresh.
	// Must be positive (> 0)
	// Default: 10 minutes
	TickTimeout time.Duration

	// HealthPort is the port number for the health check HTTP server.
	// Range: 1024-65535 (avoid privileged ports)
	// Default: 9091
	HealthPort int
}

// DefaultConfig returns a WorkerConfig with sensible default values.
// These defaults are optimized for:
//   - Typical usage: hourly scheduling tick, UTC
//   - Politeness: 4 concurrent fetchers keeps outbound load modest
//   - Safety: 10-minute tick budget prevents stuck sweeps
//   - Standard ports: 9091 for health checks
//
// Returns:
//   - WorkerConfig with production-ready default values
//
// Example:
//
//	config := DefaultConfig()
//	config.CronSchedule = "*/30 * * * *"  // Customize to run every 30 minutes
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		CronSchedule: "0 * * * *",       // Top of every hour
		Timezone:     "UTC",             // Aggregation is date-grouped in UTC by default
		Concurrency:  4,                 // 4 concurrent feed fetches
		TickTimeout:  10 * time.Minute,  // 10 minutes
		HealthPort:   9091,              // Standard exporter sidecar port
	}
}

// Validate checks if the configuration values are valid.
// This method validates each field using the reusable validators from
// internal/pkg/config. If multiple fields are invalid, all errors are
// collected and returned together.
//
// Validation rules:
//   - CronSchedule: Must be a valid cron expression (validated by robfig/cron parser)
//   - Timezone: Must be a valid IANA timezone name (validated by time.LoadLocation)
//   - Concurrency: Must be between 1 and 32 (inclusive)
//   - TickTimeout: Must be positive (> 0)
//   - HealthPort: Must be between 1024 and 65535 (avoid privileged ports)
//
// Returns:
//   - error: nil if configuration is valid, aggregated error if any validation fails
func (c *WorkerConfig) Validate() error {
	var errors []error

	// Validate CronSchedule
	if err := config.ValidateCronSchedule(c.CronSchedule); err != nil {
		errors = append(errors, fmt.Errorf("cron schedule: %w", err))
	}

	// Validate Timezone
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errors = append(errors, fmt.Errorf("timezone: %w", err))
	}

	// Validate Concurrency (range: 1-32)
	if err := config.ValidateIntRange(c.Concurrency, 1, 32); err != nil {
		errors = append(errors, fmt.Errorf("concurrency: %w", err))
	}

	// Validate TickTimeout (must be positive)
	if err := config.ValidatePositiveDuration(c.TickTimeout); err != nil {
		errors = append(errors, fmt.Errorf("tick timeout: %w", err))
	}

	// Validate HealthPort (range: 1024-65535)
	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errors = append(errors, fmt.Errorf("health port: %w", err))
	}

	// Return aggregated errors
	if len(errors) > 0 {
		return fmt.Errorf("validation failed: %v", errors)
	}

	return nil
}

// LoadConfigFromEnv loads worker configuration from environment variables
// with validation and automatic fallback to default values on failure.
//
// This function implements the fail-open strategy:
//  1. Start with DefaultConfig() as base
//  2. Load each field from environment variables
//  3. Validate each loaded value
//  4. If validation fails: use default value, log warning, increment metrics
//  5. Never return error - always return a valid configuration
//
// Environment variables:
//   - CRON_SCHEDULE: Cron expression (default: "0 * * * *")
//   - WORKER_TIMEZONE: IANA timezone name (default: "UTC")
//   - WORKER_CONCURRENCY: Integer 1-32 (default: 4)
//   - WORKER_TICK_TIMEOUT: Duration string, e.g., "10m" (default: 10 minutes)
//   - WORKER_HEALTH_PORT: Integer 1024-65535 (default: 9091)
//
// Metrics updated:
//   - ValidationErrorsTotal: Incremented for each validation failure
//   - FallbacksTotal: Incremented for each fallback applied
//   - FallbackActive: Set to 1 if any fallback is active, 0 otherwise
//   - LoadTimestamp: Set to current time after successful load
//
// Parameters:
//   - logger: Structured logger for warnings
//   - metrics: Metrics instance for tracking fallbacks
//
// Returns:
//   - *WorkerConfig: Valid configuration (never nil)
//   - error: Always nil (fail-open strategy)
//
// Example:
//
//	logger := slog.Default()
//	metrics := NewWorkerMetrics()
//	config, _ := LoadConfigFromEnv(logger, metrics)
//	// config is always valid and ready to use
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	// Start with default config
	cfg := DefaultConfig()
	fallbackApplied := false

	// Load CronSchedule
	result := config.LoadEnvWithFallback("CRON_SCHEDULE", cfg.CronSchedule, config.ValidateCronSchedule)
	cfg.CronSchedule = result.Value.(string)
	if result.FallbackApplied {
		fallbackApplied = true
		metrics.RecordValidationError("cron_schedule")
		metrics.RecordFallback("cron_schedule")
		for _, warning := range result.Warnings {
			logger.Warn("Configuration fallback applied",
				slog.String("field", "CronSchedule"),
				slog.String("warning", warning))
		}
	}

	// Load Timezone
	result = config.LoadEnvWithFallback("WORKER_TIMEZONE", cfg.Timezone, config.ValidateTimezone)
	cfg.Timezone = result.Value.(string)
	if result.FallbackApplied {
		fallbackApplied = true
		metrics.RecordValidationError("timezone")
		metrics.RecordFallback("timezone")
		for _, warning := range result.Warnings {
			logger.Warn("Configuration fallback applied",
				slog.String("field", "Timezone"),
				slog.String("warning", warning))
		}
	}

	// Load Concurrency
	result = config.LoadEnvInt("WORKER_CONCURRENCY", cfg.Concurrency, func(v int) error {
		return config.ValidateIntRange(v, 1, 32)
	})
	cfg.Concurrency = result.Value.(int)
	if result.FallbackApplied {
		fallbackApplied = true
		metrics.RecordValidationError("concurrency")
		metrics.RecordFallback("concurrency")
		for _, warning := range result.Warnings {
			logger.Warn("Configuration fallback applied",
				slog.String("field", "Concurrency"),
				slog.String("warning", warning))
		}
	}

	// Load TickTimeout (with 30s-2h range limit)
	result = config.LoadEnvDuration("WORKER_TICK_TIMEOUT", cfg.TickTimeout, func(d time.Duration) error {
		return config.ValidateDuration(d, 30*time.Second, 2*time.Hour)
	})
	cfg.TickTimeout = result.Value.(time.Duration)
	if result.FallbackApplied {
		fallbackApplied = true
		metrics.RecordValidationError("tick_timeout")
		metrics.RecordFallback("tick_timeout")
		for _, warning := range result.Warnings {
			logger.Warn("Configuration fallback applied",
				slog.String("field", "TickTimeout"),
				slog.String("warning", warning))
		}
	}

	// Load HealthPort
	result = config.LoadEnvInt("WORKER_HEALTH_PORT", cfg.HealthPort, func(v int) error {
		return config.ValidateIntRange(v, 1024, 65535)
	})
	cfg.HealthPort = result.Value.(int)
	if result.FallbackApplied {
		fallbackApplied = true
		metrics.RecordValidationError("health_port")
		metrics.RecordFallback("health_port")
		for _, warning := range result.Warnings {
			logger.Warn("Configuration fallback applied",
				slog.String("field", "HealthPort"),
				slog.String("warning", warning))
		}
	}

	// Update metrics
	metrics.SetFallbackActive(fallbackApplied)
	metrics.RecordLoadTimestamp()

	// Always return valid config (fail-open strategy)
	return &cfg, nil
}
