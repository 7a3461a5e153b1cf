// Package config holds the fail-open environment loading shared by the
// binaries: a bad value never stops the process, it falls back to the
// default and hands the caller a warning to log.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ConfigLoadResult is what every loader returns: the effective value,
// the warnings produced while loading it, and whether the default had
// to stand in for a rejected one.
//
// Example:
//
//	result := LoadEnvDuration("WORKER_TICK_TIMEOUT", 10*time.Minute, ValidatePositiveDuration)
//	if result.FallbackApplied {
//	    for _, warning := range result.Warnings {
//	        logger.Warn("Configuration fallback applied", slog.String("warning", warning))
//	    }
//	}
//	timeout := result.Value.(time.Duration)
type ConfigLoadResult struct {
	Value           interface{}
	Warnings        []string
	FallbackApplied bool
}

// loaded wraps a value that came through cleanly.
func loaded(value interface{}) ConfigLoadResult {
	return ConfigLoadResult{Value: value}
}

// fallback wraps the default value together with the warning explaining
// why the environment value was rejected.
func fallback(envKey, raw string, reason error, defaultValue interface{}) ConfigLoadResult {
	warning := fmt.Sprintf(
		"Invalid %s='%s': %v, falling back to default '%v'",
		envKey, raw, reason, defaultValue,
	)
	return ConfigLoadResult{
		Value:           defaultValue,
		Warnings:        []string{warning},
		FallbackApplied: true,
	}
}

// LoadEnvWithFallback reads a string environment variable, runs it
// through the validator, and falls back to the default when the value
// does not pass. An unset or empty variable selects the default
// without a warning; only a present but broken value counts as a
// fallback.
//
// Parameters:
//   - envKey: environment variable name to read
//   - defaultValue: value used when the variable is unset or rejected
//   - validator: validation function, nil to accept anything
//
// Returns:
//   - ConfigLoadResult: the effective value plus fallback bookkeeping
//
// Example:
//
//	result := LoadEnvWithFallback("CRON_SCHEDULE", "*/20 * * * *", ValidateCronSchedule)
//	schedule := result.Value.(string)
func LoadEnvWithFallback(envKey, defaultValue string, validator func(string) error) ConfigLoadResult {
	value := os.Getenv(envKey)
	if value == "" {
		return loaded(defaultValue)
	}

	if validator != nil {
		if err := validator(value); err != nil {
			return fallback(envKey, value, err, defaultValue)
		}
	}

	return loaded(value)
}

// LoadEnvDuration reads a Go duration string ("90s", "10m", "1h30m")
// from the environment. Parse failures and validator rejections both
// fall back to the default.
//
// Example:
//
//	result := LoadEnvDuration("WORKER_TICK_TIMEOUT", 10*time.Minute, func(d time.Duration) error {
//	    return ValidateDuration(d, 30*time.Second, 2*time.Hour)
//	})
//	timeout := result.Value.(time.Duration)
func LoadEnvDuration(envKey string, defaultValue time.Duration, validator func(time.Duration) error) ConfigLoadResult {
	raw := os.Getenv(envKey)
	if raw == "" {
		return loaded(defaultValue)
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fallback(envKey, raw, errors.New("not a duration"), defaultValue)
	}

	if validator != nil {
		if err := validator(parsed); err != nil {
			return fallback(envKey, raw, err, defaultValue)
		}
	}

	return loaded(parsed)
}

// LoadEnvInt reads an integer from the environment. The whole value
// must parse as a base-10 integer; trailing garbage like "8x" is
// rejected rather than silently truncated.
//
// Example:
//
//	result := LoadEnvInt("WORKER_CONCURRENCY", 4, func(v int) error {
//	    return ValidateIntRange(v, 1, 32)
//	})
//	concurrency := result.Value.(int)
func LoadEnvInt(envKey string, defaultValue int, validator func(int) error) ConfigLoadResult {
	raw := os.Getenv(envKey)
	if raw == "" {
		return loaded(defaultValue)
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback(envKey, raw, errors.New("not an integer"), defaultValue)
	}

	if validator != nil {
		if err := validator(parsed); err != nil {
			return fallback(envKey, raw, err, defaultValue)
		}
	}

	return loaded(parsed)
}
