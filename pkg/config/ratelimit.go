package config

import (
	"log/slog"
	"time"
)

// RateLimitConfig holds the settings for the per-IP sliding window rate
// limiter guarding the public API.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is applied at all.
	Enabled bool

	// Limit is the number of requests one client IP may make per Window.
	Limit int

	// Window is the sliding window length.
	Window time.Duration
}

// LoadRateLimitConfig reads the rate limiter settings from the
// environment:
//
//   - RATELIMIT_ENABLED: apply rate limiting (default: true)
//   - RATELIMIT_IP_LIMIT: requests per window per client IP (default: 100)
//   - RATELIMIT_IP_WINDOW: window length (default: 1m)
//
// Invalid values are logged and replaced with the defaults.
func LoadRateLimitConfig() *RateLimitConfig {
	config := &RateLimitConfig{}

	config.Enabled = GetEnvBool("RATELIMIT_ENABLED", true)

	limit := GetEnvInt("RATELIMIT_IP_LIMIT", 100)
	if limit <= 0 {
		slog.Warn("invalid RATELIMIT_IP_LIMIT, using default",
			slog.Int("value", limit),
			slog.Int("default", 100))
		limit = 100
	}
	config.Limit = limit

	window := GetEnvDuration("RATELIMIT_IP_WINDOW", 1*time.Minute)
	if err := ValidatePositiveDuration(window); err != nil {
		slog.Warn("invalid RATELIMIT_IP_WINDOW, using default",
			slog.String("value", window.String()),
			slog.String("default", "1m"),
			slog.String("error", err.Error()))
		window = 1 * time.Minute
	}
	config.Window = window

	return config
}

// CSPConfig controls the Content Security Policy headers on the HTML
// pages.
type CSPConfig struct {
	// Enabled controls whether CSP headers are applied.
	Enabled bool

	// ReportOnly sends Content-Security-Policy-Report-Only instead of
	// Content-Security-Policy: violations are logged by the browser but
	// not enforced.
	ReportOnly bool
}

// LoadCSPConfig reads the CSP settings from the environment:
//
//   - CSP_ENABLED: send CSP headers (default: true)
//   - CSP_REPORT_ONLY: use report-only mode (default: false)
func LoadCSPConfig() *CSPConfig {
	return &CSPConfig{
		Enabled:    GetEnvBool("CSP_ENABLED", true),
		ReportOnly: GetEnvBool("CSP_REPORT_ONLY", false),
	}
}
