package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvString(t *testing.T) {
	t.Setenv("TEST_STRING", "custom")
	assert.Equal(t, "custom", GetEnvString("TEST_STRING", "fallback"))

	t.Setenv("TEST_STRING", "")
	assert.Equal(t, "fallback", GetEnvString("TEST_STRING", "fallback"))
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int
	}{
		{"valid", "250", 250},
		{"negative", "-5", -5},
		{"empty uses default", "", 100},
		{"non numeric uses default", "abc", 100},
		{"trailing garbage rejected", "80x", 100},
		{"float rejected", "1.5", 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT", tt.value)
			assert.Equal(t, tt.want, GetEnvInt("TEST_INT", 100))
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"true", "true", true},
		{"one", "1", true},
		{"capital T", "T", true},
		{"false", "false", false},
		{"zero", "0", false},
		{"empty uses default", "", true},
		{"yes is not a bool", "yes", true},
		{"garbage uses default", "enabled", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.value)
			assert.Equal(t, tt.want, GetEnvBool("TEST_BOOL", true))
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"seconds", "30s", 30 * time.Second},
		{"composite", "1h30m", 90 * time.Minute},
		{"empty uses default", "", time.Minute},
		{"bare number rejected", "60", time.Minute},
		{"garbage uses default", "soon", time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			assert.Equal(t, tt.want, GetEnvDuration("TEST_DURATION", time.Minute))
		})
	}
}

func TestValidatePositiveDuration(t *testing.T) {
	assert.NoError(t, ValidatePositiveDuration(time.Second))
	assert.Error(t, ValidatePositiveDuration(0))
	assert.Error(t, ValidatePositiveDuration(-time.Minute))
}

func TestLoadRateLimitConfig_Defaults(t *testing.T) {
	t.Setenv("RATELIMIT_ENABLED", "")
	t.Setenv("RATELIMIT_IP_LIMIT", "")
	t.Setenv("RATELIMIT_IP_WINDOW", "")

	cfg := LoadRateLimitConfig()

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 100, cfg.Limit)
	assert.Equal(t, time.Minute, cfg.Window)
}

func TestLoadRateLimitConfig_Overrides(t *testing.T) {
	t.Setenv("RATELIMIT_ENABLED", "false")
	t.Setenv("RATELIMIT_IP_LIMIT", "20")
	t.Setenv("RATELIMIT_IP_WINDOW", "30s")

	cfg := LoadRateLimitConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, 20, cfg.Limit)
	assert.Equal(t, 30*time.Second, cfg.Window)
}

func TestLoadRateLimitConfig_RejectsNonPositiveLimit(t *testing.T) {
	t.Setenv("RATELIMIT_IP_LIMIT", "0")
	t.Setenv("RATELIMIT_IP_WINDOW", "")

	cfg := LoadRateLimitConfig()

	assert.Equal(t, 100, cfg.Limit)
}

func TestLoadCSPConfig(t *testing.T) {
	t.Setenv("CSP_ENABLED", "")
	t.Setenv("CSP_REPORT_ONLY", "")

	cfg := LoadCSPConfig()
	assert.True(t, cfg.Enabled)
	assert.False(t, cfg.ReportOnly)

	t.Setenv("CSP_ENABLED", "false")
	t.Setenv("CSP_REPORT_ONLY", "true")

	cfg = LoadCSPConfig()
	assert.False(t, cfg.Enabled)
	assert.True(t, cfg.ReportOnly)
}
