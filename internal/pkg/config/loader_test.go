package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// ============================================================================
// Test Group 1: LoadEnvWithFallback
// ============================================================================

func TestLoadEnvWithFallback_WithValidValue(t *testing.T) {
	t.Setenv("TEST_CRON", "0 6 * * *")

	result := LoadEnvWithFallback("TEST_CRON", "*/20 * * * *", ValidateCronSchedule)

	assert.Equal(t, "0 6 * * *", result.Value)
	assert.Empty(t, result.Warnings)
	assert.False(t, result.FallbackApplied)
}

func TestLoadEnvWithFallback_WithoutValue(t *testing.T) {
	// Unset variable selects the default without a warning

	result := LoadEnvWithFallback("TEST_CRON", "*/20 * * * *", ValidateCronSchedule)

	assert.Equal(t, "*/20 * * * *", result.Value)
	assert.Empty(t, result.Warnings)
	assert.False(t, result.FallbackApplied)
}

func TestLoadEnvWithFallback_EmptyValue(t *testing.T) {
	t.Setenv("TEST_CRON", "")

	result := LoadEnvWithFallback("TEST_CRON", "*/20 * * * *", ValidateCronSchedule)

	assert.Equal(t, "*/20 * * * *", result.Value)
	assert.False(t, result.FallbackApplied)
}

func TestLoadEnvWithFallback_InvalidValue(t *testing.T) {
	t.Setenv("TEST_CRON", "not a schedule")

	result := LoadEnvWithFallback("TEST_CRON", "*/20 * * * *", ValidateCronSchedule)

	assert.Equal(t, "*/20 * * * *", result.Value)
	assert.True(t, result.FallbackApplied)
	assert.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "TEST_CRON")
	assert.Contains(t, result.Warnings[0], "falling back to default")
}

func TestLoadEnvWithFallback_NilValidator(t *testing.T) {
	t.Setenv("TEST_VALUE", "anything goes")

	result := LoadEnvWithFallback("TEST_VALUE", "default", nil)

	assert.Equal(t, "anything goes", result.Value)
	assert.False(t, result.FallbackApplied)
}

// ============================================================================
// Test Group 2: LoadEnvDuration
// ============================================================================

func TestLoadEnvDuration_WithValidValue(t *testing.T) {
	t.Setenv("TEST_TIMEOUT", "45m")

	result := LoadEnvDuration("TEST_TIMEOUT", 10*time.Minute, ValidatePositiveDuration)

	assert.Equal(t, 45*time.Minute, result.Value)
	assert.Empty(t, result.Warnings)
	assert.False(t, result.FallbackApplied)
}

func TestLoadEnvDuration_WithoutValue(t *testing.T) {
	result := LoadEnvDuration("TEST_TIMEOUT", 10*time.Minute, ValidatePositiveDuration)

	assert.Equal(t, 10*time.Minute, result.Value)
	assert.False(t, result.FallbackApplied)
}

func TestLoadEnvDuration_UnparseableValue(t *testing.T) {
	t.Setenv("TEST_TIMEOUT", "ten minutes")

	result := LoadEnvDuration("TEST_TIMEOUT", 10*time.Minute, ValidatePositiveDuration)

	assert.Equal(t, 10*time.Minute, result.Value)
	assert.True(t, result.FallbackApplied)
	assert.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "not a duration")
}

func TestLoadEnvDuration_BareNumberIsRejected(t *testing.T) {
	// Go duration strings need a unit; "600" is not "600s"
	t.Setenv("TEST_TIMEOUT", "600")

	result := LoadEnvDuration("TEST_TIMEOUT", 10*time.Minute, nil)

	assert.Equal(t, 10*time.Minute, result.Value)
	assert.True(t, result.FallbackApplied)
}

func TestLoadEnvDuration_FailsValidation(t *testing.T) {
	t.Setenv("TEST_TIMEOUT", "-5m")

	result := LoadEnvDuration("TEST_TIMEOUT", 10*time.Minute, ValidatePositiveDuration)

	assert.Equal(t, 10*time.Minute, result.Value)
	assert.True(t, result.FallbackApplied)
	assert.Contains(t, result.Warnings[0], "must be positive")
}

func TestLoadEnvDuration_RangeValidation(t *testing.T) {
	t.Setenv("TEST_TIMEOUT", "10s")

	result := LoadEnvDuration("TEST_TIMEOUT", 10*time.Minute, func(d time.Duration) error {
		return ValidateDuration(d, 30*time.Second, 2*time.Hour)
	})

	assert.Equal(t, 10*time.Minute, result.Value)
	assert.True(t, result.FallbackApplied)
	assert.Contains(t, result.Warnings[0], "below minimum")
}

func TestLoadEnvDuration_CompoundValue(t *testing.T) {
	t.Setenv("TEST_TIMEOUT", "1h30m")

	result := LoadEnvDuration("TEST_TIMEOUT", 10*time.Minute, nil)

	assert.Equal(t, 90*time.Minute, result.Value)
	assert.False(t, result.FallbackApplied)
}

// ============================================================================
// Test Group 3: LoadEnvInt
// ============================================================================

func TestLoadEnvInt_WithValidValue(t *testing.T) {
	t.Setenv("TEST_CONCURRENCY", "8")

	result := LoadEnvInt("TEST_CONCURRENCY", 4, func(v int) error {
		return ValidateIntRange(v, 1, 32)
	})

	assert.Equal(t, 8, result.Value)
	assert.Empty(t, result.Warnings)
	assert.False(t, result.FallbackApplied)
}

func TestLoadEnvInt_WithoutValue(t *testing.T) {
	result := LoadEnvInt("TEST_CONCURRENCY", 4, nil)

	assert.Equal(t, 4, result.Value)
	assert.False(t, result.FallbackApplied)
}

func TestLoadEnvInt_UnparseableValue(t *testing.T) {
	t.Setenv("TEST_CONCURRENCY", "four")

	result := LoadEnvInt("TEST_CONCURRENCY", 4, nil)

	assert.Equal(t, 4, result.Value)
	assert.True(t, result.FallbackApplied)
	assert.Contains(t, result.Warnings[0], "not an integer")
}

func TestLoadEnvInt_TrailingGarbageIsRejected(t *testing.T) {
	// The whole value must parse; "8x" is not "8"
	t.Setenv("TEST_CONCURRENCY", "8x")

	result := LoadEnvInt("TEST_CONCURRENCY", 4, nil)

	assert.Equal(t, 4, result.Value)
	assert.True(t, result.FallbackApplied)
}

func TestLoadEnvInt_NegativeValue(t *testing.T) {
	t.Setenv("TEST_CONCURRENCY", "-3")

	result := LoadEnvInt("TEST_CONCURRENCY", 4, func(v int) error {
		return ValidateIntRange(v, 1, 32)
	})

	assert.Equal(t, 4, result.Value)
	assert.True(t, result.FallbackApplied)
	assert.Contains(t, result.Warnings[0], "below minimum")
}

func TestLoadEnvInt_OutOfRange(t *testing.T) {
	t.Setenv("TEST_CONCURRENCY", "100")

	result := LoadEnvInt("TEST_CONCURRENCY", 4, func(v int) error {
		return ValidateIntRange(v, 1, 32)
	})

	assert.Equal(t, 4, result.Value)
	assert.True(t, result.FallbackApplied)
	assert.Contains(t, result.Warnings[0], "exceeds maximum")
}

// ============================================================================
// Test Group 4: Warning format and type assertions
// ============================================================================

func TestFallbackWarning_CarriesKeyValueAndDefault(t *testing.T) {
	t.Setenv("WORKER_TICK_TIMEOUT", "broken")

	result := LoadEnvDuration("WORKER_TICK_TIMEOUT", 10*time.Minute, nil)

	assert.True(t, result.FallbackApplied)
	warning := result.Warnings[0]
	assert.Contains(t, warning, "WORKER_TICK_TIMEOUT")
	assert.Contains(t, warning, "'broken'")
	assert.Contains(t, warning, "'10m0s'")
}

func TestConfigLoadResult_TypeAssertion_Duration(t *testing.T) {
	t.Setenv("TEST_TIMEOUT", "1h")

	result := LoadEnvDuration("TEST_TIMEOUT", 30*time.Minute, nil)

	value, ok := result.Value.(time.Duration)
	assert.True(t, ok)
	assert.Equal(t, 1*time.Hour, value)
}

func TestConfigLoadResult_TypeAssertion_Int(t *testing.T) {
	t.Setenv("TEST_PORT", "8080")

	result := LoadEnvInt("TEST_PORT", 9090, nil)

	value, ok := result.Value.(int)
	assert.True(t, ok)
	assert.Equal(t, 8080, value)
}
