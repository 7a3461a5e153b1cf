// Package embedding turns entry text into fixed-dimension vectors using
// the OpenAI embeddings API. The client carries the reliability stack the
// rest of the worker expects around an external API: circuit breaker,
// bounded retries, and a client-side rate limit.
package embedding

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds the embedding client configuration, loaded from the
// environment.
type Config struct {
	// Enabled gates the whole vector path. When false the worker stores
	// entries without indexing them and search returns empty results.
	Enabled bool

	// APIKey authenticates against the OpenAI API.
	APIKey string

	// Model is the embedding model identifier.
	Model string

	// Dimensions is the vector width requested from the model. It must
	// match the vector column width in the store.
	Dimensions int

	// Timeout is the total budget for one embedding call including
	// retries.
	Timeout time.Duration

	// RequestsPerSecond is the client-side rate limit across all
	// consumers in this process.
	RequestsPerSecond float64

	// Burst is the rate limiter burst size.
	Burst int
}

// LoadConfig reads the embedding configuration from the environment.
//
// Environment variables:
//   - EMBEDDING_ENABLED: "false" disables the vector path (default: true)
//   - OPENAI_API_KEY: API key; a missing key disables the vector path
//   - EMBEDDING_MODEL: model identifier (default: text-embedding-3-small)
//   - EMBEDDING_DIMENSIONS: vector width (default: 768, range: 1-3072)
//   - EMBEDDING_TIMEOUT_SECONDS: per-call budget (default: 30)
//   - EMBEDDING_RPS: client-side rate limit (default: 5)
//
// Malformed numeric values are errors; a missing API key is not, because
// the aggregator is designed to run degraded without vectors.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Enabled:           os.Getenv("EMBEDDING_ENABLED") != "false",
		APIKey:            os.Getenv("OPENAI_API_KEY"),
		Model:             "text-embedding-3-small",
		Dimensions:        768,
		Timeout:           30 * time.Second,
		RequestsPerSecond: 5,
		Burst:             5,
	}

	if model := os.Getenv("EMBEDDING_MODEL"); model != "" {
		cfg.Model = model
	}

	if raw := os.Getenv("EMBEDDING_DIMENSIONS"); raw != "" {
		dims, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid EMBEDDING_DIMENSIONS format: %s: %w", raw, err)
		}
		cfg.Dimensions = dims
	}

	if raw := os.Getenv("EMBEDDING_TIMEOUT_SECONDS"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid EMBEDDING_TIMEOUT_SECONDS format: %s: %w", raw, err)
		}
		cfg.Timeout = time.Duration(secs) * time.Second
	}

	if raw := os.Getenv("EMBEDDING_RPS"); raw != "" {
		rps, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid EMBEDDING_RPS format: %s: %w", raw, err)
		}
		cfg.RequestsPerSecond = rps
	}

	if cfg.Enabled && cfg.APIKey == "" {
		slog.Warn("OPENAI_API_KEY not set, disabling embeddings")
		cfg.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid embedding configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if c.Dimensions <= 0 || c.Dimensions > 3072 {
		return fmt.Errorf("dimensions must be in 1..3072, got %d", c.Dimensions)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive, got %v", c.RequestsPerSecond)
	}
	if c.Burst <= 0 {
		return fmt.Errorf("burst must be positive, got %d", c.Burst)
	}
	return nil
}
