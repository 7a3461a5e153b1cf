package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// PipelineConfig holds the pipeline tuning shared by the API and worker
// binaries: the site identity advertised on the public surfaces, fetch
// budgets, ingestion caps, and the retention policy.
type PipelineConfig struct {
	// Site identity and rendering window.
	Site SiteConfig

	// Fetch budgets for outbound feed requests.
	Fetch FetchConfig

	// Ingest caps and feed health thresholds.
	Ingest IngestConfig

	// Retention policy for stored entries.
	Retention RetentionConfig
}

// SiteConfig identifies the aggregator to readers and feed operators.
type SiteConfig struct {
	// Title is shown on the home page and in the syndication feeds.
	// Default: "Planet CF"
	Title string

	// PublicURL is the externally visible base URL, without a trailing
	// slash. Self links in the syndication feeds are built from it.
	// Default: "http://localhost:8080"
	PublicURL string

	// AdminEmail is advertised in the User-Agent and feed metadata so
	// feed operators can reach a human. Optional.
	AdminEmail string

	// ContentDays is the home page display window in days.
	// Default: 7
	ContentDays int

	// FallbackEntries is how many entries the syndication feeds carry
	// and how many the home page falls back to when the window is empty.
	// Default: 50
	FallbackEntries int
}

// FetchConfig bounds outbound feed fetching.
type FetchConfig struct {
	// HTTPTimeout is the wall-clock budget for one HTTP request.
	// Default: 30s
	HTTPTimeout time.Duration

	// FeedTimeout is the wall-clock budget for one whole feed job:
	// fetch, parse, sanitize, store. Must cover at least one HTTPTimeout.
	// Default: 60s
	FeedTimeout time.Duration

	// MaxAttempts is how many deliveries a job gets before the dead
	// letter stream.
	// Default: 5
	MaxAttempts int
}

// IngestConfig caps what one fetch may write and when a failing feed is
// taken out of rotation.
type IngestConfig struct {
	// MaxEntriesPerFeed caps entries stored per fetch, newest first.
	// Default: 50
	MaxEntriesPerFeed int

	// FailureThreshold is the consecutive-failure count at which a feed
	// is flagged as failing on the public surfaces.
	// Default: 3
	FailureThreshold int

	// DeactivateThreshold is the consecutive-failure count at which a
	// feed is automatically deactivated.
	// Default: 10
	DeactivateThreshold int
}

// RetentionConfig bounds how much history the store keeps.
type RetentionConfig struct {
	// MaxPerFeed caps entries kept per feed, newest first.
	// Default: 100
	MaxPerFeed int

	// Days is how long an entry may live before it becomes a deletion
	// candidate.
	// Default: 90
	Days int
}

// LoadPipelineConfig loads pipeline configuration from environment
// variables. Returns a config with defaults if environment variables are
// not set.
func LoadPipelineConfig() (*PipelineConfig, error) {
	config := &PipelineConfig{
		Site: SiteConfig{
			Title:           getEnvOrDefault("PLANET_TITLE", "Planet CF"),
			PublicURL:       strings.TrimRight(getEnvOrDefault("PUBLIC_URL", "http://localhost:8080"), "/"),
			AdminEmail:      getEnvOrDefault("ADMIN_EMAIL", ""),
			ContentDays:     getEnvInt("CONTENT_DAYS", 7),
			FallbackEntries: getEnvInt("FALLBACK_ENTRIES", 50),
		},
		Fetch: FetchConfig{
			HTTPTimeout: time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
			FeedTimeout: time.Duration(getEnvInt("FEED_TIMEOUT_SECONDS", 60)) * time.Second,
			MaxAttempts: getEnvInt("JOB_MAX_ATTEMPTS", 5),
		},
		Ingest: IngestConfig{
			MaxEntriesPerFeed:   getEnvInt("MAX_ENTRIES_PER_FEED", 50),
			FailureThreshold:    getEnvInt("FEED_FAILURE_THRESHOLD", 3),
			DeactivateThreshold: getEnvInt("FEED_AUTO_DEACTIVATE_THRESHOLD", 10),
		},
		Retention: RetentionConfig{
			MaxPerFeed: getEnvInt("RETENTION_MAX_PER_FEED", 100),
			Days:       getEnvInt("RETENTION_DAYS", 90),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline configuration: %w", err)
	}

	return config, nil
}

// Validate checks configuration correctness.
func (c *PipelineConfig) Validate() error {
	if c.Site.Title == "" {
		return fmt.Errorf("PLANET_TITLE cannot be empty")
	}

	u, err := url.Parse(c.Site.PublicURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("PUBLIC_URL must be an absolute http(s) URL, got %q", c.Site.PublicURL)
	}

	if c.Site.ContentDays < 1 || c.Site.ContentDays > 365 {
		return fmt.Errorf("CONTENT_DAYS must be between 1 and 365")
	}

	if c.Site.FallbackEntries < 1 || c.Site.FallbackEntries > 1000 {
		return fmt.Errorf("FALLBACK_ENTRIES must be between 1 and 1000")
	}

	if c.Fetch.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT_SECONDS must be positive")
	}

	if c.Fetch.FeedTimeout < c.Fetch.HTTPTimeout {
		return fmt.Errorf("FEED_TIMEOUT_SECONDS must cover at least one HTTP timeout")
	}

	if c.Fetch.MaxAttempts < 1 || c.Fetch.MaxAttempts > 20 {
		return fmt.Errorf("JOB_MAX_ATTEMPTS must be between 1 and 20")
	}

	if c.Ingest.MaxEntriesPerFeed < 1 || c.Ingest.MaxEntriesPerFeed > 1000 {
		return fmt.Errorf("MAX_ENTRIES_PER_FEED must be between 1 and 1000")
	}

	if c.Ingest.FailureThreshold < 1 {
		return fmt.Errorf("FEED_FAILURE_THRESHOLD must be positive")
	}

	if c.Ingest.DeactivateThreshold < c.Ingest.FailureThreshold {
		return fmt.Errorf("FEED_AUTO_DEACTIVATE_THRESHOLD must be at least FEED_FAILURE_THRESHOLD")
	}

	if c.Retention.MaxPerFeed < 1 {
		return fmt.Errorf("RETENTION_MAX_PER_FEED must be positive")
	}

	if c.Retention.Days < 1 {
		return fmt.Errorf("RETENTION_DAYS must be positive")
	}

	return nil
}

// getEnvOrDefault returns environment variable value or default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt parses integer environment variable with default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
