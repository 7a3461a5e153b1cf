// Package entity defines the core domain entities and validation logic for the application.
// It contains the fundamental business objects such as Feed and Entry, along with
// their validation rules and domain-specific errors.
package entity

import "time"

// HealthState classifies a feed by its recent fetch history.
type HealthState string

const (
	// HealthHealthy means the most recent fetch attempt succeeded.
	HealthHealthy HealthState = "healthy"
	// HealthDegraded means the feed has failed fewer times in a row than the failure threshold.
	HealthDegraded HealthState = "degraded"
	// HealthUnhealthy means consecutive failures have reached the failure threshold.
	HealthUnhealthy HealthState = "unhealthy"
	// HealthInactive means the feed has been deactivated and is no longer scheduled.
	HealthInactive HealthState = "inactive"
)

// Feed represents a subscription source in the system.
// It carries the feed URL, channel metadata, HTTP cache validators,
// and fetch-health counters maintained by the ingest worker.
type Feed struct {
	ID          int64
	URL         string
	Title       string
	SiteURL     string
	AuthorName  string
	AuthorEmail string

	// HTTP cache validators, stored verbatim as received on the most
	// recent successful fetch. Empty when the upstream omitted them.
	ETag         string
	LastModified string

	// Fetch health.
	FetchError          string
	FetchErrorCount     int64
	ConsecutiveFailures int64

	LastFetchAt   *time.Time
	LastSuccessAt *time.Time
	LastEntryAt   *time.Time

	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HealthState derives the feed's health classification from its counters.
// failureThreshold is the consecutive-failure count at which a feed is
// considered unhealthy; feeds below it are merely degraded.
func (f *Feed) HealthState(failureThreshold int64) HealthState {
	switch {
	case !f.IsActive:
		return HealthInactive
	case f.ConsecutiveFailures == 0:
		return HealthHealthy
	case f.ConsecutiveFailures < failureThreshold:
		return HealthDegraded
	default:
		return HealthUnhealthy
	}
}

// Validate validates the Feed entity fields.
func (f *Feed) Validate() error {
	if err := ValidateURL(f.URL); err != nil {
		return err
	}
	if f.SiteURL != "" {
		if err := ValidateURL(f.SiteURL); err != nil {
			return &ValidationError{Field: "site_url", Message: "site URL must be a valid http(s) URL"}
		}
	}
	return nil
}
