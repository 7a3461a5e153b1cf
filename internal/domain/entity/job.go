package entity

import "time"

// FeedJob is one queue message instructing a worker to fetch one feed.
// The scheduler produces one job per active feed per tick; the queue
// transport serializes it into stream field/values.
type FeedJob struct {
	FeedID        int64
	URL           string
	ETag          string
	LastModified  string
	ScheduledAt   time.Time
	CorrelationID string
	Attempt       int
}

// Validate validates the FeedJob payload before publishing.
func (j *FeedJob) Validate() error {
	if j.FeedID == 0 {
		return &ValidationError{Field: "feed_id", Message: "feed ID is required"}
	}
	if err := ValidateURL(j.URL); err != nil {
		return err
	}
	if j.CorrelationID == "" {
		return &ValidationError{Field: "correlation_id", Message: "correlation ID is required"}
	}
	if j.Attempt < 0 {
		return &ValidationError{Field: "attempt", Message: "attempt must not be negative"}
	}
	return nil
}
