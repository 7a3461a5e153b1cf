package repository

import (
	"context"
	"time"

	"planet-cf/internal/domain/entity"
)

// FeedFetchSuccess carries everything a successful fetch learned about a
// feed. URL is the final URL after permanent redirects (unchanged when no
// redirect happened); ETag/LastModified are the validators for the next
// conditional request; channel fields update stored metadata when the
// source supplies them (empty strings leave the stored value alone).
type FeedFetchSuccess struct {
	FeedID       int64
	URL          string
	ETag         string
	LastModified string
	Title        string
	SiteURL      string
	AuthorName   string
	AuthorEmail  string
	FetchedAt    time.Time
	// LastEntryAt is the newest published_at observed in this fetch; nil
	// when the fetch carried no dated entries.
	LastEntryAt *time.Time
}

// FeedRepository manages the feed roster and its fetch-health bookkeeping.
type FeedRepository interface {
	Get(ctx context.Context, id int64) (*entity.Feed, error)
	// List returns every feed, active or not, newest first.
	List(ctx context.Context) ([]*entity.Feed, error)
	// ListActive returns the feeds the scheduler fans out, ordered by id.
	ListActive(ctx context.Context) ([]*entity.Feed, error)
	Create(ctx context.Context, feed *entity.Feed) error
	Update(ctx context.Context, feed *entity.Feed) error
	// Delete removes a feed; its entries and their vectors go with it via
	// the store's cascade.
	Delete(ctx context.Context, id int64) error

	// UpdateFetchSuccess records a successful fetch: resets the failure
	// counters, clears the stored error, refreshes validators and channel
	// metadata, and advances last_fetch_at/last_success_at.
	UpdateFetchSuccess(ctx context.Context, success FeedFetchSuccess) error

	// UpdateFetchFailure records a failed fetch: increments
	// fetch_error_count and consecutive_failures, stores the truncated
	// message, and deactivates the feed once consecutive_failures reaches
	// deactivateThreshold. Returns the new consecutive failure count and
	// whether this call deactivated the feed.
	UpdateFetchFailure(ctx context.Context, id int64, message string, at time.Time, deactivateThreshold int64) (consecutiveFailures int64, deactivated bool, err error)
}
