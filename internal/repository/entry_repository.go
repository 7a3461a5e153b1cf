package repository

import (
	"context"
	"time"

	"planet-cf/internal/domain/entity"
)

// EntryWithFeed pairs an entry with the feed metadata the renderers show
// beside it.
type EntryWithFeed struct {
	Entry       *entity.Entry
	FeedTitle   string
	FeedSiteURL string
}

// EntryRepository manages canonical entries.
type EntryRepository interface {
	// Upsert inserts the entry or, when (feed_id, guid) already exists,
	// refreshes its mutable columns (title, content, summary, updated_at).
	// first_seen and created_at are written only on insert and never
	// touched afterwards; published_at keeps its stored value on update so
	// republished items cannot back-date themselves. Sets entry.ID and
	// reports whether a new row was created.
	Upsert(ctx context.Context, entry *entity.Entry) (inserted bool, err error)

	Get(ctx context.Context, id int64) (*entity.Entry, error)

	// GetByIDs returns the entries for the given ids with feed metadata,
	// in no guaranteed order. Missing ids are silently absent.
	GetByIDs(ctx context.Context, ids []int64) ([]EntryWithFeed, error)

	// ListSince returns entries published at or after the cutoff, newest
	// first, with feed metadata.
	ListSince(ctx context.Context, cutoff time.Time) ([]EntryWithFeed, error)

	// ListRecent returns the limit most recently published entries,
	// newest first, with feed metadata.
	ListRecent(ctx context.Context, limit int) ([]EntryWithFeed, error)

	// ListRetentionCandidates computes the ids eligible for deletion:
	// entries older than cutoff, plus entries ranked past maxPerFeed
	// newest-first within their feed, minus the keepFloor most recently
	// published entries overall, which are never candidates.
	ListRetentionCandidates(ctx context.Context, cutoff time.Time, maxPerFeed, keepFloor int) ([]int64, error)

	// DeleteByIDs deletes the given entries and returns how many rows
	// went away. Used by retention in bounded batches.
	DeleteByIDs(ctx context.Context, ids []int64) (int64, error)
}
