package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"planet-cf/internal/domain/entity"
	"planet-cf/internal/repository"
)

// defaultListLimit bounds ListRecent when the caller passes a non-positive
// limit.
const defaultListLimit = 50

type EntryRepo struct{ db *sql.DB }

func NewEntryRepo(db *sql.DB) repository.EntryRepository {
	return &EntryRepo{db: db}
}

// scanEntryWithFeed is a helper function to scan an entry row joined with
// its feed's display metadata.
func scanEntryWithFeed(rows *sql.Rows) (repository.EntryWithFeed, error) {
	var (
		entry entity.Entry
		item  repository.EntryWithFeed
	)
	if err := rows.Scan(
		&entry.ID, &entry.FeedID, &entry.GUID, &entry.URL, &entry.Title, &entry.Author,
		&entry.Content, &entry.Summary,
		&entry.PublishedAt, &entry.UpdatedAt, &entry.FirstSeen, &entry.CreatedAt,
		&item.FeedTitle, &item.FeedSiteURL,
	); err != nil {
		return repository.EntryWithFeed{}, err
	}
	item.Entry = &entry
	return item, nil
}

func (repo *EntryRepo) Upsert(ctx context.Context, entry *entity.Entry) (bool, error) {
	// The update branch leaves published_at and first_seen alone so a
	// republished item cannot back-date itself into the top of the river.
	// (xmax = 0) distinguishes a fresh insert from a conflict update.
	const query = `
INSERT INTO entries (feed_id, guid, url, title, author, content, summary,
                     published_at, updated_at, first_seen)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (feed_id, guid) DO UPDATE SET
       title      = EXCLUDED.title,
       content    = EXCLUDED.content,
       summary    = EXCLUDED.summary,
       updated_at = EXCLUDED.updated_at
RETURNING id, first_seen, created_at, (xmax = 0) AS inserted`
	var inserted bool
	err := repo.db.QueryRowContext(ctx, query,
		entry.FeedID, entry.GUID, entry.URL, entry.Title, entry.Author,
		entry.Content, entry.Summary,
		entry.PublishedAt, entry.UpdatedAt, entry.FirstSeen,
	).Scan(&entry.ID, &entry.FirstSeen, &entry.CreatedAt, &inserted)
	if err != nil {
		return false, fmt.Errorf("Upsert: %w", err)
	}
	return inserted, nil
}

func (repo *EntryRepo) Get(ctx context.Context, id int64) (*entity.Entry, error) {
	const query = `
SELECT id, feed_id, guid, url, title, author, content, summary,
       published_at, updated_at, first_seen, created_at
FROM entries
WHERE id = $1
LIMIT 1`
	var entry entity.Entry
	err := repo.db.QueryRowContext(ctx, query, id).Scan(
		&entry.ID, &entry.FeedID, &entry.GUID, &entry.URL, &entry.Title, &entry.Author,
		&entry.Content, &entry.Summary,
		&entry.PublishedAt, &entry.UpdatedAt, &entry.FirstSeen, &entry.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return &entry, nil
}

func (repo *EntryRepo) GetByIDs(ctx context.Context, ids []int64) ([]repository.EntryWithFeed, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	const query = `
SELECT e.id, e.feed_id, e.guid, e.url, e.title, e.author, e.content, e.summary,
       e.published_at, e.updated_at, e.first_seen, e.created_at,
       f.title, f.site_url
FROM entries e
JOIN feeds f ON f.id = e.feed_id
WHERE e.id = ANY($1)`
	rows, err := repo.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("GetByIDs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]repository.EntryWithFeed, 0, len(ids))
	for rows.Next() {
		item, err := scanEntryWithFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("GetByIDs: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (repo *EntryRepo) ListSince(ctx context.Context, cutoff time.Time) ([]repository.EntryWithFeed, error) {
	const query = `
SELECT e.id, e.feed_id, e.guid, e.url, e.title, e.author, e.content, e.summary,
       e.published_at, e.updated_at, e.first_seen, e.created_at,
       f.title, f.site_url
FROM entries e
JOIN feeds f ON f.id = e.feed_id
WHERE e.published_at >= $1
ORDER BY e.published_at DESC, e.id DESC`
	rows, err := repo.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("ListSince: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]repository.EntryWithFeed, 0, 50)
	for rows.Next() {
		item, err := scanEntryWithFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("ListSince: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (repo *EntryRepo) ListRecent(ctx context.Context, limit int) ([]repository.EntryWithFeed, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	const query = `
SELECT e.id, e.feed_id, e.guid, e.url, e.title, e.author, e.content, e.summary,
       e.published_at, e.updated_at, e.first_seen, e.created_at,
       f.title, f.site_url
FROM entries e
JOIN feeds f ON f.id = e.feed_id
ORDER BY e.published_at DESC, e.id DESC
LIMIT $1`
	rows, err := repo.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ListRecent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]repository.EntryWithFeed, 0, limit)
	for rows.Next() {
		item, err := scanEntryWithFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("ListRecent: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (repo *EntryRepo) ListRetentionCandidates(ctx context.Context, cutoff time.Time, maxPerFeed, keepFloor int) ([]int64, error) {
	// A row is a candidate when it is stale (older than cutoff) or pushed
	// out of its feed's per-feed window, unless it sits inside the global
	// keep floor of most recently published entries. Oldest first so
	// bounded deletion batches drain from the back.
	const query = `
WITH ranked AS (
    SELECT id, published_at,
           ROW_NUMBER() OVER (PARTITION BY feed_id ORDER BY published_at DESC, id DESC) AS feed_rank,
           ROW_NUMBER() OVER (ORDER BY published_at DESC, id DESC) AS global_rank
    FROM entries
)
SELECT id
FROM ranked
WHERE global_rank > $3
  AND (published_at < $1 OR feed_rank > $2)
ORDER BY published_at ASC, id ASC`
	rows, err := repo.db.QueryContext(ctx, query, cutoff, maxPerFeed, keepFloor)
	if err != nil {
		return nil, fmt.Errorf("ListRetentionCandidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make([]int64, 0, 50)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ListRetentionCandidates: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (repo *EntryRepo) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	const query = `DELETE FROM entries WHERE id = ANY($1)`
	res, err := repo.db.ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("DeleteByIDs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteByIDs: %w", err)
	}
	return n, nil
}
