package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"planet-cf/internal/domain/entity"
	"planet-cf/internal/repository"
)

type FeedRepo struct{ db *sql.DB }

func NewFeedRepo(db *sql.DB) repository.FeedRepository {
	return &FeedRepo{db: db}
}

// scanFeed is a helper function to scan a full feed row.
func scanFeed(rows *sql.Rows) (*entity.Feed, error) {
	var feed entity.Feed
	if err := rows.Scan(
		&feed.ID, &feed.URL, &feed.Title, &feed.SiteURL, &feed.AuthorName, &feed.AuthorEmail,
		&feed.ETag, &feed.LastModified,
		&feed.FetchError, &feed.FetchErrorCount, &feed.ConsecutiveFailures,
		&feed.LastFetchAt, &feed.LastSuccessAt, &feed.LastEntryAt,
		&feed.IsActive, &feed.CreatedAt, &feed.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &feed, nil
}

func (repo *FeedRepo) Get(ctx context.Context, id int64) (*entity.Feed, error) {
	const query = `
SELECT id, url, title, site_url, author_name, author_email,
       etag, last_modified,
       fetch_error, fetch_error_count, consecutive_failures,
       last_fetch_at, last_success_at, last_entry_at,
       is_active, created_at, updated_at
FROM feeds
WHERE id = $1
LIMIT 1`
	var feed entity.Feed
	err := repo.db.QueryRowContext(ctx, query, id).Scan(
		&feed.ID, &feed.URL, &feed.Title, &feed.SiteURL, &feed.AuthorName, &feed.AuthorEmail,
		&feed.ETag, &feed.LastModified,
		&feed.FetchError, &feed.FetchErrorCount, &feed.ConsecutiveFailures,
		&feed.LastFetchAt, &feed.LastSuccessAt, &feed.LastEntryAt,
		&feed.IsActive, &feed.CreatedAt, &feed.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return &feed, nil
}

func (repo *FeedRepo) List(ctx context.Context) ([]*entity.Feed, error) {
	const query = `
SELECT id, url, title, site_url, author_name, author_email,
       etag, last_modified,
       fetch_error, fetch_error_count, consecutive_failures,
       last_fetch_at, last_success_at, last_entry_at,
       is_active, created_at, updated_at
FROM feeds
ORDER BY created_at DESC, id DESC`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	feeds := make([]*entity.Feed, 0, 50)
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}
		feeds = append(feeds, feed)
	}
	return feeds, rows.Err()
}

func (repo *FeedRepo) ListActive(ctx context.Context) ([]*entity.Feed, error) {
	const query = `
SELECT id, url, title, site_url, author_name, author_email,
       etag, last_modified,
       fetch_error, fetch_error_count, consecutive_failures,
       last_fetch_at, last_success_at, last_entry_at,
       is_active, created_at, updated_at
FROM feeds
WHERE is_active = TRUE
ORDER BY id ASC`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ListActive: %w", err)
	}
	defer func() { _ = rows.Close() }()

	feeds := make([]*entity.Feed, 0, 50)
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("ListActive: %w", err)
		}
		feeds = append(feeds, feed)
	}
	return feeds, rows.Err()
}

func (repo *FeedRepo) Create(ctx context.Context, feed *entity.Feed) error {
	const query = `
INSERT INTO feeds (url, title, site_url, author_name, author_email, is_active)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at, updated_at`
	err := repo.db.QueryRowContext(ctx, query,
		feed.URL, feed.Title, feed.SiteURL,
		feed.AuthorName, feed.AuthorEmail, feed.IsActive,
	).Scan(&feed.ID, &feed.CreatedAt, &feed.UpdatedAt)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (repo *FeedRepo) Update(ctx context.Context, feed *entity.Feed) error {
	const query = `
UPDATE feeds SET
       url          = $1,
       title        = $2,
       site_url     = $3,
       author_name  = $4,
       author_email = $5,
       is_active    = $6,
       updated_at   = NOW()
WHERE id = $7`
	res, err := repo.db.ExecContext(ctx, query,
		feed.URL, feed.Title, feed.SiteURL,
		feed.AuthorName, feed.AuthorEmail, feed.IsActive,
		feed.ID,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("Update: no rows affected")
	}
	return nil
}

func (repo *FeedRepo) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM feeds WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("Delete: no rows affected")
	}
	return nil
}

func (repo *FeedRepo) UpdateFetchSuccess(ctx context.Context, success repository.FeedFetchSuccess) error {
	// Channel metadata only overwrites stored values when the source sent
	// something; last_entry_at never moves backwards (GREATEST ignores
	// NULL operands).
	const query = `
UPDATE feeds SET
       url                  = $1,
       etag                 = $2,
       last_modified        = $3,
       title                = COALESCE(NULLIF($4, ''), title),
       site_url             = COALESCE(NULLIF($5, ''), site_url),
       author_name          = COALESCE(NULLIF($6, ''), author_name),
       author_email         = COALESCE(NULLIF($7, ''), author_email),
       fetch_error          = '',
       consecutive_failures = 0,
       last_fetch_at        = $8,
       last_success_at      = $8,
       last_entry_at        = GREATEST(last_entry_at, $9),
       updated_at           = NOW()
WHERE id = $10`
	res, err := repo.db.ExecContext(ctx, query,
		success.URL, success.ETag, success.LastModified,
		success.Title, success.SiteURL, success.AuthorName, success.AuthorEmail,
		success.FetchedAt, success.LastEntryAt,
		success.FeedID,
	)
	if err != nil {
		return fmt.Errorf("UpdateFetchSuccess: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("UpdateFetchSuccess: no rows affected")
	}
	return nil
}

func (repo *FeedRepo) UpdateFetchFailure(ctx context.Context, id int64, message string, at time.Time, deactivateThreshold int64) (int64, bool, error) {
	// fetch_error_count is cumulative; consecutive_failures resets only on
	// success. Deactivation happens in the same statement so two workers
	// failing the same feed cannot race past the threshold.
	const query = `
UPDATE feeds SET
       fetch_error          = $1,
       fetch_error_count    = fetch_error_count + 1,
       consecutive_failures = consecutive_failures + 1,
       last_fetch_at        = $2,
       is_active            = is_active AND consecutive_failures + 1 < $3,
       updated_at           = NOW()
WHERE id = $4
RETURNING consecutive_failures, is_active`
	var (
		failures int64
		active   bool
	)
	err := repo.db.QueryRowContext(ctx, query, message, at, deactivateThreshold, id).
		Scan(&failures, &active)
	if err == sql.ErrNoRows {
		return 0, false, fmt.Errorf("UpdateFetchFailure: no rows affected")
	}
	if err != nil {
		return 0, false, fmt.Errorf("UpdateFetchFailure: %w", err)
	}
	// Report deactivation only when this call crossed the threshold, not
	// when a straggling job fails a feed that is already switched off.
	deactivated := !active && failures == deactivateThreshold
	return failures, deactivated, nil
}
