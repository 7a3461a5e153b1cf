package db

import (
	"database/sql"
	_ "embed"
)

//go:embed seeds/feeds.sql
var seedFeedsSQL string

func MigrateUp(db *sql.DB) error {
	// Enable pgvector. Errors are ignored (already installed, or no
	// superuser rights); the entry_embeddings DDL below surfaces the real
	// failure if the extension is genuinely unavailable.
	_, _ = db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`)

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS feeds (
    id                   BIGSERIAL PRIMARY KEY,
    url                  TEXT NOT NULL,
    title                TEXT NOT NULL DEFAULT '',
    site_url             TEXT NOT NULL DEFAULT '',
    author_name          TEXT NOT NULL DEFAULT '',
    author_email         TEXT NOT NULL DEFAULT '',
    etag                 TEXT NOT NULL DEFAULT '',
    last_modified        TEXT NOT NULL DEFAULT '',
    fetch_error          TEXT NOT NULL DEFAULT '',
    fetch_error_count    BIGINT NOT NULL DEFAULT 0,
    consecutive_failures BIGINT NOT NULL DEFAULT 0,
    last_fetch_at        TIMESTAMPTZ,
    last_success_at      TIMESTAMPTZ,
    last_entry_at        TIMESTAMPTZ,
    is_active            BOOLEAN NOT NULL DEFAULT TRUE,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS entries (
    id           BIGSERIAL PRIMARY KEY,
    feed_id      BIGINT NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
    guid         TEXT NOT NULL,
    url          TEXT NOT NULL DEFAULT '',
    title        TEXT NOT NULL DEFAULT '',
    author       TEXT NOT NULL DEFAULT '',
    content      TEXT NOT NULL DEFAULT '',
    summary      TEXT NOT NULL DEFAULT '',
    published_at TIMESTAMPTZ NOT NULL,
    updated_at   TIMESTAMPTZ,
    first_seen   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (feed_id, guid)
)`); err != nil {
		return err
	}

	// Note: the vector column is fixed at 768 dimensions
	// (text-embedding-3-small with dimension reduction). The dimension
	// column stores metadata for validation; changing EMBEDDING_DIMENSIONS
	// requires a re-embed plus a column alteration.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS entry_embeddings (
    id           BIGSERIAL PRIMARY KEY,
    entry_id     BIGINT NOT NULL UNIQUE REFERENCES entries(id) ON DELETE CASCADE,
    entry_key    TEXT NOT NULL,
    title_prefix TEXT NOT NULL DEFAULT '',
    model        TEXT NOT NULL,
    dimension    INT NOT NULL,
    embedding    vector(768) NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return err
	}

	indexes := []string{
		// One active subscription per URL; deactivated duplicates may linger.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_feeds_url_active ON feeds(url) WHERE is_active`,
		// Home/Atom/RSS rendering reads the river newest-first.
		`CREATE INDEX IF NOT EXISTS idx_entries_published_at ON entries(published_at DESC)`,
		// Retention ranks entries per feed by recency.
		`CREATE INDEX IF NOT EXISTS idx_entries_feed_published ON entries(feed_id, published_at DESC)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return err
		}
	}

	// IVFFlat similarity index. Errors are ignored (pgvector missing, or
	// not enough rows yet); searches fall back to exact scans without it.
	// lists=100 suits <1M rows.
	_, _ = db.Exec(`
CREATE INDEX IF NOT EXISTS idx_entry_embeddings_vector
    ON entry_embeddings USING ivfflat (embedding vector_cosine_ops)
    WITH (lists = 100)`)

	if _, err := db.Exec(seedFeedsSQL); err != nil {
		return err
	}

	return nil
}

// MigrateDown rolls back the database schema.
// Tables are removed in reverse dependency order. Use with caution: this
// deletes all data.
func MigrateDown(db *sql.DB) error {
	dropStatements := []string{
		`DROP INDEX IF EXISTS idx_entry_embeddings_vector`,
		`DROP TABLE IF EXISTS entry_embeddings CASCADE`,
		`DROP TABLE IF EXISTS entries CASCADE`,
		`DROP TABLE IF EXISTS feeds CASCADE`,
	}

	for _, stmt := range dropStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	// The vector extension stays; other databases on the cluster may use it.

	return nil
}

// MigrateDownEmbeddingsOnly rolls back only the vector store.
// Entries and feeds survive; a later re-embed repopulates the table.
func MigrateDownEmbeddingsOnly(db *sql.DB) error {
	dropStatements := []string{
		`DROP INDEX IF EXISTS idx_entry_embeddings_vector`,
		`DROP TABLE IF EXISTS entry_embeddings CASCADE`,
	}

	for _, stmt := range dropStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
