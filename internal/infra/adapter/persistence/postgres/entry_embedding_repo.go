package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"planet-cf/internal/domain/entity"
	"planet-cf/internal/repository"
)

// DefaultSearchTimeout is the default timeout for similarity search queries.
const DefaultSearchTimeout = 5 * time.Second

// EntryEmbeddingRepo implements the EntryEmbeddingRepository interface for
// PostgreSQL with the pgvector extension.
type EntryEmbeddingRepo struct {
	db *sql.DB
}

// NewEntryEmbeddingRepo creates a new PostgreSQL-based EntryEmbeddingRepository.
func NewEntryEmbeddingRepo(db *sql.DB) repository.EntryEmbeddingRepository {
	return &EntryEmbeddingRepo{
		db: db,
	}
}

// Upsert creates the vector for an entry or replaces an existing one.
// Uses INSERT ... ON CONFLICT DO UPDATE keyed on entry_id: one vector per
// entry, re-embedding simply overwrites.
func (repo *EntryEmbeddingRepo) Upsert(ctx context.Context, embedding *entity.EntryEmbedding) error {
	if embedding == nil {
		return fmt.Errorf("Upsert: embedding is nil")
	}

	if err := embedding.Validate(); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	vector := pgvector.NewVector(embedding.Embedding)

	const query = `
INSERT INTO entry_embeddings (entry_id, entry_key, title_prefix, model, dimension, embedding, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
ON CONFLICT (entry_id)
DO UPDATE SET
	entry_key = EXCLUDED.entry_key,
	title_prefix = EXCLUDED.title_prefix,
	model = EXCLUDED.model,
	dimension = EXCLUDED.dimension,
	embedding = EXCLUDED.embedding,
	updated_at = NOW()
RETURNING id, created_at, updated_at`

	err := repo.db.QueryRowContext(ctx, query,
		embedding.EntryID,
		embedding.EntryKey,
		embedding.TitlePrefix,
		embedding.Model,
		embedding.Dimension,
		vector,
	).Scan(&embedding.ID, &embedding.CreatedAt, &embedding.UpdatedAt)

	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	return nil
}

// FindByEntryID retrieves the vector stored for an entry.
// Returns (nil, nil) when the entry has no vector.
func (repo *EntryEmbeddingRepo) FindByEntryID(ctx context.Context, entryID int64) (*entity.EntryEmbedding, error) {
	const query = `
SELECT id, entry_id, entry_key, title_prefix, model, dimension, embedding, created_at, updated_at
FROM entry_embeddings
WHERE entry_id = $1
LIMIT 1`

	emb := &entity.EntryEmbedding{}
	var vector pgvector.Vector
	err := repo.db.QueryRowContext(ctx, query, entryID).Scan(
		&emb.ID,
		&emb.EntryID,
		&emb.EntryKey,
		&emb.TitlePrefix,
		&emb.Model,
		&emb.Dimension,
		&vector,
		&emb.CreatedAt,
		&emb.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindByEntryID: %w", err)
	}

	emb.Embedding = vector.Slice()
	return emb, nil
}

// SearchSimilar finds entries with vectors similar to the provided one.
// Uses the cosine distance operator (<=>); similarity is 1 - distance so
// higher means closer.
func (repo *EntryEmbeddingRepo) SearchSimilar(ctx context.Context, embedding []float32, limit int) ([]repository.SimilarEntry, error) {
	searchCtx, cancel := context.WithTimeout(ctx, DefaultSearchTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	vector := pgvector.NewVector(embedding)

	const query = `
SELECT entry_id, 1 - (embedding <=> $1) AS similarity
FROM entry_embeddings
ORDER BY embedding <=> $1
LIMIT $2`

	rows, err := repo.db.QueryContext(searchCtx, query, vector, limit)
	if err != nil {
		return nil, fmt.Errorf("SearchSimilar: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]repository.SimilarEntry, 0, limit)
	for rows.Next() {
		var result repository.SimilarEntry
		err := rows.Scan(&result.EntryID, &result.Similarity)
		if err != nil {
			return nil, fmt.Errorf("SearchSimilar: Scan: %w", err)
		}
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SearchSimilar: %w", err)
	}

	return results, nil
}

// DeleteByEntryIDs removes the vectors for the given entries.
// Returns the number of deleted rows. Retention runs this ahead of the
// entry deletion itself so a crash between the two leaves no orphaned
// vectors behind.
func (repo *EntryEmbeddingRepo) DeleteByEntryIDs(ctx context.Context, entryIDs []int64) (int64, error) {
	if len(entryIDs) == 0 {
		return 0, nil
	}

	const query = `DELETE FROM entry_embeddings WHERE entry_id = ANY($1)`

	result, err := repo.db.ExecContext(ctx, query, pq.Array(entryIDs))
	if err != nil {
		return 0, fmt.Errorf("DeleteByEntryIDs: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteByEntryIDs: RowsAffected: %w", err)
	}

	return count, nil
}
