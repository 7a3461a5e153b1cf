package repository

import (
	"context"

	"planet-cf/internal/domain/entity"
)

// SimilarEntry is one vector-search hit: the entry id and its cosine
// similarity to the query vector (0.0 to 1.0, highest first).
type SimilarEntry struct {
	EntryID    int64
	Similarity float64
}

// EntryEmbeddingRepository manages the vector index over entries.
// Vectors are keyed by entry id: at most one vector per entry, deleted
// exactly when the entry is deleted.
type EntryEmbeddingRepository interface {
	// Upsert creates or replaces the vector for an entry. On conflict the
	// embedding, model, dimension, title_prefix, and updated_at are
	// refreshed; created_at stays.
	Upsert(ctx context.Context, embedding *entity.EntryEmbedding) error

	// FindByEntryID returns the vector for an entry, or (nil, nil) when
	// the entry has none.
	FindByEntryID(ctx context.Context, entryID int64) (*entity.EntryEmbedding, error)

	// SearchSimilar returns up to limit entry ids ordered by cosine
	// similarity to the query vector, highest first.
	SearchSimilar(ctx context.Context, vector []float32, limit int) ([]SimilarEntry, error)

	// DeleteByEntryIDs removes the vectors for the given entries and
	// returns how many rows went away. Retention calls this before it
	// deletes the entries themselves.
	DeleteByEntryIDs(ctx context.Context, entryIDs []int64) (int64, error)
}
