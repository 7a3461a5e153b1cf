// Package search implements semantic entry search over the vector index.
package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"planet-cf/internal/observability/metrics"
	"planet-cf/internal/repository"
)

// QueryEmbedder turns a search query into a vector. Satisfied by the
// OpenAI embedding client.
type QueryEmbedder interface {
	Enabled() bool
	Embed(ctx context.Context, input string) ([]float32, error)
}

// Result is one search hit, ordered by vector similarity.
type Result struct {
	ID          int64
	Title       string
	URL         string
	Author      string
	FeedTitle   string
	PublishedAt time.Time
	// Score is the cosine similarity between the query and the entry,
	// 0.0 to 1.0, highest first.
	Score float64
}

// Service answers semantic search queries. The vector path is best-effort
// end to end: a disabled embedder or any failure while embedding,
// searching, or hydrating degrades to an empty result set. Callers never
// see an error, so a broken vector store cannot take the search surface
// down with it.
type Service struct {
	Embedder      QueryEmbedder
	EmbeddingRepo repository.EntryEmbeddingRepository
	EntryRepo     repository.EntryRepository
}

// NewService creates a search service.
//
// Parameters:
//   - embedder: query embedding client; nil disables the search surface
//   - embeddingRepo: vector index queried for nearest entries
//   - entryRepo: entry store used to hydrate the hits
func NewService(embedder QueryEmbedder, embeddingRepo repository.EntryEmbeddingRepository, entryRepo repository.EntryRepository) *Service {
	return &Service{
		Embedder:      embedder,
		EmbeddingRepo: embeddingRepo,
		EntryRepo:     entryRepo,
	}
}

// Search embeds the query once, finds the topK nearest entries in the
// vector index, and hydrates them from the entry store. Results come back
// in similarity order; ids whose entries were deleted since indexing are
// dropped silently.
func (s *Service) Search(ctx context.Context, query string, topK int) []Result {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return []Result{}
	}
	if s.Embedder == nil || !s.Embedder.Enabled() {
		slog.Info("semantic search unavailable", "reason", "embeddings disabled")
		metrics.RecordSearch("degraded", time.Since(start))
		return []Result{}
	}

	vector, err := s.Embedder.Embed(ctx, query)
	if err != nil {
		return s.degrade(start, "embed", err)
	}

	hits, err := s.EmbeddingRepo.SearchSimilar(ctx, vector, topK)
	if err != nil {
		return s.degrade(start, "vector_search", err)
	}
	if len(hits) == 0 {
		metrics.RecordSearch("success", time.Since(start))
		return []Result{}
	}

	ids := make([]int64, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.EntryID)
	}
	rows, err := s.EntryRepo.GetByIDs(ctx, ids)
	if err != nil {
		return s.degrade(start, "hydrate", err)
	}

	byID := make(map[int64]repository.EntryWithFeed, len(rows))
	for _, r := range rows {
		byID[r.Entry.ID] = r
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		row, ok := byID[h.EntryID]
		if !ok {
			// Entry deleted after it was indexed.
			continue
		}
		results = append(results, Result{
			ID:          row.Entry.ID,
			Title:       row.Entry.Title,
			URL:         row.Entry.URL,
			Author:      row.Entry.Author,
			FeedTitle:   row.FeedTitle,
			PublishedAt: row.Entry.PublishedAt,
			Score:       h.Similarity,
		})
	}

	metrics.RecordSearch("success", time.Since(start))
	return results
}

func (s *Service) degrade(start time.Time, stage string, err error) []Result {
	slog.Warn("semantic search degraded",
		"stage", stage,
		"error", err,
	)
	metrics.RecordSearch("degraded", time.Since(start))
	return []Result{}
}
