// Package retention bounds table growth: entries past the age or per-feed
// count policy are deleted together with their vectors, in bounded
// batches, while a global floor of the most recent entries is always kept
// so the rendered outputs never go empty.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"planet-cf/internal/observability/metrics"
	"planet-cf/internal/repository"
)

// defaultBatchSize bounds ids per DELETE to stay inside the driver's
// parameter limits.
const defaultBatchSize = 500

// Config holds the retention policy.
type Config struct {
	// MaxAge is how old an entry may grow before it becomes a deletion
	// candidate.
	MaxAge time.Duration
	// MaxPerFeed caps how many entries a single feed keeps, newest first
	// by published time.
	MaxPerFeed int
	// KeepFloor is the number of most recently published entries overall
	// that are never deleted, whatever the other rules say.
	KeepFloor int
	// BatchSize bounds ids per DELETE statement.
	BatchSize int
}

// DefaultConfig returns the retention policy used when no explicit
// configuration is provided.
func DefaultConfig() Config {
	return Config{
		MaxAge:     90 * 24 * time.Hour,
		MaxPerFeed: 100,
		KeepFloor:  50,
		BatchSize:  defaultBatchSize,
	}
}

// Service runs the retention sweep.
type Service struct {
	EntryRepo     repository.EntryRepository
	EmbeddingRepo repository.EntryEmbeddingRepository
	cfg           Config
}

// NewService creates a new retention Service.
func NewService(entryRepo repository.EntryRepository, embeddingRepo repository.EntryEmbeddingRepository, cfg Config) *Service {
	return &Service{
		EntryRepo:     entryRepo,
		EmbeddingRepo: embeddingRepo,
		cfg:           cfg,
	}
}

// SweepStats summarizes one retention sweep.
type SweepStats struct {
	Candidates     int
	VectorsDeleted int64
	EntriesDeleted int64
	SkippedBatches int
	Duration       time.Duration
}

// Sweep computes the deletion set and removes it in bounded batches.
// Within each batch the vectors go first: an entry that outlives its
// vector is re-collected by the next sweep, while a vector without its
// entry would never be cleaned up. A batch whose vector delete fails is
// skipped entirely and left for the next sweep. The sweep is idempotent;
// running it twice with no intervening writes deletes nothing the second
// time.
func (s *Service) Sweep(ctx context.Context) (*SweepStats, error) {
	logger := slog.Default()
	start := time.Now()
	stats := &SweepStats{}

	cutoff := time.Now().Add(-s.cfg.MaxAge)
	ids, err := s.EntryRepo.ListRetentionCandidates(ctx, cutoff, s.cfg.MaxPerFeed, s.cfg.KeepFloor)
	if err != nil {
		return nil, fmt.Errorf("list retention candidates: %w", err)
	}
	stats.Candidates = len(ids)

	batchSize := s.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	for i := 0; i < len(ids); i += batchSize {
		end := i + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[i:end]

		vectors, err := s.EmbeddingRepo.DeleteByEntryIDs(ctx, batch)
		if err != nil {
			stats.SkippedBatches++
			logger.Warn("failed to delete entry vectors, leaving their entries for the next sweep",
				slog.Int("batch_size", len(batch)),
				slog.Any("error", err))
			continue
		}
		stats.VectorsDeleted += vectors

		entries, err := s.EntryRepo.DeleteByIDs(ctx, batch)
		if err != nil {
			// This batch's vectors are already gone; its entries stay
			// candidates and the next sweep retries them.
			stats.Duration = time.Since(start)
			metrics.RecordRetentionSweep(stats.Duration, stats.EntriesDeleted, stats.VectorsDeleted)
			return stats, fmt.Errorf("delete entries: %w", err)
		}
		stats.EntriesDeleted += entries
	}

	stats.Duration = time.Since(start)
	metrics.RecordRetentionSweep(stats.Duration, stats.EntriesDeleted, stats.VectorsDeleted)
	logger.Info("retention sweep completed",
		slog.Int("candidates", stats.Candidates),
		slog.Int64("entries_deleted", stats.EntriesDeleted),
		slog.Int64("vectors_deleted", stats.VectorsDeleted),
		slog.Int("skipped_batches", stats.SkippedBatches),
		slog.Duration("duration", stats.Duration))
	return stats, nil
}
