// Package schedule fans fetch work out to the queue: one job per active
// feed per tick, each with a fresh correlation id. The scheduler holds no
// state between ticks; the queue and the feed roster carry everything.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"planet-cf/internal/domain/entity"
	"planet-cf/internal/repository"

	"github.com/google/uuid"
)

// JobPublisher enqueues fetch jobs. The queue's batch publish is
// transport batching only; each job stays one message.
type JobPublisher interface {
	PublishBatch(ctx context.Context, jobs []entity.FeedJob) error
}

// Service enqueues one fetch job per active feed.
type Service struct {
	FeedRepo  repository.FeedRepository
	Publisher JobPublisher
}

// NewService creates a new schedule Service.
func NewService(feedRepo repository.FeedRepository, publisher JobPublisher) *Service {
	return &Service{FeedRepo: feedRepo, Publisher: publisher}
}

// FanOutStats summarizes one scheduler tick.
type FanOutStats struct {
	ActiveFeeds int
	Enqueued    int
	Skipped     int
	Duration    time.Duration
}

// EnqueueDueFeeds publishes one fetch job for every active feed. Each job
// snapshots the feed's URL and conditional-request validators at tick
// time and carries a fresh correlation id with attempt zero. Feeds whose
// snapshot does not form a valid job are skipped with a warning rather
// than failing the tick.
func (s *Service) EnqueueDueFeeds(ctx context.Context) (*FanOutStats, error) {
	logger := slog.Default()
	start := time.Now()

	feeds, err := s.FeedRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active feeds: %w", err)
	}

	now := time.Now()
	jobs := make([]entity.FeedJob, 0, len(feeds))
	skipped := 0
	for _, feed := range feeds {
		job := entity.FeedJob{
			FeedID:        feed.ID,
			URL:           feed.URL,
			ETag:          feed.ETag,
			LastModified:  feed.LastModified,
			ScheduledAt:   now,
			CorrelationID: uuid.NewString(),
			Attempt:       0,
		}
		if err := job.Validate(); err != nil {
			skipped++
			logger.Warn("skipping feed with invalid job snapshot",
				slog.Int64("feed_id", feed.ID),
				slog.String("url", feed.URL),
				slog.Any("error", err))
			continue
		}
		jobs = append(jobs, job)
	}

	if err := s.Publisher.PublishBatch(ctx, jobs); err != nil {
		return nil, fmt.Errorf("enqueue feed jobs: %w", err)
	}

	stats := &FanOutStats{
		ActiveFeeds: len(feeds),
		Enqueued:    len(jobs),
		Skipped:     skipped,
		Duration:    time.Since(start),
	}
	logger.Info("feed fan-out completed",
		slog.Int("active_feeds", stats.ActiveFeeds),
		slog.Int("enqueued", stats.Enqueued),
		slog.Int("skipped", stats.Skipped),
		slog.Duration("duration", stats.Duration))
	return stats, nil
}
