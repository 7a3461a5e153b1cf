package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"planet-cf/internal/domain/entity"
	"planet-cf/internal/infra/egress"
	"planet-cf/internal/infra/parser"
	"planet-cf/internal/infra/queue"
	"planet-cf/internal/infra/sanitizer"
	"planet-cf/internal/observability/metrics"
	"planet-cf/internal/observability/tracing"
	"planet-cf/internal/repository"
	"planet-cf/internal/resilience/retry"
	"planet-cf/internal/utils/text"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// summaryRunes bounds the plain-text excerpt stored per entry.
	summaryRunes = 500
	// embedTextRunes bounds the content text handed to the embedding
	// model; the title is prepended on top of this.
	embedTextRunes = 6000
	// errorMessageRunes bounds the fetch error stored on the feed row.
	errorMessageRunes = 500
)

// FeedFetcher performs the conditional HTTP fetch for one feed URL.
type FeedFetcher interface {
	Fetch(ctx context.Context, req egress.FetchRequest) (*egress.FetchResult, error)
}

// FeedParser turns a fetched body into a normalized feed document.
type FeedParser interface {
	Parse(data []byte) (*parser.ParsedFeed, error)
}

// ContentSanitizer reduces untrusted entry HTML to the allow-listed subset.
type ContentSanitizer interface {
	Sanitize(html string) string
}

// Embedder produces the vector for an entry's text. Enabled reports
// whether the backing API is configured; a disabled embedder makes the
// indexing step a no-op.
type Embedder interface {
	Enabled() bool
	Model() string
	Dimensions() int
	Embed(ctx context.Context, input string) ([]float32, error)
}

// JobQueue settles delivered messages: ack on terminal outcomes, delayed
// retry otherwise. Retry reports false when the job went to the
// dead-letter stream instead.
type JobQueue interface {
	Ack(ctx context.Context, messageID string) error
	Retry(ctx context.Context, msg queue.Message, delay time.Duration, reason string) (bool, error)
}

// Config bounds the processing of a single job.
type Config struct {
	// FeedTimeout is the wall-clock budget for one message end to end.
	FeedTimeout time.Duration
	// MaxEntriesPerFeed caps how many items of one document are processed.
	MaxEntriesPerFeed int
	// FailureThreshold is the consecutive-failure count at which a feed
	// is reported unhealthy.
	FailureThreshold int64
	// DeactivateThreshold is the consecutive-failure count at which a
	// feed is automatically deactivated.
	DeactivateThreshold int64
}

// DefaultConfig returns the processing bounds used when no explicit
// configuration is provided.
func DefaultConfig() Config {
	return Config{
		FeedTimeout:         60 * time.Second,
		MaxEntriesPerFeed:   50,
		FailureThreshold:    3,
		DeactivateThreshold: 10,
	}
}

// Service processes feed fetch jobs. It orchestrates the guarded
// conditional fetch, parsing, sanitization, entry upserts, vector
// indexing, feed health bookkeeping, and message settlement.
type Service struct {
	FeedRepo      repository.FeedRepository
	EntryRepo     repository.EntryRepository
	EmbeddingRepo repository.EntryEmbeddingRepository
	Fetcher       FeedFetcher
	Parser        FeedParser
	Sanitizer     ContentSanitizer
	Embedder      Embedder // can be nil to disable vector indexing
	Queue         JobQueue
	cfg           Config
	retryCfg      retry.Config
}

// NewService creates a new ingest Service with the provided dependencies.
//
// Parameters:
//   - feedRepo: Repository for feed rows and fetch-health bookkeeping
//   - entryRepo: Repository for entry upserts
//   - embeddingRepo: Repository for entry vectors
//   - fetcher: Guarded conditional HTTP client
//   - feedParser: RSS/Atom document parser
//   - contentSanitizer: HTML content policy
//   - embedder: Embedding client (can be nil to disable vector indexing)
//   - jobQueue: Queue used to settle delivered messages
//   - cfg: Per-job processing bounds
//   - retryCfg: Backoff schedule for retried jobs
//
// Example:
//
//	svc := ingest.NewService(feedRepo, entryRepo, embeddingRepo,
//		egressClient, parser.New(), sanitizer.New(), openAI, q,
//		ingest.DefaultConfig(), retry.JobRetryConfig())
func NewService(
	feedRepo repository.FeedRepository,
	entryRepo repository.EntryRepository,
	embeddingRepo repository.EntryEmbeddingRepository,
	fetcher FeedFetcher,
	feedParser FeedParser,
	contentSanitizer ContentSanitizer,
	embedder Embedder,
	jobQueue JobQueue,
	cfg Config,
	retryCfg retry.Config,
) *Service {
	return &Service{
		FeedRepo:      feedRepo,
		EntryRepo:     entryRepo,
		EmbeddingRepo: embeddingRepo,
		Fetcher:       fetcher,
		Parser:        feedParser,
		Sanitizer:     contentSanitizer,
		Embedder:      embedder,
		Queue:         jobQueue,
		cfg:           cfg,
		retryCfg:      retryCfg,
	}
}

// JobStats summarizes what one processed message did.
type JobStats struct {
	HTTPStatus    int
	NotModified   bool
	FeedItems     int
	Inserted      int64
	Updated       int64
	Skipped       int64
	Indexed       int64
	IndexFailures int64
}

// HandleMessage processes one delivered queue message end to end and
// settles it. It performs the following steps:
//  1. Guards the feed URL, fetches conditionally, parses, sanitizes,
//     upserts entries, and indexes their vectors, all inside the
//     per-message wall budget.
//  2. On failure, records feed health bookkeeping (failure counters and
//     auto-deactivation) outside the possibly-expired job context.
//  3. Settles the message: ack on terminal outcomes, otherwise a delayed
//     retry that respects the upstream Retry-After.
//  4. Emits exactly one structured log record for the whole message.
//
// The returned error reports settlement problems only; processing
// failures are absorbed into the retry cycle.
func (s *Service) HandleMessage(ctx context.Context, msg queue.Message) error {
	logger := slog.Default()
	start := time.Now()
	job := msg.Job

	ctx, span := tracing.GetTracer().Start(ctx, "ingest.HandleMessage",
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()
	span.SetAttributes(
		attribute.Int64("feed.id", job.FeedID),
		attribute.String("job.correlation_id", job.CorrelationID),
		attribute.Int("job.attempt", job.Attempt),
	)

	jobCtx, cancel := context.WithTimeout(ctx, s.cfg.FeedTimeout)
	stats, ferr := s.processJob(jobCtx, &job)
	cancel()

	if ferr != nil {
		s.recordFailure(ctx, &job, ferr)
		metrics.RecordFeedFetchError(job.FeedID, string(ferr.Kind))
		span.SetAttributes(attribute.Bool("error", true))
	} else {
		metrics.RecordFeedFetch(job.FeedID, time.Since(start),
			int64(stats.FeedItems), stats.Inserted, stats.Updated)
	}

	settlement, settleErr := s.settle(ctx, msg, ferr)
	if settleErr != nil {
		// The message stays pending and will be reclaimed after the
		// idle threshold; at-least-once still holds.
		settlement = "unsettled"
	}
	metrics.RecordJobOutcome(settlement)

	attrs := []any{
		slog.Int64("feed_id", job.FeedID),
		slog.String("correlation_id", job.CorrelationID),
		slog.Int("attempt", job.Attempt),
		slog.String("outcome", outcomeOf(ferr)),
		slog.String("settlement", settlement),
		slog.Int("http_status", stats.HTTPStatus),
		slog.Bool("not_modified", stats.NotModified),
		slog.Int("feed_items", stats.FeedItems),
		slog.Int64("inserted", stats.Inserted),
		slog.Int64("updated", stats.Updated),
		slog.Int64("skipped", stats.Skipped),
		slog.Int64("indexed", stats.Indexed),
		slog.Int64("index_failures", stats.IndexFailures),
		slog.Duration("duration", time.Since(start)),
	}
	if settleErr != nil {
		attrs = append(attrs, slog.Any("settle_error", settleErr))
	}
	if ferr != nil {
		attrs = append(attrs,
			slog.String("error_type", string(ferr.Kind)),
			slog.Any("error", ferr.Err))
		logger.Warn("feed job failed", attrs...)
	} else {
		logger.Info("feed job processed", attrs...)
	}

	return settleErr
}

func outcomeOf(ferr *FetchError) string {
	if ferr != nil {
		return "error"
	}
	return "success"
}

// settle acknowledges or reschedules msg according to the processing
// outcome. Returns how the message was settled: acked, dropped (terminal
// failure), retried, or dead_lettered.
func (s *Service) settle(ctx context.Context, msg queue.Message, ferr *FetchError) (string, error) {
	if ferr == nil || !ferr.Retryable() {
		if err := s.Queue.Ack(ctx, msg.ID); err != nil {
			return "", fmt.Errorf("ack message %s: %w", msg.ID, err)
		}
		if ferr == nil {
			return "acked", nil
		}
		return "dropped", nil
	}

	delay := ferr.RetryDelay(retry.BackoffDelay(s.retryCfg, msg.Job.Attempt))
	scheduled, err := s.Queue.Retry(ctx, msg, delay, string(ferr.Kind))
	if err != nil {
		return "", fmt.Errorf("retry message %s: %w", msg.ID, err)
	}
	if !scheduled {
		return "dead_lettered", nil
	}
	return "retried", nil
}

// processJob runs the fetch pipeline for one job. It returns partial
// stats together with the classified failure, so the wide event can
// report how far a failed job got.
func (s *Service) processJob(ctx context.Context, job *entity.FeedJob) (*JobStats, *FetchError) {
	stats := &JobStats{}

	if err := egress.IsSafeURL(job.URL); err != nil {
		return stats, fetchErr(KindUnsafeURL, err)
	}

	result, err := s.Fetcher.Fetch(ctx, egress.FetchRequest{
		URL:          job.URL,
		ETag:         job.ETag,
		LastModified: job.LastModified,
	})
	if err != nil {
		return stats, classifyFetchError(err)
	}
	stats.HTTPStatus = result.StatusCode

	// The client re-validates every redirect hop and the final URL
	// through the gatekeeper, so a 2xx result here is already safe.
	switch {
	case result.StatusCode == http.StatusNotModified:
		stats.NotModified = true
		return stats, s.recordSuccess(ctx, job, result, nil, nil)
	case result.StatusCode == http.StatusTooManyRequests:
		return stats, &FetchError{
			Kind:       KindRateLimited,
			Err:        errors.New("upstream rate limited"),
			RetryAfter: result.RetryAfter,
		}
	case result.StatusCode < 200 || result.StatusCode > 299:
		return stats, &FetchError{
			Kind:       KindHTTPError,
			Err:        fmt.Errorf("unexpected status %d", result.StatusCode),
			RetryAfter: result.RetryAfter,
		}
	}

	// Some upstreams answer 200 with an empty body where a 304 was meant.
	// Zero entries is a success, not a parse failure.
	if len(bytes.TrimSpace(result.Body)) == 0 {
		return stats, s.recordSuccess(ctx, job, result, nil, nil)
	}

	parsed, err := s.Parser.Parse(result.Body)
	if err != nil {
		return stats, fetchErr(KindParseFatal, err)
	}

	items := parsed.Entries
	stats.FeedItems = len(items)
	if len(items) > s.cfg.MaxEntriesPerFeed {
		items = items[:s.cfg.MaxEntriesPerFeed]
	}

	now := time.Now()
	var lastEntryAt *time.Time
	for i := range items {
		if err := ctx.Err(); err != nil {
			return stats, fetchErr(KindTimeout, err)
		}
		published, ferr := s.processEntry(ctx, job, &items[i], now, stats)
		if ferr != nil {
			return stats, ferr
		}
		if published != nil && (lastEntryAt == nil || published.After(*lastEntryAt)) {
			lastEntryAt = published
		}
	}

	return stats, s.recordSuccess(ctx, job, result, parsed, lastEntryAt)
}

// classifyFetchError maps a transport-level fetch error to a FetchError.
func classifyFetchError(err error) *FetchError {
	switch {
	case errors.Is(err, egress.ErrUnsafeURL):
		return fetchErr(KindUnsafeURL, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fetchErr(KindTimeout, err)
	default:
		return fetchErr(KindTransport, err)
	}
}

// processEntry upserts one feed item and indexes its vector. Returns the
// effective published time for the last_entry_at bookkeeping, or nil when
// the item was skipped for lacking any identity.
func (s *Service) processEntry(ctx context.Context, job *entity.FeedJob, item *parser.ParsedEntry, now time.Time, stats *JobStats) (*time.Time, *FetchError) {
	guid := item.GUID
	if guid == "" {
		guid = item.Link
	}
	if guid == "" {
		guid = item.Title
	}
	if guid == "" {
		stats.Skipped++
		return nil, nil
	}

	published := now
	switch {
	case item.Published != nil:
		published = *item.Published
	case item.Updated != nil:
		published = *item.Updated
	}

	plain := sanitizer.Text(item.ContentHTML)
	entry := &entity.Entry{
		FeedID:      job.FeedID,
		GUID:        guid,
		URL:         item.Link,
		Title:       item.Title,
		Author:      item.Author,
		Content:     s.Sanitizer.Sanitize(item.ContentHTML),
		Summary:     text.TruncateRunes(plain, summaryRunes),
		PublishedAt: published,
		UpdatedAt:   item.Updated,
		FirstSeen:   now,
	}
	inserted, err := s.EntryRepo.Upsert(ctx, entry)
	if err != nil {
		return nil, fetchErr(KindStorageTransient, err)
	}
	if inserted {
		stats.Inserted++
	} else {
		stats.Updated++
	}

	s.indexEntry(ctx, entry, plain, stats)
	return &published, nil
}

// indexEntry embeds and stores the vector for one entry. Failures never
// fail the message: the entry row is already committed, and the next
// fetch of the feed re-attempts the index.
func (s *Service) indexEntry(ctx context.Context, entry *entity.Entry, plain string, stats *JobStats) {
	if s.Embedder == nil || !s.Embedder.Enabled() {
		return
	}
	logger := slog.Default()

	input := entry.Title + "\n\n" + text.TruncateRunes(plain, embedTextRunes)
	vector, err := s.Embedder.Embed(ctx, input)
	if err != nil {
		stats.IndexFailures++
		metrics.RecordEntryIndexed(false)
		logger.Warn("failed to embed entry",
			slog.Int64("entry_id", entry.ID),
			slog.Int64("feed_id", entry.FeedID),
			slog.String("error_type", string(KindEmbeddingTransient)),
			slog.Any("error", err))
		return
	}

	emb := &entity.EntryEmbedding{
		EntryID:     entry.ID,
		EntryKey:    strconv.FormatInt(entry.ID, 10),
		TitlePrefix: entry.Title,
		Model:       s.Embedder.Model(),
		Dimension:   s.Embedder.Dimensions(),
		Embedding:   vector,
	}
	if err := s.EmbeddingRepo.Upsert(ctx, emb); err != nil {
		stats.IndexFailures++
		metrics.RecordEntryIndexed(false)
		logger.Warn("failed to store entry embedding",
			slog.Int64("entry_id", entry.ID),
			slog.Int64("feed_id", entry.FeedID),
			slog.String("error_type", string(KindEmbeddingTransient)),
			slog.Any("error", err))
		return
	}
	stats.Indexed++
	metrics.RecordEntryIndexed(true)
}

// recordSuccess writes the feed's success bookkeeping: conditional-fetch
// validators, refreshed metadata, cleared failure counters, and the
// last_entry_at watermark. A 304 carries no document, so the stored
// validators are preserved as-is.
func (s *Service) recordSuccess(ctx context.Context, job *entity.FeedJob, result *egress.FetchResult, parsed *parser.ParsedFeed, lastEntryAt *time.Time) *FetchError {
	success := repository.FeedFetchSuccess{
		FeedID:      job.FeedID,
		URL:         job.URL,
		FetchedAt:   time.Now(),
		LastEntryAt: lastEntryAt,
	}
	if result.PermanentRedirect && result.FinalURL != "" {
		success.URL = result.FinalURL
	}
	if result.StatusCode == http.StatusNotModified {
		success.ETag = job.ETag
		success.LastModified = job.LastModified
	} else {
		success.ETag = result.ETag
		success.LastModified = result.LastModified
	}
	if parsed != nil {
		success.Title = parsed.Title
		success.SiteURL = parsed.Link
		success.AuthorName = parsed.AuthorName
		success.AuthorEmail = parsed.AuthorEmail
	}

	safeCtx := context.WithoutCancel(ctx)
	if err := s.FeedRepo.UpdateFetchSuccess(safeCtx, success); err != nil {
		return fetchErr(KindStorageTransient, err)
	}
	return nil
}

// recordFailure writes the feed's failure bookkeeping. The job context
// may already be cancelled or expired, so the write runs detached from
// it. Bookkeeping errors are logged and swallowed: the job's settlement
// must not depend on them.
func (s *Service) recordFailure(ctx context.Context, job *entity.FeedJob, ferr *FetchError) {
	logger := slog.Default()
	safeCtx := context.WithoutCancel(ctx)

	message := text.TruncateRunes(ferr.Error(), errorMessageRunes)
	failures, deactivated, err := s.FeedRepo.UpdateFetchFailure(
		safeCtx, job.FeedID, message, time.Now(), s.cfg.DeactivateThreshold)
	if err != nil {
		logger.Warn("failed to record feed failure",
			slog.Int64("feed_id", job.FeedID),
			slog.Any("error", err))
		return
	}

	if deactivated {
		metrics.RecordFeedDeactivated()
		logger.Warn("feed deactivated after repeated failures",
			slog.Int64("feed_id", job.FeedID),
			slog.Int64("consecutive_failures", failures))
		return
	}
	if failures >= s.cfg.FailureThreshold {
		logger.Warn("feed unhealthy",
			slog.Int64("feed_id", job.FeedID),
			slog.Int64("consecutive_failures", failures))
	}
}
