// Package queue is the Redis Streams transport between the scheduler and
// the fetch workers.
//
// Topology: one stream of fetch jobs consumed through a consumer group,
// a sorted set holding jobs scheduled for delayed retry, and a dead-letter
// stream for jobs that exhausted their attempts. Consumer-group semantics
// give at-least-once delivery; the fetch pipeline is idempotent, so
// duplicate delivery is safe.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"planet-cf/internal/domain/entity"
)

// Config holds the queue topology and read tuning.
type Config struct {
	// URL is the Redis connection URL (redis://host:port/db).
	URL string
	// Stream is the fetch-job stream key.
	Stream string
	// Group is the consumer group name all worker processes share.
	Group string
	// DeadStream receives jobs that exhausted their attempts.
	DeadStream string
	// DelaySet is the sorted set holding delayed retries, scored by the
	// unix time at which the retry becomes due.
	DelaySet string
	// ReadCount bounds how many messages one blocking read may return.
	ReadCount int64
	// BlockTimeout bounds how long a read blocks when the stream is empty.
	BlockTimeout time.Duration
	// MaxAttempts is the total number of delivery attempts per job before
	// it is moved to the dead-letter stream.
	MaxAttempts int
}

// DefaultConfig returns the production topology.
func DefaultConfig() Config {
	return Config{
		Stream:       "planet:jobs",
		Group:        "fetchers",
		DeadStream:   "planet:jobs:dead",
		DelaySet:     "planet:jobs:delayed",
		ReadCount:    1,
		BlockTimeout: 5 * time.Second,
		MaxAttempts:  5,
	}
}

// Message is one delivered job together with its stream ID, which is what
// Ack and Retry need to settle it.
type Message struct {
	ID  string
	Job entity.FeedJob
}

// Queue wraps a Redis client with the stream operations the scheduler and
// workers need. Safe for concurrent use.
type Queue struct {
	client *redis.Client
	cfg    Config
}

// New connects to Redis using the URL in cfg.
func New(cfg Config) (*Queue, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("New: parse redis url: %w", err)
	}
	return NewWithClient(redis.NewClient(opts), cfg), nil
}

// NewWithClient wraps an existing client. Used by tests and by callers
// that share one client across subsystems.
func NewWithClient(client *redis.Client, cfg Config) *Queue {
	def := DefaultConfig()
	if cfg.Stream == "" {
		cfg.Stream = def.Stream
	}
	if cfg.Group == "" {
		cfg.Group = def.Group
	}
	if cfg.DeadStream == "" {
		cfg.DeadStream = def.DeadStream
	}
	if cfg.DelaySet == "" {
		cfg.DelaySet = def.DelaySet
	}
	if cfg.ReadCount <= 0 {
		cfg.ReadCount = def.ReadCount
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = def.BlockTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	return &Queue{client: client, cfg: cfg}
}

// EnsureGroup creates the consumer group, creating the stream alongside it
// if needed. Safe to call from every worker process at startup.
func (q *Queue) EnsureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.cfg.Stream, q.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("EnsureGroup: %w", err)
	}
	return nil
}

// Publish appends one job to the stream and returns its message ID.
func (q *Queue) Publish(ctx context.Context, job entity.FeedJob) (string, error) {
	id, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.cfg.Stream,
		Values: jobValues(job),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("Publish: %w", err)
	}
	return id, nil
}

// PublishBatch appends jobs in one pipeline round trip. Pipelining is a
// transport optimization only: each job is still its own message.
func (q *Queue) PublishBatch(ctx context.Context, jobs []entity.FeedJob) error {
	if len(jobs) == 0 {
		return nil
	}
	pipe := q.client.Pipeline()
	for _, job := range jobs {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: q.cfg.Stream,
			Values: jobValues(job),
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("PublishBatch: %w", err)
	}
	return nil
}

// Read blocks for up to BlockTimeout waiting for new messages for this
// consumer. An empty stream returns (nil, nil), not an error.
func (q *Queue) Read(ctx context.Context, consumer string) ([]Message, error) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.cfg.Group,
		Consumer: consumer,
		Streams:  []string{q.cfg.Stream, ">"},
		Count:    q.cfg.ReadCount,
		Block:    q.cfg.BlockTimeout,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Read: %w", err)
	}

	var messages []Message
	for _, stream := range streams {
		for _, m := range stream.Messages {
			messages = append(messages, Message{ID: m.ID, Job: parseJob(m.Values)})
		}
	}
	return messages, nil
}

// Ack settles a message as terminally handled.
func (q *Queue) Ack(ctx context.Context, messageID string) error {
	if err := q.client.XAck(ctx, q.cfg.Stream, q.cfg.Group, messageID).Err(); err != nil {
		return fmt.Errorf("Ack: %w", err)
	}
	return nil
}

// Retry settles the delivered message and schedules the job's next attempt
// after the given delay. When the next attempt would reach MaxAttempts the
// job goes to the dead-letter stream instead; the returned bool reports
// whether a retry was actually scheduled.
//
// The original message is XACKed in both cases: after this call the job's
// at-least-once guarantee is carried by the delay set or the dead-letter
// stream, not by the pending entries list.
func (q *Queue) Retry(ctx context.Context, msg Message, delay time.Duration, reason string) (bool, error) {
	next := msg.Job
	next.Attempt++

	if next.Attempt >= q.cfg.MaxAttempts {
		if err := q.DeadLetter(ctx, msg, reason); err != nil {
			return false, fmt.Errorf("Retry: %w", err)
		}
		return false, nil
	}

	payload, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("Retry: encode job: %w", err)
	}
	readyAt := time.Now().Add(delay)
	if err := q.client.ZAdd(ctx, q.cfg.DelaySet, redis.Z{
		Score:  float64(readyAt.UnixMilli()) / 1e3,
		Member: string(payload),
	}).Err(); err != nil {
		return false, fmt.Errorf("Retry: schedule: %w", err)
	}
	if err := q.Ack(ctx, msg.ID); err != nil {
		return false, fmt.Errorf("Retry: %w", err)
	}
	return true, nil
}

// DeadLetter copies the job to the dead-letter stream with the failure
// reason and settles the original message.
func (q *Queue) DeadLetter(ctx context.Context, msg Message, reason string) error {
	values := jobValues(msg.Job)
	values["reason"] = reason
	values["failed_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	if err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.cfg.DeadStream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("DeadLetter: %w", err)
	}
	return q.Ack(ctx, msg.ID)
}

// PromoteDue republishes every delayed job whose retry time has passed.
// Returns the number of jobs moved back onto the stream. Duplicate
// promotion after a crash between XAdd and ZRem is possible and tolerated.
func (q *Queue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	max := strconv.FormatFloat(float64(now.UnixMilli())/1e3, 'f', 3, 64)
	members, err := q.client.ZRangeByScore(ctx, q.cfg.DelaySet, &redis.ZRangeBy{
		Min: "-inf",
		Max: max,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("PromoteDue: %w", err)
	}

	promoted := 0
	for _, member := range members {
		var job entity.FeedJob
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			// Unreadable member would loop forever; drop it.
			_ = q.client.ZRem(ctx, q.cfg.DelaySet, member).Err()
			continue
		}
		if _, err := q.Publish(ctx, job); err != nil {
			return promoted, fmt.Errorf("PromoteDue: %w", err)
		}
		if err := q.client.ZRem(ctx, q.cfg.DelaySet, member).Err(); err != nil {
			return promoted, fmt.Errorf("PromoteDue: %w", err)
		}
		promoted++
	}
	return promoted, nil
}

// Claim transfers messages that another consumer read but left pending for
// at least minIdle to this consumer, so crashed workers do not strand
// jobs. Returns the claimed messages for normal processing.
func (q *Queue) Claim(ctx context.Context, consumer string, minIdle time.Duration) ([]Message, error) {
	claimed, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.cfg.Stream,
		Group:    q.cfg.Group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    q.cfg.ReadCount,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("Claim: %w", err)
	}

	messages := make([]Message, 0, len(claimed))
	for _, m := range claimed {
		messages = append(messages, Message{ID: m.ID, Job: parseJob(m.Values)})
	}
	return messages, nil
}

// Depth reports the stream length, for gauges. This counts all entries in
// the stream, delivered or not.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.XLen(ctx, q.cfg.Stream).Result()
	if err != nil {
		return 0, fmt.Errorf("Depth: %w", err)
	}
	return n, nil
}

// DelayedDepth reports the number of jobs waiting in the delay set.
func (q *Queue) DelayedDepth(ctx context.Context) (int64, error) {
	n, err := q.client.ZCard(ctx, q.cfg.DelaySet).Result()
	if err != nil {
		return 0, fmt.Errorf("DelayedDepth: %w", err)
	}
	return n, nil
}

// DeadDepth reports the dead-letter stream length.
func (q *Queue) DeadDepth(ctx context.Context) (int64, error) {
	n, err := q.client.XLen(ctx, q.cfg.DeadStream).Result()
	if err != nil {
		return 0, fmt.Errorf("DeadDepth: %w", err)
	}
	return n, nil
}

// Ping checks connectivity.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (q *Queue) Close() error {
	return q.client.Close()
}

// jobValues flattens a job into stream field/values. Optional validators
// are omitted rather than sent empty.
func jobValues(job entity.FeedJob) map[string]interface{} {
	values := map[string]interface{}{
		"feed_id":        strconv.FormatInt(job.FeedID, 10),
		"url":            job.URL,
		"scheduled_at":   job.ScheduledAt.UTC().Format(time.RFC3339Nano),
		"correlation_id": job.CorrelationID,
		"attempt":        strconv.Itoa(job.Attempt),
	}
	if job.ETag != "" {
		values["etag"] = job.ETag
	}
	if job.LastModified != "" {
		values["last_modified"] = job.LastModified
	}
	return values
}

// parseJob is the tolerant inverse of jobValues: missing or malformed
// fields yield zero values rather than errors, and the pipeline's own
// validation decides what to do with the result.
func parseJob(values map[string]interface{}) entity.FeedJob {
	var job entity.FeedJob
	if v, ok := values["feed_id"].(string); ok {
		job.FeedID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := values["url"].(string); ok {
		job.URL = v
	}
	if v, ok := values["etag"].(string); ok {
		job.ETag = v
	}
	if v, ok := values["last_modified"].(string); ok {
		job.LastModified = v
	}
	if v, ok := values["scheduled_at"].(string); ok {
		job.ScheduledAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	if v, ok := values["correlation_id"].(string); ok {
		job.CorrelationID = v
	}
	if v, ok := values["attempt"].(string); ok {
		job.Attempt, _ = strconv.Atoi(v)
	}
	return job
}
