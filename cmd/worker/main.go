package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"planet-cf/internal/config"
	hhttp "planet-cf/internal/handler/http/respond"
	pgRepo "planet-cf/internal/infra/adapter/persistence/postgres"
	"planet-cf/internal/infra/db"
	"planet-cf/internal/infra/egress"
	"planet-cf/internal/infra/embedding"
	"planet-cf/internal/infra/parser"
	"planet-cf/internal/infra/queue"
	"planet-cf/internal/infra/sanitizer"
	workerPkg "planet-cf/internal/infra/worker"
	"planet-cf/internal/observability/metrics"
	"planet-cf/internal/resilience/retry"
	"planet-cf/internal/usecase/ingest"
	"planet-cf/internal/usecase/retention"
	"planet-cf/internal/usecase/schedule"
)

const (
	promoteInterval = 5 * time.Second
	claimInterval   = time.Minute
	depthInterval   = 30 * time.Second
)

func waitForMigrations(logger *slog.Logger, db *sql.DB) {
	const probe = "SELECT 1 FROM feeds LIMIT 1"
	for i := 0; i < 10; i++ {
		if _, err := db.Exec(probe); err == nil {
			return
		}
		logger.Info("waiting for migrations, retrying in 3s", slog.Int("attempt", i+1))
		time.Sleep(3 * time.Second)
	}
	logger.Error("migrations did not complete in time")
	os.Exit(1)
}

func waitForQueue(logger *slog.Logger, jobQueue *queue.Queue) {
	for i := 0; i < 10; i++ {
		if err := jobQueue.Ping(context.Background()); err == nil {
			return
		}
		logger.Info("waiting for redis, retrying in 3s", slog.Int("attempt", i+1))
		time.Sleep(3 * time.Second)
	}
	logger.Error("redis did not become reachable in time")
	os.Exit(1)
}

func main() {
	logger := initLogger()
	database := initDatabase(logger)
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load worker configuration (fail-open strategy)
	workerMetrics := workerPkg.NewWorkerMetrics()
	workerMetrics.MustRegister()
	workerConfig, err := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	if err != nil {
		logger.Error("failed to load worker configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker configuration loaded",
		slog.String("cron_schedule", workerConfig.CronSchedule),
		slog.String("timezone", workerConfig.Timezone),
		slog.Int("concurrency", workerConfig.Concurrency),
		slog.Duration("tick_timeout", workerConfig.TickTimeout),
	)

	// Pipeline configuration is strict: a bad PUBLIC_URL or timeout
	// would poison every fetched feed, so refuse to start.
	pipeline, err := config.LoadPipelineConfig()
	if err != nil {
		logger.Error("failed to load pipeline configuration", slog.Any("error", err))
		os.Exit(1)
	}

	jobQueue := initQueue(ctx, logger, pipeline)
	defer func() {
		if err := jobQueue.Close(); err != nil {
			logger.Error("failed to close queue connection", slog.Any("error", err))
		}
	}()

	// Start metrics server for Prometheus scraping
	startMetricsServer(ctx, logger, jobQueue)

	// Start health check server
	healthAddr := fmt.Sprintf(":%d", workerConfig.HealthPort)
	healthServer := workerPkg.NewHealthServer(healthAddr, logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()
	logger.Info("health check server started", slog.String("addr", healthAddr))

	ingestSvc, scheduleSvc, retentionSvc := setupServices(logger, database, jobQueue, pipeline)

	// Declarative roster: seed missing feeds from FEEDS_FILE before the
	// first tick fans out.
	if path := os.Getenv("FEEDS_FILE"); path != "" {
		syncRosterFromFile(logger, scheduleSvc, path)
	}

	cronScheduler := startCronScheduler(logger, scheduleSvc, retentionSvc, workerConfig, workerMetrics)

	g, gctx := errgroup.WithContext(ctx)
	startConsumers(gctx, g, logger, ingestSvc, jobQueue, workerConfig.Concurrency)
	startQueueMaintenance(gctx, g, logger, ingestSvc, jobQueue, pipeline.Fetch.FeedTimeout)

	// Mark as ready after cron and consumers are set up
	healthServer.SetReady(true)
	logger.Info("worker marked as ready")

	logger.Info("worker started",
		slog.String("schedule", workerConfig.CronSchedule),
		slog.String("timezone", workerConfig.Timezone),
		slog.Int("consumers", workerConfig.Concurrency),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received, stopping worker")

	healthServer.SetReady(false)

	// 実行中のティックが終わるまで待つ
	cronCtx := cronScheduler.Stop()

	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker loop exited with error", slog.Any("error", err))
	}

	select {
	case <-cronCtx.Done():
	case <-time.After(30 * time.Second):
		logger.Warn("timed out waiting for running cron jobs")
	}

	logger.Info("worker stopped")
}

// initLogger configures structured JSON logging with a level taken from
// the LOG_LEVEL environment variable (debug, info, warn, error).
func initLogger() *slog.Logger {
	logLevel := slog.LevelInfo
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		switch strings.ToLower(level) {
		case "debug":
			logLevel = slog.LevelDebug
		case "warn":
			logLevel = slog.LevelWarn
		case "error":
			logLevel = slog.LevelError
		}
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// initDatabase opens the PostgreSQL pool and blocks until the schema
// migrations have been applied by the migrate container.
func initDatabase(logger *slog.Logger) *sql.DB {
	database := db.Open()
	waitForMigrations(logger, database)
	logger.Info("database connection established")
	return database
}

// initQueue connects to Redis, waits for it to become reachable and
// makes sure the consumer group exists before any consumer starts.
func initQueue(ctx context.Context, logger *slog.Logger, pipeline *config.PipelineConfig) *queue.Queue {
	queueConfig := queue.DefaultConfig()
	queueConfig.URL = getRedisURL()
	queueConfig.MaxAttempts = pipeline.Fetch.MaxAttempts

	jobQueue, err := queue.New(queueConfig)
	if err != nil {
		logger.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}

	waitForQueue(logger, jobQueue)

	if err := jobQueue.EnsureGroup(ctx); err != nil {
		logger.Error("failed to create consumer group", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("Job queue initialized",
		slog.String("stream", queueConfig.Stream),
		slog.String("group", queueConfig.Group),
		slog.Int("max_attempts", queueConfig.MaxAttempts),
	)
	return jobQueue
}

// setupServices wires the repositories, the outbound HTTP client and the
// three pipeline services: ingest consumes fetch jobs, schedule fans
// them out, retention prunes expired entries.
func setupServices(logger *slog.Logger, database *sql.DB, jobQueue *queue.Queue, pipeline *config.PipelineConfig) (*ingest.Service, *schedule.Service, *retention.Service) {
	feedRepo := pgRepo.NewFeedRepo(database)
	entryRepo := pgRepo.NewEntryRepo(database)
	embeddingRepo := pgRepo.NewEntryEmbeddingRepo(database)

	clientConfig := egress.DefaultClientConfig()
	clientConfig.Timeout = pipeline.Fetch.HTTPTimeout
	clientConfig.UserAgent = egress.UserAgent(getVersion(), pipeline.Site.PublicURL, pipeline.Site.AdminEmail)
	client := egress.NewClient(clientConfig)

	ingestConfig := ingest.Config{
		FeedTimeout:         pipeline.Fetch.FeedTimeout,
		MaxEntriesPerFeed:   pipeline.Ingest.MaxEntriesPerFeed,
		FailureThreshold:    int64(pipeline.Ingest.FailureThreshold),
		DeactivateThreshold: int64(pipeline.Ingest.DeactivateThreshold),
	}
	ingestSvc := ingest.NewService(
		feedRepo,
		entryRepo,
		embeddingRepo,
		client,
		parser.New(),
		sanitizer.New(),
		setupEmbedder(logger),
		jobQueue,
		ingestConfig,
		retry.JobRetryConfig(),
	)

	scheduleSvc := schedule.NewService(feedRepo, jobQueue)

	retentionConfig := retention.DefaultConfig()
	retentionConfig.MaxAge = time.Duration(pipeline.Retention.Days) * 24 * time.Hour
	retentionConfig.MaxPerFeed = pipeline.Retention.MaxPerFeed
	retentionConfig.KeepFloor = pipeline.Site.FallbackEntries
	retentionSvc := retention.NewService(entryRepo, embeddingRepo, retentionConfig)

	return ingestSvc, scheduleSvc, retentionSvc
}

// setupEmbedder creates the embedding client. A missing API key or a
// broken embedding configuration disables vector indexing but never
// takes the crawl pipeline down with it.
func setupEmbedder(logger *slog.Logger) ingest.Embedder {
	embeddingConfig, err := embedding.LoadConfig()
	if err != nil {
		logger.Warn("Invalid embedding configuration, vector indexing disabled", slog.Any("error", err))
		return nil
	}
	if !embeddingConfig.Enabled {
		logger.Info("Vector indexing disabled")
		return nil
	}
	logger.Info("Embedding client initialized",
		slog.String("model", embeddingConfig.Model),
		slog.Int("dimensions", embeddingConfig.Dimensions),
	)
	return embedding.NewOpenAI(embeddingConfig)
}

// syncRosterFromFile seeds the feed roster from a YAML subscriptions
// file. Failures are logged and skipped; a broken roster file must not
// keep the worker from fetching the feeds it already has.
func syncRosterFromFile(logger *slog.Logger, scheduleSvc *schedule.Service, path string) {
	subs, err := config.LoadSubscriptions(path)
	if err != nil {
		logger.Error("failed to load subscriptions file",
			slog.String("path", path),
			slog.Any("error", hhttp.SanitizeError(err)))
		return
	}

	// The roster file passes the same URL policy the fetch path enforces,
	// so a blocked entry is caught here once instead of failing on every
	// poll until auto-deactivation.
	desired := make([]schedule.RosterFeed, 0, len(subs))
	skipped := 0
	for _, sub := range subs {
		if !egress.IsSafe(sub.URL) {
			skipped++
			logger.Warn("skipping roster entry with blocked URL",
				slog.String("url", sub.URL))
			continue
		}
		desired = append(desired, schedule.RosterFeed{URL: sub.URL, Title: sub.Title})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	added, err := scheduleSvc.SyncRoster(ctx, desired)
	if err != nil {
		logger.Error("roster sync failed", slog.Any("error", hhttp.SanitizeError(err)))
		return
	}
	logger.Info("Feed roster synced",
		slog.String("path", path),
		slog.Int("subscriptions", len(subs)),
		slog.Int("added", added),
		slog.Int("skipped", skipped),
	)
}

// startCronScheduler starts the cron runner and registers the periodic
// scheduling tick.
func startCronScheduler(logger *slog.Logger, scheduleSvc *schedule.Service, retentionSvc *retention.Service, cfg *workerPkg.WorkerConfig, workerMetrics *workerPkg.WorkerMetrics) *cron.Cron {
	// Load timezone
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone, using UTC", slog.String("timezone", cfg.Timezone), slog.Any("error", err))
		loc = time.UTC
	}
	c := cron.New(cron.WithLocation(loc))

	_, err = c.AddFunc(cfg.CronSchedule, func() {
		runScheduleTick(logger, scheduleSvc, retentionSvc, cfg, workerMetrics)
	})
	if err != nil {
		logger.Error("failed to add cron job", slog.Any("error", err))
		os.Exit(1)
	}
	c.Start()

	return c
}

// runScheduleTick executes a single scheduling tick with timeout and
// error handling: fan all due feeds out to the queue, then sweep
// expired entries.
func runScheduleTick(logger *slog.Logger, scheduleSvc *schedule.Service, retentionSvc *retention.Service, cfg *workerPkg.WorkerConfig, workerMetrics *workerPkg.WorkerMetrics) {
	startTime := time.Now()
	workerMetrics.RecordJobRun("started")
	logger.Info("scheduling tick started")

	// ティック処理のタイムアウト（設定から取得）
	ctx, cancel := context.WithTimeout(context.Background(), cfg.TickTimeout)
	defer cancel()

	stats, err := scheduleSvc.EnqueueDueFeeds(ctx)
	if err != nil {
		// 機密情報をマスクしてログ出力
		logger.Error("feed fan-out failed", slog.Any("error", hhttp.SanitizeError(err)))
		workerMetrics.RecordJobRun("failure")
		workerMetrics.RecordJobDuration(time.Since(startTime).Seconds())
		return
	}

	sweep, err := retentionSvc.Sweep(ctx)
	if err != nil {
		logger.Error("retention sweep failed", slog.Any("error", hhttp.SanitizeError(err)))
		workerMetrics.RecordJobRun("failure")
		workerMetrics.RecordJobDuration(time.Since(startTime).Seconds())
		return
	}

	// Record metrics
	workerMetrics.RecordJobRun("success")
	workerMetrics.RecordJobDuration(time.Since(startTime).Seconds())
	workerMetrics.RecordFeedsProcessed(stats.Enqueued)
	workerMetrics.RecordLastSuccess()

	logger.Info("scheduling tick completed",
		slog.Int("active_feeds", stats.ActiveFeeds),
		slog.Int("enqueued", stats.Enqueued),
		slog.Int("skipped", stats.Skipped),
		slog.Int64("entries_deleted", sweep.EntriesDeleted),
		slog.Int64("vectors_deleted", sweep.VectorsDeleted),
		slog.Duration("duration", time.Since(startTime)),
	)
}

// startConsumers launches the blocking-read consumer pool. Each consumer
// gets a stable name so its pending entries survive a restart and can be
// reclaimed under the same identity.
func startConsumers(ctx context.Context, g *errgroup.Group, logger *slog.Logger, ingestSvc *ingest.Service, jobQueue *queue.Queue, concurrency int) {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}

	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", host, i)
		g.Go(func() error {
			logger.Info("consumer started", slog.String("consumer", consumer))
			for {
				messages, err := jobQueue.Read(ctx, consumer)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					logger.Error("queue read failed",
						slog.String("consumer", consumer),
						slog.Any("error", hhttp.SanitizeError(err)),
					)
					select {
					case <-ctx.Done():
						return nil
					case <-time.After(time.Second):
					}
					continue
				}

				for _, message := range messages {
					// HandleMessage settles the message itself (ack,
					// delayed retry or dead-letter); an error here means
					// the settlement failed, not the fetch.
					if err := ingestSvc.HandleMessage(ctx, message); err != nil {
						logger.Error("job settlement failed",
							slog.String("consumer", consumer),
							slog.String("message_id", message.ID),
							slog.Any("error", hhttp.SanitizeError(err)),
						)
					}
				}
			}
		})
	}
}

// startQueueMaintenance runs the background loops every worker needs
// next to its consumers: promoting delayed retries back into the
// stream, reclaiming jobs from dead consumers and exporting queue
// depths.
func startQueueMaintenance(ctx context.Context, g *errgroup.Group, logger *slog.Logger, ingestSvc *ingest.Service, jobQueue *queue.Queue, feedTimeout time.Duration) {
	g.Go(func() error {
		ticker := time.NewTicker(promoteInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				promoted, err := jobQueue.PromoteDue(ctx, time.Now())
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					logger.Error("failed to promote delayed jobs", slog.Any("error", hhttp.SanitizeError(err)))
					continue
				}
				if promoted > 0 {
					logger.Debug("promoted delayed jobs", slog.Int("count", promoted))
				}
			}
		}
	})

	g.Go(func() error {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "worker"
		}
		reclaimer := host + "-reclaimer"
		// A job counts as orphaned once it has been pending for two full
		// feed timeouts without an ack.
		minIdle := 2 * feedTimeout

		ticker := time.NewTicker(claimInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				messages, err := jobQueue.Claim(ctx, reclaimer, minIdle)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					logger.Error("failed to claim stale jobs", slog.Any("error", hhttp.SanitizeError(err)))
					continue
				}
				if len(messages) > 0 {
					logger.Info("reclaimed stale jobs", slog.Int("count", len(messages)))
				}
				for _, message := range messages {
					if err := ingestSvc.HandleMessage(ctx, message); err != nil {
						logger.Error("job settlement failed",
							slog.String("consumer", reclaimer),
							slog.String("message_id", message.ID),
							slog.Any("error", hhttp.SanitizeError(err)),
						)
					}
				}
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(depthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				recordQueueDepths(ctx, jobQueue)
			}
		}
	})
}

// recordQueueDepths samples the queue depths into the shared gauge.
// Errors are ignored; the next tick will try again.
func recordQueueDepths(ctx context.Context, jobQueue *queue.Queue) {
	if depth, err := jobQueue.Depth(ctx); err == nil {
		metrics.QueueDepth.WithLabelValues("ready").Set(float64(depth))
	}
	if depth, err := jobQueue.DelayedDepth(ctx); err == nil {
		metrics.QueueDepth.WithLabelValues("delayed").Set(float64(depth))
	}
	if depth, err := jobQueue.DeadDepth(ctx); err == nil {
		metrics.QueueDepth.WithLabelValues("dead").Set(float64(depth))
	}
}

// getRedisURL returns the Redis connection URL from the environment.
func getRedisURL() string {
	if url := os.Getenv("REDIS_URL"); url != "" {
		return url
	}
	return "redis://localhost:6379/0"
}

// getVersion returns the running release, used in logs and in the
// crawler User-Agent.
func getVersion() string {
	if version := os.Getenv("VERSION"); version != "" {
		return version
	}
	return "dev"
}
