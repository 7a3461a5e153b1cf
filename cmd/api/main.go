package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	appConfig "planet-cf/internal/config"
	pgRepo "planet-cf/internal/infra/adapter/persistence/postgres"
	"planet-cf/internal/infra/db"
	"planet-cf/internal/infra/embedding"
	"planet-cf/internal/observability/slo"
	"planet-cf/internal/observability/tracing"
	"planet-cf/pkg/config"
	"planet-cf/pkg/security/csp"

	renderUC "planet-cf/internal/usecase/render"
	searchUC "planet-cf/internal/usecase/search"

	hhttp "planet-cf/internal/handler/http"
	"planet-cf/internal/handler/http/middleware"
	"planet-cf/internal/handler/http/planet"
	"planet-cf/internal/handler/http/requestid"
)

func main() {
	logger := initLogger()
	database := initDatabase(logger)
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	version := getVersion()
	serverComponents := setupServer(logger, database, version)

	runServer(logger, serverComponents, version)
}

// initLogger initializes and returns a structured logger based on environment configuration.
func initLogger() *slog.Logger {
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// initDatabase opens the database connection and runs migrations.
func initDatabase(logger *slog.Logger) *sql.DB {
	database := db.Open()
	if err := db.MigrateUp(database); err != nil {
		logger.Error("failed to migrate database", slog.Any("error", err))
		os.Exit(1)
	}
	return database
}

// getVersion returns the application version from environment or default.
func getVersion() string {
	return config.GetEnvString("VERSION", "dev")
}

// ServerComponents holds components needed for server operation and cleanup.
type ServerComponents struct {
	Handler http.Handler
	Limiter *hhttp.RateLimiter // rate limiter for the cleanup goroutine
}

// setupServer configures and returns the HTTP handler with all routes and middleware.
func setupServer(logger *slog.Logger, database *sql.DB, version string) *ServerComponents {
	pipeline, err := appConfig.LoadPipelineConfig()
	if err != nil {
		logger.Error("invalid pipeline configuration", slog.Any("error", err))
		os.Exit(1)
	}

	feedRepo := pgRepo.NewFeedRepo(database)
	entryRepo := pgRepo.NewEntryRepo(database)
	embeddingRepo := pgRepo.NewEntryEmbeddingRepo(database)

	renderer := renderUC.NewService(feedRepo, entryRepo, renderUC.Config{
		Title:           pipeline.Site.Title,
		PublicURL:       pipeline.Site.PublicURL,
		AdminEmail:      pipeline.Site.AdminEmail,
		ContentDays:     pipeline.Site.ContentDays,
		FallbackEntries: pipeline.Site.FallbackEntries,
		Location:        time.UTC,
	})

	searcher := searchUC.NewService(setupQueryEmbedder(logger), embeddingRepo, entryRepo)

	rateLimitConfig := config.LoadRateLimitConfig()

	var rateLimiter *hhttp.RateLimiter
	if rateLimitConfig.Enabled {
		rateLimiter = hhttp.NewRateLimiter(rateLimitConfig.Limit, rateLimitConfig.Window)
		logger.Info("rate limiting initialized",
			slog.Bool("enabled", true),
			slog.Int("ip_limit", rateLimitConfig.Limit),
			slog.Duration("ip_window", rateLimitConfig.Window),
		)
	} else {
		logger.Warn("rate limiting is DISABLED - not recommended for production")
	}

	mux := setupRoutes(database, version, renderer, searcher)
	handler := applyMiddleware(logger, mux, rateLimiter)

	return &ServerComponents{
		Handler: handler,
		Limiter: rateLimiter,
	}
}

// setupQueryEmbedder builds the query-side embedding client. Any
// configuration problem disables vector search instead of blocking the
// read path; the search service degrades to empty results.
func setupQueryEmbedder(logger *slog.Logger) searchUC.QueryEmbedder {
	embeddingConfig, err := embedding.LoadConfig()
	if err != nil {
		logger.Warn("Invalid embedding configuration, vector search disabled", slog.Any("error", err))
		return nil
	}
	if !embeddingConfig.Enabled {
		logger.Info("Vector search disabled")
		return nil
	}

	logger.Info("Embedding client initialized",
		slog.String("model", embeddingConfig.Model),
		slog.Int("dimensions", embeddingConfig.Dimensions))
	return embedding.NewOpenAI(embeddingConfig)
}

// setupRoutes registers the public surfaces and the operational endpoints.
func setupRoutes(database *sql.DB, version string, renderer *renderUC.Service, searcher *searchUC.Service) *http.ServeMux {
	mux := http.NewServeMux()
	planet.Register(mux, renderer, searcher)

	// ヘルスチェックエンドポイント（認証不要）
	mux.Handle("/healthz", &hhttp.HealthHandler{DB: database, Version: version})
	mux.Handle("/readyz", &hhttp.ReadyHandler{DB: database})
	mux.Handle("/livez", &hhttp.LiveHandler{})
	mux.Handle("/metrics", hhttp.MetricsHandler())

	return mux
}

// applyMiddleware wraps the handler with the full middleware chain,
// outermost first: request ID, IP rate limit, recovery, tracing,
// logging, input validation, CSP, metrics.
func applyMiddleware(logger *slog.Logger, handler http.Handler, rateLimiter *hhttp.RateLimiter) http.Handler {
	cspConfig := config.LoadCSPConfig()

	// Create CSP middleware
	var cspMiddleware func(http.Handler) http.Handler
	if cspConfig.Enabled {
		cspMW := middleware.NewCSPMiddleware(middleware.CSPMiddlewareConfig{
			Enabled:       true,
			DefaultPolicy: csp.StrictPolicy(),
			PathPolicies: map[string]*csp.CSPBuilder{
				"/": csp.HomePagePolicy(),
			},
			ReportOnly: cspConfig.ReportOnly,
		})
		cspMiddleware = cspMW.Middleware()
		logger.Info("CSP enabled",
			slog.Bool("report_only", cspConfig.ReportOnly))
	} else {
		// No-op middleware if CSP is disabled
		cspMiddleware = func(next http.Handler) http.Handler {
			return next
		}
		logger.Warn("CSP is disabled")
	}

	// Build middleware chain
	// Recommended order:
	// 1. Request ID (generates unique ID for request tracking)
	// 2. IP Rate Limiting (check rate limit before expensive operations)
	// 3. Recovery (catch panics)
	// 4. Tracing (open a span so the request log carries a trace ID)
	// 5. Logging (log all requests)
	// 6. Input Validation (path/query/body size limits)
	// 7. CSP (set security headers)
	// 8. Metrics (record request metrics)

	middlewareChain := handler

	// Apply in reverse order (innermost to outermost)
	middlewareChain = hhttp.MetricsMiddleware(middlewareChain)
	middlewareChain = cspMiddleware(middlewareChain)
	middlewareChain = hhttp.InputValidation()(middlewareChain)
	middlewareChain = hhttp.Logging(logger)(middlewareChain)
	middlewareChain = tracing.Middleware(middlewareChain)
	middlewareChain = hhttp.Recover(logger)(middlewareChain)

	// Apply IP rate limiting if enabled
	if rateLimiter != nil {
		middlewareChain = rateLimiter.Limit(middlewareChain)
	}

	middlewareChain = requestid.Middleware(middlewareChain)

	return middlewareChain
}

// runServer starts the HTTP server and handles graceful shutdown.
func runServer(logger *slog.Logger, components *ServerComponents, version string) {
	// Create a context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the background cleanup goroutine for the rate limiter
	if components.Limiter != nil {
		cleanupCfg := hhttp.LoadCleanupConfigFromEnv()
		go hhttp.StartRateLimitCleanup(ctx, components.Limiter, cleanupCfg.Interval)
	}

	// Fold request counters into the SLO gauges once a minute
	go slo.PublishLoop(ctx, time.Minute)

	srv := &http.Server{
		Addr:              ":" + config.GetEnvString("PORT", "8080"),
		Handler:           components.Handler,
		ReadHeaderTimeout: 10 * time.Second, // Prevent Slowloris attacks
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	// Cancel background goroutines (rate limit cleanup)
	cancel()
	logger.Debug("background cleanup goroutines cancelled")

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", slog.Any("error", err))
	}
	logger.Info("server stopped")
}
