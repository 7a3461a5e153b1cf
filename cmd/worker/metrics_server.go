package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"planet-cf/internal/infra/queue"
	"planet-cf/pkg/config"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthResponse is the /health body.
type HealthResponse struct {
	Status string `json:"status"`
}

// QueueHealthResponse reports broker reachability and how many jobs sit
// in each stage of the queue.
type QueueHealthResponse struct {
	Healthy bool  `json:"healthy"`
	Ready   int64 `json:"ready"`
	Delayed int64 `json:"delayed"`
	Dead    int64 `json:"dead"`
}

// startMetricsServer runs the worker's observability sidecar and returns
// the server for external shutdown control. It listens on METRICS_PORT
// (default 9090) and shuts down gracefully when ctx is cancelled,
// letting in-flight scrapes finish.
//
// Endpoints:
//   - GET /metrics       Prometheus scrape target
//   - GET /health        liveness probe, always 200
//   - GET /health/queue  broker reachability plus ready/delayed/dead depths
func startMetricsServer(ctx context.Context, logger *slog.Logger, jobQueue *queue.Queue) *http.Server {
	port := metricsPort()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", liveHandler)
	mux.HandleFunc("/health/queue", queueHealthHandler(jobQueue))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("metrics server starting", slog.Int("port", port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", slog.Any("error", err))
		}
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", slog.Any("error", err))
			return
		}
		logger.Info("metrics server stopped")
	}()

	return server
}

// metricsPort reads METRICS_PORT, falling back to 9090 for anything
// that is not a usable port number.
func metricsPort() int {
	port := config.GetEnvInt("METRICS_PORT", 9090)
	if port <= 0 || port > 65535 {
		return 9090
	}
	return port
}

// liveHandler answers GET /health. Always 200; the process being able
// to answer is the whole check.
func liveHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// queueHealthHandler answers GET /health/queue: 200 with stage depths
// when Redis answers a ping, 503 when the broker is unreachable.
func queueHealthHandler(jobQueue *queue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jobQueue == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "job queue not initialized",
			})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := jobQueue.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, QueueHealthResponse{Healthy: false})
			return
		}

		// Depth errors are non-fatal; the ping already proved the broker
		// is up.
		resp := QueueHealthResponse{Healthy: true}
		if depth, err := jobQueue.Depth(ctx); err == nil {
			resp.Ready = depth
		}
		if depth, err := jobQueue.DelayedDepth(ctx); err == nil {
			resp.Delayed = depth
		}
		if depth, err := jobQueue.DeadDepth(ctx); err == nil {
			resp.Dead = depth
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("metrics server: failed to encode response", slog.String("error", err.Error()))
	}
}
