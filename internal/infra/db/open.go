package db

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"planet-cf/internal/resilience/retry"
)

// PoolConfig holds the connection pool limits applied to the shared
// *sql.DB. The API server and the worker read the same DB_* knobs, so
// one deployment manifest covers both binaries.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig returns the limits used when no DB_* knobs are set.
// Sized for one API server plus one worker sharing a small Postgres
// instance.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 1 * time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}
}

// Open connects to Postgres via DATABASE_URL, applies the pool limits
// from the environment, and verifies the server is reachable. The ping
// retries briefly because Postgres often finishes starting after the
// binaries in compose. It terminates the process on failure: neither
// binary can do anything useful without the database.
func Open() *sql.DB {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatal(err)
	}

	cfg := poolConfigFromEnv()
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	err = retry.WithBackoff(context.Background(), retry.DBConfig(), func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return db.PingContext(ctx)
	})
	if err != nil {
		log.Fatalf("failed to ping database: %v", err)
	}

	slog.Info("database connection established",
		slog.Int("max_open_conns", cfg.MaxOpenConns),
		slog.Int("max_idle_conns", cfg.MaxIdleConns),
		slog.Duration("conn_max_lifetime", cfg.ConnMaxLifetime),
		slog.Duration("conn_max_idle_time", cfg.ConnMaxIdleTime))

	return db
}

// poolConfigFromEnv reads the DB_* pool knobs. Bad values are logged
// and replaced with the defaults; a typo in a pool size should not keep
// feeds from being served.
func poolConfigFromEnv() PoolConfig {
	cfg := DefaultPoolConfig()

	cfg.MaxOpenConns = envPositiveInt("DB_MAX_OPEN_CONNS", cfg.MaxOpenConns)
	cfg.MaxIdleConns = envPositiveInt("DB_MAX_IDLE_CONNS", cfg.MaxIdleConns)
	cfg.ConnMaxLifetime = envPositiveDuration("DB_CONN_MAX_LIFETIME", cfg.ConnMaxLifetime)
	cfg.ConnMaxIdleTime = envPositiveDuration("DB_CONN_MAX_IDLE_TIME", cfg.ConnMaxIdleTime)

	return cfg
}

func envPositiveInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		slog.Warn("ignoring invalid pool setting",
			slog.String("key", key), slog.String("value", raw))
		return fallback
	}
	return val
}

func envPositiveDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	val, err := time.ParseDuration(raw)
	if err != nil || val <= 0 {
		slog.Warn("ignoring invalid pool setting",
			slog.String("key", key), slog.String("value", raw))
		return fallback
	}
	return val
}
