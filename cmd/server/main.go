// Command server runs the task scheduling engine behind its HTTP API.
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
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/phrazzld/dispatch-api/internal/config"
	"github.com/phrazzld/dispatch-api/internal/executor"
	"github.com/phrazzld/dispatch-api/internal/platform/logger"
	"github.com/phrazzld/dispatch-api/internal/platform/postgres"
	"github.com/phrazzld/dispatch-api/internal/platform/redis"
	"github.com/phrazzld/dispatch-api/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.Setup(cfg.Server.LogLevel)
	log.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"backend", cfg.Scheduler.Backend,
		"workers", cfg.Scheduler.WorkerCount)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts, cleanup, err := buildBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	sched := scheduler.New(scheduler.Config{
		WorkerCount:      cfg.Scheduler.WorkerCount,
		MaxQueueSize:     cfg.Scheduler.MaxQueueSize,
		PollInterval:     cfg.Scheduler.PollInterval,
		CleanupInterval:  cfg.Scheduler.CleanupInterval,
		RetentionPeriod:  cfg.Scheduler.RetentionPeriod,
		BackendOpTimeout: cfg.Scheduler.BackendOpTimeout,
	}, log, opts...)

	executor.RegisterSimulated(sched)

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           newRouter(sched),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown incomplete", "error", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Warn("scheduler shutdown incomplete", "error", err)
	}
	return nil
}

// buildBackend constructs the configured durable backend, if any, and
// returns the scheduler options plus a cleanup func for its connections.
func buildBackend(ctx context.Context, cfg *config.Config, log *slog.Logger) ([]scheduler.Option, func(), error) {
	switch cfg.Scheduler.Backend {
	case "redis":
		backend, err := redis.New(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect redis backend: %w", err)
		}
		log.Info("using redis queue backend", "addr", cfg.Redis.Addr)
		return []scheduler.Option{scheduler.WithBackend(backend)}, func() {
			if err := backend.Close(); err != nil {
				log.Warn("failed to close redis backend", "error", err)
			}
		}, nil

	case "postgres":
		db, err := sql.Open("pgx", cfg.Database.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}
		if err := postgres.RunMigrations(db); err != nil {
			return nil, nil, err
		}
		log.Info("using postgres queue backend")
		return []scheduler.Option{scheduler.WithBackend(postgres.NewQueueStore(db))}, func() {
			if err := db.Close(); err != nil {
				log.Warn("failed to close database", "error", err)
			}
		}, nil

	default:
		log.Info("using in-process queue", "max_queue_size", cfg.Scheduler.MaxQueueSize)
		return nil, func() {}, nil
	}
}
