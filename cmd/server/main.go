package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"json-store/internal/api"
	"json-store/internal/config"
	"json-store/internal/logs"
	"json-store/internal/metrics"
	"json-store/internal/repository"
	"json-store/internal/retry"
	"json-store/internal/store"
	"json-store/internal/ttl"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "json-store:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv(os.LookupEnv)
	if err != nil {
		return err
	}

	// Root context, cancelled on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Logger: in-memory ring for /admin/logs, JSON lines on stderr
	logger := logs.NewLogger(cfg.Log.BufferSize, cfg.Log.Level).
		WithSink(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Metrics
	metricsRegistry := metrics.NewRegistry()

	// Repository
	repo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	// Store
	kvStore := store.NewStore(repo, metricsRegistry, logger.With("component", "store"))

	// Sweeper
	sweeper := ttl.NewSweeper(repo, cfg.Sweep, logger, metricsRegistry)
	if err := sweeper.Start(ctx); err != nil {
		logger.Warn("initial cleanup failed, sweeper stays scheduled", "error", err)
	}
	defer sweeper.Stop()

	// API
	handler := api.NewHandler(kvStore, sweeper, metricsRegistry, logger.With("component", "api"))
	mux := http.NewServeMux()

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.RegisterRoutes(mux, handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server started", "addr", cfg.HTTPAddr, "backend", string(cfg.Backend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openRepository opens the configured backend, retrying while the file is
// locked or the database is busy.
func openRepository(ctx context.Context, cfg config.Config, logger *logs.Logger) (store.Repository, error) {
	var repo store.Repository

	err := retry.Do(ctx, cfg.Open, func() error {
		var err error
		switch cfg.Backend {
		case config.BackendBolt:
			repo, err = repository.OpenBolt(cfg.DSN, repository.BoltOptions{})
		default:
			repo, err = repository.OpenSQL(ctx, cfg.DSN)
		}
		return err
	}, func(attempt int, err error) {
		logger.Warn("open repository failed, retrying", "attempt", attempt, "error", err)
	})
	if err != nil {
		return nil, fmt.Errorf("open %s repository: %w", cfg.Backend, err)
	}
	return repo, nil
}
