// Package main is the entry point for the aio-iiif HTTP server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/greut/aio-iiif/internal/config"
	"github.com/greut/aio-iiif/internal/engine"
	"github.com/greut/aio-iiif/internal/fetch"
	"github.com/greut/aio-iiif/internal/metrics"
	"github.com/greut/aio-iiif/internal/server"
	"github.com/greut/aio-iiif/internal/service"
	"github.com/greut/aio-iiif/internal/storage"
)

func main() {
	// run() keeps deferred cleanup working; os.Exit skips defers.
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("IIIF_CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	var logger *zap.Logger
	if cfg.Log.Level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	// Sync commonly fails on stdout/stderr.
	defer func() { _ = logger.Sync() }()

	backend, err := engine.New(cfg.Engine.Backend, cfg.Engine.MaxPixels)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	pool := engine.NewPool(backend, cfg.Engine.Workers, logger)
	defer pool.Stop()

	m := metrics.New()
	m.WatchQueue(pool.Waiting)

	fetcher := fetch.NewHTTPFetcher(nil, cfg.Fetch, logger)
	svc := service.NewImageService(fetcher, pool, m, logger)

	deps := server.Deps{
		Service: svc,
		Metrics: m,
		Engine:  backend.Name(),
		Waiting: pool.Waiting,
	}

	// The request ledger is optional.
	if cfg.Storage.DatabasePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.DatabasePath), 0755); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
		db, err := storage.NewDatabase(cfg.Storage.DatabasePath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()
		deps.Ledger = storage.NewRequestRepository(db)
	}

	logger.Info("configured",
		zap.String("engine", backend.Name()),
		zap.Int("workers", cfg.Engine.Workers),
		zap.Bool("ledger", deps.Ledger != nil),
		zap.Float64("rate_limit_rps", cfg.RateLimit.RequestsPerSecond),
	)

	srv := server.New(cfg, deps, logger)

	// Graceful shutdown on SIGINT (Ctrl+C) or SIGTERM (docker stop).
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		if err != nil {
			return err
		}
	}

	// Give in-flight requests 10 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(ctx)
}
