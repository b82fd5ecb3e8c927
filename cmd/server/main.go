// Package main provides the entry point for the clipforge API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/maauso/clipforge-api/internal/bootstrap"
	"github.com/maauso/clipforge-api/internal/config"
	"github.com/maauso/clipforge-api/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting clipforge API",
		slog.Int("port", cfg.Port),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("temp_dir", cfg.TempDir),
		slog.Int("max_concurrent_jobs", cfg.MaxConcurrentJobs),
		slog.Int("chunk_target_sec", cfg.ChunkTargetSec),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
		slog.Bool("webhook_enabled", cfg.WebhookEnabled()),
	)

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	// Initialize HTTP handlers and router
	handlers := server.NewHandlers(deps.Store, deps.Analyzer, deps.Runner, deps.Storage, logger,
		server.WithWebhookSharedSecret(cfg.WebhookSharedSecret),
	)
	routerCfg := server.DefaultConfig()
	if len(cfg.CORSOrigins) > 0 {
		routerCfg.AllowedOrigins = cfg.CORSOrigins
	}
	router := server.NewRouter(handlers, logger, routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // Allow for long video processing
		IdleTimeout:  60 * time.Second,
	}

	// The scheduler's tick loop runs alongside the HTTP server and shares
	// its shutdown: both stop together when the same context is cancelled.
	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("scheduler tick loop starting")
		deps.Scheduler.Run(schedCtx)
		logger.Info("scheduler tick loop stopped")
	}()

	// Graceful shutdown handling
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)
	case err := <-errCh:
		schedCancel()
		wg.Wait()
		return err
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(ctx); err != nil {
		schedCancel()
		wg.Wait()
		return fmt.Errorf("shutdown failed: %w", err)
	}

	schedCancel()
	wg.Wait()

	logger.Info("server stopped gracefully")
	return nil
}
