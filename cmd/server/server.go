package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/oklog/run"
	"github.com/phrazzld/scry-research/internal/config"
	"github.com/phrazzld/scry-research/internal/platform/logger"
)

const shutdownTimeout = 10 * time.Second

// runServe loads configuration, builds the application and runs it until
// ctx is cancelled.
func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	log.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"version", Version)

	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.cleanup()

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", cfg.Server.Port, err)
	}

	return app.run(ctx, listener)
}

// run serves HTTP on listener and runs the background workers and the
// stale task sweeper until ctx is cancelled or one of them fails.
func (app *application) run(ctx context.Context, listener net.Listener) error {
	if app.workerPool != nil {
		// in-process jobs do not survive a restart
		if n, err := app.sweeper.FailOrphaned(ctx); err != nil {
			app.logger.Error("failed to fail orphaned tasks", "error", err)
		} else if n > 0 {
			app.logger.Warn("failed tasks orphaned by a previous run", "count", n)
		}
	}

	var g run.Group

	// HTTP server.
	{
		server := &http.Server{
			Handler:           app.handler(),
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}
		g.Add(
			func() error {
				app.logger.Info("Starting server", "addr", listener.Addr().String())
				if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server failed: %w", err)
				}
				return nil
			},
			func(_ error) {
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					app.logger.Error("Server shutdown failed", "error", err)
				}
			},
		)
	}

	// Background workers.
	{
		workerCtx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				if app.worker != nil {
					return app.worker.Run(workerCtx)
				}
				return app.workerPool.Run(workerCtx)
			},
			func(_ error) {
				cancel()
			},
		)
	}

	// Stale task sweeper.
	{
		sweepCtx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				return app.sweeper.Run(sweepCtx)
			},
			func(_ error) {
				cancel()
			},
		)
	}

	// Parent context.
	{
		done := make(chan struct{})
		g.Add(
			func() error {
				select {
				case <-ctx.Done():
				case <-done:
				}
				return nil
			},
			func(_ error) {
				close(done)
			},
		)
	}

	err := g.Run()
	app.logger.Info("Server shutdown completed", slog.Any("error", err))
	return err
}
