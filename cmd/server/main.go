package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mailomat/internal/app"
	"mailomat/internal/platform/config"
	"mailomat/internal/platform/logger"
	"mailomat/internal/platform/tracing"
)

// main loads configuration, builds the application and serves it until
// SIGINT or SIGTERM. Business logic lives in the internal service packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level)
	slog.SetDefault(log)

	shutdownTracing, err := tracing.Init(cfg.Tracing, os.Stdout)
	if err != nil {
		log.Error("failed to initialise tracing", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	if err := application.Serve(ctx); err != nil {
		log.Error("server stopped with error", "error", err)
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		log.Warn("failed to flush traces", "error", err)
	}
	log.Info("mailomat stopped")
}
