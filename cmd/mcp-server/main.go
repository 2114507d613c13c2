package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apresai/storytime/internal/config"
	"github.com/apresai/storytime/internal/mcpserver"
	"github.com/apresai/storytime/internal/observability"
)

var version = "dev"

// shutdownGrace leaves headroom under the ~10s between SIGTERM and SIGKILL
// on the hosting runtime.
const shutdownGrace = 8 * time.Second

func main() {
	configPath := flag.String("config", "", "Config file (default storytime.toml if present)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		observability.InitLogger(os.Stderr, observability.ParseLevel("info"), observability.FormatJSON).Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.InitLogger(os.Stderr, observability.ParseLevel(cfg.LogLevel), observability.FormatJSON)
	logger.Info("Storytime MCP Server starting...", "version", version, "environment", cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if observability.TracingConfigured() {
		tp, err := observability.InitTracer(ctx, "storytime-mcp", version, cfg.Server.Environment)
		if err != nil {
			logger.Warn("Failed to init tracer, continuing without tracing", "error", err)
		} else {
			defer func() {
				if err := tp.Shutdown(context.Background()); err != nil {
					logger.Error("Tracer shutdown error", "error", err)
				}
			}()
		}
	}

	srv, err := mcpserver.New(ctx, cfg, version, logger)
	if err != nil {
		logger.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		logger.Info("Shutdown signal received, waiting for active jobs...")
		sctx, scancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer scancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Warn("Shutdown incomplete", "error", err)
		}
		logger.Info("Shutdown complete")
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err)
		cancel()
		<-shutdownDone
		os.Exit(1)
	}
	<-shutdownDone
}
