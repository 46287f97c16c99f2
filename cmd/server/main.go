package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/mailclean/internal/config"
	"github.com/JonMunkholm/mailclean/internal/core"
	"github.com/JonMunkholm/mailclean/internal/logging"
	"github.com/JonMunkholm/mailclean/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"classifier", cfg.Classifier.Provider,
		"confidence_threshold", cfg.Engine.ConfidenceThreshold,
		"workers", cfg.Engine.WorkerConcurrency,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)
	slog.Debug("effective configuration", "config", cfg.String())

	// A missing or empty policy is fatal: the engine never runs without one.
	proc, closeClassifier, err := core.NewProcessorFromConfig(context.Background(), cfg, slog.Default())
	if err != nil {
		slog.Error("failed to initialize engine", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := closeClassifier(); err != nil {
			slog.Warn("close classifier", "error", err)
		}
	}()

	summary := proc.Engine().Policy().Summary()
	slog.Info("policy loaded",
		"file", cfg.Policy.File,
		"tlds", summary.TLDs,
		"popular_domains", summary.PopularDomains,
		"disposable_domains", summary.DisposableDomains,
		"providers", len(summary.Providers),
	)

	service := core.NewServiceFromConfig(proc, cfg.Upload)
	server := web.NewServer(service, cfg)

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop taking requests first, then let runs drain.
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		status := service.LimiterStatus()
		if status.Active > 0 {
			slog.Info("waiting for runs to complete", "active", status.Active)
			if err := service.Shutdown(shutdownCtx); err != nil {
				slog.Warn("runs did not complete in time, cancelled", "error", err)
			} else {
				slog.Info("all runs completed")
			}
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-stopped
	slog.Info("server stopped")
}
