package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JonMunkholm/fintrack/internal/config"
	"github.com/JonMunkholm/fintrack/internal/core"
	"github.com/JonMunkholm/fintrack/internal/logging"
	"github.com/JonMunkholm/fintrack/internal/store"
	"github.com/JonMunkholm/fintrack/internal/web"
)

func main() {
	// Load and validate configuration (.env merged in, environment wins)
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()
	pool, err := store.OpenPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"), "migrated", cfg.Database.Migrate)
	}

	service := core.NewService(store.NewPostgres(pool), core.ServiceConfig{
		MaxFileSize:          cfg.Import.MaxFileSize,
		ImportTimeout:        cfg.Import.Timeout,
		MaxConcurrentImports: cfg.Import.MaxConcurrent,
		ImportWait:           cfg.Import.MaxWaitTime,
	}, core.WithLogger(logger))

	server := web.NewServer(service, cfg)

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	if cfg.Recurring.Enabled {
		go service.Materializer().StartRecurringScheduler(jobCtx, core.SchedulerConfig{
			Interval:    cfg.Recurring.Interval,
			RunOnStart:  cfg.Recurring.RunOnStart,
			PassTimeout: cfg.Recurring.PassTimeout,
		})
	} else {
		slog.Info("recurring scheduler disabled")
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := service.Limiter().Status(); status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := service.Limiter().WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
