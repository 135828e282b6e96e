package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/JonMunkholm/TruckRewards/internal/config"
	"github.com/JonMunkholm/TruckRewards/internal/core"
	"github.com/JonMunkholm/TruckRewards/internal/database"
	"github.com/JonMunkholm/TruckRewards/internal/logging"
	"github.com/JonMunkholm/TruckRewards/internal/metrics"
	"github.com/JonMunkholm/TruckRewards/internal/web"
	mw "github.com/JonMunkholm/TruckRewards/internal/web/middleware"
)

func main() {
	// Load .env file if it exists; real environment variables win
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("failed to load .env file", "error", err)
		os.Exit(1)
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"ingest_max_concurrent", cfg.Ingest.MaxConcurrent,
		"archive_enabled", cfg.Archive.Enabled,
	)

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool); err != nil {
			slog.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	audit := core.NewAuditService(pool)
	limiter := core.NewSessionLimiter(cfg.Ingest.MaxConcurrent, cfg.Ingest.MaxWaitTime)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, limiter.ActiveCount)

	ingestor := core.NewIngestor(database.NewStore(pool), audit,
		core.WithSessionLimiter(limiter),
		core.WithCredentialIssuer(core.NewBcryptIssuer(cfg.Ingest.BcryptCost)),
		core.WithRecorder(m),
	)

	server := web.NewServer(cfg, web.Deps{
		Ingestor: ingestor,
		Audit:    audit,
		Sessions: mw.NewCookieStore(cfg.Session),
		Limiter:  limiter,
		Metrics:  m,
	})

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())

	if cfg.Archive.Enabled {
		go core.StartArchiveScheduler(jobCtx, audit, core.ArchiveConfig{
			HotRetentionDays:      cfg.Archive.HotRetentionDays,
			ArchiveRetentionYears: cfg.Archive.ArchiveRetentionYears,
			BatchSize:             cfg.Archive.BatchSize,
			CheckInterval:         cfg.Archive.CheckInterval,
		})
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		// Stop background jobs
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for active bulk load sessions to complete (with timeout)
		if status := limiter.Status(); status.Active > 0 {
			slog.Info("waiting for bulk load sessions to complete", "active", status.Active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("bulk load sessions did not complete in time", "error", err)
			} else {
				slog.Info("all bulk load sessions completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
