package core

// scheduler.go runs audit log maintenance in the background:
//  1. Move old entries from audit_log to audit_log_archive (hot -> cold)
//  2. Purge very old entries from the archive based on retention policy
//
// Individual job failures are logged and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// ArchiveConfig holds configuration for the archive scheduler.
type ArchiveConfig struct {
	HotRetentionDays      int           // Days to keep in audit_log
	ArchiveRetentionYears int           // Years to keep in archive
	BatchSize             int           // Rows moved per statement
	CheckInterval         time.Duration // How often to run
}

// AuditArchiver moves and purges audit history. Satisfied by *AuditService.
type AuditArchiver interface {
	ArchiveOldEntries(ctx context.Context, retentionDays, batchSize int) (int64, error)
	PurgeOldArchives(ctx context.Context, retentionYears int) (int64, error)
}

// StartArchiveScheduler runs one archive job immediately, then every
// CheckInterval until ctx is cancelled. Call it in its own goroutine.
func StartArchiveScheduler(ctx context.Context, archiver AuditArchiver, cfg ArchiveConfig) {
	slog.Info("archive scheduler started",
		"hot_retention_days", cfg.HotRetentionDays,
		"archive_retention_years", cfg.ArchiveRetentionYears,
		"batch_size", cfg.BatchSize,
	)

	RunArchiveJob(ctx, archiver, cfg)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("archive scheduler stopped")
			return
		case <-ticker.C:
			RunArchiveJob(ctx, archiver, cfg)
		}
	}
}

// RunArchiveJob performs one archive and purge cycle and returns the counts.
func RunArchiveJob(ctx context.Context, archiver AuditArchiver, cfg ArchiveConfig) (archived, purged int64) {
	start := time.Now()

	archived, err := archiver.ArchiveOldEntries(ctx, cfg.HotRetentionDays, cfg.BatchSize)
	if err != nil {
		slog.Error("archive failed", "error", err, "entries_archived", archived)
	} else {
		slog.Info("archived audit log entries", "entries_archived", archived)
	}

	purged, err = archiver.PurgeOldArchives(ctx, cfg.ArchiveRetentionYears)
	if err != nil {
		slog.Error("purge failed", "error", err)
	} else {
		slog.Info("purged old archive entries", "entries_purged", purged)
	}

	slog.Info("archive job completed", "duration_ms", time.Since(start).Milliseconds())
	return archived, purged
}
