// Package worker runs fund data imports on a schedule.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/jetpo/fundsync/internal/domain"
	"github.com/jetpo/fundsync/internal/ingest"
)

// Importer runs one import of the source feed.
type Importer interface {
	Import(ctx context.Context, source domain.Source, limit int) (*ingest.Summary, error)
}

// AfterSyncHook is called after each successful import.
type AfterSyncHook interface {
	Export(ctx context.Context, summary *ingest.Summary) error
}

// SyncWorker periodically imports the feed.
type SyncWorker struct {
	importer Importer
	source   domain.Source
	interval time.Duration
	hook     AfterSyncHook // optional
}

// NewSyncWorker creates a SyncWorker with an optional post-import hook.
func NewSyncWorker(importer Importer, source domain.Source, interval time.Duration, hook AfterSyncHook) *SyncWorker {
	return &SyncWorker{
		importer: importer,
		source:   source,
		interval: interval,
		hook:     hook,
	}
}

// Run imports immediately and then every interval. It blocks until the context is cancelled.
func (w *SyncWorker) Run(ctx context.Context) {
	slog.Info("SyncWorker: starting", "source", w.source, "interval", w.interval)

	w.sync(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("SyncWorker: shutting down")
			return
		case <-ticker.C:
			w.sync(ctx)
		}
	}
}

func (w *SyncWorker) sync(ctx context.Context) {
	summary, err := w.importer.Import(ctx, w.source, 0)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		attrs := []any{"error", err}
		if summary != nil {
			attrs = append(attrs, "run", summary.RunID, "rows", summary.Total.Rows)
		}
		slog.Error("SyncWorker: import failed", attrs...)
		return
	}

	slog.Info("SyncWorker: import completed",
		"run", summary.RunID,
		"rows", summary.Total.Rows,
		"created", summary.Total.Created,
		"updated", summary.Total.Updated,
		"skipped", summary.Total.Skipped,
		"failed", summary.Total.Failed,
		"duration", summary.Duration,
	)
	w.runHook(ctx, summary)
}

// runHook calls the post-import hook if one is configured.
func (w *SyncWorker) runHook(ctx context.Context, summary *ingest.Summary) {
	if w.hook == nil {
		return
	}
	if err := w.hook.Export(ctx, summary); err != nil {
		slog.Error("SyncWorker: export hook failed", "error", err)
	} else {
		slog.Info("SyncWorker: export hook completed")
	}
}
