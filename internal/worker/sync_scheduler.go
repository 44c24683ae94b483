package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/storelens/storelens/internal/service"
)

// TenantSyncer is the part of the sync service the scheduler drives
type TenantSyncer interface {
	Sync(ctx context.Context, tenantID, trigger string) (*service.SyncResult, error)
	SyncAll(ctx context.Context, trigger string) (int, error)
}

// SyncScheduler periodically re-syncs every linked tenant and runs one-off
// syncs queued by Trigger (e.g. right after an install).
type SyncScheduler struct {
	syncer   TenantSyncer
	interval time.Duration
	queue    chan string
	logger   *slog.Logger
}

// NewSyncScheduler creates a scheduler. An interval of zero disables the
// periodic pass; queued syncs still run.
func NewSyncScheduler(syncer TenantSyncer, interval time.Duration, logger *slog.Logger) *SyncScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncScheduler{
		syncer:   syncer,
		interval: interval,
		queue:    make(chan string, 64),
		logger:   logger,
	}
}

// Trigger queues a sync of one tenant. It never blocks; when the queue is
// full the request is dropped and the next periodic pass picks the tenant up.
func (w *SyncScheduler) Trigger(tenantID string) bool {
	select {
	case w.queue <- tenantID:
		return true
	default:
		w.logger.Warn("sync queue full, dropping trigger", slog.String("tenant_id", tenantID))
		return false
	}
}

// Start runs until ctx is cancelled
func (w *SyncScheduler) Start(ctx context.Context) {
	var tick <-chan time.Time
	if w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	w.logger.Info("sync scheduler started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sync scheduler stopped")
			return
		case tenantID := <-w.queue:
			w.syncOne(ctx, tenantID)
		case <-tick:
			w.syncAll(ctx)
		}
	}
}

func (w *SyncScheduler) syncOne(ctx context.Context, tenantID string) {
	logger := w.logger.With(slog.String("tenant_id", tenantID))
	if _, err := w.syncer.Sync(ctx, tenantID, service.TriggerInstall); err != nil {
		logger.Warn("queued sync failed", slog.String("error", err.Error()))
		return
	}
	logger.Info("queued sync finished")
}

func (w *SyncScheduler) syncAll(ctx context.Context) {
	start := time.Now()
	n, err := w.syncer.SyncAll(ctx, service.TriggerScheduled)
	if err != nil {
		w.logger.Error("scheduled sync pass failed", slog.String("error", err.Error()))
		return
	}
	w.logger.Info("scheduled sync pass finished",
		slog.Int("synced", n),
		slog.Duration("duration", time.Since(start)),
	)
}
