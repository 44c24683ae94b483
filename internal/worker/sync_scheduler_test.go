package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/storelens/storelens/internal/service"
)

type fakeSyncer struct {
	mu      sync.Mutex
	synced  []string
	allRuns int
	done    chan struct{}
}

func (f *fakeSyncer) Sync(_ context.Context, tenantID, trigger string) (*service.SyncResult, error) {
	f.mu.Lock()
	f.synced = append(f.synced, tenantID+"/"+trigger)
	f.mu.Unlock()
	select {
	case f.done <- struct{}{}:
	default:
	}
	return &service.SyncResult{TenantID: tenantID}, nil
}

func (f *fakeSyncer) SyncAll(_ context.Context, trigger string) (int, error) {
	f.mu.Lock()
	f.allRuns++
	f.mu.Unlock()
	select {
	case f.done <- struct{}{}:
	default:
	}
	return 1, nil
}

func TestSchedulerRunsQueuedSync(t *testing.T) {
	f := &fakeSyncer{done: make(chan struct{}, 4)}
	w := NewSyncScheduler(f, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	if !w.Trigger("t1") {
		t.Fatalf("expected trigger to be queued")
	}
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("queued sync did not run")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.synced) != 1 || f.synced[0] != "t1/"+service.TriggerInstall {
		t.Fatalf("unexpected syncs: %v", f.synced)
	}
}

func TestSchedulerPeriodicPass(t *testing.T) {
	f := &fakeSyncer{done: make(chan struct{}, 4)}
	w := NewSyncScheduler(f, 10*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("periodic pass did not run")
	}
}
