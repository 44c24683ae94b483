package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/storelens/storelens/internal/domain"
	"github.com/storelens/storelens/internal/events"
	"github.com/storelens/storelens/internal/observability/metrics"
	"github.com/storelens/storelens/internal/observability/tracing"
	"github.com/storelens/storelens/internal/security"
	"github.com/storelens/storelens/internal/security/audit"
)

// Sync triggers
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
	TriggerInstall   = "install"
)

// SnapshotFetcher pulls the complete record set of a shop from the platform
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, shop, accessToken string) (*domain.Snapshot, error)
}

// Locker provides a cross-process lock. It is optional; without it only
// syncs inside this process are serialized.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// SyncResult summarizes a completed sync
type SyncResult struct {
	TenantID  string
	Orders    int
	Customers int
	Checkouts int
	SyncedAt  time.Time
	Duration  time.Duration
}

// SyncService pulls platform data into the tenant store. At most one sync
// per tenant runs at a time; concurrent callers share the running one.
type SyncService struct {
	tenants   domain.TenantRepository
	commerce  domain.CommerceRepository
	fetcher   SnapshotFetcher
	locker    Locker
	publisher events.Publisher
	audit     *audit.Logger
	authz     *security.AuthorizationService
	timeout   time.Duration
	group     singleflight.Group
	logger    *slog.Logger
	now       func() time.Time
}

// NewSyncService creates a sync service. locker may be nil.
func NewSyncService(
	tenants domain.TenantRepository,
	commerce domain.CommerceRepository,
	fetcher SnapshotFetcher,
	locker Locker,
	publisher events.Publisher,
	auditLogger *audit.Logger,
	timeout time.Duration,
	logger *slog.Logger,
) *SyncService {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &SyncService{
		tenants:   tenants,
		commerce:  commerce,
		fetcher:   fetcher,
		locker:    locker,
		publisher: publisher,
		audit:     auditLogger,
		authz:     security.NewAuthorizationService(logger),
		timeout:   timeout,
		logger:    logger,
		now:       time.Now,
	}
}

// SyncForUser syncs a tenant after checking the user owns it
func (s *SyncService) SyncForUser(ctx context.Context, tenantID, userID string) (*SyncResult, error) {
	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.ValidateTenantAccess(ctx, userID, t); err != nil {
		if s.audit != nil {
			s.audit.LogDenied(ctx, userID, tenantID, "not owner")
		}
		return nil, err
	}
	res, err := s.Sync(ctx, tenantID, TriggerManual)
	if s.audit != nil {
		s.audit.LogAction(ctx, userID, "sync", tenantID, auditResult(err), auditDetails(res, err))
	}
	return res, err
}

// Sync pulls and stores the full record set of one tenant. The work runs
// detached from ctx's cancellation, bounded by the service timeout, so a
// caller hanging up does not abort a transaction other callers wait on.
func (s *SyncService) Sync(ctx context.Context, tenantID, trigger string) (*SyncResult, error) {
	ch := s.group.DoChan(tenantID, func() (any, error) {
		workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.run(workCtx, tenantID, trigger)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*SyncResult), nil
	}
}

// SyncAll syncs every linked tenant one after another and returns how many succeeded
func (s *SyncService) SyncAll(ctx context.Context, trigger string) (int, error) {
	tenants, err := s.tenants.ListLinked(ctx)
	if err != nil {
		return 0, fmt.Errorf("list linked tenants: %w", err)
	}
	ok := 0
	for _, t := range tenants {
		if ctx.Err() != nil {
			return ok, ctx.Err()
		}
		if _, err := s.Sync(ctx, t.ID, trigger); err != nil {
			continue
		}
		ok++
	}
	return ok, nil
}

func (s *SyncService) run(ctx context.Context, tenantID, trigger string) (res *SyncResult, err error) {
	ctx, span := tracing.Start(ctx, "sync.tenant")
	span.SetAttributes(attribute.String("tenant.id", tenantID), attribute.String("sync.trigger", trigger))
	defer span.End()

	logger := s.logger.With(slog.String("tenant_id", tenantID), slog.String("trigger", trigger))
	start := s.now()
	metrics.SyncStarted()
	defer func() {
		metrics.SyncFinished()
		result := "success"
		if err != nil {
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.ObserveSync(trigger, result, s.now().Sub(start))
	}()

	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t.AccessToken == "" {
		return nil, domain.Errorf(domain.ErrConflict, "store has no access token, reinstall the app")
	}

	if s.locker != nil {
		release, err := s.locker.TryLock(ctx, "storelens:sync:"+tenantID, s.timeout+30*time.Second)
		if err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return nil, domain.Errorf(domain.ErrConflict, "sync already in progress")
			}
			return nil, err
		}
		defer func() {
			// the work context may be done by now
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = release(releaseCtx)
		}()
	}

	logger.Info("sync started", slog.String("store_url", t.StoreURL))

	snap, err := s.fetcher.FetchSnapshot(ctx, t.StoreURL, t.AccessToken)
	if err != nil {
		logger.Error("sync fetch failed", slog.String("error", err.Error()))
		s.publishFailure(ctx, tenantID, err)
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}

	if err := s.commerce.UpsertSnapshot(ctx, tenantID, snap); err != nil {
		logger.Error("sync store failed", slog.String("error", err.Error()))
		s.publishFailure(ctx, tenantID, err)
		return nil, err
	}

	syncedAt := s.now()
	if err := s.tenants.MarkSynced(ctx, tenantID, syncedAt); err != nil {
		logger.Warn("failed to stamp last sync", slog.String("error", err.Error()))
	}

	res = &SyncResult{
		TenantID:  tenantID,
		Orders:    len(snap.Orders),
		Customers: len(snap.Customers),
		Checkouts: len(snap.Checkouts),
		SyncedAt:  syncedAt,
		Duration:  syncedAt.Sub(start),
	}
	metrics.AddSyncedRecords("orders", res.Orders)
	metrics.AddSyncedRecords("customers", res.Customers)
	metrics.AddSyncedRecords("checkouts", res.Checkouts)

	logger.Info("sync completed",
		slog.Int("orders", res.Orders),
		slog.Int("customers", res.Customers),
		slog.Int("checkouts", res.Checkouts),
		slog.Duration("duration", res.Duration),
	)
	s.publish(ctx, events.New(events.TypeTenantSynced, tenantID, map[string]any{
		"orders":    res.Orders,
		"customers": res.Customers,
		"checkouts": res.Checkouts,
		"trigger":   trigger,
	}))
	return res, nil
}

func (s *SyncService) publishFailure(ctx context.Context, tenantID string, cause error) {
	s.publish(ctx, events.New(events.TypeTenantSyncFailed, tenantID, map[string]any{"error": cause.Error()}))
}

func (s *SyncService) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish event",
			slog.String("type", e.Type),
			slog.String("tenant_id", e.TenantID),
			slog.String("error", err.Error()),
		)
	}
}

func auditResult(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func auditDetails(res *SyncResult, err error) map[string]interface{} {
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	return map[string]interface{}{
		"orders":    res.Orders,
		"customers": res.Customers,
		"checkouts": res.Checkouts,
	}
}
