package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/storelens/storelens/internal/analytics"
	"github.com/storelens/storelens/internal/domain"
	"github.com/storelens/storelens/internal/events"
	"github.com/storelens/storelens/internal/security"
)

// TenantService manages storefront accounts and their ownership
type TenantService struct {
	tenants   domain.TenantRepository
	commerce  domain.CommerceRepository
	publisher events.Publisher
	authz     *security.AuthorizationService
	logger    *slog.Logger
}

// NewTenantService creates a new tenant service
func NewTenantService(
	tenants domain.TenantRepository,
	commerce domain.CommerceRepository,
	publisher events.Publisher,
	logger *slog.Logger,
) *TenantService {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &TenantService{
		tenants:   tenants,
		commerce:  commerce,
		publisher: publisher,
		authz:     security.NewAuthorizationService(logger),
		logger:    logger,
	}
}

// TenantData is a tenant with its synced records, as listed for its owner
type TenantData struct {
	Tenant    *domain.Tenant
	Orders    []*domain.Order
	Checkouts []*domain.Checkout
	Customers []analytics.CustomerStats
}

// ListForUser returns every tenant the user owns together with its records
func (s *TenantService) ListForUser(ctx context.Context, userID string) ([]*TenantData, error) {
	tenants, err := s.tenants.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}

	out := make([]*TenantData, 0, len(tenants))
	for _, t := range tenants {
		orders, err := s.commerce.ListOrders(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		checkouts, err := s.commerce.ListCheckouts(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		customers, err := s.commerce.ListCustomers(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, &TenantData{
			Tenant:    t,
			Orders:    orders,
			Checkouts: checkouts,
			Customers: analytics.ProjectCustomers(customers, orders),
		})
	}
	return out, nil
}

// Get returns a tenant the user owns. Tenants owned by someone else, or by
// nobody, are forbidden.
func (s *TenantService) Get(ctx context.Context, tenantID, userID string) (*domain.Tenant, error) {
	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.ValidateTenantAccess(ctx, userID, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Link makes userID the owner of a freshly installed tenant. Linking a tenant
// the caller already owns is a no-op.
func (s *TenantService) Link(ctx context.Context, tenantID, userID string) (*domain.Tenant, error) {
	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !s.authz.CanLink(userID, t) {
		return nil, domain.Errorf(domain.ErrConflict, "store is already linked to another account")
	}
	if t.UserID == userID {
		return t, nil
	}

	if err := s.tenants.SetOwner(ctx, tenantID, userID); err != nil {
		return nil, err
	}
	t.UserID = userID

	s.logger.Info("tenant linked",
		slog.String("tenant_id", tenantID),
		slog.String("user_id", userID),
		slog.String("store_url", t.StoreURL),
	)
	s.publish(ctx, events.New(events.TypeTenantLinked, tenantID, map[string]any{"storeUrl": t.StoreURL}))
	return t, nil
}

// Install records the access token granted by an app install. Reinstalling
// refreshes the token and keeps the owner.
func (s *TenantService) Install(ctx context.Context, shop, accessToken string) (*domain.Tenant, error) {
	t := &domain.Tenant{StoreURL: shop, AccessToken: accessToken}
	if err := s.tenants.UpsertByStoreURL(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info("app installed",
		slog.String("tenant_id", t.ID),
		slog.String("store_url", shop),
	)
	s.publish(ctx, events.New(events.TypeTenantInstalled, t.ID, map[string]any{"storeUrl": shop}))
	return t, nil
}

// Uninstall drops the access token of the shop. Unknown shops are ignored.
func (s *TenantService) Uninstall(ctx context.Context, shop string) error {
	t, err := s.tenants.GetByStoreURL(ctx, shop)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Info("uninstall for unknown shop", slog.String("store_url", shop))
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.tenants.ClearAccessToken(ctx, t.ID); err != nil {
		return err
	}
	s.logger.Info("app uninstalled",
		slog.String("tenant_id", t.ID),
		slog.String("store_url", shop),
	)
	s.publish(ctx, events.New(events.TypeTenantUninstall, t.ID, nil))
	return nil
}

// ResolveShop finds the tenant a platform webhook belongs to
func (s *TenantService) ResolveShop(ctx context.Context, shop string) (*domain.Tenant, error) {
	return s.tenants.GetByStoreURL(ctx, shop)
}

func (s *TenantService) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish event",
			slog.String("type", e.Type),
			slog.String("tenant_id", e.TenantID),
			slog.String("error", err.Error()),
		)
	}
}
