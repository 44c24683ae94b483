package service

import (
	"context"
	"time"

	"github.com/storelens/storelens/internal/analytics"
	"github.com/storelens/storelens/internal/domain"
)

// DashboardService loads a tenant's records and aggregates them
type DashboardService struct {
	tenants  *TenantService
	commerce domain.CommerceRepository
	loc      *time.Location
	now      func() time.Time
}

// NewDashboardService creates a dashboard service. loc is the default
// timezone used for day buckets.
func NewDashboardService(tenants *TenantService, commerce domain.CommerceRepository, loc *time.Location) *DashboardService {
	if loc == nil {
		loc = time.Local
	}
	return &DashboardService{tenants: tenants, commerce: commerce, loc: loc, now: time.Now}
}

// Build returns the dashboard of a tenant the user owns. A nil loc uses the
// service default.
func (s *DashboardService) Build(ctx context.Context, tenantID, userID string, days int, loc *time.Location) (*analytics.Dashboard, error) {
	if !analytics.ValidWindow(days) {
		return nil, domain.Errorf(domain.ErrValidation, "days must be one of 7, 30 or 90")
	}
	if _, err := s.tenants.Get(ctx, tenantID, userID); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = s.loc
	}

	orders, err := s.commerce.ListOrders(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	customers, err := s.commerce.ListCustomers(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	checkouts, err := s.commerce.ListCheckouts(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	return analytics.Build(tenantID, analytics.Input{
		Orders:    orders,
		Customers: customers,
		Checkouts: checkouts,
	}, days, s.now(), loc)
}
