package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/storelens/storelens/internal/analytics"
	"github.com/storelens/storelens/internal/domain"
	"github.com/storelens/storelens/internal/events"
	"github.com/storelens/storelens/internal/service"
)

type fakeAuth struct {
	users map[string]string // email -> password
}

func (f *fakeAuth) Register(_ context.Context, email, password string) (*service.RegisterResult, error) {
	if email == "" || password == "" {
		return nil, domain.Errorf(domain.ErrValidation, "email and password are required")
	}
	if _, ok := f.users[email]; ok {
		return nil, domain.Errorf(domain.ErrConflict, "user with this email already exists")
	}
	f.users[email] = password
	return &service.RegisterResult{UserID: "u-" + email, Email: email}, nil
}

func (f *fakeAuth) Login(_ context.Context, email, password string) (*service.LoginResult, error) {
	if pw, ok := f.users[email]; !ok || pw != password {
		return nil, domain.Errorf(domain.ErrAuth, "invalid credentials")
	}
	return &service.LoginResult{UserID: "u-" + email, Email: email, Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeAuth) ChangePassword(_ context.Context, userID, oldPassword, newPassword string) error {
	if len(newPassword) < service.MinPasswordLength {
		return domain.Errorf(domain.ErrValidation, "new password must be longer than 6 characters")
	}
	return nil
}

type fakeTenants struct {
	mu      sync.Mutex
	tenants map[string]*domain.Tenant
	shops   map[string]string
	removed []string
}

func newFakeTenants(ts ...*domain.Tenant) *fakeTenants {
	f := &fakeTenants{tenants: map[string]*domain.Tenant{}, shops: map[string]string{}}
	for _, t := range ts {
		f.tenants[t.ID] = t
		f.shops[t.StoreURL] = t.ID
	}
	return f
}

func (f *fakeTenants) ListForUser(_ context.Context, userID string) ([]*service.TenantData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*service.TenantData
	for _, t := range f.tenants {
		if t.UserID == userID {
			out = append(out, &service.TenantData{
				Tenant: t,
				Orders: []*domain.Order{{ID: "o1", OrderNumber: "1001", Total: 12.5}},
			})
		}
	}
	return out, nil
}

func (f *fakeTenants) Get(_ context.Context, tenantID, userID string) (*domain.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[tenantID]
	if !ok {
		return nil, domain.Errorf(domain.ErrNotFound, "tenant not found")
	}
	if t.UserID != userID {
		return nil, domain.Errorf(domain.ErrForbidden, "you do not have access to this store")
	}
	return t, nil
}

func (f *fakeTenants) Link(_ context.Context, tenantID, userID string) (*domain.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[tenantID]
	if !ok {
		return nil, domain.Errorf(domain.ErrNotFound, "tenant not found")
	}
	if t.UserID != "" && t.UserID != userID {
		return nil, domain.Errorf(domain.ErrConflict, "store is already linked to another account")
	}
	t.UserID = userID
	return t, nil
}

func (f *fakeTenants) Install(_ context.Context, shop, token string) (*domain.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.shops[shop]; ok {
		f.tenants[id].AccessToken = token
		return f.tenants[id], nil
	}
	t := &domain.Tenant{ID: "t-" + shop, StoreURL: shop, AccessToken: token}
	f.tenants[t.ID] = t
	f.shops[shop] = t.ID
	return t, nil
}

func (f *fakeTenants) Uninstall(_ context.Context, shop string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, shop)
	return nil
}

func (f *fakeTenants) ResolveShop(_ context.Context, shop string) (*domain.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.shops[shop]; ok {
		return f.tenants[id], nil
	}
	return nil, domain.Errorf(domain.ErrNotFound, "tenant not found")
}

type fakeSyncer struct {
	err error
}

func (f *fakeSyncer) SyncForUser(_ context.Context, tenantID, userID string) (*service.SyncResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &service.SyncResult{TenantID: tenantID, Orders: 3, Customers: 2, Checkouts: 1, SyncedAt: time.Now(), Duration: 1500 * time.Millisecond}, nil
}

type fakeDashboards struct {
	gotDays int
	gotLoc  *time.Location
}

func (f *fakeDashboards) Build(_ context.Context, tenantID, userID string, days int, loc *time.Location) (*analytics.Dashboard, error) {
	if !analytics.ValidWindow(days) {
		return nil, domain.Errorf(domain.ErrValidation, "days must be one of 7, 30 or 90")
	}
	if userID != "u-owner" {
		return nil, domain.Errorf(domain.ErrForbidden, "you do not have access to this store")
	}
	f.gotDays, f.gotLoc = days, loc
	return &analytics.Dashboard{TenantID: tenantID, Days: days}, nil
}

type fakeOAuth struct {
	err error
}

func (f *fakeOAuth) AuthorizeURL(shop, state, redirectURI string) string {
	return "https://" + shop + "/admin/oauth/authorize?state=" + state + "&redirect_uri=" + redirectURI
}

func (f *fakeOAuth) ExchangeCode(_ context.Context, shop, code string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "access-" + code, nil
}

type fakeTrigger struct {
	ids []string
}

func (f *fakeTrigger) Trigger(tenantID string) bool {
	f.ids = append(f.ids, tenantID)
	return true
}

type fakeRecords struct {
	mu        sync.Mutex
	orders    []*domain.Order
	customers []*domain.Customer
	checkouts []*domain.Checkout
}

func (f *fakeRecords) UpsertOrder(_ context.Context, o *domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, o)
	return nil
}

func (f *fakeRecords) UpsertCustomer(_ context.Context, c *domain.Customer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers = append(f.customers, c)
	return nil
}

func (f *fakeRecords) UpsertCheckout(_ context.Context, c *domain.Checkout) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkouts = append(f.checkouts, c)
	return nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func assertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	require.Equal(t, expected, resp.StatusCode, "unexpected status for %s %s", resp.Request.Method, resp.Request.URL.Path)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
