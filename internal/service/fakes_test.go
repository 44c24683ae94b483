package service

import (
	"context"
	"sync"
	"time"

	"github.com/storelens/storelens/internal/domain"
	"github.com/storelens/storelens/internal/events"
)

type memUserRepo struct {
	mu      sync.Mutex
	byID    map[string]*domain.User
	byEmail map[string]*domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: map[string]*domain.User{}, byEmail: map[string]*domain.User{}}
}

func (m *memUserRepo) Create(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[u.Email]; ok {
		return domain.Errorf(domain.ErrConflict, "user with this email already exists")
	}
	if u.ID == "" {
		u.ID = "u-" + u.Email
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	m.byID[u.ID] = u
	m.byEmail[u.Email] = u
	return nil
}

func (m *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.Errorf(domain.ErrNotFound, "user not found")
}

func (m *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byEmail[email]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.Errorf(domain.ErrNotFound, "user not found")
}

func (m *memUserRepo) UpdatePassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return domain.Errorf(domain.ErrNotFound, "user not found")
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now()
	return nil
}

type memTenantRepo struct {
	mu      sync.Mutex
	tenants map[string]*domain.Tenant
	seq     int
}

func newMemTenantRepo(tenants ...*domain.Tenant) *memTenantRepo {
	m := &memTenantRepo{tenants: map[string]*domain.Tenant{}}
	for _, t := range tenants {
		m.tenants[t.ID] = t
	}
	return m
}

func (m *memTenantRepo) UpsertByStoreURL(_ context.Context, t *domain.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tenants {
		if existing.StoreURL == t.StoreURL {
			existing.AccessToken = t.AccessToken
			*t = *existing
			return nil
		}
	}
	m.seq++
	if t.ID == "" {
		t.ID = "tenant-" + string(rune('a'+m.seq-1))
	}
	t.CreatedAt = time.Now()
	cp := *t
	m.tenants[t.ID] = &cp
	return nil
}

func (m *memTenantRepo) GetByID(_ context.Context, id string) (*domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tenants[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, domain.Errorf(domain.ErrNotFound, "tenant not found")
}

func (m *memTenantRepo) GetByStoreURL(_ context.Context, storeURL string) (*domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if t.StoreURL == storeURL {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.Errorf(domain.ErrNotFound, "tenant not found")
}

func (m *memTenantRepo) ListByUser(_ context.Context, userID string) ([]*domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.Tenant{}
	for _, t := range m.tenants {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memTenantRepo) ListLinked(_ context.Context) ([]*domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.Tenant{}
	for _, t := range m.tenants {
		if t.UserID != "" && t.AccessToken != "" {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memTenantRepo) SetOwner(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return domain.Errorf(domain.ErrNotFound, "tenant not found")
	}
	if t.UserID != "" && t.UserID != userID {
		return domain.Errorf(domain.ErrConflict, "store is already linked to another account")
	}
	t.UserID = userID
	return nil
}

func (m *memTenantRepo) ClearAccessToken(_ context.Context, id string) error {
	return m.update(id, func(t *domain.Tenant) { t.AccessToken = "" })
}

func (m *memTenantRepo) MarkSynced(_ context.Context, id string, at time.Time) error {
	return m.update(id, func(t *domain.Tenant) { t.LastSyncedAt = &at })
}

func (m *memTenantRepo) update(id string, fn func(*domain.Tenant)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return domain.Errorf(domain.ErrNotFound, "tenant not found")
	}
	fn(t)
	return nil
}

type memCommerceRepo struct {
	mu        sync.Mutex
	orders    map[string][]*domain.Order
	customers map[string][]*domain.Customer
	checkouts map[string][]*domain.Checkout
	failWith  error
	snapshots int
}

func newMemCommerceRepo() *memCommerceRepo {
	return &memCommerceRepo{
		orders:    map[string][]*domain.Order{},
		customers: map[string][]*domain.Customer{},
		checkouts: map[string][]*domain.Checkout{},
	}
}

func (m *memCommerceRepo) UpsertSnapshot(_ context.Context, tenantID string, snap *domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.snapshots++
	for _, o := range snap.Orders {
		o.TenantID = tenantID
		m.orders[tenantID] = upsert(m.orders[tenantID], o, func(x *domain.Order) string { return x.ID })
	}
	for _, c := range snap.Customers {
		c.TenantID = tenantID
		m.customers[tenantID] = upsert(m.customers[tenantID], c, func(x *domain.Customer) string { return x.ID })
	}
	for _, c := range snap.Checkouts {
		c.TenantID = tenantID
		m.checkouts[tenantID] = upsert(m.checkouts[tenantID], c, func(x *domain.Checkout) string { return x.ID })
	}
	return nil
}

func (m *memCommerceRepo) UpsertOrder(_ context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.TenantID] = upsert(m.orders[o.TenantID], o, func(x *domain.Order) string { return x.ID })
	return nil
}

func (m *memCommerceRepo) UpsertCustomer(_ context.Context, c *domain.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[c.TenantID] = upsert(m.customers[c.TenantID], c, func(x *domain.Customer) string { return x.ID })
	return nil
}

func (m *memCommerceRepo) UpsertCheckout(_ context.Context, c *domain.Checkout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkouts[c.TenantID] = upsert(m.checkouts[c.TenantID], c, func(x *domain.Checkout) string { return x.ID })
	return nil
}

func (m *memCommerceRepo) ListOrders(_ context.Context, tenantID string) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Order{}, m.orders[tenantID]...), nil
}

func (m *memCommerceRepo) ListCustomers(_ context.Context, tenantID string) ([]*domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Customer{}, m.customers[tenantID]...), nil
}

func (m *memCommerceRepo) ListCheckouts(_ context.Context, tenantID string) ([]*domain.Checkout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Checkout{}, m.checkouts[tenantID]...), nil
}

func upsert[T any](items []T, item T, id func(T) string) []T {
	for i, existing := range items {
		if id(existing) == id(item) {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
