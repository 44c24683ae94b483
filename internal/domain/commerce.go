package domain

import (
	"context"
	"time"
)

// Order is a completed purchase synced from the commerce platform
type Order struct {
	ID              string // Platform order id
	TenantID        string
	CheckoutID      string // Originating checkout, empty when unknown
	CustomerID      string // Empty for guest orders
	OrderNumber     string
	FinancialStatus string
	Total           float64
	CreatedAt       time.Time
}

// Checkout is a started checkout. Whether it was completed is derived from orders.
type Checkout struct {
	ID        string
	TenantID  string
	Email     string
	Total     float64
	CreatedAt time.Time
}

// Customer is a storefront customer. Spend and order counts are never stored,
// see analytics.ProjectCustomers.
type Customer struct {
	ID        string
	TenantID  string
	FirstName string
	LastName  string
	Email     string
	CreatedAt time.Time
}

// Snapshot is the full set of commerce records of one tenant
type Snapshot struct {
	Orders    []*Order
	Customers []*Customer
	Checkouts []*Checkout
}

// CommerceRepository defines data access for tenant-owned commerce records.
// Every method is scoped to exactly one tenant.
type CommerceRepository interface {
	// UpsertSnapshot upserts every record of a sync pass in a single transaction.
	// Records absent from the pass are kept.
	UpsertSnapshot(ctx context.Context, tenantID string, snap *Snapshot) error
	UpsertOrder(ctx context.Context, order *Order) error
	UpsertCustomer(ctx context.Context, customer *Customer) error
	UpsertCheckout(ctx context.Context, checkout *Checkout) error
	ListOrders(ctx context.Context, tenantID string) ([]*Order, error)
	ListCustomers(ctx context.Context, tenantID string) ([]*Customer, error)
	ListCheckouts(ctx context.Context, tenantID string) ([]*Checkout, error)
}
