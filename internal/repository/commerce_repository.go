package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/storelens/storelens/internal/domain"
)

// PostgresCommerceRepository implements domain.CommerceRepository using PostgreSQL.
// Records are keyed by (tenant_id, platform id), so repeated syncs upsert in place.
type PostgresCommerceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresCommerceRepository creates a new commerce repository
func NewPostgresCommerceRepository(db *sql.DB, logger *slog.Logger) *PostgresCommerceRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCommerceRepository{db: db, logger: logger}
}

const (
	upsertCustomerSQL = `
		INSERT INTO customers (tenant_id, id, first_name, last_name, email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, id) DO UPDATE
		SET first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    email = EXCLUDED.email
	`
	upsertCheckoutSQL = `
		INSERT INTO checkouts (tenant_id, id, email, total, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, id) DO UPDATE
		SET email = EXCLUDED.email,
		    total = EXCLUDED.total
	`
	upsertOrderSQL = `
		INSERT INTO orders (tenant_id, id, checkout_id, customer_id, order_number, financial_status, total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, id) DO UPDATE
		SET checkout_id = EXCLUDED.checkout_id,
		    customer_id = EXCLUDED.customer_id,
		    financial_status = EXCLUDED.financial_status,
		    total = EXCLUDED.total
	`
)

// execer is satisfied by both *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// UpsertSnapshot upserts a whole sync pass atomically. Customers and checkouts
// go first so orders never reference rows written later in the same pass.
// Records missing from snap are left in place: deletions on the platform are
// not reconciled here.
func (r *PostgresCommerceRepository) UpsertSnapshot(ctx context.Context, tenantID string, snap *domain.Snapshot) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.logger.Error("failed to roll back snapshot",
					slog.String("tenant_id", tenantID),
					slog.String("error", rbErr.Error()),
				)
			}
		}
	}()

	for _, c := range snap.Customers {
		c.TenantID = tenantID
		if err = upsertCustomer(ctx, tx, c); err != nil {
			return err
		}
	}
	for _, c := range snap.Checkouts {
		c.TenantID = tenantID
		if err = upsertCheckout(ctx, tx, c); err != nil {
			return err
		}
	}
	for _, o := range snap.Orders {
		o.TenantID = tenantID
		if err = upsertOrder(ctx, tx, o); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// UpsertOrder writes a single order, e.g. from a webhook
func (r *PostgresCommerceRepository) UpsertOrder(ctx context.Context, order *domain.Order) error {
	return upsertOrder(ctx, r.db, order)
}

// UpsertCustomer writes a single customer
func (r *PostgresCommerceRepository) UpsertCustomer(ctx context.Context, customer *domain.Customer) error {
	return upsertCustomer(ctx, r.db, customer)
}

// UpsertCheckout writes a single checkout
func (r *PostgresCommerceRepository) UpsertCheckout(ctx context.Context, checkout *domain.Checkout) error {
	return upsertCheckout(ctx, r.db, checkout)
}

// ListOrders returns every order of a tenant, oldest first
func (r *PostgresCommerceRepository) ListOrders(ctx context.Context, tenantID string) ([]*domain.Order, error) {
	query := `
		SELECT id, tenant_id, COALESCE(checkout_id, ''), COALESCE(customer_id, ''), order_number, financial_status, total, created_at
		FROM orders
		WHERE tenant_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	out := []*domain.Order{}
	for rows.Next() {
		o := &domain.Order{}
		if err := rows.Scan(&o.ID, &o.TenantID, &o.CheckoutID, &o.CustomerID, &o.OrderNumber, &o.FinancialStatus, &o.Total, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListCustomers returns every customer of a tenant
func (r *PostgresCommerceRepository) ListCustomers(ctx context.Context, tenantID string) ([]*domain.Customer, error) {
	query := `
		SELECT id, tenant_id, first_name, last_name, email, created_at
		FROM customers
		WHERE tenant_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	out := []*domain.Customer{}
	for rows.Next() {
		c := &domain.Customer{}
		if err := rows.Scan(&c.ID, &c.TenantID, &c.FirstName, &c.LastName, &c.Email, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListCheckouts returns every checkout of a tenant
func (r *PostgresCommerceRepository) ListCheckouts(ctx context.Context, tenantID string) ([]*domain.Checkout, error) {
	query := `
		SELECT id, tenant_id, email, total, created_at
		FROM checkouts
		WHERE tenant_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkouts: %w", err)
	}
	defer rows.Close()

	out := []*domain.Checkout{}
	for rows.Next() {
		c := &domain.Checkout{}
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Email, &c.Total, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkout: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func upsertCustomer(ctx context.Context, db execer, c *domain.Customer) error {
	if _, err := db.ExecContext(ctx, upsertCustomerSQL, c.TenantID, c.ID, c.FirstName, c.LastName, c.Email, c.CreatedAt); err != nil {
		return fmt.Errorf("failed to upsert customer %s: %w", c.ID, err)
	}
	return nil
}

func upsertCheckout(ctx context.Context, db execer, c *domain.Checkout) error {
	if _, err := db.ExecContext(ctx, upsertCheckoutSQL, c.TenantID, c.ID, c.Email, c.Total, c.CreatedAt); err != nil {
		return fmt.Errorf("failed to upsert checkout %s: %w", c.ID, err)
	}
	return nil
}

func upsertOrder(ctx context.Context, db execer, o *domain.Order) error {
	_, err := db.ExecContext(ctx, upsertOrderSQL,
		o.TenantID, o.ID, nullString(o.CheckoutID), nullString(o.CustomerID),
		o.OrderNumber, o.FinancialStatus, o.Total, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert order %s: %w", o.ID, err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
