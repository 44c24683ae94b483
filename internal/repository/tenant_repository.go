package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/storelens/storelens/internal/domain"
)

// PostgresTenantRepository implements domain.TenantRepository using PostgreSQL
type PostgresTenantRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresTenantRepository creates a new tenant repository
func NewPostgresTenantRepository(db *sql.DB, logger *slog.Logger) *PostgresTenantRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTenantRepository{db: db, logger: logger}
}

const tenantColumns = `id, store_url, access_token, COALESCE(user_id::text, ''), created_at, updated_at, last_synced_at`

// UpsertByStoreURL creates the tenant on first install and refreshes the
// access token on reinstall. The owner is left untouched.
func (r *PostgresTenantRepository) UpsertByStoreURL(ctx context.Context, tenant *domain.Tenant) error {
	if tenant.ID == "" {
		tenant.ID = uuid.NewString()
	}
	query := `
		INSERT INTO tenants (id, store_url, access_token)
		VALUES ($1, $2, $3)
		ON CONFLICT (store_url) DO UPDATE
		SET access_token = EXCLUDED.access_token, updated_at = NOW()
		RETURNING ` + tenantColumns
	if err := scanTenant(r.db.QueryRowContext(ctx, query, tenant.ID, tenant.StoreURL, tenant.AccessToken), tenant); err != nil {
		r.logger.Error("failed to upsert tenant",
			slog.String("store_url", tenant.StoreURL),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to upsert tenant: %w", err)
	}
	return nil
}

// GetByID retrieves a tenant by ID
func (r *PostgresTenantRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.Errorf(domain.ErrNotFound, "tenant not found")
	}
	t := &domain.Tenant{}
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	if err := scanTenant(r.db.QueryRowContext(ctx, query, id), t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.Errorf(domain.ErrNotFound, "tenant not found")
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return t, nil
}

// GetByStoreURL retrieves a tenant by its shop domain
func (r *PostgresTenantRepository) GetByStoreURL(ctx context.Context, storeURL string) (*domain.Tenant, error) {
	t := &domain.Tenant{}
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE store_url = $1`
	if err := scanTenant(r.db.QueryRowContext(ctx, query, storeURL), t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.Errorf(domain.ErrNotFound, "tenant not found")
		}
		return nil, fmt.Errorf("failed to get tenant by store url: %w", err)
	}
	return t, nil
}

// ListByUser returns the tenants owned by a user
func (r *PostgresTenantRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE user_id = $1 ORDER BY created_at ASC`
	return r.list(ctx, query, userID)
}

// ListLinked returns every tenant that has an owner and a usable access token
func (r *PostgresTenantRepository) ListLinked(ctx context.Context) ([]*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE user_id IS NOT NULL AND access_token <> '' ORDER BY created_at ASC`
	return r.list(ctx, query)
}

// SetOwner assigns the owning user. The ownership guard is part of the
// UPDATE so two concurrent links cannot both win.
func (r *PostgresTenantRepository) SetOwner(ctx context.Context, id, userID string) error {
	query := `
		UPDATE tenants SET user_id = $1, updated_at = NOW()
		WHERE id = $2 AND (user_id IS NULL OR user_id = $1)
	`
	res, err := r.db.ExecContext(ctx, query, userID, id)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM tenants WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check tenant: %w", err)
	}
	if !exists {
		return domain.Errorf(domain.ErrNotFound, "tenant not found")
	}
	r.logger.Warn("tenant already owned by another user",
		slog.String("tenant_id", id),
		slog.String("user_id", userID),
	)
	return domain.Errorf(domain.ErrConflict, "store is already linked to another account")
}

// ClearAccessToken drops the platform credential after an uninstall
func (r *PostgresTenantRepository) ClearAccessToken(ctx context.Context, id string) error {
	query := `UPDATE tenants SET access_token = '', updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, query, id)
}

// MarkSynced records the completion time of the last successful sync
func (r *PostgresTenantRepository) MarkSynced(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE tenants SET last_synced_at = $1 WHERE id = $2`
	return r.execOne(ctx, query, at, id)
}

func (r *PostgresTenantRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return domain.Errorf(domain.ErrNotFound, "tenant not found")
	}
	return nil
}

func (r *PostgresTenantRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Tenant, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	out := []*domain.Tenant{}
	for rows.Next() {
		t := &domain.Tenant{}
		if err := scanTenant(rows, t); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner, t *domain.Tenant) error {
	var lastSynced sql.NullTime
	if err := row.Scan(&t.ID, &t.StoreURL, &t.AccessToken, &t.UserID, &t.CreatedAt, &t.UpdatedAt, &lastSynced); err != nil {
		return err
	}
	t.LastSyncedAt = nil
	if lastSynced.Valid {
		ts := lastSynced.Time
		t.LastSyncedAt = &ts
	}
	return nil
}
