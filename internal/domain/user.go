package domain

import (
	"context"
	"time"
)

// User represents a store owner account
type User struct {
	ID           string // UUID
	Email        string // Unique email address
	PasswordHash string // Bcrypt hashed password (not returned in API)
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserRepository defines data access for users
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// Tenant represents one linked storefront account
type Tenant struct {
	ID           string // UUID
	StoreURL     string // Unique shop domain, e.g. acme.myshopify.com
	AccessToken  string // Platform credential, never serialized
	UserID       string // Owning user; empty until linked
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastSyncedAt *time.Time
}

// Linked reports whether the tenant has an owner
func (t *Tenant) Linked() bool {
	return t.UserID != ""
}

// TenantRepository defines data access for tenants
type TenantRepository interface {
	// UpsertByStoreURL creates the tenant or refreshes the access token of an existing one.
	UpsertByStoreURL(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	GetByStoreURL(ctx context.Context, storeURL string) (*Tenant, error)
	ListByUser(ctx context.Context, userID string) ([]*Tenant, error)
	ListLinked(ctx context.Context) ([]*Tenant, error)
	// SetOwner assigns userID only when the tenant is unowned or already theirs;
	// a tenant owned by someone else yields ErrConflict.
	SetOwner(ctx context.Context, id, userID string) error
	ClearAccessToken(ctx context.Context, id string) error
	MarkSynced(ctx context.Context, id string, at time.Time) error
}
