package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/storelens/storelens/internal/analytics"
	"github.com/storelens/storelens/internal/domain"
	"github.com/storelens/storelens/internal/security/middleware"
	"github.com/storelens/storelens/internal/service"
)

// TenantManager is the tenant API behind the /api/tenants endpoints
type TenantManager interface {
	ListForUser(ctx context.Context, userID string) ([]*service.TenantData, error)
	Link(ctx context.Context, tenantID, userID string) (*domain.Tenant, error)
}

// TenantSyncer runs an on-demand sync for the owner of a tenant
type TenantSyncer interface {
	SyncForUser(ctx context.Context, tenantID, userID string) (*service.SyncResult, error)
}

// TenantsHandler serves the caller's stores
type TenantsHandler struct {
	tenants TenantManager
	syncer  TenantSyncer
	logger  *slog.Logger
}

// NewTenantsHandler creates a new tenants handler
func NewTenantsHandler(tenants TenantManager, syncer TenantSyncer, logger *slog.Logger) *TenantsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantsHandler{tenants: tenants, syncer: syncer, logger: logger}
}

// TenantResponse is a store with its synced records
type TenantResponse struct {
	ID           string                    `json:"id"`
	StoreURL     string                    `json:"storeUrl"`
	CreatedAt    time.Time                 `json:"createdAt"`
	LastSyncedAt *time.Time                `json:"lastSyncedAt"`
	Orders       []OrderResponse           `json:"orders,omitempty"`
	Checkouts    []CheckoutResponse        `json:"checkouts,omitempty"`
	Customers    []analytics.CustomerStats `json:"customers,omitempty"`
}

// OrderResponse is the wire form of an order
type OrderResponse struct {
	ID              string    `json:"id"`
	OrderNumber     string    `json:"orderNumber"`
	CheckoutID      string    `json:"checkoutId,omitempty"`
	CustomerID      string    `json:"customerId,omitempty"`
	FinancialStatus string    `json:"financialStatus"`
	Total           float64   `json:"total"`
	CreatedAt       time.Time `json:"createdAt"`
}

// CheckoutResponse is the wire form of a checkout
type CheckoutResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Total     float64   `json:"total"`
	CreatedAt time.Time `json:"createdAt"`
}

// SyncResponse summarizes a finished sync
type SyncResponse struct {
	TenantID   string    `json:"tenantId"`
	Orders     int       `json:"orders"`
	Customers  int       `json:"customers"`
	Checkouts  int       `json:"checkouts"`
	SyncedAt   time.Time `json:"syncedAt"`
	DurationMS int64     `json:"durationMs"`
}

// List handles GET /api/tenants
func (h *TenantsHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, h.logger, domain.Errorf(domain.ErrAuth, "not authenticated"))
		return
	}

	data, err := h.tenants.ListForUser(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	out := make([]TenantResponse, 0, len(data))
	for _, d := range data {
		resp := tenantResponse(d.Tenant)
		resp.Customers = d.Customers
		for _, o := range d.Orders {
			resp.Orders = append(resp.Orders, OrderResponse{
				ID:              o.ID,
				OrderNumber:     o.OrderNumber,
				CheckoutID:      o.CheckoutID,
				CustomerID:      o.CustomerID,
				FinancialStatus: o.FinancialStatus,
				Total:           o.Total,
				CreatedAt:       o.CreatedAt,
			})
		}
		for _, c := range d.Checkouts {
			resp.Checkouts = append(resp.Checkouts, CheckoutResponse{
				ID:        c.ID,
				Email:     c.Email,
				Total:     c.Total,
				CreatedAt: c.CreatedAt,
			})
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

// Link handles POST /api/tenants/{id}/link
func (h *TenantsHandler) Link(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, h.logger, domain.Errorf(domain.ErrAuth, "not authenticated"))
		return
	}

	t, err := h.tenants.Link(r.Context(), r.PathValue("id"), claims.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tenantResponse(t))
}

// Sync handles POST /api/tenants/{id}/sync
func (h *TenantsHandler) Sync(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, h.logger, domain.Errorf(domain.ErrAuth, "not authenticated"))
		return
	}

	res, err := h.syncer.SyncForUser(r.Context(), r.PathValue("id"), claims.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, SyncResponse{
		TenantID:   res.TenantID,
		Orders:     res.Orders,
		Customers:  res.Customers,
		Checkouts:  res.Checkouts,
		SyncedAt:   res.SyncedAt,
		DurationMS: res.Duration.Milliseconds(),
	})
}

func tenantResponse(t *domain.Tenant) TenantResponse {
	return TenantResponse{
		ID:           t.ID,
		StoreURL:     t.StoreURL,
		CreatedAt:    t.CreatedAt,
		LastSyncedAt: t.LastSyncedAt,
	}
}
