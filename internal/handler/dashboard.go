package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/storelens/storelens/internal/analytics"
	"github.com/storelens/storelens/internal/domain"
	"github.com/storelens/storelens/internal/security/middleware"
)

const defaultWindowDays = 30

// DashboardBuilder computes a tenant's dashboard
type DashboardBuilder interface {
	Build(ctx context.Context, tenantID, userID string, days int, loc *time.Location) (*analytics.Dashboard, error)
}

// DashboardHandler handles GET /api/tenants/{id}/dashboard
type DashboardHandler struct {
	dashboards DashboardBuilder
	logger     *slog.Logger
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(dashboards DashboardBuilder, logger *slog.Logger) *DashboardHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardHandler{dashboards: dashboards, logger: logger}
}

// ServeHTTP accepts days (7, 30 or 90, default 30) and tz (IANA name,
// default the server timezone).
func (h *DashboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, h.logger, domain.Errorf(domain.ErrAuth, "not authenticated"))
		return
	}

	days := defaultWindowDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, h.logger, domain.Errorf(domain.ErrValidation, "days must be one of 7, 30 or 90"))
			return
		}
		days = n
	}

	var loc *time.Location
	if tz := r.URL.Query().Get("tz"); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			writeError(w, h.logger, domain.Errorf(domain.ErrValidation, "unknown timezone %q", tz))
			return
		}
		loc = l
	}

	d, err := h.dashboards.Build(r.Context(), r.PathValue("id"), claims.UserID, days, loc)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
