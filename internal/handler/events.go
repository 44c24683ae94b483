package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/storelens/storelens/internal/domain"
	"github.com/storelens/storelens/internal/events"
	"github.com/storelens/storelens/internal/security/middleware"
)

const (
	pingInterval = 15 * time.Second
	writeWait    = 5 * time.Second
)

// TenantGetter checks that a user owns a tenant
type TenantGetter interface {
	Get(ctx context.Context, tenantID, userID string) (*domain.Tenant, error)
}

// EventsHandler streams a tenant's events to a dashboard over a websocket
type EventsHandler struct {
	hub            *events.Hub
	tenants        TenantGetter
	allowedOrigins []string
	logger         *slog.Logger
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(hub *events.Hub, tenants TenantGetter, allowedOrigins []string, logger *slog.Logger) *EventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsHandler{
		hub:            hub,
		tenants:        tenants,
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
}

func (h *EventsHandler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// non-browser clients
				return true
			}
			for _, allowed := range h.allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			h.logger.Warn("websocket origin rejected", slog.String("origin", origin))
			return false
		},
	}
}

// ServeHTTP handles GET /ws/tenants/{id}/events
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, h.logger, domain.Errorf(domain.ErrAuth, "not authenticated"))
		return
	}
	tenantID := r.PathValue("id")
	if _, err := h.tenants.Get(r.Context(), tenantID, claims.UserID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	upgrader := h.upgrader()
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	sub := h.hub.Subscribe(tenantID)
	defer sub.Close()

	logger := h.logger.With(slog.String("tenant_id", tenantID), slog.String("user_id", claims.UserID))
	logger.Debug("event stream opened")

	// The client never sends data; reading surfaces its close frame.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := h.stream(r.Context(), ws, sub, closed); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
			logger.Debug("event stream ended", slog.String("reason", err.Error()))
		}
	}
}

func (h *EventsHandler) stream(ctx context.Context, ws *websocket.Conn, sub *events.Subscription, closed <-chan struct{}) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-closed:
			return nil
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				return err
			}
		case e, ok := <-sub.C:
			if !ok {
				return nil
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(e); err != nil {
				return err
			}
		}
	}
}
