package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/storelens/storelens/internal/observability/requestid"
	"github.com/storelens/storelens/internal/security/audit"
	"github.com/storelens/storelens/internal/security/auth"
	"github.com/storelens/storelens/internal/security/middleware"
	"github.com/storelens/storelens/internal/security/ratelimit"
)

// Router assembles the HTTP surface. Events and Metrics may be nil.
type Router struct {
	Auth      *AuthHandler
	Tenants   *TenantsHandler
	Dashboard *DashboardHandler
	Shopify   *ShopifyHandler
	Webhooks  *WebhookHandler
	Events    *EventsHandler
	Health    *HealthHandler
	Metrics   http.Handler

	Tokens  *auth.TokenManager
	Limiter *ratelimit.Limiter
	Audit   *audit.Logger
	Logger  *slog.Logger
}

// Handler returns the routed handler. Webhook routes are matched before the
// /api/ tree so their raw bodies never pass JSON validation.
func (rt *Router) Handler() http.Handler {
	log := rt.Logger
	if log == nil {
		log = slog.Default()
	}
	auditLog := rt.Audit
	if auditLog == nil {
		auditLog = audit.NewLogger(log)
	}
	limit := middleware.RateLimitMiddleware(rt.Limiter, log)

	// session required
	private := http.NewServeMux()
	private.HandleFunc("GET /api/auth/me", rt.Auth.Me)
	private.HandleFunc("POST /api/auth/change-password", rt.Auth.ChangePassword)
	private.HandleFunc("GET /api/tenants", rt.Tenants.List)
	private.HandleFunc("POST /api/tenants/{id}/link", rt.Tenants.Link)
	private.HandleFunc("POST /api/tenants/{id}/sync", rt.Tenants.Sync)
	private.Handle("GET /api/tenants/{id}/dashboard", rt.Dashboard)
	if rt.Events != nil {
		private.Handle("GET /ws/tenants/{id}/events", rt.Events)
	}
	session := middleware.Session(rt.Tokens, log)(
		limit(middleware.AuditMiddleware(auditLog)(private)),
	)

	api := http.NewServeMux()
	api.Handle("POST /api/auth/register", limit(http.HandlerFunc(rt.Auth.Register)))
	api.Handle("POST /api/auth/login", limit(http.HandlerFunc(rt.Auth.Login)))
	api.HandleFunc("POST /api/auth/logout", rt.Auth.Logout)
	api.Handle("GET /api/shopify/install", limit(http.HandlerFunc(rt.Shopify.Install)))
	api.HandleFunc("GET /api/shopify/callback", rt.Shopify.Callback)
	api.Handle("/", session)

	root := http.NewServeMux()
	root.HandleFunc("GET /health", rt.Health.Health)
	root.HandleFunc("GET /healthz", rt.Health.Health)
	root.HandleFunc("GET /readyz", rt.Health.Ready)
	if rt.Metrics != nil {
		root.Handle("GET /metrics", rt.Metrics)
	}
	root.HandleFunc("POST /api/webhooks/{resource}/{action}", rt.Webhooks.Record)
	root.HandleFunc("POST /api/shopify/webhooks/app-uninstalled", rt.Webhooks.AppUninstalled)
	root.Handle("/api/", middleware.SanitizeInputs(log)(middleware.ValidateJSONContentType(log)(api)))
	root.Handle("/ws/", session)

	return accessLog(root, log)
}

// accessLog writes one line per finished request
func accessLog(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info("request completed",
			slog.String("request_id", requestid.FromContext(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration_ms", time.Since(start)),
		)
	})
}
