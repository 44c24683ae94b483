package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/storelens/storelens/internal/domain"
	"github.com/storelens/storelens/internal/featureflags"
	"github.com/storelens/storelens/internal/infrastructure/shopify"
	"github.com/storelens/storelens/pkg/cache"
)

// stateTTL bounds how long a merchant may take on the approval screen
const stateTTL = 10 * time.Minute

// OAuthClient is the platform side of the app install handshake
type OAuthClient interface {
	AuthorizeURL(shop, state, redirectURI string) string
	ExchangeCode(ctx context.Context, shop, code string) (string, error)
}

// Installer records app installs
type Installer interface {
	Install(ctx context.Context, shop, accessToken string) (*domain.Tenant, error)
}

// SyncTrigger queues a background sync
type SyncTrigger interface {
	Trigger(tenantID string) bool
}

// InstallConfig holds the URLs and secret of the install flow
type InstallConfig struct {
	APISecret   string
	AppURL      string // Public base URL of this server
	FrontendURL string // Where merchants land after installing
}

// ShopifyHandler drives the app install flow
type ShopifyHandler struct {
	oauth     OAuthClient
	installer Installer
	trigger   SyncTrigger
	states    *cache.Cache[string]
	cfg       InstallConfig
	logger    *slog.Logger
}

// NewShopifyHandler creates the install handler. trigger may be nil.
func NewShopifyHandler(oauth OAuthClient, installer Installer, trigger SyncTrigger, states *cache.Cache[string], cfg InstallConfig, logger *slog.Logger) *ShopifyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if states == nil {
		states = cache.New[string]()
	}
	return &ShopifyHandler{
		oauth:     oauth,
		installer: installer,
		trigger:   trigger,
		states:    states,
		cfg:       cfg,
		logger:    logger,
	}
}

// Install handles GET /api/shopify/install?shop=
func (h *ShopifyHandler) Install(w http.ResponseWriter, r *http.Request) {
	shop := r.URL.Query().Get("shop")
	if !shopify.ValidShop(shop) {
		writeError(w, h.logger, domain.Errorf(domain.ErrValidation, "invalid shop domain"))
		return
	}

	state := uuid.NewString()
	h.states.Set(state, shop, stateTTL)

	h.logger.Info("install started", slog.String("store_url", shop))
	http.Redirect(w, r, h.oauth.AuthorizeURL(shop, state, h.redirectURI()), http.StatusFound)
}

// Callback handles GET /api/shopify/callback
func (h *ShopifyHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	shop := q.Get("shop")
	if !shopify.ValidShop(shop) {
		writeError(w, h.logger, domain.Errorf(domain.ErrValidation, "invalid shop domain"))
		return
	}
	if !shopify.VerifyQuery(h.cfg.APISecret, q) {
		h.logger.Warn("install callback with bad signature", slog.String("store_url", shop))
		writeError(w, h.logger, domain.Errorf(domain.ErrAuth, "invalid signature"))
		return
	}
	// the nonce is single use
	if expected, ok := h.states.Take(q.Get("state")); !ok || expected != shop {
		writeError(w, h.logger, domain.Errorf(domain.ErrValidation, "invalid or expired install state"))
		return
	}
	code := q.Get("code")
	if code == "" {
		writeError(w, h.logger, domain.Errorf(domain.ErrValidation, "missing authorization code"))
		return
	}

	token, err := h.oauth.ExchangeCode(r.Context(), shop, code)
	if err != nil {
		h.logger.Error("code exchange failed",
			slog.String("store_url", shop),
			slog.String("error", err.Error()),
		)
		writeError(w, h.logger, fmt.Errorf("%w: %v", domain.ErrUpstream, err))
		return
	}

	tenant, err := h.installer.Install(r.Context(), shop, token)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if h.trigger != nil && featureflags.Enabled(featureflags.SyncOnInstall) {
		h.trigger.Trigger(tenant.ID)
	}

	target := h.cfg.FrontendURL + "/dashboard?" + url.Values{
		"installedTenant": {tenant.ID},
		"shop":            {shop},
	}.Encode()
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *ShopifyHandler) redirectURI() string {
	return h.cfg.AppURL + "/api/shopify/callback"
}
