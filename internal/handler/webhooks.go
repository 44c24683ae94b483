package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/storelens/storelens/internal/domain"
	"github.com/storelens/storelens/internal/events"
	"github.com/storelens/storelens/internal/infrastructure/shopify"
	"github.com/storelens/storelens/internal/observability/metrics"
)

// Webhook headers set by the platform
const (
	HeaderHmac       = "X-Shopify-Hmac-Sha256"
	HeaderShopDomain = "X-Shopify-Shop-Domain"
)

const maxWebhookBytes = 2 << 20

var (
	webhookActions   = map[string]bool{"create": true, "update": true, "paid": true}
	webhookResources = map[string]bool{
		shopify.ResourceOrders:    true,
		shopify.ResourceCustomers: true,
		shopify.ResourceCheckouts: true,
	}
)

// ShopResolver maps webhook shops to tenants
type ShopResolver interface {
	ResolveShop(ctx context.Context, shop string) (*domain.Tenant, error)
	Uninstall(ctx context.Context, shop string) error
}

// RecordWriter stores single records pushed by webhooks
type RecordWriter interface {
	UpsertOrder(ctx context.Context, order *domain.Order) error
	UpsertCustomer(ctx context.Context, customer *domain.Customer) error
	UpsertCheckout(ctx context.Context, checkout *domain.Checkout) error
}

// WebhookHandler ingests signed platform webhooks. Bodies are read raw
// because the signature covers the exact bytes sent.
type WebhookHandler struct {
	secret    string
	shops     ShopResolver
	records   RecordWriter
	publisher events.Publisher
	logger    *slog.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(secret string, shops ShopResolver, records RecordWriter, publisher events.Publisher, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &WebhookHandler{
		secret:    secret,
		shops:     shops,
		records:   records,
		publisher: publisher,
		logger:    logger,
	}
}

// Record handles POST /api/webhooks/{resource}/{action}
func (h *WebhookHandler) Record(w http.ResponseWriter, r *http.Request) {
	resource, action := r.PathValue("resource"), r.PathValue("action")
	topic := resource + "/" + action
	if !webhookResources[resource] || !webhookActions[action] {
		metrics.ObserveWebhook("unknown", "rejected")
		writeError(w, h.logger, domain.Errorf(domain.ErrNotFound, "unknown webhook topic"))
		return
	}

	body, ok := h.verifiedBody(w, r, topic)
	if !ok {
		return
	}

	shop := r.Header.Get(HeaderShopDomain)
	tenant, err := h.shops.ResolveShop(r.Context(), shop)
	if err != nil {
		metrics.ObserveWebhook(topic, "unknown_shop")
		h.logger.Warn("webhook for unknown shop",
			slog.String("topic", topic),
			slog.String("store_url", shop),
		)
		writeError(w, h.logger, err)
		return
	}

	rec, err := shopify.DecodeWebhook(resource, body, tenant.ID)
	if err != nil {
		metrics.ObserveWebhook(topic, "invalid")
		writeError(w, h.logger, err)
		return
	}

	id, err := h.store(r.Context(), rec)
	if err != nil {
		metrics.ObserveWebhook(topic, "error")
		writeError(w, h.logger, err)
		return
	}

	metrics.ObserveWebhook(topic, "ok")
	h.logger.Info("webhook applied",
		slog.String("topic", topic),
		slog.String("tenant_id", tenant.ID),
		slog.String("record_id", id),
	)
	if err := h.publisher.Publish(r.Context(), events.New(events.TypeRecordUpserted, tenant.ID, map[string]any{
		"resource": resource,
		"action":   action,
		"id":       id,
	})); err != nil {
		h.logger.Warn("failed to publish event", slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// AppUninstalled handles POST /api/shopify/webhooks/app-uninstalled
func (h *WebhookHandler) AppUninstalled(w http.ResponseWriter, r *http.Request) {
	const topic = "app/uninstalled"
	if _, ok := h.verifiedBody(w, r, topic); !ok {
		return
	}

	if err := h.shops.Uninstall(r.Context(), r.Header.Get(HeaderShopDomain)); err != nil {
		metrics.ObserveWebhook(topic, "error")
		writeError(w, h.logger, err)
		return
	}
	metrics.ObserveWebhook(topic, "ok")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *WebhookHandler) verifiedBody(w http.ResponseWriter, r *http.Request, topic string) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		metrics.ObserveWebhook(topic, "invalid")
		writeError(w, h.logger, domain.Errorf(domain.ErrValidation, "unreadable body"))
		return nil, false
	}
	if !shopify.VerifyWebhook(h.secret, body, r.Header.Get(HeaderHmac)) {
		metrics.ObserveWebhook(topic, "bad_signature")
		h.logger.Warn("webhook signature mismatch",
			slog.String("topic", topic),
			slog.String("store_url", r.Header.Get(HeaderShopDomain)),
		)
		writeError(w, h.logger, domain.Errorf(domain.ErrAuth, "invalid webhook signature"))
		return nil, false
	}
	return body, true
}

func (h *WebhookHandler) store(ctx context.Context, rec *shopify.WebhookRecord) (string, error) {
	switch {
	case rec.Order != nil:
		return rec.Order.ID, h.records.UpsertOrder(ctx, rec.Order)
	case rec.Customer != nil:
		return rec.Customer.ID, h.records.UpsertCustomer(ctx, rec.Customer)
	case rec.Checkout != nil:
		return rec.Checkout.ID, h.records.UpsertCheckout(ctx, rec.Checkout)
	}
	return "", errors.New("empty webhook record")
}
