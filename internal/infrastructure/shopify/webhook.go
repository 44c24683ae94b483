package shopify

import (
	"encoding/json"

	"github.com/storelens/storelens/internal/domain"
)

// Webhook resources the app subscribes to
const (
	ResourceOrders    = "orders"
	ResourceCustomers = "customers"
	ResourceCheckouts = "checkouts"
)

// WebhookRecord is the single record carried by a webhook. Exactly one field is set.
type WebhookRecord struct {
	Order    *domain.Order
	Customer *domain.Customer
	Checkout *domain.Checkout
}

// DecodeWebhook parses a webhook body for resource into a domain record
// stamped with tenantID.
func DecodeWebhook(resource string, body []byte, tenantID string) (*WebhookRecord, error) {
	switch resource {
	case ResourceOrders:
		var o apiOrder
		if err := json.Unmarshal(body, &o); err != nil {
			return nil, domain.Errorf(domain.ErrValidation, "malformed order payload")
		}
		order, err := o.toDomain()
		if err != nil {
			return nil, domain.Errorf(domain.ErrValidation, "%s", err.Error())
		}
		order.TenantID = tenantID
		return &WebhookRecord{Order: order}, nil
	case ResourceCustomers:
		var cu apiCustomer
		if err := json.Unmarshal(body, &cu); err != nil {
			return nil, domain.Errorf(domain.ErrValidation, "malformed customer payload")
		}
		customer := cu.toDomain()
		customer.TenantID = tenantID
		return &WebhookRecord{Customer: customer}, nil
	case ResourceCheckouts:
		var ch apiCheckout
		if err := json.Unmarshal(body, &ch); err != nil {
			return nil, domain.Errorf(domain.ErrValidation, "malformed checkout payload")
		}
		checkout, err := ch.toDomain()
		if err != nil {
			return nil, domain.Errorf(domain.ErrValidation, "%s", err.Error())
		}
		checkout.TenantID = tenantID
		return &WebhookRecord{Checkout: checkout}, nil
	default:
		return nil, domain.Errorf(domain.ErrNotFound, "unsupported webhook resource %q", resource)
	}
}
