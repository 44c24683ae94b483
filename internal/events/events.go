// Package events fans tenant events out to live dashboards and the message bus.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	TypeTenantSynced     = "tenant.synced"
	TypeTenantSyncFailed = "tenant.sync_failed"
	TypeTenantInstalled  = "tenant.installed"
	TypeTenantLinked     = "tenant.linked"
	TypeTenantUninstall  = "tenant.uninstalled"
	TypeRecordUpserted   = "record.upserted"
)

// Event is a notification about one tenant
type Event struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	TenantID string         `json:"tenantId"`
	Time     time.Time      `json:"time"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// New stamps an event with an id and the current time
func New(eventType, tenantID string, payload map[string]any) Event {
	return Event{
		ID:       uuid.NewString(),
		Type:     eventType,
		TenantID: tenantID,
		Time:     time.Now().UTC(),
		Payload:  payload,
	}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Multi publishes to every publisher and joins their errors
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
