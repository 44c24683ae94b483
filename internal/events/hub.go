package events

import (
	"context"
	"log/slog"
	"sync"
)

const subscriberBuffer = 16

// Subscription receives the events of one tenant
type Subscription struct {
	C        <-chan Event
	ch       chan Event
	tenantID string
	hub      *Hub
	once     sync.Once
}

// Close detaches the subscription from the hub
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.remove(s) })
}

// Hub routes events to in-process subscribers keyed by tenant. A slow
// subscriber drops events rather than blocking publishers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	logger *slog.Logger
}

// NewHub creates an empty hub
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subs: make(map[string]map[*Subscription]struct{}), logger: logger}
}

// Subscribe registers interest in a tenant's events
func (h *Hub) Subscribe(tenantID string) *Subscription {
	ch := make(chan Event, subscriberBuffer)
	s := &Subscription{C: ch, ch: ch, tenantID: tenantID, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[tenantID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[tenantID] = set
	}
	set[s] = struct{}{}
	return s
}

// Publish delivers e to the tenant's subscribers
func (h *Hub) Publish(_ context.Context, e Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[e.TenantID] {
		select {
		case s.ch <- e:
		default:
			h.logger.Warn("dropping event for slow subscriber",
				slog.String("tenant_id", e.TenantID),
				slog.String("type", e.Type),
			)
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions for a tenant
func (h *Hub) Subscribers(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[tenantID])
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[s.tenantID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.tenantID)
		}
	}
	close(s.ch)
}
