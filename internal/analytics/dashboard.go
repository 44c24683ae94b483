package analytics

import (
	"time"

	"github.com/storelens/storelens/internal/domain"
)

// Totals are headline figures shown above the charts
type Totals struct {
	Orders             int     `json:"orders"`
	Revenue            float64 `json:"revenue"`
	Customers          int     `json:"customers"`
	AbandonedCheckouts int     `json:"abandonedCheckouts"`
}

// Dashboard is the full aggregate payload for one tenant
type Dashboard struct {
	TenantID           string     `json:"tenantId"`
	Days               int        `json:"days"`
	Timezone           string     `json:"timezone"`
	GeneratedAt        time.Time  `json:"generatedAt"`
	Totals             Totals     `json:"totals"`
	DailyOrders        []DayCount `json:"dailyOrders"`
	AbandonedCheckouts []DayCount `json:"abandonedCheckouts"`
	TopCustomers       Ranking    `json:"topCustomers"`
}

// Input is the raw record set a dashboard is computed from
type Input struct {
	Orders    []*domain.Order
	Customers []*domain.Customer
	Checkouts []*domain.Checkout
}

// Build computes every aggregate for tenantID. Records belonging to any
// other tenant are dropped before aggregation.
func Build(tenantID string, in Input, days int, now time.Time, loc *time.Location) (*Dashboard, error) {
	if tenantID == "" {
		return nil, domain.Errorf(domain.ErrValidation, "tenant id is required")
	}
	if loc == nil {
		loc = time.Local
	}

	orders := ownedBy(tenantID, in.Orders, func(o *domain.Order) string { return o.TenantID })
	customers := ownedBy(tenantID, in.Customers, func(c *domain.Customer) string { return c.TenantID })
	checkouts := ownedBy(tenantID, in.Checkouts, func(c *domain.Checkout) string { return c.TenantID })

	daily, err := DailyOrders(orders, days, now, loc)
	if err != nil {
		return nil, err
	}
	abandoned := AbandonedCheckouts(checkouts, orders, now, loc)

	d := &Dashboard{
		TenantID:           tenantID,
		Days:               days,
		Timezone:           loc.String(),
		GeneratedAt:        now,
		DailyOrders:        daily,
		AbandonedCheckouts: abandoned,
		TopCustomers:       TopCustomers(ProjectCustomers(customers, orders), TopCustomersLimit),
	}

	var revenue float64
	for _, o := range orders {
		revenue += o.Total
	}
	d.Totals = Totals{
		Orders:             len(orders),
		Revenue:            roundCents(revenue),
		Customers:          len(customers),
		AbandonedCheckouts: sumCounts(abandoned),
	}
	return d, nil
}

func ownedBy[T any](tenantID string, items []T, tenantOf func(T) string) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if tenantOf(item) == tenantID {
			out = append(out, item)
		}
	}
	return out
}

func sumCounts(buckets []DayCount) int {
	n := 0
	for _, b := range buckets {
		n += b.Count
	}
	return n
}
