// Package analytics computes the dashboard aggregates of one tenant.
// Everything here is a pure function of the records passed in and a clock.
package analytics

import (
	"cmp"
	"slices"
	"time"

	"github.com/storelens/storelens/internal/domain"
)

const (
	dayKeyLayout   = "2006-01-02"
	dayLabelLayout = "Jan 02"

	// AbandonedWindowDays is the look-back of the abandoned-checkout chart
	AbandonedWindowDays = 30
	// TopCustomersLimit is how many customers are shown before "more"
	TopCustomersLimit = 5

	StatusNew       = "New"
	StatusReturning = "Returning"
)

// AllowedWindows are the day ranges the daily-orders chart supports
var AllowedWindows = []int{7, 30, 90}

// DayCount is one calendar-day bucket of a chart
type DayCount struct {
	Date  string `json:"date"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// CustomerStats is a customer with spend derived from the tenant's orders
type CustomerStats struct {
	ID         string  `json:"id"`
	FirstName  string  `json:"firstName"`
	LastName   string  `json:"lastName"`
	Email      string  `json:"email"`
	TotalSpend float64 `json:"totalSpend"`
	OrderCount int     `json:"orderCount"`
	Status     string  `json:"status"`
}

// Ranking is the ranked customer list split at the display limit
type Ranking struct {
	Top  []CustomerStats `json:"top"`
	More []CustomerStats `json:"more"`
}

// ValidWindow reports whether days is a supported chart range
func ValidWindow(days int) bool {
	return slices.Contains(AllowedWindows, days)
}

// DailyOrders counts orders per calendar day for the last `days` days
// including today, in loc. Every day gets a bucket, empty days count zero.
func DailyOrders(orders []*domain.Order, days int, now time.Time, loc *time.Location) ([]DayCount, error) {
	if !ValidWindow(days) {
		return nil, domain.Errorf(domain.ErrValidation, "days must be one of 7, 30 or 90")
	}
	today := startOfDay(now, loc)
	start := today.AddDate(0, 0, -(days - 1))
	end := today.AddDate(0, 0, 1)

	buckets, index := makeBuckets(start, end)
	for _, o := range orders {
		countInto(buckets, index, o.CreatedAt.In(loc), start, end)
	}
	return buckets, nil
}

// AbandonedCheckouts counts, per day of the last 30 days, checkouts that no
// order of the tenant references. Completion is judged against all orders
// regardless of when the order was placed. The window opens exactly 30 days
// before now and is bucketed by calendar day through today.
func AbandonedCheckouts(checkouts []*domain.Checkout, orders []*domain.Order, now time.Time, loc *time.Location) []DayCount {
	now = now.In(loc)
	start := now.AddDate(0, 0, -AbandonedWindowDays)
	end := startOfDay(now, loc).AddDate(0, 0, 1)

	completed := make(map[string]struct{}, len(orders))
	for _, o := range orders {
		if o.CheckoutID != "" {
			completed[o.CheckoutID] = struct{}{}
		}
	}

	buckets, index := makeBuckets(startOfDay(start, loc), end)
	for _, c := range checkouts {
		if _, done := completed[c.ID]; done {
			continue
		}
		countInto(buckets, index, c.CreatedAt.In(loc), start, end)
	}
	return buckets
}

// ProjectCustomers derives spend, order count and status for every customer
// from the orders that reference them. Input order is preserved.
func ProjectCustomers(customers []*domain.Customer, orders []*domain.Order) []CustomerStats {
	type agg struct {
		spend float64
		count int
	}
	byCustomer := make(map[string]*agg, len(customers))
	for _, o := range orders {
		if o.CustomerID == "" {
			continue
		}
		a, ok := byCustomer[o.CustomerID]
		if !ok {
			a = &agg{}
			byCustomer[o.CustomerID] = a
		}
		a.spend += o.Total
		a.count++
	}

	out := make([]CustomerStats, 0, len(customers))
	for _, c := range customers {
		s := CustomerStats{
			ID:        c.ID,
			FirstName: c.FirstName,
			LastName:  c.LastName,
			Email:     c.Email,
			Status:    StatusNew,
		}
		if a, ok := byCustomer[c.ID]; ok {
			s.TotalSpend = roundCents(a.spend)
			s.OrderCount = a.count
		}
		if s.OrderCount > 1 {
			s.Status = StatusReturning
		}
		out = append(out, s)
	}
	return out
}

// TopCustomers orders customers by spend, highest first. Ties keep their
// input order. The first limit entries go to Top and the rest to More.
func TopCustomers(stats []CustomerStats, limit int) Ranking {
	ranked := slices.Clone(stats)
	slices.SortStableFunc(ranked, func(a, b CustomerStats) int {
		return cmp.Compare(b.TotalSpend, a.TotalSpend)
	})
	if limit < 0 {
		limit = 0
	}
	if limit > len(ranked) {
		limit = len(ranked)
	}
	return Ranking{
		Top:  ranked[:limit],
		More: append([]CustomerStats{}, ranked[limit:]...),
	}
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func makeBuckets(start, end time.Time) ([]DayCount, map[string]int) {
	var buckets []DayCount
	index := make(map[string]int)
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		key := day.Format(dayKeyLayout)
		index[key] = len(buckets)
		buckets = append(buckets, DayCount{Date: key, Label: day.Format(dayLabelLayout)})
	}
	return buckets, index
}

func countInto(buckets []DayCount, index map[string]int, at, start, end time.Time) {
	if at.Before(start) || !at.Before(end) {
		return
	}
	if i, ok := index[at.Format(dayKeyLayout)]; ok {
		buckets[i].Count++
	}
}

func roundCents(v float64) float64 {
	if v < 0 {
		return -roundCents(-v)
	}
	return float64(int64(v*100+0.5)) / 100
}
