// Package shopify talks to the Shopify Admin REST API on behalf of a tenant.
package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/storelens/storelens/internal/domain"
	"github.com/storelens/storelens/internal/observability/metrics"
	"github.com/storelens/storelens/internal/reliability/circuitbreaker"
)

// PageSize is the largest page the Admin API returns
const PageSize = 250

var shopDomain = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9\-]*\.myshopify\.com$`)

// ValidShop reports whether shop is a well-formed *.myshopify.com domain
func ValidShop(shop string) bool {
	return shopDomain.MatchString(shop)
}

// ErrUnavailable is returned while the circuit breaker rejects calls
var ErrUnavailable = errors.New("commerce platform temporarily unavailable")

// APIError is a non-2xx answer from the platform
type APIError struct {
	Status   int
	Resource string
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("shopify %s: status %d: %s", e.Resource, e.Status, e.Body)
}

// Config holds the app credentials
type Config struct {
	APIKey     string
	APISecret  string
	Scopes     string
	APIVersion string
}

// Client is a Shopify Admin API client shared by all tenants
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
	// baseURL returns scheme://host for a shop
	baseURL func(shop string) string
}

// NewClient creates a client. breaker may be nil.
func NewClient(cfg Config, breaker *circuitbreaker.CircuitBreaker, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(5, 1, 30*time.Second)
		breaker.SetStateChangeCallback(func(from, to circuitbreaker.State) {
			logger.Warn("shopify circuit breaker state changed",
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			metrics.SetBreakerState("shopify", int(to))
		})
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		},
		breaker: breaker,
		logger:  logger,
		baseURL: func(shop string) string { return "https://" + shop },
	}
}

type apiOrder struct {
	ID              int64        `json:"id"`
	Name            string       `json:"name"`
	OrderNumber     int64        `json:"order_number"`
	CheckoutID      *int64       `json:"checkout_id"`
	FinancialStatus string       `json:"financial_status"`
	TotalPrice      string       `json:"total_price"`
	CreatedAt       time.Time    `json:"created_at"`
	Customer        *apiCustomer `json:"customer"`
}

type apiCustomer struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type apiCheckout struct {
	ID         int64     `json:"id"`
	Email      string    `json:"email"`
	TotalPrice string    `json:"total_price"`
	CreatedAt  time.Time `json:"created_at"`
}

// FetchSnapshot pulls every order, customer and checkout of a shop
func (c *Client) FetchSnapshot(ctx context.Context, shop, accessToken string) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{}

	err := paginate(ctx, c, shop, accessToken, "orders", url.Values{"status": {"any"}}, func(page []apiOrder) error {
		for _, o := range page {
			order, err := o.toDomain()
			if err != nil {
				return err
			}
			snap.Orders = append(snap.Orders, order)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = paginate(ctx, c, shop, accessToken, "customers", nil, func(page []apiCustomer) error {
		for _, cu := range page {
			snap.Customers = append(snap.Customers, cu.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = paginate(ctx, c, shop, accessToken, "checkouts", nil, func(page []apiCheckout) error {
		for _, ch := range page {
			checkout, err := ch.toDomain()
			if err != nil {
				return err
			}
			snap.Checkouts = append(snap.Checkouts, checkout)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return snap, nil
}

// paginate walks a resource following Link rel="next" headers
func paginate[T any](ctx context.Context, c *Client, shop, token, resource string, query url.Values, fn func([]T) error) error {
	q := url.Values{"limit": {strconv.Itoa(PageSize)}}
	for k, v := range query {
		q[k] = v
	}
	next := fmt.Sprintf("%s/admin/api/%s/%s.json?%s", c.baseURL(shop), c.cfg.APIVersion, resource, q.Encode())

	for next != "" {
		var page map[string][]T
		link, err := c.getJSON(ctx, next, token, resource, &page)
		if err != nil {
			return err
		}
		if err := fn(page[resource]); err != nil {
			return err
		}
		next = nextLink(link)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, rawURL, token, resource string, out any) (string, error) {
	if !c.breaker.AllowRequest() {
		return "", ErrUnavailable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-Shopify-Access-Token", token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			c.breaker.RecordFailure()
		}
		metrics.ObservePlatformRequest(resource, "error", time.Since(start))
		return "", fmt.Errorf("shopify %s: %w", resource, err)
	}
	defer resp.Body.Close()
	metrics.ObservePlatformRequest(resource, strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		// 4xx is the tenant's problem (revoked token, missing scope), not the platform's
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			c.breaker.RecordFailure()
		} else {
			c.breaker.RecordSuccess()
		}
		return "", &APIError{Status: resp.StatusCode, Resource: resource, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return "", fmt.Errorf("decode %s: %w", resource, err)
	}
	c.breaker.RecordSuccess()
	return resp.Header.Get("Link"), nil
}

// nextLink extracts the rel="next" URL of a Link header
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segs := strings.Split(part, ";")
		if len(segs) < 2 {
			continue
		}
		target := strings.Trim(strings.TrimSpace(segs[0]), "<>")
		for _, attr := range segs[1:] {
			if strings.ReplaceAll(strings.TrimSpace(attr), " ", "") == `rel="next"` {
				return target
			}
		}
	}
	return ""
}

func (o apiOrder) toDomain() (*domain.Order, error) {
	total, err := parseMoney(o.TotalPrice)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", o.ID, err)
	}
	order := &domain.Order{
		ID:              strconv.FormatInt(o.ID, 10),
		OrderNumber:     strconv.FormatInt(o.OrderNumber, 10),
		FinancialStatus: o.FinancialStatus,
		Total:           total,
		CreatedAt:       o.CreatedAt,
	}
	if o.CheckoutID != nil {
		order.CheckoutID = strconv.FormatInt(*o.CheckoutID, 10)
	}
	if o.Customer != nil {
		order.CustomerID = strconv.FormatInt(o.Customer.ID, 10)
	}
	return order, nil
}

func (cu apiCustomer) toDomain() *domain.Customer {
	return &domain.Customer{
		ID:        strconv.FormatInt(cu.ID, 10),
		FirstName: cu.FirstName,
		LastName:  cu.LastName,
		Email:     cu.Email,
		CreatedAt: cu.CreatedAt,
	}
}

func (ch apiCheckout) toDomain() (*domain.Checkout, error) {
	total, err := parseMoney(ch.TotalPrice)
	if err != nil {
		return nil, fmt.Errorf("checkout %d: %w", ch.ID, err)
	}
	return &domain.Checkout{
		ID:        strconv.FormatInt(ch.ID, 10),
		Email:     ch.Email,
		Total:     total,
		CreatedAt: ch.CreatedAt,
	}, nil
}

func parseMoney(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
