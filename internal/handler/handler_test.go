package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storelens/storelens/internal/domain"
	"github.com/storelens/storelens/internal/events"
	"github.com/storelens/storelens/internal/infrastructure/shopify"
	"github.com/storelens/storelens/internal/security/auth"
	"github.com/storelens/storelens/pkg/cache"
)

const (
	testSecret   = "app-secret"
	ownerID      = "u-owner"
	ownedTenant  = "t-owned"
	foreignShop  = "other.myshopify.com"
	ownedShop    = "owned.myshopify.com"
	frontendBase = "http://front.test"
)

type testEnv struct {
	server     *httptest.Server
	client     *http.Client
	tokens     *auth.TokenManager
	tenants    *fakeTenants
	dashboards *fakeDashboards
	records    *fakeRecords
	publisher  *capturePublisher
	trigger    *fakeTrigger
	oauth      *fakeOAuth
	ready      error
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		tokens: auth.NewTokenManager("test-secret", "storelens"),
		tenants: newFakeTenants(
			&domain.Tenant{ID: ownedTenant, StoreURL: ownedShop, AccessToken: "tok", UserID: ownerID},
			&domain.Tenant{ID: "t-foreign", StoreURL: foreignShop, UserID: "u-other"},
		),
		dashboards: &fakeDashboards{},
		records:    &fakeRecords{},
		publisher:  &capturePublisher{},
		trigger:    &fakeTrigger{},
		oauth:      &fakeOAuth{},
	}

	rt := &Router{
		Auth:      NewAuthHandler(&fakeAuth{users: map[string]string{"owner@shop.test": "hunter22"}}, nil, nil, false, nil),
		Tenants:   NewTenantsHandler(env.tenants, &fakeSyncer{}, nil),
		Dashboard: NewDashboardHandler(env.dashboards, nil),
		Shopify: NewShopifyHandler(env.oauth, env.tenants, env.trigger, cache.New[string](), InstallConfig{
			APISecret:   testSecret,
			AppURL:      "http://app.test",
			FrontendURL: frontendBase,
		}, nil),
		Webhooks: NewWebhookHandler(testSecret, env.tenants, env.records, env.publisher, nil),
		Events:   NewEventsHandler(events.NewHub(nil), env.tenants, nil, nil),
		Health: NewHealthHandler(map[string]Pinger{
			"postgres": PingFunc(func(context.Context) error { return env.ready }),
			"redis":    nil,
		}, nil),
		Tokens: env.tokens,
	}

	env.server = httptest.NewServer(rt.Handler())
	t.Cleanup(env.server.Close)
	env.client = &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string, userID string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		token, _, err := e.tokens.GenerateToken(userID, userID+"@shop.test")
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/auth/register", `{"email":"new@shop.test","password":"secret123"}`, "")
	assertStatusCode(t, resp, http.StatusCreated)
	user := decode[UserResponse](t, resp)
	assert.Equal(t, "new@shop.test", user.Email)
	assert.NotEmpty(t, user.ID)

	resp = env.do(t, http.MethodPost, "/api/auth/register", `{"email":"new@shop.test","password":"other"}`, "")
	assertStatusCode(t, resp, http.StatusConflict)

	resp = env.do(t, http.MethodPost, "/api/auth/register", `{"email":"","password":""}`, "")
	assertStatusCode(t, resp, http.StatusBadRequest)

	resp = env.do(t, http.MethodPost, "/api/auth/register", `{not json`, "")
	assertStatusCode(t, resp, http.StatusBadRequest)
}

func TestLoginSetsSessionCookie(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/auth/login", `{"email":"owner@shop.test","password":"hunter22"}`, "")
	assertStatusCode(t, resp, http.StatusOK)

	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == auth.CookieName {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.Equal(t, "tok", session.Value)
	assert.True(t, session.HttpOnly)
	assert.Equal(t, 86400, session.MaxAge)

	resp = env.do(t, http.MethodPost, "/api/auth/login", `{"email":"owner@shop.test","password":"wrong"}`, "")
	assertStatusCode(t, resp, http.StatusUnauthorized)
	assert.Empty(t, resp.Cookies())
}

func TestLogoutClearsCookieWithoutSession(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/auth/logout", "", "")
	assertStatusCode(t, resp, http.StatusOK)
	require.Len(t, resp.Cookies(), 1)
	assert.Equal(t, auth.CookieName, resp.Cookies()[0].Name)
	assert.Less(t, resp.Cookies()[0].MaxAge, 0)
}

func TestProtectedRoutesNeedSession(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/auth/me", "/api/tenants", "/api/tenants/" + ownedTenant + "/dashboard"} {
		resp := env.do(t, http.MethodGet, path, "", "")
		assertStatusCode(t, resp, http.StatusUnauthorized)
	}

	resp := env.do(t, http.MethodGet, "/api/auth/me", "", ownerID)
	assertStatusCode(t, resp, http.StatusOK)
	me := decode[UserResponse](t, resp)
	assert.Equal(t, ownerID, me.ID)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/auth/change-password", `{"oldPassword":"hunter22","newPassword":"short"}`, ownerID)
	assertStatusCode(t, resp, http.StatusBadRequest)

	resp = env.do(t, http.MethodPost, "/api/auth/change-password", `{"oldPassword":"hunter22","newPassword":"longenough"}`, ownerID)
	assertStatusCode(t, resp, http.StatusOK)
}

func TestTenantsListOnlyOwned(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/tenants", "", ownerID)
	assertStatusCode(t, resp, http.StatusOK)
	list := decode[[]TenantResponse](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, ownedTenant, list[0].ID)
	require.Len(t, list[0].Orders, 1)
	assert.Equal(t, "1001", list[0].Orders[0].OrderNumber)
}

func TestTenantLinkAndSync(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/tenants/t-foreign/link", "", ownerID)
	assertStatusCode(t, resp, http.StatusConflict)

	resp = env.do(t, http.MethodPost, "/api/tenants/missing/link", "", ownerID)
	assertStatusCode(t, resp, http.StatusNotFound)

	resp = env.do(t, http.MethodPost, "/api/tenants/"+ownedTenant+"/sync", "", ownerID)
	assertStatusCode(t, resp, http.StatusOK)
	res := decode[SyncResponse](t, resp)
	assert.Equal(t, 3, res.Orders)
	assert.Equal(t, int64(1500), res.DurationMS)
}

func TestDashboardParams(t *testing.T) {
	env := newTestEnv(t)
	base := "/api/tenants/" + ownedTenant + "/dashboard"

	resp := env.do(t, http.MethodGet, base, "", ownerID)
	assertStatusCode(t, resp, http.StatusOK)
	assert.Equal(t, 30, env.dashboards.gotDays)
	assert.Nil(t, env.dashboards.gotLoc)

	resp = env.do(t, http.MethodGet, base+"?days=7&tz=America/New_York", "", ownerID)
	assertStatusCode(t, resp, http.StatusOK)
	require.NotNil(t, env.dashboards.gotLoc)
	assert.Equal(t, "America/New_York", env.dashboards.gotLoc.String())

	assertStatusCode(t, env.do(t, http.MethodGet, base+"?days=10", "", ownerID), http.StatusBadRequest)
	assertStatusCode(t, env.do(t, http.MethodGet, base+"?days=abc", "", ownerID), http.StatusBadRequest)
	assertStatusCode(t, env.do(t, http.MethodGet, base+"?tz=Nowhere/City", "", ownerID), http.StatusBadRequest)
	assertStatusCode(t, env.do(t, http.MethodGet, base, "", "u-intruder"), http.StatusForbidden)
}

func TestInstallFlow(t *testing.T) {
	t.Setenv("FLAG_SYNC_ON_INSTALL", "true")
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/shopify/install?shop=not-a-shop.example.com", "", "")
	assertStatusCode(t, resp, http.StatusBadRequest)

	resp = env.do(t, http.MethodGet, "/api/shopify/install?shop=fresh.myshopify.com", "", "")
	assertStatusCode(t, resp, http.StatusFound)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	assert.Equal(t, "http://app.test/api/shopify/callback", loc.Query().Get("redirect_uri"))

	callback := func(state string, sign bool) *http.Response {
		q := url.Values{
			"code":      {"abc"},
			"shop":      {"fresh.myshopify.com"},
			"state":     {state},
			"timestamp": {strconv.FormatInt(time.Now().Unix(), 10)},
		}
		if sign {
			q.Set("hmac", shopify.SignQuery(testSecret, q))
		} else {
			q.Set("hmac", "deadbeef")
		}
		return env.do(t, http.MethodGet, "/api/shopify/callback?"+q.Encode(), "", "")
	}

	assertStatusCode(t, callback(state, false), http.StatusUnauthorized)

	resp = callback(state, true)
	assertStatusCode(t, resp, http.StatusFound)
	target, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/dashboard", target.Path)
	assert.Equal(t, "t-fresh.myshopify.com", target.Query().Get("installedTenant"))
	assert.Equal(t, "fresh.myshopify.com", target.Query().Get("shop"))
	assert.Equal(t, []string{"t-fresh.myshopify.com"}, env.trigger.ids)

	stored, err := env.tenants.ResolveShop(context.Background(), "fresh.myshopify.com")
	require.NoError(t, err)
	assert.Equal(t, "access-abc", stored.AccessToken)

	// the state nonce cannot be replayed
	assertStatusCode(t, callback(state, true), http.StatusBadRequest)
}

func TestInstallCallbackUpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	env.oauth.err = errors.New("connection reset")

	resp := env.do(t, http.MethodGet, "/api/shopify/install?shop=fresh.myshopify.com", "", "")
	loc, _ := url.Parse(resp.Header.Get("Location"))
	q := url.Values{"code": {"abc"}, "shop": {"fresh.myshopify.com"}, "state": {loc.Query().Get("state")}}
	q.Set("hmac", shopify.SignQuery(testSecret, q))

	resp = env.do(t, http.MethodGet, "/api/shopify/callback?"+q.Encode(), "", "")
	assertStatusCode(t, resp, http.StatusBadGateway)
	body := decode[ErrorResponse](t, resp)
	assert.NotContains(t, body.Error, "connection reset")
}

func (e *testEnv) webhook(t *testing.T, path, shop, body, signature string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	// the platform does not always send a JSON content type
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set(HeaderShopDomain, shop)
	req.Header.Set(HeaderHmac, signature)
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestOrderWebhook(t *testing.T) {
	env := newTestEnv(t)
	body := `{"id":450789469,"order_number":1001,"checkout_id":901414060,"financial_status":"paid","total_price":"409.94","created_at":"2024-03-01T10:00:00Z","customer":{"id":207119551}}`

	resp := env.webhook(t, "/api/webhooks/orders/create", ownedShop, body, shopify.SignWebhook(testSecret, []byte(body)))
	assertStatusCode(t, resp, http.StatusOK)

	require.Len(t, env.records.orders, 1)
	o := env.records.orders[0]
	assert.Equal(t, "450789469", o.ID)
	assert.Equal(t, ownedTenant, o.TenantID)
	assert.Equal(t, "901414060", o.CheckoutID)
	assert.Equal(t, "207119551", o.CustomerID)
	assert.InDelta(t, 409.94, o.Total, 0.001)

	require.Len(t, env.publisher.events, 1)
	assert.Equal(t, events.TypeRecordUpserted, env.publisher.events[0].Type)
	assert.Equal(t, ownedTenant, env.publisher.events[0].TenantID)
}

func TestWebhookRejections(t *testing.T) {
	env := newTestEnv(t)
	body := `{"id":1,"email":"a@b.c","total_price":"1.00","created_at":"2024-03-01T10:00:00Z"}`
	sig := shopify.SignWebhook(testSecret, []byte(body))

	assertStatusCode(t, env.webhook(t, "/api/webhooks/checkouts/create", ownedShop, body, "bm9wZQ=="), http.StatusUnauthorized)
	assertStatusCode(t, env.webhook(t, "/api/webhooks/checkouts/create", "ghost.myshopify.com", body, sig), http.StatusNotFound)
	assertStatusCode(t, env.webhook(t, "/api/webhooks/products/create", ownedShop, body, sig), http.StatusNotFound)
	assertStatusCode(t, env.webhook(t, "/api/webhooks/checkouts/delete", ownedShop, body, sig), http.StatusNotFound)
	assert.Empty(t, env.records.checkouts)

	assertStatusCode(t, env.webhook(t, "/api/webhooks/checkouts/update", ownedShop, body, sig), http.StatusOK)
	require.Len(t, env.records.checkouts, 1)
}

func TestAppUninstalledWebhook(t *testing.T) {
	env := newTestEnv(t)
	body := `{"id":1,"domain":"owned.myshopify.com"}`

	resp := env.webhook(t, "/api/shopify/webhooks/app-uninstalled", ownedShop, body, shopify.SignWebhook(testSecret, []byte(body)))
	assertStatusCode(t, resp, http.StatusOK)
	assert.Equal(t, []string{ownedShop}, env.tenants.removed)
}

func TestHealthAndReadiness(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/health", "/healthz"} {
		assertStatusCode(t, env.do(t, http.MethodGet, path, "", ""), http.StatusOK)
	}

	resp := env.do(t, http.MethodGet, "/readyz", "", "")
	assertStatusCode(t, resp, http.StatusOK)
	ready := decode[ReadinessResponse](t, resp)
	assert.Equal(t, "not configured", ready.Checks["redis"])

	env.ready = errors.New("connection refused")
	resp = env.do(t, http.MethodGet, "/readyz", "", "")
	assertStatusCode(t, resp, http.StatusServiceUnavailable)
}

func TestEventsRequireOwnership(t *testing.T) {
	env := newTestEnv(t)

	assertStatusCode(t, env.do(t, http.MethodGet, "/ws/tenants/"+ownedTenant+"/events", "", ""), http.StatusUnauthorized)
	assertStatusCode(t, env.do(t, http.MethodGet, "/ws/tenants/t-foreign/events", "", ownerID), http.StatusForbidden)
}

func TestWriteErrorHidesInternalMessages(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, discardLogger(), errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.NotContains(t, string(body), "pq:")
}
