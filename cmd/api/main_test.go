package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shopify-orders-exporter/internal/application"
	"shopify-orders-exporter/internal/domain"
	"shopify-orders-exporter/internal/infrastructure/pubsub"
	"shopify-orders-exporter/internal/infrastructure/repository"
	"shopify-orders-exporter/internal/ports"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testShop = "test-store.myshopify.com"

// scriptedClient fakes the upstream Shopify API for handler tests.
type scriptedClient struct {
	charge *domain.RecurringCharge
	orders []domain.Order
}

func (s *scriptedClient) GenerateAuthURL(shop string, scopes []string, redirectURI string, state string) (string, error) {
	return "https://" + shop + "/admin/oauth/authorize?client_id=key&state=" + url.QueryEscape(state), nil
}

func (s *scriptedClient) ExchangeToken(context.Context, string, string, string) (string, error) {
	return "shpat_abc", nil
}

func (s *scriptedClient) GetShop(context.Context, string, string) (*goshopify.Shop, error) {
	return &goshopify.Shop{Name: "Test Store"}, nil
}

func (s *scriptedClient) CreateRecurringCharge(_ context.Context, _, _ string, charge *domain.RecurringCharge) (*domain.RecurringCharge, error) {
	out := *charge
	out.ID = 42
	out.Status = "pending"
	out.ConfirmationURL = "https://" + testShop + "/admin/charges/42/confirm"
	return &out, nil
}

func (s *scriptedClient) GetRecurringCharge(context.Context, string, string, int64) (*domain.RecurringCharge, error) {
	return s.charge, nil
}

func (s *scriptedClient) GetOrder(context.Context, string, string, string) (domain.Order, error) {
	if len(s.orders) == 0 {
		return domain.Order{}, nil
	}
	return s.orders[0], nil
}

func (s *scriptedClient) ListOrders(context.Context, string, string) ([]domain.Order, error) {
	return s.orders, nil
}

type allowVerifier struct{}

func (allowVerifier) Verify(url.Values) bool { return true }

type testApp struct {
	shops    ports.ShopStore
	client   *scriptedClient
	installs *application.InstallService
	exports  *application.ExportService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	logger := zerolog.Nop()
	shops := repository.NewFileShopRepository(filepath.Join(t.TempDir(), "shops.json"))
	states := repository.NewMemoryStateRepository()
	client := &scriptedClient{}

	installs := application.NewInstallService(shops, states, client, allowVerifier{}, nil, logger, "https://app.example.com", "orders-exporter")
	exports := application.NewExportService(shops, client, nil, nil, logger)
	return &testApp{shops: shops, client: client, installs: installs, exports: exports}
}

func (a *testApp) installBilled(t *testing.T) {
	t.Helper()
	require.NoError(t, a.shops.UpsertToken(context.Background(), testShop, "shpat_abc", time.Now()))
	require.NoError(t, a.shops.ActivateBilling(context.Background(), testShop, 42))
}

func get(handler http.Handler, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestInstallBeginHandler(t *testing.T) {
	app := newTestApp(t)
	h := installBeginHandler(app.installs, zerolog.Nop())

	rr := get(h, "/auth?shop=not-a-shop")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Missing or invalid ?shop= parameter (e.g., store.myshopify.com)")

	rr = get(h, "/auth")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = get(h, "/auth?shop="+testShop)
	assert.Equal(t, http.StatusFound, rr.Code)
	loc := rr.Header().Get("Location")
	assert.Contains(t, loc, testShop+"/admin/oauth/authorize")
	assert.Contains(t, loc, "state=")
}

func TestOAuthCallbackHandler(t *testing.T) {
	app := newTestApp(t)
	begin := installBeginHandler(app.installs, zerolog.Nop())
	callback := oauthCallbackHandler(app.installs, zerolog.Nop())

	rr := get(callback, "/auth/callback?shop="+testShop)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Missing required query parameters.")

	rr = get(callback, "/auth/callback?shop="+testShop+"&code=c&state=bogus")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Invalid or expired state parameter.")

	// Run the begin half to mint a real state token.
	rr = get(begin, "/auth?shop="+testShop)
	require.Equal(t, http.StatusFound, rr.Code)
	authURL, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	state := authURL.Query().Get("state")
	require.NotEmpty(t, state)

	rr = get(callback, "/auth/callback?shop="+testShop+"&code=c&state="+state+"&hmac=x")
	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "https://"+testShop+"/admin/charges/42/confirm", rr.Header().Get("Location"))

	rec, err := app.shops.GetShop(context.Background(), testShop)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "shpat_abc", rec.AccessToken)
}

func TestBillingConfirmHandler(t *testing.T) {
	app := newTestApp(t)
	h := billingConfirmHandler(app.installs, zerolog.Nop())

	rr := get(h, "/billing/confirm?shop=bad&charge_id=42")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Missing or invalid shop.")

	rr = get(h, "/billing/confirm?shop="+testShop)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Missing charge_id.")

	rr = get(h, "/billing/confirm?shop="+testShop+"&charge_id=abc")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Invalid charge_id.")

	rr = get(h, "/billing/confirm?shop="+testShop+"&charge_id=42")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "App not installed (no access token).")

	require.NoError(t, app.shops.UpsertToken(context.Background(), testShop, "shpat_abc", time.Now()))

	app.client.charge = &domain.RecurringCharge{ID: 42, Status: "declined"}
	rr = get(h, "/billing/confirm?shop="+testShop+"&charge_id=42")
	assert.Equal(t, http.StatusPaymentRequired, rr.Code)
	assert.Contains(t, rr.Body.String(), `Charge status is "declined". Please approve the subscription.`)

	app.client.charge = &domain.RecurringCharge{ID: 42, Status: domain.ChargeStatusActive}
	rr = get(h, "/billing/confirm?shop="+testShop+"&charge_id=42")
	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "https://"+testShop+"/admin/apps/orders-exporter", rr.Header().Get("Location"))
}

func TestExportOrdersGate(t *testing.T) {
	app := newTestApp(t)
	h := requireInstalledAndBilled(app.exports, zerolog.Nop())(exportOrdersHandler(app.exports, zerolog.Nop()))

	rr := get(h, "/export-orders?shop=bad")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Missing or invalid ?shop= parameter.")

	rr = get(h, "/export-orders?shop="+testShop)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "App not installed for this shop.")

	require.NoError(t, app.shops.UpsertToken(context.Background(), testShop, "shpat_abc", time.Now()))
	rr = get(h, "/export-orders?shop="+testShop)
	assert.Equal(t, http.StatusPaymentRequired, rr.Code)
	assert.Contains(t, rr.Body.String(), "Billing inactive.")
}

func TestExportOrdersHandler_CSVResponse(t *testing.T) {
	app := newTestApp(t)
	app.installBilled(t)
	app.client.orders = []domain.Order{
		{"name": "#1001", "line_items": []interface{}{
			map[string]interface{}{"name": "Widget", "quantity": "1"},
		}},
	}
	h := requireInstalledAndBilled(app.exports, zerolog.Nop())(exportOrdersHandler(app.exports, zerolog.Nop()))

	rr := get(h, "/export-orders?shop="+testShop)
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="shopify_orders.csv"`, rr.Header().Get("Content-Disposition"))

	body := rr.Body.String()
	assert.True(t, strings.HasPrefix(body, "Name,Email,"))
	assert.Contains(t, body, `"#1001"`)
	assert.Contains(t, body, `"Widget"`)
}

func TestShopsHandler_NoTokenLeak(t *testing.T) {
	app := newTestApp(t)
	app.installBilled(t)
	h := shopsHandler(app.shops, zerolog.Nop())

	rr := get(h, "/shops")
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	assert.Contains(t, body, testShop)
	assert.Contains(t, body, `"billingActive":true`)
	assert.NotContains(t, body, "shpat_abc")
}

func TestHealthHandler(t *testing.T) {
	bus := pubsub.NewEventBus(zerolog.Nop())
	h := healthHandler(bus)

	rr := get(h, "/health")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)
	assert.Contains(t, rr.Body.String(), `"active_subscriptions":0`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Subscribe(ctx, nil)

	rr = get(h, "/health")
	assert.Contains(t, rr.Body.String(), `"active_subscriptions":1`)
}

func TestIndexHandler(t *testing.T) {
	rr := get(indexHandler(), "/")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rr.Body.String(), `action="/auth"`)
	assert.Contains(t, rr.Body.String(), `action="/export-orders"`)
}
