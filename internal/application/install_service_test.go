package application

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"shopify-orders-exporter/internal/domain"
	"shopify-orders-exporter/internal/infrastructure/repository"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testShop = "test-store.myshopify.com"

// fakeShopStore is an in-memory ShopStore for service tests.
type fakeShopStore struct {
	mu    sync.Mutex
	shops map[string]*domain.Shop
	err   error
}

func newFakeShopStore() *fakeShopStore {
	return &fakeShopStore{shops: map[string]*domain.Shop{}}
}

func (f *fakeShopStore) GetShop(_ context.Context, shopDomain string) (*domain.Shop, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.shops[shopDomain]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeShopStore) UpsertToken(_ context.Context, shopDomain, accessToken string, installedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	s, ok := f.shops[shopDomain]
	if !ok {
		s = &domain.Shop{Domain: shopDomain}
		f.shops[shopDomain] = s
	}
	s.AccessToken = accessToken
	s.InstalledAt = installedAt
	return nil
}

func (f *fakeShopStore) ActivateBilling(_ context.Context, shopDomain string, chargeID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	s, ok := f.shops[shopDomain]
	if !ok {
		return errors.New("shop not found")
	}
	s.BillingActive = true
	s.ChargeID = &chargeID
	return nil
}

func (f *fakeShopStore) ListShops(_ context.Context) ([]*domain.Shop, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Shop, 0, len(f.shops))
	for _, s := range f.shops {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

// fakeShopifyClient scripts the upstream API surface.
type fakeShopifyClient struct {
	exchangeErr   error
	token         string
	charge        *domain.RecurringCharge
	chargeErr     error
	lookupCharge  *domain.RecurringCharge
	lookupErr     error
	order         domain.Order
	orderErr      error
	orders        []domain.Order
	listErr       error
	createdCharge *domain.RecurringCharge
	listedCalls   int
	getOrderCalls int
}

func (f *fakeShopifyClient) GenerateAuthURL(shop string, scopes []string, redirectURI string, state string) (string, error) {
	return "https://" + shop + "/admin/oauth/authorize?client_id=key" +
		"&scope=" + url.QueryEscape(strings.Join(scopes, ",")) +
		"&redirect_uri=" + url.QueryEscape(redirectURI) +
		"&state=" + url.QueryEscape(state), nil
}

func (f *fakeShopifyClient) ExchangeToken(_ context.Context, shop, code, redirectURI string) (string, error) {
	if f.exchangeErr != nil {
		return "", f.exchangeErr
	}
	return f.token, nil
}

func (f *fakeShopifyClient) GetShop(context.Context, string, string) (*goshopify.Shop, error) {
	return &goshopify.Shop{Name: "Test Store"}, nil
}

func (f *fakeShopifyClient) CreateRecurringCharge(_ context.Context, _, _ string, charge *domain.RecurringCharge) (*domain.RecurringCharge, error) {
	if f.chargeErr != nil {
		return nil, f.chargeErr
	}
	f.createdCharge = charge
	return f.charge, nil
}

func (f *fakeShopifyClient) GetRecurringCharge(context.Context, string, string, int64) (*domain.RecurringCharge, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.lookupCharge, nil
}

func (f *fakeShopifyClient) GetOrder(context.Context, string, string, string) (domain.Order, error) {
	f.getOrderCalls++
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	return f.order, nil
}

func (f *fakeShopifyClient) ListOrders(context.Context, string, string) ([]domain.Order, error) {
	f.listedCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.orders, nil
}

// fakeVerifier accepts or rejects every callback.
type fakeVerifier struct{ ok bool }

func (f *fakeVerifier) Verify(url.Values) bool { return f.ok }

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.AppEvent
}

func (r *recordingPublisher) Publish(e *domain.AppEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type installFixture struct {
	shops    *fakeShopStore
	states   *repository.MemoryStateRepository
	client   *fakeShopifyClient
	verifier *fakeVerifier
	events   *recordingPublisher
	svc      *InstallService
}

func newInstallFixture(t *testing.T) *installFixture {
	t.Helper()
	f := &installFixture{
		shops:    newFakeShopStore(),
		states:   repository.NewMemoryStateRepository().(*repository.MemoryStateRepository),
		verifier: &fakeVerifier{ok: true},
		events:   &recordingPublisher{},
		client: &fakeShopifyClient{
			token: "shpat_abc",
			charge: &domain.RecurringCharge{
				ID:              42,
				Name:            "Basic Plan",
				Status:          "pending",
				ConfirmationURL: "https://" + testShop + "/admin/charges/42/confirm",
			},
		},
	}
	f.svc = NewInstallService(
		f.shops,
		f.states,
		f.client,
		f.verifier,
		f.events,
		zerolog.Nop(),
		"https://app.example.com/",
		"orders-exporter",
	)
	return f
}

// beginAndExtractState runs BeginInstall and pulls the state token back out
// of the authorize URL.
func beginAndExtractState(t *testing.T, f *installFixture) string {
	t.Helper()
	authURL, err := f.svc.BeginInstall(context.Background(), testShop)
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func TestBeginInstall_InvalidShop(t *testing.T) {
	f := newInstallFixture(t)

	for _, shop := range []string{"", "not-a-shop", "example.com", ".myshopify.com"} {
		_, err := f.svc.BeginInstall(context.Background(), shop)
		assert.ErrorIs(t, err, domain.ErrInvalidShopDomain, "shop %q", shop)
	}
}

func TestBeginInstall_BuildsAuthorizeURL(t *testing.T) {
	f := newInstallFixture(t)

	authURL, err := f.svc.BeginInstall(context.Background(), testShop)
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, testShop, parsed.Host)
	assert.Equal(t, "read_orders", parsed.Query().Get("scope"))
	assert.Equal(t, "https://app.example.com/auth/callback", parsed.Query().Get("redirect_uri"))
	assert.Len(t, parsed.Query().Get("state"), 32)
}

func TestBeginInstall_StatesAreUnique(t *testing.T) {
	f := newInstallFixture(t)

	a := beginAndExtractState(t, f)
	b := beginAndExtractState(t, f)
	assert.NotEqual(t, a, b)
}

func TestCompleteInstall_HappyPath(t *testing.T) {
	f := newInstallFixture(t)
	state := beginAndExtractState(t, f)

	confirmationURL, err := f.svc.CompleteInstall(context.Background(), testShop, "code123", state, url.Values{})
	require.NoError(t, err)

	assert.Equal(t, f.client.charge.ConfirmationURL, confirmationURL)

	rec, err := f.shops.GetShop(context.Background(), testShop)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "shpat_abc", rec.AccessToken)
	assert.False(t, rec.BillingActive)

	require.NotNil(t, f.client.createdCharge)
	assert.Equal(t, "Basic Plan", f.client.createdCharge.Name)
	assert.Equal(t, 1.0, f.client.createdCharge.Price)
	assert.Equal(t, "https://app.example.com/billing/confirm?shop="+url.QueryEscape(testShop), f.client.createdCharge.ReturnURL)

	assert.Equal(t, []string{domain.EventInstalled}, f.events.types())
}

func TestCompleteInstall_UnknownState(t *testing.T) {
	f := newInstallFixture(t)

	_, err := f.svc.CompleteInstall(context.Background(), testShop, "code123", "bogus", url.Values{})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestCompleteInstall_StateShopMismatch(t *testing.T) {
	f := newInstallFixture(t)
	state := beginAndExtractState(t, f)

	_, err := f.svc.CompleteInstall(context.Background(), "other-store.myshopify.com", "code123", state, url.Values{})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestCompleteInstall_ReplayRejected(t *testing.T) {
	f := newInstallFixture(t)
	state := beginAndExtractState(t, f)

	_, err := f.svc.CompleteInstall(context.Background(), testShop, "code123", state, url.Values{})
	require.NoError(t, err)

	_, err = f.svc.CompleteInstall(context.Background(), testShop, "code123", state, url.Values{})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestCompleteInstall_ReplayRejectedEvenAfterFailure(t *testing.T) {
	f := newInstallFixture(t)
	f.client.exchangeErr = errors.New("code already used")
	state := beginAndExtractState(t, f)

	_, err := f.svc.CompleteInstall(context.Background(), testShop, "code123", state, url.Values{})
	require.Error(t, err)

	// The state was consumed before the exchange failed; a second attempt
	// must die on the state check.
	_, err = f.svc.CompleteInstall(context.Background(), testShop, "code123", state, url.Values{})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestCompleteInstall_HMACFailure(t *testing.T) {
	f := newInstallFixture(t)
	f.verifier.ok = false
	state := beginAndExtractState(t, f)

	_, err := f.svc.CompleteInstall(context.Background(), testShop, "code123", state, url.Values{})
	assert.ErrorIs(t, err, domain.ErrHMACMismatch)

	rec, err := f.shops.GetShop(context.Background(), testShop)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestCompleteInstall_ChargeCreationFailure(t *testing.T) {
	f := newInstallFixture(t)
	f.client.chargeErr = errors.New("billing api down")
	state := beginAndExtractState(t, f)

	_, err := f.svc.CompleteInstall(context.Background(), testShop, "code123", state, url.Values{})
	require.Error(t, err)

	// Token persists so a later install retry can still bill the shop.
	rec, err := f.shops.GetShop(context.Background(), testShop)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "shpat_abc", rec.AccessToken)
}

func TestConfirmBilling_NotInstalled(t *testing.T) {
	f := newInstallFixture(t)

	_, err := f.svc.ConfirmBilling(context.Background(), testShop, 42)
	assert.ErrorIs(t, err, domain.ErrNotInstalled)
}

func TestConfirmBilling_NonActiveStatus(t *testing.T) {
	for _, status := range []string{"pending", "declined", "expired", "frozen", "cancelled"} {
		f := newInstallFixture(t)
		require.NoError(t, f.shops.UpsertToken(context.Background(), testShop, "shpat_abc", time.Now()))
		f.client.lookupCharge = &domain.RecurringCharge{ID: 42, Status: status}

		_, err := f.svc.ConfirmBilling(context.Background(), testShop, 42)

		var statusErr *domain.ChargeStatusError
		require.ErrorAs(t, err, &statusErr, "status %q", status)
		assert.Equal(t, status, statusErr.Status)

		rec, err := f.shops.GetShop(context.Background(), testShop)
		require.NoError(t, err)
		assert.False(t, rec.BillingActive)
	}
}

func TestConfirmBilling_Active(t *testing.T) {
	f := newInstallFixture(t)
	require.NoError(t, f.shops.UpsertToken(context.Background(), testShop, "shpat_abc", time.Now()))
	f.client.lookupCharge = &domain.RecurringCharge{ID: 42, Status: domain.ChargeStatusActive}

	adminURL, err := f.svc.ConfirmBilling(context.Background(), testShop, 42)
	require.NoError(t, err)

	assert.Equal(t, "https://"+testShop+"/admin/apps/orders-exporter", adminURL)

	rec, err := f.shops.GetShop(context.Background(), testShop)
	require.NoError(t, err)
	assert.True(t, rec.BillingActive)
	require.NotNil(t, rec.ChargeID)
	assert.Equal(t, int64(42), *rec.ChargeID)

	assert.Contains(t, f.events.types(), domain.EventBillingActivated)
}

func TestConfirmBilling_LookupFailure(t *testing.T) {
	f := newInstallFixture(t)
	require.NoError(t, f.shops.UpsertToken(context.Background(), testShop, "shpat_abc", time.Now()))
	f.client.lookupErr = errors.New("charge lookup failed: 500")

	_, err := f.svc.ConfirmBilling(context.Background(), testShop, 42)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotInstalled)
}
