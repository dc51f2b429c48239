package application

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"shopify-orders-exporter/internal/domain"
	"shopify-orders-exporter/internal/infrastructure/metrics"
	"shopify-orders-exporter/internal/ports"

	"github.com/rs/zerolog"
)

// stateTTL bounds how long an install redirect stays redeemable.
const stateTTL = 10 * time.Minute

// Fixed subscription plan created for every install.
const (
	planName  = "Basic Plan"
	planPrice = 1.0
)

// scopes requested during OAuth.
var scopes = []string{"read_orders"}

// InstallService drives the OAuth install and billing approval flow:
// install redirect, callback token exchange, recurring charge creation, and
// charge confirmation.
type InstallService struct {
	shops     ports.ShopStore
	states    ports.StateStore
	client    ports.ShopifyClient
	verifier  ports.CallbackVerifier
	events    ports.EventPublisher
	logger    zerolog.Logger
	appURL    string
	appHandle string
}

// NewInstallService creates a new install service
func NewInstallService(
	shops ports.ShopStore,
	states ports.StateStore,
	client ports.ShopifyClient,
	verifier ports.CallbackVerifier,
	events ports.EventPublisher,
	logger zerolog.Logger,
	appURL string,
	appHandle string,
) *InstallService {
	return &InstallService{
		shops:     shops,
		states:    states,
		client:    client,
		verifier:  verifier,
		events:    events,
		logger:    logger,
		appURL:    strings.TrimSuffix(appURL, "/"),
		appHandle: appHandle,
	}
}

// BeginInstall validates the shop domain, records a fresh anti-forgery
// state token, and returns the authorize URL to redirect the merchant to.
func (s *InstallService) BeginInstall(ctx context.Context, shop string) (string, error) {
	if !domain.IsShopDomain(shop) {
		return "", domain.ErrInvalidShopDomain
	}

	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	state := hex.EncodeToString(stateBytes)

	now := time.Now()
	if err := s.states.CreateState(ctx, &domain.AuthState{
		State:     state,
		Shop:      shop,
		CreatedAt: now,
		ExpiresAt: now.Add(stateTTL),
	}); err != nil {
		return "", fmt.Errorf("failed to create state: %w", err)
	}

	authURL, err := s.client.GenerateAuthURL(shop, scopes, s.appURL+"/auth/callback", state)
	if err != nil {
		return "", fmt.Errorf("failed to generate auth url: %w", err)
	}

	s.logger.Info().
		Str("shop", shop).
		Msg("Starting OAuth install flow")

	return authURL, nil
}

// CompleteInstall runs the callback half of the install flow: consume the
// state token, verify the callback HMAC, exchange the code for an access
// token, persist the shop record, and create the recurring charge. It
// returns the charge confirmation URL the merchant must be redirected to.
//
// The state token is consumed up front, so a replayed callback fails on the
// state check no matter how the first attempt ended. Reusing an
// authorization code fails at the token exchange; codes are single-use
// upstream and no retry is attempted.
func (s *InstallService) CompleteInstall(ctx context.Context, shop, code, state string, query url.Values) (string, error) {
	st, err := s.states.ConsumeState(ctx, state)
	if err != nil {
		return "", fmt.Errorf("failed to consume state: %w", err)
	}
	if st == nil || st.Shop != shop {
		return "", domain.ErrInvalidState
	}

	if !s.verifier.Verify(query) {
		return "", domain.ErrHMACMismatch
	}

	accessToken, err := s.client.ExchangeToken(ctx, shop, code, s.appURL+"/auth/callback")
	if err != nil {
		return "", fmt.Errorf("failed to exchange token: %w", err)
	}

	if err := s.shops.UpsertToken(ctx, shop, accessToken, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("failed to save shop: %w", err)
	}
	metrics.InstallsCompleted.Inc()
	s.publish(domain.EventInstalled, shop, nil)

	// Best-effort shop lookup for the install log; the flow does not depend
	// on it.
	if info, err := s.client.GetShop(ctx, shop, accessToken); err != nil {
		s.logger.Warn().Err(err).Str("shop", shop).Msg("Failed to fetch shop info after install")
	} else {
		s.logger.Info().
			Str("shop", shop).
			Str("shop_name", info.Name).
			Msg("OAuth token exchange completed")
	}

	charge, err := s.client.CreateRecurringCharge(ctx, shop, accessToken, &domain.RecurringCharge{
		Name:      planName,
		Price:     planPrice,
		ReturnURL: s.appURL + "/billing/confirm?shop=" + url.QueryEscape(shop),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create recurring charge: %w", err)
	}

	s.logger.Info().
		Str("shop", shop).
		Int64("chargeId", charge.ID).
		Msg("Created recurring charge, awaiting merchant approval")

	return charge.ConfirmationURL, nil
}

// ConfirmBilling checks the charge the merchant was sent to approve. Only
// an exactly "active" status flips the shop's billing flag; any other
// status is reported back as a ChargeStatusError. On success it returns the
// shop's embedded app URL inside the Shopify admin.
func (s *InstallService) ConfirmBilling(ctx context.Context, shop string, chargeID int64) (string, error) {
	rec, err := s.shops.GetShop(ctx, shop)
	if err != nil {
		return "", fmt.Errorf("failed to get shop: %w", err)
	}
	if rec == nil || rec.AccessToken == "" {
		return "", domain.ErrNotInstalled
	}

	charge, err := s.client.GetRecurringCharge(ctx, shop, rec.AccessToken, chargeID)
	if err != nil {
		return "", fmt.Errorf("failed to look up charge: %w", err)
	}

	if charge.Status != domain.ChargeStatusActive {
		return "", &domain.ChargeStatusError{Status: charge.Status}
	}

	if err := s.shops.ActivateBilling(ctx, shop, chargeID); err != nil {
		return "", fmt.Errorf("failed to activate billing: %w", err)
	}
	metrics.ChargesActivated.Inc()
	s.publish(domain.EventBillingActivated, shop, map[string]interface{}{"chargeId": chargeID})

	s.logger.Info().
		Str("shop", shop).
		Int64("chargeId", chargeID).
		Msg("Recurring charge active, billing enabled")

	return fmt.Sprintf("https://%s/admin/apps/%s", shop, s.appHandle), nil
}

func (s *InstallService) publish(eventType, shop string, detail map[string]interface{}) {
	if s.events == nil {
		return
	}
	s.events.Publish(&domain.AppEvent{
		Type:   eventType,
		Shop:   shop,
		At:     time.Now().UTC(),
		Detail: detail,
	})
}
