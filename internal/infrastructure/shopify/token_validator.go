package shopify

import (
	"context"
	"fmt"
	"strings"

	"shopify-orders-exporter/internal/ports"

	"github.com/rs/zerolog"
)

// TokenValidator probes a stored access token against the Shopify Admin API.
// Shopify access tokens do not expire, but they die when the merchant
// uninstalls the app or revokes access.
type TokenValidator struct {
	client ports.ShopifyClient
	logger zerolog.Logger
}

// NewTokenValidator creates a new token validator
func NewTokenValidator(client ports.ShopifyClient, logger zerolog.Logger) *TokenValidator {
	return &TokenValidator{
		client: client,
		logger: logger,
	}
}

// Validate makes a lightweight shop lookup with the token. A clean
// authentication failure means the token is revoked; any other error is
// treated as transient and the token is assumed valid.
func (tv *TokenValidator) Validate(ctx context.Context, shop string, accessToken string) (bool, error) {
	if accessToken == "" {
		return false, fmt.Errorf("token is empty")
	}
	if shop == "" {
		return false, fmt.Errorf("shop domain is required for token validation")
	}

	_, err := tv.client.GetShop(ctx, shop, accessToken)
	if err != nil {
		errStr := strings.ToLower(err.Error())
		if strings.Contains(errStr, "401") ||
			strings.Contains(errStr, "unauthorized") ||
			strings.Contains(errStr, "invalid token") ||
			strings.Contains(errStr, "forbidden") {
			tv.logger.Warn().
				Str("shop", shop).
				Msg("Token validation failed: token is invalid or revoked")
			return false, nil
		}

		// Network errors and rate limits do not prove anything about the
		// token. Log and let the request proceed.
		tv.logger.Warn().
			Err(err).
			Str("shop", shop).
			Msg("Token validation encountered an error (assuming token is valid)")
		return true, nil
	}

	tv.logger.Debug().
		Str("shop", shop).
		Msg("Token validation successful")
	return true, nil
}
