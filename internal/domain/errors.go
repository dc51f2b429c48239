package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors the HTTP layer maps to specific status codes.
var (
	// ErrInvalidShopDomain indicates a missing or wrongly-suffixed shop parameter.
	ErrInvalidShopDomain = errors.New("missing or invalid shop domain")

	// ErrInvalidState indicates an unknown, expired, or already-consumed
	// OAuth state token.
	ErrInvalidState = errors.New("invalid or expired state parameter")

	// ErrHMACMismatch indicates the callback query parameters failed HMAC
	// verification.
	ErrHMACMismatch = errors.New("hmac validation failed")

	// ErrNotInstalled indicates no stored access token for the shop.
	ErrNotInstalled = errors.New("app not installed for this shop")

	// ErrBillingInactive indicates an installed shop whose recurring charge
	// has not been approved yet.
	ErrBillingInactive = errors.New("billing inactive for this shop")
)

// ChargeStatusError reports a recurring charge in any state other than active.
type ChargeStatusError struct {
	Status string
}

func (e *ChargeStatusError) Error() string {
	return fmt.Sprintf("charge status is %q", e.Status)
}
