package ports

import (
	"context"
	"time"

	"shopify-orders-exporter/internal/domain"
)

// ShopStore defines the interface for shop record persistence.
// Mutations are field-level so concurrent installs and billing updates for
// the same shop cannot clobber each other.
type ShopStore interface {
	// GetShop retrieves a shop record by domain, nil if absent.
	GetShop(ctx context.Context, shopDomain string) (*domain.Shop, error)

	// UpsertToken creates or updates the shop record with a fresh access
	// token and install timestamp. Billing fields are left untouched.
	UpsertToken(ctx context.Context, shopDomain, accessToken string, installedAt time.Time) error

	// ActivateBilling flips the shop's billing flag to active and records
	// the approved charge id. Fails if the shop record does not exist.
	ActivateBilling(ctx context.Context, shopDomain string, chargeID int64) error

	// ListShops retrieves all shop records.
	ListShops(ctx context.Context) ([]*domain.Shop, error)
}

// StateStore defines the interface for pending OAuth state tokens.
type StateStore interface {
	// CreateState stores a fresh state token with its time-to-live.
	CreateState(ctx context.Context, state *domain.AuthState) error

	// ConsumeState removes and returns the state token. Returns nil for an
	// unknown, expired, or already-consumed token.
	ConsumeState(ctx context.Context, state string) (*domain.AuthState, error)
}
