package ports

import (
	"context"
	"net/url"

	"shopify-orders-exporter/internal/domain"

	goshopify "github.com/bold-commerce/go-shopify/v4"
)

// ShopifyClient defines the interface for Shopify Admin API operations.
type ShopifyClient interface {
	// Authentication
	GenerateAuthURL(shop string, scopes []string, redirectURI string, state string) (string, error)
	ExchangeToken(ctx context.Context, shop string, code string, redirectURI string) (string, error)

	// Shop API
	GetShop(ctx context.Context, shop string, accessToken string) (*goshopify.Shop, error)

	// Billing API
	CreateRecurringCharge(ctx context.Context, shop string, accessToken string, charge *domain.RecurringCharge) (*domain.RecurringCharge, error)
	GetRecurringCharge(ctx context.Context, shop string, accessToken string, chargeID int64) (*domain.RecurringCharge, error)

	// Order API
	GetOrder(ctx context.Context, shop string, accessToken string, orderID string) (domain.Order, error)
	ListOrders(ctx context.Context, shop string, accessToken string) ([]domain.Order, error)
}

// CallbackVerifier validates inbound OAuth callback query parameters.
type CallbackVerifier interface {
	Verify(query url.Values) bool
}
