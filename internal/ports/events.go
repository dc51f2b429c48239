package ports

import (
	"context"

	"shopify-orders-exporter/internal/domain"
)

// EventPublisher broadcasts application lifecycle events to subscribers.
type EventPublisher interface {
	Publish(event *domain.AppEvent)
}

// TokenValidator checks whether a stored access token is still accepted by
// Shopify. Tokens do not expire but merchants can revoke them.
type TokenValidator interface {
	Validate(ctx context.Context, shop string, accessToken string) (bool, error)
}
