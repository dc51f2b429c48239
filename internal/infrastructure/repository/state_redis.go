package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shopify-orders-exporter/internal/domain"
	"shopify-orders-exporter/internal/ports"

	"github.com/redis/go-redis/v9"
)

const stateKeyPrefix = "oauth_state:"

// RedisStateRepository implements StateStore on Redis. Tokens carry a native
// TTL and are consumed with GETDEL, so they are single-use across every
// process sharing the Redis instance and survive restarts.
type RedisStateRepository struct {
	client *redis.Client
}

// NewRedisStateRepository creates a Redis-backed state repository
func NewRedisStateRepository(client *redis.Client) ports.StateStore {
	return &RedisStateRepository{client: client}
}

// CreateState stores a fresh state token with its remaining time-to-live
func (r *RedisStateRepository) CreateState(ctx context.Context, state *domain.AuthState) error {
	ttl := time.Until(state.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("state token already expired")
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	if err := r.client.Set(ctx, stateKeyPrefix+state.State, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store state: %w", err)
	}
	return nil
}

// ConsumeState removes and returns the state token; nil when unknown or
// expired
func (r *RedisStateRepository) ConsumeState(ctx context.Context, state string) (*domain.AuthState, error) {
	data, err := r.client.GetDel(ctx, stateKeyPrefix+state).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume state: %w", err)
	}

	var st domain.AuthState
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	return &st, nil
}
