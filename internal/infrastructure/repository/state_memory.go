package repository

import (
	"context"
	"sync"
	"time"

	"shopify-orders-exporter/internal/domain"
	"shopify-orders-exporter/internal/ports"
)

// MemoryStateRepository implements StateStore in process memory. Expired
// tokens are swept on every create, so the table stays bounded by the number
// of installs in flight. State is lost on restart; use the Redis store when
// in-flight installs must survive one.
type MemoryStateRepository struct {
	mu     sync.Mutex
	states map[string]*domain.AuthState
}

// NewMemoryStateRepository creates an in-memory state repository
func NewMemoryStateRepository() ports.StateStore {
	return &MemoryStateRepository{
		states: map[string]*domain.AuthState{},
	}
}

// CreateState stores a fresh state token
func (r *MemoryStateRepository) CreateState(ctx context.Context, state *domain.AuthState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for token, st := range r.states {
		if st.Expired(now) {
			delete(r.states, token)
		}
	}

	r.states[state.State] = state
	return nil
}

// ConsumeState removes and returns the state token; nil when unknown,
// expired, or already consumed
func (r *MemoryStateRepository) ConsumeState(ctx context.Context, state string) (*domain.AuthState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[state]
	if !ok {
		return nil, nil
	}
	delete(r.states, state)

	if st.Expired(time.Now()) {
		return nil, nil
	}
	return st, nil
}
