package pubsub

import (
	"context"
	"fmt"
	"sync"

	"shopify-orders-exporter/internal/domain"

	"github.com/rs/zerolog"
)

// EventChannel represents a subscription channel
type EventChannel struct {
	ID     string
	Filter *EventFilter
	Events chan *domain.AppEvent
	Done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// EventFilter filters application events
type EventFilter struct {
	Types []string // Filter by event types
	Shop  string   // Filter by shop domain
}

// EventBus fans application events out to in-process subscribers
type EventBus struct {
	mu       sync.RWMutex
	channels map[string]*EventChannel
	logger   zerolog.Logger
	nextID   int64
	idMu     sync.Mutex
}

// NewEventBus creates a new event bus
func NewEventBus(logger zerolog.Logger) *EventBus {
	return &EventBus{
		channels: make(map[string]*EventChannel),
		logger:   logger,
	}
}

// Subscribe creates a new subscription channel
func (b *EventBus) Subscribe(ctx context.Context, filter *EventFilter) *EventChannel {
	b.idMu.Lock()
	id := b.generateID()
	b.idMu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)

	channel := &EventChannel{
		ID:     id,
		Filter: filter,
		Events: make(chan *domain.AppEvent, 10), // Buffered channel
		Done:   make(chan struct{}),
		ctx:    subCtx,
		cancel: cancel,
	}

	b.mu.Lock()
	b.channels[id] = channel
	b.mu.Unlock()

	b.logger.Info().
		Str("channelId", id).
		Interface("filter", filter).
		Msg("Event subscription created")

	// Cleanup when context is cancelled
	go func() {
		<-subCtx.Done()
		b.Unsubscribe(id)
	}()

	return channel
}

// Unsubscribe removes a subscription channel
func (b *EventBus) Unsubscribe(channelID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	channel, exists := b.channels[channelID]
	if !exists {
		return
	}

	close(channel.Events)
	close(channel.Done)
	channel.cancel()
	delete(b.channels, channelID)

	b.logger.Info().
		Str("channelId", channelID).
		Msg("Event subscription removed")
}

// Publish broadcasts an event to all matching subscribers
func (b *EventBus) Publish(event *domain.AppEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	publishedCount := 0
	for _, channel := range b.channels {
		if b.matchesFilter(event, channel.Filter) {
			select {
			case channel.Events <- event:
				publishedCount++
			case <-channel.ctx.Done():
				// Channel is closed, skip
			default:
				// Channel buffer full, skip (non-blocking)
				b.logger.Warn().
					Str("channelId", channel.ID).
					Msg("Channel buffer full, dropping event")
			}
		}
	}

	if publishedCount > 0 {
		b.logger.Debug().
			Str("type", event.Type).
			Str("shop", event.Shop).
			Int("subscribers", publishedCount).
			Msg("Published event to subscribers")
	}
}

// matchesFilter checks if an event matches the subscription filter
func (b *EventBus) matchesFilter(event *domain.AppEvent, filter *EventFilter) bool {
	if filter == nil {
		return true // No filter, match all
	}

	if len(filter.Types) > 0 {
		typeMatch := false
		for _, t := range filter.Types {
			if event.Type == t {
				typeMatch = true
				break
			}
		}
		if !typeMatch {
			return false
		}
	}

	if filter.Shop != "" && event.Shop != filter.Shop {
		return false
	}

	return true
}

// generateID generates a unique channel ID
func (b *EventBus) generateID() string {
	b.nextID++
	return fmt.Sprintf("channel-%d", b.nextID)
}

// GetStats returns event bus statistics
func (b *EventBus) GetStats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return map[string]interface{}{
		"active_subscriptions": len(b.channels),
	}
}
