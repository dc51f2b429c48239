package shopify

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig bounds how the client reacts to upstream throttling. Only
// 429 responses are retried; every other failure stays single-attempt.
type RetryConfig struct {
	// MaxRetries is the number of additional attempts after a throttled
	// request.
	MaxRetries int

	// BaseDelay seeds the backoff used when Shopify omits a Retry-After
	// header.
	BaseDelay time.Duration

	// MaxDelay caps any single wait.
	MaxDelay time.Duration

	// MaxPages caps how many listing pages a single export request may
	// fetch before the client gives up.
	MaxPages int
}

// DefaultRetryConfig returns the retry settings used in production.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		MaxPages:   400,
	}
}

// RateLimiter translates Shopify throttling signals into waits.
type RateLimiter struct {
	logger zerolog.Logger
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{logger: logger}
}

// Delay returns how long to wait before retrying a throttled request.
// Shopify advertises the wait as a Retry-After header holding a (possibly
// fractional) number of seconds; without it the delay falls back to
// exponential backoff from the retry config.
func (rl *RateLimiter) Delay(resp *http.Response, attempt int, cfg RetryConfig) time.Duration {
	if resp != nil {
		if raw := resp.Header.Get("Retry-After"); raw != "" {
			if secs, err := strconv.ParseFloat(raw, 64); err == nil && secs >= 0 {
				d := time.Duration(secs * float64(time.Second))
				if d > cfg.MaxDelay {
					d = cfg.MaxDelay
				}
				return d
			}
		}
	}

	d := cfg.BaseDelay << attempt
	if d > cfg.MaxDelay || d <= 0 {
		d = cfg.MaxDelay
	}
	return d
}

// Wait blocks for the computed delay or until the context is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context, resp *http.Response, attempt int, cfg RetryConfig) error {
	d := rl.Delay(resp, attempt, cfg)
	rl.logger.Warn().
		Dur("delay", d).
		Int("attempt", attempt+1).
		Msg("Shopify API throttled, backing off")

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
