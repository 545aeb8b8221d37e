// Package geocode resolves free-text addresses to coordinates through a
// prioritized provider chain backed by a persistent cache.
package geocode

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Result is one successful resolution.
type Result struct {
	Latitude          float64
	Longitude         float64
	Confidence        float64
	NormalizedAddress string
	Provider          string
}

var (
	// ErrNoResult means the provider answered but found nothing usable.
	ErrNoResult = errors.New("geocode: no result")
	// ErrRateLimited means the provider's local rate budget is exhausted;
	// the resolver falls through to the next provider.
	ErrRateLimited = errors.New("geocode: provider rate limited")
)

// Provider is one external geocoding service. Lower Priority is tried first.
type Provider interface {
	Name() string
	Priority() int
	Enabled() bool
	Geocode(ctx context.Context, address string) (Result, error)
}

// rateLimiter is a fixed-window counter guarding one provider's call budget.
type rateLimiter struct {
	limit  int
	window time.Duration
	mu     sync.Mutex
	start  time.Time
	count  int
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{limit: limit, window: window}
}

func (r *rateLimiter) Allow() bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if now.Sub(r.start) > r.window {
		r.start = now
		r.count = 0
	}
	if r.count >= r.limit {
		return false
	}
	r.count++
	return true
}
