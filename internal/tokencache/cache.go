// Package tokencache caches short-lived provider access tokens per adapter
// instance and refreshes them lazily shortly before they expire.
package tokencache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dejobratic/nooks/internal/clock"
)

// DefaultMargin is how long before expiry a cached token is considered stale.
const DefaultMargin = 60 * time.Second

// ErrEmptyToken is returned when a fetch succeeds but yields no token value.
var ErrEmptyToken = errors.New("token endpoint returned an empty token")

// Token is an access token with its absolute expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// FetchFunc obtains a fresh token from the provider.
type FetchFunc func(ctx context.Context) (Token, error)

// Cache holds at most one token. Concurrent callers share a single refresh.
type Cache struct {
	fetch  FetchFunc
	clock  clock.Clock
	margin time.Duration

	mu    sync.Mutex
	token Token
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the wall clock.
func WithClock(c clock.Clock) Option {
	return func(cache *Cache) {
		cache.clock = c
	}
}

// WithMargin overrides DefaultMargin.
func WithMargin(margin time.Duration) Option {
	return func(cache *Cache) {
		cache.margin = margin
	}
}

// New constructs a Cache around fetch.
func New(fetch FetchFunc, opts ...Option) *Cache {
	cache := &Cache{
		fetch:  fetch,
		clock:  clock.Real(),
		margin: DefaultMargin,
	}
	for _, opt := range opts {
		opt(cache)
	}
	return cache
}

// Get returns the cached token value, fetching a new one when the cached token
// is missing or within the margin of its expiry.
func (c *Cache) Get(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.Value != "" && c.clock.Now().Before(c.token.ExpiresAt.Add(-c.margin)) {
		return c.token.Value, nil
	}

	token, err := c.fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("refresh token: %w", err)
	}
	if token.Value == "" {
		return "", ErrEmptyToken
	}

	c.token = token
	return token.Value, nil
}

// Invalidate drops the cached token, typically after the provider rejected it.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = Token{}
}
