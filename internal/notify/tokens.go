package notify

import (
	"context"
	"sync"
	"time"
)

// TokenSource lists the device tokens registered for a restaurant's staff.
type TokenSource interface {
	ListStaffTokens(ctx context.Context, restaurantID string) ([]string, error)
}

type tokenEntry struct {
	tokens  []string
	expires time.Time
}

// TokenCache keeps staff device tokens in memory for ttl so a notification
// does not cost a store read per inbound message.
type TokenCache struct {
	source TokenSource
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]tokenEntry
}

// NewTokenCache wraps source. A non-positive ttl defaults to five minutes.
func NewTokenCache(source TokenSource, ttl time.Duration) *TokenCache {
	if source == nil {
		panic("notify: token source required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TokenCache{
		source:  source,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]tokenEntry),
	}
}

// Tokens returns the cached tokens, refreshing them from the source once expired.
// The source is read without holding the lock.
func (c *TokenCache) Tokens(ctx context.Context, restaurantID string) ([]string, error) {
	c.mu.Lock()
	entry, ok := c.entries[restaurantID]
	c.mu.Unlock()
	if ok && c.now().Before(entry.expires) {
		return entry.tokens, nil
	}

	tokens, err := c.source.ListStaffTokens(ctx, restaurantID)
	if err != nil {
		if ok {
			// Serve stale tokens rather than dropping the notification.
			return entry.tokens, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.entries[restaurantID] = tokenEntry{tokens: tokens, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return tokens, nil
}

// Invalidate drops the cached tokens for restaurantID.
func (c *TokenCache) Invalidate(restaurantID string) {
	c.mu.Lock()
	delete(c.entries, restaurantID)
	c.mu.Unlock()
}
