package pricefeed

import (
	"context"
	"sync"
	"time"

	"fluid-gateway/internal/metrics"
)

type cacheEntry[V any] struct {
	value    V
	storedAt time.Time
}

// Cache is an in-memory map whose entries expire after a fixed TTL.
type Cache[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry[V]
}

// NewCache builds a cache with the given TTL.
func NewCache[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{ttl: ttl, now: time.Now, entries: make(map[string]cacheEntry[V])}
}

// Get returns the value for key if present and younger than the TTL.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		delete(c.entries, key)
		return zero, false
	}
	return entry.value, true
}

// Set stores value under key, resetting its age.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry[V]{value: value, storedAt: c.now()}
}

// Invalidate drops key.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry[V])
}

// CachedFeed answers repeated symbol sets from a TTL cache. Errors are not cached.
type CachedFeed struct {
	feed    Feed
	cache   *Cache[Prices]
	metrics *metrics.Metrics
}

// NewCachedFeed wraps feed with a cache of the given TTL.
func NewCachedFeed(feed Feed, ttl time.Duration, m *metrics.Metrics) *CachedFeed {
	return &CachedFeed{feed: feed, cache: NewCache[Prices](ttl), metrics: m}
}

// FetchPrices serves from cache when fresh, otherwise from the wrapped feed.
func (c *CachedFeed) FetchPrices(ctx context.Context, symbols []string) (Prices, error) {
	key := CacheKey(symbols)
	if cached, ok := c.cache.Get(key); ok {
		c.metrics.IncPriceCacheHit()
		return cached.clone(), nil
	}

	prices, err := c.feed.FetchPrices(ctx, symbols)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, prices.clone())
	return prices, nil
}

// Invalidate forgets every cached symbol set.
func (c *CachedFeed) Invalidate() {
	c.cache.Purge()
}

func (p Prices) clone() Prices {
	out := make(Prices, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

var _ Feed = (*CachedFeed)(nil)
