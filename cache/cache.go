// Package cache implements the in-process TTL+LRU caches in front of hot
// reads described in spec.md §4 ("Cache") and §5 ("Shared resources"): one
// namespace each for the aggregate K metric, API-key lookups, per-wallet
// scores, per-token scores, and static files. It wraps
// hashicorp/golang-lru — the LRU container rivine itself vendors — with a
// TTL check on Get, since golang-lru's plain LRU has no notion of
// expiry and no pack example ships an LRU+TTL combinator directly.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

type entry struct {
	value    interface{}
	storedAt time.Time
	negative bool
}

// TTLCache pairs an LRU container with a per-namespace TTL. A zero TTL
// means entries never expire on their own (still subject to LRU eviction).
type TTLCache struct {
	mu    sync.Mutex
	lru   *lru.Cache
	ttl   time.Duration
	clock func() time.Time
}

// New creates a TTLCache holding up to size entries, each valid for ttl.
func New(size int, ttl time.Duration) (*TTLCache, error) {
	l, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &TTLCache{lru: l, ttl: ttl, clock: time.Now}, nil
}

// Get returns (value, true) if key is present and unexpired.
func (c *TTLCache) Get(key interface{}) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	e := raw.(entry)
	if c.ttl > 0 && c.clock().Sub(e.storedAt) > c.ttl {
		c.lru.Remove(key)
		return nil, false
	}
	if e.negative {
		return nil, false
	}
	return e.value, true
}

// GetNegative reports whether key is present as a negative ("known absent")
// cache entry, used by the Gateway's API-key cache to avoid lookup storms
// for unknown keys per spec.md §4.8.
func (c *TTLCache) GetNegative(key interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.lru.Get(key)
	if !ok {
		return false
	}
	e := raw.(entry)
	if c.ttl > 0 && c.clock().Sub(e.storedAt) > c.ttl {
		c.lru.Remove(key)
		return false
	}
	return e.negative
}

// Set stores value under key with the cache's configured TTL.
func (c *TTLCache) Set(key, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, entry{value: value, storedAt: c.clock()})
}

// SetNegative records key as known-absent.
func (c *TTLCache) SetNegative(key interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, entry{storedAt: c.clock(), negative: true})
}

// Invalidate removes key immediately.
func (c *TTLCache) Invalidate(key interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Sweep removes every expired entry. Called by the periodic cleanup sweep
// (every 5 min, per spec.md §5) so a cold namespace's stale entries do not
// linger until capacity pressure forces eviction.
func (c *TTLCache) Sweep() (removed int) {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()
	for _, key := range c.lru.Keys() {
		raw, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		if now.Sub(raw.(entry).storedAt) > c.ttl {
			c.lru.Remove(key)
			removed++
		}
	}
	return removed
}
