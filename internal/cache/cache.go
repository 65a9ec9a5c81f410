package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is the freshness window for provider data.
const DefaultTTL = 10 * time.Minute

// Clock abstracts time so freshness can be tested without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Entry is a cached value with the time it was stored.
type Entry[V any] struct {
	Timestamp time.Time `json:"timestamp"`
	Data      V         `json:"data"`
}

// Cache defines the interface for provider data caching implementations.
// Get returns only fresh entries (age <= TTL). GetStale returns the raw entry
// regardless of age and must only be consulted after an upstream failure.
type Cache[V any] interface {
	Get(ctx context.Context, key string) (Entry[V], bool, error)
	GetStale(ctx context.Context, key string) (Entry[V], bool, error)
	Set(ctx context.Context, key string, value V) error
}

// InMemoryCache implements Cache using a map. Entries are never evicted, only
// overwritten by a newer Set for the same key.
type InMemoryCache[V any] struct {
	mu    sync.RWMutex
	data  map[string]Entry[V]
	ttl   time.Duration
	clock Clock
}

// NewInMemoryCache creates a new in-memory cache. A nil clock uses SystemClock;
// a non-positive ttl uses DefaultTTL.
func NewInMemoryCache[V any](ttl time.Duration, clock Clock) *InMemoryCache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &InMemoryCache[V]{
		data:  make(map[string]Entry[V]),
		ttl:   ttl,
		clock: clock,
	}
}

// Get retrieves the entry for key if present and not older than the TTL.
// Returns (entry, true, nil) on a fresh hit, (zero, false, nil) on miss or expiry.
// Expired entries stay in the map for GetStale.
func (c *InMemoryCache[V]) Get(ctx context.Context, key string) (Entry[V], bool, error) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok || !Fresh(entry.Timestamp, c.clock.Now(), c.ttl) {
		return Entry[V]{}, false, nil
	}
	return entry, true, nil
}

// GetStale returns the stored entry for key regardless of its age.
func (c *InMemoryCache[V]) GetStale(ctx context.Context, key string) (Entry[V], bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.data[key]
	return entry, ok, nil
}

// Set stores value under key stamped with the current clock time.
func (c *InMemoryCache[V]) Set(ctx context.Context, key string, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = Entry[V]{Timestamp: c.clock.Now(), Data: value}
	return nil
}

// Len returns the number of stored entries, fresh or not.
func (c *InMemoryCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Fresh reports whether an entry stored at ts is still within ttl at now.
func Fresh(ts, now time.Time, ttl time.Duration) bool {
	return now.Sub(ts) <= ttl
}
