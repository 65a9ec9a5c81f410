package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcachedCache implements Cache on memcached. Entries are stored as JSON
// with no memcached expiration so GetStale keeps working after the TTL;
// freshness is decided from the stored timestamp.
type MemcachedCache[V any] struct {
	client *memcache.Client
	prefix string
	ttl    time.Duration
	clock  Clock
}

// NewMemcachedClient creates a memcache client. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// use package defaults if zero.
func NewMemcachedClient(addrs string, timeout time.Duration, maxIdleConns int) *memcache.Client {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return client
}

// NewMemcachedCache wraps client for one data kind. prefix namespaces the keys
// (e.g. "weather:") so the three kinds can share one memcached pool.
func NewMemcachedCache[V any](client *memcache.Client, prefix string, ttl time.Duration, clock Clock) *MemcachedCache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &MemcachedCache[V]{client: client, prefix: prefix, ttl: ttl, clock: clock}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// memcached keys may not contain spaces or control characters.
func (c *MemcachedCache[V]) key(k string) string {
	return c.prefix + strings.ReplaceAll(k, " ", "_")
}

// Get implements Cache.Get. Returns false, nil on miss or expiry; false, err on error.
func (c *MemcachedCache[V]) Get(ctx context.Context, key string) (Entry[V], bool, error) {
	entry, ok, err := c.GetStale(ctx, key)
	if err != nil || !ok {
		return Entry[V]{}, false, err
	}
	if !Fresh(entry.Timestamp, c.clock.Now(), c.ttl) {
		return Entry[V]{}, false, nil
	}
	return entry, true, nil
}

// GetStale implements Cache.GetStale.
func (c *MemcachedCache[V]) GetStale(ctx context.Context, key string) (Entry[V], bool, error) {
	if ctx.Err() != nil {
		return Entry[V]{}, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return Entry[V]{}, false, nil
		}
		return Entry[V]{}, false, err
	}
	var entry Entry[V]
	if err := json.Unmarshal(item.Value, &entry); err != nil {
		return Entry[V]{}, false, err
	}
	return entry, true, nil
}

// Set implements Cache.Set.
func (c *MemcachedCache[V]) Set(ctx context.Context, key string, value V) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(Entry[V]{Timestamp: c.clock.Now(), Data: value})
	if err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:   c.key(key),
		Value: raw,
	})
}
