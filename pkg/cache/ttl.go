package cache

import (
	"context"
	"sync"
	"time"

	"github.com/c360/fieldstream/errors"
)

// ttlEntry represents an entry in the TTL cache.
type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e *ttlEntry[V]) isExpired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// TTLCache is a thread-safe cache whose entries expire after a fixed
// time-to-live. A background goroutine sweeps expired entries so memory
// stays bounded even for keys that are never read again.
type TTLCache[V any] struct {
	mu              sync.RWMutex
	ttl             time.Duration
	cleanupInterval time.Duration
	items           map[string]*ttlEntry[V]
	stats           *Statistics
	metrics         *cacheMetrics
	evictFn         EvictCallback[V]

	shutdown chan struct{}
	done     chan struct{}
}

// NewTTL creates a TTL cache. The cleanup goroutine stops when ctx is
// cancelled or Close is called.
func NewTTL[V any](
	ctx context.Context, ttl, cleanupInterval time.Duration, options ...Option[V],
) (*TTLCache[V], error) {
	if ttl <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "NewTTL", "ttl must be positive")
	}
	if cleanupInterval <= 0 {
		cleanupInterval = ttl / 2
		if cleanupInterval < time.Second {
			cleanupInterval = time.Second
		}
	}

	opts := applyOptions(options...)

	var metrics *cacheMetrics
	if opts.metricsReg != nil {
		var err error
		metrics, err = newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "cache", "NewTTL", "metrics registration")
		}
	}

	c := &TTLCache[V]{
		ttl:             ttl,
		cleanupInterval: cleanupInterval,
		items:           make(map[string]*ttlEntry[V]),
		stats:           NewStatistics(),
		metrics:         metrics,
		evictFn:         opts.evictCallback,
		shutdown:        make(chan struct{}),
		done:            make(chan struct{}),
	}

	go c.cleanup(ctx)

	return c, nil
}

// Get retrieves a value by key, treating expired entries as misses.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	now := time.Now()

	c.mu.RLock()
	entry, exists := c.items[key]
	c.mu.RUnlock()

	if !exists || entry.isExpired(now) {
		var zero V
		c.stats.Miss()
		c.metrics.recordMiss()
		return zero, false
	}

	c.stats.Hit()
	c.metrics.recordHit()
	return entry.value, true
}

// Set stores a value with a fresh TTL. Returns true when the key was not
// present (or had expired), false when a live entry was overwritten.
func (c *TTLCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	now := time.Now()

	c.mu.Lock()
	existing, exists := c.items[key]
	created := !exists || existing.isExpired(now)
	c.items[key] = &ttlEntry[V]{value: value, expiresAt: now.Add(c.ttl)}
	size := len(c.items)
	c.mu.Unlock()

	c.stats.Set()
	c.stats.UpdateSize(int64(size))
	c.metrics.recordSet()
	c.metrics.updateSize(size)

	return created, nil
}

// SetIfAbsent stores a value only when no live entry exists for the key.
// The check and the insert happen under one lock, which makes this the
// atomic check-and-mark primitive the idempotency store is built on:
// the first caller within the TTL gets true, every later caller false.
func (c *TTLCache[V]) SetIfAbsent(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	now := time.Now()

	c.mu.Lock()
	existing, exists := c.items[key]
	if exists && !existing.isExpired(now) {
		c.mu.Unlock()
		c.stats.Hit()
		c.metrics.recordHit()
		return false, nil
	}
	c.items[key] = &ttlEntry[V]{value: value, expiresAt: now.Add(c.ttl)}
	size := len(c.items)
	c.mu.Unlock()

	c.stats.Set()
	c.stats.UpdateSize(int64(size))
	c.metrics.recordSet()
	c.metrics.updateSize(size)

	return true, nil
}

// Delete removes an entry by key.
func (c *TTLCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	_, exists := c.items[key]
	delete(c.items, key)
	size := len(c.items)
	c.mu.Unlock()

	if exists {
		c.stats.Delete()
		c.stats.UpdateSize(int64(size))
		c.metrics.updateSize(size)
	}
	return exists, nil
}

// Clear removes all entries.
func (c *TTLCache[V]) Clear() error {
	c.mu.Lock()
	c.items = make(map[string]*ttlEntry[V])
	c.mu.Unlock()

	c.stats.UpdateSize(0)
	c.metrics.updateSize(0)
	return nil
}

// Size returns the number of entries, including any not yet swept.
func (c *TTLCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Keys returns all live (non-expired) keys.
func (c *TTLCache[V]) Keys() []string {
	now := time.Now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.items))
	for k, entry := range c.items {
		if !entry.isExpired(now) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Stats returns cache statistics.
func (c *TTLCache[V]) Stats() *Statistics {
	return c.stats
}

// Close stops the background cleanup goroutine.
func (c *TTLCache[V]) Close() error {
	select {
	case <-c.shutdown:
		// already closed
	default:
		close(c.shutdown)
	}
	<-c.done
	return nil
}

// cleanup periodically sweeps expired entries.
func (c *TTLCache[V]) cleanup(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep removes all expired entries in one pass.
func (c *TTLCache[V]) sweep() {
	now := time.Now()

	type evicted[V any] struct {
		key   string
		value V
	}
	var removed []evicted[V]

	c.mu.Lock()
	for key, entry := range c.items {
		if entry.isExpired(now) {
			delete(c.items, key)
			if c.evictFn != nil {
				removed = append(removed, evicted[V]{key: key, value: entry.value})
			}
			c.stats.Eviction()
			c.metrics.recordEviction()
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	c.stats.UpdateSize(int64(size))
	c.metrics.updateSize(size)

	// Callbacks run outside the lock
	for _, e := range removed {
		c.evictFn(e.key, e.value)
	}
}

var _ Cache[int] = (*TTLCache[int])(nil)
