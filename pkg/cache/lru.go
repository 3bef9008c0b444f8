package cache

import (
	"container/list"
	"sync"

	"github.com/c360/fieldstream/errors"
)

// lruEntry represents an entry in the LRU cache.
type lruEntry[V any] struct {
	key   string
	value V
}

// LRUCache is a thread-safe cache that evicts the least recently used entry
// once the size cap is reached. The anomaly detector uses it to bound
// per-key rolling state under device churn.
type LRUCache[V any] struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List // front = most recently used
	stats   *Statistics
	metrics *cacheMetrics
	evictFn EvictCallback[V]
}

// NewLRU creates an LRU cache holding at most maxSize entries.
func NewLRU[V any](maxSize int, options ...Option[V]) (*LRUCache[V], error) {
	if maxSize <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "NewLRU", "maxSize must be positive")
	}

	opts := applyOptions(options...)

	var metrics *cacheMetrics
	if opts.metricsReg != nil {
		var err error
		metrics, err = newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "cache", "NewLRU", "metrics registration")
		}
	}

	return &LRUCache[V]{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		stats:   NewStatistics(),
		metrics: metrics,
		evictFn: opts.evictCallback,
	}, nil
}

// Get retrieves a value by key and marks it as recently used.
func (c *LRUCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, exists := c.items[key]
	if !exists {
		var zero V
		c.stats.Miss()
		c.metrics.recordMiss()
		return zero, false
	}

	c.order.MoveToFront(element)
	c.stats.Hit()
	c.metrics.recordHit()

	return element.Value.(*lruEntry[V]).value, true
}

// Set stores a value and marks it as recently used. Returns true if a new
// entry was created, false if an existing entry was updated.
func (c *LRUCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()

	if element, exists := c.items[key]; exists {
		element.Value.(*lruEntry[V]).value = value
		c.order.MoveToFront(element)
		c.mu.Unlock()

		c.stats.Set()
		c.metrics.recordSet()
		return false, nil
	}

	element := c.order.PushFront(&lruEntry[V]{key: key, value: value})
	c.items[key] = element

	var evictedKey string
	var evictedValue V
	evictedAny := false
	if len(c.items) > c.maxSize {
		evictedKey, evictedValue, evictedAny = c.evictOldest()
	}
	size := len(c.items)
	c.mu.Unlock()

	c.stats.Set()
	c.stats.UpdateSize(int64(size))
	c.metrics.recordSet()
	c.metrics.updateSize(size)

	if evictedAny && c.evictFn != nil {
		c.evictFn(evictedKey, evictedValue)
	}

	return true, nil
}

// evictOldest removes the least recently used entry. Caller holds the lock.
func (c *LRUCache[V]) evictOldest() (string, V, bool) {
	oldest := c.order.Back()
	if oldest == nil {
		var zero V
		return "", zero, false
	}

	entry := oldest.Value.(*lruEntry[V])
	c.order.Remove(oldest)
	delete(c.items, entry.key)

	c.stats.Eviction()
	c.metrics.recordEviction()

	return entry.key, entry.value, true
}

// Delete removes an entry by key.
func (c *LRUCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	element, exists := c.items[key]
	if exists {
		c.order.Remove(element)
		delete(c.items, key)
	}
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
func (c *LRUCache[V]) Clear() error {
	c.mu.Lock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.mu.Unlock()

	c.stats.UpdateSize(0)
	c.metrics.updateSize(0)
	return nil
}

// Size returns the current number of entries.
func (c *LRUCache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns all keys ordered from most to least recently used.
func (c *LRUCache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.items))
	for e := c.order.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*lruEntry[V]).key)
	}
	return keys
}

// Stats returns cache statistics.
func (c *LRUCache[V]) Stats() *Statistics {
	return c.stats
}

// Close is a no-op for the LRU cache; it holds no background resources.
func (c *LRUCache[V]) Close() error {
	return nil
}

var _ Cache[int] = (*LRUCache[int])(nil)
