// Package cache provides generic, thread-safe caches with bounded memory.
//
// Two eviction policies are offered:
//   - TTLCache: entries expire after a fixed time-to-live, with background
//     cleanup. Backs the pipeline's idempotency store, where the TTL is the
//     dedup retention window.
//   - LRUCache: least-recently-used eviction once a size cap is reached.
//     Backs per-key detector state under device churn.
//
// Statistics are always collected; Prometheus metrics are optional via
// functional options.
package cache

import (
	"time"

	"github.com/c360/fieldstream/errors"
)

// Cache represents a generic cache interface satisfied by all implementations.
// The cache is parameterized by value type V for type safety.
type Cache[V any] interface {
	// Get retrieves a value by key. Returns the value and true if found.
	Get(key string) (V, bool)

	// Set stores a value. Returns true if a new entry was created, false if
	// an existing entry was updated.
	Set(key string, value V) (bool, error)

	// Delete removes an entry by key. Returns true if the key existed.
	Delete(key string) (bool, error)

	// Clear removes all entries.
	Clear() error

	// Size returns the current number of entries.
	Size() int

	// Keys returns all keys currently in the cache.
	Keys() []string

	// Stats returns cache statistics.
	Stats() *Statistics

	// Close releases resources such as background goroutines.
	Close() error
}

// EvictCallback is called when an entry is evicted from the cache.
type EvictCallback[V any] func(key string, value V)

// Entry pairs a cached value with its bookkeeping metadata.
type Entry[V any] struct {
	Key       string
	Value     V
	CreatedAt time.Time
	ExpiresAt *time.Time // nil means no expiration
}

// IsExpired reports whether the entry has expired.
func (e *Entry[V]) IsExpired() bool {
	if e.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*e.ExpiresAt)
}

// validateKey rejects keys the cache cannot store.
func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrMissingField, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
