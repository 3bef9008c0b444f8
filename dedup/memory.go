package dedup

import (
	"context"
	"time"

	"github.com/c360/fieldstream/errors"
	"github.com/c360/fieldstream/metric"
	"github.com/c360/fieldstream/pkg/cache"
)

// MemoryStore is the single-instance idempotency store backed by a TTL
// cache. SetIfAbsent gives the atomic claim.
type MemoryStore struct {
	cache *cache.TTLCache[struct{}]
}

// NewMemoryStore creates an in-process store whose entries live for ttl.
func NewMemoryStore(ctx context.Context, ttl time.Duration, registry *metric.MetricsRegistry) (*MemoryStore, error) {
	var opts []cache.Option[struct{}]
	if registry != nil {
		opts = append(opts, cache.WithMetrics[struct{}](registry, "dedup"))
	}

	c, err := cache.NewTTL[struct{}](ctx, ttl, 0, opts...)
	if err != nil {
		return nil, errors.WrapInvalid(err, "MemoryStore", "NewMemoryStore", "create cache")
	}
	return &MemoryStore{cache: c}, nil
}

// CheckAndMark atomically claims the key.
func (s *MemoryStore) CheckAndMark(_ context.Context, key string) (Result, error) {
	won, err := s.cache.SetIfAbsent(key, struct{}{})
	if err != nil {
		return Duplicate, errors.WrapTransient(err, "MemoryStore", "CheckAndMark", "claim "+key)
	}
	if won {
		return Accepted, nil
	}
	return Duplicate, nil
}

// Size returns the number of live entries, for tests and introspection.
func (s *MemoryStore) Size() int { return s.cache.Size() }

// Close stops the cache's cleanup goroutine.
func (s *MemoryStore) Close() error { return s.cache.Close() }
