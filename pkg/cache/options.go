package cache

import (
	"github.com/c360/fieldstream/metric"
)

// Option configures cache behavior using the functional options pattern.
type Option[V any] func(*cacheOptions[V])

// cacheOptions holds internal configuration for cache instances.
type cacheOptions[V any] struct {
	evictCallback EvictCallback[V]

	// metricsReg is optional; when provided cache stats are also exposed
	// as Prometheus metrics under metricsPrefix.
	metricsReg    *metric.MetricsRegistry
	metricsPrefix string
}

// WithEvictCallback sets a callback invoked when an entry is evicted,
// either by TTL expiry or LRU displacement.
func WithEvictCallback[V any](callback EvictCallback[V]) Option[V] {
	return func(opts *cacheOptions[V]) {
		opts.evictCallback = callback
	}
}

// WithMetrics enables Prometheus metrics export for cache statistics.
// Ignored when registry is nil or prefix is empty.
func WithMetrics[V any](registry *metric.MetricsRegistry, prefix string) Option[V] {
	return func(opts *cacheOptions[V]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

func applyOptions[V any](options ...Option[V]) *cacheOptions[V] {
	opts := &cacheOptions[V]{}
	for _, option := range options {
		option(opts)
	}
	return opts
}
