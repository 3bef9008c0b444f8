package cache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/fieldstream/metric"
)

// cacheMetrics exposes cache statistics as Prometheus metrics.
type cacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	sets      prometheus.Counter
	evictions prometheus.Counter
	size      prometheus.Gauge
}

// newCacheMetrics creates and registers cache metrics under the given prefix.
func newCacheMetrics(registry *metric.MetricsRegistry, prefix string) (*cacheMetrics, error) {
	m := &cacheMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fieldstream",
			Subsystem: "cache",
			Name:      prefix + "_hits_total",
			Help:      "Total cache hits",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fieldstream",
			Subsystem: "cache",
			Name:      prefix + "_misses_total",
			Help:      "Total cache misses",
		}),
		sets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fieldstream",
			Subsystem: "cache",
			Name:      prefix + "_sets_total",
			Help:      "Total cache set operations",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fieldstream",
			Subsystem: "cache",
			Name:      prefix + "_evictions_total",
			Help:      "Total cache evictions (TTL expiry or LRU displacement)",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fieldstream",
			Subsystem: "cache",
			Name:      prefix + "_entries",
			Help:      "Current number of cache entries",
		}),
	}

	serviceName := "cache_" + prefix
	if err := registry.RegisterCounter(serviceName, prefix+"_hits_total", m.hits); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(serviceName, prefix+"_misses_total", m.misses); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(serviceName, prefix+"_sets_total", m.sets); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(serviceName, prefix+"_evictions_total", m.evictions); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(serviceName, prefix+"_entries", m.size); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *cacheMetrics) recordHit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *cacheMetrics) recordMiss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *cacheMetrics) recordSet() {
	if m != nil {
		m.sets.Inc()
	}
}

func (m *cacheMetrics) recordEviction() {
	if m != nil {
		m.evictions.Inc()
	}
}

func (m *cacheMetrics) updateSize(n int) {
	if m != nil {
		m.size.Set(float64(n))
	}
}
