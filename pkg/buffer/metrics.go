package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/fieldstream/metric"
)

// bufferMetrics exposes buffer statistics as Prometheus metrics.
type bufferMetrics struct {
	writes prometheus.Counter
	reads  prometheus.Counter
	drops  prometheus.Counter
	size   prometheus.Gauge
}

func newBufferMetrics(registry *metric.MetricsRegistry, prefix string) (*bufferMetrics, error) {
	m := &bufferMetrics{
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fieldstream",
			Subsystem: "buffer",
			Name:      prefix + "_writes_total",
			Help:      "Total items written to the buffer",
		}),
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fieldstream",
			Subsystem: "buffer",
			Name:      prefix + "_reads_total",
			Help:      "Total items read from the buffer",
		}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fieldstream",
			Subsystem: "buffer",
			Name:      prefix + "_dropped_total",
			Help:      "Total items shed by the overflow policy",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fieldstream",
			Subsystem: "buffer",
			Name:      prefix + "_occupancy",
			Help:      "Current number of buffered items",
		}),
	}

	serviceName := "buffer_" + prefix
	if err := registry.RegisterCounter(serviceName, prefix+"_writes_total", m.writes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(serviceName, prefix+"_reads_total", m.reads); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(serviceName, prefix+"_dropped_total", m.drops); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(serviceName, prefix+"_occupancy", m.size); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *bufferMetrics) recordWrite() {
	if m != nil {
		m.writes.Inc()
	}
}

func (m *bufferMetrics) recordRead() {
	if m != nil {
		m.reads.Inc()
	}
}

func (m *bufferMetrics) recordDrop() {
	if m != nil {
		m.drops.Inc()
	}
}

func (m *bufferMetrics) updateSize(n int) {
	if m != nil {
		m.size.Set(float64(n))
	}
}
