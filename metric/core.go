package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CoreMetrics holds the pipeline-level metrics surface: every count the
// processing contract promises to expose (accepted, duplicate, late-dropped,
// DLQ'd, alerts, window close latency) lives here so operators have one
// stable set of series regardless of which components are wired in.
type CoreMetrics struct {
	EventsReceived  *prometheus.CounterVec // by source (nats, http, replay)
	EventsAccepted  prometheus.Counter
	EventsDuplicate prometheus.Counter
	EventsInvalid   *prometheus.CounterVec // by reason (parse, validation, transform)
	LateDropped     prometheus.Counter
	IntakeShed      prometheus.Counter
	DLQTotal        *prometheus.CounterVec // by reason class
	AlertsTotal     *prometheus.CounterVec // by severity

	WindowsClosed      prometheus.Counter
	WindowCloseLatency prometheus.Histogram

	ProcessingDuration *prometheus.HistogramVec // by stage
	SinkWrites         *prometheus.CounterVec   // by sink, status

	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewCoreMetrics creates the core metric set. Collectors are created here
// and registered by the owning MetricsRegistry.
func NewCoreMetrics() *CoreMetrics {
	return &CoreMetrics{
		EventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fieldstream",
				Subsystem: "events",
				Name:      "received_total",
				Help:      "Total events received at ingress",
			},
			[]string{"source"},
		),

		EventsAccepted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "fieldstream",
				Subsystem: "events",
				Name:      "accepted_total",
				Help:      "Events that passed the idempotency check and entered the pipeline",
			},
		),

		EventsDuplicate: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "fieldstream",
				Subsystem: "events",
				Name:      "duplicate_total",
				Help:      "Events dropped as duplicates within the dedup retention window",
			},
		),

		EventsInvalid: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fieldstream",
				Subsystem: "events",
				Name:      "invalid_total",
				Help:      "Events rejected by a permanent failure class",
			},
			[]string{"reason"},
		),

		LateDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "fieldstream",
				Subsystem: "window",
				Name:      "late_dropped_total",
				Help:      "Samples arriving after window end plus grace, excluded from aggregates",
			},
		),

		IntakeShed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "fieldstream",
				Subsystem: "intake",
				Name:      "shed_total",
				Help:      "Events shed by the intake overflow policy",
			},
		),

		DLQTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fieldstream",
				Subsystem: "dlq",
				Name:      "records_total",
				Help:      "Records quarantined to the dead-letter queue",
			},
			[]string{"reason"},
		),

		AlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fieldstream",
				Subsystem: "anomaly",
				Name:      "alerts_total",
				Help:      "Alerts emitted by the anomaly detector",
			},
			[]string{"severity"},
		),

		WindowsClosed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "fieldstream",
				Subsystem: "window",
				Name:      "closed_total",
				Help:      "Windows closed and emitted as aggregates",
			},
		),

		WindowCloseLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "fieldstream",
				Subsystem: "window",
				Name:      "close_latency_seconds",
				Help:      "Delay between a window's nominal end and its actual close",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fieldstream",
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Per-stage processing duration",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),

		SinkWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fieldstream",
				Subsystem: "sink",
				Name:      "writes_total",
				Help:      "Sink write attempts by outcome",
			},
			[]string{"sink", "status"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "fieldstream",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "fieldstream",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}

// register registers all core collectors with the given registry.
func (c *CoreMetrics) register(registry *prometheus.Registry) {
	registry.MustRegister(
		c.EventsReceived,
		c.EventsAccepted,
		c.EventsDuplicate,
		c.EventsInvalid,
		c.LateDropped,
		c.IntakeShed,
		c.DLQTotal,
		c.AlertsTotal,
		c.WindowsClosed,
		c.WindowCloseLatency,
		c.ProcessingDuration,
		c.SinkWrites,
		c.NATSConnected,
		c.NATSReconnects,
	)
}

// RecordReceived increments the received counter for an ingress source.
func (c *CoreMetrics) RecordReceived(source string) {
	c.EventsReceived.WithLabelValues(source).Inc()
}

// RecordAccepted increments the accepted counter.
func (c *CoreMetrics) RecordAccepted() {
	c.EventsAccepted.Inc()
}

// RecordDuplicate increments the duplicate counter.
func (c *CoreMetrics) RecordDuplicate() {
	c.EventsDuplicate.Inc()
}

// RecordLateDrop counts samples excluded as too late to aggregate.
func (c *CoreMetrics) RecordLateDrop(n int) {
	if n > 0 {
		c.LateDropped.Add(float64(n))
	}
}

// RecordIntakeShed counts events shed by the intake overflow policy.
func (c *CoreMetrics) RecordIntakeShed() {
	c.IntakeShed.Inc()
}

// RecordInvalid increments the invalid counter for a permanent failure class.
func (c *CoreMetrics) RecordInvalid(reason string) {
	c.EventsInvalid.WithLabelValues(reason).Inc()
}

// RecordDLQ increments the DLQ counter for a quarantine reason.
func (c *CoreMetrics) RecordDLQ(reason string) {
	c.DLQTotal.WithLabelValues(reason).Inc()
}

// RecordAlert increments the alert counter for a severity.
func (c *CoreMetrics) RecordAlert(severity string) {
	c.AlertsTotal.WithLabelValues(severity).Inc()
}

// RecordWindowClose records one window close and its latency past the
// nominal end.
func (c *CoreMetrics) RecordWindowClose(latency time.Duration) {
	c.WindowsClosed.Inc()
	c.WindowCloseLatency.Observe(latency.Seconds())
}

// RecordStageDuration records processing time for a pipeline stage.
func (c *CoreMetrics) RecordStageDuration(stage string, duration time.Duration) {
	c.ProcessingDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordSinkWrite records one sink write attempt outcome.
func (c *CoreMetrics) RecordSinkWrite(sink, status string) {
	c.SinkWrites.WithLabelValues(sink, status).Inc()
}

// RecordNATSStatus updates the NATS connection gauge.
func (c *CoreMetrics) RecordNATSStatus(connected bool) {
	v := 0.0
	if connected {
		v = 1.0
	}
	c.NATSConnected.Set(v)
}
