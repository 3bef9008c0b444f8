package ingress

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/fieldstream/errors"
	"github.com/c360/fieldstream/metric"
	"github.com/c360/fieldstream/natsclient"
)

// SubmitFunc hands a decoded message to the pipeline. A returned error
// means the pipeline shed the message under backpressure.
type SubmitFunc func(Message) error

// RejectFunc receives messages that could not be decoded, typically wired
// to the dead-letter store.
type RejectFunc func(topic string, data []byte, err error)

// ConsumerDeps holds runtime dependencies for the NATS consumer.
type ConsumerDeps struct {
	NATSClient      *natsclient.Client
	MetricsRegistry *metric.MetricsRegistry
	Core            *metric.CoreMetrics
	Logger          *slog.Logger
	Submit          SubmitFunc
	Reject          RejectFunc
}

// ConsumerConfig configures the subjects the consumer subscribes to.
type ConsumerConfig struct {
	TelemetrySubject string
	StateSubject     string
	AckSubject       string
	QueueGroup       string
}

// Consumer subscribes to the telemetry, state, and ack subject spaces,
// decodes each message, and submits it to the pipeline.
type Consumer struct {
	cfg     ConsumerConfig
	client  *natsclient.Client
	adapter *Adapter
	submit  SubmitFunc
	reject  RejectFunc
	logger  *slog.Logger
	core    *metric.CoreMetrics

	subs    []*nats.Subscription
	running atomic.Bool
	mu      sync.Mutex

	received atomic.Int64
	rejected atomic.Int64
}

// NewConsumer creates a NATS ingress consumer.
func NewConsumer(cfg ConsumerConfig, deps ConsumerDeps) (*Consumer, error) {
	if deps.NATSClient == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Consumer", "NewConsumer", "nats client required")
	}
	if deps.Submit == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Consumer", "NewConsumer", "submit func required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "ingress-nats")
	}

	return &Consumer{
		cfg:     cfg,
		client:  deps.NATSClient,
		adapter: NewAdapter("nats"),
		submit:  deps.Submit,
		reject:  deps.Reject,
		logger:  logger,
		core:    deps.Core,
	}, nil
}

// Name identifies the component in health reporting.
func (c *Consumer) Name() string { return "ingress-nats" }

// Start subscribes to the configured subjects.
func (c *Consumer) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running.Load() {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Consumer", "Start", "start")
	}

	for _, subject := range []string{c.cfg.TelemetrySubject, c.cfg.StateSubject, c.cfg.AckSubject} {
		if subject == "" {
			continue
		}
		sub, err := c.client.QueueSubscribe(subject, c.cfg.QueueGroup, c.handle)
		if err != nil {
			c.unsubscribeLocked()
			return err
		}
		c.subs = append(c.subs, sub)
		c.logger.Info("subscribed", "subject", subject, "queue", c.cfg.QueueGroup)
	}

	c.running.Store(true)
	return nil
}

func (c *Consumer) handle(msg *nats.Msg) {
	c.received.Add(1)
	if c.core != nil {
		c.core.RecordReceived("nats")
	}

	decoded, err := c.adapter.Decode(msg.Subject, msg.Data)
	if err != nil {
		c.rejected.Add(1)
		if c.core != nil {
			c.core.RecordInvalid("parse")
		}
		c.logger.Warn("undecodable message", "subject", msg.Subject, "error", err)
		if c.reject != nil {
			c.reject(msg.Subject, msg.Data, err)
		}
		return
	}

	if err := c.submit(decoded); err != nil {
		// Shed under backpressure; the intake buffer already counted it.
		c.logger.Warn("intake rejected message", "subject", msg.Subject, "error", err)
	}
}

// Stop unsubscribes. In-flight handlers finish on the NATS dispatch
// goroutine before Unsubscribe returns.
func (c *Consumer) Stop(_ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running.Load() {
		return nil
	}
	c.running.Store(false)
	c.unsubscribeLocked()
	return nil
}

func (c *Consumer) unsubscribeLocked() {
	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			c.logger.Warn("unsubscribe failed", "error", err)
		}
	}
	c.subs = nil
}

// Received returns the number of messages delivered to the consumer.
func (c *Consumer) Received() int64 { return c.received.Load() }

// Rejected returns the number of undecodable messages.
func (c *Consumer) Rejected() int64 { return c.rejected.Load() }

// Healthy reports whether the consumer is running with a live connection.
func (c *Consumer) Healthy() bool {
	return c.running.Load() && c.client.IsHealthy()
}
