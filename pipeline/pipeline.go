// Package pipeline wires the processing stages together and owns the
// worker topology: one bounded intake buffer feeding shard workers hashed
// by device, so readings from one device are always processed in arrival
// order while devices proceed in parallel.
package pipeline

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/fieldstream/anomaly"
	"github.com/c360/fieldstream/dedup"
	"github.com/c360/fieldstream/dlq"
	"github.com/c360/fieldstream/enrich"
	"github.com/c360/fieldstream/errors"
	"github.com/c360/fieldstream/event"
	"github.com/c360/fieldstream/ingress"
	"github.com/c360/fieldstream/metric"
	"github.com/c360/fieldstream/pkg/buffer"
	"github.com/c360/fieldstream/sink"
	"github.com/c360/fieldstream/transform"
	"github.com/c360/fieldstream/validate"
	"github.com/c360/fieldstream/window"
)

// AckHandler consumes command acknowledgements arriving on the ack stream.
type AckHandler interface {
	HandleAck(ack *event.Ack)
}

// Deps contains the stage implementations the pipeline orchestrates.
// Transforms, Detector, and Acks are optional; the other stages are
// mandatory.
type Deps struct {
	Dedup      dedup.Store
	Validator  *validate.Validator
	Enricher   *enrich.Enricher
	Transforms *transform.Chain
	Windows    *window.Aggregator
	Detector   *anomaly.Detector
	Router     *sink.Router
	DLQ        *dlq.Manager
	Acks       AckHandler

	Registry *metric.MetricsRegistry
	Core     *metric.CoreMetrics
	Logger   *slog.Logger
}

// Config sizes the worker topology.
type Config struct {
	IntakeSize     int
	OverflowPolicy buffer.OverflowPolicy
	Shards         int
	SweepInterval  time.Duration
}

// Pipeline runs the stages: dedup, validate, enrich, transform, window,
// detect, route. Failures leave through the DLQ manager.
type Pipeline struct {
	cfg  Config
	deps Deps

	intake buffer.Buffer[ingress.Message]
	shards []chan ingress.Message
	logger *slog.Logger

	ctx        context.Context
	cancel     context.CancelFunc
	workerWG   sync.WaitGroup
	sweeperWG  sync.WaitGroup
	started    atomic.Bool
	accepted   atomic.Int64
	duplicates atomic.Int64
	shed       atomic.Int64
}

const shardQueueDepth = 64

// New creates the pipeline and wires its resubmit hook into the DLQ
// manager so replayed records re-enter at the intake.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	switch {
	case deps.Dedup == nil:
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Pipeline", "New", "dedup store required")
	case deps.Validator == nil:
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Pipeline", "New", "validator required")
	case deps.Enricher == nil:
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Pipeline", "New", "enricher required")
	case deps.Windows == nil:
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Pipeline", "New", "window aggregator required")
	case deps.Router == nil:
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Pipeline", "New", "sink router required")
	case deps.DLQ == nil:
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Pipeline", "New", "dlq manager required")
	}
	if cfg.IntakeSize <= 0 {
		cfg.IntakeSize = 4096
	}
	if cfg.Shards <= 0 {
		cfg.Shards = 8
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Second
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default().With("component", "pipeline")
	}

	p := &Pipeline{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger,
	}

	intake, err := buffer.NewCircular[ingress.Message](cfg.IntakeSize,
		buffer.WithOverflowPolicy[ingress.Message](cfg.OverflowPolicy),
		buffer.WithDropCallback[ingress.Message](p.onShed),
		buffer.WithMetrics[ingress.Message](deps.Registry, "intake"),
	)
	if err != nil {
		return nil, err
	}
	p.intake = intake

	p.shards = make([]chan ingress.Message, cfg.Shards)
	for i := range p.shards {
		p.shards[i] = make(chan ingress.Message, shardQueueDepth)
	}

	deps.DLQ.SetResubmit(p.Resubmit)
	return p, nil
}

func (p *Pipeline) onShed(msg ingress.Message) {
	p.shed.Add(1)
	if p.deps.Core != nil {
		p.deps.Core.RecordIntakeShed()
	}
	device := ""
	if msg.Event != nil {
		device = msg.Event.DeviceID
	}
	p.logger.Warn("intake shed event", "source", msg.Source, "device", device)
}

// Name implements component.Lifecycle.
func (p *Pipeline) Name() string { return "pipeline" }

// Start implements component.Lifecycle.
func (p *Pipeline) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Pipeline", "Start", "start")
	}
	p.ctx, p.cancel = context.WithCancel(ctx)

	for i := range p.shards {
		p.workerWG.Add(1)
		go p.worker(p.shards[i])
	}
	p.workerWG.Add(1)
	go p.dispatch()

	p.sweeperWG.Add(1)
	go p.sweeper()

	p.logger.Info("pipeline started",
		"shards", p.cfg.Shards,
		"intake", p.cfg.IntakeSize,
		"overflow", p.cfg.OverflowPolicy.String())
	return nil
}

// Submit queues an inbound message for processing. With the Block policy
// it applies backpressure to the caller; the Drop policies shed instead.
func (p *Pipeline) Submit(msg ingress.Message) error {
	if err := p.intake.Write(msg); err != nil {
		return errors.WrapTransient(errors.ErrShuttingDown, "Pipeline", "Submit", "intake write")
	}
	return nil
}

// Resubmit reinjects a replayed record at the intake. Only event records
// replay; aggregates and alerts are derived data.
func (p *Pipeline) Resubmit(_ context.Context, rec event.Record) error {
	if rec.Kind != event.KindEvent || rec.Event == nil {
		return errors.WrapInvalid(errors.ErrMalformedPayload, "Pipeline", "Resubmit",
			"only event records replay, got "+string(rec.Kind))
	}
	if p.deps.Core != nil {
		p.deps.Core.RecordReceived("replay")
	}
	return p.Submit(ingress.Message{Kind: event.KindEvent, Source: "replay", Event: rec.Event})
}

// dispatch moves intake messages onto shard queues. Hashing on deviceId
// keeps each device on one worker, preserving per-device order.
func (p *Pipeline) dispatch() {
	defer p.workerWG.Done()
	defer func() {
		for _, ch := range p.shards {
			close(ch)
		}
	}()

	for {
		msg, err := p.intake.BlockingRead()
		if err != nil {
			return
		}
		p.shards[p.shardFor(msg)] <- msg
	}
}

func (p *Pipeline) shardFor(msg ingress.Message) int {
	var key string
	switch {
	case msg.Event != nil:
		key = msg.Event.DeviceID
	case msg.Ack != nil:
		key = msg.Ack.DeviceID
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(p.shards)))
}

func (p *Pipeline) worker(ch <-chan ingress.Message) {
	defer p.workerWG.Done()
	for msg := range ch {
		p.process(msg)
	}
}

func (p *Pipeline) process(msg ingress.Message) {
	switch msg.Kind {
	case event.KindAck:
		p.processAck(msg.Ack)
	case event.KindEvent:
		p.processEvent(msg.Event, msg.Source)
	default:
		p.logger.Warn("unroutable message kind", "kind", msg.Kind)
	}
}

func (p *Pipeline) processAck(ack *event.Ack) {
	if p.deps.Acks != nil {
		p.deps.Acks.HandleAck(ack)
	}
	p.deliver(event.NewAckRecord(ack, uuid.NewString()))
}

func (p *Pipeline) processEvent(e *event.Event, source string) {
	start := time.Now()
	traceID := uuid.NewString()

	res, err := p.deps.Dedup.CheckAndMark(p.ctx, e.IdentityKey())
	if err != nil {
		// a broken dedup backend must not stall ingestion; upstream is
		// at-least-once, so processing a possible duplicate is the safer side
		p.logger.Warn("dedup check failed, processing anyway", "device", e.DeviceID, "error", err)
	} else if res == dedup.Duplicate {
		p.duplicates.Add(1)
		if p.deps.Core != nil {
			p.deps.Core.RecordDuplicate()
		}
		return
	}

	p.accepted.Add(1)
	if p.deps.Core != nil {
		p.deps.Core.RecordAccepted()
	}

	device, err := p.deps.Validator.Validate(e, time.Now())
	if err != nil {
		if p.deps.Core != nil {
			p.deps.Core.RecordInvalid("validation")
		}
		p.deps.DLQ.DeadLetter(p.ctx, event.NewEventRecord(e, traceID), dlq.ReasonValidation, 1, err)
		return
	}

	// enrichment and transforms mutate; the validated event stays as submitted
	e = e.Clone()
	p.deps.Enricher.Enrich(e, device, source, time.Now())

	if p.deps.Transforms != nil {
		if err := p.deps.Transforms.Apply(e); err != nil {
			if p.deps.Core != nil {
				p.deps.Core.RecordInvalid("transform")
			}
			p.deps.DLQ.DeadLetter(p.ctx, event.NewEventRecord(e, traceID), dlq.ReasonTransform, 1, err)
			return
		}
	}

	late := p.deps.Windows.Observe(e, time.Now())
	if late > 0 && p.deps.Core != nil {
		p.deps.Core.RecordLateDrop(late)
	}

	if p.deps.Detector != nil {
		for _, alert := range p.deps.Detector.Evaluate(e) {
			if p.deps.Core != nil {
				p.deps.Core.RecordAlert(alert.Severity.String())
			}
			p.deliver(event.NewAlertRecord(alert, traceID))
		}
	}

	p.deliver(event.NewEventRecord(e, traceID))

	if p.deps.Core != nil {
		p.deps.Core.RecordStageDuration("process", time.Since(start))
	}
}

// deliver routes a record and hands failed writes to the retry path.
func (p *Pipeline) deliver(rec event.Record) {
	for _, res := range p.deps.Router.Dispatch(p.ctx, rec) {
		if res.Err != nil {
			p.deps.DLQ.HandleSinkFailure(p.ctx, rec, res.Sink, res.Err)
		}
	}
}

// sweeper drives window closure on wall-clock time.
func (p *Pipeline) sweeper() {
	defer p.sweeperWG.Done()

	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case now := <-ticker.C:
			p.emitAggregates(p.deps.Windows.Sweep(now), now)
		}
	}
}

func (p *Pipeline) emitAggregates(aggs []*event.Aggregate, now time.Time) {
	for _, agg := range aggs {
		if p.deps.Core != nil {
			p.deps.Core.RecordWindowClose(now.Sub(agg.End))
		}
		p.deliver(event.NewAggregateRecord(agg, uuid.NewString()))
	}
}

// Stop implements component.Lifecycle: the intake closes, in-flight work
// drains, then open windows flush so no aggregate is lost on shutdown.
func (p *Pipeline) Stop(timeout time.Duration) error {
	if !p.started.CompareAndSwap(true, false) {
		return nil
	}

	_ = p.intake.Close()

	drained := make(chan struct{})
	go func() {
		p.workerWG.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(timeout):
		p.cancel()
		p.sweeperWG.Wait()
		return errors.WrapTransient(errors.ErrConnectionTimeout, "Pipeline", "Stop", "drain intake")
	}

	// flush before cancelling so the final aggregates still deliver
	p.emitAggregates(p.deps.Windows.Flush(), time.Now())

	p.cancel()
	p.sweeperWG.Wait()

	p.logger.Info("pipeline stopped",
		"accepted", p.accepted.Load(),
		"duplicates", p.duplicates.Load(),
		"shed", p.shed.Load())
	return nil
}

// Accepted returns the count of events that entered the pipeline.
func (p *Pipeline) Accepted() int64 { return p.accepted.Load() }

// Duplicates returns the count of events dropped by the idempotency check.
func (p *Pipeline) Duplicates() int64 { return p.duplicates.Load() }

// Shed returns the count of events shed by the intake overflow policy.
func (p *Pipeline) Shed() int64 { return p.shed.Load() }

// Healthy reports whether the pipeline is accepting work.
func (p *Pipeline) Healthy() bool { return p.started.Load() }
