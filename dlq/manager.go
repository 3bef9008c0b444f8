package dlq

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/fieldstream/errors"
	"github.com/c360/fieldstream/event"
	"github.com/c360/fieldstream/metric"
	"github.com/c360/fieldstream/pkg/retry"
)

// Dead-letter reasons.
const (
	ReasonParse      = "parse"
	ReasonValidation = "validation"
	ReasonTransform  = "transform"
	ReasonSink       = "sink"
	ReasonMaxRetries = "max_retries"
)

// DeliverFunc writes a record to the named sink. The manager calls it for
// each scheduled retry.
type DeliverFunc func(ctx context.Context, rec event.Record, sink string) error

// ResubmitFunc reinjects a replayed record at the head of the pipeline.
type ResubmitFunc func(ctx context.Context, rec event.Record) error

// ManagerDeps contains the dependencies for the retry/DLQ manager.
type ManagerDeps struct {
	Store    Store
	Logger   *slog.Logger
	Core     *metric.CoreMetrics
	Deliver  DeliverFunc
	Resubmit ResubmitFunc
}

// Manager owns the failure path of the pipeline. Invalid records
// dead-letter immediately; transient sink failures are retried with
// exponential backoff until they succeed or exhaust the attempt budget,
// at which point the record dead-letters with the attempt count it
// accumulated.
type Manager struct {
	policy retry.Config
	store  Store
	logger *slog.Logger
	core   *metric.CoreMetrics

	deliver  DeliverFunc
	resubmit ResubmitFunc
	sched    *scheduler

	started      atomic.Bool
	retried      atomic.Int64
	recovered    atomic.Int64
	deadLettered atomic.Int64
}

// NewManager creates the manager. Deliver is required; Resubmit may be
// nil if replay is not wired.
func NewManager(deps ManagerDeps, policy retry.Config) (*Manager, error) {
	if deps.Store == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Manager", "NewManager", "store required")
	}
	if deps.Deliver == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Manager", "NewManager", "deliver func required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "dlq")
	}
	if policy.MaxAttempts <= 0 {
		policy = retry.DefaultConfig()
	}

	m := &Manager{
		policy:   policy,
		store:    deps.Store,
		logger:   logger,
		core:     deps.Core,
		deliver:  deps.Deliver,
		resubmit: deps.Resubmit,
	}
	m.sched = newScheduler(m.redeliver)
	return m, nil
}

// Name implements component.Lifecycle.
func (m *Manager) Name() string { return "dlq" }

// Start implements component.Lifecycle.
func (m *Manager) Start(_ context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Manager", "Start", "start")
	}
	m.sched.start()
	return nil
}

// Stop implements component.Lifecycle. Pending retries are abandoned;
// persistent stores survive restarts, the in-flight schedule does not.
func (m *Manager) Stop(_ time.Duration) error {
	if !m.started.CompareAndSwap(true, false) {
		return nil
	}
	m.sched.stop()
	return m.store.Close()
}

// SetResubmit wires the replay target after construction. The pipeline
// and manager reference each other, so one side is attached late.
func (m *Manager) SetResubmit(fn ResubmitFunc) {
	m.resubmit = fn
}

// HandleSinkFailure processes a failed sink write. Invalid failures
// dead-letter immediately; transient ones are scheduled for redelivery
// to the failing sink. The caller has already made one attempt.
func (m *Manager) HandleSinkFailure(ctx context.Context, rec event.Record, sink string, cause error) {
	if !errors.IsTransient(cause) {
		m.DeadLetter(ctx, rec, ReasonSink, 1, cause)
		return
	}
	m.scheduleRetry(&task{
		rec:         rec,
		sink:        sink,
		attempt:     1,
		lastErr:     cause,
		firstSeenAt: time.Now().UTC(),
	})
}

func (m *Manager) scheduleRetry(t *task) {
	if t.attempt >= m.policy.MaxAttempts {
		m.deadLetterAt(context.Background(), t.rec, ReasonMaxRetries, t.attempt, t.firstSeenAt, t.lastErr)
		return
	}
	delay := m.policy.Delay(t.attempt)
	t.dueAt = time.Now().Add(delay)
	m.retried.Add(1)
	m.logger.Debug("retry scheduled",
		"sink", t.sink,
		"attempt", t.attempt,
		"delay", delay,
		"device", t.rec.DeviceID())
	m.sched.schedule(t)
}

// redeliver is the scheduler fire callback.
func (m *Manager) redeliver(t *task) {
	err := m.deliver(context.Background(), t.rec, t.sink)
	t.attempt++
	if err == nil {
		m.recovered.Add(1)
		m.logger.Info("redelivery succeeded",
			"sink", t.sink,
			"attempts", t.attempt,
			"device", t.rec.DeviceID())
		return
	}
	if !errors.IsTransient(err) {
		m.deadLetterAt(context.Background(), t.rec, ReasonSink, t.attempt, t.firstSeenAt, err)
		return
	}
	t.lastErr = err
	m.scheduleRetry(t)
}

// DeadLetter quarantines a record envelope that failed just now.
func (m *Manager) DeadLetter(ctx context.Context, rec event.Record, reason string, attempts int, cause error) {
	m.deadLetterAt(ctx, rec, reason, attempts, time.Now().UTC(), cause)
}

// deadLetterAt quarantines a record envelope. For records that went
// through the retry schedule, firstSeen is the time of the first failed
// delivery, not the time the attempt budget ran out.
func (m *Manager) deadLetterAt(ctx context.Context, rec event.Record, reason string, attempts int, firstSeen time.Time, cause error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		m.logger.Error("dead-letter marshal failed", "reason", reason, "error", err)
		return
	}
	m.add(ctx, &event.DLQRecord{
		ID:          uuid.NewString(),
		Record:      payload,
		Reason:      reason,
		Attempts:    attempts,
		FirstSeenAt: firstSeen,
		LastError:   errString(cause),
		TraceID:     rec.TraceID,
	})
}

// DeadLetterRaw quarantines an undecodable payload. Non-JSON bytes are
// stored as a JSON string so the stored record stays machine-readable.
func (m *Manager) DeadLetterRaw(ctx context.Context, payload []byte, traceID, reason string, cause error) {
	raw := json.RawMessage(payload)
	if !json.Valid(payload) {
		encoded, err := json.Marshal(string(payload))
		if err != nil {
			m.logger.Error("dead-letter encode failed", "reason", reason, "error", err)
			return
		}
		raw = encoded
	}
	m.add(ctx, &event.DLQRecord{
		ID:          uuid.NewString(),
		Record:      raw,
		Reason:      reason,
		Attempts:    1,
		FirstSeenAt: time.Now().UTC(),
		LastError:   errString(cause),
		TraceID:     traceID,
	})
}

func (m *Manager) add(ctx context.Context, rec *event.DLQRecord) {
	if err := m.store.Add(ctx, rec); err != nil {
		m.logger.Error("dead-letter store failed", "id", rec.ID, "reason", rec.Reason, "error", err)
		return
	}
	m.deadLettered.Add(1)
	if m.core != nil {
		m.core.RecordDLQ(rec.Reason)
	}
	m.logger.Warn("record dead-lettered",
		"id", rec.ID,
		"reason", rec.Reason,
		"attempts", rec.Attempts,
		"error", rec.LastError)
}

// Replay resubmits a quarantined record to the head of the pipeline and
// removes it from the store on success.
func (m *Manager) Replay(ctx context.Context, id string) error {
	if m.resubmit == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Manager", "Replay", "no resubmit target")
	}

	stored, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}

	var rec event.Record
	if err := json.Unmarshal(stored.Record, &rec); err != nil {
		return errors.WrapInvalid(err, "Manager", "Replay", "decode "+id)
	}
	if rec.Kind == "" {
		return errors.WrapInvalid(errors.ErrMalformedPayload, "Manager", "Replay", "record "+id+" is not replayable")
	}

	if err := m.resubmit(ctx, rec); err != nil {
		return err
	}
	if err := m.store.Remove(ctx, id); err != nil {
		return err
	}
	m.logger.Info("record replayed", "id", id, "reason", stored.Reason)
	return nil
}

// List exposes quarantined records for the control plane, oldest first.
func (m *Manager) List(ctx context.Context, limit int) ([]*event.DLQRecord, error) {
	return m.store.List(ctx, limit)
}

// Get exposes a single quarantined record for the control plane.
func (m *Manager) Get(ctx context.Context, id string) (*event.DLQRecord, error) {
	return m.store.Get(ctx, id)
}

// Size returns the number of quarantined records.
func (m *Manager) Size() int { return m.store.Size() }

// Pending returns the number of scheduled retries.
func (m *Manager) Pending() int { return m.sched.pending() }

// Retried returns the number of retry deliveries scheduled.
func (m *Manager) Retried() int64 { return m.retried.Load() }

// Recovered returns the number of records that succeeded on retry.
func (m *Manager) Recovered() int64 { return m.recovered.Load() }

// DeadLettered returns the number of records quarantined.
func (m *Manager) DeadLettered() int64 { return m.deadLettered.Load() }

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
