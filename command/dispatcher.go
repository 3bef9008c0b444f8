// Package command sends outbound device commands and correlates the
// acknowledgements that come back on the ack stream. Commands that are
// never acknowledged within the TTL are counted and logged, not retried;
// reissuing a device command is an operator decision.
package command

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/fieldstream/errors"
	"github.com/c360/fieldstream/event"
)

// Publisher abstracts the outbound transport. *natsclient.Client
// satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Config controls the subject space and the acknowledgement deadline.
type Config struct {
	Subject string        // subject prefix; commands go to <Subject>.<deviceId>
	AckTTL  time.Duration // how long to wait for a device to acknowledge
}

// DispatcherDeps contains the dispatcher's dependencies.
type DispatcherDeps struct {
	Publisher Publisher
	Logger    *slog.Logger
}

type pendingCmd struct {
	cmd       *event.Command
	sentAt    time.Time
	expiresAt time.Time
}

// Dispatcher publishes commands and tracks them until acknowledged or
// expired.
type Dispatcher struct {
	cfg       Config
	publisher Publisher
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingCmd

	started   atomic.Bool
	acked     atomic.Int64
	failed    atomic.Int64
	timedOut  atomic.Int64
	unmatched atomic.Int64

	shutdown chan struct{}
	done     chan struct{}
}

// NewDispatcher creates the command dispatcher.
func NewDispatcher(deps DispatcherDeps, cfg Config) (*Dispatcher, error) {
	if deps.Publisher == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Dispatcher", "NewDispatcher", "publisher required")
	}
	if cfg.Subject == "" {
		cfg.Subject = "cmd"
	}
	if cfg.AckTTL <= 0 {
		cfg.AckTTL = 30 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "command")
	}
	return &Dispatcher{
		cfg:       cfg,
		publisher: deps.Publisher,
		logger:    logger,
		pending:   make(map[string]*pendingCmd),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Name implements component.Lifecycle.
func (d *Dispatcher) Name() string { return "command" }

// Start implements component.Lifecycle.
func (d *Dispatcher) Start(_ context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Dispatcher", "Start", "start")
	}
	go d.expireLoop()
	return nil
}

// Stop implements component.Lifecycle. Commands still pending are
// abandoned; their acks will arrive as unmatched if the devices answer
// after shutdown.
func (d *Dispatcher) Stop(_ time.Duration) error {
	if !d.started.CompareAndSwap(true, false) {
		return nil
	}
	close(d.shutdown)
	<-d.done
	return nil
}

// Send publishes a command to <subject>.<deviceId> and tracks it until
// the device acknowledges or the TTL expires. A missing cmdId is filled
// with a fresh UUID; a missing timestamp with now.
func (d *Dispatcher) Send(_ context.Context, cmd *event.Command) error {
	if cmd.CmdID == "" {
		cmd.CmdID = uuid.NewString()
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now().UTC()
	}
	if err := cmd.CheckEnvelope(); err != nil {
		return err
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return errors.WrapInvalid(err, "Dispatcher", "Send", "marshal "+cmd.CmdID)
	}

	subject := d.cfg.Subject + "." + cmd.DeviceID
	if err := d.publisher.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "Dispatcher", "Send", "publish "+subject)
	}

	now := time.Now()
	d.mu.Lock()
	d.pending[cmd.CmdID] = &pendingCmd{
		cmd:       cmd,
		sentAt:    now,
		expiresAt: now.Add(d.cfg.AckTTL),
	}
	d.mu.Unlock()

	d.logger.Info("command sent",
		"cmdId", cmd.CmdID,
		"device", cmd.DeviceID,
		"action", cmd.Action)
	return nil
}

// HandleAck correlates an acknowledgement with its pending command. Acks
// for unknown or expired commands are counted as unmatched.
func (d *Dispatcher) HandleAck(ack *event.Ack) {
	d.mu.Lock()
	p, ok := d.pending[ack.CmdID]
	if ok {
		delete(d.pending, ack.CmdID)
	}
	d.mu.Unlock()

	if !ok {
		d.unmatched.Add(1)
		d.logger.Warn("unmatched ack", "cmdId", ack.CmdID, "device", ack.DeviceID)
		return
	}

	rtt := time.Since(p.sentAt)
	switch ack.Status {
	case event.AckOK:
		d.acked.Add(1)
		d.logger.Info("command acknowledged",
			"cmdId", ack.CmdID,
			"device", p.cmd.DeviceID,
			"rtt", rtt)
	default:
		d.failed.Add(1)
		d.logger.Warn("command failed on device",
			"cmdId", ack.CmdID,
			"device", p.cmd.DeviceID,
			"details", ack.Details,
			"rtt", rtt)
	}
}

func (d *Dispatcher) expireLoop() {
	defer close(d.done)

	interval := d.cfg.AckTTL / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.shutdown:
			return
		case now := <-ticker.C:
			d.expire(now)
		}
	}
}

func (d *Dispatcher) expire(now time.Time) {
	var expired []*pendingCmd
	d.mu.Lock()
	for id, p := range d.pending {
		if now.After(p.expiresAt) {
			delete(d.pending, id)
			expired = append(expired, p)
		}
	}
	d.mu.Unlock()

	for _, p := range expired {
		d.timedOut.Add(1)
		d.logger.Warn("command ack timeout",
			"cmdId", p.cmd.CmdID,
			"device", p.cmd.DeviceID,
			"action", p.cmd.Action,
			"waited", now.Sub(p.sentAt))
	}
}

// Pending returns the number of commands awaiting acknowledgement.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Acked returns the count of successfully acknowledged commands.
func (d *Dispatcher) Acked() int64 { return d.acked.Load() }

// Failed returns the count of commands the device reported as failed.
func (d *Dispatcher) Failed() int64 { return d.failed.Load() }

// TimedOut returns the count of commands whose ack never arrived.
func (d *Dispatcher) TimedOut() int64 { return d.timedOut.Load() }

// Unmatched returns the count of acks with no pending command.
func (d *Dispatcher) Unmatched() int64 { return d.unmatched.Load() }
