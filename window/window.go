// Package window computes per-(device, metric) statistical aggregates over
// event-time windows. Windows only move forward: once a window for a key
// has closed, events that map into it or earlier are dropped as late.
package window

import (
	"sync"
	"time"

	"github.com/c360/fieldstream/errors"
	"github.com/c360/fieldstream/event"
)

// Kind selects the windowing scheme.
type Kind string

// Supported window kinds
const (
	Tumbling Kind = "tumbling"
	Sliding  Kind = "sliding"
)

// Config configures an Aggregator.
type Config struct {
	Kind   Kind
	Size   time.Duration
	Stride time.Duration // sliding only; tumbling uses Size
	Grace  time.Duration // how long past end a window accepts stragglers
}

// state is one open window's accumulator. Mean and variance use Welford's
// streaming update so values never need to be retained.
type state struct {
	deviceID string
	tenant   string
	metric   string
	start    time.Time
	end      time.Time

	count int64
	mean  float64
	m2    float64

	closeAt  time.Time
	extended bool // the single allowed close-deadline extension was used
}

func (w *state) observe(value float64) {
	w.count++
	delta := value - w.mean
	w.mean += delta / float64(w.count)
	w.m2 += delta * (value - w.mean)
}

func (w *state) aggregate() *event.Aggregate {
	variance := 0.0
	if w.count > 1 {
		variance = w.m2 / float64(w.count)
	}
	return &event.Aggregate{
		DeviceID: w.deviceID,
		Tenant:   w.tenant,
		Metric:   w.metric,
		Start:    w.start,
		End:      w.end,
		Count:    w.count,
		Mean:     w.mean,
		Variance: variance,
	}
}

// Aggregator maintains open windows for the keys it observes. It is safe
// for concurrent use, though the pipeline runs one per shard. Time is
// passed in by the caller so tests control the clock.
type Aggregator struct {
	cfg Config

	mu   sync.Mutex
	open map[string]*state // keyed by deviceID|metric|start

	// highest closed window start per deviceID|metric; events mapping to
	// windows at or before this start are late
	closedThrough map[string]time.Time

	lateDropped int64
}

// NewAggregator validates the config and creates an aggregator.
func NewAggregator(cfg Config) (*Aggregator, error) {
	if cfg.Size <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Aggregator", "NewAggregator",
			"window size must be positive")
	}
	switch cfg.Kind {
	case Tumbling:
		cfg.Stride = cfg.Size
	case Sliding:
		if cfg.Stride <= 0 || cfg.Stride > cfg.Size {
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Aggregator", "NewAggregator",
				"sliding stride must be in (0, size]")
		}
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Aggregator", "NewAggregator",
			"unknown kind "+string(cfg.Kind))
	}
	if cfg.Grace < 0 {
		cfg.Grace = 0
	}
	return &Aggregator{
		cfg:           cfg,
		open:          make(map[string]*state),
		closedThrough: make(map[string]time.Time),
	}, nil
}

// windowStarts returns the starts of every window the timestamp maps into.
func (a *Aggregator) windowStarts(ts time.Time) []time.Time {
	latest := ts.Truncate(a.cfg.Stride)
	if a.cfg.Kind == Tumbling {
		return []time.Time{latest}
	}

	var starts []time.Time
	for start := latest; start.Add(a.cfg.Size).After(ts); start = start.Add(-a.cfg.Stride) {
		starts = append(starts, start)
	}
	return starts
}

// Observe folds every metric of the event into its windows. Returns the
// number of (metric, window) observations dropped as late.
func (a *Aggregator) Observe(e *event.Event, now time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	late := 0
	for metric, value := range e.Metrics {
		keyPrefix := e.DeviceID + "|" + metric
		for _, start := range a.windowStarts(e.Timestamp) {
			if closed, ok := a.closedThrough[keyPrefix]; ok && !start.After(closed) {
				late++
				a.lateDropped++
				continue
			}

			key := keyPrefix + "|" + start.Format(time.RFC3339Nano)
			w, ok := a.open[key]
			if !ok {
				w = &state{
					deviceID: e.DeviceID,
					tenant:   e.Tenant,
					metric:   metric,
					start:    start,
					end:      start.Add(a.cfg.Size),
				}
				w.closeAt = w.end.Add(a.cfg.Grace)
				a.open[key] = w
			}

			// A straggler arriving after the window's end may extend the
			// close deadline once, so a burst of late-but-in-grace events
			// is captured without holding the window open forever.
			if now.After(w.end) && !w.extended {
				w.extended = true
				w.closeAt = now.Add(a.cfg.Grace)
			}

			w.observe(value)
		}
	}
	return late
}

// Sweep closes every window whose deadline has passed and returns the
// emitted aggregates. Closed windows are retired; the key cannot reopen
// them.
func (a *Aggregator) Sweep(now time.Time) []*event.Aggregate {
	a.mu.Lock()
	defer a.mu.Unlock()

	var closed []*event.Aggregate
	for key, w := range a.open {
		if now.Before(w.closeAt) {
			continue
		}
		closed = append(closed, w.aggregate())
		a.retireLocked(key, w)
	}
	return closed
}

// Flush closes all open windows regardless of deadline, for shutdown.
func (a *Aggregator) Flush() []*event.Aggregate {
	a.mu.Lock()
	defer a.mu.Unlock()

	var closed []*event.Aggregate
	for key, w := range a.open {
		closed = append(closed, w.aggregate())
		a.retireLocked(key, w)
	}
	return closed
}

func (a *Aggregator) retireLocked(key string, w *state) {
	delete(a.open, key)
	keyPrefix := w.deviceID + "|" + w.metric
	if prev, ok := a.closedThrough[keyPrefix]; !ok || w.start.After(prev) {
		a.closedThrough[keyPrefix] = w.start
	}
}

// OpenWindows returns the number of currently open windows.
func (a *Aggregator) OpenWindows() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.open)
}

// LateDropped returns the total late-dropped observation count.
func (a *Aggregator) LateDropped() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lateDropped
}
