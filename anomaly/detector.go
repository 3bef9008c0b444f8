package anomaly

import (
	"sync"
	"time"

	"github.com/c360/fieldstream/errors"
	"github.com/c360/fieldstream/event"
	"github.com/c360/fieldstream/pkg/cache"
)

// keyState pairs a strategy's rolling state with alert deduplication for
// the key's current window.
type keyState struct {
	rolling State

	// alert dedup: one alert per (device, metric, window), re-emitted only
	// when severity increases inside the same window
	alertWindow   time.Time
	alertSeverity event.Severity
}

// Detector runs the configured strategy for each metric and deduplicates
// alerts per window.
type Detector struct {
	strategies map[string]Strategy // by metric name
	windowSize time.Duration

	mu    sync.Mutex
	state *cache.LRUCache[*keyState]
}

// DefaultMaxKeys caps detector state when the config does not.
const DefaultMaxKeys = 100000

// NewDetector creates a detector. strategies maps metric name to the
// strategy evaluating it; metrics without an entry are not scored.
func NewDetector(strategies map[string]Strategy, windowSize time.Duration, maxKeys int) (*Detector, error) {
	if windowSize <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Detector", "NewDetector",
			"window size must be positive")
	}
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}

	state, err := cache.NewLRU[*keyState](maxKeys)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Detector", "NewDetector", "create state cache")
	}
	return &Detector{
		strategies: strategies,
		windowSize: windowSize,
		state:      state,
	}, nil
}

// Evaluate scores every configured metric on the event and returns the
// alerts that cross the dedup gate.
func (d *Detector) Evaluate(e *event.Event) []*event.Alert {
	d.mu.Lock()
	defer d.mu.Unlock()

	windowStart := e.Timestamp.Truncate(d.windowSize)

	var alerts []*event.Alert
	for metric, value := range e.Metrics {
		strategy, ok := d.strategies[metric]
		if !ok {
			continue
		}

		key := e.DeviceID + "|" + metric
		ks, ok := d.state.Get(key)
		if !ok {
			ks = &keyState{rolling: strategy.NewState()}
		}

		verdict, next := strategy.Evaluate(ks.rolling, value)
		ks.rolling = next

		if alert := d.gate(ks, verdict, windowStart); alert {
			alerts = append(alerts, &event.Alert{
				DeviceID: e.DeviceID,
				Tenant:   e.Tenant,
				Metric:   metric,
				WindowKey: e.DeviceID + "|" + metric + "|" +
					windowStart.Format(time.RFC3339),
				Severity: verdict.Severity,
				Score:    verdict.Score,
				Value:    value,
				Strategy: strategy.Name(),
				At:       e.Timestamp,
			})
		}

		_, _ = d.state.Set(key, ks)
	}
	return alerts
}

// gate decides whether a verdict becomes an alert. A new window resets the
// dedup state; within a window only a severity increase re-emits.
func (d *Detector) gate(ks *keyState, verdict event.Verdict, windowStart time.Time) bool {
	if !windowStart.Equal(ks.alertWindow) {
		ks.alertWindow = windowStart
		ks.alertSeverity = event.SeverityNone
	}
	if verdict.Severity <= ks.alertSeverity {
		return false
	}
	ks.alertSeverity = verdict.Severity
	return verdict.Severity > event.SeverityNone
}

// TrackedKeys returns the number of keys with live state.
func (d *Detector) TrackedKeys() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.Size()
}
