// Package anomaly evaluates per-metric detection strategies against the
// event stream and emits alerts. Detector state is rolling and per
// (device, metric), capped by an LRU so a device churn cannot grow memory
// without bound.
package anomaly

import (
	"math"

	"github.com/c360/fieldstream/errors"
	"github.com/c360/fieldstream/event"
)

// Strategy scores one observation against rolling state and updates the
// state. Implementations are not safe for concurrent use; the Detector
// serializes access per key.
type Strategy interface {
	Name() string
	// Evaluate returns the verdict for value given the state so far, then
	// folds value into the state.
	Evaluate(state State, value float64) (event.Verdict, State)
	// NewState returns the zero rolling state.
	NewState() State
}

// State is a strategy's rolling per-key state.
type State interface{}

// minStddevFloor guards the z-score division when a metric has been
// constant so far.
const minStddevFloor = 1e-9

// zscoreState carries Welford accumulators.
type zscoreState struct {
	count int64
	mean  float64
	m2    float64
}

// ZScore flags values whose distance from the rolling mean exceeds
// threshold (warning) or critical standard deviations.
type ZScore struct {
	Threshold float64 // warning threshold in stddevs
	Critical  float64 // critical threshold in stddevs
	MinStddev float64 // absolute floor for the stddev divisor
	// observations needed before the strategy starts scoring
	WarmupCount int64
}

// NewZScore applies defaults: warn at 2 sigma, critical at 3, warmup 3.
func NewZScore(threshold, critical, minStddev float64) (*ZScore, error) {
	if threshold == 0 {
		threshold = 2
	}
	if critical == 0 {
		critical = 3
	}
	if threshold > critical {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "ZScore", "NewZScore",
			"threshold exceeds critical")
	}
	if minStddev <= 0 {
		minStddev = minStddevFloor
	}
	return &ZScore{Threshold: threshold, Critical: critical, MinStddev: minStddev, WarmupCount: 3}, nil
}

// Name implements Strategy.
func (z *ZScore) Name() string { return "zscore" }

// NewState implements Strategy.
func (z *ZScore) NewState() State { return zscoreState{} }

// Evaluate implements Strategy.
func (z *ZScore) Evaluate(state State, value float64) (event.Verdict, State) {
	s, _ := state.(zscoreState)

	verdict := event.Verdict{Severity: event.SeverityNone}
	if s.count >= z.WarmupCount {
		stddev := 0.0
		if s.count > 1 {
			stddev = math.Sqrt(s.m2 / float64(s.count))
		}
		if stddev < z.MinStddev {
			stddev = z.MinStddev
		}
		score := math.Abs(value-s.mean) / stddev
		verdict.Score = score
		switch {
		case score >= z.Critical:
			verdict.Severity = event.SeverityCritical
		case score >= z.Threshold:
			verdict.Severity = event.SeverityWarning
		}
	}

	s.count++
	delta := value - s.mean
	s.mean += delta / float64(s.count)
	s.m2 += delta * (value - s.mean)
	return verdict, s
}

// ewmaState carries the smoothed estimate.
type ewmaState struct {
	initialized bool
	smoothed    float64
}

// EWMA flags values that deviate from an exponentially weighted moving
// average by more than threshold (warning) or critical, in absolute units
// of the metric.
type EWMA struct {
	Alpha     float64 // smoothing factor in (0, 1]
	Threshold float64
	Critical  float64
}

// NewEWMA validates parameters. Critical defaults to twice the threshold.
func NewEWMA(alpha, threshold, critical float64) (*EWMA, error) {
	if alpha <= 0 || alpha > 1 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "EWMA", "NewEWMA",
			"alpha must be in (0, 1]")
	}
	if threshold <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "EWMA", "NewEWMA",
			"threshold must be positive")
	}
	if critical == 0 {
		critical = threshold * 2
	}
	if threshold > critical {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "EWMA", "NewEWMA",
			"threshold exceeds critical")
	}
	return &EWMA{Alpha: alpha, Threshold: threshold, Critical: critical}, nil
}

// Name implements Strategy.
func (e *EWMA) Name() string { return "ewma" }

// NewState implements Strategy.
func (e *EWMA) NewState() State { return ewmaState{} }

// Evaluate implements Strategy.
func (e *EWMA) Evaluate(state State, value float64) (event.Verdict, State) {
	s, _ := state.(ewmaState)

	verdict := event.Verdict{Severity: event.SeverityNone}
	if !s.initialized {
		s.initialized = true
		s.smoothed = value
		return verdict, s
	}

	score := math.Abs(value - s.smoothed)
	verdict.Score = score
	switch {
	case score >= e.Critical:
		verdict.Severity = event.SeverityCritical
	case score >= e.Threshold:
		verdict.Severity = event.SeverityWarning
	}

	s.smoothed = e.Alpha*value + (1-e.Alpha)*s.smoothed
	return verdict, s
}
