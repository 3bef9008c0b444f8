package anomaly

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fieldstream/event"
)

var base = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func reading(deviceID string, at time.Time, metric string, value float64) *event.Event {
	return &event.Event{
		DeviceID:  deviceID,
		Tenant:    "acme",
		Timestamp: at,
		Metrics:   map[string]float64{metric: value},
	}
}

// feed trains the detector with a stable series, one reading per second.
func feed(d *Detector, deviceID, metric string, values []float64) time.Time {
	at := base
	for _, v := range values {
		d.Evaluate(reading(deviceID, at, metric, v))
		at = at.Add(time.Second)
	}
	return at
}

func newZScoreDetector(t *testing.T, metric string) *Detector {
	t.Helper()
	z, err := NewZScore(2, 3, 0)
	require.NoError(t, err)
	d, err := NewDetector(map[string]Strategy{metric: z}, time.Minute, 0)
	require.NoError(t, err)
	return d
}

func TestZScore_ThreeSigmaIsCritical(t *testing.T) {
	d := newZScoreDetector(t, "temp_c")

	// stable series: mean 20, stddev 1 (alternating 19/21 around 20)
	series := []float64{19, 21, 19, 21, 19, 21, 19, 21, 19, 21}
	at := feed(d, "dev-1", "temp_c", series)

	alerts := d.Evaluate(reading("dev-1", at, "temp_c", 28))
	require.Len(t, alerts, 1)
	assert.Equal(t, event.SeverityCritical, alerts[0].Severity)
	assert.Equal(t, "zscore", alerts[0].Strategy)
	assert.Greater(t, alerts[0].Score, 3.0)
}

func TestZScore_OneSigmaIsQuiet(t *testing.T) {
	d := newZScoreDetector(t, "temp_c")
	at := feed(d, "dev-1", "temp_c", []float64{19, 21, 19, 21, 19, 21, 19, 21})

	alerts := d.Evaluate(reading("dev-1", at, "temp_c", 21))
	assert.Empty(t, alerts)
}

func TestZScore_ConstantSeriesGuard(t *testing.T) {
	d := newZScoreDetector(t, "temp_c")
	at := feed(d, "dev-1", "temp_c", []float64{20, 20, 20, 20, 20})

	// stddev is zero; the floor keeps the division finite and any
	// deviation scores far past critical
	alerts := d.Evaluate(reading("dev-1", at, "temp_c", 20.001))
	require.Len(t, alerts, 1)
	assert.Equal(t, event.SeverityCritical, alerts[0].Severity)
}

func TestZScore_Warmup(t *testing.T) {
	d := newZScoreDetector(t, "temp_c")

	// huge jump inside the warmup window must not alert
	alerts := d.Evaluate(reading("dev-1", base, "temp_c", 0))
	assert.Empty(t, alerts)
	alerts = d.Evaluate(reading("dev-1", base.Add(time.Second), "temp_c", 1000))
	assert.Empty(t, alerts)
}

func TestEWMA(t *testing.T) {
	e, err := NewEWMA(0.3, 5, 10)
	require.NoError(t, err)
	d, err := NewDetector(map[string]Strategy{"vibration": e}, time.Minute, 0)
	require.NoError(t, err)

	at := feed(d, "dev-1", "vibration", []float64{1, 1, 1, 1})

	t.Run("small drift quiet", func(t *testing.T) {
		alerts := d.Evaluate(reading("dev-1", at, "vibration", 3))
		assert.Empty(t, alerts)
	})

	t.Run("large jump critical", func(t *testing.T) {
		alerts := d.Evaluate(reading("dev-1", at.Add(time.Minute), "vibration", 50))
		require.Len(t, alerts, 1)
		assert.Equal(t, event.SeverityCritical, alerts[0].Severity)
		assert.Equal(t, "ewma", alerts[0].Strategy)
	})
}

func TestEWMA_SmoothingUpdate(t *testing.T) {
	e, err := NewEWMA(0.5, 100, 200)
	require.NoError(t, err)

	state := e.NewState()
	_, state = e.Evaluate(state, 10) // initializes to 10
	verdict, state := e.Evaluate(state, 20)
	assert.Equal(t, 10.0, verdict.Score, "scored against smoothed estimate")

	// smoothed is now 0.5*20 + 0.5*10 = 15
	verdict, _ = e.Evaluate(state, 15)
	assert.Zero(t, verdict.Score)
}

func TestAlertDedupPerWindow(t *testing.T) {
	d := newZScoreDetector(t, "temp_c")
	at := feed(d, "dev-1", "temp_c", []float64{19, 21, 19, 21, 19, 21, 19, 21})

	// first crossing alerts
	alerts := d.Evaluate(reading("dev-1", at, "temp_c", 40))
	require.Len(t, alerts, 1)
	require.Equal(t, event.SeverityCritical, alerts[0].Severity)

	// same window, same severity: suppressed
	alerts = d.Evaluate(reading("dev-1", at.Add(time.Second), "temp_c", 40))
	assert.Empty(t, alerts)

	// next window: alerts again
	alerts = d.Evaluate(reading("dev-1", at.Add(time.Minute), "temp_c", 80))
	assert.Len(t, alerts, 1)
}

func TestAlertReemitOnSeverityIncrease(t *testing.T) {
	z, err := NewZScore(2, 6, 0)
	require.NoError(t, err)
	d, err := NewDetector(map[string]Strategy{"temp_c": z}, time.Hour, 0)
	require.NoError(t, err)

	at := feed(d, "dev-1", "temp_c", []float64{19, 21, 19, 21, 19, 21, 19, 21})

	alerts := d.Evaluate(reading("dev-1", at, "temp_c", 24))
	require.Len(t, alerts, 1)
	require.Equal(t, event.SeverityWarning, alerts[0].Severity)

	// worse value in the same window escalates
	alerts = d.Evaluate(reading("dev-1", at.Add(time.Second), "temp_c", 60))
	require.Len(t, alerts, 1)
	assert.Equal(t, event.SeverityCritical, alerts[0].Severity)

	// de-escalation does not re-emit
	alerts = d.Evaluate(reading("dev-1", at.Add(2*time.Second), "temp_c", 24))
	assert.Empty(t, alerts)
}

func TestUnconfiguredMetricIgnored(t *testing.T) {
	d := newZScoreDetector(t, "temp_c")
	alerts := d.Evaluate(reading("dev-1", base, "humidity_pct", 9999))
	assert.Empty(t, alerts)
}

func TestLRUCapsTrackedKeys(t *testing.T) {
	z, err := NewZScore(2, 3, 0)
	require.NoError(t, err)
	d, err := NewDetector(map[string]Strategy{"temp_c": z}, time.Minute, 10)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		d.Evaluate(reading(fmt.Sprintf("dev-%d", i), base, "temp_c", 20))
	}
	assert.LessOrEqual(t, d.TrackedKeys(), 10)
}
