package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_IdentityKey(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	t.Run("producer eventId wins", func(t *testing.T) {
		e := &Event{DeviceID: "dev-1", EventID: "evt-42", Timestamp: ts}
		assert.Equal(t, "evt-42", e.IdentityKey())
	})

	t.Run("derived key is deterministic", func(t *testing.T) {
		a := &Event{DeviceID: "dev-1", Timestamp: ts}
		b := &Event{DeviceID: "dev-1", Timestamp: ts}
		assert.Equal(t, a.IdentityKey(), b.IdentityKey())
	})

	t.Run("derived key differs per device and time", func(t *testing.T) {
		a := &Event{DeviceID: "dev-1", Timestamp: ts}
		b := &Event{DeviceID: "dev-2", Timestamp: ts}
		c := &Event{DeviceID: "dev-1", Timestamp: ts.Add(time.Second)}
		assert.NotEqual(t, a.IdentityKey(), b.IdentityKey())
		assert.NotEqual(t, a.IdentityKey(), c.IdentityKey())
	})
}

func TestEvent_Clone(t *testing.T) {
	original := &Event{
		DeviceID:  "dev-1",
		Tenant:    "acme",
		Timestamp: time.Now().UTC(),
		Metrics:   map[string]float64{"temp_c": 23.5},
		Tags:      map[string]string{"site": "plant-7"},
	}

	clone := original.Clone()
	clone.Metrics["temp_c"] = 99
	clone.Tags["site"] = "elsewhere"

	assert.Equal(t, 23.5, original.Metrics["temp_c"], "clone must not alias metrics")
	assert.Equal(t, "plant-7", original.Tags["site"], "clone must not alias tags")
}

func TestEvent_CheckEnvelope(t *testing.T) {
	ts := time.Now().UTC()
	tests := []struct {
		name    string
		event   Event
		wantErr bool
	}{
		{"valid", Event{DeviceID: "d", Timestamp: ts, Metrics: map[string]float64{"m": 1}}, false},
		{"missing deviceId", Event{Timestamp: ts, Metrics: map[string]float64{"m": 1}}, true},
		{"missing ts", Event{DeviceID: "d", Metrics: map[string]float64{"m": 1}}, true},
		{"missing metrics", Event{DeviceID: "d", Timestamp: ts}, true},
		{"empty metrics", Event{DeviceID: "d", Timestamp: ts, Metrics: map[string]float64{}}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.event.CheckEnvelope()
			if test.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEvent_WireFormat(t *testing.T) {
	raw := `{"deviceId":"dev-1","ts":"2026-03-14T09:26:53Z","metrics":{"temp_c":23.5},"tags":{"site":"plant-7"},"eventId":"evt-1"}`

	var e Event
	require.NoError(t, json.Unmarshal([]byte(raw), &e))
	assert.Equal(t, "dev-1", e.DeviceID)
	assert.Equal(t, "evt-1", e.EventID)
	assert.Equal(t, 23.5, e.Metrics["temp_c"])
	assert.Equal(t, 2026, e.Timestamp.Year())
}

func TestAck_CheckEnvelope(t *testing.T) {
	assert.NoError(t, (&Ack{CmdID: "c1", Status: AckOK}).CheckEnvelope())
	assert.NoError(t, (&Ack{CmdID: "c1", Status: AckError}).CheckEnvelope())
	assert.Error(t, (&Ack{Status: AckOK}).CheckEnvelope())
	assert.Error(t, (&Ack{CmdID: "c1", Status: "maybe"}).CheckEnvelope())
}

func TestSeverity_RoundTrip(t *testing.T) {
	for _, s := range []Severity{SeverityNone, SeverityWarning, SeverityCritical} {
		data, err := json.Marshal(s)
		require.NoError(t, err)

		var back Severity
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, s, back)
	}
}

func TestRecord_PayloadAndAccessors(t *testing.T) {
	agg := &Aggregate{
		DeviceID: "dev-1",
		Metric:   "temp_c",
		Start:    time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		End:      time.Date(2026, 3, 14, 9, 1, 0, 0, time.UTC),
		Count:    3,
		Mean:     20,
	}
	rec := NewAggregateRecord(agg, "trace-1")

	assert.Equal(t, KindAggregate, rec.Kind)
	assert.Equal(t, "dev-1", rec.DeviceID())

	payload, err := rec.Payload()
	require.NoError(t, err)

	var back Aggregate
	require.NoError(t, json.Unmarshal(payload, &back))
	assert.Equal(t, int64(3), back.Count)
	assert.Equal(t, 20.0, back.Mean)
}

func TestAggregate_WindowKey(t *testing.T) {
	a := &Aggregate{
		DeviceID: "dev-1",
		Metric:   "temp_c",
		Start:    time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
	b := &Aggregate{
		DeviceID: "dev-1",
		Metric:   "temp_c",
		Start:    time.Date(2026, 3, 14, 9, 1, 0, 0, time.UTC),
	}
	assert.NotEqual(t, a.WindowKey(), b.WindowKey())
}
