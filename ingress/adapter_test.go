package ingress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fieldstream/errors"
	"github.com/c360/fieldstream/event"
)

func TestAdapter_DecodeTelemetry(t *testing.T) {
	a := NewAdapter("nats")
	payload := []byte(`{"deviceId":"dev-1","ts":"2026-03-14T09:26:53Z","metrics":{"temp_c":23.5}}`)

	msg, err := a.Decode("telemetry.acme.dev-1", payload)
	require.NoError(t, err)

	assert.Equal(t, event.KindEvent, msg.Kind)
	assert.Equal(t, "nats", msg.Source)
	assert.Equal(t, "acme", msg.Event.Tenant, "tenant comes from the subject")
	assert.Equal(t, "dev-1", msg.Event.DeviceID)
	assert.Equal(t, 23.5, msg.Event.Metrics["temp_c"])
	assert.NotNil(t, msg.Event.Tags)
}

func TestAdapter_DecodeState(t *testing.T) {
	a := NewAdapter("nats")
	payload := []byte(`{"deviceId":"dev-2","ts":"2026-03-14T09:26:53Z","metrics":{"battery_pct":87}}`)

	msg, err := a.Decode("state.dev-2", payload)
	require.NoError(t, err)
	assert.Equal(t, "state", msg.Event.Tags["stream"])
}

func TestAdapter_DecodeAck(t *testing.T) {
	a := NewAdapter("nats")

	msg, err := a.Decode("cmd.ack.dev-3", []byte(`{"cmdId":"c-9","status":"ok"}`))
	require.NoError(t, err)
	assert.Equal(t, event.KindAck, msg.Kind)
	assert.Equal(t, "c-9", msg.Ack.CmdID)
	assert.Equal(t, "dev-3", msg.Ack.DeviceID, "device filled from subject")
}

func TestAdapter_DecodeFailures(t *testing.T) {
	a := NewAdapter("nats")
	good := `{"deviceId":"dev-1","ts":"2026-03-14T09:26:53Z","metrics":{"m":1}}`

	tests := []struct {
		name  string
		topic string
		data  string
	}{
		{"unknown route", "weather.acme.dev-1", good},
		{"not json", "telemetry.acme.dev-1", `{{{`},
		{"missing device", "telemetry.acme.dev-1", `{"ts":"2026-03-14T09:26:53Z","metrics":{"m":1}}`},
		{"missing metrics", "telemetry.acme.dev-1", `{"deviceId":"dev-1","ts":"2026-03-14T09:26:53Z"}`},
		{"device mismatch", "telemetry.acme.dev-9", good},
		{
			"tenant mismatch", "telemetry.acme.dev-1",
			`{"deviceId":"dev-1","tenant":"rival","ts":"2026-03-14T09:26:53Z","metrics":{"m":1}}`,
		},
		{"short telemetry subject", "telemetry.acme", good},
		{"bad ack", "cmd.ack.dev-1", `{"status":"ok"}`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := a.Decode(test.topic, []byte(test.data))
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err), "decode failures are permanent: %v", err)
		})
	}
}

func TestAdapter_TimestampNormalizedToUTC(t *testing.T) {
	a := NewAdapter("http")
	msg, err := a.DecodeEvent([]byte(`{"deviceId":"d","ts":"2026-03-14T10:26:53+01:00","metrics":{"m":1}}`))
	require.NoError(t, err)
	assert.Equal(t, "UTC", msg.Event.Timestamp.Location().String())
	assert.Equal(t, 9, msg.Event.Timestamp.Hour())
}
