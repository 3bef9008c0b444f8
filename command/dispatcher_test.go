package command

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fieldstream/event"
)

type capturePublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (p *capturePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func (p *capturePublisher) last() (string, []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.subjects) == 0 {
		return "", nil
	}
	return p.subjects[len(p.subjects)-1], p.payloads[len(p.payloads)-1]
}

func newTestDispatcher(t *testing.T, pub Publisher, ackTTL time.Duration) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(DispatcherDeps{Publisher: pub}, Config{Subject: "cmd", AckTTL: ackTTL})
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() { _ = d.Stop(time.Second) })
	return d
}

func TestDispatcher_SendPublishesToDeviceSubject(t *testing.T) {
	pub := &capturePublisher{}
	d := newTestDispatcher(t, pub, time.Minute)

	cmd := &event.Command{DeviceID: "dev-1", Action: "reboot"}
	require.NoError(t, d.Send(context.Background(), cmd))

	subject, payload := pub.last()
	assert.Equal(t, "cmd.dev-1", subject)

	var sent event.Command
	require.NoError(t, json.Unmarshal(payload, &sent))
	assert.NotEmpty(t, sent.CmdID, "cmdId filled when producer omits it")
	assert.Equal(t, "reboot", sent.Action)
	assert.False(t, sent.Timestamp.IsZero())
	assert.Equal(t, 1, d.Pending())
}

func TestDispatcher_AckResolvesPending(t *testing.T) {
	pub := &capturePublisher{}
	d := newTestDispatcher(t, pub, time.Minute)

	cmd := &event.Command{CmdID: "cmd-1", DeviceID: "dev-1", Action: "set_rate"}
	require.NoError(t, d.Send(context.Background(), cmd))

	d.HandleAck(&event.Ack{CmdID: "cmd-1", DeviceID: "dev-1", Status: event.AckOK})

	assert.Equal(t, 0, d.Pending())
	assert.Equal(t, int64(1), d.Acked())
	assert.Equal(t, int64(0), d.Failed())
}

func TestDispatcher_ErrorAckCountsAsFailed(t *testing.T) {
	pub := &capturePublisher{}
	d := newTestDispatcher(t, pub, time.Minute)

	require.NoError(t, d.Send(context.Background(), &event.Command{CmdID: "cmd-2", DeviceID: "dev-1", Action: "calibrate"}))
	d.HandleAck(&event.Ack{CmdID: "cmd-2", Status: event.AckError, Details: "sensor busy"})

	assert.Equal(t, int64(1), d.Failed())
	assert.Equal(t, int64(0), d.Acked())
	assert.Equal(t, 0, d.Pending())
}

func TestDispatcher_UnmatchedAck(t *testing.T) {
	d := newTestDispatcher(t, &capturePublisher{}, time.Minute)

	d.HandleAck(&event.Ack{CmdID: "never-sent", Status: event.AckOK})
	assert.Equal(t, int64(1), d.Unmatched())
}

func TestDispatcher_AckTimeout(t *testing.T) {
	pub := &capturePublisher{}
	d := newTestDispatcher(t, pub, 20*time.Millisecond)

	require.NoError(t, d.Send(context.Background(), &event.Command{CmdID: "cmd-3", DeviceID: "dev-1", Action: "reboot"}))
	require.Equal(t, 1, d.Pending())

	require.Eventually(t, func() bool { return d.TimedOut() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, d.Pending())

	// a straggler ack after expiry is unmatched, not double-counted
	d.HandleAck(&event.Ack{CmdID: "cmd-3", Status: event.AckOK})
	assert.Equal(t, int64(1), d.Unmatched())
	assert.Equal(t, int64(0), d.Acked())
}

func TestDispatcher_SendValidation(t *testing.T) {
	d := newTestDispatcher(t, &capturePublisher{}, time.Minute)

	err := d.Send(context.Background(), &event.Command{DeviceID: "dev-1"})
	assert.Error(t, err, "action required")

	err = d.Send(context.Background(), &event.Command{Action: "reboot"})
	assert.Error(t, err, "deviceId required")
	assert.Equal(t, 0, d.Pending())
}
