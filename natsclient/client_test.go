package natsclient

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	t.Run("requires url", func(t *testing.T) {
		_, err := NewClient("")
		assert.Error(t, err)
	})

	t.Run("defaults", func(t *testing.T) {
		c, err := NewClient("nats://localhost:4222")
		require.NoError(t, err)
		assert.Equal(t, "fieldstream", c.name)
		assert.Equal(t, -1, c.maxReconnects)
		assert.Equal(t, 2*time.Second, c.reconnectWait)
		assert.Equal(t, StatusDisconnected, c.Status())
	})

	t.Run("options applied", func(t *testing.T) {
		c, err := NewClient("nats://localhost:4222",
			WithName("ingress-1"),
			WithLogger(slog.Default()),
			WithMaxReconnects(10),
			WithReconnectWait(500*time.Millisecond),
			WithTimeout(time.Second),
			WithDrainTimeout(5*time.Second),
		)
		require.NoError(t, err)
		assert.Equal(t, "ingress-1", c.name)
		assert.Equal(t, 10, c.maxReconnects)
		assert.Equal(t, 500*time.Millisecond, c.reconnectWait)
		assert.Equal(t, time.Second, c.timeout)
		assert.Equal(t, 5*time.Second, c.drainTimeout)
	})
}

func TestConnectionStatus_String(t *testing.T) {
	tests := []struct {
		status ConnectionStatus
		want   string
	}{
		{StatusDisconnected, "disconnected"},
		{StatusConnecting, "connecting"},
		{StatusConnected, "connected"},
		{StatusReconnecting, "reconnecting"},
		{ConnectionStatus(99), "unknown"},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, test.status.String())
	}
}

func TestClient_NotConnected(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Nil(t, c.Conn())
	assert.Nil(t, c.JetStream())
	assert.False(t, c.IsHealthy())

	assert.Error(t, c.Publish("telemetry.acme.dev-1", []byte("{}")))

	_, err = c.Subscribe("telemetry.>", nil)
	assert.Error(t, err)
}
