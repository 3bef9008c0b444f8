package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fieldstream/errors"
	"github.com/c360/fieldstream/event"
)

func TestFileSink_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive", "records.jsonl")
	s, err := NewFileSink("archive", path)
	require.NoError(t, err)

	require.NoError(t, s.Write(context.Background(), eventRecord(map[string]string{"site": "plant-7"})))
	require.NoError(t, s.Write(context.Background(), alertRecord()))
	require.NoError(t, s.Close())

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var lines []event.Record
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec event.Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		lines = append(lines, rec)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, event.KindEvent, lines[0].Kind)
	assert.Equal(t, "dev-1", lines[0].Event.DeviceID)
	assert.Equal(t, event.KindAlert, lines[1].Kind)

	t.Run("write after close is transient", func(t *testing.T) {
		err := s.Write(context.Background(), alertRecord())
		require.Error(t, err)
		assert.True(t, errors.IsTransient(err))
	})
}

func TestHTTPPostSink_StatusClassification(t *testing.T) {
	var status atomic.Int64
	var received atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	s, err := NewHTTPPostSink("forward", server.URL, time.Second)
	require.NoError(t, err)
	defer s.Close()

	status.Store(200)
	assert.NoError(t, s.Write(context.Background(), eventRecord(nil)))

	status.Store(503)
	err = s.Write(context.Background(), eventRecord(nil))
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err), "5xx retries")

	status.Store(429)
	err = s.Write(context.Background(), eventRecord(nil))
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err), "429 retries")

	status.Store(400)
	err = s.Write(context.Background(), eventRecord(nil))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err), "4xx dead-letters")

	assert.Equal(t, int64(4), received.Load())
}

func TestHTTPPostSink_ConnectionRefused(t *testing.T) {
	s, err := NewHTTPPostSink("forward", "http://127.0.0.1:1", 200*time.Millisecond)
	require.NoError(t, err)

	err = s.Write(context.Background(), eventRecord(nil))
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestWebSocketSink_Broadcast(t *testing.T) {
	s, err := NewWebSocketSink("feed", "127.0.0.1:0", "/ws", nil)
	require.NoError(t, err)

	// drive the handler through httptest instead of binding the real addr
	server := httptest.NewServer(http.HandlerFunc(s.handleConnect))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, s.Write(context.Background(), alertRecord()))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var alert event.Alert
	require.NoError(t, json.Unmarshal(payload, &alert))
	assert.Equal(t, "dev-1", alert.DeviceID)
	assert.Equal(t, event.SeverityCritical, alert.Severity)
}

func TestWebSocketSink_NoClients(t *testing.T) {
	s, err := NewWebSocketSink("feed", "127.0.0.1:0", "", nil)
	require.NoError(t, err)
	assert.NoError(t, s.Write(context.Background(), alertRecord()), "broadcast to nobody succeeds")
}

func TestNATSSink_RequiresClient(t *testing.T) {
	_, err := NewNATSSink("downstream", nil, "processed")
	assert.Error(t, err)
}
