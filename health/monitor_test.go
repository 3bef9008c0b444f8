package health

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_UpdateAndGet(t *testing.T) {
	m := NewMonitor()

	m.UpdateHealthy("ingress", "consuming")
	m.UpdateDegraded("sink.downstream", "in backoff")

	status, ok := m.Get("ingress")
	require.True(t, ok)
	assert.True(t, status.IsHealthy())
	assert.Equal(t, "ingress", status.Component)

	status, ok = m.Get("sink.downstream")
	require.True(t, ok)
	assert.True(t, status.IsDegraded())

	_, ok = m.Get("missing")
	assert.False(t, ok)
}

func TestMonitor_System(t *testing.T) {
	m := NewMonitor()

	t.Run("empty is healthy", func(t *testing.T) {
		assert.True(t, m.System("fieldstream").IsHealthy())
	})

	t.Run("degraded wins over healthy", func(t *testing.T) {
		m.UpdateHealthy("a", "")
		m.UpdateDegraded("b", "")
		assert.True(t, m.System("fieldstream").IsDegraded())
	})

	t.Run("unhealthy wins over degraded", func(t *testing.T) {
		m.UpdateUnhealthy("c", "connection lost")
		system := m.System("fieldstream")
		assert.True(t, system.IsUnhealthy())
		assert.Len(t, system.SubStatuses, 3)
	})

	t.Run("remove restores", func(t *testing.T) {
		m.Remove("c")
		assert.True(t, m.System("fieldstream").IsDegraded())
	})
}

func TestMonitor_Handler(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("pipeline", "running")

	rec := httptest.NewRecorder()
	m.Handler("fieldstream").ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	assert.Equal(t, 200, rec.Code)
	var status Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "fieldstream", status.Component)
	assert.True(t, status.Healthy)

	m.UpdateUnhealthy("pipeline", "stopped")
	rec = httptest.NewRecorder()
	m.Handler("fieldstream").ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, 503, rec.Code)
}
