package enrich

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/c360/fieldstream/event"
	"github.com/c360/fieldstream/validate"
)

func TestEnricher(t *testing.T) {
	ingestAt := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	device := validate.Device{
		DeviceID: "dev-1",
		Tenant:   "acme",
		Tags:     map[string]string{"site": "plant-7", "model": "tx-500"},
	}

	t.Run("fills tenant and tags", func(t *testing.T) {
		e := &event.Event{DeviceID: "dev-1", Timestamp: ingestAt, Metrics: map[string]float64{"m": 1}}
		NewEnricher(map[string]string{"region": "emea"}).Enrich(e, device, "nats", ingestAt)

		assert.Equal(t, "acme", e.Tenant)
		assert.Equal(t, "plant-7", e.Tags["site"])
		assert.Equal(t, "emea", e.Tags["region"])
		assert.Equal(t, "nats", e.Tags[TagSource])
		assert.Equal(t, "2026-03-14T09:26:53Z", e.Tags[TagIngestTS])
	})

	t.Run("producer tags win", func(t *testing.T) {
		e := &event.Event{
			DeviceID:  "dev-1",
			Tenant:    "explicit",
			Timestamp: ingestAt,
			Metrics:   map[string]float64{"m": 1},
			Tags:      map[string]string{"site": "override"},
		}
		NewEnricher(nil).Enrich(e, device, "nats", ingestAt)

		assert.Equal(t, "explicit", e.Tenant)
		assert.Equal(t, "override", e.Tags["site"])
		assert.Equal(t, "tx-500", e.Tags["model"], "missing keys still filled")
	})

	t.Run("degrades to defaults with empty device", func(t *testing.T) {
		e := &event.Event{DeviceID: "dev-9", Timestamp: ingestAt, Metrics: map[string]float64{"m": 1}}
		NewEnricher(nil).Enrich(e, validate.Device{}, "", ingestAt)

		assert.Equal(t, DefaultTenant, e.Tenant)
		assert.NotContains(t, e.Tags, TagSource)
		assert.Contains(t, e.Tags, TagIngestTS)
	})
}
