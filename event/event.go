// Package event defines the canonical records flowing through the pipeline:
// telemetry events, commands and their acknowledgements, windowed
// aggregates, anomaly alerts, and dead-letter records.
//
// An Event is immutable once it passes validation; downstream stages derive
// new copies rather than mutating in place. Identity for deduplication is
// the eventId when the producer supplies one, otherwise a deterministic
// UUIDv5 over (deviceId, ts) so redeliveries of the same reading collapse
// onto the same key.
package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/c360/fieldstream/errors"
)

// identityNamespace scopes derived identity keys to this pipeline.
var identityNamespace = uuid.MustParse("7d8f4a2e-91c3-4b6a-b0de-5a4f1c9e2d37")

// Event is a canonical telemetry record from a field device.
// The wire format follows the external contract:
//
//	{"deviceId": "...", "ts": RFC3339, "metrics": {...}, "tags": {...}, "eventId": "..."}
type Event struct {
	DeviceID  string             `json:"deviceId"`
	Tenant    string             `json:"tenant,omitempty"`
	EventID   string             `json:"eventId,omitempty"`
	Timestamp time.Time          `json:"ts"`
	Metrics   map[string]float64 `json:"metrics"`
	Tags      map[string]string  `json:"tags,omitempty"`
}

// IdentityKey returns the dedup identity for this event: the producer's
// eventId when present, else a UUIDv5 derived from deviceId and event time.
func (e *Event) IdentityKey() string {
	if e.EventID != "" {
		return e.EventID
	}
	seed := e.DeviceID + "|" + e.Timestamp.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(identityNamespace, []byte(seed)).String()
}

// Clone returns a deep copy. Stages that modify an event operate on clones
// so the validated original stays immutable.
func (e *Event) Clone() *Event {
	out := &Event{
		DeviceID:  e.DeviceID,
		Tenant:    e.Tenant,
		EventID:   e.EventID,
		Timestamp: e.Timestamp,
	}
	if e.Metrics != nil {
		out.Metrics = make(map[string]float64, len(e.Metrics))
		for k, v := range e.Metrics {
			out.Metrics[k] = v
		}
	}
	if e.Tags != nil {
		out.Tags = make(map[string]string, len(e.Tags))
		for k, v := range e.Tags {
			out.Tags[k] = v
		}
	}
	return out
}

// CheckEnvelope verifies the mandatory envelope fields are present. Deeper
// range and registry checks belong to the validator stage.
func (e *Event) CheckEnvelope() error {
	if e.DeviceID == "" {
		return errors.WrapInvalid(errors.ErrMissingField, "Event", "CheckEnvelope", "deviceId")
	}
	if e.Timestamp.IsZero() {
		return errors.WrapInvalid(errors.ErrMissingField, "Event", "CheckEnvelope", "ts")
	}
	if len(e.Metrics) == 0 {
		return errors.WrapInvalid(errors.ErrMissingField, "Event", "CheckEnvelope", "metrics")
	}
	return nil
}
