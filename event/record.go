package event

import (
	"encoding/json"

	"github.com/c360/fieldstream/errors"
)

// RecordKind discriminates the payload carried by a Record.
type RecordKind string

const (
	// KindEvent is an enriched, transformed telemetry event.
	KindEvent RecordKind = "event"
	// KindAggregate is a closed-window statistics record.
	KindAggregate RecordKind = "aggregate"
	// KindAlert is an anomaly alert.
	KindAlert RecordKind = "alert"
	// KindAck is a command acknowledgement.
	KindAck RecordKind = "ack"
)

// Record is the routing envelope handed to the sink router. Exactly one of
// the payload pointers is set, matching Kind.
type Record struct {
	Kind      RecordKind `json:"kind"`
	TraceID   string     `json:"traceId,omitempty"`
	Event     *Event     `json:"event,omitempty"`
	Aggregate *Aggregate `json:"aggregate,omitempty"`
	Alert     *Alert     `json:"alert,omitempty"`
	Ack       *Ack       `json:"ack,omitempty"`
}

// NewEventRecord wraps an enriched event for routing.
func NewEventRecord(e *Event, traceID string) Record {
	return Record{Kind: KindEvent, TraceID: traceID, Event: e}
}

// NewAggregateRecord wraps a closed-window aggregate for routing.
func NewAggregateRecord(a *Aggregate, traceID string) Record {
	return Record{Kind: KindAggregate, TraceID: traceID, Aggregate: a}
}

// NewAlertRecord wraps an anomaly alert for routing.
func NewAlertRecord(a *Alert, traceID string) Record {
	return Record{Kind: KindAlert, TraceID: traceID, Alert: a}
}

// NewAckRecord wraps a command acknowledgement for routing.
func NewAckRecord(a *Ack, traceID string) Record {
	return Record{Kind: KindAck, TraceID: traceID, Ack: a}
}

// DeviceID returns the device the record concerns, or "" for records
// without one.
func (r Record) DeviceID() string {
	switch r.Kind {
	case KindEvent:
		if r.Event != nil {
			return r.Event.DeviceID
		}
	case KindAggregate:
		if r.Aggregate != nil {
			return r.Aggregate.DeviceID
		}
	case KindAlert:
		if r.Alert != nil {
			return r.Alert.DeviceID
		}
	case KindAck:
		if r.Ack != nil {
			return r.Ack.DeviceID
		}
	}
	return ""
}

// Tags returns the routing tags for rule matching. Only events carry
// producer tags; other kinds match on Kind alone.
func (r Record) Tags() map[string]string {
	if r.Kind == KindEvent && r.Event != nil {
		return r.Event.Tags
	}
	return nil
}

// Payload marshals the inner payload (not the envelope) for sink delivery.
func (r Record) Payload() ([]byte, error) {
	var v any
	switch r.Kind {
	case KindEvent:
		v = r.Event
	case KindAggregate:
		v = r.Aggregate
	case KindAlert:
		v = r.Alert
	case KindAck:
		v = r.Ack
	default:
		return nil, errors.WrapInvalid(errors.ErrMalformedPayload, "Record", "Payload", "unknown kind")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Record", "Payload", "marshal")
	}
	return data, nil
}
