// Package ingress turns raw transport messages into canonical pipeline
// records. The Adapter is the pure decoding core; the NATS consumer and the
// HTTP server feed it from their respective transports.
package ingress

import (
	"encoding/json"
	"strings"

	"github.com/c360/fieldstream/errors"
	"github.com/c360/fieldstream/event"
)

// Message is a decoded inbound message. Exactly one payload pointer is set.
type Message struct {
	Kind   event.RecordKind
	Source string // transport the message arrived on ("nats", "http")
	Event  *event.Event
	Ack    *event.Ack
}

// Adapter decodes (topic, bytes) pairs into Messages. It is stateless and
// safe for concurrent use. Decoding failures are Invalid errors; the caller
// routes them to the dead-letter store.
type Adapter struct {
	source string
}

// NewAdapter creates an adapter that stamps messages with the given source.
func NewAdapter(source string) *Adapter {
	return &Adapter{source: source}
}

// Subject prefixes the adapter routes on. Telemetry subjects carry the
// tenant and device in their tokens: telemetry.<tenant>.<deviceId>.
const (
	telemetryPrefix = "telemetry."
	statePrefix     = "state."
	ackPrefix       = "cmd.ack."
)

// Decode routes on the topic and parses the payload.
func (a *Adapter) Decode(topic string, data []byte) (Message, error) {
	switch {
	case strings.HasPrefix(topic, ackPrefix):
		return a.decodeAck(topic, data)
	case strings.HasPrefix(topic, telemetryPrefix):
		return a.decodeTelemetry(topic, data)
	case strings.HasPrefix(topic, statePrefix):
		return a.decodeState(topic, data)
	default:
		return Message{}, errors.WrapInvalid(errors.ErrUnknownRoute, "Adapter", "Decode", "route "+topic)
	}
}

// DecodeEvent parses an event payload without a routing topic, used by the
// HTTP ingress where the route is the URL.
func (a *Adapter) DecodeEvent(data []byte) (Message, error) {
	var e event.Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Message{}, errors.WrapInvalid(errors.ErrMalformedPayload, "Adapter", "DecodeEvent", "parse event")
	}
	if err := e.CheckEnvelope(); err != nil {
		return Message{}, err
	}
	a.normalize(&e)
	return Message{Kind: event.KindEvent, Source: a.source, Event: &e}, nil
}

func (a *Adapter) decodeTelemetry(topic string, data []byte) (Message, error) {
	msg, err := a.DecodeEvent(data)
	if err != nil {
		return Message{}, err
	}

	// telemetry.<tenant>.<deviceId>: the subject is authoritative for the
	// tenant; a payload tenant that disagrees is a malformed message.
	tokens := strings.Split(topic, ".")
	if len(tokens) != 3 || tokens[1] == "" || tokens[2] == "" {
		return Message{}, errors.WrapInvalid(errors.ErrUnknownRoute, "Adapter", "decodeTelemetry", "subject "+topic)
	}
	if msg.Event.Tenant != "" && msg.Event.Tenant != tokens[1] {
		return Message{}, errors.WrapInvalid(errors.ErrMalformedPayload, "Adapter", "decodeTelemetry",
			"tenant mismatch on "+topic)
	}
	msg.Event.Tenant = tokens[1]
	if msg.Event.DeviceID != tokens[2] {
		return Message{}, errors.WrapInvalid(errors.ErrMalformedPayload, "Adapter", "decodeTelemetry",
			"device mismatch on "+topic)
	}
	return msg, nil
}

func (a *Adapter) decodeState(topic string, data []byte) (Message, error) {
	msg, err := a.DecodeEvent(data)
	if err != nil {
		return Message{}, err
	}

	tokens := strings.Split(topic, ".")
	if len(tokens) != 2 || tokens[1] == "" {
		return Message{}, errors.WrapInvalid(errors.ErrUnknownRoute, "Adapter", "decodeState", "subject "+topic)
	}
	if msg.Event.DeviceID != tokens[1] {
		return Message{}, errors.WrapInvalid(errors.ErrMalformedPayload, "Adapter", "decodeState",
			"device mismatch on "+topic)
	}
	if msg.Event.Tags == nil {
		msg.Event.Tags = map[string]string{}
	}
	msg.Event.Tags["stream"] = "state"
	return msg, nil
}

func (a *Adapter) decodeAck(topic string, data []byte) (Message, error) {
	var ack event.Ack
	if err := json.Unmarshal(data, &ack); err != nil {
		return Message{}, errors.WrapInvalid(errors.ErrMalformedPayload, "Adapter", "decodeAck", "parse ack")
	}
	if err := ack.CheckEnvelope(); err != nil {
		return Message{}, err
	}
	if ack.DeviceID == "" {
		ack.DeviceID = strings.TrimPrefix(topic, ackPrefix)
	}
	return Message{Kind: event.KindAck, Source: a.source, Ack: &ack}, nil
}

// normalize canonicalizes fields the producer may have left loose.
func (a *Adapter) normalize(e *event.Event) {
	e.Timestamp = e.Timestamp.UTC()
	if e.Tags == nil {
		e.Tags = map[string]string{}
	}
}
