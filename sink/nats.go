package sink

import (
	"context"

	"github.com/c360/fieldstream/errors"
	"github.com/c360/fieldstream/event"
	"github.com/c360/fieldstream/natsclient"
)

// NATSSink publishes record payloads to a subject tree:
// <prefix>.<kind>.<deviceId>. Downstream consumers subscribe by kind.
type NATSSink struct {
	name    string
	client  *natsclient.Client
	subject string
}

// NewNATSSink creates a NATS sink publishing under the subject prefix.
func NewNATSSink(name string, client *natsclient.Client, subject string) (*NATSSink, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "NATSSink", "NewNATSSink", "nats client required")
	}
	if subject == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "NATSSink", "NewNATSSink", "subject required")
	}
	return &NATSSink{name: name, client: client, subject: subject}, nil
}

// Name implements Sink.
func (s *NATSSink) Name() string { return s.name }

// Write implements Sink. Publish failures are transient.
func (s *NATSSink) Write(_ context.Context, rec event.Record) error {
	payload, err := rec.Payload()
	if err != nil {
		return err
	}

	subject := s.subject + "." + string(rec.Kind)
	if deviceID := rec.DeviceID(); deviceID != "" {
		subject += "." + deviceID
	}
	return s.client.Publish(subject, payload)
}

// Close implements Sink; the NATS connection is shared and stays open.
func (s *NATSSink) Close() error { return nil }
