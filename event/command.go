package event

import (
	"time"

	"github.com/c360/fieldstream/errors"
)

// Command is an outbound instruction to a field device.
type Command struct {
	CmdID     string         `json:"cmdId"`
	DeviceID  string         `json:"deviceId"`
	Action    string         `json:"action"`
	Params    map[string]any `json:"params,omitempty"`
	Timestamp time.Time      `json:"ts"`
}

// CheckEnvelope verifies the mandatory command fields are present.
func (c *Command) CheckEnvelope() error {
	if c.CmdID == "" {
		return errors.WrapInvalid(errors.ErrMissingField, "Command", "CheckEnvelope", "cmdId")
	}
	if c.DeviceID == "" {
		return errors.WrapInvalid(errors.ErrMissingField, "Command", "CheckEnvelope", "deviceId")
	}
	if c.Action == "" {
		return errors.WrapInvalid(errors.ErrMissingField, "Command", "CheckEnvelope", "action")
	}
	return nil
}

// AckStatus is the outcome a device reports for a command.
type AckStatus string

const (
	// AckOK indicates the device executed the command.
	AckOK AckStatus = "ok"
	// AckError indicates the device rejected or failed the command.
	AckError AckStatus = "error"
)

// Ack is a device's acknowledgement of a previously issued command.
// Acknowledgements arrive on their own stream (cmd.ack.<deviceId>).
type Ack struct {
	CmdID     string    `json:"cmdId"`
	DeviceID  string    `json:"deviceId,omitempty"`
	Status    AckStatus `json:"status"`
	Timestamp time.Time `json:"ts"`
	Details   string    `json:"details,omitempty"`
}

// CheckEnvelope verifies the mandatory ack fields are present.
func (a *Ack) CheckEnvelope() error {
	if a.CmdID == "" {
		return errors.WrapInvalid(errors.ErrMissingField, "Ack", "CheckEnvelope", "cmdId")
	}
	if a.Status != AckOK && a.Status != AckError {
		return errors.WrapInvalid(errors.ErrMalformedPayload, "Ack", "CheckEnvelope", "status")
	}
	return nil
}
