package validate

import (
	"fmt"
	"math"
	"time"

	"github.com/c360/fieldstream/errors"
	"github.com/c360/fieldstream/event"
)

// Range bounds a metric's plausible values.
type Range struct {
	Min float64
	Max float64
}

// Validator checks events after decoding and before enrichment. Every
// rejection is an Invalid (permanent) error.
type Validator struct {
	registry DeviceRegistry
	ranges   map[string]Range

	// events with timestamps further in the future than this are rejected
	maxClockSkew time.Duration
}

// NewValidator creates a validator. The registry is required; ranges may be
// nil to skip range checking.
func NewValidator(registry DeviceRegistry, ranges map[string]Range, maxClockSkew time.Duration) (*Validator, error) {
	if registry == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Validator", "NewValidator", "registry required")
	}
	if maxClockSkew <= 0 {
		maxClockSkew = 5 * time.Minute
	}
	return &Validator{
		registry:     registry,
		ranges:       ranges,
		maxClockSkew: maxClockSkew,
	}, nil
}

// Validate checks the event and resolves its tenancy. On success it returns
// the registry's device record so the enricher can use its tags.
func (v *Validator) Validate(e *event.Event, now time.Time) (Device, error) {
	if err := e.CheckEnvelope(); err != nil {
		return Device{}, err
	}

	if e.Timestamp.After(now.Add(v.maxClockSkew)) {
		return Device{}, errors.WrapInvalid(errors.ErrBadTimestamp, "Validator", "Validate",
			fmt.Sprintf("timestamp %s too far in the future", e.Timestamp.Format(time.RFC3339)))
	}

	device, known := v.registry.Lookup(e.DeviceID)
	if !known {
		return Device{}, errors.WrapInvalid(errors.ErrUnknownDevice, "Validator", "Validate",
			"lookup "+e.DeviceID)
	}
	if e.Tenant != "" && device.Tenant != "" && e.Tenant != device.Tenant {
		return Device{}, errors.WrapInvalid(errors.ErrUnknownDevice, "Validator", "Validate",
			"device "+e.DeviceID+" does not belong to tenant "+e.Tenant)
	}

	for name, value := range e.Metrics {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return Device{}, errors.WrapInvalid(errors.ErrValueOutOfRange, "Validator", "Validate",
				fmt.Sprintf("metric %s is not finite", name))
		}
		if r, ok := v.ranges[name]; ok {
			if value < r.Min || value > r.Max {
				return Device{}, errors.WrapInvalid(errors.ErrValueOutOfRange, "Validator", "Validate",
					fmt.Sprintf("metric %s value %g outside [%g, %g]", name, value, r.Min, r.Max))
			}
		}
	}

	if lt, ok := v.registry.(LivenessTracker); ok {
		lt.Touch(e.DeviceID, e.Timestamp)
	}
	return device, nil
}
