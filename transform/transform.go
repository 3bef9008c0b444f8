// Package transform applies the declarative transform chain to enriched
// events. Steps run in configuration order and mutate the event in place;
// the first failing step halts the chain, leaving earlier mutations
// applied. Transform failures are permanent.
package transform

import (
	"fmt"
	"strconv"

	"github.com/c360/fieldstream/errors"
	"github.com/c360/fieldstream/event"
)

// Descriptor declares one step of the chain.
type Descriptor struct {
	Type   string            // unit_convert, clamp, rename, derive
	Field  string            // metric the step operates on (target for derive)
	Params map[string]string // step-specific parameters
}

// Step is a compiled transform.
type Step interface {
	Name() string
	Apply(e *event.Event) error
}

// Chain is an ordered sequence of compiled steps.
type Chain struct {
	steps []Step
}

// NewChain compiles descriptors. Descriptor errors surface here so a bad
// configuration fails at startup, not per event.
func NewChain(descriptors []Descriptor) (*Chain, error) {
	steps := make([]Step, 0, len(descriptors))
	for i, d := range descriptors {
		step, err := compile(d)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Chain", "NewChain",
				fmt.Sprintf("step %d (%s)", i, d.Type))
		}
		steps = append(steps, step)
	}
	return &Chain{steps: steps}, nil
}

// Len returns the number of compiled steps.
func (c *Chain) Len() int { return len(c.steps) }

// Apply runs the chain. On error the event carries the mutations of the
// steps that succeeded; the caller dead-letters it with the error.
func (c *Chain) Apply(e *event.Event) error {
	for _, step := range c.steps {
		if err := step.Apply(e); err != nil {
			return err
		}
	}
	return nil
}

func compile(d Descriptor) (Step, error) {
	switch d.Type {
	case "unit_convert":
		return compileUnitConvert(d)
	case "clamp":
		return compileClamp(d)
	case "rename":
		return compileRename(d)
	case "derive":
		return compileDerive(d)
	default:
		return nil, errors.WrapInvalid(errors.ErrBadTransform, "transform", "compile",
			"unknown type "+d.Type)
	}
}

func requireParam(d Descriptor, key string) (string, error) {
	v, ok := d.Params[key]
	if !ok || v == "" {
		return "", errors.WrapInvalid(errors.ErrMissingConfig, "transform", "compile",
			d.Type+" requires param "+key)
	}
	return v, nil
}

func parseFloatParam(d Descriptor, key string) (float64, error) {
	raw, err := requireParam(d, key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.WrapInvalid(errors.ErrBadTransform, "transform", "compile",
			d.Type+" param "+key+" is not numeric")
	}
	return v, nil
}

// metricValue fetches a metric, distinguishing "absent" from "present as a
// tag". A field that exists only as a tag is a type mismatch.
func metricValue(e *event.Event, field string) (float64, bool, error) {
	if v, ok := e.Metrics[field]; ok {
		return v, true, nil
	}
	if _, ok := e.Tags[field]; ok {
		return 0, false, errors.WrapInvalid(errors.ErrTypeMismatch, "transform", "apply",
			"field "+field+" is a tag, not a metric")
	}
	return 0, false, nil
}
