package transform

import (
	"math"

	"github.com/c360/fieldstream/errors"
	"github.com/c360/fieldstream/event"
)

// conversion formulas for unit_convert, keyed by the "conversion" param
var conversions = map[string]func(float64) float64{
	"c_to_f":     func(c float64) float64 { return c*9/5 + 32 },
	"f_to_c":     func(f float64) float64 { return (f - 32) * 5 / 9 },
	"kpa_to_psi": func(kpa float64) float64 { return kpa * 0.1450377377 },
	"psi_to_kpa": func(psi float64) float64 { return psi / 0.1450377377 },
	"m_to_ft":    func(m float64) float64 { return m * 3.28084 },
	"ft_to_m":    func(ft float64) float64 { return ft / 3.28084 },
}

type unitConvert struct {
	field   string
	target  string // field the result is written to; empty = in place
	convert func(float64) float64
}

func compileUnitConvert(d Descriptor) (Step, error) {
	name, err := requireParam(d, "conversion")
	if err != nil {
		return nil, err
	}
	fn, ok := conversions[name]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrBadTransform, "transform", "compile",
			"unknown conversion "+name)
	}
	if d.Field == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "transform", "compile",
			"unit_convert requires a field")
	}
	return &unitConvert{field: d.Field, target: d.Params["target"], convert: fn}, nil
}

func (s *unitConvert) Name() string { return "unit_convert" }

func (s *unitConvert) Apply(e *event.Event) error {
	v, ok, err := metricValue(e, s.field)
	if err != nil {
		return err
	}
	if !ok {
		return nil // device does not report this metric
	}

	// round to one decimal so converted readings stay presentable
	converted := math.Round(s.convert(v)*10) / 10
	if s.target != "" {
		e.Metrics[s.target] = converted
		delete(e.Metrics, s.field)
	} else {
		e.Metrics[s.field] = converted
	}
	return nil
}

type clamp struct {
	field string
	min   float64
	max   float64
}

func compileClamp(d Descriptor) (Step, error) {
	if d.Field == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "transform", "compile",
			"clamp requires a field")
	}
	min, err := parseFloatParam(d, "min")
	if err != nil {
		return nil, err
	}
	max, err := parseFloatParam(d, "max")
	if err != nil {
		return nil, err
	}
	if min > max {
		return nil, errors.WrapInvalid(errors.ErrBadTransform, "transform", "compile",
			"clamp min exceeds max")
	}
	return &clamp{field: d.Field, min: min, max: max}, nil
}

func (s *clamp) Name() string { return "clamp" }

func (s *clamp) Apply(e *event.Event) error {
	v, ok, err := metricValue(e, s.field)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	e.Metrics[s.field] = math.Min(math.Max(v, s.min), s.max)
	return nil
}

type rename struct {
	field  string
	target string
}

func compileRename(d Descriptor) (Step, error) {
	if d.Field == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "transform", "compile",
			"rename requires a field")
	}
	target, err := requireParam(d, "target")
	if err != nil {
		return nil, err
	}
	return &rename{field: d.Field, target: target}, nil
}

func (s *rename) Name() string { return "rename" }

func (s *rename) Apply(e *event.Event) error {
	v, ok, err := metricValue(e, s.field)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	delete(e.Metrics, s.field)
	e.Metrics[s.target] = v
	return nil
}

type derive struct {
	target string
	left   string
	right  string
	op     string
}

func compileDerive(d Descriptor) (Step, error) {
	if d.Field == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "transform", "compile",
			"derive requires a target field")
	}
	left, err := requireParam(d, "left")
	if err != nil {
		return nil, err
	}
	right, err := requireParam(d, "right")
	if err != nil {
		return nil, err
	}
	op, err := requireParam(d, "op")
	if err != nil {
		return nil, err
	}
	switch op {
	case "add", "sub", "mul", "div":
	default:
		return nil, errors.WrapInvalid(errors.ErrBadTransform, "transform", "compile",
			"unknown derive op "+op)
	}
	return &derive{target: d.Field, left: left, right: right, op: op}, nil
}

func (s *derive) Name() string { return "derive" }

func (s *derive) Apply(e *event.Event) error {
	left, okL, err := metricValue(e, s.left)
	if err != nil {
		return err
	}
	right, okR, err := metricValue(e, s.right)
	if err != nil {
		return err
	}
	if !okL || !okR {
		return nil // operands not reported on this event
	}

	var result float64
	switch s.op {
	case "add":
		result = left + right
	case "sub":
		result = left - right
	case "mul":
		result = left * right
	case "div":
		if right == 0 {
			return errors.WrapInvalid(errors.ErrBadTransform, "transform", "apply",
				"derive "+s.target+": division by zero")
		}
		result = left / right
	}
	e.Metrics[s.target] = result
	return nil
}
