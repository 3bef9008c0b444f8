package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fieldstream/errors"
	"github.com/c360/fieldstream/event"
)

func testEvent(metrics map[string]float64) *event.Event {
	return &event.Event{
		DeviceID:  "dev-1",
		Tenant:    "acme",
		Timestamp: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		Metrics:   metrics,
		Tags:      map[string]string{"site": "plant-7"},
	}
}

func TestUnitConvert_CelsiusToFahrenheit(t *testing.T) {
	chain, err := NewChain([]Descriptor{{
		Type:   "unit_convert",
		Field:  "temp_c",
		Params: map[string]string{"conversion": "c_to_f", "target": "temp_f"},
	}})
	require.NoError(t, err)

	e := testEvent(map[string]float64{"temp_c": 23.5})
	require.NoError(t, chain.Apply(e))

	assert.Equal(t, 74.3, e.Metrics["temp_f"])
	assert.NotContains(t, e.Metrics, "temp_c", "converted field replaced")
}

func TestUnitConvert_InPlace(t *testing.T) {
	chain, err := NewChain([]Descriptor{{
		Type:   "unit_convert",
		Field:  "temp_f",
		Params: map[string]string{"conversion": "f_to_c"},
	}})
	require.NoError(t, err)

	e := testEvent(map[string]float64{"temp_f": 74.3})
	require.NoError(t, chain.Apply(e))
	assert.Equal(t, 23.5, e.Metrics["temp_f"])
}

func TestClamp(t *testing.T) {
	chain, err := NewChain([]Descriptor{{
		Type:   "clamp",
		Field:  "humidity_pct",
		Params: map[string]string{"min": "0", "max": "100"},
	}})
	require.NoError(t, err)

	tests := []struct {
		in   float64
		want float64
	}{
		{150, 100},
		{-10, 0},
		{55.5, 55.5},
		{0, 0},
		{100, 100},
	}
	for _, test := range tests {
		e := testEvent(map[string]float64{"humidity_pct": test.in})
		require.NoError(t, chain.Apply(e))
		assert.Equal(t, test.want, e.Metrics["humidity_pct"], "clamp(%g)", test.in)
	}
}

func TestRename(t *testing.T) {
	chain, err := NewChain([]Descriptor{{
		Type:   "rename",
		Field:  "tmp",
		Params: map[string]string{"target": "temp_c"},
	}})
	require.NoError(t, err)

	e := testEvent(map[string]float64{"tmp": 21})
	require.NoError(t, chain.Apply(e))
	assert.Equal(t, 21.0, e.Metrics["temp_c"])
	assert.NotContains(t, e.Metrics, "tmp")
}

func TestDerive(t *testing.T) {
	chain, err := NewChain([]Descriptor{{
		Type:   "derive",
		Field:  "power_w",
		Params: map[string]string{"left": "voltage_v", "right": "current_a", "op": "mul"},
	}})
	require.NoError(t, err)

	e := testEvent(map[string]float64{"voltage_v": 12, "current_a": 1.5})
	require.NoError(t, chain.Apply(e))
	assert.Equal(t, 18.0, e.Metrics["power_w"])

	t.Run("missing operand is a no-op", func(t *testing.T) {
		e := testEvent(map[string]float64{"voltage_v": 12})
		require.NoError(t, chain.Apply(e))
		assert.NotContains(t, e.Metrics, "power_w")
	})
}

func TestDerive_DivisionByZero(t *testing.T) {
	chain, err := NewChain([]Descriptor{{
		Type:   "derive",
		Field:  "ratio",
		Params: map[string]string{"left": "a", "right": "b", "op": "div"},
	}})
	require.NoError(t, err)

	e := testEvent(map[string]float64{"a": 1, "b": 0})
	err = chain.Apply(e)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestChain_HaltsAtFirstError(t *testing.T) {
	chain, err := NewChain([]Descriptor{
		{Type: "rename", Field: "a", Params: map[string]string{"target": "a2"}},
		{Type: "unit_convert", Field: "site", Params: map[string]string{"conversion": "c_to_f"}},
		{Type: "rename", Field: "b", Params: map[string]string{"target": "b2"}},
	})
	require.NoError(t, err)

	// "site" exists as a tag, so step 2 is a type mismatch
	e := testEvent(map[string]float64{"a": 1, "b": 2})
	err = chain.Apply(e)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTypeMismatch))

	assert.Contains(t, e.Metrics, "a2", "step before the failure applied")
	assert.Contains(t, e.Metrics, "b", "step after the failure not applied")
	assert.NotContains(t, e.Metrics, "b2")
}

func TestMissingFieldIsNoOp(t *testing.T) {
	chain, err := NewChain([]Descriptor{{
		Type:   "clamp",
		Field:  "pressure_kpa",
		Params: map[string]string{"min": "0", "max": "500"},
	}})
	require.NoError(t, err)

	e := testEvent(map[string]float64{"temp_c": 20})
	require.NoError(t, chain.Apply(e))
	assert.Equal(t, 20.0, e.Metrics["temp_c"])
}

func TestNewChain_CompileErrors(t *testing.T) {
	tests := []struct {
		name string
		d    Descriptor
	}{
		{"unknown type", Descriptor{Type: "uppercase", Field: "f"}},
		{"unknown conversion", Descriptor{Type: "unit_convert", Field: "f", Params: map[string]string{"conversion": "c_to_k"}}},
		{"clamp missing bounds", Descriptor{Type: "clamp", Field: "f", Params: map[string]string{"min": "0"}}},
		{"clamp inverted bounds", Descriptor{Type: "clamp", Field: "f", Params: map[string]string{"min": "10", "max": "0"}}},
		{"clamp non-numeric", Descriptor{Type: "clamp", Field: "f", Params: map[string]string{"min": "low", "max": "10"}}},
		{"rename missing target", Descriptor{Type: "rename", Field: "f"}},
		{"derive unknown op", Descriptor{Type: "derive", Field: "f", Params: map[string]string{"left": "a", "right": "b", "op": "pow"}}},
		{"derive missing operand", Descriptor{Type: "derive", Field: "f", Params: map[string]string{"left": "a", "op": "add"}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewChain([]Descriptor{test.d})
			assert.Error(t, err)
		})
	}
}
