package interpolate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testState() map[string]any {
	return map[string]any{
		"trigger": map[string]any{
			"new_data": map[string]any{
				"amount": float64(500),
				"name":   "invoice-42",
			},
		},
		"r": map[string]any{
			"isValid": true,
			"score":   float64(0.85),
		},
		"plain": "hello",
	}
}

func TestInterpolate_ExactPlaceholderPreservesType(t *testing.T) {
	state := testState()

	got := Interpolate("{{trigger.new_data.amount}}", state)
	assert.Equal(t, float64(500), got)

	got = Interpolate("{{r.isValid}}", state)
	assert.Equal(t, true, got)

	got = Interpolate("{{trigger.new_data}}", state)
	assert.Equal(t, map[string]any{"amount": float64(500), "name": "invoice-42"}, got)
}

func TestInterpolate_ExactPlaceholderWithSpaces(t *testing.T) {
	got := Interpolate("{{ r.score }}", testState())
	assert.Equal(t, float64(0.85), got)
}

func TestInterpolate_MissingPathReturnsTemplate(t *testing.T) {
	got := Interpolate("{{does.not.exist}}", testState())
	assert.Equal(t, "{{does.not.exist}}", got)
}

func TestInterpolate_EmbeddedPlaceholders(t *testing.T) {
	got := Interpolate("record {{trigger.new_data.name}} amount {{trigger.new_data.amount}}", testState())
	assert.Equal(t, "record invoice-42 amount 500", got)
}

func TestInterpolate_EmbeddedMissingKeepsPlaceholderText(t *testing.T) {
	got := Interpolate("value is {{missing.path}} here", testState())
	assert.Equal(t, "value is {{missing.path}} here", got)
}

func TestInterpolate_RecursesIntoMapsAndSlices(t *testing.T) {
	template := map[string]any{
		"amount": "{{trigger.new_data.amount}}",
		"tags":   []any{"{{plain}}", "literal"},
		"nested": map[string]any{"ok": "{{r.isValid}}"},
	}
	got := Interpolate(template, testState())
	assert.Equal(t, map[string]any{
		"amount": float64(500),
		"tags":   []any{"hello", "literal"},
		"nested": map[string]any{"ok": true},
	}, got)
}

func TestInterpolate_KeysAreNeverInterpolated(t *testing.T) {
	template := map[string]any{"{{plain}}": "{{plain}}"}
	got := Interpolate(template, testState())
	assert.Equal(t, map[string]any{"{{plain}}": "hello"}, got)
}

func TestInterpolate_ScalarsPassThrough(t *testing.T) {
	state := testState()
	assert.Equal(t, float64(42), Interpolate(float64(42), state))
	assert.Equal(t, true, Interpolate(true, state))
	assert.Equal(t, nil, Interpolate(nil, state))
}

// Interpolation must be total: arbitrary garbage templates against arbitrary
// state must never panic.
func TestInterpolate_TotalOnMalformedInput(t *testing.T) {
	templates := []any{
		"{{}}", "{{", "}}", "{{a..b}}", "{{.}}", "a {{ b",
		"{{plain}}{{missing}}", map[string]any{"x": []any{"{{", nil}},
	}
	states := []map[string]any{nil, {}, {"a": nil}, testState()}
	for _, tpl := range templates {
		for _, st := range states {
			assert.NotPanics(t, func() { Interpolate(tpl, st) })
		}
	}
}

func TestInterpolate_PathThroughNonMapFails(t *testing.T) {
	got := Interpolate("{{plain.deeper}}", testState())
	assert.Equal(t, "{{plain.deeper}}", got)
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "500", Stringify(float64(500)))
	assert.Equal(t, "0.85", Stringify(float64(0.85)))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "null", Stringify(nil))
	assert.Equal(t, `{"a":1}`, Stringify(map[string]any{"a": 1}))
}
