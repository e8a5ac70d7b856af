// Package interpolate resolves {{dot.path}} placeholders in workflow step
// parameters against accumulated execution state. Workflow JSON is user
// authored, so every function here is total: a malformed template or a
// missing path never panics and never returns an error, the input is simply
// passed through unchanged.
package interpolate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Interpolate walks the template and resolves placeholders against state.
//
// A string that is exactly one placeholder resolves to the raw typed value,
// so numbers stay numbers and objects stay objects. A string mixing
// placeholders with literal text gets each placeholder spliced in as text.
// Maps and slices are rebuilt with every value interpolated; map keys are
// never touched. Any other value passes through as-is.
func Interpolate(template any, state map[string]any) any {
	switch v := template.(type) {
	case string:
		return interpolateString(v, state)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = Interpolate(val, state)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = Interpolate(val, state)
		}
		return out
	default:
		return template
	}
}

func interpolateString(s string, state map[string]any) any {
	m := placeholderPattern.FindStringSubmatch(s)
	if m != nil && m[0] == s {
		// The whole string is a single placeholder, keep the resolved type.
		if val, ok := Resolve(m[1], state); ok {
			return val
		}
		return s
	}

	return placeholderPattern.ReplaceAllStringFunc(s, func(ph string) string {
		sub := placeholderPattern.FindStringSubmatch(ph)
		if val, ok := Resolve(sub[1], state); ok {
			return Stringify(val)
		}
		// Unresolvable placeholders keep their literal text.
		return ph
	})
}

// Resolve walks a dot-separated path through nested maps. The second return
// reports whether the full path exists.
func Resolve(path string, state map[string]any) (any, bool) {
	cur := any(state)
	for _, seg := range strings.Split(strings.TrimSpace(path), ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Stringify renders a resolved value for splicing into literal text.
// Numbers keep their shortest representation, composites render as JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
