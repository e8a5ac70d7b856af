package core

import (
	"strings"
)

// ExecutionState is the accumulating key/value store for one workflow run.
// It is owned by exactly one interpreter loop; parallel branches receive a
// Clone so sibling branches can never observe each other's writes. Keys are
// only ever added during a run, never removed.
type ExecutionState map[string]any

// NewExecutionState deep-copies initial so the caller's map is never aliased.
func NewExecutionState(initial map[string]any) ExecutionState {
	s := make(ExecutionState, len(initial)+2)
	for k, v := range initial {
		s[k] = copyValue(v)
	}
	return s
}

// Lookup walks a dot-separated path through nested maps.
func (s ExecutionState) Lookup(path string) (any, bool) {
	cur := any(map[string]any(s))
	for _, seg := range strings.Split(path, ".") {
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

// SetPath writes value under a dot-separated path, creating intermediate
// maps as needed. An intermediate segment holding a non-map value is
// overwritten with a map; step output paths win over scalar collisions.
func (s ExecutionState) SetPath(path string, value any) {
	segs := strings.Split(path, ".")
	cur := map[string]any(s)
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = value
}

// Clone returns a deep copy. This is the isolation boundary for parallel
// branches: the copy shares no mutable structure with the original.
func (s ExecutionState) Clone() ExecutionState {
	out := make(ExecutionState, len(s))
	for k, v := range s {
		out[k] = copyValue(v)
	}
	return out
}

// AddedSince returns the top-level entries present in s but absent from
// base. Because state is append-only within a run, this is exactly the set
// of keys a branch produced after it was seeded from base.
func (s ExecutionState) AddedSince(base ExecutionState) map[string]any {
	out := make(map[string]any)
	for k, v := range s {
		if _, ok := base[k]; !ok {
			out[k] = copyValue(v)
		}
	}
	return out
}

// AsMap exposes the state for interpolation and persistence.
func (s ExecutionState) AsMap() map[string]any { return map[string]any(s) }

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = copyValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = copyValue(val)
		}
		return out
	default:
		return v
	}
}
