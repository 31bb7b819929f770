// Package normalize maps arbitrary upstream token records into the canonical
// Token entity. Upstream producers drift across at least four structural
// variants (flat fields, nested group objects, raw-wrapper pass-through,
// windowed maps vs flattened keys); every canonical field is resolved by
// probing an ordered list of candidate paths, first defined non-nil wins.
// Adding a new upstream variant is a probe-table change, not new control
// flow.
package normalize

import (
	"strings"
)

// path is one candidate location of a field inside an upstream record.
type path []string

// paths builds a probe list from dot-separated candidate locations.
func paths(dotted ...string) []path {
	out := make([]path, 0, len(dotted))
	for _, d := range dotted {
		out = append(out, strings.Split(d, "."))
	}
	return out
}

// lookup walks a nested map along p. It reports false for a missing key, a
// nil value, or a non-map intermediate node.
func lookup(raw map[string]any, p path) (any, bool) {
	var cur any = raw
	for _, key := range p {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// firstScalar probes candidates in order and returns the first defined
// non-nil scalar value. Maps and lists are skipped so that a windowed-map
// field does not shadow a flattened scalar later in the probe list.
func firstScalar(raw map[string]any, candidates []path) (any, bool) {
	for _, p := range candidates {
		v, ok := lookup(raw, p)
		if !ok {
			continue
		}
		switch v.(type) {
		case map[string]any, []any:
			continue
		}
		return v, true
	}
	return nil, false
}

// firstAny probes candidates in order and returns the first defined non-nil
// value of any shape.
func firstAny(raw map[string]any, candidates []path) (any, bool) {
	for _, p := range candidates {
		if v, ok := lookup(raw, p); ok {
			return v, true
		}
	}
	return nil, false
}

// firstString probes candidates for the first non-empty string value.
func firstString(raw map[string]any, candidates []path) (string, bool) {
	for _, p := range candidates {
		v, ok := lookup(raw, p)
		if !ok {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

// firstMap probes candidates for the first map value.
func firstMap(raw map[string]any, candidates []path) (map[string]any, bool) {
	for _, p := range candidates {
		v, ok := lookup(raw, p)
		if !ok {
			continue
		}
		if m, ok := v.(map[string]any); ok {
			return m, true
		}
	}
	return nil, false
}

// asBool coerces upstream flag values. Booleans pass through; strings accept
// "true"/"1"/"yes"; numbers are true when non-zero.
func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes":
			return true
		}
		return false
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return false
	}
}
