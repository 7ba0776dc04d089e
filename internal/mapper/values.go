package mapper

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// list widens the slice shapes produced by the different decoders
// (encoding/json, attributevalue, yaml.v3) to []any.
func list(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out, true
	case []float64:
		out := make([]any, len(t))
		for i, f := range t {
			out[i] = f
		}
		return out, true
	case []int:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out, true
	}
	return nil, false
}

func object(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// first returns the first present, non-nil attribute among names.
func first(m map[string]any, names ...string) any {
	for _, name := range names {
		if v, ok := m[name]; ok && v != nil {
			return v
		}
	}
	return nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// number accepts numeric values only. Numeric strings are rejected.
func number(v any) (int, bool) {
	var f float64
	switch t := v.(type) {
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case uint:
		if uint64(t) > math.MaxInt {
			return 0, false
		}
		return int(t), true
	case uint32:
		return int(t), true
	case uint64:
		if t > math.MaxInt {
			return 0, false
		}
		return int(t), true
	case float32:
		f = float64(t)
	case float64:
		f = t
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	// float64(math.MaxInt) rounds up to 2^63, which is already out of range
	if math.IsNaN(f) || f >= math.MaxInt || f < math.MinInt {
		return 0, false
	}
	return int(f), true
}

// Int coerces numbers and numeric strings.
func Int(v any) (int, bool) {
	if n, ok := number(v); ok {
		return n, true
	}
	if s, ok := v.(string); ok {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err == nil {
			return n, true
		}
	}
	return 0, false
}

// Strings keeps the non-empty string entries of a list, trimmed.
func Strings(v any) []string {
	items, ok := list(v)
	if !ok {
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) != "" {
			return []string{strings.TrimSpace(s)}
		}
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s := strings.TrimSpace(str(item))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Orders keeps the numeric entries of a based_on_orders list.
func Orders(v any) ([]int, bool) {
	items, ok := list(v)
	if !ok {
		return nil, false
	}
	out := make([]int, 0, len(items))
	for _, item := range items {
		if n, isNum := number(item); isNum {
			out = append(out, n)
		}
	}
	return out, true
}
