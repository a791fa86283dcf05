package util

import (
	"encoding/json"
)

// ToString attempts to coerce v into a string.
func ToString(v any) (string, bool) {
	s, ok := v.(string)
	if ok {
		return s, true
	}
	return "", false
}

// ToFloat64 attempts to coerce v into a float64.
//
// When decoding JSON into map[string]any with json.Decoder.UseNumber(),
// numbers arrive as json.Number.
func ToFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// ToFloat64Slice coerces a decoded JSON array of numbers.
func ToFloat64Slice(v any) ([]float64, bool) {
	arr, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]float64, 0, len(arr))
	for _, e := range arr {
		f, ok := ToFloat64(e)
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}
