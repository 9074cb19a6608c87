package util

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ToFloat coerces an untrusted JSON value into a float. Numbers pass
// through; strings may carry a trailing "%" and a decimal comma. Anything
// else, including NaN and infinities, reports false.
func ToFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, ok := parseNumericString(t)
		if !ok {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func ToFloatPtr(v any) *float64 {
	if f, ok := ToFloat(v); ok {
		return &f
	}
	return nil
}

func ToIntPtr(v any) *int {
	f, ok := ToFloat(v)
	if !ok {
		return nil
	}
	i := int(math.Round(f))
	return &i
}

// ToString accepts strings and numbers; identifiers are occasionally stored
// as numbers by upstream writers.
func ToString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func ToStringPtr(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

// RoundTo1 rounds to one decimal place, half away from zero.
func RoundTo1(f float64) float64 {
	return math.Round(f*10) / 10
}

func parseNumericString(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\u00A0", " "))
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
