package expression

import (
	"encoding/base64"
	"fmt"
	"math"
	"strings"
)

// DefaultFunctions returns the helper table exposed to every expression.
// All helpers are pure; the table is built once and injected into the
// resolver at construction, never mutated afterwards.
//
// Numeric helpers accept any and coerce, because JSON numbers arrive as
// float64 while expression literals are ints.
func DefaultFunctions() map[string]any {
	return map[string]any{
		"math": map[string]any{
			"min":   func(a, b any) float64 { return math.Min(toFloat(a), toFloat(b)) },
			"max":   func(a, b any) float64 { return math.Max(toFloat(a), toFloat(b)) },
			"round": func(v any) float64 { return math.Round(toFloat(v)) },
			"ceil":  func(v any) float64 { return math.Ceil(toFloat(v)) },
			"floor": func(v any) float64 { return math.Floor(toFloat(v)) },
		},

		"stringUtils": map[string]any{
			"capitalize": capitalize,
			"toLower":    func(s string) string { return strings.ToLower(s) },
			"toUpper":    func(s string) string { return strings.ToUpper(s) },
			"contains":   func(source, target string) bool { return strings.Contains(source, target) },
			"trim":       func(s string) string { return strings.TrimSpace(s) },
			"isEmpty":    func(s string) bool { return s == "" },
			"replace":    func(s, target, replacement string) string { return strings.ReplaceAll(s, target, replacement) },
			"substring":  substring,
		},

		"base64": map[string]any{
			"encode": func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) },
			"decode": func(s string) string {
				decoded, err := base64.StdEncoding.DecodeString(s)
				if err != nil {
					return ""
				}

				return string(decoded)
			},
		},

		// Single-argument helpers.
		"toUpper":  func(s string) string { return strings.ToUpper(s) },
		"trim":     func(s string) string { return strings.TrimSpace(s) },
		"square":   func(v any) float64 { f := toFloat(v); return f * f },
		"isEven":   func(v any) bool { return int64(toFloat(v))%2 == 0 },
		"doubleIt": func(v any) float64 { return toFloat(v) * 2 },

		// Two-argument helpers.
		"add":      func(a, b any) float64 { return toFloat(a) + toFloat(b) },
		"subtract": func(a, b any) float64 { return toFloat(a) - toFloat(b) },
		"concat":   func(a, b string) string { return a + b },
		"min":      func(a, b any) float64 { return math.Min(toFloat(a), toFloat(b)) },
		"max":      func(a, b any) float64 { return math.Max(toFloat(a), toFloat(b)) },

		// Three-argument helpers.
		"between": func(val, low, high any) bool {
			v := toFloat(val)

			return v >= toFloat(low) && v <= toFloat(high)
		},
		"padString": padString,

		// Variadic helpers.
		"sum": func(nums ...any) float64 {
			var total float64
			for _, n := range nums {
				total += toFloat(n)
			}

			return total
		},
		"avg": func(nums ...any) float64 {
			if len(nums) == 0 {
				return 0
			}

			var total float64
			for _, n := range nums {
				total += toFloat(n)
			}

			return total / float64(len(nums))
		},
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	return strings.ToUpper(s[:1]) + s[1:]
}

// substring extracts [start, end); the end index is optional and defaults
// to the end of the string. Out-of-range indices yield the empty string
// rather than a panic, the forgiving behavior workflow authors rely on.
func substring(s string, start int, end ...int) string {
	stop := len(s)
	if len(end) > 0 {
		stop = end[0]
	}

	if start < 0 || stop > len(s) || start >= stop {
		return ""
	}

	return s[start:stop]
}

func padString(s, padChar string, length int) string {
	var builder strings.Builder

	builder.WriteString(s)

	for builder.Len() < length {
		builder.WriteString(padChar)
	}

	return builder.String()
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint64:
		return float64(n)
	default:
		panic(fmt.Sprintf("not a number: %v (%T)", v, v))
	}
}
