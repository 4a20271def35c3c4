package csvjson

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FieldEncoder turns a value into one safe, correctly quoted field.
type FieldEncoder struct {
	Comma            byte
	PreventInjection bool
	Policy           InjectionPolicy
}

func newFieldEncoder(opts EncodeOptions) FieldEncoder {
	return FieldEncoder{
		Comma:            opts.delimiter(),
		PreventInjection: opts.PreventCSVInjection,
		Policy:           opts.InjectionPolicy,
	}
}

// EncodeField encodes value with the field rules of opts.
func EncodeField(value any, opts EncodeOptions) (string, error) {
	return newFieldEncoder(opts).Encode("", value)
}

// Encode stringifies value, neutralizes formula triggers and bidi controls
// when injection protection is on, then quotes the result if it holds the
// delimiter, a quote, a backslash or a line break. key is only used in errors.
func (e FieldEncoder) Encode(key string, value any) (string, error) {
	s, textual := stringify(value)
	if s == "" {
		return "", nil
	}
	if e.PreventInjection && textual {
		s = stripBidiControls(s)
		if hasFormulaTrigger(s) {
			if e.Policy == InjectionReject {
				return "", &SecurityError{Field: key, Value: s}
			}
			s = "'" + s
		}
	}
	if !fieldNeedsQuote(s, e.Comma) {
		return s, nil
	}
	return quoteField(s), nil
}

// FormatValue renders value as unquoted field text. ok is false for nil.
func FormatValue(value any) (s string, ok bool) {
	if value == nil {
		return "", false
	}
	s, _ = stringify(value)
	return s, true
}

// stringify renders value as field text. textual is false for numbers and
// booleans, which cannot carry a formula.
func stringify(value any) (s string, textual bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), false
	case float64:
		return formatFloat(v, 64), false
	case float32:
		return formatFloat(float64(v), 32), false
	case int:
		return strconv.Itoa(v), false
	case int64:
		return strconv.FormatInt(v, 10), false
	case int32:
		return strconv.FormatInt(int64(v), 10), false
	case uint:
		return strconv.FormatUint(uint64(v), 10), false
	case uint64:
		return strconv.FormatUint(v, 10), false
	case uint32:
		return strconv.FormatUint(uint64(v), 10), false
	case json.Number:
		return v.String(), false
	case []byte:
		return string(v), true
	case fmt.Stringer:
		return v.String(), true
	}
	// Nested objects and arrays are written as opaque JSON text.
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value), true
	}
	return string(b), true
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, bits)
}

func stripBidiControls(s string) string {
	if !strings.ContainsFunc(s, isBidiControl) {
		return s
	}
	return strings.Map(func(r rune) rune {
		if isBidiControl(r) {
			return -1
		}
		return r
	}, s)
}

// isBidiControl matches the embedding, override and isolate controls.
func isBidiControl(r rune) bool {
	return (r >= '\u202A' && r <= '\u202E') || (r >= '\u2066' && r <= '\u2069')
}

func fieldNeedsQuote(field string, comma byte) bool {
	for i := 0; i < len(field); i++ {
		switch field[i] {
		case comma, '"', '\\', '\n', '\r':
			return true
		}
	}
	return false
}

func quoteField(field string) string {
	var b strings.Builder
	b.Grow(len(field) + 2 + strings.Count(field, `"`))
	b.WriteByte('"')
	start := 0
	for i := 0; i < len(field); i++ {
		if field[i] == '"' {
			b.WriteString(field[start:i])
			b.WriteString(`""`)
			start = i + 1
		}
	}
	b.WriteString(field[start:])
	b.WriteByte('"')
	return b.String()
}
