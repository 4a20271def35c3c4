package csvjson

import (
	"regexp"
	"strconv"
	"strings"
)

// decimalPattern is the full-match numeric grammar: optional sign, digits with
// an optional fraction (or a bare fraction), optional exponent.
var decimalPattern = regexp.MustCompile(`^[+-]?(?:[0-9]+\.?[0-9]*|\.[0-9]+)(?:[eE][+-]?[0-9]+)?$`)

// Coercer converts raw field text to a typed value.
type Coercer struct {
	StripInjectionPrefix bool
	Trim                 bool
	ParseNumbers         bool
	ParseBooleans        bool
}

func newCoercer(opts DecodeOptions) Coercer {
	return Coercer{
		StripInjectionPrefix: opts.StripInjectionPrefix,
		Trim:                 opts.Trim,
		ParseNumbers:         opts.ParseNumbers,
		ParseBooleans:        opts.ParseBooleans,
	}
}

// Coerce returns a string, float64, bool or nil. Prefix stripping and
// trimming happen before the numeric and boolean tests; an empty result is nil.
func (c Coercer) Coerce(raw string) any {
	s := raw
	if c.StripInjectionPrefix {
		s = StripInjectionPrefix(s)
	}
	if c.Trim {
		s = strings.TrimSpace(s)
	}
	if s == "" {
		return nil
	}
	if c.ParseNumbers && decimalPattern.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	if c.ParseBooleans {
		switch {
		case strings.EqualFold(s, "true"):
			return true
		case strings.EqualFold(s, "false"):
			return false
		}
	}
	return s
}

// StripInjectionPrefix removes the single quote the encoder puts in front of
// formula-trigger values. Other leading quotes are left alone.
func StripInjectionPrefix(s string) string {
	if len(s) > 1 && s[0] == '\'' && hasFormulaTrigger(s[1:]) {
		return s[1:]
	}
	return s
}

// hasFormulaTrigger reports whether s, after any leading quote, space or BOM
// characters, starts with a spreadsheet formula trigger.
func hasFormulaTrigger(s string) bool {
	s = strings.TrimLeft(s, "'\" \uFEFF")
	if s == "" {
		return false
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return true
	}
	return false
}
