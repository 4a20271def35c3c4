package csvjson

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnterminatedQuote is returned when a quoted field is still open at the true end of input.
	ErrUnterminatedQuote = errors.New("csvjson: unclosed quote")
	// ErrMalformedJSON is returned when an NDJSON line or JSON array element cannot be decoded.
	ErrMalformedJSON = errors.New("csvjson: malformed JSON")
	// ErrLimitExceeded is matched by every *LimitError.
	ErrLimitExceeded = errors.New("csvjson: limit exceeded")
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("csvjson: validation failed")
	// ErrUnsafeValue is matched by every *SecurityError.
	ErrUnsafeValue = errors.New("csvjson: unsafe value")
	// ErrConfiguration is matched by every *ConfigurationError.
	ErrConfiguration = errors.New("csvjson: invalid configuration")
)

// ParsingError reports malformed delimited text or an undecodable JSON line.
// Line is the 1-based physical line where the offending construct started.
// Column is the 1-based byte column within that line, and Field the 1-based
// field index, when known (zero otherwise).
type ParsingError struct {
	Line   int
	Column int
	Field  int
	Err    error
}

// Error formats the parsing error with the stored location.
func (e *ParsingError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "csvjson: parse error on line %d", e.Line)
	if e.Column > 0 {
		fmt.Fprintf(&b, ", column %d", e.Column)
	}
	if e.Field > 0 {
		fmt.Fprintf(&b, ", field %d", e.Field)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

// Unwrap returns the underlying Err so ParsingError participates in errors.Is.
func (e *ParsingError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// LimitError reports that a configured row or record ceiling was crossed.
// Actual is the count reached by the record that crossed it.
type LimitError struct {
	Limit  int
	Actual int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("csvjson: limit exceeded: %d records allowed, reached %d", e.Limit, e.Actual)
}

func (e *LimitError) Is(target error) bool { return target == ErrLimitExceeded }

// ValidationError reports bad input shape or a schema rejection.
// Fields names the top-level keys at fault, when known.
type ValidationError struct {
	Line     int
	Reason   string
	Problems []string
	Fields   []string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("csvjson: validation failed")
	if e.Line > 0 {
		fmt.Fprintf(&b, " on line %d", e.Line)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if len(e.Problems) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Problems, "; "))
	}
	return b.String()
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// SecurityError is returned when injection protection rejects a value
// instead of neutralizing it.
type SecurityError struct {
	Field string
	Value string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("csvjson: field %q starts with a formula trigger: %q", e.Field, e.Value)
}

func (e *SecurityError) Is(target error) bool { return target == ErrUnsafeValue }

// ConfigurationError reports an invalid option value.
type ConfigurationError struct {
	Option string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("csvjson: invalid option %s: %s", e.Option, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }
