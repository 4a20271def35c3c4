package csvjson

import (
	"fmt"
	"log/slog"
	"strings"
)

const (
	// DefaultDelimiter is used when inference finds no winner and no delimiter is configured.
	DefaultDelimiter = ';'
	// DefaultChunkSize is the encode-direction buffering threshold in bytes.
	DefaultChunkSize = 64 << 10
)

// DefaultCandidates is the delimiter candidate set used by inference.
var DefaultCandidates = []byte{',', ';', '\t', '|'}

// ErrorPolicy selects how per-record failures are handled.
type ErrorPolicy uint8

const (
	// ErrorPolicyThrow aborts the conversion on the first failure.
	ErrorPolicyThrow ErrorPolicy = iota
	// ErrorPolicyWarn reports a diagnostic, substitutes null and continues.
	ErrorPolicyWarn
	// ErrorPolicySkip drops the failing record and continues.
	ErrorPolicySkip
)

func (p ErrorPolicy) String() string {
	switch p {
	case ErrorPolicyThrow:
		return "throw"
	case ErrorPolicyWarn:
		return "warn"
	case ErrorPolicySkip:
		return "skip"
	default:
		return fmt.Sprintf("ErrorPolicy(%d)", uint8(p))
	}
}

// ParseErrorPolicy maps "throw", "warn" or "skip" onto an ErrorPolicy.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "throw":
		return ErrorPolicyThrow, nil
	case "warn":
		return ErrorPolicyWarn, nil
	case "skip":
		return ErrorPolicySkip, nil
	}
	return 0, &ConfigurationError{Option: "onError", Reason: fmt.Sprintf("unknown policy %q", s)}
}

// InjectionPolicy selects what the encoder does with formula-trigger values.
type InjectionPolicy uint8

const (
	// InjectionNeutralize prefixes the value with a single quote.
	InjectionNeutralize InjectionPolicy = iota
	// InjectionReject fails the write with a *SecurityError.
	InjectionReject
)

// Validator checks a decoded record. A non-nil error counts as a schema
// rejection and is handled according to DecodeOptions.OnError.
type Validator interface {
	Validate(rec *Record) error
}

// DiagnosticKind classifies non-fatal events reported during decoding.
type DiagnosticKind string

const (
	DiagnosticExtraFields      DiagnosticKind = "extra_fields"
	DiagnosticRecordWarned     DiagnosticKind = "record_warned"
	DiagnosticRecordSkipped    DiagnosticKind = "record_skipped"
	DiagnosticStrategyFailover DiagnosticKind = "strategy_failover"
)

// Diagnostic is a non-fatal event. Record is the 1-based data record index.
type Diagnostic struct {
	Kind    DiagnosticKind
	Line    int
	Record  int
	Message string
	Err     error
}

// DecodeOptions configures the decode direction.
//
// The zero value decodes headerless rows split on ','. Use DefaultDecodeOptions
// for the documented defaults.
type DecodeOptions struct {
	// Delimiter overrides inference when non-zero.
	Delimiter byte
	// AutoDetect infers the delimiter from the first non-empty line.
	AutoDetect bool
	// Candidates limits inference. Empty means DefaultCandidates.
	Candidates []byte
	// HasHeaders treats the first record as header keys.
	HasHeaders bool
	// Headers presets the header keys; the input then carries no header line.
	Headers []string
	// RenameMap substitutes header keys 1:1.
	RenameMap map[string]string
	// Trim strips surrounding whitespace from values.
	Trim bool
	// ParseNumbers converts fields matching the decimal grammar to float64.
	ParseNumbers bool
	// ParseBooleans converts "true"/"false" (any case) to bool.
	ParseBooleans bool
	// StripInjectionPrefix removes the quote the encoder adds in front of formula triggers.
	StripInjectionPrefix bool
	// MaxRows caps the number of data records. Zero means unlimited.
	MaxRows int
	// Schema validates each record when set.
	Schema Validator
	// OnError applies to schema and NDJSON line failures.
	OnError ErrorPolicy
	// OnDiagnostic receives non-fatal diagnostics.
	OnDiagnostic func(Diagnostic)
	// Logger receives diagnostics at warn level. Nil uses slog.Default().
	Logger *slog.Logger
	// BufferSize is the read buffer size in bytes.
	BufferSize int
}

// DefaultDecodeOptions returns the documented decode defaults.
func DefaultDecodeOptions() DecodeOptions {
	return DecodeOptions{
		AutoDetect:           true,
		Candidates:           DefaultCandidates,
		HasHeaders:           true,
		Trim:                 true,
		StripInjectionPrefix: true,
		BufferSize:           defaultBufferSize,
	}
}

// DefaultTSVDecodeOptions returns DefaultDecodeOptions fixed to tab separation.
func DefaultTSVDecodeOptions() DecodeOptions {
	opts := DefaultDecodeOptions()
	opts.Delimiter = '\t'
	opts.AutoDetect = false
	return opts
}

// Validate reports the first invalid option as a *ConfigurationError.
func (o DecodeOptions) Validate() error {
	if o.Delimiter != 0 {
		if err := validateDelimiter("delimiter", o.Delimiter); err != nil {
			return err
		}
	}
	for _, c := range o.Candidates {
		if err := validateDelimiter("candidates", c); err != nil {
			return err
		}
	}
	if o.MaxRows < 0 {
		return &ConfigurationError{Option: "maxRows", Reason: "must not be negative"}
	}
	if o.BufferSize < 0 {
		return &ConfigurationError{Option: "bufferSize", Reason: "must not be negative"}
	}
	if o.OnError > ErrorPolicySkip {
		return &ConfigurationError{Option: "onError", Reason: "unknown policy " + o.OnError.String()}
	}
	for from, to := range o.RenameMap {
		if from == "" || to == "" {
			return &ConfigurationError{Option: "renameMap", Reason: "keys and values must be non-empty"}
		}
	}
	return nil
}

// EncodeOptions configures the encode direction.
type EncodeOptions struct {
	// Delimiter separates fields. Zero means DefaultDelimiter.
	Delimiter byte
	// IncludeHeaders writes the header line first.
	IncludeHeaders bool
	// Headers fixes the complete key order; keys outside it are dropped.
	Headers []string
	// RenameMap substitutes output header names 1:1.
	RenameMap map[string]string
	// Template fixes a key prefix order; other keys follow in first-seen order.
	Template []string
	// MaxRecords caps the number of records written. Zero means unlimited.
	MaxRecords int
	// PreventCSVInjection guards against spreadsheet formula execution.
	PreventCSVInjection bool
	// InjectionPolicy selects neutralization or rejection.
	InjectionPolicy InjectionPolicy
	// RFC4180Compliant terminates records with CRLF instead of LF.
	RFC4180Compliant bool
	// ChunkSize is the buffering threshold before output is handed downstream.
	ChunkSize int
}

// DefaultEncodeOptions returns the documented encode defaults.
func DefaultEncodeOptions() EncodeOptions {
	return EncodeOptions{
		Delimiter:           DefaultDelimiter,
		IncludeHeaders:      true,
		PreventCSVInjection: true,
		RFC4180Compliant:    true,
		ChunkSize:           DefaultChunkSize,
	}
}

// DefaultTSVEncodeOptions returns DefaultEncodeOptions fixed to tab separation.
func DefaultTSVEncodeOptions() EncodeOptions {
	opts := DefaultEncodeOptions()
	opts.Delimiter = '\t'
	return opts
}

// Validate reports the first invalid option as a *ConfigurationError.
func (o EncodeOptions) Validate() error {
	if o.Delimiter != 0 {
		if err := validateDelimiter("delimiter", o.Delimiter); err != nil {
			return err
		}
	}
	if o.MaxRecords < 0 {
		return &ConfigurationError{Option: "maxRecords", Reason: "must not be negative"}
	}
	if o.ChunkSize < 0 {
		return &ConfigurationError{Option: "chunkSize", Reason: "must not be negative"}
	}
	if o.InjectionPolicy > InjectionReject {
		return &ConfigurationError{Option: "injectionPolicy", Reason: "unknown policy"}
	}
	seen := make(map[string]struct{}, len(o.Template))
	for _, k := range o.Template {
		if _, dup := seen[k]; dup {
			return &ConfigurationError{Option: "template", Reason: fmt.Sprintf("duplicate key %q", k)}
		}
		seen[k] = struct{}{}
	}
	return nil
}

func (o EncodeOptions) delimiter() byte {
	if o.Delimiter == 0 {
		return DefaultDelimiter
	}
	return o.Delimiter
}

func (o EncodeOptions) newline() string {
	if o.RFC4180Compliant {
		return "\r\n"
	}
	return "\n"
}

func validateDelimiter(option string, c byte) error {
	switch {
	case c == '"' || c == '\\':
		return &ConfigurationError{Option: option, Reason: fmt.Sprintf("%q is reserved for quoting", c)}
	case c == '\r' || c == '\n':
		return &ConfigurationError{Option: option, Reason: "line terminators cannot separate fields"}
	case c == 0 || c >= 0x80:
		return &ConfigurationError{Option: option, Reason: "must be a single ASCII character"}
	}
	return nil
}
