package csvjson

import (
	"context"
	"errors"
	"log/slog"
)

// recordPolicy applies schema validation, OnError and diagnostics the same
// way for every record source.
type recordPolicy struct {
	opts   DecodeOptions
	logger *slog.Logger
}

func newRecordPolicy(opts DecodeOptions) recordPolicy {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return recordPolicy{opts: opts, logger: logger}
}

// validate runs the schema hook. It returns the record to hand out, whether
// the record is dropped, and the error that aborts the conversion.
func (p recordPolicy) validate(rec *Record, line, index int) (*Record, bool, error) {
	if p.opts.Schema == nil {
		return rec, false, nil
	}
	verr := p.opts.Schema.Validate(rec)
	if verr == nil {
		return rec, false, nil
	}
	var ve *ValidationError
	if !errors.As(verr, &ve) {
		ve = &ValidationError{Reason: verr.Error()}
	}
	if ve.Line == 0 {
		ve.Line = line
	}
	switch p.opts.OnError {
	case ErrorPolicySkip:
		p.diagnose(Diagnostic{Kind: DiagnosticRecordSkipped, Line: line, Record: index, Message: "record failed validation", Err: ve})
		return nil, true, nil
	case ErrorPolicyWarn:
		p.diagnose(Diagnostic{Kind: DiagnosticRecordWarned, Line: line, Record: index, Message: "record failed validation", Err: ve})
		for _, f := range ve.Fields {
			if _, ok := rec.Get(f); ok {
				rec.Set(f, nil)
			}
		}
		return rec, false, nil
	default:
		return nil, false, ve
	}
}

// recover handles a per-record failure that produced no record at all, such
// as an undecodable NDJSON line. Warn substitutes a null record.
func (p recordPolicy) recover(err error, line, index int) (*Record, bool, error) {
	switch p.opts.OnError {
	case ErrorPolicySkip:
		p.diagnose(Diagnostic{Kind: DiagnosticRecordSkipped, Line: line, Record: index, Message: "record dropped", Err: err})
		return nil, true, nil
	case ErrorPolicyWarn:
		p.diagnose(Diagnostic{Kind: DiagnosticRecordWarned, Line: line, Record: index, Message: "record replaced by null", Err: err})
		return nil, false, nil
	default:
		return nil, false, err
	}
}

func (p recordPolicy) diagnose(d Diagnostic) {
	level := slog.LevelWarn
	if d.Kind == DiagnosticStrategyFailover {
		level = slog.LevelDebug
	}
	attrs := []any{"kind", string(d.Kind), "line", d.Line, "record", d.Record}
	if d.Err != nil {
		attrs = append(attrs, "error", d.Err)
	}
	p.logger.Log(context.Background(), level, d.Message, attrs...)
	if p.opts.OnDiagnostic != nil {
		p.opts.OnDiagnostic(d)
	}
}
