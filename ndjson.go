package csvjson

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
)

// JSONFormat selects the JSON side of a conversion.
type JSONFormat int

const (
	// FormatJSON is a single JSON array of objects.
	FormatJSON JSONFormat = iota
	// FormatNDJSON is one JSON object per line.
	FormatNDJSON
)

func (f JSONFormat) String() string {
	if f == FormatNDJSON {
		return "ndjson"
	}
	return "json"
}

// ParseJSONFormat maps "json", "array", "ndjson" or "jsonl" to a JSONFormat.
func ParseJSONFormat(s string) (JSONFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "array", "":
		return FormatJSON, nil
	case "ndjson", "jsonl", "jsonlines":
		return FormatNDJSON, nil
	}
	return FormatJSON, &ConfigurationError{Option: "format", Reason: fmt.Sprintf("unknown JSON format %q", s)}
}

// RecordReader is a pull source of keyed records. Next returns io.EOF at the
// end of input.
type RecordReader interface {
	Next() (*Record, error)
}

// RecordWriter accepts keyed records and flushes them to its destination.
type RecordWriter interface {
	Write(rec *Record) error
	Flush() error
}

// NDJSONReader decodes newline-delimited JSON objects. Blank lines are
// ignored. Lines that are not objects, or not JSON at all, are handled by
// DecodeOptions.OnError; under ErrorPolicyWarn they yield a nil record.
type NDJSONReader struct {
	lr     *lineReader
	opts   DecodeOptions
	policy recordPolicy
	count  int
	err    error
}

// NewNDJSONReader creates an NDJSONReader over r. Only OnError, MaxRows,
// Schema, OnDiagnostic, Logger and BufferSize of opts are used.
func NewNDJSONReader(r io.Reader, opts DecodeOptions) (*NDJSONReader, error) {
	if r == nil {
		panic("csvjson: reader source cannot be nil")
	}
	if opts.MaxRows < 0 {
		return nil, &ConfigurationError{Option: "maxRows", Reason: "must not be negative"}
	}
	return &NDJSONReader{
		lr:     newLineReader(r, opts.BufferSize),
		opts:   opts,
		policy: newRecordPolicy(opts),
	}, nil
}

// Next returns the next object.
func (r *NDJSONReader) Next() (*Record, error) {
	if r.err != nil {
		return nil, r.err
	}
	for {
		line, _, err := r.lr.readLine()
		if err != nil {
			if err != io.EOF {
				r.err = err
			}
			return nil, err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		num := r.lr.line
		r.count++
		if r.opts.MaxRows > 0 && r.count > r.opts.MaxRows {
			r.err = &LimitError{Limit: r.opts.MaxRows, Actual: r.count}
			return nil, r.err
		}

		rec := &Record{}
		if err := rec.UnmarshalJSON([]byte(line)); err != nil {
			rec, skip, err := r.policy.recover(jsonLineError(err, num), num, r.count)
			if err != nil {
				r.err = err
				return nil, err
			}
			if skip {
				continue
			}
			return rec, nil
		}
		rec, skip, err := r.policy.validate(rec, num, r.count)
		if err != nil {
			r.err = err
			return nil, err
		}
		if !skip {
			return rec, nil
		}
	}
}

// Records exposes Next as a pull sequence.
func (r *NDJSONReader) Records() iter.Seq2[*Record, error] {
	return recordSeq(r)
}

func jsonLineError(err error, line int) error {
	if errors.Is(err, errNotObject) {
		return &ValidationError{Line: line, Reason: "value is not a JSON object"}
	}
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		return &ParsingError{Line: line, Column: int(syn.Offset), Err: fmt.Errorf("%w: %s", ErrMalformedJSON, syn.Error())}
	}
	return &ParsingError{Line: line, Err: fmt.Errorf("%w: %s", ErrMalformedJSON, err.Error())}
}

func recordSeq(r RecordReader) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		for {
			rec, err := r.Next()
			if err == io.EOF {
				return
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

// NDJSONWriter writes one compact JSON value per line.
type NDJSONWriter struct {
	w     *bufio.Writer
	buf   bytes.Buffer
	count int
}

// NewNDJSONWriter creates an NDJSONWriter over w.
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	if w == nil {
		panic("csvjson: writer destination cannot be nil")
	}
	return &NDJSONWriter{w: bufio.NewWriterSize(w, DefaultChunkSize)}
}

// Write appends rec as one line. A nil record is written as null.
func (w *NDJSONWriter) Write(rec *Record) error {
	if rec == nil {
		return w.WriteValue(nil)
	}
	return w.WriteValue(rec)
}

// WriteValue appends any JSON-encodable value as one line.
func (w *NDJSONWriter) WriteValue(v any) error {
	w.buf.Reset()
	if err := writeJSONValue(&w.buf, v); err != nil {
		return err
	}
	w.buf.WriteByte('\n')
	if _, err := w.w.Write(w.buf.Bytes()); err != nil {
		return err
	}
	w.count++
	return nil
}

// Flush writes buffered output.
func (w *NDJSONWriter) Flush() error { return w.w.Flush() }

// Close flushes buffered output. NDJSON needs no terminator.
func (w *NDJSONWriter) Close() error { return w.w.Flush() }

// Count returns the number of values written.
func (w *NDJSONWriter) Count() int { return w.count }
