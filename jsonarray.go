package csvjson

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
)

// JSONArrayReader decodes a top-level JSON array of objects one element at a
// time, so the whole document is never held in memory.
type JSONArrayReader struct {
	src    *newlineCounter
	dec    *json.Decoder
	opts   DecodeOptions
	policy recordPolicy
	opened bool
	done   bool
	count  int
	err    error
}

// NewJSONArrayReader creates a JSONArrayReader over r. Only OnError, MaxRows,
// Schema, OnDiagnostic and Logger of opts are used.
func NewJSONArrayReader(r io.Reader, opts DecodeOptions) (*JSONArrayReader, error) {
	if r == nil {
		panic("csvjson: reader source cannot be nil")
	}
	if opts.MaxRows < 0 {
		return nil, &ConfigurationError{Option: "maxRows", Reason: "must not be negative"}
	}
	src := &newlineCounter{r: r}
	return &JSONArrayReader{
		src:    src,
		dec:    json.NewDecoder(src),
		opts:   opts,
		policy: newRecordPolicy(opts),
	}, nil
}

// Next returns the next array element.
func (r *JSONArrayReader) Next() (*Record, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.done {
		return nil, io.EOF
	}
	if !r.opened {
		tok, err := r.dec.Token()
		if err == io.EOF {
			r.done = true
			return nil, io.EOF
		}
		if err != nil {
			return nil, r.fail(r.syntaxError(err))
		}
		if d, ok := tok.(json.Delim); !ok || d != '[' {
			return nil, r.fail(&ValidationError{Line: r.line(), Reason: "input is not a JSON array"})
		}
		r.opened = true
	}

	for r.dec.More() {
		line := r.line()
		r.count++
		if r.opts.MaxRows > 0 && r.count > r.opts.MaxRows {
			return nil, r.fail(&LimitError{Limit: r.opts.MaxRows, Actual: r.count})
		}
		var raw json.RawMessage
		if err := r.dec.Decode(&raw); err != nil {
			return nil, r.fail(r.syntaxError(err))
		}
		rec := &Record{}
		if err := rec.UnmarshalJSON(raw); err != nil {
			rec, skip, err := r.policy.recover(jsonLineError(err, line), line, r.count)
			if err != nil {
				return nil, r.fail(err)
			}
			if skip {
				continue
			}
			return rec, nil
		}
		rec, skip, err := r.policy.validate(rec, line, r.count)
		if err != nil {
			return nil, r.fail(err)
		}
		if !skip {
			return rec, nil
		}
	}

	if _, err := r.dec.Token(); err != nil {
		return nil, r.fail(r.syntaxError(err))
	}
	r.done = true
	return nil, io.EOF
}

// Records exposes Next as a pull sequence.
func (r *JSONArrayReader) Records() iter.Seq2[*Record, error] {
	return recordSeq(r)
}

func (r *JSONArrayReader) fail(err error) error {
	r.err = err
	return err
}

// line returns the 1-based line of the next value: newlines pulled from the
// source minus those still sitting in the decoder's buffer ahead of it.
func (r *JSONArrayReader) line() int {
	ahead, _ := io.ReadAll(r.dec.Buffered())
	start := 0
	for start < len(ahead) && bytes.IndexByte([]byte(" \t\r\n,"), ahead[start]) >= 0 {
		start++
	}
	return r.src.lines - bytes.Count(ahead[start:], []byte{'\n'}) + 1
}

func (r *JSONArrayReader) syntaxError(err error) error {
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return &ParsingError{Line: r.line(), Err: fmt.Errorf("%w: unexpected end of input", ErrMalformedJSON)}
	}
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		return &ParsingError{Line: r.line(), Err: fmt.Errorf("%w: %s", ErrMalformedJSON, syn.Error())}
	}
	return err
}

type newlineCounter struct {
	r     io.Reader
	lines int
}

func (c *newlineCounter) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.lines += bytes.Count(p[:n], []byte{'\n'})
	return n, err
}

// JSONWriter writes records as one JSON array. Close must be called to
// terminate the array; an empty stream produces "[]".
type JSONWriter struct {
	w      *bufio.Writer
	indent string
	buf    bytes.Buffer
	count  int
	closed bool
}

// NewJSONWriter creates a JSONWriter over w. A non-empty indent pretty-prints
// each element on its own lines.
func NewJSONWriter(w io.Writer, indent string) *JSONWriter {
	if w == nil {
		panic("csvjson: writer destination cannot be nil")
	}
	return &JSONWriter{w: bufio.NewWriterSize(w, DefaultChunkSize), indent: indent}
}

// Write appends rec to the array. A nil record is written as null.
func (w *JSONWriter) Write(rec *Record) error {
	if rec == nil {
		return w.WriteValue(nil)
	}
	return w.WriteValue(rec)
}

// WriteValue appends any JSON-encodable value to the array.
func (w *JSONWriter) WriteValue(v any) error {
	if w.closed {
		return errors.New("csvjson: write to closed JSON writer")
	}
	w.buf.Reset()
	if err := writeJSONValue(&w.buf, v); err != nil {
		return err
	}
	sep := ","
	if w.count == 0 {
		sep = "["
	}
	if _, err := w.w.WriteString(sep); err != nil {
		return err
	}
	if w.indent == "" {
		if _, err := w.w.Write(w.buf.Bytes()); err != nil {
			return err
		}
	} else {
		var out bytes.Buffer
		if err := json.Indent(&out, w.buf.Bytes(), w.indent, w.indent); err != nil {
			return err
		}
		w.w.WriteByte('\n')
		w.w.WriteString(w.indent)
		if _, err := w.w.Write(out.Bytes()); err != nil {
			return err
		}
	}
	w.count++
	return nil
}

// Flush writes buffered output without closing the array.
func (w *JSONWriter) Flush() error { return w.w.Flush() }

// Close terminates the array and flushes.
func (w *JSONWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	switch {
	case w.count == 0:
		w.w.WriteString("[]")
	case w.indent != "":
		w.w.WriteString("\n]")
	default:
		w.w.WriteByte(']')
	}
	w.w.WriteByte('\n')
	return w.w.Flush()
}

// Count returns the number of elements written.
func (w *JSONWriter) Count() int { return w.count }
