package csvjson

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"iter"
)

var errWriterNoTarget = errors.New("csvjson: writer destination cannot be nil")

// Writer encodes records as delimited text. Output is buffered up to
// EncodeOptions.ChunkSize before it is handed to the destination, so the
// destination paces the encoder.
//
// The column set is fixed by the first Write (or by WriteAll over all its
// records); keys outside it are not written.
type Writer struct {
	dst     *bufio.Writer
	opts    EncodeOptions
	enc     FieldEncoder
	newline string
	comma   byte

	headers       []string
	headerWritten bool
	line          []byte
	count         int

	err error
}

// NewWriter creates a Writer over w, panicking if w is nil. Invalid options
// are reported as a *ConfigurationError.
func NewWriter(w io.Writer, opts EncodeOptions) (*Writer, error) {
	if w == nil {
		panic(errWriterNoTarget.Error())
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	size := opts.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	wr := &Writer{
		dst:     bufio.NewWriterSize(w, size),
		opts:    opts,
		enc:     newFieldEncoder(opts),
		newline: opts.newline(),
		comma:   opts.delimiter(),
		line:    make([]byte, 0, 256),
	}
	if len(opts.Headers) > 0 {
		wr.headers = append([]string(nil), opts.Headers...)
	}
	return wr, nil
}

// Write encodes one record, writing the header line first when enabled.
func (w *Writer) Write(rec *Record) error {
	if w.err != nil {
		return w.err
	}
	if w.headers == nil {
		w.setHeaders(ResolveHeaders([]*Record{rec}, w.opts))
	}
	if w.opts.IncludeHeaders && !w.headerWritten {
		if err := w.writeHeader(); err != nil {
			w.err = err
			return err
		}
		w.headerWritten = true
	}
	if w.opts.MaxRecords > 0 && w.count+1 > w.opts.MaxRecords {
		w.err = &LimitError{Limit: w.opts.MaxRecords, Actual: w.count + 1}
		return w.err
	}

	w.line = w.line[:0]
	for i, key := range w.headers {
		if i > 0 {
			w.line = append(w.line, w.comma)
		}
		v, _ := rec.Get(key)
		field, err := w.enc.Encode(key, v)
		if err != nil {
			// A rejected value leaves the stream usable.
			return err
		}
		w.line = append(w.line, field...)
	}
	if len(w.headers) == 1 && len(w.line) == 0 {
		// A lone empty field would read back as a blank line.
		w.line = append(w.line, '"', '"')
	}
	w.line = append(w.line, w.newline...)
	if _, err := w.dst.Write(w.line); err != nil {
		w.err = err
		return err
	}
	w.count++
	return nil
}

// WriteAll resolves the columns over every record when they are not fixed
// yet, then writes the records, stopping at the first error.
func (w *Writer) WriteAll(records []*Record) error {
	if w.headers == nil && w.count == 0 {
		w.setHeaders(ResolveHeaders(records, w.opts))
	}
	for _, rec := range records {
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes pending buffered data to the underlying writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		var le *LimitError
		if !errors.As(w.err, &le) {
			return w.err
		}
	}
	if err := w.dst.Flush(); err != nil {
		w.err = err
		return err
	}
	return nil
}

// Error reports the first error encountered by the writer.
func (w *Writer) Error() error {
	return w.err
}

// Headers returns the column keys, or nil before the first record.
func (w *Writer) Headers() []string { return w.headers }

// Count returns the number of records written.
func (w *Writer) Count() int { return w.count }

func (w *Writer) setHeaders(keys []string) {
	if keys == nil {
		keys = []string{}
	}
	w.headers = keys
}

func (w *Writer) writeHeader() error {
	w.line = w.line[:0]
	for i, name := range headerLine(w.headers, w.opts.RenameMap) {
		if i > 0 {
			w.line = append(w.line, w.comma)
		}
		field, err := w.enc.Encode(name, name)
		if err != nil {
			return err
		}
		w.line = append(w.line, field...)
	}
	if len(w.headers) == 1 && len(w.line) == 0 {
		w.line = append(w.line, '"', '"')
	}
	w.line = append(w.line, w.newline...)
	_, err := w.dst.Write(w.line)
	return err
}

// Encode writes records as delimited text, with columns resolved over all of them.
func Encode(records []*Record, opts EncodeOptions) ([]byte, error) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, opts)
	if err != nil {
		return nil, err
	}
	if err := w.WriteAll(records); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeChunks encodes a record sequence lazily. Each yielded chunk holds at
// least ChunkSize bytes except the last one; the next record is not pulled
// until the consumer asks for the next chunk. Columns come from the first record.
func EncodeChunks(records iter.Seq[*Record], opts EncodeOptions) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		var buf bytes.Buffer
		w, err := NewWriter(&buf, opts)
		if err != nil {
			yield(nil, err)
			return
		}
		emit := func() bool {
			if buf.Len() == 0 {
				return true
			}
			chunk := bytes.Clone(buf.Bytes())
			buf.Reset()
			return yield(chunk, nil)
		}
		for rec := range records {
			if err := w.Write(rec); err != nil {
				if w.Flush() == nil && !emit() {
					return
				}
				yield(nil, err)
				return
			}
			if !emit() {
				return
			}
		}
		if err := w.Flush(); err != nil {
			yield(nil, err)
			return
		}
		emit()
	}
}
