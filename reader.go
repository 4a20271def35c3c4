package csvjson

import (
	"fmt"
	"io"
	"iter"
)

// ParseState is a snapshot of the cursor's state between pulls.
type ParseState struct {
	// Pending holds input read from the source but not yet consumed.
	Pending      string
	InsideQuotes bool
	LineNumber   int
	RecordCount  int
	Delimiter    byte
	Headers      []string
	Strategy     Strategy
}

// Reader is the streaming decode cursor. It pulls physical lines from the
// source only as needed for the next record, resolves the delimiter, the
// tokenizer strategy and the headers lazily on the first non-empty line, and
// keeps that resolution for the rest of the stream.
//
// A Reader is owned by one conversion and is not safe for concurrent use.
// Abandoning it mid-stream needs no cleanup.
type Reader struct {
	lr      *lineReader
	opts    DecodeOptions
	coercer Coercer
	policy  recordPolicy

	tok      *rowTokenizer
	comma    byte
	strategy Strategy
	resolved bool

	headers     []string
	headersDone bool
	recordCount int
	lastLine    int

	err error
}

// NewReader creates a Reader over r, panicking if r is nil. Invalid options
// are reported as a *ConfigurationError.
func NewReader(r io.Reader, opts DecodeOptions) (*Reader, error) {
	if r == nil {
		panic("csvjson: reader source cannot be nil")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	rd := &Reader{
		lr:      newLineReader(r, opts.BufferSize),
		opts:    opts,
		coercer: newCoercer(opts),
		policy:  newRecordPolicy(opts),
	}
	if len(opts.Headers) > 0 {
		rd.headers = decodeHeaders(opts.Headers, opts.RenameMap, false)
		rd.headersDone = true
	}
	return rd, nil
}

// Next returns the next record keyed by header. It returns io.EOF when the
// input is exhausted. Records that fail schema validation are returned,
// reported or dropped according to DecodeOptions.OnError.
func (r *Reader) Next() (*Record, error) {
	if !r.opts.HasHeaders && len(r.opts.Headers) == 0 {
		return nil, &ConfigurationError{Option: "hasHeaders", Reason: "keyed records need headers; use Read for raw rows"}
	}
	for {
		fields, err := r.Read()
		if err != nil {
			return nil, err
		}
		rec, skip, err := r.policy.validate(r.buildRecord(fields), r.lastLine, r.recordCount)
		if err != nil {
			r.err = err
			return nil, err
		}
		if !skip {
			return rec, nil
		}
	}
}

// Read returns the raw fields of the next data record, after the header
// record when headers are enabled. The returned slice is owned by the caller.
func (r *Reader) Read() ([]string, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.opts.HasHeaders && !r.headersDone {
		raw, _, err := r.readRecord()
		if err != nil {
			return nil, r.fail(err)
		}
		r.headers = decodeHeaders(raw, r.opts.RenameMap, r.opts.StripInjectionPrefix)
		r.headersDone = true
	}

	fields, line, err := r.readRecord()
	if err != nil {
		return nil, r.fail(err)
	}
	r.lastLine = line
	r.recordCount++
	if r.opts.MaxRows > 0 && r.recordCount > r.opts.MaxRows {
		r.err = &LimitError{Limit: r.opts.MaxRows, Actual: r.recordCount}
		return nil, r.err
	}
	return fields, nil
}

// ReadAll exhausts the reader and returns every raw data record.
func (r *Reader) ReadAll() (records [][]string, err error) {
	for {
		record, err := r.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
}

// Records exposes Next as a pull sequence. Iteration stops after the first error.
func (r *Reader) Records() iter.Seq2[*Record, error] {
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

// Headers returns the resolved header keys, or nil before the header record
// has been read.
func (r *Reader) Headers() []string { return r.headers }

// Delimiter returns the resolved delimiter, or zero before the first line.
func (r *Reader) Delimiter() byte { return r.comma }

// Strategy returns the active tokenizer strategy.
func (r *Reader) Strategy() Strategy { return r.strategy }

// State returns a snapshot of the cursor state.
func (r *Reader) State() ParseState {
	inQuotes := false
	if r.tok != nil {
		inQuotes = r.tok.inQuotes()
	}
	return ParseState{
		Pending:      string(r.lr.pending) + r.lr.buffered(),
		InsideQuotes: inQuotes,
		LineNumber:   r.lr.line,
		RecordCount:  r.recordCount,
		Delimiter:    r.comma,
		Headers:      r.headers,
		Strategy:     r.strategy,
	}
}

func (r *Reader) fail(err error) error {
	if err != io.EOF {
		r.err = err
	}
	return err
}

// readRecord returns the raw fields of the next logical record, skipping
// blank lines, together with the line number the record starts on.
func (r *Reader) readRecord() ([]string, int, error) {
	for {
		line, term, err := r.lr.readLine()
		if err != nil {
			return nil, 0, err
		}
		if line == "" {
			continue
		}
		start := r.lr.line
		if !r.resolved {
			r.resolve(line)
		}

		if r.strategy == StrategySimple {
			if Analyze(line) == StrategySimple {
				return SplitSimple(line, r.comma), start, nil
			}
			// Forward-only failover; records already returned stay as they are.
			r.strategy = StrategyQuoteAware
			r.policy.diagnose(Diagnostic{
				Kind:    DiagnosticStrategyFailover,
				Line:    start,
				Record:  r.recordCount + 1,
				Message: "quote or escape found after simple strategy was selected",
			})
		}

		r.tok.reset()
		for !r.tok.feed(line) {
			if term == "" {
				return nil, 0, r.tok.unterminated(start)
			}
			r.tok.continueLine(term)
			line, term, err = r.lr.readLine()
			if err == io.EOF {
				return nil, 0, r.tok.unterminated(start)
			}
			if err != nil {
				return nil, 0, err
			}
		}
		return r.tok.fields, start, nil
	}
}

// resolve fixes the delimiter and strategy from the first non-empty line and
// whatever input is already buffered behind it.
func (r *Reader) resolve(line string) {
	switch {
	case r.opts.Delimiter != 0:
		r.comma = r.opts.Delimiter
	case r.opts.AutoDetect:
		r.comma = InferDelimiter(line, r.opts.Candidates)
	default:
		r.comma = ','
	}
	r.strategy = Analyze(line + r.lr.buffered())
	r.tok = newRowTokenizer(r.comma)
	r.resolved = true
}

func (r *Reader) buildRecord(fields []string) *Record {
	rec := NewRecord(len(r.headers))
	for i, key := range r.headers {
		if i < len(fields) {
			rec.Set(key, r.coercer.Coerce(fields[i]))
		} else {
			rec.Set(key, nil)
		}
	}
	if extra := len(fields) - len(r.headers); extra > 0 {
		r.policy.diagnose(Diagnostic{
			Kind:    DiagnosticExtraFields,
			Line:    r.lastLine,
			Record:  r.recordCount,
			Message: fmt.Sprintf("%d field(s) beyond %d headers truncated", extra, len(r.headers)),
		})
	}
	return rec
}

// Decode reads every record from src. Headers are required.
func Decode(src io.Reader, opts DecodeOptions) ([]*Record, error) {
	r, err := NewReader(src, opts)
	if err != nil {
		return nil, err
	}
	var out []*Record
	for rec, err := range r.Records() {
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// DecodeRows reads every raw data row from src.
func DecodeRows(src io.Reader, opts DecodeOptions) ([][]string, error) {
	r, err := NewReader(src, opts)
	if err != nil {
		return nil, err
	}
	return r.ReadAll()
}
