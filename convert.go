package csvjson

import (
	"context"
	"io"
)

// ValueWriter is a JSON output stream. Close terminates the document.
type ValueWriter interface {
	WriteValue(v any) error
	Flush() error
	Close() error
	Count() int
}

// NewValueWriter returns the writer for format. indent only affects arrays.
func NewValueWriter(dst io.Writer, format JSONFormat, indent string) ValueWriter {
	if format == FormatNDJSON {
		return NewNDJSONWriter(dst)
	}
	return NewJSONWriter(dst, indent)
}

// CSVToJSON streams delimited text from src to JSON on dst and returns the
// number of records written. Without headers each row is written as an
// array of strings. The context is checked between records.
func CSVToJSON(ctx context.Context, src io.Reader, dst io.Writer, opts DecodeOptions, format JSONFormat) (int, error) {
	return DecodeTo(ctx, src, NewValueWriter(dst, format, ""), opts)
}

// DecodeTo is CSVToJSON over a caller supplied writer, which it closes on
// success.
func DecodeTo(ctx context.Context, src io.Reader, out ValueWriter, opts DecodeOptions) (int, error) {
	r, err := NewReader(src, opts)
	if err != nil {
		return 0, err
	}

	keyed := opts.HasHeaders || len(opts.Headers) > 0
	for {
		if err := ctx.Err(); err != nil {
			out.Flush()
			return out.Count(), err
		}
		var v any
		if keyed {
			rec, err := r.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				out.Flush()
				return out.Count(), err
			}
			v = rec
		} else {
			row, err := r.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				out.Flush()
				return out.Count(), err
			}
			v = row
		}
		if err := out.WriteValue(v); err != nil {
			return out.Count(), err
		}
	}
	return out.Count(), out.Close()
}

// JSONToCSV streams JSON objects from src to delimited text on dst and
// returns the number of records written. The header set is fixed by opts or
// by the first object. Reading is strict: any malformed element aborts.
func JSONToCSV(ctx context.Context, src io.Reader, dst io.Writer, opts EncodeOptions, format JSONFormat) (int, error) {
	var in RecordReader
	var err error
	switch format {
	case FormatNDJSON:
		in, err = NewNDJSONReader(src, DecodeOptions{})
	default:
		in, err = NewJSONArrayReader(src, DecodeOptions{})
	}
	if err != nil {
		return 0, err
	}
	return Copy(ctx, in, dst, opts)
}

// Copy drains in into a Writer over dst.
func Copy(ctx context.Context, in RecordReader, dst io.Writer, opts EncodeOptions) (int, error) {
	w, err := NewWriter(dst, opts)
	if err != nil {
		return 0, err
	}
	for {
		if err := ctx.Err(); err != nil {
			w.Flush()
			return w.Count(), err
		}
		rec, err := in.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			w.Flush()
			return w.Count(), err
		}
		if err := w.Write(rec); err != nil {
			w.Flush()
			return w.Count(), err
		}
	}
	if err := w.Flush(); err != nil {
		return w.Count(), err
	}
	return w.Count(), w.Error()
}
