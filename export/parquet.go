// Package export writes decoded records to columnar formats.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/oleg578/csvjson"
)

// DefaultBatchRows is the number of rows buffered before a WriteRows call.
const DefaultBatchRows = 1024

// ErrNoColumns is returned when a file would have no columns.
var ErrNoColumns = errors.New("export: no columns")

// ParquetOptions configures a ParquetWriter.
type ParquetOptions struct {
	// Columns fixes the column set. Empty takes the first record's keys.
	Columns []string
	// Compression is "", "snappy", "gzip" or "zstd".
	Compression string
	// BatchRows bounds buffered rows. Zero means DefaultBatchRows.
	BatchRows int
}

// ParquetWriter writes records as a Parquet file with one optional UTF-8
// column per key. Values are rendered as they would appear in a CSV field;
// nil and missing keys are written as null.
type ParquetWriter struct {
	dst     io.Writer
	opts    ParquetOptions
	columns []string
	index   []int // column position in the schema per entry of columns
	w       *parquet.Writer
	rows    []parquet.Row
	count   int
	err     error
}

// NewParquetWriter returns a writer targeting dst.
func NewParquetWriter(dst io.Writer, opts ParquetOptions) (*ParquetWriter, error) {
	if _, err := compressionOption(opts.Compression); err != nil {
		return nil, err
	}
	if opts.BatchRows <= 0 {
		opts.BatchRows = DefaultBatchRows
	}
	pw := &ParquetWriter{dst: dst, opts: opts}
	if len(opts.Columns) > 0 {
		if err := pw.open(opts.Columns); err != nil {
			return nil, err
		}
	}
	return pw, nil
}

// Columns returns the column keys in first-seen order.
func (pw *ParquetWriter) Columns() []string { return pw.columns }

// Count returns the number of records written.
func (pw *ParquetWriter) Count() int { return pw.count }

// Write appends one record. Keys outside the column set are ignored.
func (pw *ParquetWriter) Write(rec *csvjson.Record) error {
	if pw.err != nil {
		return pw.err
	}
	if pw.w == nil {
		var keys []string
		if rec != nil {
			keys = rec.Keys()
		}
		if err := pw.open(keys); err != nil {
			pw.err = err
			return err
		}
	}

	row := make(parquet.Row, len(pw.columns))
	for i, key := range pw.columns {
		col := pw.index[i]
		var v any
		if rec != nil {
			v, _ = rec.Get(key)
		}
		s, ok := csvjson.FormatValue(v)
		if !ok {
			row[col] = parquet.NullValue().Level(0, 0, col)
			continue
		}
		row[col] = parquet.ByteArrayValue([]byte(s)).Level(0, 1, col)
	}
	pw.rows = append(pw.rows, row)
	pw.count++
	if len(pw.rows) >= pw.opts.BatchRows {
		return pw.flush()
	}
	return nil
}

// Close flushes buffered rows and writes the file footer.
func (pw *ParquetWriter) Close() error {
	if pw.err != nil {
		return pw.err
	}
	if pw.w == nil {
		pw.err = ErrNoColumns
		return pw.err
	}
	if err := pw.flush(); err != nil {
		return err
	}
	if err := pw.w.Close(); err != nil {
		pw.err = fmt.Errorf("export: close parquet: %w", err)
		return pw.err
	}
	pw.err = errors.New("export: writer closed")
	return nil
}

func (pw *ParquetWriter) open(keys []string) error {
	if len(keys) == 0 {
		return ErrNoColumns
	}
	group := make(parquet.Group, len(keys))
	for _, k := range keys {
		if _, dup := group[k]; dup {
			return fmt.Errorf("export: duplicate column %q", k)
		}
		group[k] = parquet.Optional(parquet.String())
	}
	schema := parquet.NewSchema("record", group)

	// Group orders its fields by name; rows are laid out in schema order.
	index := make([]int, len(keys))
	for i, k := range keys {
		leaf, ok := schema.Lookup(k)
		if !ok {
			return fmt.Errorf("export: column %q missing from schema", k)
		}
		index[i] = leaf.ColumnIndex
	}

	options := []parquet.WriterOption{schema}
	if c, _ := compressionOption(pw.opts.Compression); c != nil {
		options = append(options, c)
	}
	pw.columns = keys
	pw.index = index
	pw.w = parquet.NewWriter(pw.dst, options...)
	return nil
}

func (pw *ParquetWriter) flush() error {
	if len(pw.rows) == 0 {
		return nil
	}
	if _, err := pw.w.WriteRows(pw.rows); err != nil {
		pw.err = fmt.Errorf("export: write rows: %w", err)
		return pw.err
	}
	pw.rows = pw.rows[:0]
	return nil
}

func compressionOption(name string) (parquet.WriterOption, error) {
	switch name {
	case "":
		return nil, nil
	case "snappy":
		return parquet.Compression(&parquet.Snappy), nil
	case "gzip":
		return parquet.Compression(&parquet.Gzip), nil
	case "zstd":
		return parquet.Compression(&parquet.Zstd), nil
	default:
		return nil, fmt.Errorf("export: unsupported parquet compression: %q", name)
	}
}

// WriteParquet copies every record from in to dst and closes the file.
func WriteParquet(ctx context.Context, in csvjson.RecordReader, dst io.Writer, opts ParquetOptions) (int, error) {
	pw, err := NewParquetWriter(dst, opts)
	if err != nil {
		return 0, err
	}
	for {
		if err := ctx.Err(); err != nil {
			return pw.Count(), err
		}
		rec, err := in.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return pw.Count(), err
		}
		if err := pw.Write(rec); err != nil {
			return pw.Count(), err
		}
	}
	return pw.Count(), pw.Close()
}
