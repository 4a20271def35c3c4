package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oleg578/csvjson"
	"github.com/oleg578/csvjson/cache"
	"github.com/oleg578/csvjson/config"
	"github.com/oleg578/csvjson/export"
	"github.com/oleg578/csvjson/fanout"
	"github.com/oleg578/csvjson/sink"
	"github.com/oleg578/csvjson/source"
)

// drainTimeout bounds how long the pool may take to finish queued inputs
// once every job is submitted.
const drainTimeout = time.Duration(math.MaxInt64)

// s3Client serves both reads and uploads.
type s3Client interface {
	source.S3Getter
	sink.S3Putter
}

// converterIO carries the process streams and, in tests, a fake S3 client.
type converterIO struct {
	stdin  io.Reader
	stdout io.Writer
	s3     s3Client
}

type job struct {
	index  int
	input  string
	output string
}

type converter struct {
	dir     direction
	cfg     *config.Config
	logger  *slog.Logger
	streams converterIO

	decodeOpts   csvjson.DecodeOptions
	encodeOpts   csvjson.EncodeOptions
	decodeFormat csvjson.JSONFormat
	encodeFormat csvjson.JSONFormat
	compression  source.Compression
	contentType  string
	parquet      export.ParquetOptions

	registry *prometheus.Registry
	cache    *cache.Converter
	fanout   *fanout.Fanout
}

func newConverter(ctx context.Context, cfg *config.Config, dir direction, jobs []job, streams converterIO, f flags, logger *slog.Logger) (*converter, error) {
	c := &converter{
		dir:      dir,
		cfg:      cfg,
		logger:   logger,
		streams:  streams,
		registry: prometheus.NewRegistry(),
	}

	var err error
	if c.compression, err = source.ParseCompression(f.compression); err != nil {
		return nil, err
	}
	if c.decodeOpts, err = cfg.DecodeOptions(); err != nil {
		return nil, err
	}
	c.decodeOpts.Logger = logger
	if c.encodeOpts, err = cfg.EncodeOptions(); err != nil {
		return nil, err
	}
	if c.decodeFormat, err = cfg.DecodeFormat(); err != nil {
		return nil, err
	}
	if c.encodeFormat, err = cfg.EncodeFormat(); err != nil {
		return nil, err
	}
	c.contentType = f.contentType
	if c.contentType == "" {
		c.contentType = contentType(dir, c.decodeFormat)
	}

	keyed := c.decodeOpts.HasHeaders || len(c.decodeOpts.Headers) > 0
	switch dir {
	case toParquet:
		if !keyed {
			return nil, &csvjson.ConfigurationError{Option: "headers", Reason: "parquet columns need a header line or --headers"}
		}
		codec := f.parquetCodec
		if codec == "none" {
			codec = ""
		}
		c.parquet = export.ParquetOptions{Compression: codec}
	case toJSON:
		if cfg.Cache.Size > 0 && cfg.Decode.Indent == "" {
			c.cache, err = cache.New(c.decodeOpts, c.decodeFormat, cache.Config{
				Size:         cfg.Cache.Size,
				MaxInputSize: cfg.Cache.MaxInputSize,
				Registerer:   c.registry,
			})
			if err != nil {
				return nil, err
			}
		}
	}
	if cfg.Fanout.Enabled && dir != toCSV {
		if keyed {
			settings := cfg.FanoutSettings()
			settings.Registerer = c.registry
			if c.fanout, err = fanout.New(c.decodeOpts, settings); err != nil {
				return nil, err
			}
		} else {
			logger.Warn("parallel decoding needs headers, decoding sequentially")
		}
	}

	if c.streams.s3 == nil && usesS3(jobs) {
		client, err := source.NewS3Client(ctx)
		if err != nil {
			return nil, err
		}
		c.streams.s3 = client
	}
	return c, nil
}

func usesS3(jobs []job) bool {
	for _, j := range jobs {
		if strings.HasPrefix(j.input, "s3://") || strings.HasPrefix(j.output, "s3://") {
			return true
		}
	}
	return false
}

// runAll converts every job on a bounded pool and reports failures in
// input order.
func (c *converter) runAll(ctx context.Context, jobs []job) error {
	var mu sync.Mutex
	failures := make(map[int]error)

	pool := fanout.NewPool(c.cfg.Fanout.Files, len(jobs), func(ctx context.Context, j job) error {
		err := c.convert(ctx, j)
		if err != nil {
			mu.Lock()
			failures[j.index] = fmt.Errorf("%s: %w", j.input, err)
			mu.Unlock()
		}
		return err
	}, fanout.WithRegisterer[job](c.registry, "csvjson_files"))

	if err := pool.Start(ctx); err != nil {
		return err
	}
	for _, j := range jobs {
		if err := pool.SubmitWait(ctx, j); err != nil {
			_ = pool.Stop(drainTimeout)
			return err
		}
	}
	if err := pool.Stop(drainTimeout); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stats := pool.Stats()
	if len(jobs) > 1 {
		c.logger.Info("batch finished", "inputs", len(jobs), "failed", stats.Failed)
	}
	errs := make([]error, 0, len(failures))
	for _, j := range jobs {
		if err, ok := failures[j.index]; ok {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *converter) convert(ctx context.Context, j job) error {
	start := time.Now()

	srcOpts := source.Options{S3: c.streams.s3, Stdin: c.streams.stdin}
	if c.dir != toCSV {
		srcOpts.Charset = c.cfg.Decode.Charset
	}
	in, err := source.Open(ctx, j.input, srcOpts)
	if err != nil {
		return err
	}
	defer in.Close()

	sinkOpts := sink.Options{
		Compression: c.compression,
		ContentType: c.contentType,
		S3:          c.streams.s3,
		Stdout:      c.streams.stdout,
	}
	if c.dir == toCSV {
		sinkOpts.Charset = c.cfg.Encode.Charset
	}
	out, err := sink.Create(ctx, j.output, sinkOpts)
	if err != nil {
		return err
	}

	n, err := c.convertStream(ctx, in, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	attrs := []any{"input", j.input, "output", j.output, "duration", time.Since(start)}
	if n >= 0 {
		attrs = append(attrs, "records", n)
	}
	c.logger.Info("converted", attrs...)
	return nil
}

// convertStream returns the number of records written, or -1 when the
// result came from the cache.
func (c *converter) convertStream(ctx context.Context, in io.Reader, out io.Writer) (int, error) {
	switch c.dir {
	case toCSV:
		return csvjson.JSONToCSV(ctx, in, out, c.encodeOpts, c.encodeFormat)

	case toParquet:
		if c.fanout == nil {
			r, err := csvjson.NewReader(in, c.decodeOpts)
			if err != nil {
				return 0, err
			}
			return export.WriteParquet(ctx, r, out, c.parquet)
		}
		records, err := c.decodeAll(ctx, in)
		if err != nil {
			return 0, err
		}
		pw, err := export.NewParquetWriter(out, c.parquet)
		if err != nil {
			return 0, err
		}
		for _, rec := range records {
			if err := pw.Write(rec); err != nil {
				return pw.Count(), err
			}
		}
		return pw.Count(), pw.Close()

	default:
		if c.cache != nil {
			data, err := io.ReadAll(in)
			if err != nil {
				return 0, err
			}
			b, err := c.cache.CSVToJSON(ctx, data)
			if err != nil {
				return 0, err
			}
			_, err = out.Write(b)
			return -1, err
		}
		w := csvjson.NewValueWriter(out, c.decodeFormat, c.cfg.Decode.Indent)
		if c.fanout == nil {
			return csvjson.DecodeTo(ctx, in, w, c.decodeOpts)
		}
		records, err := c.decodeAll(ctx, in)
		if err != nil {
			return 0, err
		}
		for _, rec := range records {
			if err := w.WriteValue(rec); err != nil {
				return w.Count(), err
			}
		}
		return w.Count(), w.Close()
	}
}

func (c *converter) decodeAll(ctx context.Context, in io.Reader) ([]*csvjson.Record, error) {
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, err
	}
	return c.fanout.Decode(ctx, data)
}

func (c *converter) writeMetrics(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}

func contentType(dir direction, format csvjson.JSONFormat) string {
	switch {
	case dir == toCSV:
		return "text/csv"
	case dir == toParquet:
		return "application/vnd.apache.parquet"
	case format == csvjson.FormatNDJSON:
		return "application/x-ndjson"
	default:
		return "application/json"
	}
}

// planJobs pairs each input with its output location.
func planJobs(inputs []string, output, outDir string, dir direction, cfg *config.Config, compression string) ([]job, error) {
	if outDir == "" {
		if len(inputs) > 1 {
			return nil, fmt.Errorf("%d inputs need --out-dir", len(inputs))
		}
		return []job{{index: 0, input: inputs[0], output: output}}, nil
	}

	ext, err := outputExt(dir, cfg, compression)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]string, len(inputs))
	jobs := make([]job, 0, len(inputs))
	for i, in := range inputs {
		out := joinLocation(outDir, baseName(in)+ext)
		if prev, dup := seen[out]; dup {
			return nil, fmt.Errorf("inputs %s and %s both write %s", prev, in, out)
		}
		seen[out] = in
		jobs = append(jobs, job{index: i, input: in, output: out})
	}
	return jobs, nil
}

var (
	compressionExts = []string{".gz", ".zst", ".zstd", ".lz4"}
	dataExts        = []string{".csv", ".tsv", ".txt", ".json", ".ndjson", ".jsonl"}
)

// baseName strips the directory, compression and data suffixes.
func baseName(location string) string {
	if location == "-" {
		return "stdin"
	}
	name := path.Base(strings.TrimPrefix(location, "s3://"))
	if !strings.HasPrefix(location, "s3://") {
		name = filepath.Base(location)
	}
	if ext := path.Ext(name); slices.Contains(compressionExts, ext) {
		name = strings.TrimSuffix(name, ext)
	}
	if ext := path.Ext(name); slices.Contains(dataExts, ext) {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

func outputExt(dir direction, cfg *config.Config, compression string) (string, error) {
	var ext string
	switch dir {
	case toCSV:
		ext = ".csv"
		if d, _ := config.ParseDelimiter(cfg.Encode.Delimiter); d == '\t' {
			ext = ".tsv"
		}
	case toParquet:
		return ".parquet", nil
	default:
		ext = ".json"
		if f, _ := cfg.DecodeFormat(); f == csvjson.FormatNDJSON {
			ext = ".ndjson"
		}
	}
	c, err := source.ParseCompression(compression)
	if err != nil {
		return "", err
	}
	switch c {
	case source.CompressionGzip:
		ext += ".gz"
	case source.CompressionZstd:
		ext += ".zst"
	case source.CompressionLZ4:
		ext += ".lz4"
	}
	return ext, nil
}

func joinLocation(dir, name string) string {
	if strings.HasPrefix(dir, "s3://") {
		return strings.TrimSuffix(dir, "/") + "/" + name
	}
	return filepath.Join(dir, name)
}
