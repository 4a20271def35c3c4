// Package fanout decodes large in-memory inputs in parallel.
//
// The input is cut into chunks at record boundaries, each chunk is decoded by
// its own csvjson.Reader with the delimiter and headers resolved up front,
// and the results are reassembled in input order. Line numbers in errors and
// diagnostics refer to the whole input.
package fanout

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/oleg578/csvjson"
)

// DefaultMinChunkSize keeps small inputs from being split into tiny chunks.
const DefaultMinChunkSize = 256 << 10

// DefaultWorkers returns the worker count used when none is configured.
func DefaultWorkers() int {
	return runtime.GOMAXPROCS(0)
}

// Config tunes a Fanout.
type Config struct {
	// Workers bounds concurrent chunk decoders. Zero means DefaultWorkers.
	Workers int
	// MinChunkSize is the smallest chunk worth a goroutine. Zero means
	// DefaultMinChunkSize.
	MinChunkSize int
	// Registerer receives the decoder metrics when set.
	Registerer prometheus.Registerer
	// MetricsPrefix names the metrics. Empty means "csvjson_fanout".
	MetricsPrefix string
}

// Fanout is a parallel decoder. It is safe for concurrent use when the
// configured Schema validator is.
type Fanout struct {
	opts    csvjson.DecodeOptions
	cfg     Config
	metrics *fanoutMetrics
}

type fanoutMetrics struct {
	chunks        prometheus.Counter
	records       prometheus.Counter
	chunkDuration prometheus.Histogram
}

// New validates opts and returns a Fanout. Keyed decoding needs headers, so
// opts must enable HasHeaders or preset Headers.
func New(opts csvjson.DecodeOptions, cfg Config) (*Fanout, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if !opts.HasHeaders && len(opts.Headers) == 0 {
		return nil, &csvjson.ConfigurationError{Option: "hasHeaders", Reason: "parallel decoding produces keyed records and needs headers"}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers()
	}
	if cfg.MinChunkSize <= 0 {
		cfg.MinChunkSize = DefaultMinChunkSize
	}
	if cfg.MetricsPrefix == "" {
		cfg.MetricsPrefix = "csvjson_fanout"
	}

	f := &Fanout{opts: opts, cfg: cfg}
	if cfg.Registerer != nil {
		f.metrics = &fanoutMetrics{
			chunks: prometheus.NewCounter(prometheus.CounterOpts{
				Name: cfg.MetricsPrefix + "_chunks_total",
				Help: "Total chunks decoded",
			}),
			records: prometheus.NewCounter(prometheus.CounterOpts{
				Name: cfg.MetricsPrefix + "_records_total",
				Help: "Total records decoded",
			}),
			chunkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    cfg.MetricsPrefix + "_chunk_duration_seconds",
				Help:    "Time spent decoding one chunk",
				Buckets: prometheus.DefBuckets,
			}),
		}
		f.metrics.chunks = register(cfg.Registerer, f.metrics.chunks)
		f.metrics.records = register(cfg.Registerer, f.metrics.records)
		f.metrics.chunkDuration = register(cfg.Registerer, f.metrics.chunkDuration)
	}
	return f, nil
}

type chunkResult struct {
	records []*csvjson.Record
	err     error
}

// Decode decodes data and returns the records in input order. Like
// csvjson.Decode it returns the records before the first error together
// with that error. Diagnostic lines are absolute; diagnostic record indexes
// count from the start of the chunk that raised them.
func (f *Fanout) Decode(ctx context.Context, data []byte) ([]*csvjson.Record, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	comma := f.delimiter(data)
	body, firstLine := data, 1
	headers := f.opts.Headers
	if len(headers) == 0 {
		raw, end, err := headerRecord(data, comma)
		if err != nil {
			return nil, err
		}
		if raw == nil {
			return nil, nil
		}
		if f.opts.StripInjectionPrefix {
			for i := range raw {
				raw[i] = csvjson.StripInjectionPrefix(raw[i])
			}
		}
		headers = raw
		body = data[end:]
		firstLine += countLines(data[:end])
	}

	n := len(body) / f.cfg.MinChunkSize
	n = max(1, min(n, f.cfg.Workers*4))
	chunks := Split(body, n, comma)
	for i := range chunks {
		chunks[i].FirstLine += firstLine - 1
	}

	var diagMu sync.Mutex
	results := make([]chunkResult, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Workers)
	for i, c := range chunks {
		wopts := f.chunkOptions(comma, headers, c.FirstLine-1, &diagMu)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			recs, err := csvjson.Decode(bytes.NewReader(c.Data), wopts)
			results[i] = chunkResult{records: recs, err: shiftLines(err, c.FirstLine-1)}
			if f.metrics != nil {
				f.metrics.chunks.Inc()
				f.metrics.records.Add(float64(len(recs)))
				f.metrics.chunkDuration.Observe(time.Since(start).Seconds())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []*csvjson.Record
	for _, res := range results {
		out = append(out, res.records...)
		if limit := f.opts.MaxRows; limit > 0 && len(out) > limit {
			return out[:limit], &csvjson.LimitError{Limit: limit, Actual: limit + 1}
		}
		if res.err != nil {
			return out, res.err
		}
	}
	return out, nil
}

func (f *Fanout) delimiter(data []byte) byte {
	switch {
	case f.opts.Delimiter != 0:
		return f.opts.Delimiter
	case f.opts.AutoDetect:
		return csvjson.InferDelimiter(firstLine(data), f.opts.Candidates)
	default:
		return ','
	}
}

// chunkOptions fixes what the whole input resolved, so every chunk decodes
// the way a single sequential reader would.
func (f *Fanout) chunkOptions(comma byte, headers []string, lineOffset int, mu *sync.Mutex) csvjson.DecodeOptions {
	o := f.opts
	o.Delimiter = comma
	o.AutoDetect = false
	o.HasHeaders = false
	o.Headers = headers
	o.MaxRows = 0
	if cb := f.opts.OnDiagnostic; cb != nil {
		o.OnDiagnostic = func(d csvjson.Diagnostic) {
			d.Line += lineOffset
			mu.Lock()
			defer mu.Unlock()
			cb(d)
		}
	}
	return o
}

// headerRecord returns the fields of the first non-blank record and the
// offset just past it. It returns nil fields for blank input.
func headerRecord(data []byte, comma byte) ([]string, int, error) {
	start := 0
	for start < len(data) && (data[start] == '\n' || data[start] == '\r') {
		start++
	}
	if start == len(data) {
		return nil, len(data), nil
	}
	end := csvjson.NextRecordBoundary(data, start, comma)
	fields, err := csvjson.Tokenize(string(data[start:end]), comma)
	if err != nil {
		return nil, 0, shiftLines(err, countLines(data[:start]))
	}
	return fields, end, nil
}

func shiftLines(err error, offset int) error {
	if err == nil || offset == 0 {
		return err
	}
	var perr *csvjson.ParsingError
	if errors.As(err, &perr) {
		perr.Line += offset
		return err
	}
	var verr *csvjson.ValidationError
	if errors.As(err, &verr) && verr.Line > 0 {
		verr.Line += offset
	}
	return err
}

func firstLine(data []byte) string {
	for len(data) > 0 && (data[0] == '\n' || data[0] == '\r') {
		data = data[1:]
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		data = data[:i]
	}
	return string(data)
}

// register returns the collector already registered under the same
// descriptor, if any, so several instances can share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
