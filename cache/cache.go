// Package cache memoises whole-document conversions.
//
// Identical inputs converted with identical options produce identical
// output, so a Converter keys its results by a BLAKE3 digest over an options
// fingerprint and the input bytes. Conversions that have side effects beyond
// their output, such as schema hooks or diagnostics callbacks, bypass the cache.
package cache

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"slices"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zeebo/blake3"

	"github.com/oleg578/csvjson"
)

// DefaultSize is the number of cached documents when none is configured.
const DefaultSize = 128

// Key is the digest a result is stored under.
type Key [32]byte

// keyDomain separates converter keys from any other BLAKE3 use.
var keyDomain = [32]byte{
	'c', 's', 'v', 'j', 's', 'o', 'n', '.', 'c', 'a', 'c', 'h', 'e', '.', 'k', 'e',
	'y', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Config tunes a Converter.
type Config struct {
	// Size is the maximum number of cached documents.
	Size int
	// MaxInputSize skips caching for larger inputs. Zero means no limit.
	MaxInputSize int
	// Registerer receives hit and miss counters when set.
	Registerer prometheus.Registerer
	// MetricsPrefix names the metrics. Empty means "csvjson_cache".
	MetricsPrefix string
}

// Stats reports cache effectiveness.
type Stats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Bypassed int64 `json:"bypassed"`
	Entries  int   `json:"entries"`
}

// Converter converts delimited text to JSON, remembering recent results.
// It is safe for concurrent use.
type Converter struct {
	opts        csvjson.DecodeOptions
	format      csvjson.JSONFormat
	cfg         Config
	fingerprint []byte
	entries     *lru.Cache[Key, []byte]

	hits, misses, bypassed atomic.Int64

	hitCounter  prometheus.Counter
	missCounter prometheus.Counter
}

// New creates a Converter for one option set and output format.
func New(opts csvjson.DecodeOptions, format csvjson.JSONFormat, cfg Config) (*Converter, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	if cfg.MetricsPrefix == "" {
		cfg.MetricsPrefix = "csvjson_cache"
	}
	entries, err := lru.New[Key, []byte](cfg.Size)
	if err != nil {
		return nil, err
	}

	c := &Converter{
		opts:        opts,
		format:      format,
		cfg:         cfg,
		fingerprint: fingerprint(opts, format),
		entries:     entries,
	}
	if cfg.Registerer != nil {
		c.hitCounter = register(cfg.Registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: cfg.MetricsPrefix + "_hits_total",
			Help: "Conversions served from the cache",
		}))
		c.missCounter = register(cfg.Registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: cfg.MetricsPrefix + "_misses_total",
			Help: "Conversions computed and stored",
		}))
	}
	return c, nil
}

// CSVToJSON converts data, returning a cached result when one exists. The
// returned slice must not be modified. Failed conversions are not cached.
func (c *Converter) CSVToJSON(ctx context.Context, data []byte) ([]byte, error) {
	if !c.cacheable(data) {
		c.bypassed.Add(1)
		return c.convert(ctx, data)
	}

	key := c.Key(data)
	if out, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		if c.hitCounter != nil {
			c.hitCounter.Inc()
		}
		return out, nil
	}

	c.misses.Add(1)
	if c.missCounter != nil {
		c.missCounter.Inc()
	}
	out, err := c.convert(ctx, data)
	if err != nil {
		return nil, err
	}
	c.entries.Add(key, out)
	return out, nil
}

// Key returns the cache key for data under this converter's options.
func (c *Converter) Key(data []byte) Key {
	h, err := blake3.NewKeyed(keyDomain[:])
	if err != nil {
		panic("cache: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	h.Write(c.fingerprint)
	h.Write(data)
	var k Key
	copy(k[:], h.Sum(nil))
	return k
}

// Stats returns current counters.
func (c *Converter) Stats() Stats {
	return Stats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Bypassed: c.bypassed.Load(),
		Entries:  c.entries.Len(),
	}
}

// Purge drops every cached result.
func (c *Converter) Purge() {
	c.entries.Purge()
}

func (c *Converter) cacheable(data []byte) bool {
	if c.opts.Schema != nil || c.opts.OnDiagnostic != nil {
		return false
	}
	return c.cfg.MaxInputSize <= 0 || len(data) <= c.cfg.MaxInputSize
}

func (c *Converter) convert(ctx context.Context, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := csvjson.CSVToJSON(ctx, bytes.NewReader(data), &buf, c.opts, c.format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// fingerprint serialises every option that changes the output.
func fingerprint(opts csvjson.DecodeOptions, format csvjson.JSONFormat) []byte {
	var b []byte
	flag := func(v bool) {
		if v {
			b = append(b, 1)
		} else {
			b = append(b, 0)
		}
	}
	str := func(s string) {
		b = binary.AppendUvarint(b, uint64(len(s)))
		b = append(b, s...)
	}

	b = append(b, byte(format), opts.Delimiter, byte(opts.OnError))
	flag(opts.AutoDetect)
	flag(opts.HasHeaders)
	flag(opts.Trim)
	flag(opts.ParseNumbers)
	flag(opts.ParseBooleans)
	flag(opts.StripInjectionPrefix)
	b = binary.AppendUvarint(b, uint64(opts.MaxRows))
	str(string(opts.Candidates))
	b = binary.AppendUvarint(b, uint64(len(opts.Headers)))
	for _, h := range opts.Headers {
		str(h)
	}
	keys := make([]string, 0, len(opts.RenameMap))
	for k := range opts.RenameMap {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	b = binary.AppendUvarint(b, uint64(len(keys)))
	for _, k := range keys {
		str(k)
		str(opts.RenameMap[k])
	}
	return b
}

func register(reg prometheus.Registerer, c prometheus.Counter) prometheus.Counter {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
