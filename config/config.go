// Package config loads conversion settings from YAML or JSON-with-comments
// files and maps them onto engine options.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/oleg578/csvjson"
	"github.com/oleg578/csvjson/fanout"
	"github.com/oleg578/csvjson/schema"
	"github.com/oleg578/csvjson/source"
)

// Config is the complete conversion configuration.
type Config struct {
	Decode DecodeConfig `json:"decode" yaml:"decode"`
	Encode EncodeConfig `json:"encode" yaml:"encode"`
	Fanout FanoutConfig `json:"fanout" yaml:"fanout"`
	Cache  CacheConfig  `json:"cache" yaml:"cache"`
	Log    LogConfig    `json:"log" yaml:"log"`
}

// DecodeConfig covers delimited text to JSON.
type DecodeConfig struct {
	Delimiter            string            `json:"delimiter,omitempty" yaml:"delimiter,omitempty"` // "" or "auto" infers
	Candidates           []string          `json:"candidates,omitempty" yaml:"candidates,omitempty"`
	HasHeaders           bool              `json:"has_headers" yaml:"has_headers"`
	Headers              []string          `json:"headers,omitempty" yaml:"headers,omitempty"`
	Rename               map[string]string `json:"rename,omitempty" yaml:"rename,omitempty"`
	Trim                 bool              `json:"trim" yaml:"trim"`
	ParseNumbers         bool              `json:"parse_numbers" yaml:"parse_numbers"`
	ParseBooleans        bool              `json:"parse_booleans" yaml:"parse_booleans"`
	StripInjectionPrefix bool              `json:"strip_injection_prefix" yaml:"strip_injection_prefix"`
	MaxRows              int               `json:"max_rows,omitempty" yaml:"max_rows,omitempty"`
	OnError              string            `json:"on_error,omitempty" yaml:"on_error,omitempty"` // throw, warn, skip
	Schema               string            `json:"schema,omitempty" yaml:"schema,omitempty"`     // JSON Schema file
	BufferSize           int               `json:"buffer_size,omitempty" yaml:"buffer_size,omitempty"`
	Format               string            `json:"format,omitempty" yaml:"format,omitempty"` // json or ndjson
	Indent               string            `json:"indent,omitempty" yaml:"indent,omitempty"`
	Charset              string            `json:"charset,omitempty" yaml:"charset,omitempty"` // input text encoding
}

// EncodeConfig covers JSON to delimited text.
type EncodeConfig struct {
	Delimiter           string            `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`
	IncludeHeaders      bool              `json:"include_headers" yaml:"include_headers"`
	Headers             []string          `json:"headers,omitempty" yaml:"headers,omitempty"`
	Rename              map[string]string `json:"rename,omitempty" yaml:"rename,omitempty"`
	Template            []string          `json:"template,omitempty" yaml:"template,omitempty"`
	MaxRecords          int               `json:"max_records,omitempty" yaml:"max_records,omitempty"`
	PreventCSVInjection bool              `json:"prevent_csv_injection" yaml:"prevent_csv_injection"`
	InjectionPolicy     string            `json:"injection_policy,omitempty" yaml:"injection_policy,omitempty"` // neutralize or reject
	RFC4180             bool              `json:"rfc4180" yaml:"rfc4180"`
	ChunkSize           int               `json:"chunk_size,omitempty" yaml:"chunk_size,omitempty"`
	Format              string            `json:"format,omitempty" yaml:"format,omitempty"` // input json or ndjson
	Charset             string            `json:"charset,omitempty" yaml:"charset,omitempty"` // output text encoding
}

// FanoutConfig enables parallel decoding of large inputs.
type FanoutConfig struct {
	Enabled      bool `json:"enabled" yaml:"enabled"`
	Workers      int  `json:"workers,omitempty" yaml:"workers,omitempty"`
	MinChunkSize int  `json:"min_chunk_size,omitempty" yaml:"min_chunk_size,omitempty"`
	// Files bounds how many inputs are converted at once.
	Files int `json:"files,omitempty" yaml:"files,omitempty"`
}

// CacheConfig sizes the conversion result cache. Size 0 disables it.
type CacheConfig struct {
	Size         int `json:"size,omitempty" yaml:"size,omitempty"`
	MaxInputSize int `json:"max_input_size,omitempty" yaml:"max_input_size,omitempty"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`   // debug, info, warn, error
	Format string `json:"format,omitempty" yaml:"format,omitempty"` // text or json
}

// Default returns the documented defaults.
func Default() *Config {
	return &Config{
		Decode: DecodeConfig{
			HasHeaders:           true,
			Trim:                 true,
			StripInjectionPrefix: true,
			OnError:              "throw",
			Format:               "json",
		},
		Encode: EncodeConfig{
			Delimiter:           ";",
			IncludeHeaders:      true,
			PreventCSVInjection: true,
			InjectionPolicy:     "neutralize",
			RFC4180:             true,
			ChunkSize:           csvjson.DefaultChunkSize,
			Format:              "json",
		},
		Fanout: FanoutConfig{
			Workers:      fanout.DefaultWorkers(),
			MinChunkSize: fanout.DefaultMinChunkSize,
			Files:        1,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. ".yaml" and ".yml" files are YAML;
// anything else is JSON with optional comments and trailing commas.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data over the defaults. ext picks the syntax as in Load.
func Parse(data []byte, ext string) (*Config, error) {
	cfg := Default()
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting as a *csvjson.ConfigurationError.
func (c *Config) Validate() error {
	if _, err := c.decodeOptions(); err != nil {
		return err
	}
	if _, err := c.EncodeOptions(); err != nil {
		return err
	}
	if _, err := c.DecodeFormat(); err != nil {
		return err
	}
	if _, err := c.EncodeFormat(); err != nil {
		return err
	}
	switch {
	case c.Fanout.Workers < 0:
		return &csvjson.ConfigurationError{Option: "fanout.workers", Reason: "must not be negative"}
	case c.Fanout.MinChunkSize < 0:
		return &csvjson.ConfigurationError{Option: "fanout.min_chunk_size", Reason: "must not be negative"}
	case c.Fanout.Files < 0:
		return &csvjson.ConfigurationError{Option: "fanout.files", Reason: "must not be negative"}
	case c.Cache.Size < 0:
		return &csvjson.ConfigurationError{Option: "cache.size", Reason: "must not be negative"}
	case c.Cache.MaxInputSize < 0:
		return &csvjson.ConfigurationError{Option: "cache.max_input_size", Reason: "must not be negative"}
	}
	if _, err := source.Charset(c.Decode.Charset); err != nil {
		return &csvjson.ConfigurationError{Option: "decode.charset", Reason: err.Error()}
	}
	if _, err := source.Charset(c.Encode.Charset); err != nil {
		return &csvjson.ConfigurationError{Option: "encode.charset", Reason: err.Error()}
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return &csvjson.ConfigurationError{Option: "log.format", Reason: fmt.Sprintf("unknown format %q", c.Log.Format)}
	}
	return nil
}

// DecodeOptions maps the decode section onto engine options, compiling the
// JSON Schema when one is named.
func (c *Config) DecodeOptions() (csvjson.DecodeOptions, error) {
	opts, err := c.decodeOptions()
	if err != nil {
		return opts, err
	}
	if c.Decode.Schema != "" {
		v, err := schema.Load(c.Decode.Schema)
		if err != nil {
			return opts, err
		}
		opts.Schema = v
	}
	return opts, nil
}

func (c *Config) decodeOptions() (csvjson.DecodeOptions, error) {
	d := c.Decode
	opts := csvjson.DefaultDecodeOptions()

	delim, err := ParseDelimiter(d.Delimiter)
	if err != nil {
		return opts, &csvjson.ConfigurationError{Option: "decode.delimiter", Reason: err.Error()}
	}
	opts.Delimiter = delim
	opts.AutoDetect = delim == 0
	if len(d.Candidates) > 0 {
		opts.Candidates = make([]byte, 0, len(d.Candidates))
		for _, s := range d.Candidates {
			b, err := ParseDelimiter(s)
			if err != nil || b == 0 {
				return opts, &csvjson.ConfigurationError{Option: "decode.candidates", Reason: fmt.Sprintf("invalid candidate %q", s)}
			}
			opts.Candidates = append(opts.Candidates, b)
		}
	}
	opts.HasHeaders = d.HasHeaders
	opts.Headers = d.Headers
	opts.RenameMap = d.Rename
	opts.Trim = d.Trim
	opts.ParseNumbers = d.ParseNumbers
	opts.ParseBooleans = d.ParseBooleans
	opts.StripInjectionPrefix = d.StripInjectionPrefix
	opts.MaxRows = d.MaxRows
	if d.BufferSize > 0 {
		opts.BufferSize = d.BufferSize
	}
	if opts.OnError, err = csvjson.ParseErrorPolicy(d.OnError); err != nil {
		var ce *csvjson.ConfigurationError
		if errors.As(err, &ce) {
			ce.Option = "decode.on_error"
		}
		return opts, err
	}
	return opts, opts.Validate()
}

// EncodeOptions maps the encode section onto engine options.
func (c *Config) EncodeOptions() (csvjson.EncodeOptions, error) {
	e := c.Encode
	opts := csvjson.DefaultEncodeOptions()

	delim, err := ParseDelimiter(e.Delimiter)
	if err != nil {
		return opts, &csvjson.ConfigurationError{Option: "encode.delimiter", Reason: err.Error()}
	}
	if delim != 0 {
		opts.Delimiter = delim
	}
	opts.IncludeHeaders = e.IncludeHeaders
	opts.Headers = e.Headers
	opts.RenameMap = e.Rename
	opts.Template = e.Template
	opts.MaxRecords = e.MaxRecords
	opts.PreventCSVInjection = e.PreventCSVInjection
	opts.RFC4180Compliant = e.RFC4180
	opts.ChunkSize = e.ChunkSize
	switch strings.ToLower(e.InjectionPolicy) {
	case "", "neutralize":
		opts.InjectionPolicy = csvjson.InjectionNeutralize
	case "reject":
		opts.InjectionPolicy = csvjson.InjectionReject
	default:
		return opts, &csvjson.ConfigurationError{Option: "encode.injection_policy", Reason: fmt.Sprintf("unknown policy %q", e.InjectionPolicy)}
	}
	return opts, opts.Validate()
}

// DecodeFormat is the JSON shape written by CSV to JSON conversions.
func (c *Config) DecodeFormat() (csvjson.JSONFormat, error) {
	return parseFormat("decode.format", c.Decode.Format)
}

// EncodeFormat is the JSON shape read by JSON to CSV conversions.
func (c *Config) EncodeFormat() (csvjson.JSONFormat, error) {
	return parseFormat("encode.format", c.Encode.Format)
}

func parseFormat(option, s string) (csvjson.JSONFormat, error) {
	f, err := csvjson.ParseJSONFormat(s)
	var ce *csvjson.ConfigurationError
	if errors.As(err, &ce) {
		ce.Option = option
	}
	return f, err
}

// FanoutSettings maps the fanout section onto fanout settings.
func (c *Config) FanoutSettings() fanout.Config {
	return fanout.Config{Workers: c.Fanout.Workers, MinChunkSize: c.Fanout.MinChunkSize}
}

var delimiterNames = map[string]byte{
	"comma":     ',',
	"semicolon": ';',
	"tab":       '\t',
	`\t`:        '\t',
	"pipe":      '|',
	"space":     ' ',
	"colon":     ':',
}

// ParseDelimiter accepts a single ASCII character or one of the names
// comma, semicolon, tab, pipe, space and colon. "" and "auto" return 0.
func ParseDelimiter(s string) (byte, error) {
	if s == "" || strings.EqualFold(s, "auto") {
		return 0, nil
	}
	if b, ok := delimiterNames[strings.ToLower(s)]; ok {
		return b, nil
	}
	if len(s) != 1 || s[0] >= 0x80 {
		return 0, fmt.Errorf("unknown delimiter %q", s)
	}
	return s[0], nil
}

// ParseLevel maps a level name onto slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, &csvjson.ConfigurationError{Option: "log.level", Reason: fmt.Sprintf("unknown level %q", s)}
	}
	return level, nil
}
