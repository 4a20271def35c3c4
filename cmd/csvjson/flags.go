package main

import (
	"github.com/spf13/pflag"

	"github.com/oleg578/csvjson/config"
)

// flags holds command line values. Only flags the user set override the
// configuration file.
type flags struct {
	configPath  string
	output      string
	outDir      string
	compression string
	metricsFile string
	contentType string

	inputCharset  string
	outputCharset string
	logLevel      string
	logFormat     string
	files         int

	delimiter string
	format    string

	// decode
	noHeaders     bool
	headers       []string
	rename        map[string]string
	noTrim        bool
	parseNumbers  bool
	parseBooleans bool
	keepPrefix    bool
	maxRows       int
	onError       string
	schema        string
	indent        string
	fanout        bool
	workers       int
	cacheSize     int
	parquetCodec  string

	// encode
	noHeaderLine    bool
	columns         []string
	template        []string
	maxRecords      int
	noInjectGuard   bool
	injectionPolicy string
	lf              bool
}

func (f *flags) register(name string, dir direction) *pflag.FlagSet {
	fs := pflag.NewFlagSet("csvjson "+name, pflag.ContinueOnError)

	fs.StringVarP(&f.configPath, "config", "c", "", "YAML or JSONC configuration file")
	fs.StringVarP(&f.output, "output", "o", "-", "output location for a single input")
	fs.StringVar(&f.outDir, "out-dir", "", "output directory or s3:// prefix for several inputs")
	fs.StringVar(&f.compression, "compression", "", "output compression: none, gzip, zstd, lz4 (default: by suffix)")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file")
	fs.StringVar(&f.contentType, "content-type", "", "content type for S3 uploads")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&f.logFormat, "log-format", "", "text or json")
	fs.IntVarP(&f.files, "jobs", "j", 0, "inputs converted concurrently")
	fs.StringVarP(&f.delimiter, "delimiter", "d", "", "field delimiter: a character, comma, semicolon, tab, pipe or auto")

	switch dir {
	case toCSV:
		fs.StringVarP(&f.format, "format", "f", "", "input JSON format: json or ndjson")
		fs.StringVar(&f.outputCharset, "output-charset", "", "output text encoding")
		fs.BoolVar(&f.noHeaderLine, "no-header-line", false, "omit the header line")
		fs.StringSliceVar(&f.columns, "columns", nil, "fixed output columns; other keys are dropped")
		fs.StringSliceVar(&f.template, "template", nil, "leading column order; other keys follow")
		fs.StringToStringVar(&f.rename, "rename", nil, "rename output headers, key=name")
		fs.IntVar(&f.maxRecords, "max-records", 0, "fail after this many records (0: unlimited)")
		fs.BoolVar(&f.noInjectGuard, "no-injection-guard", false, "write formula triggers unchanged")
		fs.StringVar(&f.injectionPolicy, "injection-policy", "", "neutralize or reject formula triggers")
		fs.BoolVar(&f.lf, "lf", false, "terminate records with LF instead of CRLF")
	default:
		if dir == toJSON {
			fs.StringVarP(&f.format, "format", "f", "", "output JSON format: json or ndjson")
			fs.StringVar(&f.indent, "indent", "", "indent JSON array output with this string")
			fs.IntVar(&f.cacheSize, "cache-size", 0, "remember this many converted documents (0: off)")
		} else {
			fs.StringVar(&f.parquetCodec, "parquet-compression", "snappy", "parquet page compression: none, snappy, gzip, zstd")
		}
		fs.StringVar(&f.inputCharset, "input-charset", "", "input text encoding, e.g. latin1 or windows-1252")
		fs.BoolVar(&f.noHeaders, "no-headers", false, "input has no header line; rows become arrays")
		fs.StringSliceVar(&f.headers, "headers", nil, "header keys for input without a header line")
		fs.StringToStringVar(&f.rename, "rename", nil, "rename headers, name=key")
		fs.BoolVar(&f.noTrim, "no-trim", false, "keep surrounding whitespace")
		fs.BoolVar(&f.parseNumbers, "parse-numbers", false, "convert numeric fields to numbers")
		fs.BoolVar(&f.parseBooleans, "parse-booleans", false, "convert true/false to booleans")
		fs.BoolVar(&f.keepPrefix, "keep-injection-prefix", false, "keep the quote in front of formula triggers")
		fs.IntVar(&f.maxRows, "max-rows", 0, "fail after this many data rows (0: unlimited)")
		fs.StringVar(&f.onError, "on-error", "", "schema failures: throw, warn or skip")
		fs.StringVar(&f.schema, "schema", "", "JSON Schema file each record must satisfy")
		fs.BoolVar(&f.fanout, "fanout", false, "decode each input in parallel chunks")
		fs.IntVar(&f.workers, "workers", 0, "chunk decoders per input (default: GOMAXPROCS)")
	}
	return fs
}

// apply copies the flags the user set onto cfg.
func (f *flags) apply(fs *pflag.FlagSet, cfg *config.Config, dir direction) {
	set := fs.Changed

	if set("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if set("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if set("jobs") {
		cfg.Fanout.Files = f.files
	}

	if dir == toCSV {
		e := &cfg.Encode
		if set("delimiter") {
			e.Delimiter = f.delimiter
		}
		if set("format") {
			e.Format = f.format
		}
		if set("no-header-line") {
			e.IncludeHeaders = !f.noHeaderLine
		}
		if set("columns") {
			e.Headers = f.columns
		}
		if set("template") {
			e.Template = f.template
		}
		if set("rename") {
			e.Rename = f.rename
		}
		if set("max-records") {
			e.MaxRecords = f.maxRecords
		}
		if set("no-injection-guard") {
			e.PreventCSVInjection = !f.noInjectGuard
		}
		if set("injection-policy") {
			e.InjectionPolicy = f.injectionPolicy
		}
		if set("lf") {
			e.RFC4180 = !f.lf
		}
		if set("output-charset") {
			e.Charset = f.outputCharset
		}
		return
	}

	d := &cfg.Decode
	if set("delimiter") {
		d.Delimiter = f.delimiter
	}
	if set("format") {
		d.Format = f.format
	}
	if set("input-charset") {
		d.Charset = f.inputCharset
	}
	if set("indent") {
		d.Indent = f.indent
	}
	if set("no-headers") {
		d.HasHeaders = !f.noHeaders
	}
	if set("headers") {
		d.Headers = f.headers
		d.HasHeaders = false
	}
	if set("rename") {
		d.Rename = f.rename
	}
	if set("no-trim") {
		d.Trim = !f.noTrim
	}
	if set("parse-numbers") {
		d.ParseNumbers = f.parseNumbers
	}
	if set("parse-booleans") {
		d.ParseBooleans = f.parseBooleans
	}
	if set("keep-injection-prefix") {
		d.StripInjectionPrefix = !f.keepPrefix
	}
	if set("max-rows") {
		d.MaxRows = f.maxRows
	}
	if set("on-error") {
		d.OnError = f.onError
	}
	if set("schema") {
		d.Schema = f.schema
	}
	if set("fanout") {
		cfg.Fanout.Enabled = f.fanout
	}
	if set("workers") {
		cfg.Fanout.Workers = f.workers
	}
	if set("cache-size") {
		cfg.Cache.Size = f.cacheSize
	}
}
