// csvjson converts between delimited text and JSON.
//
// Usage:
//
//	csvjson to-json    [flags] [input...]
//	csvjson to-csv     [flags] [input...]
//	csvjson to-parquet [flags] [input...]
//
// An input or output is "-" for the standard streams, a local path, or
// s3://bucket/key. Compressed files (.gz, .zst, .lz4) are handled by suffix.
// With several inputs, --out-dir names the destination and the files are
// converted concurrently.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/oleg578/csvjson/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// direction is the conversion a subcommand performs.
type direction int

const (
	toJSON direction = iota
	toCSV
	toParquet
)

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stderr)
		return errors.New("missing command")
	}

	var dir direction
	switch args[0] {
	case "to-json":
		dir = toJSON
	case "to-csv":
		dir = toCSV
	case "to-parquet":
		dir = toParquet
	case "help", "--help", "-h":
		printUsage(stderr)
		return nil
	default:
		printUsage(stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}

	var f flags
	flagSet := f.register(args[0], dir)
	flagSet.SetOutput(stderr)
	if err := flagSet.Parse(args[1:]); err != nil {
		return err
	}

	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	f.apply(flagSet, cfg, dir)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log, stderr)
	if err != nil {
		return err
	}

	inputs := flagSet.Args()
	if len(inputs) == 0 {
		inputs = []string{"-"}
	}
	jobs, err := planJobs(inputs, f.output, f.outDir, dir, cfg, f.compression)
	if err != nil {
		return err
	}

	c, err := newConverter(ctx, cfg, dir, jobs, converterIO{stdin: stdin, stdout: stdout}, f, logger)
	if err != nil {
		return err
	}
	runErr := c.runAll(ctx, jobs)
	if f.metricsFile != "" {
		if err := c.writeMetrics(f.metricsFile); err != nil && runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `csvjson converts between delimited text and JSON.

Usage:
  csvjson to-json    [flags] [input...]   CSV/TSV to JSON or NDJSON
  csvjson to-csv     [flags] [input...]   JSON or NDJSON to CSV/TSV
  csvjson to-parquet [flags] [input...]   CSV/TSV to Apache Parquet

Inputs and outputs are "-", a local path, or s3://bucket/key.
Run "csvjson <command> --help" for the flags of a command.
`)
}
