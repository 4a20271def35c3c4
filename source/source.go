// Package source opens conversion inputs.
//
// A location is "-" for standard input, a local path, or s3://bucket/key.
// Compressed inputs are decoded transparently and non-UTF-8 text is
// transcoded, so the engine always sees a plain UTF-8 byte stream.
package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Getter is the part of the S3 client Open needs.
type S3Getter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Options configures Open.
type Options struct {
	// Compression overrides detection when not CompressionAuto.
	Compression Compression
	// Charset names the input text encoding. Empty means UTF-8.
	Charset string
	// S3 serves s3:// locations.
	S3 S3Getter
	// Stdin replaces os.Stdin for "-".
	Stdin io.Reader
}

// NewS3Client builds an S3 client from the default AWS credential chain.
func NewS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// Open returns a decoded stream for location. Closing it releases the
// decoders and the underlying file or object body.
func Open(ctx context.Context, location string, opts Options) (io.ReadCloser, error) {
	loc, err := ParseLocation(location)
	if err != nil {
		return nil, err
	}
	enc, err := Charset(opts.Charset)
	if err != nil {
		return nil, err
	}

	raw, err := openRaw(ctx, loc, opts)
	if err != nil {
		return nil, err
	}

	br := bufio.NewReaderSize(raw, 64<<10)
	c := opts.Compression
	if c == CompressionAuto {
		c = CompressionFromName(loc.Name())
		if c == CompressionNone {
			c = sniff(br)
		}
	}
	dr, closeDecoder, err := Decompress(br, c)
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("open %s: %w", loc, err)
	}

	return &stream{
		Reader:  Decode(dr, enc),
		closers: []func() error{closeDecoder, raw.Close},
	}, nil
}

func openRaw(ctx context.Context, loc Location, opts Options) (io.ReadCloser, error) {
	switch {
	case loc.Stdio:
		in := opts.Stdin
		if in == nil {
			in = os.Stdin
		}
		return io.NopCloser(in), nil
	case loc.IsS3():
		if opts.S3 == nil {
			return nil, fmt.Errorf("source: no S3 client for %s", loc)
		}
		bucket, key := loc.Bucket, loc.Key
		out, err := opts.S3.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
		if err != nil {
			return nil, fmt.Errorf("get s3 object %s: %w", loc, err)
		}
		return out.Body, nil
	default:
		f, err := os.Open(loc.Path)
		if err != nil {
			return nil, fmt.Errorf("source: %w", err)
		}
		return f, nil
	}
}

// stream closes its layers innermost first.
type stream struct {
	io.Reader
	closers []func() error
}

func (s *stream) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}
