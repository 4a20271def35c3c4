// Package sink creates conversion outputs.
//
// A location is "-" for standard output, a local path, or s3://bucket/key.
// S3 objects are buffered and uploaded with a single PutObject on Close.
package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"golang.org/x/text/transform"

	"github.com/oleg578/csvjson/source"
)

// S3Putter is the part of the S3 client Create needs.
type S3Putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Options configures Create.
type Options struct {
	// Compression overrides the file suffix when not CompressionAuto.
	Compression source.Compression
	// Charset names the output text encoding. Empty means UTF-8.
	Charset string
	// ContentType is set on uploaded S3 objects.
	ContentType string
	// S3 serves s3:// locations.
	S3 S3Putter
	// Stdout replaces os.Stdout for "-".
	Stdout io.Writer
}

// Create returns a writer for location. Close flushes encoders and
// finishes the file or upload; its error must be checked.
func Create(ctx context.Context, location string, opts Options) (io.WriteCloser, error) {
	loc, err := source.ParseLocation(location)
	if err != nil {
		return nil, err
	}
	enc, err := source.Charset(opts.Charset)
	if err != nil {
		return nil, err
	}
	c := opts.Compression
	if c == source.CompressionAuto {
		c = source.CompressionFromName(loc.Name())
	}

	raw, err := createRaw(ctx, loc, opts)
	if err != nil {
		return nil, err
	}
	cw, err := Compress(raw, c)
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("create %s: %w", loc, err)
	}

	out := &stream{Writer: cw, closers: []func() error{cw.Close, raw.Close}}
	if enc != nil {
		tw := transform.NewWriter(cw, enc.NewEncoder())
		out.Writer = tw
		out.closers = append([]func() error{tw.Close}, out.closers...)
	}
	return out, nil
}

// Compress wraps w in an encoder for c. Closing the result flushes the
// encoder but leaves w open.
func Compress(w io.Writer, c source.Compression) (io.WriteCloser, error) {
	switch c {
	case source.CompressionNone, source.CompressionAuto:
		return nopCloser{w}, nil
	case source.CompressionGzip:
		return gzip.NewWriter(w), nil
	case source.CompressionZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("sink: zstd writer: %w", err)
		}
		return zw, nil
	case source.CompressionLZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("sink: cannot compress %s", c)
	}
}

func createRaw(ctx context.Context, loc source.Location, opts Options) (io.WriteCloser, error) {
	switch {
	case loc.Stdio:
		out := opts.Stdout
		if out == nil {
			out = os.Stdout
		}
		return nopCloser{out}, nil
	case loc.IsS3():
		if opts.S3 == nil {
			return nil, fmt.Errorf("sink: no S3 client for %s", loc)
		}
		return &s3Object{ctx: ctx, client: opts.S3, bucket: loc.Bucket, key: loc.Key, contentType: opts.ContentType}, nil
	default:
		f, err := os.Create(loc.Path)
		if err != nil {
			return nil, fmt.Errorf("sink: %w", err)
		}
		return f, nil
	}
}

// s3Object buffers the body and uploads it on Close.
type s3Object struct {
	ctx         context.Context
	client      S3Putter
	bucket      string
	key         string
	contentType string
	buf         bytes.Buffer
	closed      bool
}

func (o *s3Object) Write(p []byte) (int, error) {
	if o.closed {
		return 0, os.ErrClosed
	}
	return o.buf.Write(p)
}

func (o *s3Object) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true

	size := int64(o.buf.Len())
	var body bytes.Reader
	body.Reset(o.buf.Bytes())
	input := s3.PutObjectInput{
		Bucket:        &o.bucket,
		Key:           &o.key,
		Body:          &body,
		ContentLength: &size,
	}
	if o.contentType != "" {
		input.ContentType = &o.contentType
	}
	if _, err := o.client.PutObject(o.ctx, &input); err != nil {
		return fmt.Errorf("put s3 object key=%q: %w", o.key, err)
	}
	return nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// stream closes its layers outermost first so every encoder flushes into
// the next before the destination is finished.
type stream struct {
	io.Writer
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
