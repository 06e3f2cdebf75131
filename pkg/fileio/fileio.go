// Package fileio resolves user-facing locations into ibu sources and sinks.
//
// A location is a local path, "-" or "" for stdin/stdout, or an s3:// URI.
// Sources are decompressed transparently; sinks are compressed according to
// their extension unless a codec is forced.
package fileio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/eunmann/ibu/internal/logctx"
	"github.com/eunmann/ibu/pkg/compress"
	"github.com/eunmann/ibu/pkg/format"
	"github.com/eunmann/ibu/pkg/s3fetch"
	"github.com/eunmann/ibu/pkg/stream"
	"golang.org/x/sync/errgroup"
)

// Stdio is the location naming stdin or stdout.
const Stdio = "-"

// IsStdio reports whether path names stdin or stdout.
func IsStdio(path string) bool {
	return path == "" || path == Stdio
}

// Opener opens sources and creates sinks. The zero value is not usable;
// create one with New.
type Opener struct {
	// Stdin and Stdout back the "-" location.
	Stdin  io.Reader
	Stdout io.Writer

	// S3Config configures the client created on first s3:// access.
	S3Config s3fetch.Config

	// Codec forces the output codec. Nil picks it from the extension.
	Codec *compress.Format

	// Level is the compression level for outputs.
	Level compress.Level

	// BufferSize is passed to stream readers and writers.
	BufferSize int

	mu     sync.Mutex
	client *s3fetch.Client
}

// New returns an Opener bound to the process's stdio.
func New() *Opener {
	return &Opener{Stdin: os.Stdin, Stdout: os.Stdout}
}

// SetS3Client installs the client used for s3:// locations.
func (o *Opener) SetS3Client(c *s3fetch.Client) {
	o.mu.Lock()
	o.client = c
	o.mu.Unlock()
}

func (o *Opener) s3Client(ctx context.Context) (*s3fetch.Client, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.client != nil {
		return o.client, nil
	}
	c, err := s3fetch.NewClient(ctx, o.S3Config)
	if err != nil {
		return nil, err
	}
	o.client = c
	return c, nil
}

// openRaw returns the undecoded bytes at path.
func (o *Opener) openRaw(ctx context.Context, path string) (io.ReadCloser, error) {
	switch {
	case IsStdio(path):
		return io.NopCloser(o.Stdin), nil
	case s3fetch.IsS3URI(path):
		bucket, key, err := s3fetch.ParseS3URI(path)
		if err != nil {
			return nil, err
		}
		c, err := o.s3Client(ctx)
		if err != nil {
			return nil, err
		}
		return c.StreamObject(ctx, bucket, key)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open file: %w", err)
		}
		return f, nil
	}
}

// OpenSource returns the decompressed bytes at path.
func (o *Opener) OpenSource(ctx context.Context, path string) (io.ReadCloser, error) {
	raw, err := o.openRaw(ctx, path)
	if err != nil {
		return nil, err
	}
	dec, codec, err := compress.NewReader(raw)
	if err != nil {
		raw.Close()
		return nil, err
	}
	log := logctx.FromContext(ctx)
	log.Debug().
		Str("path", path).
		Stringer("codec", codec).
		Msg("opened source")
	return &chainCloser{Reader: dec, closers: []io.Closer{dec, raw}}, nil
}

// Source is a stream reader that owns its underlying source.
type Source struct {
	*stream.Reader
	src io.Closer
}

// Close releases the underlying source.
func (s *Source) Close() error {
	return s.src.Close()
}

// OpenReader opens path and reads its header.
func (o *Opener) OpenReader(ctx context.Context, path string) (*Source, error) {
	src, err := o.OpenSource(ctx, path)
	if err != nil {
		return nil, err
	}
	r, err := stream.NewReader(src, &stream.ReaderOptions{BufferSize: o.BufferSize})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("read %s: %w", displayName(path), err)
	}
	return &Source{Reader: r, src: src}, nil
}

// CreateSink returns a compressing sink for path. Closing it finishes the
// codec and then closes the destination; for S3 it also waits for the
// upload to complete.
func (o *Opener) CreateSink(ctx context.Context, path string) (compress.Writer, error) {
	codec := compress.FormatFromPath(path)
	if o.Codec != nil {
		codec = *o.Codec
	}

	base, err := o.createRaw(ctx, path)
	if err != nil {
		return nil, err
	}
	cw, err := compress.NewWriter(base, codec, o.Level)
	if err != nil {
		base.Close()
		return nil, err
	}
	log := logctx.FromContext(ctx)
	log.Debug().
		Str("path", path).
		Stringer("codec", codec).
		Msg("created sink")
	return &sink{Writer: cw, base: base}, nil
}

func (o *Opener) createRaw(ctx context.Context, path string) (io.WriteCloser, error) {
	switch {
	case IsStdio(path):
		return nopWriteCloser{o.Stdout}, nil
	case s3fetch.IsS3URI(path):
		bucket, key, err := s3fetch.ParseS3URI(path)
		if err != nil {
			return nil, err
		}
		c, err := o.s3Client(ctx)
		if err != nil {
			return nil, err
		}
		return newUploadSink(ctx, c, bucket, key), nil
	default:
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create file: %w", err)
		}
		return f, nil
	}
}

// CreateWriter creates a sink for path and writes h to it. Closing the
// Writer closes the whole sink chain.
func (o *Opener) CreateWriter(ctx context.Context, path string, h format.Header) (*stream.Writer, error) {
	s, err := o.CreateSink(ctx, path)
	if err != nil {
		return nil, err
	}
	w, err := stream.NewWriter(s, h, &stream.WriterOptions{BufferSize: o.BufferSize})
	if err != nil {
		s.Close()
		return nil, err
	}
	return w, nil
}

func displayName(path string) string {
	if IsStdio(path) {
		return "<stdio>"
	}
	return path
}

// chainCloser closes every closer in order and reports the first error.
type chainCloser struct {
	io.Reader
	closers []io.Closer
}

func (c *chainCloser) Close() error {
	var errs []error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// sink finishes the codec before closing the destination.
type sink struct {
	compress.Writer
	base io.Closer
}

func (s *sink) Close() error {
	err := s.Writer.Close()
	if cerr := s.base.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// uploadSink streams writes into a background S3 upload.
type uploadSink struct {
	pw *io.PipeWriter
	g  *errgroup.Group
}

func newUploadSink(ctx context.Context, c *s3fetch.Client, bucket, key string) *uploadSink {
	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := c.Upload(gctx, bucket, key, pr)
		pr.CloseWithError(err)
		if err != nil {
			return err
		}
		log := logctx.FromContext(ctx)
		log.Debug().
			Str("bucket", bucket).
			Str("key", key).
			Int64("bytes", res.Bytes).
			Dur("duration", res.Duration).
			Msg("upload complete")
		return nil
	})
	return &uploadSink{pw: pw, g: g}
}

func (u *uploadSink) Write(p []byte) (int, error) {
	return u.pw.Write(p)
}

// Close ends the body and waits for the upload.
func (u *uploadSink) Close() error {
	u.pw.Close()
	return u.g.Wait()
}
