package fileio

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/eunmann/ibu/internal/logctx"
	"github.com/eunmann/ibu/pkg/compress"
	"github.com/eunmann/ibu/pkg/humanfmt"
	"github.com/eunmann/ibu/pkg/s3fetch"
)

// Local is an uncompressed, seekable file suitable for memory mapping.
type Local struct {
	Path string
	temp bool
}

// Temporary reports whether Path was created by Localize.
func (l *Local) Temporary() bool {
	return l.temp
}

// Close removes the file if Localize created it.
func (l *Local) Close() error {
	if !l.temp {
		return nil
	}
	if err := os.Remove(l.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove temp file: %w", err)
	}
	return nil
}

// Localize makes path available as an uncompressed local file. Plain local
// files are returned as-is. S3 objects are fetched with parallel ranged
// downloads, and compressed or stdin inputs are decoded, into a temp file
// under dir (os.TempDir() if empty).
func (o *Opener) Localize(ctx context.Context, path, dir string) (*Local, error) {
	log := logctx.FromContext(ctx)

	if !IsStdio(path) && !s3fetch.IsS3URI(path) {
		codec, err := sniffFile(path)
		if err != nil {
			return nil, err
		}
		if codec == compress.None {
			return &Local{Path: path}, nil
		}
		return o.decodeToTemp(ctx, path, dir)
	}

	if IsStdio(path) {
		return o.decodeToTemp(ctx, path, dir)
	}

	bucket, key, err := s3fetch.ParseS3URI(path)
	if err != nil {
		return nil, err
	}
	c, err := o.s3Client(ctx)
	if err != nil {
		return nil, err
	}

	f, err := os.CreateTemp(dir, "ibu-download-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	res, err := c.Download(ctx, bucket, key, f)
	if cerr := f.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close temp file: %w", cerr)
	}
	if err != nil {
		os.Remove(f.Name())
		return nil, err
	}
	log.Info().
		Str("path", path).
		Int64("bytes", res.Bytes).
		Str("bytes_h", humanfmt.Bytes(res.Bytes)).
		Str("throughput_h", humanfmt.Throughput(res.Bytes, res.Duration)).
		Msg("downloaded object")

	downloaded := &Local{Path: f.Name(), temp: true}
	codec, err := sniffFile(downloaded.Path)
	if err != nil {
		downloaded.Close()
		return nil, err
	}
	if codec == compress.None {
		return downloaded, nil
	}

	defer downloaded.Close()
	return o.decodeToTemp(ctx, downloaded.Path, dir)
}

func (o *Opener) decodeToTemp(ctx context.Context, path, dir string) (*Local, error) {
	src, err := o.OpenSource(ctx, path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	f, err := os.CreateTemp(dir, "ibu-decoded-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("decode %s: %w", displayName(path), err)
	}
	log := logctx.FromContext(ctx)
	log.Debug().
		Str("path", path).
		Str("bytes_h", humanfmt.Bytes(n)).
		Msg("decoded to temp file")
	return &Local{Path: f.Name(), temp: true}, nil
}

func sniffFile(path string) (compress.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return compress.None, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	head := make([]byte, 16)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return compress.None, fmt.Errorf("read file: %w", err)
	}
	return compress.Detect(head[:n]), nil
}
