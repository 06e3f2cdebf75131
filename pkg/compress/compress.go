// Package compress wraps byte sources and sinks with transparent
// compression. Readers detect the codec from magic bytes; writers pick it
// from the caller or the output path's extension.
package compress

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Format identifies a compression codec.
type Format int

const (
	None Format = iota
	Gzip
	Zstd
	Snappy
	LZ4
)

// ErrUnknownFormat indicates an unrecognised codec name.
var ErrUnknownFormat = errors.New("unknown compression format")

var formatNames = map[Format]string{
	None:   "none",
	Gzip:   "gzip",
	Zstd:   "zstd",
	Snappy: "snappy",
	LZ4:    "lz4",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat maps a codec name ("gzip", "zstd", ...) to a Format.
func ParseFormat(name string) (Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return None, nil
	}
	for f, s := range formatNames {
		if s == name {
			return f, nil
		}
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// FormatFromPath picks a codec from the file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		return Gzip
	case ".zst", ".zstd":
		return Zstd
	case ".sz", ".snappy":
		return Snappy
	case ".lz4":
		return LZ4
	default:
		return None
	}
}

// Level defines the compression effort level.
type Level int

const (
	// LevelFastest prioritizes speed over ratio.
	LevelFastest Level = 1
	// LevelDefault balances speed and ratio.
	LevelDefault Level = 3
	// LevelBetter prioritizes ratio over speed.
	LevelBetter Level = 6
)

var magics = []struct {
	format Format
	magic  []byte
}{
	{Gzip, []byte{0x1f, 0x8b}},
	{Zstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{Snappy, []byte{0xff, 0x06, 0x00, 0x00, 's', 'N', 'a', 'P', 'p', 'Y'}},
	{LZ4, []byte{0x04, 0x22, 0x4d, 0x18}},
}

// sniffSize is the longest magic prefix.
const sniffSize = 10

// Detect reports the codec whose magic prefixes head.
func Detect(head []byte) Format {
	for _, m := range magics {
		if bytes.HasPrefix(head, m.magic) {
			return m.format
		}
	}
	return None
}

// NewReader returns a reader that yields the decompressed contents of r.
// Uncompressed input is passed through. Closing the result releases the
// decoder but does not close r.
func NewReader(r io.Reader) (io.ReadCloser, Format, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	head, err := br.Peek(sniffSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, None, fmt.Errorf("sniff compression: %w", err)
	}

	f := Detect(head)
	switch f {
	case Gzip:
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, f, fmt.Errorf("gzip reader: %w", err)
		}
		return zr, f, nil
	case Zstd:
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, f, fmt.Errorf("zstd reader: %w", err)
		}
		return dec.IOReadCloser(), f, nil
	case Snappy:
		return io.NopCloser(snappy.NewReader(br)), f, nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(br)), f, nil
	default:
		return io.NopCloser(br), None, nil
	}
}

// Writer is a compressing sink. Flush pushes buffered data through the
// codec; Close finishes the stream but leaves the underlying writer open.
type Writer interface {
	io.WriteCloser
	Flush() error
}

// NewWriter returns a Writer that compresses into w with the given codec.
// A zero level means LevelDefault.
func NewWriter(w io.Writer, f Format, level Level) (Writer, error) {
	if level == 0 {
		level = LevelDefault
	}

	switch f {
	case None:
		return passthrough{w}, nil
	case Gzip:
		gl := gzip.DefaultCompression
		switch level {
		case LevelFastest:
			gl = gzip.BestSpeed
		case LevelBetter:
			gl = gzip.BestCompression
		}
		zw, err := gzip.NewWriterLevel(w, gl)
		if err != nil {
			return nil, fmt.Errorf("gzip writer: %w", err)
		}
		return zw, nil
	case Zstd:
		zl := zstd.SpeedDefault
		switch level {
		case LevelFastest:
			zl = zstd.SpeedFastest
		case LevelBetter:
			zl = zstd.SpeedBetterCompression
		}
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zl))
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		return enc, nil
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	case LZ4:
		ll := lz4.Level4
		switch level {
		case LevelFastest:
			ll = lz4.Fast
		case LevelBetter:
			ll = lz4.Level9
		}
		zw := lz4.NewWriter(w)
		if err := zw.Apply(lz4.CompressionLevelOption(ll)); err != nil {
			return nil, fmt.Errorf("lz4 writer: %w", err)
		}
		return zw, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownFormat, f)
	}
}

// passthrough adapts a plain writer to Writer without taking ownership.
type passthrough struct {
	w io.Writer
}

func (p passthrough) Write(b []byte) (int, error) { return p.w.Write(b) }

func (p passthrough) Flush() error {
	if f, ok := p.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

func (p passthrough) Close() error { return nil }
