// Package stream implements buffered sequential encoding and decoding of ibu
// record streams over arbitrary byte sinks and sources.
package stream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/eunmann/ibu/pkg/format"
)

// DefaultBufferSize batches 48Ki records per sink write.
const DefaultBufferSize = 48 * 1024 * format.RecordSize

// ErrIngestSource indicates Ingest was given a writer that does not buffer
// into memory.
var ErrIngestSource = errors.New("ingest source must be a memory writer")

// Flusher is implemented by sinks that buffer internally.
type Flusher interface {
	Flush() error
}

// WriterOptions configures a Writer.
type WriterOptions struct {
	// BufferSize is the internal buffer size in bytes, rounded up to a
	// multiple of the record size. Default: DefaultBufferSize.
	BufferSize int
}

func (o *WriterOptions) bufferSize() int {
	if o == nil {
		return DefaultBufferSize
	}
	return roundBufferSize(o.BufferSize)
}

// roundBufferSize applies the default and rounds n up to whole records.
func roundBufferSize(n int) int {
	if n <= 0 {
		return DefaultBufferSize
	}
	if rem := n % format.RecordSize; rem != 0 {
		n += format.RecordSize - rem
	}
	return n
}

// Writer buffers encoded records and writes them to a sink in large chunks.
//
// A Writer is not safe for concurrent use. Call Finish or Close before the
// sink is discarded, otherwise buffered records are lost.
type Writer struct {
	w      io.Writer
	buf    []byte
	pos    int
	count  uint64
	closed bool
}

// NewWriter validates h, writes it to w, and returns a Writer that appends
// records after it.
func NewWriter(w io.Writer, h format.Header, opts *WriterOptions) (*Writer, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	header := format.EncodeHeader(h)
	if _, err := w.Write(header[:]); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return NewHeadlessWriter(w, opts), nil
}

// NewHeadlessWriter returns a Writer that emits records only. Its output is
// meant to be merged into another Writer with Ingest or appended to a
// stream whose header was written elsewhere.
func NewHeadlessWriter(w io.Writer, opts *WriterOptions) *Writer {
	return &Writer{
		w:   w,
		buf: make([]byte, opts.bufferSize()),
	}
}

// NewMemWriter returns a headless Writer backed by an in-memory buffer,
// suitable as the argument to Ingest.
func NewMemWriter(opts *WriterOptions) *Writer {
	return NewHeadlessWriter(new(bytes.Buffer), opts)
}

// Records returns the number of records written so far.
func (w *Writer) Records() uint64 {
	return w.count
}

// Buffered returns the number of bytes waiting in the internal buffer.
func (w *Writer) Buffered() int {
	return w.pos
}

// Sink returns the underlying sink.
func (w *Writer) Sink() io.Writer {
	return w.w
}

func (w *Writer) flushBuffer() error {
	if w.pos == 0 {
		return nil
	}
	if _, err := w.w.Write(w.buf[:w.pos]); err != nil {
		return fmt.Errorf("write records: %w", err)
	}
	w.pos = 0
	return nil
}

// WriteRecord appends a single record.
func (w *Writer) WriteRecord(r format.Record) error {
	if w.pos+format.RecordSize > len(w.buf) {
		if err := w.flushBuffer(); err != nil {
			return err
		}
	}
	format.PutRecord(w.buf[w.pos:], r)
	w.pos += format.RecordSize
	w.count++
	return nil
}

// WriteBatch appends recs. Batches larger than the buffer bypass it and go
// straight to the sink after pending bytes are flushed.
func (w *Writer) WriteBatch(recs []format.Record) error {
	if len(recs) == 0 {
		return nil
	}
	if b := format.RecordsAsBytes(recs); b != nil {
		return w.writeSlice(b)
	}
	for _, r := range recs {
		if err := w.WriteRecord(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteSeq writes records from seq until it is exhausted or a write fails.
func (w *Writer) WriteSeq(seq iter.Seq[format.Record]) error {
	for r := range seq {
		if err := w.WriteRecord(r); err != nil {
			return err
		}
	}
	return nil
}

// writeSlice appends already-encoded records. len(b) must be a multiple of
// the record size.
func (w *Writer) writeSlice(b []byte) error {
	n := uint64(len(b) / format.RecordSize)

	if len(b) > len(w.buf) {
		if err := w.flushBuffer(); err != nil {
			return err
		}
		if _, err := w.w.Write(b); err != nil {
			return fmt.Errorf("write records: %w", err)
		}
		w.count += n
		return nil
	}

	for len(b) > 0 {
		c := copy(w.buf[w.pos:], b)
		w.pos += c
		b = b[c:]
		if w.pos == len(w.buf) {
			if err := w.flushBuffer(); err != nil {
				return err
			}
		}
	}
	w.count += n
	return nil
}

// Ingest moves everything other has written into w without re-encoding and
// leaves other empty with a zero record count. other must have been created with NewMemWriter (or be
// headless over a *bytes.Buffer).
func (w *Writer) Ingest(other *Writer) error {
	src, ok := other.w.(*bytes.Buffer)
	if !ok {
		return ErrIngestSource
	}
	if err := other.flushBuffer(); err != nil {
		return err
	}
	if err := w.writeSlice(src.Bytes()); err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	src.Reset()
	other.count = 0
	return nil
}

// Finish flushes the internal buffer and then the sink, if it buffers.
// It is the only way to observe late I/O errors.
func (w *Writer) Finish() error {
	if err := w.flushBuffer(); err != nil {
		return err
	}
	if f, ok := w.w.(Flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flush sink: %w", err)
		}
	}
	return nil
}

// Close finishes the writer and closes the sink if it is an io.Closer.
// Calling Close more than once is a no-op.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.Finish()
	if c, ok := w.w.(io.Closer); ok {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close sink: %w", cerr)
		}
	}
	return err
}

// Discard is the best-effort form of Close used on error paths: it tries to
// deliver buffered records and release the sink, and ignores any failure.
func (w *Writer) Discard() {
	_ = w.Close()
}
