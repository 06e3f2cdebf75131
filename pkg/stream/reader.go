package stream

import (
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/eunmann/ibu/pkg/format"
)

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	// BufferSize is the refill chunk size in bytes, rounded up to a multiple
	// of the record size. Default: DefaultBufferSize.
	BufferSize int
}

func (o *ReaderOptions) bufferSize() int {
	if o == nil {
		return DefaultBufferSize
	}
	return roundBufferSize(o.BufferSize)
}

// Reader decodes records from a source in buffered chunks.
//
// A Reader makes a single forward pass. Once Next has returned an error,
// including io.EOF, every later call returns that same error.
type Reader struct {
	r      io.Reader
	header format.Header
	buf    []byte
	pos    int // read position in buf, in bytes
	end    int // valid bytes in buf
	offset int64
	err    error
	batch  []format.Record
}

// NewReader reads and validates the header from r.
func NewReader(r io.Reader, opts *ReaderOptions) (*Reader, error) {
	var hbuf [format.HeaderSize]byte
	if _, err := io.ReadFull(r, hbuf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %w", format.ErrShortHeader, err)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	h := format.DecodeHeader(hbuf)
	if err := h.Validate(); err != nil {
		return nil, err
	}

	return &Reader{
		r:      r,
		header: h,
		buf:    make([]byte, opts.bufferSize()),
		offset: format.HeaderSize,
	}, nil
}

// Header returns the validated header.
func (r *Reader) Header() format.Header {
	return r.header
}

// Offset returns the number of bytes consumed from the source so far,
// starting at the header size.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Err returns the error that terminated the stream, or nil while records
// remain or after a clean end of stream.
func (r *Reader) Err() error {
	if errors.Is(r.err, io.EOF) {
		return nil
	}
	return r.err
}

// refill reads the next chunk, looping over short reads until the buffer is
// full or the source is exhausted.
func (r *Reader) refill() error {
	n, err := io.ReadFull(r.r, r.buf)
	switch {
	case errors.Is(err, io.EOF):
		return io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		// Source exhausted mid-buffer; n bytes are still valid.
	case err != nil:
		return fmt.Errorf("read records at offset %d: %w", r.offset, err)
	}

	if rem := n % format.RecordSize; rem != 0 {
		return &format.TruncatedRecordError{Offset: r.offset + int64(n-rem)}
	}

	r.pos = 0
	r.end = n
	r.offset += int64(n)
	return nil
}

func (r *Reader) fill() error {
	if r.err != nil {
		return r.err
	}
	if r.pos < r.end {
		return nil
	}
	if err := r.refill(); err != nil {
		r.err = err
		return err
	}
	return nil
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (format.Record, error) {
	if err := r.fill(); err != nil {
		return format.Record{}, err
	}
	rec := format.ReadRecord(r.buf[r.pos:])
	r.pos += format.RecordSize
	return rec, nil
}

// NextBatch returns all records remaining in the current chunk, refilling
// first if it is exhausted. The returned slice is reused by the next call.
func (r *Reader) NextBatch() ([]format.Record, error) {
	if err := r.fill(); err != nil {
		return nil, err
	}
	n := (r.end - r.pos) / format.RecordSize
	if cap(r.batch) < n {
		r.batch = make([]format.Record, n)
	}
	r.batch = r.batch[:n]
	for i := range r.batch {
		r.batch[i] = format.ReadRecord(r.buf[r.pos:])
		r.pos += format.RecordSize
	}
	return r.batch, nil
}

// All returns a sequence over the remaining records. A structural or I/O
// error is yielded once and ends the sequence; a clean end of stream yields
// nothing.
func (r *Reader) All() iter.Seq2[format.Record, error] {
	return func(yield func(format.Record, error) bool) {
		for {
			rec, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(format.Record{}, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// ReadAll drains the reader into a slice.
func (r *Reader) ReadAll() ([]format.Record, error) {
	var recs []format.Record
	for {
		batch, err := r.NextBatch()
		if errors.Is(err, io.EOF) {
			return recs, nil
		}
		if err != nil {
			return recs, err
		}
		recs = append(recs, batch...)
	}
}
