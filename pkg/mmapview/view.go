// Package mmapview exposes an ibu file as a read-only memory mapping with
// bounds-checked, zero-copy access to its records.
//
// Thread Safety: a View is safe for concurrent reads. Each goroutine that
// may outlive the others should hold its own handle from Clone so that the
// mapping stays alive until the last handle is closed.
//
// The file must not be truncated or rewritten while it is mapped; doing so
// is undefined behavior at the OS level (SIGBUS on access past the new end).
package mmapview

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"sync/atomic"

	"github.com/eunmann/ibu/pkg/format"
	"golang.org/x/sys/unix"
)

// ErrClosed is returned when a closed View is used.
var ErrClosed = errors.New("view is closed")

// mapping is the shared, reference-counted memory region.
type mapping struct {
	data []byte
	refs atomic.Int64
}

func (m *mapping) release() error {
	if m.refs.Add(-1) != 0 {
		return nil
	}
	if err := unix.Munmap(m.data); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}

// View is one handle onto a mapped ibu file.
type View struct {
	m       *mapping
	path    string
	header  format.Header
	n       int
	body    []byte
	records []format.Record // aliases body; nil on big-endian hosts
	closed  atomic.Bool
}

// Open maps path read-only and validates its header and size.
func Open(path string) (*View, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}

	size := info.Size()
	dataSize, err := format.DataSize(size)
	if err != nil {
		return nil, err
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}

	h, err := format.ParseHeader(data)
	if err != nil {
		_ = unix.Munmap(data)
		return nil, err
	}

	// Advisory only; workers scan their ranges front to back.
	_ = unix.Madvise(data, unix.MADV_SEQUENTIAL)

	m := &mapping{data: data}
	m.refs.Store(1)

	body := data[format.HeaderSize:]
	return &View{
		m:       m,
		path:    path,
		header:  h,
		n:       int(dataSize / format.RecordSize),
		body:    body,
		records: format.BytesAsRecords(body),
	}, nil
}

// Len returns the number of records.
func (v *View) Len() int {
	return v.n
}

// Header returns the validated header.
func (v *View) Header() format.Header {
	return v.header
}

// Path returns the mapped file's path.
func (v *View) Path() string {
	return v.path
}

// Slice returns records [start, end). The request is valid only if
// start < Len(), end <= Len(), and end > start.
//
// On little-endian hosts the result aliases the mapping and must not be
// written to; its capacity is clipped so append copies. It stays valid
// until the last handle is closed.
func (v *View) Slice(start, end int) ([]format.Record, error) {
	if v.closed.Load() {
		return nil, ErrClosed
	}
	switch {
	case start < 0 || start >= v.n:
		return nil, &format.IndexError{Index: start, Len: v.n}
	case end > v.n || end <= start:
		return nil, &format.IndexError{Index: end, Len: v.n}
	}

	if v.records != nil {
		return v.records[start:end:end], nil
	}
	out := make([]format.Record, end-start)
	for i := range out {
		out[i] = format.ReadRecord(v.body[(start+i)*format.RecordSize:])
	}
	return out, nil
}

// At returns record i.
func (v *View) At(i int) (format.Record, error) {
	if v.closed.Load() {
		return format.Record{}, ErrClosed
	}
	if i < 0 || i >= v.n {
		return format.Record{}, &format.IndexError{Index: i, Len: v.n}
	}
	if v.records != nil {
		return v.records[i], nil
	}
	return format.ReadRecord(v.body[i*format.RecordSize:]), nil
}

// Records yields every record in file order. It yields nothing once the
// handle is closed.
func (v *View) Records() iter.Seq[format.Record] {
	return func(yield func(format.Record) bool) {
		for i := range v.n {
			r, err := v.At(i)
			if err != nil || !yield(r) {
				return
			}
		}
	}
}

// Clone returns a new handle sharing the mapping. Cloning a closed handle
// yields another closed handle.
func (v *View) Clone() *View {
	c := &View{
		m:       v.m,
		path:    v.path,
		header:  v.header,
		n:       v.n,
		body:    v.body,
		records: v.records,
	}
	if v.closed.Load() {
		c.closed.Store(true)
		return c
	}
	v.m.refs.Add(1)
	return c
}

// Close releases this handle. The mapping is unmapped when the last handle
// is closed. Closing twice is a no-op.
func (v *View) Close() error {
	if !v.closed.CompareAndSwap(false, true) {
		return nil
	}
	return v.m.release()
}
