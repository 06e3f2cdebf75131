package extsort

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/eunmann/ibu/pkg/compress"
	"github.com/eunmann/ibu/pkg/format"
	"github.com/eunmann/ibu/pkg/stream"
)

// writeRun creates a compressed run file in cfg.TmpDir and fills it via fn.
func writeRun(cfg Config, h format.Header, fn func(*stream.Writer) error) (string, error) {
	f, err := os.CreateTemp(cfg.TmpDir, "ibu-run-*.ibu")
	if err != nil {
		return "", fmt.Errorf("create run file: %w", err)
	}
	path := f.Name()

	err = func() error {
		cw, err := compress.NewWriter(f, cfg.RunCodec, compress.LevelFastest)
		if err != nil {
			return err
		}
		h.SetSorted(true)
		return stream.WithWriter(context.Background(), cw, h, nil, fn)
	}()
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close run file: %w", cerr)
	}
	if err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// mergeRuns merges sorted runs into one new run.
func mergeRuns(ctx context.Context, cfg Config, h format.Header, paths []string) (string, error) {
	it, err := openIterator(ctx, paths)
	if err != nil {
		return "", err
	}
	defer it.Close()
	return writeRun(cfg, h, func(w *stream.Writer) error {
		return drain(it, w)
	})
}

// runReader reads records from one sorted run.
type runReader struct {
	file    *os.File
	dec     io.Closer
	r       *stream.Reader
	current format.Record
}

func openRun(path string) (*runReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open run file: %w", err)
	}
	dec, _, err := compress.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r, err := stream.NewReader(dec, nil)
	if err != nil {
		dec.Close()
		f.Close()
		return nil, fmt.Errorf("read run %s: %w", path, err)
	}
	return &runReader{file: f, dec: dec, r: r}, nil
}

// advance loads the next record; it returns false at the end of the run.
func (r *runReader) advance() (bool, error) {
	rec, err := r.r.Next()
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	r.current = rec
	return true, nil
}

func (r *runReader) Close() error {
	err := r.dec.Close()
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// Iterator yields records in ascending order, either from memory or by a
// k-way merge of run files.
type Iterator struct {
	ctx     context.Context
	readers []*runReader
	h       mergeHeap
	current format.Record
	err     error

	mem []format.Record
	pos int
}

func openIterator(ctx context.Context, paths []string) (*Iterator, error) {
	it := &Iterator{ctx: ctx}
	for _, path := range paths {
		rr, err := openRun(path)
		if err != nil {
			it.Close()
			return nil, err
		}
		it.readers = append(it.readers, rr)

		ok, err := rr.advance()
		if err != nil {
			it.Close()
			return nil, fmt.Errorf("read run %s: %w", path, err)
		}
		if ok {
			it.h = append(it.h, heapItem{record: rr.current, readerIdx: len(it.readers) - 1})
		}
	}
	heap.Init(&it.h)
	return it, nil
}

// Next advances to the next record. It returns false when done or on error.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	if it.readers == nil {
		if it.pos >= len(it.mem) {
			return false
		}
		it.current = it.mem[it.pos]
		it.pos++
		return true
	}

	if err := it.ctx.Err(); err != nil {
		it.err = err
		return false
	}
	if it.h.Len() == 0 {
		return false
	}

	// Replace the head in place instead of pop+push.
	top := &it.h[0]
	it.current = top.record
	r := it.readers[top.readerIdx]
	ok, err := r.advance()
	if err != nil {
		it.err = err
		return false
	}
	if ok {
		top.record = r.current
		heap.Fix(&it.h, 0)
	} else {
		heap.Pop(&it.h)
	}
	return true
}

// Record returns the current record. Valid after Next returns true.
func (it *Iterator) Record() format.Record {
	return it.current
}

// Err returns the error that stopped iteration, if any.
func (it *Iterator) Err() error {
	return it.err
}

// Close releases open run files. It does not remove them.
func (it *Iterator) Close() error {
	var errs []error
	for _, r := range it.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	it.readers = nil
	it.h = nil
	return errors.Join(errs...)
}

type heapItem struct {
	record    format.Record
	readerIdx int
}

// mergeHeap orders by record, breaking ties by run so that the merge is
// stable with respect to run order.
type mergeHeap []heapItem

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	if c := format.Compare(h[i].record, h[j].record); c != 0 {
		return c < 0
	}
	return h[i].readerIdx < h[j].readerIdx
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x any) {
	*h = append(*h, x.(heapItem))
}

func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
