package bcindex

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/eunmann/ibu/pkg/format"
	"github.com/eunmann/ibu/pkg/mmapview"
	"github.com/eunmann/ibu/pkg/parallel"
)

// barcodeCollector gathers distinct barcodes per worker and merges them
// into a shared set at batch boundaries.
type barcodeCollector struct {
	mu     *sync.Mutex
	shared map[uint64]struct{}
	local  map[uint64]struct{}
	last   uint64
	seen   bool
}

func (c *barcodeCollector) ProcessRecord(r format.Record) error {
	// Sorted and clustered inputs repeat barcodes back to back.
	if c.seen && r.Barcode == c.last {
		return nil
	}
	c.local[r.Barcode] = struct{}{}
	c.last, c.seen = r.Barcode, true
	return nil
}

func (c *barcodeCollector) OnBatchComplete() error {
	c.mu.Lock()
	for bc := range c.local {
		c.shared[bc] = struct{}{}
	}
	c.mu.Unlock()
	clear(c.local)
	return nil
}

func (c *barcodeCollector) Clone() parallel.Processor {
	return &barcodeCollector{mu: c.mu, shared: c.shared, local: make(map[uint64]struct{})}
}

// BuildFromView scans v in parallel and indexes its distinct barcodes.
func BuildFromView(ctx context.Context, v *mmapview.View, cfg parallel.Config) (*Index, error) {
	proto := &barcodeCollector{mu: &sync.Mutex{}, shared: make(map[uint64]struct{})}
	if err := parallel.Run(ctx, v, proto, cfg); err != nil {
		return nil, fmt.Errorf("collect barcodes: %w", err)
	}

	barcodes := make([]uint64, 0, len(proto.shared))
	for bc := range proto.shared {
		barcodes = append(barcodes, bc)
	}
	return Build(barcodes)
}

// Counts holds per-position tallies for an Index.
type Counts struct {
	Index   *Index
	Records []uint64 // Records[pos] counts records with Index.Barcode(pos)
}

// Total returns the sum of all record counts.
func (c *Counts) Total() uint64 {
	var n uint64
	for _, v := range c.Records {
		n += v
	}
	return n
}

// Get returns the record count for bc.
func (c *Counts) Get(bc uint64) (uint64, bool) {
	pos, ok := c.Index.Lookup(bc)
	if !ok {
		return 0, false
	}
	return c.Records[pos], true
}

// Counter is a parallel.Processor that tallies records per barcode. Each
// clone counts into a private slice and adds it to the shared totals after
// every batch.
type Counter struct {
	parallel.WorkerID
	idx    *Index
	shared []atomic.Uint64
	local  []uint64
}

// NewCounter creates a counter over idx.
func NewCounter(idx *Index) *Counter {
	return &Counter{idx: idx, shared: make([]atomic.Uint64, idx.Len())}
}

func (c *Counter) ProcessRecord(r format.Record) error {
	pos, ok := c.idx.Lookup(r.Barcode)
	if !ok {
		return fmt.Errorf("%w: %#x", ErrUnknownBarcode, r.Barcode)
	}
	c.local[pos]++
	return nil
}

func (c *Counter) OnBatchComplete() error {
	for pos, n := range c.local {
		if n != 0 {
			c.shared[pos].Add(n)
			c.local[pos] = 0
		}
	}
	return nil
}

func (c *Counter) Clone() parallel.Processor {
	return &Counter{idx: c.idx, shared: c.shared, local: make([]uint64, c.idx.Len())}
}

// Counts snapshots the shared totals.
func (c *Counter) Counts() *Counts {
	out := make([]uint64, len(c.shared))
	for i := range c.shared {
		out[i] = c.shared[i].Load()
	}
	return &Counts{Index: c.idx, Records: out}
}

// Count tallies records per barcode across v. If idx is nil it is built from
// v first.
func Count(ctx context.Context, v *mmapview.View, idx *Index, cfg parallel.Config) (*Counts, error) {
	if idx == nil {
		var err error
		if idx, err = BuildFromView(ctx, v, cfg); err != nil {
			return nil, err
		}
	}
	counter := NewCounter(idx)
	if err := parallel.Run(ctx, v, counter, cfg); err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	return counter.Counts(), nil
}
