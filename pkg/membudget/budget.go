// Package membudget tracks how much memory in-memory operations may claim.
//
// Callers reserve an estimate before allocating and release it when done;
// the budget does not allocate or enforce anything on its own.
package membudget

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/eunmann/ibu/pkg/humanfmt"
	"github.com/eunmann/ibu/pkg/sysmem"
)

// ErrOverBudget indicates a reservation larger than the whole budget.
var ErrOverBudget = errors.New("exceeds memory budget")

// Source records how a budget's size was chosen.
type Source string

const (
	// SourceFlag means the size came from the command line.
	SourceFlag Source = "flag"
	// SourceSystem means half of detected system RAM.
	SourceSystem Source = "system-50pct"
	// SourceDefault means RAM detection failed and sysmem's default was halved.
	SourceDefault Source = "default"
)

// Budget is a concurrency-safe byte counter with a fixed ceiling.
type Budget struct {
	total  uint64
	source Source

	mu    sync.Mutex
	cond  *sync.Cond
	inUse uint64
}

// New creates a budget of total bytes.
func New(total uint64, source Source) *Budget {
	b := &Budget{total: total, source: source}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// FromSystem creates a budget of half the detected system RAM.
func FromSystem() *Budget {
	r := sysmem.Total()
	if r.Reliable {
		return New(r.TotalBytes/2, SourceSystem)
	}
	return New(sysmem.DefaultMemoryBytes/2, SourceDefault)
}

// Total returns the ceiling in bytes.
func (b *Budget) Total() uint64 {
	return b.total
}

// Source returns how the ceiling was chosen.
func (b *Budget) Source() Source {
	return b.source
}

// InUse returns the reserved bytes.
func (b *Budget) InUse() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inUse
}

// Available returns the unreserved bytes.
func (b *Budget) Available() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total - b.inUse
}

// TryReserve reserves n bytes if they are available right now.
func (b *Budget) TryReserve(n uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tryReserveLocked(n)
}

// Reserve blocks until n bytes can be reserved. It fails immediately with
// ErrOverBudget if n exceeds the total.
func (b *Budget) Reserve(n uint64) error {
	if n > b.total {
		return fmt.Errorf("%w: %s requested, %s total",
			ErrOverBudget, humanfmt.BytesUint64(n), humanfmt.BytesUint64(b.total))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for !b.tryReserveLocked(n) {
		b.cond.Wait()
	}
	return nil
}

func (b *Budget) tryReserveLocked(n uint64) bool {
	if n > b.total-b.inUse {
		return false
	}
	b.inUse += n
	return true
}

// Release returns n bytes. Releasing more than is reserved clamps to zero.
func (b *Budget) Release(n uint64) {
	b.mu.Lock()
	b.inUse -= min(n, b.inUse)
	b.mu.Unlock()
	b.cond.Broadcast()
}

// ParseSize parses sizes such as "512MB", "4GiB", "1.5G", or a plain byte
// count. Single-letter suffixes are binary.
func ParseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}

	end := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	if end < 0 {
		end = len(s)
	}
	num, err := strconv.ParseFloat(s[:end], 64)
	if err != nil || num < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}

	var mult float64
	switch strings.TrimSpace(s[end:]) {
	case "", "B":
		mult = 1
	case "KB":
		mult = 1e3
	case "K", "KiB":
		mult = 1 << 10
	case "MB":
		mult = 1e6
	case "M", "MiB":
		mult = 1 << 20
	case "GB":
		mult = 1e9
	case "G", "GiB":
		mult = 1 << 30
	case "TB":
		mult = 1e12
	case "T", "TiB":
		mult = 1 << 40
	default:
		return 0, fmt.Errorf("invalid size suffix in %q", s)
	}
	return uint64(num * mult), nil
}
