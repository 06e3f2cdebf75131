// Package parallel drives caller-supplied logic over every record of a
// mapped ibu file using one goroutine per contiguous partition.
package parallel

import "github.com/eunmann/ibu/pkg/format"

// Processor is the per-record callback run by Run.
//
// Run calls Clone once per worker before any records are processed, and each
// clone is used by exactly one goroutine. State that must be combined
// across workers belongs behind a pointer that the clones share and that is
// synchronized by the caller, typically touched only in OnBatchComplete.
type Processor interface {
	ProcessRecord(r format.Record) error
	Clone() Processor
}

// BatchCompleter is implemented by processors that flush thread-local
// accumulators after every batch.
type BatchCompleter interface {
	OnBatchComplete() error
}

// ThreadAware is implemented by processors that want to learn their
// 0-based worker index.
type ThreadAware interface {
	SetTID(tid int)
	TID() (int, bool)
}

// WorkerID is an embeddable ThreadAware implementation.
type WorkerID struct {
	tid int
	set bool
}

// SetTID records the worker index.
func (w *WorkerID) SetTID(tid int) {
	w.tid = tid
	w.set = true
}

// TID returns the worker index, or false if it was never set.
func (w *WorkerID) TID() (int, bool) {
	return w.tid, w.set
}

// Func adapts a stateless, concurrency-safe function to Processor.
type Func func(format.Record) error

// ProcessRecord calls f(r).
func (f Func) ProcessRecord(r format.Record) error {
	return f(r)
}

// Clone returns f itself.
func (f Func) Clone() Processor {
	return f
}
