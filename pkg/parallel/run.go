package parallel

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/eunmann/ibu/internal/logctx"
	"github.com/eunmann/ibu/pkg/format"
	"github.com/eunmann/ibu/pkg/humanfmt"
	"github.com/eunmann/ibu/pkg/mmapview"
)

// DefaultBatchSize is the number of records between OnBatchComplete calls.
const DefaultBatchSize = 1 << 20

// ErrWorkerPanic indicates a processor panicked inside a worker.
var ErrWorkerPanic = errors.New("worker panicked")

// Config configures Run.
type Config struct {
	// NumThreads is the number of workers. 0 means runtime.NumCPU() capped
	// at the record count (minimum 1). Explicit values are used as given,
	// so some workers may receive empty ranges.
	NumThreads int

	// BatchSize is the number of records per batch. Default: DefaultBatchSize.
	BatchSize int
}

// Threads resolves the worker count for n records.
func (c Config) Threads(n int) int {
	if c.NumThreads > 0 {
		return c.NumThreads
	}
	return max(1, min(runtime.NumCPU(), n))
}

func (c Config) batchSize() int {
	if c.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return c.BatchSize
}

// Range is a half-open record interval [Start, End).
type Range struct {
	Start, End int
}

// Len returns the number of records in the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// Partition splits [0, n) into threads contiguous ranges of n/threads
// records, giving the remainder to the last range.
func Partition(n, threads int) []Range {
	if threads < 1 {
		threads = 1
	}
	per := n / threads
	ranges := make([]Range, threads)
	for i := range ranges {
		ranges[i] = Range{Start: i * per, End: (i + 1) * per}
	}
	ranges[threads-1].End = n
	return ranges
}

// WorkerError attributes a failure to the worker and range it came from.
type WorkerError struct {
	Worker int
	Start  int
	End    int
	Err    error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %d [%d, %d): %v", e.Worker, e.Start, e.End, e.Err)
}

func (e *WorkerError) Unwrap() error {
	return e.Err
}

// Run processes every record of v with a clone of proc per worker.
//
// Every worker runs to completion or to its own first error; a failing
// worker does not stop the others. After all workers return, the first
// error in worker order is returned as a *WorkerError whose Err matches
// format.ErrProcess for processor failures. ctx is consulted only before
// workers start.
func Run(ctx context.Context, v *mmapview.View, proc Processor, cfg Config) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n := v.Len()
	ranges := Partition(n, cfg.Threads(n))
	batch := cfg.batchSize()

	log := logctx.FromContext(ctx)
	log.Debug().
		Str("path", v.Path()).
		Int("records_count", n).
		Int("workers_count", len(ranges)).
		Int("batch_size", batch).
		Msg("starting parallel scan")
	start := time.Now()

	errs := make([]error, len(ranges))
	var wg sync.WaitGroup
	for i, rng := range ranges {
		p := proc.Clone()
		if ta, ok := p.(ThreadAware); ok {
			ta.SetTID(i)
		}
		view := v.Clone()

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer view.Close()
			errs[i] = runWorker(view, p, rng, batch)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			continue
		}
		log.Debug().Err(err).Int("worker", i).Msg("worker failed")
		return &WorkerError{Worker: i, Start: ranges[i].Start, End: ranges[i].End, Err: err}
	}

	elapsed := time.Since(start)
	log.Debug().
		Int("records_count", n).
		Str("duration_h", humanfmt.Duration(elapsed)).
		Str("rate_h", humanfmt.Rate(int64(n), elapsed)).
		Msg("parallel scan complete")
	return nil
}

func runWorker(v *mmapview.View, p Processor, rng Range, batch int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrWorkerPanic, r)
		}
	}()

	bc, _ := p.(BatchCompleter)
	for pos := rng.Start; pos < rng.End; {
		end := min(pos+batch, rng.End)
		recs, err := v.Slice(pos, end)
		if err != nil {
			return err
		}
		for _, r := range recs {
			if err := p.ProcessRecord(r); err != nil {
				return format.ProcessError(err)
			}
		}
		if bc != nil {
			if err := bc.OnBatchComplete(); err != nil {
				return format.ProcessError(err)
			}
		}
		pos = end
	}
	return nil
}
