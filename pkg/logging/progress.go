package logging

import (
	"sync/atomic"
	"time"

	"github.com/eunmann/ibu/pkg/format"
	"github.com/eunmann/ibu/pkg/humanfmt"
	"github.com/rs/zerolog"
)

// DefaultProgressInterval is the minimum time between progress log lines.
const DefaultProgressInterval = 5 * time.Second

// ProgressTracker counts processed records against a known total and logs
// throttled progress lines with rate and ETA. It is safe for concurrent use.
type ProgressTracker struct {
	total     int64
	done      atomic.Int64
	startTime time.Time
	lastLog   atomic.Int64 // unix nanos of the last progress line
	interval  time.Duration
	log       zerolog.Logger
	phase     string
}

// NewProgressTracker creates a tracker for total records.
func NewProgressTracker(phase string, total int64, log zerolog.Logger) *ProgressTracker {
	pt := &ProgressTracker{
		total:     total,
		startTime: time.Now(),
		interval:  DefaultProgressInterval,
		log:       log,
		phase:     phase,
	}
	pt.lastLog.Store(pt.startTime.UnixNano())
	return pt
}

// SetInterval changes the minimum time between progress lines.
// A zero interval logs on every Add.
func (pt *ProgressTracker) SetInterval(d time.Duration) {
	pt.interval = d
}

// Add records n more processed records and logs progress if the interval
// has elapsed since the last line.
func (pt *ProgressTracker) Add(n int64) {
	pt.done.Add(n)

	now := time.Now().UnixNano()
	last := pt.lastLog.Load()
	if time.Duration(now-last) < pt.interval {
		return
	}
	// Only one concurrent caller wins the right to log.
	if !pt.lastLog.CompareAndSwap(last, now) {
		return
	}
	pt.logProgress()
}

// Done returns the number of records processed so far.
func (pt *ProgressTracker) Done() int64 {
	return pt.done.Load()
}

// Total returns the expected number of records.
func (pt *ProgressTracker) Total() int64 {
	return pt.total
}

// ProgressPct returns the progress percentage (0-100).
func (pt *ProgressTracker) ProgressPct() float64 {
	if pt.total == 0 {
		return 100.0
	}
	return float64(pt.done.Load()) * 100.0 / float64(pt.total)
}

// Elapsed returns time since tracking started.
func (pt *ProgressTracker) Elapsed() time.Duration {
	return time.Since(pt.startTime)
}

// Rate returns records per second since tracking started.
func (pt *ProgressTracker) Rate() float64 {
	elapsed := pt.Elapsed().Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(pt.done.Load()) / elapsed
}

// ETA estimates the remaining time from the average rate so far.
func (pt *ProgressTracker) ETA() time.Duration {
	done := pt.done.Load()
	remaining := pt.total - done
	if done == 0 || remaining <= 0 {
		return 0
	}
	perRecord := pt.Elapsed() / time.Duration(done)
	return perRecord * time.Duration(remaining)
}

func (pt *ProgressTracker) logProgress() {
	done := pt.done.Load()
	e := pt.log.Info().
		Str("event", "progress").
		Str("phase", pt.phase).
		Int64("done", done).
		Int64("total", pt.total).
		Float64("progress_pct", pt.ProgressPct()).
		Float64("records_per_sec", pt.Rate())
	if eta := pt.ETA(); eta > 0 {
		e = e.Int64("eta_ms", eta.Milliseconds())
	}
	if IsHuman() {
		e = e.Str("progress_h", humanfmt.Count(done)+"/"+humanfmt.Count(pt.total)).
			Str("eta_h", humanfmt.Duration(pt.ETA()))
	}
	e.Msg("progress")
}

// Complete logs a phase completion line with record count, byte volume,
// and throughput.
func (pt *ProgressTracker) Complete(msg string) {
	PhaseComplete(pt.log, pt.phase, pt.Elapsed(), pt.done.Load(), msg)
}

// PhaseComplete logs a completion event for a phase that handled records.
func PhaseComplete(log zerolog.Logger, phase string, elapsed time.Duration, records int64, msg string) {
	bytes := records * format.RecordSize
	e := log.Info().
		Str("event", "phase_completed").
		Str("phase", phase).
		Int64("duration_ms", elapsed.Milliseconds()).
		Int64("records_count", records).
		Int64("bytes", bytes)
	if IsHuman() {
		e = e.Str("duration_h", humanfmt.Duration(elapsed)).
			Str("records_h", humanfmt.Count(records)).
			Str("bytes_h", humanfmt.Bytes(bytes)).
			Str("throughput_h", humanfmt.Throughput(bytes, elapsed))
	}
	e.Msg(msg)
}
