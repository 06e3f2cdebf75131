// Package memdiag samples Go runtime memory statistics while a command runs.
//
// Enable periodic sampling with --mem-debug or IBU_MEM_DEBUG=1. Setting
// IBU_PPROF_ADDR (for example "localhost:6060") also serves net/http/pprof.
package memdiag

import (
	"net/http"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	// Registers pprof handlers on DefaultServeMux for the pprof HTTP server.
	_ "net/http/pprof"

	"github.com/eunmann/ibu/pkg/humanfmt"
	"github.com/rs/zerolog"
)

// DefaultInterval is the sampling period when Config.Interval is zero.
const DefaultInterval = 5 * time.Second

// Config controls a Tracker.
type Config struct {
	// Enabled turns sampling on. A disabled Tracker does nothing.
	Enabled bool

	// PprofAddr, if set, is the listen address for a pprof server.
	PprofAddr string

	// Interval is the sampling period. Default: DefaultInterval.
	Interval time.Duration
}

// ConfigFromEnv reads IBU_MEM_DEBUG and IBU_PPROF_ADDR.
func ConfigFromEnv() Config {
	return Config{
		Enabled:   os.Getenv("IBU_MEM_DEBUG") == "1",
		PprofAddr: os.Getenv("IBU_PPROF_ADDR"),
		Interval:  DefaultInterval,
	}
}

// Stats is a subset of runtime.MemStats.
type Stats struct {
	HeapAlloc     uint64
	HeapInuse     uint64
	HeapSys       uint64
	Sys           uint64
	NumGC         uint32
	GCCPUFraction float64
}

// Read samples the runtime.
func Read() Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return Stats{
		HeapAlloc:     m.HeapAlloc,
		HeapInuse:     m.HeapInuse,
		HeapSys:       m.HeapSys,
		Sys:           m.Sys,
		NumGC:         m.NumGC,
		GCCPUFraction: m.GCCPUFraction,
	}
}

func mb(b uint64) string {
	return humanfmt.BytesUint64(b)
}

// Tracker logs memory samples on a ticker and remembers the peak heap.
type Tracker struct {
	cfg     Config
	log     zerolog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	started atomic.Bool
	stopped atomic.Bool

	mu       sync.Mutex
	peakHeap uint64
}

// NewTracker creates a tracker that logs to log at debug level.
func NewTracker(cfg Config, log zerolog.Logger) *Tracker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Tracker{
		cfg:    cfg,
		log:    log,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Enabled reports whether the tracker samples at all.
func (t *Tracker) Enabled() bool {
	return t.cfg.Enabled
}

// Start begins periodic sampling. It is a no-op when disabled or already
// started.
func (t *Tracker) Start() {
	if !t.cfg.Enabled || !t.started.CompareAndSwap(false, true) {
		return
	}

	if addr := t.cfg.PprofAddr; addr != "" {
		go func() {
			t.log.Info().Str("addr", addr).Msg("starting pprof server")
			if err := http.ListenAndServe(addr, nil); err != nil {
				t.log.Error().Err(err).Msg("pprof server failed")
			}
		}()
	}
	go t.loop()
}

// Stop ends sampling and logs a final sample. Safe to call more than once.
func (t *Tracker) Stop() {
	if !t.started.Load() || !t.stopped.CompareAndSwap(false, true) {
		return
	}
	close(t.stopCh)
	<-t.doneCh
}

// Sample logs the current statistics tagged with reason.
func (t *Tracker) Sample(reason string) Stats {
	s := Read()
	t.mu.Lock()
	t.peakHeap = max(t.peakHeap, s.HeapAlloc)
	peak := t.peakHeap
	t.mu.Unlock()

	if t.cfg.Enabled {
		t.log.Debug().
			Str("reason", reason).
			Str("heap_alloc", mb(s.HeapAlloc)).
			Str("heap_inuse", mb(s.HeapInuse)).
			Str("heap_sys", mb(s.HeapSys)).
			Str("sys_total", mb(s.Sys)).
			Str("peak_heap", mb(peak)).
			Uint32("num_gc", s.NumGC).
			Float64("gc_cpu_pct", s.GCCPUFraction*100).
			Msg("memory stats")
	}
	return s
}

// SampleWithBudget logs the heap next to a reservation made against a
// memory budget, warning when the heap is far above it.
func (t *Tracker) SampleWithBudget(reason string, reserved, total uint64) {
	if !t.cfg.Enabled {
		return
	}
	s := t.Sample(reason)

	var ratio float64
	if reserved > 0 {
		ratio = float64(s.HeapAlloc) / float64(reserved)
	}
	t.log.Debug().
		Str("reason", reason).
		Str("budget_reserved", mb(reserved)).
		Str("budget_total", mb(total)).
		Float64("heap_vs_budget_ratio", ratio).
		Msg("memory budget")
	if ratio > 2.0 && reserved > 100<<20 {
		t.log.Warn().
			Str("heap_alloc", mb(s.HeapAlloc)).
			Str("budget_reserved", mb(reserved)).
			Float64("ratio", ratio).
			Msg("heap usage well above budget reservation")
	}
}

// PeakHeap returns the largest heap allocation sampled so far.
func (t *Tracker) PeakHeap() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peakHeap
}

func (t *Tracker) loop() {
	defer close(t.doneCh)

	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			t.Sample("shutdown")
			return
		case <-ticker.C:
			t.Sample("periodic")
		}
	}
}
