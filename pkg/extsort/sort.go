// Package extsort sorts record streams larger than memory by spilling
// sorted chunks to compressed run files and merging them.
package extsort

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/eunmann/ibu/internal/logctx"
	"github.com/eunmann/ibu/pkg/compress"
	"github.com/eunmann/ibu/pkg/format"
	"github.com/eunmann/ibu/pkg/stream"
)

// Config holds configuration for external sorting.
type Config struct {
	// MaxRecordsPerChunk is the maximum number of records held in memory
	// before a run is written. Default: 4M (96 MiB).
	MaxRecordsPerChunk int

	// TmpDir is the directory for run files. Default: os.TempDir().
	TmpDir string

	// RunCodec compresses run files. Default: compress.LZ4.
	RunCodec compress.Format

	// MaxFanIn caps the number of runs merged at once. When there are more
	// runs, they are merged in rounds. Default: 64.
	MaxFanIn int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		MaxRecordsPerChunk: 4 << 20,
		TmpDir:             os.TempDir(),
		RunCodec:           compress.LZ4,
		MaxFanIn:           64,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRecordsPerChunk <= 0 {
		c.MaxRecordsPerChunk = d.MaxRecordsPerChunk
	}
	if c.TmpDir == "" {
		c.TmpDir = d.TmpDir
	}
	if c.RunCodec == compress.None {
		c.RunCodec = d.RunCodec
	}
	if c.MaxFanIn < 2 {
		c.MaxFanIn = d.MaxFanIn
	}
	return c
}

// ChunkRecordsForBudget converts a byte budget into a chunk size, leaving
// room for the sort's own buffers.
func ChunkRecordsForBudget(budget uint64) int {
	return max(1024, int(budget/format.RecordSize*3/4))
}

// Sorter performs an external merge sort on records.
type Sorter struct {
	cfg    Config
	header format.Header
	chunk  []format.Record
	runs   []string
	added  uint64
}

// NewSorter creates a sorter for records described by h. Run files carry
// h's sequence lengths.
func NewSorter(h format.Header, cfg Config) *Sorter {
	return &Sorter{cfg: cfg.withDefaults(), header: h}
}

// Add buffers one record, spilling a sorted run when the chunk is full.
func (s *Sorter) Add(r format.Record) error {
	if s.chunk == nil {
		s.chunk = make([]format.Record, 0, s.cfg.MaxRecordsPerChunk)
	}
	s.chunk = append(s.chunk, r)
	s.added++
	if len(s.chunk) >= s.cfg.MaxRecordsPerChunk {
		return s.flushChunk()
	}
	return nil
}

// AddAll drains r into the sorter.
func (s *Sorter) AddAll(ctx context.Context, r *stream.Reader) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := r.NextBatch()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read records: %w", err)
		}
		for _, rec := range batch {
			if err := s.Add(rec); err != nil {
				return err
			}
		}
	}
}

// Added returns the number of records added so far.
func (s *Sorter) Added() uint64 {
	return s.added
}

// Runs returns the number of run files written so far.
func (s *Sorter) Runs() int {
	return len(s.runs)
}

// flushChunk sorts the chunk and writes it as a run file.
func (s *Sorter) flushChunk() error {
	if len(s.chunk) == 0 {
		return nil
	}
	slices.SortFunc(s.chunk, format.Compare)

	path, err := writeRun(s.cfg, s.header, func(w *stream.Writer) error {
		return w.WriteBatch(s.chunk)
	})
	if err != nil {
		return err
	}
	s.runs = append(s.runs, path)
	s.chunk = s.chunk[:0]
	return nil
}

// Merge returns an iterator over every added record in sorted order. If
// nothing was spilled the chunk is sorted and served from memory.
func (s *Sorter) Merge(ctx context.Context) (*Iterator, error) {
	if len(s.runs) == 0 {
		slices.SortFunc(s.chunk, format.Compare)
		return &Iterator{ctx: ctx, mem: s.chunk}, nil
	}
	if err := s.flushChunk(); err != nil {
		return nil, err
	}

	log := logctx.FromContext(ctx)
	for round := 1; len(s.runs) > s.cfg.MaxFanIn; round++ {
		if err := s.mergeRound(ctx); err != nil {
			return nil, fmt.Errorf("merge round %d: %w", round, err)
		}
		log.Debug().Int("round", round).Int("runs_count", len(s.runs)).Msg("merge round complete")
	}
	return openIterator(ctx, s.runs)
}

// mergeRound merges runs in groups of MaxFanIn into fewer, longer runs.
func (s *Sorter) mergeRound(ctx context.Context) error {
	var next []string
	for group := range slices.Chunk(s.runs, s.cfg.MaxFanIn) {
		if len(group) == 1 {
			next = append(next, group[0])
			continue
		}
		path, err := mergeRuns(ctx, s.cfg, s.header, group)
		if err != nil {
			return err
		}
		for _, p := range group {
			os.Remove(p)
		}
		next = append(next, path)
	}
	s.runs = next
	return nil
}

// WriteTo merges every added record into w.
func (s *Sorter) WriteTo(ctx context.Context, w *stream.Writer) error {
	it, err := s.Merge(ctx)
	if err != nil {
		return err
	}
	defer it.Close()
	return drain(it, w)
}

// Cleanup removes all run files.
func (s *Sorter) Cleanup() error {
	var errs []error
	for _, path := range s.runs {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	s.runs = nil
	s.chunk = nil
	return errors.Join(errs...)
}

func drain(it *Iterator, w *stream.Writer) error {
	for it.Next() {
		if err := w.WriteRecord(it.Record()); err != nil {
			return err
		}
	}
	return it.Err()
}
