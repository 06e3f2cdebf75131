package extsort

import (
	"bytes"
	"context"
	"errors"
	"os"
	"slices"
	"testing"

	"github.com/eunmann/ibu/pkg/compress"
	"github.com/eunmann/ibu/pkg/format"
	"github.com/eunmann/ibu/pkg/recordgen"
	"github.com/eunmann/ibu/pkg/stream"
)

var testHeader = format.NewHeader(16, 12)

func collect(t *testing.T, it *Iterator) []format.Record {
	t.Helper()
	var out []format.Record
	for it.Next() {
		out = append(out, it.Record())
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration failed: %v", err)
	}
	return out
}

func sortedCopy(recs []format.Record) []format.Record {
	out := slices.Clone(recs)
	slices.SortFunc(out, format.Compare)
	return out
}

func assertNoRuns(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected run files to be removed, found %d entries", len(entries))
	}
}

func TestEmptySorter(t *testing.T) {
	dir := t.TempDir()
	s := NewSorter(testHeader, Config{MaxRecordsPerChunk: 10, TmpDir: dir})

	it, err := s.Merge(context.Background())
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	defer it.Close()

	if it.Next() {
		t.Error("expected no records from empty sorter")
	}
	if it.Err() != nil {
		t.Errorf("unexpected error: %v", it.Err())
	}
}

func TestSingleChunkStaysInMemory(t *testing.T) {
	dir := t.TempDir()
	s := NewSorter(testHeader, Config{MaxRecordsPerChunk: 1000, TmpDir: dir})
	recs := recordgen.Records(500, 1)
	for _, r := range recs {
		if err := s.Add(r); err != nil {
			t.Fatal(err)
		}
	}

	it, err := s.Merge(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	if s.Runs() != 0 {
		t.Errorf("Runs() = %d, want 0 for a single chunk", s.Runs())
	}
	if got := collect(t, it); !slices.Equal(got, sortedCopy(recs)) {
		t.Error("in-memory merge is not sorted")
	}
	assertNoRuns(t, dir)
}

func TestMultipleRuns(t *testing.T) {
	for _, codec := range []compress.Format{compress.LZ4, compress.Zstd, compress.Snappy, compress.Gzip} {
		t.Run(codec.String(), func(t *testing.T) {
			dir := t.TempDir()
			s := NewSorter(testHeader, Config{MaxRecordsPerChunk: 1000, TmpDir: dir, RunCodec: codec})
			recs := recordgen.Records(10_500, 2)
			for _, r := range recs {
				if err := s.Add(r); err != nil {
					t.Fatal(err)
				}
			}
			if s.Runs() != 10 {
				t.Errorf("Runs() = %d before merge, want 10", s.Runs())
			}

			it, err := s.Merge(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			got := collect(t, it)
			if err := it.Close(); err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(got, sortedCopy(recs)) {
				t.Error("merged output differs from sorted input")
			}

			if err := s.Cleanup(); err != nil {
				t.Fatal(err)
			}
			assertNoRuns(t, dir)
		})
	}
}

func TestMergeRounds(t *testing.T) {
	dir := t.TempDir()
	s := NewSorter(testHeader, Config{MaxRecordsPerChunk: 100, TmpDir: dir, MaxFanIn: 3})
	recs := recordgen.Records(2_000, 3)
	for _, r := range recs {
		if err := s.Add(r); err != nil {
			t.Fatal(err)
		}
	}

	it, err := s.Merge(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	// 20 runs -> 7 -> 3
	if s.Runs() != 3 {
		t.Errorf("Runs() = %d after rounds, want 3", s.Runs())
	}
	if got := collect(t, it); !slices.Equal(got, sortedCopy(recs)) {
		t.Error("multi-round merge output differs from sorted input")
	}
	it.Close()
	if err := s.Cleanup(); err != nil {
		t.Fatal(err)
	}
	assertNoRuns(t, dir)
}

func TestDuplicatesPreserved(t *testing.T) {
	dir := t.TempDir()
	s := NewSorter(testHeader, Config{MaxRecordsPerChunk: 3, TmpDir: dir})
	dup := format.Record{Barcode: 7, UMI: 7, Index: 7}
	for range 10 {
		if err := s.Add(dup); err != nil {
			t.Fatal(err)
		}
	}
	it, err := s.Merge(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Cleanup()
	defer it.Close()

	if got := collect(t, it); len(got) != 10 {
		t.Errorf("got %d records, want 10 duplicates", len(got))
	}
}

func TestAddAllAndWriteTo(t *testing.T) {
	recs := recordgen.Records(5_000, 4)
	var in bytes.Buffer
	w, err := stream.NewWriter(&in, testHeader, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteBatch(recs); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := stream.NewReader(&in, &stream.ReaderOptions{BufferSize: 700 * format.RecordSize})
	if err != nil {
		t.Fatal(err)
	}
	s := NewSorter(r.Header(), Config{MaxRecordsPerChunk: 1234, TmpDir: t.TempDir()})
	defer s.Cleanup()
	if err := s.AddAll(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	if s.Added() != 5_000 {
		t.Errorf("Added() = %d, want 5000", s.Added())
	}

	h := r.Header()
	h.SetSorted(true)
	var out bytes.Buffer
	ow, err := stream.NewWriter(&out, h, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.WriteTo(context.Background(), ow); err != nil {
		t.Fatal(err)
	}
	if err := ow.Close(); err != nil {
		t.Fatal(err)
	}

	or, err := stream.NewReader(&out, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := or.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, sortedCopy(recs)) {
		t.Error("WriteTo output differs from sorted input")
	}
}

func TestMergeCancelled(t *testing.T) {
	s := NewSorter(testHeader, Config{MaxRecordsPerChunk: 10, TmpDir: t.TempDir()})
	defer s.Cleanup()
	for _, r := range recordgen.Records(100, 5) {
		if err := s.Add(r); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	it, err := s.Merge(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	cancel()
	if it.Next() {
		t.Error("Next succeeded after cancellation")
	}
	if !errors.Is(it.Err(), context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", it.Err())
	}
}

func TestChunkRecordsForBudget(t *testing.T) {
	if got := ChunkRecordsForBudget(0); got != 1024 {
		t.Errorf("ChunkRecordsForBudget(0) = %d, want 1024", got)
	}
	if got := ChunkRecordsForBudget(24 << 20); got != (1<<20)*3/4 {
		t.Errorf("ChunkRecordsForBudget(24MiB) = %d", got)
	}
}
