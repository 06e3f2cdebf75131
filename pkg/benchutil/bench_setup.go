// Package benchutil holds shared setup for benchmarks across packages.
package benchutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/eunmann/ibu/pkg/format"
	"github.com/eunmann/ibu/pkg/recordgen"
)

// SkipIfNoLongBench skips the benchmark if IBU_LONG_BENCH is not set.
// Use this to gate long-running benchmarks that shouldn't run by default.
func SkipIfNoLongBench(b *testing.B) {
	if os.Getenv("IBU_LONG_BENCH") == "" {
		b.Skip("set IBU_LONG_BENCH=1 to run scaling benchmark")
	}
}

// Records returns n reproducible records drawn from the given number of
// distinct barcodes (0 = unbounded).
func Records(n, barcodes int) []format.Record {
	cfg := recordgen.DefaultConfig(n)
	cfg.NumBarcodes = barcodes
	cfg.Seed = BenchmarkSeed
	return recordgen.NewGenerator(cfg).Generate()
}

// Encode serializes h and recs into the on-disk layout.
func Encode(h format.Header, recs []format.Record) []byte {
	buf := make([]byte, format.HeaderSize+len(recs)*format.RecordSize)
	header := format.EncodeHeader(h)
	copy(buf, header[:])
	for i, r := range recs {
		format.PutRecord(buf[format.HeaderSize+i*format.RecordSize:], r)
	}
	return buf
}

// WriteFile writes recs under a 16/12 header into a temp file owned by tb
// and returns its path.
func WriteFile(tb testing.TB, recs []format.Record) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "bench.ibu")
	if err := os.WriteFile(path, Encode(format.NewHeader(16, 12), recs), 0o644); err != nil {
		tb.Fatalf("write bench file: %v", err)
	}
	return path
}
