package parallel

import (
	"context"
	"fmt"
	"runtime"
	"testing"

	"github.com/eunmann/ibu/pkg/benchutil"
	"github.com/eunmann/ibu/pkg/format"
	"github.com/eunmann/ibu/pkg/mmapview"
)

func benchRun(b *testing.B, size int) {
	path := benchutil.WriteFile(b, benchutil.Records(size, 4096))
	v, err := mmapview.Open(path)
	if err != nil {
		b.Fatal(err)
	}
	defer v.Close()

	noop := Func(func(format.Record) error { return nil })
	for _, threads := range []int{1, 4, runtime.NumCPU()} {
		b.Run(fmt.Sprintf("records=%d/threads=%d", size, threads), func(b *testing.B) {
			b.SetBytes(int64(size * format.RecordSize))
			for b.Loop() {
				if err := Run(context.Background(), v, noop, Config{NumThreads: threads}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkRun(b *testing.B) {
	for _, size := range benchutil.BenchmarkSizes {
		benchRun(b, size)
	}
}

func BenchmarkRun_Scaling(b *testing.B) {
	benchutil.SkipIfNoLongBench(b)
	for _, size := range benchutil.ScalingSizes {
		benchRun(b, size)
	}
}
