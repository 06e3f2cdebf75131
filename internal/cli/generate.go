package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/eunmann/ibu/internal/logctx"
	"github.com/eunmann/ibu/pkg/format"
	"github.com/eunmann/ibu/pkg/fileio"
	"github.com/eunmann/ibu/pkg/logging"
	"github.com/eunmann/ibu/pkg/parallel"
	"github.com/eunmann/ibu/pkg/recordgen"
	"github.com/eunmann/ibu/pkg/stream"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// generateRound is the number of records each worker buffers per round.
const generateRound = 1 << 18

type generateOptions struct {
	output   string
	records  int
	bcLen    uint32
	umiLen   uint32
	barcodes int
	maxIndex uint64
	seed     uint64
	sorted   bool
	workers  int
}

func newGenerateCmd(a *app) *cobra.Command {
	opts := generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write synthetic records",
		Long: `Generate writes random records drawn from a fixed barcode pool.

Workers fill private in-memory writers that are merged into the output in
worker order, so a given seed and worker count always produce the same file.
With --sorted the records are generated in memory, sorted, and written with
the sorted flag set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd.Context(), a, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", fileio.Stdio, "output path, s3:// URI, or - for stdout")
	f.IntVarP(&opts.records, "records", "n", 1_000_000, "number of records")
	f.Uint32Var(&opts.bcLen, "bc-len", 16, "barcode length in bases (1-32)")
	f.Uint32Var(&opts.umiLen, "umi-len", 12, "UMI length in bases (1-32)")
	f.IntVar(&opts.barcodes, "barcodes", 4096, "distinct barcodes to draw from (0 = unbounded)")
	f.Uint64Var(&opts.maxIndex, "max-index", 1<<16, "exclusive upper bound for the index field")
	f.Uint64Var(&opts.seed, "seed", 42, "random seed")
	f.BoolVar(&opts.sorted, "sorted", false, "sort records and set the sorted flag")
	f.IntVarP(&opts.workers, "workers", "w", 4, "generator workers")
	return cmd
}

func (o generateOptions) config(seed uint64, n int) recordgen.Config {
	return recordgen.Config{
		NumRecords:  n,
		BarcodeLen:  o.bcLen,
		UMILen:      o.umiLen,
		NumBarcodes: o.barcodes,
		MaxIndex:    o.maxIndex,
		Sorted:      o.sorted,
		Seed:        seed,
	}
}

func runGenerate(ctx context.Context, a *app, opts generateOptions) error {
	if opts.records < 0 {
		return fmt.Errorf("records must be non-negative, got %d", opts.records)
	}
	h := format.NewHeader(opts.bcLen, opts.umiLen)
	h.SetSorted(opts.sorted)
	if err := h.Validate(); err != nil {
		return err
	}

	ctx = logctx.WithStr(ctx, "output", opts.output)
	log := logctx.FromContext(ctx)
	start := time.Now()

	sink, err := a.opener.CreateSink(ctx, opts.output)
	if err != nil {
		return err
	}
	err = stream.WithWriter(ctx, sink, h, &stream.WriterOptions{BufferSize: a.opener.BufferSize}, func(w *stream.Writer) error {
		if opts.sorted {
			// Barcodes are drawn from one pool so sorting keeps them grouped.
			recs := recordgen.NewGenerator(opts.config(opts.seed, opts.records)).Generate()
			return w.WriteBatch(recs)
		}
		return generateParallel(ctx, w, opts)
	})
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	logging.PhaseComplete(log, "generate", time.Since(start), int64(opts.records), "generate complete")
	return nil
}

// generateParallel fills one memory writer per worker each round and ingests
// them into w in worker order.
func generateParallel(ctx context.Context, w *stream.Writer, opts generateOptions) error {
	workers := max(1, opts.workers)

	// Every worker shares the barcode pool drawn from the base seed.
	pool := recordgen.NewGenerator(opts.config(opts.seed, 0))
	gens := make([]*recordgen.Generator, workers)
	for i := range gens {
		gens[i] = pool.Fork(uint64(i) + 1)
	}
	mems := make([]*stream.Writer, workers)
	for i := range mems {
		mems[i] = stream.NewMemWriter(nil)
	}

	tracker := logging.NewProgressTracker("generate", int64(opts.records), logctx.FromContext(ctx))
	for done := 0; done < opts.records; {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(opts.records-done, generateRound*workers)
		ranges := parallel.Partition(n, workers)

		var g errgroup.Group
		for i, rng := range ranges {
			g.Go(func() error {
				for range rng.Len() {
					if err := mems[i].WriteRecord(gens[i].Next()); err != nil {
						return err
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		for _, m := range mems {
			if err := w.Ingest(m); err != nil {
				return err
			}
		}
		done += n
		tracker.Add(int64(n))
	}
	return nil
}
