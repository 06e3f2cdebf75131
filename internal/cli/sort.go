package cli

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/eunmann/ibu/internal/logctx"
	"github.com/eunmann/ibu/pkg/extsort"
	"github.com/eunmann/ibu/pkg/fileio"
	"github.com/eunmann/ibu/pkg/format"
	"github.com/eunmann/ibu/pkg/humanfmt"
	"github.com/eunmann/ibu/pkg/logging"
	"github.com/eunmann/ibu/pkg/membudget"
	"github.com/eunmann/ibu/pkg/stream"
	"github.com/spf13/cobra"
)

type sortOptions struct {
	output string
	memory string
}

func newSortCmd(a *app) *cobra.Command {
	opts := sortOptions{}
	cmd := &cobra.Command{
		Use:   "sort <input>",
		Short: "Sort records by (barcode, umi, index)",
		Long: `Sort loads the whole input into memory, orders records by barcode, then
UMI, then index, and writes them with the sorted flag set.

Inputs that fit in the memory budget (--memory if given, otherwise half of
system RAM) are sorted in place. Larger inputs are sorted externally: sorted
chunks are spilled to compressed run files under --tmp and merged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSort(cmd.Context(), a, args[0], opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", fileio.Stdio, "output path, s3:// URI, or - for stdout")
	f.StringVarP(&opts.memory, "memory", "m", "", "memory budget, e.g. 8GiB (default: half of system RAM)")
	return cmd
}

func (o sortOptions) budget() (*membudget.Budget, error) {
	if o.memory == "" {
		return membudget.FromSystem(), nil
	}
	n, err := membudget.ParseSize(o.memory)
	if err != nil {
		return nil, fmt.Errorf("--memory: %w", err)
	}
	return membudget.New(n, membudget.SourceFlag), nil
}

func runSort(ctx context.Context, a *app, input string, opts sortOptions) error {
	ctx = logctx.WithStr(ctx, "input", input)
	log := logctx.FromContext(ctx)

	budget, err := opts.budget()
	if err != nil {
		return err
	}

	local, err := a.opener.Localize(ctx, input, a.tmpDir)
	if err != nil {
		return err
	}
	defer closeQuietly(ctx, local, local.Path)

	info, err := os.Stat(local.Path)
	if err != nil {
		return fmt.Errorf("stat input: %w", err)
	}
	need, err := format.DataSize(info.Size())
	if err != nil {
		return err
	}
	if !budget.TryReserve(uint64(need)) {
		log.Info().
			Str("data_h", humanfmt.Bytes(need)).
			Str("budget_h", humanfmt.BytesUint64(budget.Total())).
			Str("budget_source", string(budget.Source())).
			Msg("input exceeds memory budget, sorting externally")
		return sortExternal(ctx, a, local.Path, opts.output, budget)
	}
	defer budget.Release(uint64(need))

	start := time.Now()
	h, recs, err := stream.LoadAll(local.Path)
	if err != nil {
		return err
	}
	a.mem.SampleWithBudget("sort_loaded", budget.InUse(), budget.Total())
	if !format.IsSorted(recs) {
		slices.SortFunc(recs, format.Compare)
	}
	log.Debug().Int("records_count", len(recs)).Str("duration_h", humanfmt.Duration(time.Since(start))).Msg("sorted in memory")

	h.SetSorted(true)
	sink, err := a.opener.CreateSink(ctx, opts.output)
	if err != nil {
		return err
	}
	err = stream.WithWriter(ctx, sink, h, &stream.WriterOptions{BufferSize: a.opener.BufferSize}, func(w *stream.Writer) error {
		return w.WriteBatch(recs)
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", opts.output, err)
	}

	logging.PhaseComplete(log, "sort", time.Since(start), int64(len(recs)), "sort complete")
	return nil
}

func sortExternal(ctx context.Context, a *app, path, output string, budget *membudget.Budget) error {
	log := logctx.FromContext(ctx)
	start := time.Now()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	r, err := stream.NewReader(f, &stream.ReaderOptions{BufferSize: a.opener.BufferSize})
	if err != nil {
		return err
	}

	cfg := extsort.DefaultConfig()
	cfg.MaxRecordsPerChunk = extsort.ChunkRecordsForBudget(budget.Total())
	if a.tmpDir != "" {
		cfg.TmpDir = a.tmpDir
	}
	sorter := extsort.NewSorter(r.Header(), cfg)
	defer func() {
		if err := sorter.Cleanup(); err != nil {
			log.Warn().Err(err).Msg("failed to remove run files")
		}
	}()

	if err := sorter.AddAll(ctx, r); err != nil {
		return err
	}
	log.Debug().
		Uint64("records_count", sorter.Added()).
		Int("runs_count", sorter.Runs()).
		Msg("spilled sorted runs")

	h := r.Header()
	h.SetSorted(true)
	sink, err := a.opener.CreateSink(ctx, output)
	if err != nil {
		return err
	}
	err = stream.WithWriter(ctx, sink, h, &stream.WriterOptions{BufferSize: a.opener.BufferSize}, func(w *stream.Writer) error {
		return sorter.WriteTo(ctx, w)
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}

	logging.PhaseComplete(log, "sort", time.Since(start), int64(sorter.Added()), "external sort complete")
	return nil
}
