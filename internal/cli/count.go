package cli

import (
	"bufio"
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/eunmann/ibu/internal/logctx"
	"github.com/eunmann/ibu/pkg/bcindex"
	"github.com/eunmann/ibu/pkg/fileutil"
	"github.com/eunmann/ibu/pkg/format"
	"github.com/eunmann/ibu/pkg/logging"
	"github.com/eunmann/ibu/pkg/mmapview"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type countOptions struct {
	index     string
	sequences bool
	minCount  uint64
	summary   bool
}

func newCountCmd(a *app) *cobra.Command {
	opts := countOptions{}
	cmd := &cobra.Command{
		Use:   "count <input>",
		Short: "Count records per barcode",
		Long: `Count tallies records per barcode with a parallel scan and prints
"barcode<TAB>count" lines in ascending barcode order.

The barcode set is indexed with a minimal perfect hash. With --index, an
existing index file is loaded and reused, and a missing one is built from the
input and saved there. Records whose barcode is not in a loaded index fail
the scan.

With --summary only the distribution of records per barcode is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCount(cmd.Context(), a, args[0], cmd.OutOrStdout(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.index, "index", "", "barcode index file to load, or to create if missing")
	f.BoolVarP(&opts.sequences, "seq", "s", false, "print barcodes as nucleotides")
	f.Uint64Var(&opts.minCount, "min-count", 1, "omit barcodes with fewer records")
	f.BoolVar(&opts.summary, "summary", false, "print the distribution of records per barcode instead of the table")
	return cmd
}

func runCount(ctx context.Context, a *app, input string, out io.Writer, opts countOptions) error {
	ctx = logctx.WithStr(ctx, "input", input)
	log := logctx.FromContext(ctx)

	local, err := a.opener.Localize(ctx, input, a.tmpDir)
	if err != nil {
		return err
	}
	defer closeQuietly(ctx, local, local.Path)

	v, err := mmapview.Open(local.Path)
	if err != nil {
		return err
	}
	defer closeQuietly(ctx, v, local.Path)

	var idx *bcindex.Index
	if opts.index != "" && fileutil.Exists(opts.index) {
		if idx, err = bcindex.Load(opts.index); err != nil {
			return err
		}
		log.Debug().Str("index", opts.index).Int("barcodes_count", idx.Len()).Msg("loaded barcode index")
	}

	start := time.Now()
	counts, err := bcindex.Count(ctx, v, idx, a.parallelConfig())
	if err != nil {
		return fmt.Errorf("count %s: %w", input, err)
	}
	if opts.index != "" && idx == nil {
		if err := counts.Index.Save(opts.index); err != nil {
			return err
		}
	}
	logging.PhaseComplete(log, "count", time.Since(start), int64(counts.Total()), "count complete")

	if opts.summary {
		return printCountSummary(out, counts, opts.minCount)
	}

	// Index positions follow hash order; print by barcode.
	order := make([]int, counts.Index.Len())
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(x, y int) int {
		return cmp.Compare(counts.Index.Barcode(x), counts.Index.Barcode(y))
	})

	h := v.Header()
	bw := bufio.NewWriter(out)
	for _, pos := range order {
		bc, n := counts.Index.Barcode(pos), counts.Records[pos]
		if n < opts.minCount {
			continue
		}
		if opts.sequences {
			fmt.Fprintf(bw, "%s\t%d\n", format.DecodeSequence(bc, h.BarcodeLen), n)
		} else {
			fmt.Fprintf(bw, "%d\t%d\n", bc, n)
		}
	}
	return bw.Flush()
}

// printCountSummary reports the spread of per-barcode record counts.
func printCountSummary(out io.Writer, counts *bcindex.Counts, minCount uint64) error {
	values := make([]float64, 0, len(counts.Records))
	for _, n := range counts.Records {
		if n >= minCount {
			values = append(values, float64(n))
		}
	}
	slices.Sort(values)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "barcodes\t%d\n", len(values))
	fmt.Fprintf(tw, "records\t%d\n", uint64(floats.Sum(values)))
	if len(values) > 0 {
		stddev := 0.0
		if len(values) > 1 {
			stddev = stat.StdDev(values, nil)
		}
		fmt.Fprintf(tw, "mean\t%.2f\n", stat.Mean(values, nil))
		fmt.Fprintf(tw, "stddev\t%.2f\n", stddev)
		fmt.Fprintf(tw, "min\t%d\n", uint64(values[0]))
		fmt.Fprintf(tw, "median\t%d\n", uint64(stat.Quantile(0.5, stat.Empirical, values, nil)))
		fmt.Fprintf(tw, "p90\t%d\n", uint64(stat.Quantile(0.9, stat.Empirical, values, nil)))
		fmt.Fprintf(tw, "max\t%d\n", uint64(values[len(values)-1]))
	}
	return tw.Flush()
}
