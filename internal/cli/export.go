package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/eunmann/ibu/internal/logctx"
	"github.com/eunmann/ibu/pkg/export"
	"github.com/eunmann/ibu/pkg/logging"
	"github.com/spf13/cobra"
)

func newExportCmd(a *app) *cobra.Command {
	var output string
	opts := export.Options{}
	cmd := &cobra.Command{
		Use:   "export <input>",
		Short: "Convert records to Parquet",
		Long: `Export streams the input into a Parquet file with barcode, umi, and
index columns. With --seq it adds barcode_seq and umi_seq string columns
decoded from the header's sequence lengths.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), a, args[0], output, &opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&output, "output", "o", "", "output path or s3:// URI (required)")
	f.BoolVarP(&opts.Sequences, "seq", "s", false, "add decoded nucleotide columns")
	f.Int64Var(&opts.RowGroupSize, "row-group", 1<<20, "maximum rows per row group")
	f.StringVar(&opts.Codec, "parquet-codec", "zstd", "column compression: zstd, snappy, gzip, none")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func runExport(ctx context.Context, a *app, input, output string, opts *export.Options) error {
	ctx = logctx.WithStr(ctx, "input", input)
	log := logctx.FromContext(ctx)
	start := time.Now()

	src, err := a.opener.OpenReader(ctx, input)
	if err != nil {
		return err
	}
	defer closeQuietly(ctx, src, input)

	sink, err := a.opener.CreateSink(ctx, output)
	if err != nil {
		return err
	}
	rows, err := export.Parquet(src.Reader, sink, opts)
	if err != nil {
		closeQuietly(ctx, sink, output)
		return fmt.Errorf("export %s: %w", input, err)
	}
	if err := sink.Close(); err != nil {
		return fmt.Errorf("close %s: %w", output, err)
	}

	logging.PhaseComplete(log, "export", time.Since(start), rows, "export complete")
	return nil
}
