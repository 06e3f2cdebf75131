package cli

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/eunmann/ibu/internal/logctx"
	"github.com/eunmann/ibu/pkg/compress"
	"github.com/eunmann/ibu/pkg/fileio"
	"github.com/eunmann/ibu/pkg/format"
	"github.com/eunmann/ibu/pkg/logging"
	"github.com/eunmann/ibu/pkg/stream"
	"github.com/eunmann/ibu/pkg/tabular"
	"github.com/spf13/cobra"
)

type importOptions struct {
	output    string
	bcLen     uint32
	umiLen    uint32
	table     string
	headerRow bool
}

func newImportCmd(a *app) *cobra.Command {
	opts := importOptions{}
	cmd := &cobra.Command{
		Use:   "import <input>",
		Short: "Convert TSV, CSV, or Parquet rows to records",
		Long: `Import reads barcode, umi, and index columns from a table and writes
them as records. Barcode and UMI values may be integers or nucleotide
strings, so the output of view and export can be read back.

Parquet columns are found by name (barcode, umi, index, or barcode_seq and
umi_seq). Text tables use the view column order unless --header-row names
the columns.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), a, inputArg(args), opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", fileio.Stdio, "output path, s3:// URI, or - for stdout")
	f.Uint32Var(&opts.bcLen, "bc-len", 16, "barcode length in bases (1-32)")
	f.Uint32Var(&opts.umiLen, "umi-len", 12, "UMI length in bases (1-32)")
	f.StringVar(&opts.table, "table", "auto", "input table: auto, tsv, csv, parquet")
	f.BoolVar(&opts.headerRow, "header-row", false, "first text row names the columns")
	return cmd
}

// tableKind resolves "auto" from the input's extension, ignoring a trailing
// compression suffix.
func tableKind(input, table string) (string, error) {
	switch table {
	case "tsv", "csv", "parquet":
		return table, nil
	case "auto":
	default:
		return "", fmt.Errorf("unknown table %q (want auto, tsv, csv, parquet)", table)
	}

	name := strings.ToLower(path.Base(input))
	if compress.FormatFromPath(name) != compress.None {
		name = strings.TrimSuffix(name, path.Ext(name))
	}
	switch path.Ext(name) {
	case ".parquet", ".pq":
		return "parquet", nil
	case ".csv":
		return "csv", nil
	default:
		return "tsv", nil
	}
}

func runImport(ctx context.Context, a *app, input string, opts importOptions) error {
	ctx = logctx.WithStr(ctx, "input", input)
	log := logctx.FromContext(ctx)
	start := time.Now()

	h := format.NewHeader(opts.bcLen, opts.umiLen)
	if err := h.Validate(); err != nil {
		return err
	}
	kind, err := tableKind(input, opts.table)
	if err != nil {
		return err
	}

	rows, err := a.openTable(ctx, input, kind, opts.headerRow)
	if err != nil {
		return err
	}
	defer closeQuietly(ctx, rows, input)

	sink, err := a.opener.CreateSink(ctx, opts.output)
	if err != nil {
		return err
	}
	var n int64
	err = stream.WithWriter(ctx, sink, h, &stream.WriterOptions{BufferSize: a.opener.BufferSize}, func(w *stream.Writer) error {
		n, err = tabular.Copy(ctx, w, h, rows)
		return err
	})
	if err != nil {
		return fmt.Errorf("import %s: %w", input, err)
	}

	logging.PhaseComplete(log, "import", time.Since(start), n, "import complete")
	return nil
}

// tableSource closes a row reader together with what it reads from.
type tableSource struct {
	tabular.RowReader
	closers []func() error
}

func (t *tableSource) Close() error {
	err := t.RowReader.Close()
	for _, c := range t.closers {
		if cerr := c(); err == nil {
			err = cerr
		}
	}
	return err
}

func (a *app) openTable(ctx context.Context, input, kind string, headerRow bool) (*tableSource, error) {
	if kind == "parquet" {
		// Parquet needs random access, so remote and piped inputs are
		// materialized first.
		local, err := a.opener.Localize(ctx, input, a.tmpDir)
		if err != nil {
			return nil, err
		}
		f, err := os.Open(local.Path)
		if err != nil {
			local.Close()
			return nil, fmt.Errorf("open %s: %w", input, err)
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			local.Close()
			return nil, fmt.Errorf("stat %s: %w", input, err)
		}
		rr, err := tabular.NewParquetReader(f, info.Size())
		if err != nil {
			f.Close()
			local.Close()
			return nil, fmt.Errorf("read %s: %w", input, err)
		}
		return &tableSource{RowReader: rr, closers: []func() error{f.Close, local.Close}}, nil
	}

	src, err := a.opener.OpenSource(ctx, input)
	if err != nil {
		return nil, err
	}
	cfg := tabular.DelimitedConfig{Header: headerRow}
	if kind == "csv" {
		cfg.Comma = ','
	}
	rr, err := tabular.NewDelimitedReader(src, cfg)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("read %s: %w", input, err)
	}
	return &tableSource{RowReader: rr, closers: []func() error{src.Close}}, nil
}
