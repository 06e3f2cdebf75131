package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/eunmann/ibu/pkg/format"
	"github.com/spf13/cobra"
)

type viewOptions struct {
	limit     int
	sequences bool
	header    bool
}

func newViewCmd(a *app) *cobra.Command {
	opts := viewOptions{}
	cmd := &cobra.Command{
		Use:   "view [input]",
		Short: "Print records as tab-separated text",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runView(cmd.Context(), a, inputArg(args), cmd.OutOrStdout(), opts)
		},
	}
	f := cmd.Flags()
	f.IntVarP(&opts.limit, "limit", "n", 0, "print at most n records (0 = all)")
	f.BoolVarP(&opts.sequences, "seq", "s", false, "decode barcode and UMI as nucleotides")
	f.BoolVarP(&opts.header, "header", "H", false, "print the file header first")
	return cmd
}

func runView(ctx context.Context, a *app, input string, out io.Writer, opts viewOptions) error {
	src, err := a.opener.OpenReader(ctx, input)
	if err != nil {
		return err
	}
	defer closeQuietly(ctx, src, input)

	h := src.Header()
	bw := bufio.NewWriter(out)
	if opts.header {
		fmt.Fprintf(bw, "# version=%d bc_len=%d umi_len=%d sorted=%t\n",
			h.Version, h.BarcodeLen, h.UMILen, h.Sorted())
	}

	printed := 0
	for rec, err := range src.All() {
		if err != nil {
			bw.Flush()
			return err
		}
		if opts.limit > 0 && printed == opts.limit {
			break
		}
		if opts.sequences {
			fmt.Fprintf(bw, "%s\t%s\t%d\n",
				format.DecodeSequence(rec.Barcode, h.BarcodeLen),
				format.DecodeSequence(rec.UMI, h.UMILen),
				rec.Index)
		} else {
			fmt.Fprintf(bw, "%d\t%d\t%d\n", rec.Barcode, rec.UMI, rec.Index)
		}
		printed++
	}
	return bw.Flush()
}
