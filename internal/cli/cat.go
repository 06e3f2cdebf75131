package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/eunmann/ibu/internal/logctx"
	"github.com/eunmann/ibu/pkg/fileio"
	"github.com/eunmann/ibu/pkg/format"
	"github.com/eunmann/ibu/pkg/logging"
	"github.com/eunmann/ibu/pkg/stream"
	"github.com/spf13/cobra"
)

// ErrHeaderMismatch indicates inputs whose sequence lengths differ.
var ErrHeaderMismatch = errors.New("input headers disagree")

func newCatCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "cat <input>...",
		Short: "Concatenate files with matching sequence lengths",
		Long: `Cat streams every input into one output in argument order. All inputs
must share the barcode and UMI lengths of the first. The output keeps the
sorted flag only when there is a single sorted input.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCat(cmd.Context(), a, args, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", fileio.Stdio, "output path, s3:// URI, or - for stdout")
	return cmd
}

func runCat(ctx context.Context, a *app, inputs []string, output string) error {
	log := logctx.FromContext(ctx)
	start := time.Now()

	// The first input fixes the output header.
	first, err := a.opener.OpenReader(ctx, inputs[0])
	if err != nil {
		return err
	}
	h := first.Header()
	h.SetSorted(len(inputs) == 1 && h.Sorted())

	sink, err := a.opener.CreateSink(ctx, output)
	if err != nil {
		first.Close()
		return err
	}
	var total uint64
	err = stream.WithWriter(ctx, sink, h, &stream.WriterOptions{BufferSize: a.opener.BufferSize}, func(w *stream.Writer) error {
		defer func() { total = w.Records() }()
		if err := copyRecords(ctx, w, first, inputs[0]); err != nil {
			return err
		}
		for _, input := range inputs[1:] {
			src, err := a.opener.OpenReader(ctx, input)
			if err != nil {
				return err
			}
			if got := src.Header(); !sameLengths(got, h) {
				src.Close()
				return fmt.Errorf("%w: %s has bc_len=%d umi_len=%d, want bc_len=%d umi_len=%d",
					ErrHeaderMismatch, input, got.BarcodeLen, got.UMILen, h.BarcodeLen, h.UMILen)
			}
			if err := copyRecords(ctx, w, src, input); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cat: %w", err)
	}

	logging.PhaseComplete(log, "cat", time.Since(start), int64(total), "cat complete")
	return nil
}

// copyRecords drains src into w and closes src.
func copyRecords(ctx context.Context, w *stream.Writer, src *fileio.Source, name string) error {
	defer closeQuietly(ctx, src, name)
	for {
		batch, err := src.NextBatch()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := w.WriteBatch(batch); err != nil {
			return err
		}
	}
}

// sameLengths reports whether a and b describe the same record layout.
func sameLengths(a, b format.Header) bool {
	return a.BarcodeLen == b.BarcodeLen && a.UMILen == b.UMILen
}
