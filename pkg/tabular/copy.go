package tabular

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/eunmann/ibu/pkg/format"
	"github.com/eunmann/ibu/pkg/recordgen"
	"github.com/eunmann/ibu/pkg/stream"
)

const copyBatch = 4096

// Copy writes every record of r to w and returns the number written.
// Barcodes and UMIs wider than the header's lengths are rejected.
func Copy(ctx context.Context, w *stream.Writer, h format.Header, r RowReader) (int64, error) {
	bcMask := recordgen.Mask(h.BarcodeLen)
	umiMask := recordgen.Mask(h.UMILen)

	batch := make([]format.Record, 0, copyBatch)
	var total int64
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := w.WriteBatch(batch); err != nil {
			return fmt.Errorf("write records: %w", err)
		}
		total += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return total, err
		}
		if rec.Barcode&^bcMask != 0 {
			return total, fmt.Errorf("record %d: %w: barcode %#x exceeds %d bases", total+int64(len(batch)), ErrInvalidField, rec.Barcode, h.BarcodeLen)
		}
		if rec.UMI&^umiMask != 0 {
			return total, fmt.Errorf("record %d: %w: umi %#x exceeds %d bases", total+int64(len(batch)), ErrInvalidField, rec.UMI, h.UMILen)
		}

		batch = append(batch, rec)
		if len(batch) == copyBatch {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}
