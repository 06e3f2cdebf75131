// Package export converts ibu record streams into columnar Parquet files.
package export

import (
	"errors"
	"fmt"
	"io"

	"github.com/eunmann/ibu/pkg/format"
	"github.com/eunmann/ibu/pkg/stream"
	"github.com/parquet-go/parquet-go"
)

// Row is the Parquet schema for a record.
type Row struct {
	Barcode uint64 `parquet:"barcode"`
	UMI     uint64 `parquet:"umi"`
	Index   uint64 `parquet:"index"`
}

// SeqRow adds nucleotide renderings of the barcode and UMI.
type SeqRow struct {
	Barcode    uint64 `parquet:"barcode"`
	UMI        uint64 `parquet:"umi"`
	Index      uint64 `parquet:"index"`
	BarcodeSeq string `parquet:"barcode_seq,dict"`
	UMISeq     string `parquet:"umi_seq"`
}

// Options configures an export.
type Options struct {
	// Sequences adds barcode_seq and umi_seq string columns decoded with
	// the header's lengths.
	Sequences bool

	// RowGroupSize caps rows per row group. Default: 1<<20.
	RowGroupSize int64

	// Codec is the column compression: "zstd" (default), "snappy",
	// "gzip", or "none".
	Codec string
}

// ErrUnknownCodec indicates an unsupported Parquet codec name.
var ErrUnknownCodec = errors.New("unknown parquet codec")

func (o *Options) writerOptions() ([]parquet.WriterOption, error) {
	rowGroup := int64(1 << 20)
	codec := "zstd"
	if o != nil {
		if o.RowGroupSize > 0 {
			rowGroup = o.RowGroupSize
		}
		if o.Codec != "" {
			codec = o.Codec
		}
	}

	opts := []parquet.WriterOption{parquet.MaxRowsPerRowGroup(rowGroup)}
	switch codec {
	case "zstd":
		opts = append(opts, parquet.Compression(&parquet.Zstd))
	case "snappy":
		opts = append(opts, parquet.Compression(&parquet.Snappy))
	case "gzip":
		opts = append(opts, parquet.Compression(&parquet.Gzip))
	case "none":
		opts = append(opts, parquet.Compression(&parquet.Uncompressed))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, codec)
	}
	return opts, nil
}

// Parquet writes every remaining record of r to w and returns the number
// of rows written.
func Parquet(r *stream.Reader, w io.Writer, opts *Options) (int64, error) {
	wopts, err := opts.writerOptions()
	if err != nil {
		return 0, err
	}

	if opts != nil && opts.Sequences {
		h := r.Header()
		return writeRows(r, parquet.NewGenericWriter[SeqRow](w, wopts...), func(rec format.Record) SeqRow {
			return SeqRow{
				Barcode:    rec.Barcode,
				UMI:        rec.UMI,
				Index:      rec.Index,
				BarcodeSeq: format.DecodeSequence(rec.Barcode, h.BarcodeLen),
				UMISeq:     format.DecodeSequence(rec.UMI, h.UMILen),
			}
		})
	}
	return writeRows(r, parquet.NewGenericWriter[Row](w, wopts...), func(rec format.Record) Row {
		return Row{Barcode: rec.Barcode, UMI: rec.UMI, Index: rec.Index}
	})
}

func writeRows[T any](r *stream.Reader, pw *parquet.GenericWriter[T], convert func(format.Record) T) (int64, error) {
	var total int64
	var rows []T
	for {
		batch, err := r.NextBatch()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			pw.Close()
			return total, fmt.Errorf("read records: %w", err)
		}

		rows = rows[:0]
		for _, rec := range batch {
			rows = append(rows, convert(rec))
		}
		n, err := pw.Write(rows)
		total += int64(n)
		if err != nil {
			pw.Close()
			return total, fmt.Errorf("write parquet rows: %w", err)
		}
	}

	if err := pw.Close(); err != nil {
		return total, fmt.Errorf("close parquet writer: %w", err)
	}
	return total, nil
}
