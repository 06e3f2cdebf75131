package tabular

import (
	"errors"
	"fmt"
	"io"

	"github.com/eunmann/ibu/pkg/format"
	"github.com/parquet-go/parquet-go"
)

// parquetReader streams records from a Parquet file one row group at a time.
type parquetReader struct {
	cols Columns

	rowGroups []parquet.RowGroup
	rgIdx     int
	rows      parquet.Rows
	rowBuf    []parquet.Row
	bufIdx    int
	bufLen    int
	rowNum    int64
}

// NewParquetReader reads records from a Parquet file. Columns are located
// by name: barcode, umi and index, with barcode_seq and umi_seq accepted in
// place of the integer columns.
func NewParquetReader(r io.ReaderAt, size int64) (RowReader, error) {
	file, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	fields := file.Schema().Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name()
	}
	cols, err := detectColumns(names)
	if err != nil {
		return nil, err
	}

	return &parquetReader{
		cols:      cols,
		rowGroups: file.RowGroups(),
		rgIdx:     -1,
		rowBuf:    make([]parquet.Row, 1024),
	}, nil
}

func (p *parquetReader) Next() (format.Record, error) {
	for {
		if p.bufIdx < p.bufLen {
			row := p.rowBuf[p.bufIdx]
			p.bufIdx++
			p.rowNum++
			return p.convert(row)
		}

		if p.rows != nil {
			n, err := p.rows.ReadRows(p.rowBuf)
			if n > 0 {
				p.bufIdx = 0
				p.bufLen = n
				continue
			}
			if err != nil && !errors.Is(err, io.EOF) {
				return format.Record{}, fmt.Errorf("read parquet rows: %w", err)
			}
			p.rows.Close()
			p.rows = nil
		}

		p.rgIdx++
		if p.rgIdx >= len(p.rowGroups) {
			return format.Record{}, io.EOF
		}
		p.rows = p.rowGroups[p.rgIdx].Rows()
	}
}

func (p *parquetReader) convert(row parquet.Row) (format.Record, error) {
	var rec format.Record
	seen := 0
	for _, val := range row {
		if val.IsNull() {
			continue
		}
		var dst *uint64
		switch val.Column() {
		case p.cols.Barcode:
			dst = &rec.Barcode
		case p.cols.UMI:
			dst = &rec.UMI
		case p.cols.Index:
			dst = &rec.Index
		default:
			continue
		}

		v, err := valueOf(val)
		if err != nil {
			return format.Record{}, fmt.Errorf("row %d column %d: %w", p.rowNum, val.Column(), err)
		}
		*dst = v
		seen++
	}
	if seen < 3 {
		return format.Record{}, fmt.Errorf("row %d: %w: null value", p.rowNum, ErrInvalidField)
	}
	return rec, nil
}

func valueOf(val parquet.Value) (uint64, error) {
	switch val.Kind() {
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return parseValue(string(val.ByteArray()))
	case parquet.Int32, parquet.Int64:
		return val.Uint64(), nil
	default:
		return 0, fmt.Errorf("%w: unsupported kind %s", ErrInvalidField, val.Kind())
	}
}

func (p *parquetReader) Close() error {
	if p.rows != nil {
		err := p.rows.Close()
		p.rows = nil
		return err
	}
	return nil
}
