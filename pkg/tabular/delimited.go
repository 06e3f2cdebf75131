package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/eunmann/ibu/pkg/format"
)

// DelimitedConfig configures a delimited text reader.
type DelimitedConfig struct {
	// Comma is the field delimiter. Default: '\t'.
	Comma rune

	// Header makes the first row a header naming the columns. Otherwise
	// Columns is used.
	Header bool

	// Columns locates the fields when Header is false. Default: DefaultColumns.
	Columns *Columns
}

type delimitedReader struct {
	r    *csv.Reader
	cols Columns
	line int
}

// NewDelimitedReader reads records from TSV or CSV text. Lines starting with
// '#' are skipped.
func NewDelimitedReader(r io.Reader, cfg DelimitedConfig) (RowReader, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	if cfg.Comma != 0 {
		cr.Comma = cfg.Comma
	}
	cr.Comment = '#'
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	d := &delimitedReader{r: cr, cols: DefaultColumns}
	if cfg.Columns != nil {
		d.cols = *cfg.Columns
	}
	if cfg.Header {
		names, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: empty input has no header row", ErrMissingColumn)
			}
			return nil, fmt.Errorf("read header row: %w", err)
		}
		if d.cols, err = detectColumns(names); err != nil {
			return nil, err
		}
		d.line = 1
	}
	return d, nil
}

func (d *delimitedReader) Next() (format.Record, error) {
	fields, err := d.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return format.Record{}, io.EOF
		}
		return format.Record{}, fmt.Errorf("read row: %w", err)
	}
	d.line++
	if len(fields) < d.cols.width() {
		return format.Record{}, fmt.Errorf("row %d: %w: %d fields, need %d", d.line, ErrInvalidField, len(fields), d.cols.width())
	}

	var rec format.Record
	if rec.Barcode, err = parseValue(fields[d.cols.Barcode]); err != nil {
		return format.Record{}, fmt.Errorf("row %d barcode: %w", d.line, err)
	}
	if rec.UMI, err = parseValue(fields[d.cols.UMI]); err != nil {
		return format.Record{}, fmt.Errorf("row %d umi: %w", d.line, err)
	}
	if rec.Index, err = parseUint(strings.TrimSpace(fields[d.cols.Index])); err != nil {
		return format.Record{}, fmt.Errorf("row %d index: %w: %q", d.line, ErrInvalidField, fields[d.cols.Index])
	}
	return rec, nil
}

func (d *delimitedReader) Close() error {
	return nil
}
