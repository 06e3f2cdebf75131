// Package tabular reads records from delimited text and Parquet tables,
// the inverse of the view and export commands.
package tabular

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/eunmann/ibu/pkg/format"
)

// ErrMissingColumn indicates a table without a required column.
var ErrMissingColumn = errors.New("missing column")

// ErrInvalidField indicates a value that is neither an integer nor a
// nucleotide sequence.
var ErrInvalidField = errors.New("invalid field")

// RowReader yields records from an external table.
type RowReader interface {
	// Next returns the next record, or io.EOF after the last one.
	Next() (format.Record, error)

	// Close releases resources associated with the reader.
	Close() error
}

// Columns maps record fields to 0-based column positions.
type Columns struct {
	Barcode int
	UMI     int
	Index   int
}

// DefaultColumns is the barcode, umi, index order printed by view.
var DefaultColumns = Columns{Barcode: 0, UMI: 1, Index: 2}

// detectColumns finds barcode/umi/index columns by name. Names ending in
// "_seq" count for their field when the plain name is absent.
func detectColumns(names []string) (Columns, error) {
	cols := Columns{Barcode: -1, UMI: -1, Index: -1}
	seq := Columns{Barcode: -1, UMI: -1, Index: -1}
	for i, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "barcode", "bc":
			cols.Barcode = i
		case "umi":
			cols.UMI = i
		case "index", "idx":
			cols.Index = i
		case "barcode_seq", "bc_seq":
			seq.Barcode = i
		case "umi_seq":
			seq.UMI = i
		}
	}
	if cols.Barcode < 0 {
		cols.Barcode = seq.Barcode
	}
	if cols.UMI < 0 {
		cols.UMI = seq.UMI
	}

	switch {
	case cols.Barcode < 0:
		return cols, fmt.Errorf("%w: barcode", ErrMissingColumn)
	case cols.UMI < 0:
		return cols, fmt.Errorf("%w: umi", ErrMissingColumn)
	case cols.Index < 0:
		return cols, fmt.Errorf("%w: index", ErrMissingColumn)
	}
	return cols, nil
}

func (c Columns) width() int {
	return max(c.Barcode, c.UMI, c.Index) + 1
}

// parseValue accepts a decimal integer, a 0x-prefixed hex integer, or an
// A/C/G/T sequence.
func parseValue(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidField)
	}
	if v, err := parseUint(s); err == nil {
		return v, nil
	}
	v, err := format.EncodeSequence(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidField, s)
	}
	return v, nil
}

func parseUint(s string) (uint64, error) {
	if rest, ok := strings.CutPrefix(s, "0x"); ok {
		return strconv.ParseUint(rest, 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}
