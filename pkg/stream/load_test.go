package stream

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/eunmann/ibu/pkg/format"
	"github.com/eunmann/ibu/pkg/recordgen"
)

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.ibu")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAll(t *testing.T) {
	h := testHeader
	h.SetSorted(true)
	recs := recordgen.Sequential(5000)
	path := writeTemp(t, encode(t, h, recs))

	gotH, got, err := LoadAll(path)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if gotH != h {
		t.Errorf("header = %+v, want %+v", gotH, h)
	}
	if !slices.Equal(got, recs) {
		t.Error("loaded records differ")
	}
}

func TestLoadAll_Empty(t *testing.T) {
	path := writeTemp(t, encode(t, testHeader, nil))
	_, got, err := LoadAll(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("loaded %d records from an empty body", len(got))
	}
}

func TestLoadAll_BadSize(t *testing.T) {
	data := encode(t, testHeader, recordgen.Sequential(3))
	path := writeTemp(t, data[:len(data)-10])

	_, _, err := LoadAll(path)
	var mse *format.MapSizeError
	if !errors.As(err, &mse) {
		t.Fatalf("err = %v, want MapSizeError", err)
	}
	if mse.Remainder != format.RecordSize-10 {
		t.Errorf("remainder = %d, want %d", mse.Remainder, format.RecordSize-10)
	}
}

func TestLoadAll_Errors(t *testing.T) {
	bad := encode(t, testHeader, nil)
	bad[0] = 0

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short", []byte{1, 2, 3}, format.ErrShortHeader},
		{"magic", bad, format.ErrInvalidMagic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := LoadAll(writeTemp(t, tt.data))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if _, _, err := LoadAll(filepath.Join(t.TempDir(), "missing.ibu")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: err = %v, want os.ErrNotExist", err)
	}
}
