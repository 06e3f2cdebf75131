package compress

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/eunmann/ibu/pkg/format"
)

func payload() []byte {
	h := format.EncodeHeader(format.NewHeader(16, 12))
	data := append([]byte(nil), h[:]...)
	for i := range 5000 {
		u := uint64(i)
		rec := format.EncodeRecord(format.Record{Barcode: u / 7, UMI: u, Index: u % 3})
		data = append(data, rec[:]...)
	}
	return data
}

func TestRoundTrip(t *testing.T) {
	data := payload()

	for _, f := range []Format{None, Gzip, Zstd, Snappy, LZ4} {
		for _, level := range []Level{0, LevelFastest, LevelBetter} {
			var buf bytes.Buffer
			w, err := NewWriter(&buf, f, level)
			if err != nil {
				t.Fatalf("%v/%d: NewWriter: %v", f, level, err)
			}
			if _, err := w.Write(data); err != nil {
				t.Fatalf("%v/%d: Write: %v", f, level, err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("%v/%d: Close: %v", f, level, err)
			}

			r, got, err := NewReader(&buf)
			if err != nil {
				t.Fatalf("%v/%d: NewReader: %v", f, level, err)
			}
			if got != f {
				t.Errorf("%v/%d: detected %v", f, level, got)
			}
			out, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("%v/%d: ReadAll: %v", f, level, err)
			}
			_ = r.Close()
			if !bytes.Equal(out, data) {
				t.Errorf("%v/%d: round trip mismatch (%d vs %d bytes)", f, level, len(out), len(data))
			}
		}
	}
}

func TestNewReader_ShortAndEmptyInput(t *testing.T) {
	for _, in := range [][]byte{nil, {0x1f}, []byte("IBU")} {
		r, f, err := NewReader(bytes.NewReader(in))
		if err != nil {
			t.Fatalf("input %x: %v", in, err)
		}
		if f != None {
			t.Errorf("input %x: detected %v, want none", in, f)
		}
		out, _ := io.ReadAll(r)
		if !bytes.Equal(out, in) {
			t.Errorf("input %x: passthrough returned %x", in, out)
		}
	}
}

func TestNewReader_CorruptGzip(t *testing.T) {
	_, _, err := NewReader(bytes.NewReader([]byte{0x1f, 0x8b, 0, 0, 0}))
	if err == nil {
		t.Error("expected error for a corrupt gzip header")
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		head []byte
		want Format
	}{
		{[]byte{0x1f, 0x8b, 0x08}, Gzip},
		{[]byte{0x28, 0xb5, 0x2f, 0xfd, 0x00}, Zstd},
		{[]byte("\xff\x06\x00\x00sNaPpY"), Snappy},
		{[]byte{0x04, 0x22, 0x4d, 0x18}, LZ4},
		{[]byte{0x49, 0x42, 0x55, 0x21}, None},
		{nil, None},
	}
	for _, tt := range tests {
		if got := Detect(tt.head); got != tt.want {
			t.Errorf("Detect(%x) = %v, want %v", tt.head, got, tt.want)
		}
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"reads.ibu", None},
		{"reads.ibu.gz", Gzip},
		{"reads.ibu.ZST", Zstd},
		{"s3://bucket/reads.ibu.sz", Snappy},
		{"/tmp/reads.ibu.lz4", LZ4},
		{"-", None},
	}
	for _, tt := range tests {
		if got := FormatFromPath(tt.path); got != tt.want {
			t.Errorf("FormatFromPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	for name, want := range map[string]Format{"": None, "none": None, "GZIP": Gzip, "zstd": Zstd, "snappy": Snappy, "lz4": LZ4} {
		got, err := ParseFormat(name)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %v, %v; want %v", name, got, err, want)
		}
	}
	if _, err := ParseFormat("brotli"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("ParseFormat(brotli) err = %v, want ErrUnknownFormat", err)
	}
}

func TestPassthroughDoesNotClose(t *testing.T) {
	var buf bytes.Buffer
	w, _ := NewWriter(&buf, None, 0)
	_, _ = w.Write([]byte("abc"))
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "abc" {
		t.Errorf("passthrough wrote %q", buf.String())
	}
}
