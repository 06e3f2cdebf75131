package stream

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/eunmann/ibu/pkg/format"
	"github.com/eunmann/ibu/pkg/humanfmt"
	"github.com/eunmann/ibu/pkg/sysmem"
)

// ErrTooLarge indicates a file whose records would not fit in system memory.
var ErrTooLarge = errors.New("file too large to load into memory")

// LoadAll reads an uncompressed ibu file into memory in one pass. Unlike
// Reader it sizes the result from the file length up front, so a size that
// is not header + k*RecordSize is reported as a MapSizeError.
func LoadAll(path string) (format.Header, []format.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return format.Header{}, nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return format.Header{}, nil, fmt.Errorf("stat file: %w", err)
	}

	var hbuf [format.HeaderSize]byte
	if _, err := io.ReadFull(f, hbuf[:]); err != nil {
		return format.Header{}, nil, fmt.Errorf("%w: %w", format.ErrShortHeader, err)
	}
	h := format.DecodeHeader(hbuf)
	if err := h.Validate(); err != nil {
		return format.Header{}, nil, err
	}

	dataSize, err := format.DataSize(info.Size())
	if err != nil {
		return format.Header{}, nil, err
	}
	if mem := sysmem.Total(); mem.Reliable && uint64(dataSize) > mem.TotalBytes {
		return format.Header{}, nil, fmt.Errorf("%w: %s of records, %s of memory",
			ErrTooLarge, humanfmt.Bytes(dataSize), humanfmt.BytesUint64(mem.TotalBytes))
	}

	n := int(dataSize / format.RecordSize)
	recs := make([]format.Record, n)
	if n == 0 {
		return h, recs, nil
	}

	if b := format.RecordsAsBytes(recs); b != nil {
		if _, err := io.ReadFull(f, b); err != nil {
			return format.Header{}, nil, fmt.Errorf("read records: %w", err)
		}
		return h, recs, nil
	}

	r := &Reader{r: f, header: h, buf: make([]byte, DefaultBufferSize), offset: format.HeaderSize}
	for i := range recs {
		if recs[i], err = r.Next(); err != nil {
			return format.Header{}, nil, fmt.Errorf("read records: %w", err)
		}
	}
	return h, recs, nil
}
