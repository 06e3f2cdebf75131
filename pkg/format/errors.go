package format

import (
	"errors"
	"fmt"
)

var (
	// ErrShortHeader indicates fewer than HeaderSize bytes were available.
	ErrShortHeader = errors.New("short header")
	// ErrInvalidMagic indicates the magic number doesn't match.
	ErrInvalidMagic = errors.New("invalid magic number")
	// ErrInvalidVersion indicates an unsupported format version.
	ErrInvalidVersion = errors.New("invalid format version")
	// ErrInvalidBarcodeLength indicates a barcode length outside 1-32.
	ErrInvalidBarcodeLength = errors.New("invalid barcode length")
	// ErrInvalidUMILength indicates a UMI length outside 1-32.
	ErrInvalidUMILength = errors.New("invalid umi length")

	// ErrTruncatedRecord indicates a stream ended inside a record.
	ErrTruncatedRecord = errors.New("truncated record")
	// ErrInvalidMapSize indicates a file whose record region is not a
	// multiple of RecordSize.
	ErrInvalidMapSize = errors.New("invalid map size")
	// ErrInvalidIndex indicates an out-of-range or inverted slice request.
	ErrInvalidIndex = errors.New("invalid index")

	// ErrProcess marks errors raised by caller-supplied processing logic.
	ErrProcess = errors.New("processing error")
)

// TruncatedRecordError reports the byte offset at which an incomplete
// record begins.
type TruncatedRecordError struct {
	Offset int64
}

func (e *TruncatedRecordError) Error() string {
	return fmt.Sprintf("truncated record at offset %d", e.Offset)
}

// Is matches ErrTruncatedRecord.
func (e *TruncatedRecordError) Is(target error) bool {
	return target == ErrTruncatedRecord
}

// MapSizeError reports a file size inconsistent with the record width.
type MapSizeError struct {
	Size      int64
	Remainder int64
}

func (e *MapSizeError) Error() string {
	return fmt.Sprintf("invalid map size: %d bytes leaves %d trailing bytes, not a multiple of record size %d",
		e.Size, e.Remainder, RecordSize)
}

// Is matches ErrInvalidMapSize.
func (e *MapSizeError) Is(target error) bool {
	return target == ErrInvalidMapSize
}

// IndexError reports an out-of-range bound together with the current length.
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("invalid index %d: must be less than %d", e.Index, e.Len)
}

// Is matches ErrInvalidIndex.
func (e *IndexError) Is(target error) bool {
	return target == ErrInvalidIndex
}

// ProcessError wraps an arbitrary error as a processing failure.
func ProcessError(err error) error {
	if err == nil || errors.Is(err, ErrProcess) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrProcess, err)
}
