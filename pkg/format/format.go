// Package format defines the ibu on-disk layout: a 32-byte header followed by
// densely packed 24-byte records, little-endian throughout.
//
// Layout:
//
//	offset 0  : magic        u32   0x21554249 ("IBU!")
//	offset 4  : version      u32   2
//	offset 8  : bc_len       u32   1..=32
//	offset 12 : umi_len      u32   1..=32
//	offset 16 : flags        u64   bit0 = sorted
//	offset 24 : reserved     [8]byte
//	offset 32 : record[0]    24 bytes (barcode:u64, umi:u64, index:u64)
//	offset 32+24*i : record[i]
//
// Everything in this package is pure: no I/O and no allocation beyond the
// fixed-size arrays returned by the encoders.
package format

import (
	"encoding/binary"
	"fmt"
)

const (
	// MagicNumber identifies ibu files ("IBU!" read as a little-endian u32).
	MagicNumber uint32 = 0x21554249
	// Version is the only supported format version.
	Version uint32 = 2

	// MaxBarcodeLen is the largest barcode length, in encoded bases.
	MaxBarcodeLen uint32 = 32
	// MaxUMILen is the largest UMI length, in encoded bases.
	MaxUMILen uint32 = 32
)

// HeaderSize is the size of the header in bytes.
const HeaderSize = 4 + 4 + 4 + 4 + 8 + 8 // 32 bytes

// FlagSorted marks a file whose records are in ascending Compare order.
// The codec carries the flag; it never verifies it.
const FlagSorted uint64 = 1 << 0

// Header is the file-level metadata block.
type Header struct {
	Magic      uint32
	Version    uint32
	BarcodeLen uint32
	UMILen     uint32
	Flags      uint64
	Reserved   [8]byte
}

// NewHeader returns a header for the current format version with the given
// barcode and UMI lengths. The result is not validated.
func NewHeader(bcLen, umiLen uint32) Header {
	return Header{
		Magic:      MagicNumber,
		Version:    Version,
		BarcodeLen: bcLen,
		UMILen:     umiLen,
	}
}

// Sorted reports whether the sorted flag is set.
func (h Header) Sorted() bool {
	return h.Flags&FlagSorted != 0
}

// SetSorted sets or clears the sorted flag. Reserved flag bits are untouched.
func (h *Header) SetSorted(sorted bool) {
	if sorted {
		h.Flags |= FlagSorted
	} else {
		h.Flags &^= FlagSorted
	}
}

// Validate checks magic, version and the barcode/UMI length ranges, in that
// order, and returns the first violation.
func (h Header) Validate() error {
	if h.Magic != MagicNumber {
		return fmt.Errorf("%w: got %#x, want %#x", ErrInvalidMagic, h.Magic, MagicNumber)
	}
	if h.Version != Version {
		return fmt.Errorf("%w: got %d, want %d", ErrInvalidVersion, h.Version, Version)
	}
	if h.BarcodeLen == 0 || h.BarcodeLen > MaxBarcodeLen {
		return fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidBarcodeLength, h.BarcodeLen, MaxBarcodeLen)
	}
	if h.UMILen == 0 || h.UMILen > MaxUMILen {
		return fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidUMILength, h.UMILen, MaxUMILen)
	}
	return nil
}

// EncodeHeader returns the 32-byte wire form of h.
func EncodeHeader(h Header) [HeaderSize]byte {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.BarcodeLen)
	binary.LittleEndian.PutUint32(buf[12:16], h.UMILen)
	binary.LittleEndian.PutUint64(buf[16:24], h.Flags)
	copy(buf[24:32], h.Reserved[:])
	return buf
}

// DecodeHeader decodes a header from its wire form. It succeeds for every bit
// pattern; call Validate to check the result.
func DecodeHeader(buf [HeaderSize]byte) Header {
	h := Header{
		Magic:      binary.LittleEndian.Uint32(buf[0:4]),
		Version:    binary.LittleEndian.Uint32(buf[4:8]),
		BarcodeLen: binary.LittleEndian.Uint32(buf[8:12]),
		UMILen:     binary.LittleEndian.Uint32(buf[12:16]),
		Flags:      binary.LittleEndian.Uint64(buf[16:24]),
	}
	copy(h.Reserved[:], buf[24:32])
	return h
}

// ParseHeader decodes and validates the header at the start of buf.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: have %d bytes, need %d", ErrShortHeader, len(buf), HeaderSize)
	}
	h := DecodeHeader([HeaderSize]byte(buf[:HeaderSize]))
	if err := h.Validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}

// DataSize returns the number of record bytes in a file of the given total
// size, or a MapSizeError if the size is not header + k*RecordSize.
func DataSize(fileSize int64) (int64, error) {
	if fileSize < HeaderSize {
		return 0, fmt.Errorf("%w: file is %d bytes, need %d", ErrShortHeader, fileSize, HeaderSize)
	}
	data := fileSize - HeaderSize
	if rem := data % RecordSize; rem != 0 {
		return 0, &MapSizeError{Size: fileSize, Remainder: rem}
	}
	return data, nil
}
