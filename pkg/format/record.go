package format

import (
	"cmp"
	"encoding/binary"
)

// RecordSize is the size of one encoded record in bytes.
const RecordSize = 8 + 8 + 8 // 24 bytes

// Record is one barcode/UMI/index triple. The field order matches the wire
// order, which lets little-endian hosts view encoded bytes as []Record.
type Record struct {
	Barcode uint64
	UMI     uint64
	Index   uint64
}

// EncodeRecord returns the 24-byte wire form of r.
func EncodeRecord(r Record) [RecordSize]byte {
	var buf [RecordSize]byte
	PutRecord(buf[:], r)
	return buf
}

// DecodeRecord decodes a record from its wire form.
func DecodeRecord(buf [RecordSize]byte) Record {
	return ReadRecord(buf[:])
}

// PutRecord encodes r into the first RecordSize bytes of dst.
// It panics if dst is shorter than RecordSize.
func PutRecord(dst []byte, r Record) {
	_ = dst[RecordSize-1]
	binary.LittleEndian.PutUint64(dst[0:8], r.Barcode)
	binary.LittleEndian.PutUint64(dst[8:16], r.UMI)
	binary.LittleEndian.PutUint64(dst[16:24], r.Index)
}

// ReadRecord decodes the record in the first RecordSize bytes of src.
// It panics if src is shorter than RecordSize.
func ReadRecord(src []byte) Record {
	_ = src[RecordSize-1]
	return Record{
		Barcode: binary.LittleEndian.Uint64(src[0:8]),
		UMI:     binary.LittleEndian.Uint64(src[8:16]),
		Index:   binary.LittleEndian.Uint64(src[16:24]),
	}
}

// Compare orders records by barcode, then UMI, then index. It returns -1, 0
// or +1 and is usable with slices.SortFunc.
func Compare(a, b Record) int {
	if c := cmp.Compare(a.Barcode, b.Barcode); c != 0 {
		return c
	}
	if c := cmp.Compare(a.UMI, b.UMI); c != 0 {
		return c
	}
	return cmp.Compare(a.Index, b.Index)
}

// Less reports whether r sorts before other.
func (r Record) Less(other Record) bool {
	return Compare(r, other) < 0
}

// IsSorted reports whether recs is in ascending Compare order.
func IsSorted(recs []Record) bool {
	for i := 1; i < len(recs); i++ {
		if Compare(recs[i-1], recs[i]) > 0 {
			return false
		}
	}
	return true
}
