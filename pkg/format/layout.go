package format

import (
	"unsafe"

	"golang.org/x/sys/cpu"
)

// Record must have exactly the wire size with no padding for the casts below.
var _ [RecordSize]byte = [unsafe.Sizeof(Record{})]byte{}

// NativeLayout reports whether the in-memory Record layout matches the wire
// layout on this host, which is the case on every little-endian platform.
func NativeLayout() bool {
	return !cpu.IsBigEndian
}

// RecordsAsBytes returns the wire bytes of recs without copying. It returns
// nil on hosts without a native layout; callers must then encode explicitly.
func RecordsAsBytes(recs []Record) []byte {
	if len(recs) == 0 || !NativeLayout() {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&recs[0])), len(recs)*RecordSize)
}

// BytesAsRecords views buf as records without copying. buf must hold a whole
// number of records and be 8-byte aligned. It returns nil when either
// condition fails or the host has no native layout.
func BytesAsRecords(buf []byte) []Record {
	if len(buf) == 0 || len(buf)%RecordSize != 0 || !NativeLayout() {
		return nil
	}
	p := unsafe.Pointer(&buf[0])
	if uintptr(p)%unsafe.Alignof(uint64(0)) != 0 {
		return nil
	}
	return unsafe.Slice((*Record)(p), len(buf)/RecordSize)
}
