// Package bcindex maps the distinct barcodes of an ibu file onto dense
// positions 0..n-1 with a minimal perfect hash, and aggregates per-barcode
// record counts in parallel against that mapping.
package bcindex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/eunmann/ibu/pkg/fileutil"
	"github.com/relab/bbhash"
)

// File layout for a saved index:
//
//	magic u32 | version u32 | count u64 | barcodes [count]u64 | bbhash blob
const (
	indexMagic   uint32 = 0x58554249 // "IBUX"
	indexVersion uint32 = 1
	indexHeader         = 16
)

var (
	// ErrCorruptIndex indicates a saved index that cannot be decoded.
	ErrCorruptIndex = errors.New("corrupt barcode index")
	// ErrUnknownBarcode indicates a barcode absent from the index.
	ErrUnknownBarcode = errors.New("barcode not in index")
)

// Index is a read-only barcode to position map. It is safe for concurrent
// lookups.
type Index struct {
	mph      *bbhash.BBHash2
	barcodes []uint64 // barcodes[pos] is the barcode stored at pos
}

// mix spreads barcode bits before hashing; sequential barcodes would
// otherwise share most of their key bits. It is a bijection, so distinct
// barcodes stay distinct.
func mix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// Build creates an index over the distinct values in barcodes. The input is
// not modified.
func Build(barcodes []uint64) (*Index, error) {
	distinct := slices.Clone(barcodes)
	slices.Sort(distinct)
	distinct = slices.Compact(distinct)
	if len(distinct) == 0 {
		return &Index{}, nil
	}

	keys := make([]uint64, len(distinct))
	for i, bc := range distinct {
		keys[i] = mix(bc)
	}

	// gamma=2.0 trades a little space for faster construction
	mph, err := bbhash.New(keys, bbhash.Gamma(2.0))
	if err != nil {
		return nil, fmt.Errorf("build MPHF: %w", err)
	}

	// bbhash positions are 1-indexed
	ordered := make([]uint64, len(distinct))
	for i, bc := range distinct {
		h := mph.Find(keys[i])
		if h == 0 || h > uint64(len(ordered)) {
			return nil, fmt.Errorf("MPHF lookup failed for barcode %#x", bc)
		}
		ordered[h-1] = bc
	}

	return &Index{mph: mph, barcodes: ordered}, nil
}

// Len returns the number of distinct barcodes.
func (x *Index) Len() int {
	return len(x.barcodes)
}

// Lookup returns the position of bc, or ok=false if bc is not indexed.
func (x *Index) Lookup(bc uint64) (pos int, ok bool) {
	if x.mph == nil {
		return 0, false
	}
	h := x.mph.Find(mix(bc))
	if h == 0 || h > uint64(len(x.barcodes)) {
		return 0, false
	}
	pos = int(h - 1)
	// The MPHF maps foreign keys to arbitrary slots; verify.
	if x.barcodes[pos] != bc {
		return 0, false
	}
	return pos, true
}

// Barcode returns the barcode stored at pos.
func (x *Index) Barcode(pos int) uint64 {
	return x.barcodes[pos]
}

// Barcodes returns the barcodes in position order. The slice is shared.
func (x *Index) Barcodes() []uint64 {
	return x.barcodes
}

// MarshalBinary encodes the index in its file layout.
func (x *Index) MarshalBinary() ([]byte, error) {
	var blob []byte
	if x.mph != nil {
		var err error
		if blob, err = x.mph.MarshalBinary(); err != nil {
			return nil, fmt.Errorf("marshal MPHF: %w", err)
		}
	}

	buf := make([]byte, indexHeader+8*len(x.barcodes), indexHeader+8*len(x.barcodes)+len(blob))
	binary.LittleEndian.PutUint32(buf[0:4], indexMagic)
	binary.LittleEndian.PutUint32(buf[4:8], indexVersion)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(len(x.barcodes)))
	for i, bc := range x.barcodes {
		binary.LittleEndian.PutUint64(buf[indexHeader+8*i:], bc)
	}
	return append(buf, blob...), nil
}

// UnmarshalBinary decodes an index produced by MarshalBinary.
func (x *Index) UnmarshalBinary(data []byte) error {
	if len(data) < indexHeader {
		return fmt.Errorf("%w: %d bytes", ErrCorruptIndex, len(data))
	}
	if m := binary.LittleEndian.Uint32(data[0:4]); m != indexMagic {
		return fmt.Errorf("%w: magic %#x", ErrCorruptIndex, m)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != indexVersion {
		return fmt.Errorf("%w: version %d", ErrCorruptIndex, v)
	}
	count := binary.LittleEndian.Uint64(data[8:16])
	if count > uint64(len(data)-indexHeader)/8 {
		return fmt.Errorf("%w: count %d exceeds data", ErrCorruptIndex, count)
	}

	barcodes := make([]uint64, count)
	for i := range barcodes {
		barcodes[i] = binary.LittleEndian.Uint64(data[indexHeader+8*i:])
	}
	if count == 0 {
		*x = Index{}
		return nil
	}

	mph := &bbhash.BBHash2{}
	if err := mph.UnmarshalBinary(data[indexHeader+8*int(count):]); err != nil {
		return fmt.Errorf("%w: unmarshal MPHF: %w", ErrCorruptIndex, err)
	}
	*x = Index{mph: mph, barcodes: barcodes}
	return nil
}

// Save atomically writes the index to path.
func (x *Index) Save(path string) error {
	data, err := x.MarshalBinary()
	if err != nil {
		return err
	}
	err = fileutil.WriteAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

// Load reads an index written by Save.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	x := &Index{}
	if err := x.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return x, nil
}
