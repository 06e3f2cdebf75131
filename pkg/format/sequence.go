package format

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSequence indicates a nucleotide string that cannot be packed.
var ErrInvalidSequence = errors.New("invalid nucleotide sequence")

const bases = "ACGT"

// DecodeSequence renders the low 2*n bits of v as nucleotides, two bits per
// base, first base in the most significant position.
func DecodeSequence(v uint64, n uint32) string {
	n = min(n, 32)
	var sb strings.Builder
	sb.Grow(int(n))
	for i := int(n) - 1; i >= 0; i-- {
		sb.WriteByte(bases[(v>>(2*uint(i)))&3])
	}
	return sb.String()
}

// EncodeSequence packs an A/C/G/T string of at most 32 bases.
func EncodeSequence(s string) (uint64, error) {
	if len(s) == 0 || len(s) > 32 {
		return 0, fmt.Errorf("%w: length %d (must be 1-32)", ErrInvalidSequence, len(s))
	}
	var v uint64
	for i := range len(s) {
		b := strings.IndexByte(bases, s[i]&^0x20)
		if b < 0 {
			return 0, fmt.Errorf("%w: %q at position %d", ErrInvalidSequence, s[i], i)
		}
		v = v<<2 | uint64(b)
	}
	return v, nil
}
