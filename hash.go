package theta

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
	"github.com/twmb/murmur3"
)

// canonicalNaN is the bit pattern every NaN is folded onto before hashing so
// that all NaNs count as the same item.
const canonicalNaN = 0x7ff8000000000000

// hashBytes returns the 63 bit hash of data.  It matches the hash every other
// DataSketches implementation computes: the first half of murmur3 x64_128
// seeded with seed in both lanes, shifted right so it is never negative when
// read back as a signed long.
func hashBytes(data []byte, seed uint64) uint64 {
	h1, _ := murmur3.SeedSum128(seed, seed, data)
	return h1 >> 1
}

// computeSeedHash derives the 16 bit fingerprint of seed that is stored in
// every serialized sketch.  A zero fingerprint is reserved and rejected.
func computeSeedHash(seed uint64) (uint16, error) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], seed)
	h1, _ := murmur3.SeedSum128(0, 0, buf[:])
	seedHash := uint16(h1 & 0xffff)
	if seedHash == 0 {
		return 0, errors.Errorf("seed %d produces a seed hash of zero, use a different seed", seed)
	}
	return seedHash, nil
}

func checkSeedHashes(expected, actual uint16) error {
	if expected != actual {
		return errors.Wrapf(ErrSeedMismatch, "expected %#04x but got %#04x", expected, actual)
	}
	return nil
}

func int64Bytes(v int64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(v))
	return buf
}

// float64Bytes folds -0.0 onto 0.0 and every NaN onto a single NaN so that
// equal values always hash the same.
func float64Bytes(v float64) []byte {
	var bits uint64
	switch {
	case v == 0:
		bits = 0
	case math.IsNaN(v):
		bits = canonicalNaN
	default:
		bits = math.Float64bits(v)
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, bits)
	return buf
}

func int32sBytes(data []int32) []byte {
	buf := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	return buf
}

func int64sBytes(data []int64) []byte {
	buf := make([]byte, 8*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(v))
	}
	return buf
}

// charsBytes lays out UTF-16 code units the way a char array is hashed by the
// other implementations.
func charsBytes(data []uint16) []byte {
	buf := make([]byte, 2*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint16(buf[i*2:], v)
	}
	return buf
}
