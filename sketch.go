package theta

import (
	"fmt"
	"slices"

	"github.com/pkg/errors"
)

// Sketch is the view of a theta sketch that a Union can merge.
type Sketch interface {
	// IsEmpty reports whether the sketch has never seen an item.  This is not
	// the same as having no retained hashes.
	IsEmpty() bool

	// SeedHash returns the fingerprint of the seed the items were hashed with.
	SeedHash() uint16

	// Theta64 returns theta as an integer in [0, MaxThetaLong].
	Theta64() uint64

	// NumRetained returns the number of valid hashes in Cache.
	NumRetained() int

	// IsOrdered reports whether Cache is sorted ascending and holds exactly
	// NumRetained hashes.
	IsOrdered() bool

	// Cache returns the retained hashes.  An unordered sketch may return its
	// hash table, in which zero slots are empty.  The slice must not be
	// modified.
	Cache() []uint64
}

// CompactSketch is an immutable sketch, typically the result of a union or the
// compacted form of an UpdateSketch.
type CompactSketch struct {
	hashes   []uint64
	empty    bool
	seedHash uint16
	theta    uint64
	ordered  bool
	mem      *Memory
}

// newCompactSketch builds a compact sketch from hashes that are all valid and
// below theta.  If dst is given, the serialized image is written to it.
func newCompactSketch(hashes []uint64, empty bool, seedHash uint16, theta uint64, ordered bool, dst *Memory) (*CompactSketch, error) {
	c := &CompactSketch{
		hashes:   hashes,
		empty:    empty,
		seedHash: seedHash,
		theta:    theta,
		ordered:  ordered,
	}

	if dst != nil {
		if dst.ReadOnly() {
			return nil, ErrReadOnly
		}
		if n := c.sizeInBytes(); dst.Capacity() < n {
			return nil, errors.Wrapf(ErrCapacityExceeded, "compact image needs %d bytes but memory holds %d", n, dst.Capacity())
		}
		c.writeBytes(dst)
		c.mem = dst
	}

	return c, nil
}

func (c *CompactSketch) IsEmpty() bool {
	return c.empty
}

func (c *CompactSketch) SeedHash() uint16 {
	return c.seedHash
}

func (c *CompactSketch) Theta64() uint64 {
	return c.theta
}

// Theta returns the effective sampling probability.
func (c *CompactSketch) Theta() float64 {
	return float64(c.theta) / float64(MaxThetaLong)
}

func (c *CompactSketch) NumRetained() int {
	return len(c.hashes)
}

func (c *CompactSketch) IsOrdered() bool {
	return c.ordered
}

// Cache returns a copy of the retained hashes.
func (c *CompactSketch) Cache() []uint64 {
	return slices.Clone(c.hashes)
}

// Memory returns the region the sketch was written to, or nil.
func (c *CompactSketch) Memory() *Memory {
	return c.mem
}

// IsEstimationMode reports whether the sketch has sampled.
func (c *CompactSketch) IsEstimationMode() bool {
	return c.theta < MaxThetaLong && !c.empty
}

// Estimate returns the estimated number of distinct items.
func (c *CompactSketch) Estimate() float64 {
	return estimate(c.theta, len(c.hashes))
}

func (c *CompactSketch) String() string {
	return fmt.Sprintf("CompactSketch{empty: %t, ordered: %t, retained: %d, theta: %f, estimate: %f}",
		c.empty, c.ordered, len(c.hashes), c.Theta(), c.Estimate())
}

// preLongs picks the smallest preamble that can describe the sketch.
func (c *CompactSketch) preLongs() int {
	switch {
	case c.empty:
		return compactEmptyPreLongs
	case c.isSingleItem():
		return compactEmptyPreLongs
	case c.theta == MaxThetaLong:
		return compactExactPreLongs
	default:
		return compactPreLongs
	}
}

func (c *CompactSketch) isSingleItem() bool {
	return !c.empty && len(c.hashes) == 1 && c.theta == MaxThetaLong
}

func (c *CompactSketch) sizeInBytes() int {
	if c.empty {
		return compactEmptyPreLongs << 3
	}
	return (c.preLongs() + len(c.hashes)) << 3
}

// ToBytes serializes the sketch in the compact format.
func (c *CompactSketch) ToBytes() []byte {
	mem := NewMemory(c.sizeInBytes())
	c.writeBytes(mem)
	return mem.Bytes()
}

// writeBytes writes the image into mem, which holds at least sizeInBytes.
func (c *CompactSketch) writeBytes(mem *Memory) {
	preLongs := c.preLongs()

	flags := byte(flagCompact | flagReadOnly)
	if c.empty {
		flags |= flagEmpty
	}
	if c.ordered || c.isSingleItem() {
		flags |= flagOrdered
	}
	if c.isSingleItem() {
		flags |= flagSingleItem
	}

	mem.Clear(0, preLongs<<3)
	insertPreamble(mem, preLongs, 0, FamilyCompact, 0, 0, flags, c.seedHash)
	if preLongs > 1 {
		insertRetained(mem, len(c.hashes))
		insertP(mem, 1)
	}
	if preLongs > 2 {
		insertThetaLong(mem, c.theta)
	}

	if c.empty {
		return
	}
	for i, v := range c.hashes {
		mem.PutUint64((preLongs+i)<<3, v)
	}
}

// HeapifyCompactSketch reads any sketch image this package can merge (compact
// images of serial versions 1 through 3 and hash-table images of version 3)
// into a CompactSketch.  seed must match the seed the image was built with.
func HeapifyCompactSketch(mem *Memory, seed uint64) (*CompactSketch, error) {

	seedHash, err := computeSeedHash(seed)
	if err != nil {
		return nil, err
	}

	if mem == nil || mem.Capacity() < compactEmptyPreLongs<<3 {
		return nil, ErrInsufficientBytes
	}

	// an empty compact image is a lone preamble long, which is shorter than
	// anything decodeImage will look at.
	if mem.Capacity() < minImageBytes {
		if extractSerVer(mem) != serVer || extractFamily(mem) != FamilyCompact || !isEmptyImage(mem) {
			return nil, ErrInsufficientBytes
		}
		return newCompactSketch(nil, true, seedHash, MaxThetaLong, true, nil)
	}

	v, err := decodeImage(mem, seedHash, MaxThetaLong)
	if err != nil {
		return nil, err
	}

	switch v.kind {
	case emptyInput:
		return newCompactSketch(nil, true, seedHash, MaxThetaLong, true, nil)
	case singleInput:
		return newCompactSketch([]uint64{v.hashes.At(0)}, false, seedHash, MaxThetaLong, true, nil)
	}

	hashes := make([]uint64, 0, max(v.count, 0))
	for i := 0; i < v.hashes.Len() && len(hashes) < v.count; i++ {
		if h := v.hashes.At(i); !rejected(h, v.thetaLong) {
			hashes = append(hashes, h)
		}
	}

	ordered := v.kind == orderedInput
	return newCompactSketch(hashes, false, seedHash, v.thetaLong, ordered, nil)
}

// estimate scales the retained count by the inverse of the sampling rate.
func estimate(theta uint64, retained int) float64 {
	if theta == MaxThetaLong {
		return float64(retained)
	}
	return float64(retained) / (float64(theta) / float64(MaxThetaLong))
}
