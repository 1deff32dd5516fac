package theta

import "github.com/pkg/errors"

// hashSeq is a read-only run of 64 bit hash slots, either in a slice or in a
// serialized image.
type hashSeq interface {
	Len() int
	At(i int) uint64
}

type sliceSeq []uint64

func (s sliceSeq) Len() int        { return len(s) }
func (s sliceSeq) At(i int) uint64 { return s[i] }

// memorySeq reads n longs starting at a byte offset.
type memorySeq struct {
	mem    *Memory
	offset int
	n      int
}

func (s memorySeq) Len() int        { return s.n }
func (s memorySeq) At(i int) uint64 { return s.mem.Uint64(s.offset + i<<3) }

type inputKind int

const (
	// emptyInput leaves a union unchanged.
	emptyInput inputKind = iota
	// singleInput is one hash that bypasses the merge bookkeeping.
	singleInput
	// orderedInput is sorted ascending, so the scan stops at the first hash
	// at or above theta.
	orderedInput
	// unorderedInput may contain empty or dirty slots and is scanned until
	// count hashes have been accepted.
	unorderedInput
)

// sketchView is the normalized form of anything a Union can merge.  Live
// sketches and every serialized layout are reduced to it before the merge.
type sketchView struct {
	kind      inputKind
	thetaLong uint64
	hashes    hashSeq
	// count is the number of retained hashes the source declares.
	count int
}

var emptyView = sketchView{kind: emptyInput}

// viewOf adapts a live sketch.
func viewOf(sk Sketch, seedHash uint16) (sketchView, error) {

	switch s := sk.(type) {
	case nil:
		return emptyView, nil
	case *CompactSketch:
		if s == nil {
			return emptyView, nil
		}
	case *UpdateSketch:
		if s == nil {
			return emptyView, nil
		}
	}

	if sk.IsEmpty() {
		return emptyView, nil
	}

	if err := checkSeedHashes(seedHash, sk.SeedHash()); err != nil {
		return sketchView{}, err
	}

	var cache []uint64
	if c, ok := sk.(*CompactSketch); ok {
		// read the hashes in place rather than through the copy Cache returns.
		cache = c.hashes
	} else {
		cache = sk.Cache()
	}

	count := sk.NumRetained()
	if sk.IsOrdered() {
		return sketchView{
			kind:      orderedInput,
			thetaLong: sk.Theta64(),
			hashes:    sliceSeq(cache[:min(count, len(cache))]),
			count:     count,
		}, nil
	}

	return sketchView{
		kind:      unorderedInput,
		thetaLong: sk.Theta64(),
		hashes:    sliceSeq(cache),
		count:     count,
	}, nil
}

// decodeFunc reduces one serial version to a sketchView.  unionTheta is the
// current theta of the receiving union, which the oldest format needs to tell
// an empty image from a sampled one.
type decodeFunc func(mem *Memory, seedHash uint16, unionTheta uint64) (sketchView, error)

var decoders = map[int]decodeFunc{
	1: decodeV1,
	2: decodeV2,
	3: decodeV3,
}

// decodeImage dispatches on the serial version.  Images shorter than two longs
// are treated as empty.
func decodeImage(mem *Memory, seedHash uint16, unionTheta uint64) (sketchView, error) {
	if mem == nil || mem.Capacity() < minImageBytes {
		return emptyView, nil
	}

	version := extractSerVer(mem)
	decode, ok := decoders[version]
	if !ok {
		return sketchView{}, errors.Wrapf(ErrUnrecognizedFormat, "serial version %d", version)
	}
	return decode(mem, seedHash, unionTheta)
}

// decodeV3 handles the current format: any of the Alpha, QuickSelect or
// Compact families, compact or hash-table form, ordered or not.
func decodeV3(mem *Memory, seedHash uint16, _ uint64) (sketchView, error) {

	if f := extractFamily(mem); f < FamilyAlpha || f > FamilyCompact {
		return sketchView{}, errors.Wrapf(ErrInvalidFamily, "must be Alpha, QuickSelect or Compact but got %s", f)
	}

	flags := extractFlags(mem)
	if flags&flagEmpty != 0 {
		return emptyView, nil
	}

	if err := checkSeedHashes(seedHash, extractSeedHash(mem)); err != nil {
		return sketchView{}, err
	}

	preLongs := extractPreLongs(mem)

	var count int
	var theta uint64

	switch {
	case preLongs == 0:
		return sketchView{}, errors.Wrap(ErrCorruptImage, "zero preamble longs")

	case preLongs == 1:
		// one hash and nothing else.  older writers did not set the single
		// item flag, so a compact, ordered, little endian image qualifies too.
		singleItem := flags&flagSingleItem != 0 ||
			flags&(flagCompact|flagOrdered|flagBigEndian) == flagCompact|flagOrdered
		if !singleItem {
			return emptyView, nil
		}
		return sketchView{kind: singleInput, thetaLong: MaxThetaLong, hashes: memorySeq{mem, 8, 1}, count: 1}, nil

	case preLongs == 2:
		// exact mode.
		count = extractRetained(mem)
		if count == 0 {
			return emptyView, nil
		}
		theta = MaxThetaLong

	default:
		if mem.Capacity() < preLongs<<3 {
			return sketchView{}, ErrInsufficientBytes
		}
		count = extractRetained(mem)
		theta = extractThetaLong(mem)
	}

	if count < 0 {
		return sketchView{}, errors.Wrapf(ErrCorruptImage, "retained count %d", count)
	}

	if flags&flagOrdered != 0 {
		return orderedView(mem, preLongs, count, theta)
	}

	// unordered images are either compact, holding exactly count hashes, or a
	// hash table that has to be scanned in full.
	size := count
	if flags&flagCompact == 0 {
		lgArrLongs := extractLgArrLongs(mem)
		if lgArrLongs < minLgArrLongs || lgArrLongs > maximumLgNomLongs+1 {
			return sketchView{}, errors.Wrapf(ErrCorruptImage, "table size 2^%d out of range", lgArrLongs)
		}
		size = 1 << uint(lgArrLongs)
		if count > size {
			return sketchView{}, errors.Wrapf(ErrCorruptImage, "retained count %d exceeds %d slots", count, size)
		}
	}
	if !holdsLongs(mem, preLongs, size) {
		return sketchView{}, errors.Wrapf(ErrInsufficientBytes, "image declares %d slots", size)
	}

	return sketchView{
		kind:      unorderedInput,
		thetaLong: theta,
		hashes:    memorySeq{mem, preLongs << 3, size},
		count:     count,
	}, nil
}

// decodeV2 handles the previous format, which is always compact and ordered.
func decodeV2(mem *Memory, seedHash uint16, _ uint64) (sketchView, error) {

	if f := extractFamily(mem); f != FamilyCompact {
		return sketchView{}, errors.Wrapf(ErrInvalidFamily, "serial version 2 must be Compact but got %s", f)
	}

	if err := checkSeedHashes(seedHash, extractSeedHash(mem)); err != nil {
		return sketchView{}, err
	}

	preLongs := extractPreLongs(mem)

	var count int
	var theta uint64

	switch {
	case preLongs <= 1:
		return emptyView, nil
	case preLongs == 2:
		count = extractRetained(mem)
		if count == 0 {
			return emptyView, nil
		}
		theta = MaxThetaLong
	default:
		if mem.Capacity() < preLongs<<3 {
			return sketchView{}, ErrInsufficientBytes
		}
		count = extractRetained(mem)
		theta = extractThetaLong(mem)
	}

	if count < 0 {
		return sketchView{}, errors.Wrapf(ErrCorruptImage, "retained count %d", count)
	}

	return orderedView(mem, preLongs, count, theta)
}

// v1 images have no seed hash and no empty flag; the preamble is always three
// longs.
const v1PreLongs = 3

// decodeV1 handles the oldest format.  The caller's seed is trusted.
func decodeV1(mem *Memory, _ uint16, unionTheta uint64) (sketchView, error) {

	if f := extractFamily(mem); f != FamilyCompact {
		return sketchView{}, errors.Wrapf(ErrInvalidFamily, "serial version 1 must be Compact but got %s", f)
	}

	if mem.Capacity() <= v1PreLongs<<3 {
		return emptyView, nil
	}

	theta := extractThetaLong(mem)
	count := extractRetained(mem)
	if count == 0 && unionTheta == MaxThetaLong {
		return emptyView, nil
	}

	if count < 0 {
		return sketchView{}, errors.Wrapf(ErrCorruptImage, "retained count %d", count)
	}

	return orderedView(mem, v1PreLongs, count, theta)
}

func orderedView(mem *Memory, preLongs, count int, theta uint64) (sketchView, error) {
	if !holdsLongs(mem, preLongs, count) {
		return sketchView{}, errors.Wrapf(ErrInsufficientBytes, "image declares %d hashes", count)
	}
	return sketchView{
		kind:      orderedInput,
		thetaLong: theta,
		hashes:    memorySeq{mem, preLongs << 3, count},
		count:     count,
	}, nil
}

// holdsLongs reports whether mem has room for n longs after the preamble.
func holdsLongs(mem *Memory, preLongs, n int) bool {
	return n <= mem.Capacity()>>3-preLongs
}
