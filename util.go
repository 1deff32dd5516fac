package theta

import "slices"

// strideMask limits the probe stride to 7 bits of the hash above the index.
const strideMask = (1 << 7) - 1

// slots is a power-of-two open-addressed table of hash values.  a zero slot
// is empty.
type slots interface {
	lgArrLongs() int
	slot(i int) uint64
	setSlot(i int, v uint64)
}

// stride is always odd so every slot of a power-of-two table is visited.
func stride(hash uint64, lgArrLongs int) int {
	return int(2*((hash>>uint(lgArrLongs))&strideMask) + 1)
}

// hashSearchOrInsert inserts hash into t unless it is already present.  It
// returns true if hash was found.  The caller guarantees t is never full.
func hashSearchOrInsert(t slots, hash uint64) bool {
	lgArrLongs := t.lgArrLongs()
	mask := (1 << uint(lgArrLongs)) - 1
	step := stride(hash, lgArrLongs)
	cur := int(hash) & mask
	start := cur
	for {
		switch t.slot(cur) {
		case 0:
			t.setSlot(cur, hash)
			return false
		case hash:
			return true
		}
		cur = (cur + step) & mask
		if cur == start {
			panic("theta: hash table is full")
		}
	}
}

// hashInsertOnly inserts a hash that is known to be absent from t.
func hashInsertOnly(t slots, hash uint64) {
	lgArrLongs := t.lgArrLongs()
	mask := (1 << uint(lgArrLongs)) - 1
	step := stride(hash, lgArrLongs)
	cur := int(hash) & mask
	for t.slot(cur) != 0 {
		cur = (cur + step) & mask
	}
	t.setSlot(cur, hash)
}

// rejected reports whether hash must be kept out of a sketch with the given
// theta: zero is the empty-slot marker and anything at or above theta is
// outside the sample.
func rejected(hash, theta uint64) bool {
	return hash == 0 || hash >= theta
}

// countLessThan counts the valid entries of arr below theta.
func countLessThan(arr []uint64, theta uint64) int {
	n := 0
	for _, v := range arr {
		if !rejected(v, theta) {
			n++
		}
	}
	return n
}

// compactCache copies the valid entries of arr below theta into dst, which
// must have room for count entries, sorting them if ordered is set.  A nil dst
// is allocated.
func compactCache(arr []uint64, count int, theta uint64, ordered bool, dst []uint64) []uint64 {
	if dst == nil {
		dst = make([]uint64, 0, count)
	}
	dst = dst[:0]
	for _, v := range arr {
		if rejected(v, theta) {
			continue
		}
		dst = append(dst, v)
		if len(dst) == count {
			break
		}
	}
	if ordered {
		slices.Sort(dst)
	}
	return dst
}
