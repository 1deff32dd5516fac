package theta

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceSlots is a bare table for exercising the probing functions.
type sliceSlots []uint64

func (s sliceSlots) lgArrLongs() int {
	lg := 0
	for 1<<uint(lg) < len(s) {
		lg++
	}
	return lg
}
func (s sliceSlots) slot(i int) uint64       { return s[i] }
func (s sliceSlots) setSlot(i int, v uint64) { s[i] = v }

func Test_stride(t *testing.T) {
	for _, hash := range []uint64{0, 1, 0xff, 0xdeadbeef, MaxThetaLong - 1} {
		s := stride(hash, 5)
		assert.Equal(t, 1, s%2, "stride must be odd")
		assert.LessOrEqual(t, s, 2*strideMask+1)
	}
}

func Test_hashSearchOrInsert(t *testing.T) {

	table := make(sliceSlots, 32)

	// colliding hashes share the low bits but probe differently.
	hashes := []uint64{3, 3 + 32, 3 + 64, 3 + 96, 7}
	for _, h := range hashes {
		assert.False(t, hashSearchOrInsert(table, h), "first insert of %d", h)
	}
	for _, h := range hashes {
		assert.True(t, hashSearchOrInsert(table, h), "second insert of %d", h)
	}

	assert.Equal(t, len(hashes), countLessThan(table, MaxThetaLong))
}

func Test_hashSearchOrInsert_Full(t *testing.T) {

	table := make(sliceSlots, 32)
	for i := range table {
		table[i] = uint64(i + 1)
	}

	// a present value is still found...
	assert.True(t, hashSearchOrInsert(table, 5))

	// ...but an absent one has nowhere to go.
	assert.Panics(t, func() { hashSearchOrInsert(table, 1000) })
}

func Test_hashInsertOnly(t *testing.T) {

	rnd := rand.New(rand.NewSource(1))
	table := make(sliceSlots, 64)

	var inserted []uint64
	for len(inserted) < 40 {
		h := uint64(rnd.Int63())
		if h == 0 || slices.Contains(inserted, h) {
			continue
		}
		hashInsertOnly(table, h)
		inserted = append(inserted, h)
	}

	for _, h := range inserted {
		assert.True(t, hashSearchOrInsert(table, h))
	}
	assert.Equal(t, len(inserted), countLessThan(table, MaxThetaLong))
}

func Test_rejected(t *testing.T) {
	assert.True(t, rejected(0, MaxThetaLong), "zero is the empty slot")
	assert.True(t, rejected(100, 100), "theta itself is outside the sample")
	assert.True(t, rejected(101, 100))
	assert.False(t, rejected(99, 100))
	assert.False(t, rejected(1, MaxThetaLong))
}

func Test_countLessThan(t *testing.T) {
	arr := []uint64{0, 5, 10, 0, 15, 20}
	assert.Equal(t, 4, countLessThan(arr, MaxThetaLong))
	assert.Equal(t, 2, countLessThan(arr, 15))
	assert.Equal(t, 0, countLessThan(arr, 5))
}

func Test_compactCache(t *testing.T) {

	tests := []struct {
		label    string
		arr      []uint64
		count    int
		theta    uint64
		ordered  bool
		expected []uint64
	}{
		{
			label:    "Ordered",
			arr:      []uint64{0, 30, 10, 0, 20},
			count:    3,
			theta:    MaxThetaLong,
			ordered:  true,
			expected: []uint64{10, 20, 30},
		},
		{
			label:    "Unordered",
			arr:      []uint64{0, 30, 10, 0, 20},
			count:    3,
			theta:    MaxThetaLong,
			expected: []uint64{30, 10, 20},
		},
		{
			label:    "BelowTheta",
			arr:      []uint64{40, 30, 10, 0, 20},
			count:    2,
			theta:    25,
			ordered:  true,
			expected: []uint64{10, 20},
		},
		{
			label:    "StopsAtCount",
			arr:      []uint64{3, 2, 1},
			count:    2,
			theta:    MaxThetaLong,
			ordered:  true,
			expected: []uint64{2, 3},
		},
		{
			label:    "Empty",
			arr:      make([]uint64, 8),
			count:    0,
			theta:    MaxThetaLong,
			ordered:  true,
			expected: []uint64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			arr := slices.Clone(tt.arr)
			assert.Equal(t, tt.expected, compactCache(arr, tt.count, tt.theta, tt.ordered, nil))
			assert.Equal(t, tt.arr, arr, "input must not be modified")
		})
	}
}

func Test_selectExcludingZeros(t *testing.T) {

	rnd := rand.New(rand.NewSource(7))

	for _, n := range []int{1, 2, 3, 17, 100, 1000} {
		values := make([]uint64, 0, n)
		for len(values) < n {
			v := uint64(rnd.Int63n(1 << 40))
			if v != 0 && !slices.Contains(values, v) {
				values = append(values, v)
			}
		}

		// scatter the values among zeros the way a hash table holds them.
		arr := make([]uint64, 2*n)
		for i, v := range values {
			arr[2*i+rnd.Intn(2)] = v
		}
		before := slices.Clone(arr)

		sorted := slices.Clone(values)
		slices.Sort(sorted)

		for _, pivot := range []int{1, (n + 1) / 2, n} {
			require.Equal(t, sorted[pivot-1], selectExcludingZeros(arr, n, pivot), "n=%d pivot=%d", n, pivot)
		}
		assert.Equal(t, before, arr)
	}
}

func Test_selectExcludingZeros_OutOfRange(t *testing.T) {
	arr := []uint64{0, 3, 1, 2}
	assert.Panics(t, func() { selectExcludingZeros(arr, 3, 0) })
	assert.Panics(t, func() { selectExcludingZeros(arr, 3, 4) })
}

func Test_selectKth_Duplicates(t *testing.T) {
	arr := []uint64{5, 1, 5, 3, 5, 1}
	assert.Equal(t, uint64(1), selectKth(slices.Clone(arr), 1))
	assert.Equal(t, uint64(3), selectKth(slices.Clone(arr), 2))
	assert.Equal(t, uint64(5), selectKth(slices.Clone(arr), 5))
}
