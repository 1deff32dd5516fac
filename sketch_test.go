package theta

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSeedHash(t testing.TB) uint16 {
	seedHash, err := computeSeedHash(DefaultSeed)
	require.NoError(t, err)
	return seedHash
}

func Test_CompactSketch_Layout(t *testing.T) {

	seedHash := mustSeedHash(t)
	hashes := testHashes(0, 3)

	tests := []struct {
		label    string
		hashes   []uint64
		empty    bool
		theta    uint64
		preLongs int
		size     int
		flags    byte
	}{
		{
			label:    "Empty",
			empty:    true,
			theta:    MaxThetaLong,
			preLongs: 1,
			size:     8,
			flags:    flagCompact | flagReadOnly | flagEmpty | flagOrdered,
		},
		{
			label:    "SingleItem",
			hashes:   hashes[:1],
			theta:    MaxThetaLong,
			preLongs: 1,
			size:     16,
			flags:    flagCompact | flagReadOnly | flagOrdered | flagSingleItem,
		},
		{
			label:    "Exact",
			hashes:   hashes,
			theta:    MaxThetaLong,
			preLongs: 2,
			size:     40,
			flags:    flagCompact | flagReadOnly | flagOrdered,
		},
		{
			label:    "Estimating",
			hashes:   hashes[:1],
			theta:    MaxThetaLong - 1,
			preLongs: 3,
			size:     32,
			flags:    flagCompact | flagReadOnly | flagOrdered,
		},
		{
			label:    "EstimatingNoHashes",
			theta:    1 << 40,
			preLongs: 3,
			size:     24,
			flags:    flagCompact | flagReadOnly | flagOrdered,
		},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			c, err := newCompactSketch(tt.hashes, tt.empty, seedHash, tt.theta, true, nil)
			require.NoError(t, err)

			b := c.ToBytes()
			require.Len(t, b, tt.size)

			mem := WrapMemory(b)
			assert.Equal(t, tt.preLongs, extractPreLongs(mem))
			assert.Equal(t, serVer, extractSerVer(mem))
			assert.Equal(t, FamilyCompact, extractFamily(mem))
			assert.Equal(t, tt.flags, extractFlags(mem))
			assert.Equal(t, seedHash, extractSeedHash(mem))

			if tt.preLongs > 1 {
				assert.Equal(t, len(tt.hashes), extractRetained(mem))
			}
			if tt.preLongs > 2 {
				assert.Equal(t, tt.theta, extractThetaLong(mem))
			}

			back, err := HeapifyCompactSketch(mem, DefaultSeed)
			require.NoError(t, err)
			assert.Equal(t, tt.empty, back.IsEmpty())
			assert.Equal(t, len(tt.hashes), back.NumRetained())
			assert.Equal(t, c.Estimate(), back.Estimate())
			if !tt.empty {
				assert.Equal(t, tt.theta, back.Theta64())
			}
		})
	}
}

func Test_CompactSketch_Destination(t *testing.T) {

	seedHash := mustSeedHash(t)
	hashes := testHashes(0, 4)

	dst := NewMemory(64)
	c, err := newCompactSketch(hashes, false, seedHash, MaxThetaLong, false, dst)
	require.NoError(t, err)
	assert.True(t, c.Memory() == dst)
	assert.Equal(t, c.ToBytes(), dst.Bytes()[:48])

	_, err = newCompactSketch(hashes, false, seedHash, MaxThetaLong, false, NewMemory(40))
	require.Error(t, err)
	assert.Equal(t, ErrCapacityExceeded, errors.Cause(err))

	_, err = newCompactSketch(hashes, false, seedHash, MaxThetaLong, false, WrapReadOnlyMemory(make([]byte, 64)))
	assert.Equal(t, ErrReadOnly, err)
}

func Test_CompactSketch_CacheIsCopy(t *testing.T) {

	c, err := newCompactSketch(testHashes(0, 2), false, mustSeedHash(t), MaxThetaLong, false, nil)
	require.NoError(t, err)

	cache := c.Cache()
	cache[0] = 0
	assert.NotZero(t, c.Cache()[0])
}

func Test_HeapifyCompactSketch_Errors(t *testing.T) {

	_, err := HeapifyCompactSketch(nil, DefaultSeed)
	assert.Equal(t, ErrInsufficientBytes, err)

	// eight bytes are only valid for an empty image.
	c, err := newCompactSketch(testHashes(0, 1), false, mustSeedHash(t), MaxThetaLong, true, nil)
	require.NoError(t, err)
	_, err = HeapifyCompactSketch(WrapMemory(c.ToBytes()[:8]), DefaultSeed)
	assert.Equal(t, ErrInsufficientBytes, err)

	_, err = HeapifyCompactSketch(WrapMemory(c.ToBytes()), DefaultSeed+1)
	assert.Equal(t, ErrSeedMismatch, errors.Cause(err))
}

func Test_HeapifyCompactSketch_UpdateImage(t *testing.T) {

	sk := newTestUpdateSketch(t, 6, 1000, 0)

	c, err := HeapifyCompactSketch(WrapMemory(sk.ToBytes()), DefaultSeed)
	require.NoError(t, err)
	assert.False(t, c.IsOrdered())
	assert.Equal(t, sk.Theta64(), c.Theta64())
	assert.Equal(t, sk.NumRetained(), c.NumRetained())
	assert.Equal(t, sk.Estimate(), c.Estimate())
}

func Test_estimate(t *testing.T) {
	assert.Equal(t, float64(10), estimate(MaxThetaLong, 10))
	assert.InDelta(t, 20, estimate(MaxThetaLong/2, 10), 1e-6)
	assert.Equal(t, float64(0), estimate(MaxThetaLong/2, 0))
}
