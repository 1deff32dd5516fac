package countmin

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSketch(t testing.TB, numHashes, numBuckets int) *Sketch {
	config, err := NewConfig(numHashes, numBuckets, 42)
	require.NoError(t, err)
	return New(config)
}

func Test_NewConfig(t *testing.T) {

	tests := []struct {
		label      string
		numHashes  int
		numBuckets int
		err        string
	}{
		{label: "Valid", numHashes: 3, numBuckets: 100},
		{label: "NoHashes", numHashes: 0, numBuckets: 100, err: "numHashes is too small"},
		{label: "NoBuckets", numHashes: 3, numBuckets: 0, err: "numBuckets is too small"},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			config, err := NewConfig(tt.numHashes, tt.numBuckets, 1)
			if tt.err != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.numHashes, config.NumHashes())
			assert.Equal(t, tt.numBuckets, config.NumBuckets())
			for i := 0; i < tt.numHashes; i++ {
				assert.GreaterOrEqual(t, config.a[i], uint64(1))
				assert.Less(t, config.a[i], uint64(mersennePrime))
				assert.GreaterOrEqual(t, config.b[i], uint64(1))
				assert.Less(t, config.b[i], uint64(mersennePrime))
			}
		})
	}
}

func Test_Config_Equal(t *testing.T) {

	c1, err := NewConfig(4, 64, 7)
	require.NoError(t, err)
	c2, err := NewConfig(4, 64, 7)
	require.NoError(t, err)
	c3, err := NewConfig(4, 64, 8)
	require.NoError(t, err)
	c4, err := NewConfig(4, 65, 7)
	require.NoError(t, err)

	assert.True(t, c1.Equal(c1))
	assert.True(t, c1.Equal(c2), "the same seed draws the same coefficients")
	assert.False(t, c1.Equal(c3))
	assert.False(t, c1.Equal(c4))
	assert.False(t, c1.Equal(nil))
}

func Test_Sketch_Empty(t *testing.T) {
	s := newTestSketch(t, 3, 16)
	assert.Equal(t, int64(0), s.TotalWeight())
	assert.Equal(t, int64(0), s.Estimate(1))
	assert.Equal(t, int64(0), s.EstimateString("a"))
}

func Test_Sketch_SingleItem(t *testing.T) {

	s := newTestSketch(t, 3, 16)
	s.Update(1, 1)
	s.Update(1, 4)
	s.UpdateString("x", 10)
	s.UpdateBytes([]byte("y"), 2)

	assert.Equal(t, int64(17), s.TotalWeight())
	assert.GreaterOrEqual(t, s.Estimate(1), int64(5))
	assert.GreaterOrEqual(t, s.EstimateString("x"), int64(10))
	assert.Equal(t, s.EstimateString("y"), s.EstimateBytes([]byte("y")))
}

func Test_Sketch_NeverUnderestimates(t *testing.T) {

	rnd := rand.New(rand.NewSource(3))
	s := newTestSketch(t, 5, 128)

	truth := make(map[int64]int64)
	for i := 0; i < 20000; i++ {
		// a skewed stream over 1000 items.
		item := int64(rnd.ExpFloat64() * 100)
		weight := int64(1 + rnd.Intn(3))
		truth[item] += weight
		s.Update(item, weight)
	}

	var total int64
	for item, weight := range truth {
		total += weight
		estimate := s.Estimate(item)
		assert.GreaterOrEqual(t, estimate, weight, "item %d", item)
		assert.LessOrEqual(t, estimate, s.TotalWeight())
	}
	assert.Equal(t, total, s.TotalWeight())
}

func Test_Sketch_Merge(t *testing.T) {

	a := newTestSketch(t, 4, 64)
	b := newTestSketch(t, 4, 64)
	both := newTestSketch(t, 4, 64)

	for i := int64(0); i < 500; i++ {
		a.Update(i, 1)
		both.Update(i, 1)
	}
	for i := int64(250); i < 750; i++ {
		b.Update(i, 2)
		both.Update(i, 2)
	}

	require.NoError(t, a.Merge(b))
	assert.Equal(t, both.TotalWeight(), a.TotalWeight())
	for i := int64(0); i < 750; i++ {
		assert.Equal(t, both.Estimate(i), a.Estimate(i))
	}

	require.NoError(t, a.Merge(nil))
	assert.Equal(t, both.TotalWeight(), a.TotalWeight())
}

func Test_Sketch_Merge_Incompatible(t *testing.T) {

	a := newTestSketch(t, 4, 64)
	a.Update(1, 1)

	other, err := NewConfig(4, 64, 99)
	require.NoError(t, err)

	err = a.Merge(New(other))
	require.Error(t, err)
	assert.Equal(t, ErrIncompatible, errors.Cause(err))
	assert.Equal(t, int64(1), a.TotalWeight())
}
