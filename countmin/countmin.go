// Package countmin implements a count-min sketch: a fixed matrix of counters,
// one row per pairwise-independent hash function, that estimates the total
// weight of each item in a stream.  Estimates never fall below the true
// weight when all weights are positive.
package countmin

import (
	"math/rand"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

// mersennePrime is 2^31 - 1, the modulus of the row hash functions.
const mersennePrime = (1 << 31) - 1

// ErrIncompatible is returned when merging sketches whose configurations
// differ.
var ErrIncompatible = errors.New("sketches have different configurations")

// Config fixes the shape of a sketch and the coefficients of its hash
// functions.  Only sketches that share an equal Config can be merged.
type Config struct {
	numHashes  int
	numBuckets int

	// row i hashes x to ((a[i]*x + b[i]) mod p) mod numBuckets.
	a []uint64
	b []uint64
}

// NewConfig draws the hash coefficients from a source seeded with seed, so
// equal arguments always produce equal configurations.
func NewConfig(numHashes, numBuckets int, seed int64) (*Config, error) {

	if numHashes < 1 {
		return nil, errors.Errorf("numHashes is too small.  Requires at least 1 but got %d", numHashes)
	}
	if numBuckets < 1 {
		return nil, errors.Errorf("numBuckets is too small.  Requires at least 1 but got %d", numBuckets)
	}

	rnd := rand.New(rand.NewSource(seed))
	coefficients := func() []uint64 {
		c := make([]uint64, numHashes)
		for i := range c {
			c[i] = uint64(rnd.Int63n(mersennePrime-1)) + 1
		}
		return c
	}

	a := coefficients()
	b := coefficients()

	return &Config{
		numHashes:  numHashes,
		numBuckets: numBuckets,
		a:          a,
		b:          b,
	}, nil
}

func (c *Config) NumHashes() int {
	return c.numHashes
}

func (c *Config) NumBuckets() int {
	return c.numBuckets
}

// Equal reports whether sketches built from c and other can be merged.
func (c *Config) Equal(other *Config) bool {
	if c == other {
		return true
	}
	if c == nil || other == nil {
		return false
	}
	return c.numHashes == other.numHashes &&
		c.numBuckets == other.numBuckets &&
		slices.Equal(c.a, other.a) &&
		slices.Equal(c.b, other.b)
}

// bucket returns the column item falls in on the given row.
func (c *Config) bucket(row int, item int64) int {
	x := uint64(item) % mersennePrime
	h := (c.a[row]*x + c.b[row]) % mersennePrime
	return int(h % uint64(c.numBuckets))
}

// Sketch is a count-min sketch.  It is not safe for concurrent use.
type Sketch struct {
	config      *Config
	table       []int64
	totalWeight int64
}

// New creates an empty sketch.
func New(config *Config) *Sketch {
	return &Sketch{
		config: config,
		table:  make([]int64, config.numHashes*config.numBuckets),
	}
}

// Update adds weight to item.
func (s *Sketch) Update(item int64, weight int64) {
	for row := 0; row < s.config.numHashes; row++ {
		s.table[s.index(row, item)] += weight
	}
	s.totalWeight += weight
}

// UpdateBytes adds weight to an item identified by its bytes.
func (s *Sketch) UpdateBytes(item []byte, weight int64) {
	s.Update(int64(xxhash.Sum64(item)), weight)
}

// UpdateString adds weight to an item identified by a string.
func (s *Sketch) UpdateString(item string, weight int64) {
	s.Update(int64(xxhash.Sum64String(item)), weight)
}

// Estimate returns the smallest counter item maps to.
func (s *Sketch) Estimate(item int64) int64 {
	var estimate int64
	for row := 0; row < s.config.numHashes; row++ {
		v := s.table[s.index(row, item)]
		if row == 0 || v < estimate {
			estimate = v
		}
	}
	return estimate
}

func (s *Sketch) EstimateBytes(item []byte) int64 {
	return s.Estimate(int64(xxhash.Sum64(item)))
}

func (s *Sketch) EstimateString(item string) int64 {
	return s.Estimate(int64(xxhash.Sum64String(item)))
}

// TotalWeight returns the sum of all weights added.
func (s *Sketch) TotalWeight() int64 {
	return s.totalWeight
}

func (s *Sketch) Config() *Config {
	return s.config
}

// Merge adds the counters of other to s.  other is not modified.
func (s *Sketch) Merge(other *Sketch) error {
	if other == nil {
		return nil
	}
	if !s.config.Equal(other.config) {
		return errors.Wrapf(ErrIncompatible, "%dx%d and %dx%d",
			s.config.numHashes, s.config.numBuckets, other.config.numHashes, other.config.numBuckets)
	}
	for i, v := range other.table {
		s.table[i] += v
	}
	s.totalWeight += other.totalWeight
	return nil
}

func (s *Sketch) index(row int, item int64) int {
	return row*s.config.numBuckets + s.config.bucket(row, item)
}
