package theta

import (
	"fmt"

	"github.com/pkg/errors"
)

// UpdateSketch builds a theta sketch from raw items.  It retains hashes in an
// open-addressed table, so it merges into a Union as an unordered sketch.
//
// An UpdateSketch is not safe for concurrent use.
type UpdateSketch struct {
	buffer *hashBuffer
}

// NewUpdateSketch creates an empty sketch.  With WithMemory the sketch lives in
// the given region, which is overwritten.
func NewUpdateSketch(s Settings, opts ...Option) (*UpdateSketch, error) {

	settings, err := s.toInternal()
	if err != nil {
		return nil, err
	}

	o := buildOptions(opts)

	if o.memory == nil {
		return &UpdateSketch{buffer: newHeapBuffer(settings, FamilyQuickSelect, o.logger)}, nil
	}

	buffer, err := newDirectBuffer(settings, FamilyQuickSelect, o.memory, o.server, o.logger)
	if err != nil {
		return nil, err
	}
	return &UpdateSketch{buffer: buffer}, nil
}

// HeapifyUpdateSketch copies a serialized update sketch onto the heap.
func HeapifyUpdateSketch(mem *Memory, seed uint64, opts ...Option) (*UpdateSketch, error) {
	if mem == nil {
		return nil, ErrInsufficientBytes
	}
	o := buildOptions(opts)
	buffer, err := heapifyBuffer(mem, FamilyQuickSelect, seed, o.logger)
	if err != nil {
		return nil, errors.Wrap(err, "heapify update sketch")
	}
	return &UpdateSketch{buffer: buffer}, nil
}

// WrapUpdateSketch operates on a serialized update sketch in place.  Updates
// to a sketch wrapping read-only memory fail with ErrReadOnly.
func WrapUpdateSketch(mem *Memory, seed uint64, opts ...Option) (*UpdateSketch, error) {
	if mem == nil {
		return nil, ErrInsufficientBytes
	}
	o := buildOptions(opts)
	buffer, err := wrapBuffer(mem, FamilyQuickSelect, seed, o.server, o.logger)
	if err != nil {
		return nil, errors.Wrap(err, "wrap update sketch")
	}
	return &UpdateSketch{buffer: buffer}, nil
}

func (u *UpdateSketch) update(data []byte) error {
	if u.buffer.readOnly() {
		return ErrReadOnly
	}
	return u.buffer.update(data)
}

// UpdateInt64 adds an integer item.
func (u *UpdateSketch) UpdateInt64(v int64) error {
	return u.update(int64Bytes(v))
}

// UpdateUint64 adds an unsigned integer item.  It hashes the same as the
// int64 with the same bits.
func (u *UpdateSketch) UpdateUint64(v uint64) error {
	return u.update(int64Bytes(int64(v)))
}

// UpdateFloat64 adds a floating point item.  -0.0 and 0.0 are the same item,
// as are all NaNs.
func (u *UpdateSketch) UpdateFloat64(v float64) error {
	return u.update(float64Bytes(v))
}

// UpdateString adds the UTF-8 bytes of s.  The empty string is ignored.
func (u *UpdateSketch) UpdateString(s string) error {
	return u.update([]byte(s))
}

// UpdateBytes adds a byte slice item.  An empty slice is ignored.
func (u *UpdateSketch) UpdateBytes(b []byte) error {
	return u.update(b)
}

// UpdateChars adds a UTF-16 code unit sequence.  An empty slice is ignored.
func (u *UpdateSketch) UpdateChars(c []uint16) error {
	return u.update(charsBytes(c))
}

// UpdateInt32s adds an int32 slice as a single item.
func (u *UpdateSketch) UpdateInt32s(v []int32) error {
	return u.update(int32sBytes(v))
}

// UpdateInt64s adds an int64 slice as a single item.
func (u *UpdateSketch) UpdateInt64s(v []int64) error {
	return u.update(int64sBytes(v))
}

func (u *UpdateSketch) IsEmpty() bool {
	return u.buffer.isEmpty()
}

func (u *UpdateSketch) SeedHash() uint16 {
	return u.buffer.settings.seedHash
}

func (u *UpdateSketch) Theta64() uint64 {
	return u.buffer.thetaLong()
}

// Theta returns the effective sampling probability.
func (u *UpdateSketch) Theta() float64 {
	return float64(u.Theta64()) / float64(MaxThetaLong)
}

func (u *UpdateSketch) NumRetained() int {
	return u.buffer.retained()
}

// IsOrdered is always false: the hashes are kept in a hash table.
func (u *UpdateSketch) IsOrdered() bool {
	return false
}

// Cache returns the hash table.  Empty slots are zero.
func (u *UpdateSketch) Cache() []uint64 {
	return u.buffer.cache()
}

// Estimate returns the estimated number of distinct items.
func (u *UpdateSketch) Estimate() float64 {
	return estimate(u.Theta64(), u.NumRetained())
}

// IsEstimationMode reports whether the sketch has sampled.
func (u *UpdateSketch) IsEstimationMode() bool {
	return u.Theta64() < MaxThetaLong && !u.IsEmpty()
}

// Settings returns the settings the sketch was built with.
func (u *UpdateSketch) Settings() Settings {
	return u.buffer.settings.toExternal()
}

// Memory returns the region the sketch lives in, or nil for a heap sketch.  A
// MemoryRequestServer may have moved the sketch since construction.
func (u *UpdateSketch) Memory() *Memory {
	return u.buffer.storage.memory()
}

// Rebuild drops the hashes above the nominal k, lowering theta if required.
func (u *UpdateSketch) Rebuild() error {
	if u.buffer.readOnly() {
		return ErrReadOnly
	}
	return u.buffer.rebuild()
}

// Reset returns the sketch to its freshly built state.
func (u *UpdateSketch) Reset() error {
	if u.buffer.readOnly() {
		return ErrReadOnly
	}
	return u.buffer.reset()
}

// Compact returns an immutable copy of the sketch.  If dst is given, the
// serialized image is also written to it.
func (u *UpdateSketch) Compact(ordered bool, dst *Memory) (*CompactSketch, error) {
	theta := u.Theta64()
	count := u.NumRetained()
	hashes := compactCache(u.Cache(), count, theta, ordered, nil)
	return newCompactSketch(hashes, u.IsEmpty(), u.SeedHash(), theta, ordered, dst)
}

// ToBytes serializes the sketch in hash-table form.
func (u *UpdateSketch) ToBytes() []byte {
	return u.buffer.toBytes()
}

func (u *UpdateSketch) String() string {
	return fmt.Sprintf("UpdateSketch{lgK: %d, empty: %t, retained: %d, theta: %f, estimate: %f}",
		u.buffer.settings.lgNomLongs, u.IsEmpty(), u.NumRetained(), u.Theta(), u.Estimate())
}
