package theta

import (
	"log/slog"

	"github.com/pkg/errors"
)

// Union merges theta sketches, in memory or serialized in any of the three
// binary versions, into a single sketch.
//
// Internally a union accumulates hashes in a hash buffer that may hold more
// than k entries between rebuilds; Result pulls the retained set back to k.
// The union theta and empty flag are tracked separately from the buffer since
// merging a sampled sketch restricts the result even when none of its hashes
// survive.
//
// A Union is not safe for concurrent use.  Callers that merge from several
// goroutines must serialize every call, including Result, themselves.
//
// The zero value is an empty union, provided that Defaults has been invoked.
// Otherwise, operations on the zero value panic.
type Union struct {
	buffer *hashBuffer

	// unionThetaLong only ever decreases.  it is the authoritative copy; a
	// union in Memory mirrors it there after each merge.
	unionThetaLong uint64

	// unionEmpty is true until a non-empty sketch has been merged.
	unionEmpty bool

	logger *slog.Logger
}

// NewUnion creates an empty union.  With WithMemory the union lives in the
// given region, which is overwritten.
func NewUnion(s Settings, opts ...Option) (*Union, error) {

	settings, err := s.toInternal()
	if err != nil {
		return nil, err
	}

	o := buildOptions(opts)

	var buffer *hashBuffer
	if o.memory == nil {
		buffer = newHeapBuffer(settings, FamilyUnion, o.logger)
	} else {
		buffer, err = newDirectBuffer(settings, FamilyUnion, o.memory, o.server, o.logger)
		if err != nil {
			return nil, err
		}
	}

	return &Union{
		buffer:         buffer,
		unionThetaLong: buffer.thetaLong(),
		unionEmpty:     buffer.isEmpty(),
		logger:         o.logger,
	}, nil
}

// HeapifyUnion rebuilds a union on the heap from bytes produced by ToBytes or
// from the region of a union placed in Memory.
func HeapifyUnion(mem *Memory, seed uint64, opts ...Option) (*Union, error) {
	if mem == nil {
		return nil, ErrInsufficientBytes
	}

	o := buildOptions(opts)
	buffer, err := heapifyBuffer(mem, FamilyUnion, seed, o.logger)
	if err != nil {
		return nil, errors.Wrap(err, "heapify union")
	}

	return &Union{
		buffer:         buffer,
		unionThetaLong: extractUnionThetaLong(mem),
		unionEmpty:     isEmptyImage(mem),
		logger:         o.logger,
	}, nil
}

// WrapUnion operates on a serialized union in place.  Merges into a union
// wrapping read-only memory fail with ErrReadOnly.
func WrapUnion(mem *Memory, seed uint64, opts ...Option) (*Union, error) {
	if mem == nil {
		return nil, ErrInsufficientBytes
	}

	o := buildOptions(opts)
	buffer, err := wrapBuffer(mem, FamilyUnion, seed, o.server, o.logger)
	if err != nil {
		return nil, errors.Wrap(err, "wrap union")
	}

	return &Union{
		buffer:         buffer,
		unionThetaLong: extractUnionThetaLong(mem),
		unionEmpty:     isEmptyImage(mem),
		logger:         o.logger,
	}, nil
}

// Merge adds sk to the union.  A nil or empty sketch leaves the union
// unchanged.  It returns an error wrapping ErrSeedMismatch if sk was built
// with a different seed, in which case the union is unchanged.
func (u *Union) Merge(sk Sketch) error {

	u.initOrPanic()

	if err := u.writable(); err != nil {
		return err
	}

	v, err := viewOf(sk, u.buffer.settings.seedHash)
	if err != nil {
		return err
	}

	return u.merge(v)
}

// MergeMemory adds a serialized sketch to the union without deserializing
// it.  Compact images of serial versions 1 through 3 and hash-table images of
// version 3 are accepted.  Images shorter than 16 bytes are ignored.
func (u *Union) MergeMemory(mem *Memory) error {

	u.initOrPanic()

	if err := u.writable(); err != nil {
		return err
	}

	v, err := decodeImage(mem, u.buffer.settings.seedHash, u.unionThetaLong)
	if err != nil {
		return err
	}

	if mem != nil && extractSerVer(mem) < serVer && v.kind != emptyInput {
		u.logger.Debug("merging legacy image", "version", extractSerVer(mem), "retained", v.count)
	}

	return u.merge(v)
}

// MergeBytes is MergeMemory over a byte slice.
func (u *Union) MergeBytes(b []byte) error {
	return u.MergeMemory(WrapReadOnlyMemory(b))
}

// merge applies a normalized sketch: the theta rule, then the hashes below
// the new union theta.
func (u *Union) merge(v sketchView) error {

	switch v.kind {
	case emptyInput:
		return nil
	case singleInput:
		// a lone hash is direct membership, not a sampled sketch.
		_, err := u.buffer.hashUpdate(v.hashes.At(0))
		return err
	}

	u.unionThetaLong = min(u.unionThetaLong, v.thetaLong, u.buffer.thetaLong())
	u.unionEmpty = false

	switch v.kind {
	case orderedInput:
		for i := 0; i < v.hashes.Len(); i++ {
			hash := v.hashes.At(i)
			if hash >= u.unionThetaLong {
				break
			}
			if _, err := u.buffer.hashUpdate(hash); err != nil {
				return err
			}
		}
	case unorderedInput:
		// c bounds the scan by the declared count in case the source holds
		// fewer valid hashes than it claims.
		for i, c := 0, 0; i < v.hashes.Len() && c < v.count; i++ {
			hash := v.hashes.At(i)
			if rejected(hash, u.unionThetaLong) {
				continue
			}
			if _, err := u.buffer.hashUpdate(hash); err != nil {
				return err
			}
			c++
		}
	}

	// bulk insertion may have rebuilt the buffer with a lower theta.
	u.unionThetaLong = min(u.unionThetaLong, u.buffer.thetaLong())
	u.buffer.storage.syncExtraField(u.unionThetaLong)

	return nil
}

// UpdateInt64 adds an integer item directly to the union.
func (u *Union) UpdateInt64(v int64) error {
	return u.update(int64Bytes(v))
}

// UpdateUint64 adds an unsigned integer item directly to the union.
func (u *Union) UpdateUint64(v uint64) error {
	return u.update(int64Bytes(int64(v)))
}

// UpdateFloat64 adds a floating point item directly to the union.
func (u *Union) UpdateFloat64(v float64) error {
	return u.update(float64Bytes(v))
}

// UpdateString adds a string item directly to the union.  The empty string is
// ignored.
func (u *Union) UpdateString(s string) error {
	return u.update([]byte(s))
}

// UpdateBytes adds a byte slice item directly to the union.  An empty slice is
// ignored.
func (u *Union) UpdateBytes(b []byte) error {
	return u.update(b)
}

// UpdateChars adds a UTF-16 code unit sequence directly to the union.
func (u *Union) UpdateChars(c []uint16) error {
	return u.update(charsBytes(c))
}

// UpdateInt32s adds an int32 slice as a single item.
func (u *Union) UpdateInt32s(v []int32) error {
	return u.update(int32sBytes(v))
}

// UpdateInt64s adds an int64 slice as a single item.
func (u *Union) UpdateInt64s(v []int64) error {
	return u.update(int64sBytes(v))
}

// UpdateHash adds a value that has already been hashed with the union's seed.
// Zero and values at or above theta are ignored.
func (u *Union) UpdateHash(hash uint64) error {
	u.initOrPanic()
	if err := u.writable(); err != nil {
		return err
	}
	_, err := u.buffer.hashUpdate(hash)
	return err
}

func (u *Union) update(data []byte) error {
	u.initOrPanic()
	if err := u.writable(); err != nil {
		return err
	}
	return u.buffer.update(data)
}

// Result returns the union as an immutable compact sketch holding at most k
// hashes.  If dst is given, the serialized image is also written to it.
// Result does not change the union.
func (u *Union) Result(ordered bool, dst *Memory) (*CompactSketch, error) {

	u.initOrPanic()

	count := u.buffer.retained()
	k := u.buffer.nominal()
	cache := u.buffer.cache()

	// pull back to k.
	bufferTheta := u.buffer.thetaLong()
	pullBackTheta := bufferTheta
	if count > k {
		pullBackTheta = selectExcludingZeros(cache, count, k+1)
	}

	theta := min(bufferTheta, pullBackTheta, u.unionThetaLong)

	countOut := count
	if theta < bufferTheta {
		countOut = countLessThan(cache, theta)
	}

	hashes := compactCache(cache, countOut, theta, ordered, nil)
	empty := u.buffer.isEmpty() && u.unionEmpty

	return newCompactSketch(hashes, empty, u.buffer.settings.seedHash, theta, ordered, dst)
}

// OrderedResult is Result(true, nil).
func (u *Union) OrderedResult() (*CompactSketch, error) {
	return u.Result(true, nil)
}

// Reset returns the union to its freshly built state.
func (u *Union) Reset() error {

	u.initOrPanic()

	if err := u.writable(); err != nil {
		return err
	}

	if err := u.buffer.reset(); err != nil {
		return err
	}
	u.unionThetaLong = u.buffer.thetaLong()
	u.unionEmpty = u.buffer.isEmpty()

	if mem := u.buffer.storage.memory(); mem != nil {
		insertUnionThetaLong(mem, u.unionThetaLong)
	}

	return nil
}

// ToBytes serializes the union so that HeapifyUnion or WrapUnion can restore
// it.
//
// If the buffer and the union disagree on emptiness, the image is marked
// non-empty and the union adopts that; the union has then been merged with
// something that left no hashes behind, which Result already reports as
// non-empty.
func (u *Union) ToBytes() []byte {

	u.initOrPanic()

	b := u.buffer.toBytes()
	mem := WrapMemory(b)
	insertUnionThetaLong(mem, u.unionThetaLong)

	if u.buffer.isEmpty() != u.unionEmpty {
		setEmptyFlag(mem, false)
		u.unionEmpty = false
		u.logger.Debug("reconciled union empty flag for serialization")
	}

	return b
}

// Theta64 returns the theta the next Result would have before pull back.
func (u *Union) Theta64() uint64 {
	u.initOrPanic()
	return min(u.unionThetaLong, u.buffer.thetaLong())
}

// IsEmpty reports whether nothing has been merged or added.
func (u *Union) IsEmpty() bool {
	u.initOrPanic()
	return u.buffer.isEmpty() && u.unionEmpty
}

// Mode reports which phase of its life the union is in.
func (u *Union) Mode() Mode {
	switch {
	case u.IsEmpty():
		return Empty
	case u.Theta64() < MaxThetaLong:
		return Estimating
	default:
		return Exact
	}
}

// Settings returns the settings of this union.
func (u *Union) Settings() Settings {
	u.initOrPanic()
	return u.buffer.settings.toExternal()
}

// Memory returns the region the union lives in, or nil for a heap union.  A
// MemoryRequestServer may have moved the union since construction.
func (u *Union) Memory() *Memory {
	u.initOrPanic()
	return u.buffer.storage.memory()
}

// IsDirect reports whether the union lives in Memory.
func (u *Union) IsDirect() bool {
	return u.Memory() != nil
}

func (u *Union) writable() error {
	if u.buffer.readOnly() {
		return ErrReadOnly
	}
	return nil
}

// initOrPanic is used to lazily initialize a zero value to an empty Union (in
// the presence of default settings) or to panic if there are no defaults.
func (u *Union) initOrPanic() {

	if u.buffer != nil {
		return
	}

	defaults := getDefaults()
	if defaults == nil {
		panic("attempted operation on empty Union without default settings")
	}

	u.logger = buildOptions(nil).logger
	u.buffer = newHeapBuffer(defaults, FamilyUnion, u.logger)
	u.unionThetaLong = u.buffer.thetaLong()
	u.unionEmpty = u.buffer.isEmpty()
}

// Mode is the phase of a union's life.  A union only moves forward through the
// modes; Reset takes it back to Empty.
type Mode int

const (
	// Empty: nothing merged, theta is at its maximum.
	Empty Mode = iota
	// Exact: every merged hash is retained.
	Exact
	// Estimating: theta has been lowered and the union samples.
	Estimating
)

func (m Mode) String() string {
	switch m {
	case Empty:
		return "empty"
	case Exact:
		return "exact"
	case Estimating:
		return "estimating"
	default:
		return "unknown"
	}
}
