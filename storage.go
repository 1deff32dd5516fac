package theta

import (
	"log/slog"

	"github.com/pkg/errors"
)

// storage holds the state of a hash buffer.  it is implemented once for the Go
// heap and once for caller supplied Memory; the buffer logic above it does not
// know which one it is talking to.
type storage interface {
	slots

	lgNomLongs() int

	thetaLong() uint64
	setThetaLong(theta uint64)

	// retained is the number of valid hashes in the table.
	retained() int
	setRetained(n int)

	empty() bool
	setEmpty(empty bool)

	// cache returns the hash table.  the slice must not be modified; it stays
	// valid across a subsequent newTable call.
	cache() []uint64

	// newTable replaces the table with an empty one of 2^lgArrLongs slots.
	newTable(lgArrLongs int) error

	// syncExtraField records the union theta alongside the buffer and marks
	// the buffer non-empty.  storage owned by the process keeps the union
	// state in the Union itself and ignores the call.
	syncExtraField(unionTheta uint64)

	// memory returns the backing Memory, or nil for heap storage.
	memory() *Memory
}

// heapStorage keeps everything on the Go heap.
type heapStorage struct {
	lgNom   int
	lgArr   int
	table   []uint64
	theta   uint64
	count   int
	isEmpty bool
}

func newHeapStorage(lgNomLongs, lgArrLongs int, theta uint64) *heapStorage {
	return &heapStorage{
		lgNom:   lgNomLongs,
		lgArr:   lgArrLongs,
		table:   make([]uint64, 1<<uint(lgArrLongs)),
		theta:   theta,
		isEmpty: true,
	}
}

func (s *heapStorage) lgArrLongs() int           { return s.lgArr }
func (s *heapStorage) slot(i int) uint64         { return s.table[i] }
func (s *heapStorage) setSlot(i int, v uint64)   { s.table[i] = v }
func (s *heapStorage) lgNomLongs() int           { return s.lgNom }
func (s *heapStorage) thetaLong() uint64         { return s.theta }
func (s *heapStorage) setThetaLong(theta uint64) { s.theta = theta }
func (s *heapStorage) retained() int             { return s.count }
func (s *heapStorage) setRetained(n int)         { s.count = n }
func (s *heapStorage) empty() bool               { return s.isEmpty }
func (s *heapStorage) setEmpty(empty bool)       { s.isEmpty = empty }
func (s *heapStorage) cache() []uint64           { return s.table }
func (s *heapStorage) syncExtraField(uint64)     {}
func (s *heapStorage) memory() *Memory           { return nil }

func (s *heapStorage) newTable(lgArrLongs int) error {
	s.lgArr = lgArrLongs
	s.table = make([]uint64, 1<<uint(lgArrLongs))
	return nil
}

// directStorage keeps the preamble and the table in a Memory so that the
// region is a valid serialized image after every operation.
type directStorage struct {
	mem      *Memory
	preLongs int
	server   MemoryRequestServer
	logger   *slog.Logger
}

func (s *directStorage) tableOffset() int {
	return s.preLongs << 3
}

func (s *directStorage) lgArrLongs() int { return extractLgArrLongs(s.mem) }

func (s *directStorage) slot(i int) uint64 {
	return s.mem.Uint64(s.tableOffset() + i<<3)
}

func (s *directStorage) setSlot(i int, v uint64) {
	s.mem.PutUint64(s.tableOffset()+i<<3, v)
}

func (s *directStorage) lgNomLongs() int           { return extractLgNomLongs(s.mem) }
func (s *directStorage) thetaLong() uint64         { return extractThetaLong(s.mem) }
func (s *directStorage) setThetaLong(theta uint64) { insertThetaLong(s.mem, theta) }
func (s *directStorage) retained() int             { return extractRetained(s.mem) }
func (s *directStorage) setRetained(n int)         { insertRetained(s.mem, n) }
func (s *directStorage) empty() bool               { return isEmptyImage(s.mem) }
func (s *directStorage) memory() *Memory           { return s.mem }

func (s *directStorage) setEmpty(empty bool) {
	if s.empty() != empty {
		setEmptyFlag(s.mem, empty)
	}
}

func (s *directStorage) cache() []uint64 {
	n := 1 << uint(s.lgArrLongs())
	out := make([]uint64, n)
	for i := range out {
		out[i] = s.slot(i)
	}
	return out
}

func (s *directStorage) newTable(lgArrLongs int) error {
	required := s.tableOffset() + 8<<uint(lgArrLongs)

	if required > s.mem.Capacity() {
		if s.server == nil {
			return errors.Wrapf(ErrCapacityExceeded, "need %d bytes but memory holds %d", required, s.mem.Capacity())
		}

		s.logger.Debug("requesting larger memory", "current", s.mem.Capacity(), "required", required)
		mem, err := s.server.Request(s.mem, required)
		if err != nil {
			s.logger.Warn("memory request failed", "required", required, "error", err)
			return errors.Wrap(err, "requesting memory")
		}
		if mem.Capacity() < required || mem.ReadOnly() {
			return errors.Wrapf(ErrCapacityExceeded, "memory server returned %d bytes, need %d", mem.Capacity(), required)
		}
		copy(mem.Bytes(), s.mem.Bytes()[:s.tableOffset()])
		s.mem = mem
	}

	insertLgArrLongs(s.mem, lgArrLongs)
	s.mem.Clear(s.tableOffset(), 8<<uint(lgArrLongs))
	return nil
}

func (s *directStorage) syncExtraField(unionTheta uint64) {
	insertUnionThetaLong(s.mem, unionTheta)
	s.setEmpty(false)
}
