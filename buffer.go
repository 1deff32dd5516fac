package theta

import (
	"log/slog"

	"github.com/pkg/errors"
)

const (
	// the table grows while it is at most half full...
	resizeThreshold = 0.5
	// ...and, once at full size, is rebuilt when 15/16 full.
	rebuildThreshold = 15.0 / 16.0
)

// hashBuffer is a QuickSelect hash table of the hashes below theta.  It backs
// both UpdateSketch and Union.  As a union workspace it intentionally holds up
// to ~1.875k entries between rebuilds; Union.Result pulls that back to k.
type hashBuffer struct {
	settings *settings
	family   Family
	storage  storage
	logger   *slog.Logger
}

func preLongsFor(family Family) int {
	if family == FamilyUnion {
		return unionPreLongs
	}
	return updatePreLongs
}

func newHeapBuffer(s *settings, family Family, logger *slog.Logger) *hashBuffer {
	return &hashBuffer{
		settings: s,
		family:   family,
		storage:  newHeapStorage(s.lgNomLongs, s.startLgArrLongs, s.startThetaLong),
		logger:   logger,
	}
}

// newDirectBuffer initializes an empty buffer inside mem.  Any previous
// content of mem is discarded.
func newDirectBuffer(s *settings, family Family, mem *Memory, server MemoryRequestServer, logger *slog.Logger) (*hashBuffer, error) {
	if mem.ReadOnly() {
		return nil, ErrReadOnly
	}

	preLongs := preLongsFor(family)
	required := preLongs<<3 + 8<<uint(s.startLgArrLongs)
	if mem.Capacity() < required {
		return nil, errors.Wrapf(ErrCapacityExceeded, "need at least %d bytes but memory holds %d", required, mem.Capacity())
	}

	mem.Clear(0, required)
	insertPreamble(mem, preLongs, s.rf.lg(), family, s.lgNomLongs, s.startLgArrLongs, flagEmpty, s.seedHash)
	insertRetained(mem, 0)
	insertP(mem, s.p)
	insertThetaLong(mem, s.startThetaLong)
	if family == FamilyUnion {
		insertUnionThetaLong(mem, s.startThetaLong)
	}

	return &hashBuffer{
		settings: s,
		family:   family,
		storage:  &directStorage{mem: mem, preLongs: preLongs, server: server, logger: logger},
		logger:   logger,
	}, nil
}

// readBufferSettings validates the preamble of a hash-table form image of the
// given family and returns the settings it was built with.
func readBufferSettings(mem *Memory, family Family, seed uint64) (*settings, error) {

	preLongs := preLongsFor(family)
	if mem.Capacity() < preLongs<<3 {
		return nil, ErrInsufficientBytes
	}

	if v := extractSerVer(mem); v != serVer {
		return nil, errors.Wrapf(ErrUnrecognizedFormat, "expected serial version %d but got %d", serVer, v)
	}

	if f := extractFamily(mem); f != family {
		return nil, errors.Wrapf(ErrInvalidFamily, "expected %s but got %s", family, f)
	}

	if p := extractPreLongs(mem); p != preLongs {
		return nil, errors.Wrapf(ErrCorruptImage, "expected %d preamble longs but got %d", preLongs, p)
	}

	if extractFlags(mem)&(flagCompact|flagBigEndian) != 0 {
		return nil, errors.Wrap(ErrCorruptImage, "hash-table form must be little endian and not compact")
	}

	settings, err := Settings{
		LgNomLongs:   extractLgNomLongs(mem),
		Seed:         seed,
		P:            extractP(mem),
		ResizeFactor: ResizeFactor(extractLgResizeFactor(mem)),
	}.toInternal()
	if err != nil {
		return nil, err
	}

	if err := checkSeedHashes(settings.seedHash, extractSeedHash(mem)); err != nil {
		return nil, err
	}

	lgArrLongs := extractLgArrLongs(mem)
	if lgArrLongs < minLgArrLongs || lgArrLongs > settings.lgNomLongs+1 {
		return nil, errors.Wrapf(ErrCorruptImage, "table size 2^%d out of range", lgArrLongs)
	}

	if !holdsLongs(mem, preLongs, 1<<uint(lgArrLongs)) {
		return nil, ErrInsufficientBytes
	}

	// rebuilds and pull back select among exactly the retained hashes.
	theta := extractThetaLong(mem)
	valid := 0
	for i := 0; i < 1<<uint(lgArrLongs); i++ {
		if !rejected(mem.Uint64((preLongs+i)<<3), theta) {
			valid++
		}
	}
	if count := extractRetained(mem); count != valid {
		return nil, errors.Wrapf(ErrCorruptImage, "retained count %d but table holds %d hashes below theta", count, valid)
	}
	if valid == 1<<uint(lgArrLongs) {
		return nil, errors.Wrapf(ErrCorruptImage, "table of 2^%d slots has no free slot", lgArrLongs)
	}

	return settings, nil
}

// heapifyBuffer copies a hash-table form image onto the heap.
func heapifyBuffer(mem *Memory, family Family, seed uint64, logger *slog.Logger) (*hashBuffer, error) {

	s, err := readBufferSettings(mem, family, seed)
	if err != nil {
		return nil, err
	}

	preLongs := preLongsFor(family)
	lgArrLongs := extractLgArrLongs(mem)
	storage := newHeapStorage(s.lgNomLongs, lgArrLongs, extractThetaLong(mem))
	storage.count = extractRetained(mem)
	storage.isEmpty = isEmptyImage(mem)
	for i := range storage.table {
		storage.table[i] = mem.Uint64((preLongs + i) << 3)
	}

	return &hashBuffer{settings: s, family: family, storage: storage, logger: logger}, nil
}

// wrapBuffer operates on a hash-table form image in place.
func wrapBuffer(mem *Memory, family Family, seed uint64, server MemoryRequestServer, logger *slog.Logger) (*hashBuffer, error) {

	s, err := readBufferSettings(mem, family, seed)
	if err != nil {
		return nil, err
	}

	return &hashBuffer{
		settings: s,
		family:   family,
		storage:  &directStorage{mem: mem, preLongs: preLongsFor(family), server: server, logger: logger},
		logger:   logger,
	}, nil
}

func (b *hashBuffer) thetaLong() uint64 {
	return b.storage.thetaLong()
}

func (b *hashBuffer) retained() int {
	return b.storage.retained()
}

// nominal returns k.
func (b *hashBuffer) nominal() int {
	return 1 << uint(b.settings.lgNomLongs)
}

func (b *hashBuffer) isEmpty() bool {
	return b.storage.empty()
}

func (b *hashBuffer) cache() []uint64 {
	return b.storage.cache()
}

func (b *hashBuffer) readOnly() bool {
	mem := b.storage.memory()
	return mem != nil && mem.ReadOnly()
}

// update hashes data with the configured seed and inserts the result.  empty
// input is ignored.
func (b *hashBuffer) update(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	_, err := b.hashUpdate(hashBytes(data, b.settings.seed))
	return err
}

// hashUpdate inserts an already hashed value.  It reports whether the hash was
// new and below theta.
func (b *hashBuffer) hashUpdate(hash uint64) (bool, error) {
	s := b.storage
	s.setEmpty(false)

	if rejected(hash, s.thetaLong()) {
		return false, nil
	}

	if hashSearchOrInsert(s, hash) {
		return false, nil
	}

	s.setRetained(s.retained() + 1)

	if s.retained() > hashTableThreshold(s.lgNomLongs(), s.lgArrLongs()) {
		if s.lgArrLongs() <= s.lgNomLongs() {
			return true, b.resize()
		}
		return true, b.quickSelectAndRebuild()
	}

	return true, nil
}

// resize grows the table by the resize factor, but never past 2k slots.
func (b *hashBuffer) resize() error {
	s := b.storage
	lgArrLongs := s.lgArrLongs()
	lgDelta := max(min(b.settings.rf.lg(), s.lgNomLongs()+1-lgArrLongs), 1)

	old := s.cache()
	if err := s.newTable(lgArrLongs + lgDelta); err != nil {
		return err
	}
	for _, v := range old {
		if v != 0 {
			hashInsertOnly(s, v)
		}
	}

	b.logger.Debug("resized hash table", "family", b.family, "from", lgArrLongs, "to", lgArrLongs+lgDelta, "retained", s.retained())
	return nil
}

// quickSelectAndRebuild lowers theta to the (k+1)-th smallest hash and drops
// everything at or above it, leaving exactly k entries.
func (b *hashBuffer) quickSelectAndRebuild() error {
	s := b.storage
	pivot := b.nominal() + 1
	old := s.cache()
	theta := selectExcludingZeros(old, s.retained(), pivot)

	if err := s.newTable(s.lgArrLongs()); err != nil {
		return err
	}
	s.setThetaLong(theta)

	count := 0
	for _, v := range old {
		if !rejected(v, theta) {
			hashInsertOnly(s, v)
			count++
		}
	}
	s.setRetained(count)

	b.logger.Debug("rebuilt hash table", "family", b.family, "theta", theta, "retained", count)
	return nil
}

// rebuild pulls a buffer holding more than k entries back to k.
func (b *hashBuffer) rebuild() error {
	if b.retained() > b.nominal() {
		return b.quickSelectAndRebuild()
	}
	return nil
}

// reset returns the buffer to the state of a freshly built one.
func (b *hashBuffer) reset() error {
	s := b.storage
	if err := s.newTable(b.settings.startLgArrLongs); err != nil {
		return err
	}
	s.setRetained(0)
	s.setThetaLong(b.settings.startThetaLong)
	s.setEmpty(true)
	return nil
}

// toBytes serializes the buffer in hash-table form.  A union image has room
// for the union theta, which the caller fills in.
func (b *hashBuffer) toBytes() []byte {
	s := b.storage
	preLongs := preLongsFor(b.family)
	lgArrLongs := s.lgArrLongs()

	mem := NewMemory(preLongs<<3 + 8<<uint(lgArrLongs))

	var flags byte
	if s.empty() {
		flags |= flagEmpty
	}

	insertPreamble(mem, preLongs, b.settings.rf.lg(), b.family, b.settings.lgNomLongs, lgArrLongs, flags, b.settings.seedHash)
	insertRetained(mem, s.retained())
	insertP(mem, b.settings.p)
	insertThetaLong(mem, s.thetaLong())

	for i, v := range s.cache() {
		mem.PutUint64((preLongs+i)<<3, v)
	}

	return mem.Bytes()
}

// hashTableThreshold is the retained count above which the table must grow or
// be rebuilt.
func hashTableThreshold(lgNomLongs, lgArrLongs int) int {
	fraction := resizeThreshold
	if lgArrLongs > lgNomLongs {
		fraction = rebuildThreshold
	}
	return int(fraction * float64(int(1)<<uint(lgArrLongs)))
}
