package theta

import (
	"encoding/binary"
	"math"
)

// Memory is a byte addressable region that sketches can live in instead of
// the Go heap.  All multi-byte values are little endian.  Memory is usually
// owned by the caller: a direct Union writes its state through to it so that
// the bytes are a valid serialized union at all times.
type Memory struct {
	buf      []byte
	readOnly bool
}

// NewMemory allocates a zeroed region of size bytes.
func NewMemory(size int) *Memory {
	return &Memory{buf: make([]byte, size)}
}

// WrapMemory wraps b without copying it.  Writes through the returned Memory
// are visible in b.
func WrapMemory(b []byte) *Memory {
	return &Memory{buf: b}
}

// WrapReadOnlyMemory wraps b without copying it.  Mutating operations on
// sketches backed by the returned Memory fail with ErrReadOnly.
func WrapReadOnlyMemory(b []byte) *Memory {
	return &Memory{buf: b, readOnly: true}
}

// Capacity returns the size of the region in bytes.
func (m *Memory) Capacity() int {
	return len(m.buf)
}

// ReadOnly reports whether the region may be written.
func (m *Memory) ReadOnly() bool {
	return m.readOnly
}

// Bytes returns the backing slice.
func (m *Memory) Bytes() []byte {
	return m.buf
}

func (m *Memory) Byte(offset int) byte {
	return m.buf[offset]
}

func (m *Memory) Uint16(offset int) uint16 {
	return binary.LittleEndian.Uint16(m.buf[offset:])
}

func (m *Memory) Uint32(offset int) uint32 {
	return binary.LittleEndian.Uint32(m.buf[offset:])
}

func (m *Memory) Uint64(offset int) uint64 {
	return binary.LittleEndian.Uint64(m.buf[offset:])
}

func (m *Memory) Float32(offset int) float32 {
	return math.Float32frombits(m.Uint32(offset))
}

func (m *Memory) PutByte(offset int, v byte) {
	m.checkWritable()
	m.buf[offset] = v
}

func (m *Memory) PutUint16(offset int, v uint16) {
	m.checkWritable()
	binary.LittleEndian.PutUint16(m.buf[offset:], v)
}

func (m *Memory) PutUint32(offset int, v uint32) {
	m.checkWritable()
	binary.LittleEndian.PutUint32(m.buf[offset:], v)
}

func (m *Memory) PutUint64(offset int, v uint64) {
	m.checkWritable()
	binary.LittleEndian.PutUint64(m.buf[offset:], v)
}

func (m *Memory) PutFloat32(offset int, v float32) {
	m.PutUint32(offset, math.Float32bits(v))
}

// Clear zeroes length bytes starting at offset.
func (m *Memory) Clear(offset, length int) {
	m.checkWritable()
	clear(m.buf[offset : offset+length])
}

// checkWritable panics on a write to read-only memory.  exported entry points
// check ReadOnly up front and return ErrReadOnly, so reaching this is a bug.
func (m *Memory) checkWritable() {
	if m.readOnly {
		panic("attempted write to read-only Memory")
	}
}

// MemoryRequestServer supplies larger regions when a direct sketch outgrows
// the Memory it was given.
type MemoryRequestServer interface {
	// Request returns a writable region of at least capacityBytes.  current is
	// the region being outgrown; its contents are copied by the caller.
	Request(current *Memory, capacityBytes int) (*Memory, error)
}

// HeapMemoryRequestServer satisfies requests by allocating on the Go heap.
type HeapMemoryRequestServer struct{}

func (HeapMemoryRequestServer) Request(_ *Memory, capacityBytes int) (*Memory, error) {
	return NewMemory(capacityBytes), nil
}
