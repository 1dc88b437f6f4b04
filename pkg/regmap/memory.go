package regmap

import (
	"sort"
	"sync"
)

// WriteHook is called for every Write32 on a Memory port with the previous and the
// requested register value. The returned value is what the register holds afterwards,
// which lets a hook model self-clearing or status bits.
type WriteHook func(offset, old, value uint32) uint32

// ReadHook is called for every Read32 on a Memory port. The returned value is both
// stored and returned to the caller.
type ReadHook func(offset, value uint32) uint32

// Memory is an in-memory register region. It is safe for concurrent use.
type Memory struct {
	mu        sync.Mutex
	regs      map[uint32]uint32
	size      uint32
	writeHook WriteHook
	readHook  ReadHook
	reads     int
	writes    int
}

// NewMemory returns an empty register region of the given size in bytes.
// A size of zero leaves the region unbounded.
func NewMemory(size uint32) *Memory {
	return &Memory{
		regs: make(map[uint32]uint32),
		size: size,
	}
}

// Size implements Sized.
func (m *Memory) Size() uint32 {
	if m.size == 0 {
		return ^uint32(0)
	}
	return m.size
}

// SetWriteHook installs the hook called on every write.
func (m *Memory) SetWriteHook(h WriteHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeHook = h
}

// SetReadHook installs the hook called on every read.
func (m *Memory) SetReadHook(h ReadHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readHook = h
}

// Read32 implements Port.
func (m *Memory) Read32(offset uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	v := m.regs[offset]
	if m.readHook != nil {
		v = m.readHook(offset, v)
		m.regs[offset] = v
	}
	return v
}

// Write32 implements Port.
func (m *Memory) Write32(offset, value uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.writeHook != nil {
		value = m.writeHook(offset, m.regs[offset], value)
	}
	m.regs[offset] = value
}

// Poke stores a value without running hooks or counting an access. It stands in for
// the hardware changing a register on its own.
func (m *Memory) Poke(offset, value uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[offset] = value
}

// Peek returns a value without running hooks or counting an access.
func (m *Memory) Peek(offset uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[offset]
}

// Accesses returns the number of reads and writes seen so far.
func (m *Memory) Accesses() (reads, writes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads, m.writes
}

// Offsets returns the offsets holding a value, in ascending order.
func (m *Memory) Offsets() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	offs := make([]uint32, 0, len(m.regs))
	for off := range m.regs {
		offs = append(offs, off)
	}
	sort.Slice(offs, func(i, j int) bool { return offs[i] < offs[j] })
	return offs
}
