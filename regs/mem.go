package regs

import "sync"

// Mem is a Bus backed by ordinary memory. Registers read back
// exactly what was stored; there are no side effects.
type Mem struct {
	mu    sync.Mutex
	words map[uint32]uint32
}

// NewMem returns an empty register block. Optional init pairs
// preload registers with their reset values.
func NewMem(init map[uint32]uint32) *Mem {
	m := &Mem{words: make(map[uint32]uint32, len(init))}
	for off, v := range init {
		m.words[off] = v
	}
	return m
}

func (m *Mem) Load(off uint32) uint32 {
	m.mu.Lock()
	v := m.words[off]
	m.mu.Unlock()
	return v
}

func (m *Mem) Store(off uint32, v uint32) {
	m.mu.Lock()
	if m.words == nil {
		m.words = make(map[uint32]uint32)
	}
	m.words[off] = v
	m.mu.Unlock()
}

// Offsets returns the offsets that have been written, in no
// particular order.
func (m *Mem) Offsets() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	offs := make([]uint32, 0, len(m.words))
	for off := range m.words {
		offs = append(offs, off)
	}
	return offs
}
