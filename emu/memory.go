package emu

import "slices"

// Cell is one stored memory word.
type Cell struct {
	Addr  uint64 `json:"addr"`
	Value uint64 `json:"value"`
}

// Memory is a sparse, word-addressed data memory. Unwritten addresses read
// as zero. No alignment is enforced.
type Memory struct {
	data map[uint64]uint64
}

// NewMemory creates an empty memory.
func NewMemory() *Memory {
	return &Memory{data: make(map[uint64]uint64)}
}

// Load returns the value stored at addr, or 0 if addr was never written.
func (m *Memory) Load(addr uint64) uint64 {
	return m.data[addr]
}

// Store writes value at addr, overwriting any previous value.
func (m *Memory) Store(addr, value uint64) {
	if m.data == nil {
		m.data = make(map[uint64]uint64)
	}
	m.data[addr] = value
}

// Len returns the number of written addresses.
func (m *Memory) Len() int {
	return len(m.data)
}

// Dump returns every written cell in ascending address order.
func (m *Memory) Dump() []Cell {
	cells := make([]Cell, 0, len(m.data))
	for addr, value := range m.data {
		cells = append(cells, Cell{Addr: addr, Value: value})
	}

	slices.SortFunc(cells, func(a, b Cell) int {
		switch {
		case a.Addr < b.Addr:
			return -1
		case a.Addr > b.Addr:
			return 1
		default:
			return 0
		}
	})

	return cells
}

// Reset clears all stored values.
func (m *Memory) Reset() {
	m.data = make(map[uint64]uint64)
}
