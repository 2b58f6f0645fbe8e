// Package cache implements the set-associative, write-back/write-allocate
// cache (C3) on top of Akita's cache directory.
package cache

import (
	"github.com/sarchlab/simtsim/emu"
)

// MemoryBacking adapts emu.Memory (C2) to the BackingStore interface the
// cache refills from and writes back to.
type MemoryBacking struct {
	memory *emu.Memory
}

// NewMemoryBacking creates a new MemoryBacking adapter over memory.
func NewMemoryBacking(memory *emu.Memory) *MemoryBacking {
	return &MemoryBacking{memory: memory}
}

// Read fetches size bytes from the backing memory at addr.
func (m *MemoryBacking) Read(addr uint32, size int) []byte {
	return m.memory.ReadBlock(addr, size)
}

// Write stores data to the backing memory at addr.
func (m *MemoryBacking) Write(addr uint32, data []byte) {
	m.memory.WriteBlock(addr, data)
}
