// Package barrier implements the barrier controller (C7): a table of
// in-flight barriers keyed by (barrier_id, block_id), each tracking the
// set of warps that have arrived against the set expected to.
package barrier

import (
	"github.com/sarchlab/simtsim/emu"
)

// Key identifies one barrier instance within one thread block.
type Key struct {
	BarrierID uint32
	BlockID   uint32
}

// entry is one barrier's state while warps are arriving.
type entry struct {
	expected    emu.LaneMask
	arrived     emu.LaneMask
	waitCycles  uint64
	firstArrive uint64
}

// Controller is the barrier table (C7).
type Controller struct {
	maxEntries int
	table      map[Key]*entry
}

// New creates a Controller with room for maxEntries simultaneously
// in-flight barriers. Exceeding it fails with BarrierTableFull.
func New(maxEntries int) *Controller {
	return &Controller{maxEntries: maxEntries, table: make(map[Key]*entry)}
}

// Arrive records that the warp identified by laneBit within key's barrier
// has reached it, expecting participants from expectedMask. Arrive is
// idempotent across the warps accumulating toward the same key: the
// first caller for a fresh key establishes expectedMask, and later
// callers merge their bit into the arrived set.
func (c *Controller) Arrive(key Key, laneBit emu.LaneMask, expectedMask emu.LaneMask, cycle uint64) error {
	e, ok := c.table[key]
	if !ok {
		if len(c.table) >= c.maxEntries {
			return emu.NewFault(emu.FaultBarrierTableFull, "barrier table exhausted")
		}
		e = &entry{expected: expectedMask, firstArrive: cycle}
		c.table[key] = e
	}
	e.arrived |= laneBit
	return nil
}

// Released reports whether key's barrier has every expected participant
// arrived. Once released, the entry is removed from the table so the
// (barrier_id, block_id) pair can be reused by a subsequent iteration.
func (c *Controller) Released(key Key) bool {
	e, ok := c.table[key]
	if !ok {
		return false
	}
	if e.arrived&e.expected != e.expected {
		return false
	}
	delete(c.table, key)
	return true
}

// Tick charges one stall cycle to every barrier still waiting, for the
// wait_cycles statistic.
func (c *Controller) Tick() {
	for _, e := range c.table {
		e.waitCycles++
	}
}

// InFlight returns the number of barriers currently accumulating arrivals.
func (c *Controller) InFlight() int {
	return len(c.table)
}

// WaitCycles returns how many cycles key's barrier has been waiting, or 0
// if it is not currently tracked.
func (c *Controller) WaitCycles(key Key) uint64 {
	e, ok := c.table[key]
	if !ok {
		return 0
	}
	return e.waitCycles
}
