// Package emu provides the functional core of the simulator: the register
// file, backing memory, and lane-parallel ALU/branch evaluation that the
// timing layer drives one warp-cycle at a time.
package emu

// LanesPerWarp is the default SIMT lane count (threads_per_warp).
const LanesPerWarp = 32

// LaneMask is a per-warp bitmap of lanes, one bit per lane.
type LaneMask uint32

// FullMask returns a mask with the low n bits set.
func FullMask(n int) LaneMask {
	if n >= 32 {
		return ^LaneMask(0)
	}
	return LaneMask(1)<<uint(n) - 1
}

// Test reports whether lane is set in m.
func (m LaneMask) Test(lane int) bool {
	return m&(1<<uint(lane)) != 0
}

// Set returns m with lane set.
func (m LaneMask) Set(lane int) LaneMask {
	return m | (1 << uint(lane))
}

// Count returns the number of set lanes.
func (m LaneMask) Count() int {
	n := 0
	for m != 0 {
		n += int(m & 1)
		m >>= 1
	}
	return n
}

// LaneValues holds one 32-bit value per lane of a warp.
type LaneValues [LanesPerWarp]uint32

// RegFile is the per-warp, per-lane general register file (C1). Register 0
// is hardwired to zero on every lane and every write to it is discarded.
// A per-(warp, reg) busy bit implements the scoreboard described in
// SPEC_FULL.md §4.1: a write sets the bit, the back-end that produced the
// value clears it, and the scheduler stalls any warp whose next
// instruction reads a still-busy register.
type RegFile struct {
	numWarps int
	numRegs  int
	data     [][LanesPerWarp]uint32 // indexed by warp_id*numRegs + reg_id
	busy     []bool
}

// NewRegFile creates a register file sized for numWarps warps of
// LanesPerWarp lanes each, with numRegs general registers per warp
// (register 0 included in the count but never stored).
func NewRegFile(numWarps, numRegs int) *RegFile {
	return &RegFile{
		numWarps: numWarps,
		numRegs:  numRegs,
		data:     make([][LanesPerWarp]uint32, numWarps*numRegs),
		busy:     make([]bool, numWarps*numRegs),
	}
}

func (r *RegFile) index(warpID int, reg uint8) int {
	return warpID*r.numRegs + int(reg)
}

// Read returns the per-lane values stored at (warpID, reg). Register 0
// always reads as all zero.
func (r *RegFile) Read(warpID int, reg uint8) LaneValues {
	if reg == 0 {
		return LaneValues{}
	}
	return r.data[r.index(warpID, reg)]
}

// ReadLane returns a single lane's value at (warpID, reg, lane).
func (r *RegFile) ReadLane(warpID int, reg uint8, lane int) uint32 {
	if reg == 0 {
		return 0
	}
	return r.data[r.index(warpID, reg)][lane]
}

// Write commits values to (warpID, reg) for exactly the lanes set in mask;
// other lanes keep their prior value. Writes to register 0 are silently
// discarded. The write sets the register's busy bit; callers that produce
// the value synchronously (e.g. the ALU) are expected to clear it
// immediately via ClearBusy once the result is visible.
func (r *RegFile) Write(warpID int, reg uint8, mask LaneMask, values LaneValues) {
	if reg == 0 {
		return
	}
	idx := r.index(warpID, reg)
	cur := &r.data[idx]
	for lane := 0; lane < LanesPerWarp; lane++ {
		if mask.Test(lane) {
			cur[lane] = values[lane]
		}
	}
	r.busy[idx] = true
}

// SetBusy marks (warpID, reg) busy without writing data, used when a
// back-end accepts a request but will not produce the result until a
// later cycle (e.g. a cache miss).
func (r *RegFile) SetBusy(warpID int, reg uint8) {
	if reg == 0 {
		return
	}
	r.busy[r.index(warpID, reg)] = true
}

// ClearBusy clears the scoreboard bit for (warpID, reg).
func (r *RegFile) ClearBusy(warpID int, reg uint8) {
	if reg == 0 {
		return
	}
	r.busy[r.index(warpID, reg)] = false
}

// IsBusy reports whether (warpID, reg) has an in-flight write.
func (r *RegFile) IsBusy(warpID int, reg uint8) bool {
	if reg == 0 {
		return false
	}
	return r.busy[r.index(warpID, reg)]
}
