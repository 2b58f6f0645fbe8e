// Package coalescer groups per-lane memory accesses into cache-line-aligned
// requests (C4).
package coalescer

import (
	"sort"

	"github.com/sarchlab/simtsim/emu"
)

// Request is one per-lane memory access fed to Coalesce.
type Request struct {
	Address    uint32
	WriteData  uint32
	ByteEnable uint8
}

// Group is a coalesced request: one cache-line-aligned transaction formed
// from every lane whose address fell in the same line.
type Group struct {
	LineAddress uint32
	ByteMask    uint8
	LaneMap     emu.LaneMask
	IsWrite     bool
	WriteData   emu.LaneValues
}

// Coalescer partitions active lanes by line address (C4, SPEC_FULL.md
// §4.4). LineSize must be a power of two.
type Coalescer struct {
	LineSize int
}

// New creates a Coalescer for the given cache line size.
func New(lineSize int) *Coalescer {
	return &Coalescer{LineSize: lineSize}
}

func (c *Coalescer) lineOf(addr uint32) uint32 {
	shift := uint(log2(c.LineSize))
	return addr >> shift
}

func log2(n int) int {
	s := 0
	for n > 1 {
		n >>= 1
		s++
	}
	return s
}

// Coalesce partitions the requests active in mask into groups ordered by
// ascending line address, per §4.4's determinism requirement. reqs is
// indexed by lane; only lanes set in mask are consulted.
func (c *Coalescer) Coalesce(mask emu.LaneMask, reqs [emu.LanesPerWarp]Request, isWrite bool) []Group {
	byLine := make(map[uint32]*Group)

	for lane := 0; lane < emu.LanesPerWarp; lane++ {
		if !mask.Test(lane) {
			continue
		}
		req := reqs[lane]
		line := c.lineOf(req.Address)

		g, ok := byLine[line]
		if !ok {
			g = &Group{LineAddress: line * uint32(c.LineSize), IsWrite: isWrite}
			byLine[line] = g
		}
		g.LaneMap = g.LaneMap.Set(lane)
		if isWrite {
			g.ByteMask |= req.ByteEnable
			g.WriteData[lane] = req.WriteData
		}
	}

	lines := make([]uint32, 0, len(byLine))
	for line := range byLine {
		lines = append(lines, line)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i] < lines[j] })

	groups := make([]Group, 0, len(lines))
	for _, line := range lines {
		groups = append(groups, *byLine[line])
	}
	return groups
}
