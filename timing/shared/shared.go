// Package shared implements the banked shared-memory scratchpad (C5) with
// word-interleaved banking and bank-conflict serialization.
package shared

import (
	"fmt"
	"sort"

	"github.com/sarchlab/simtsim/emu"
)

// LaneRequest is one lane's participation in a shared-memory access.
type LaneRequest struct {
	WordIndex  uint32
	Data       uint32
	ByteEnable uint8
}

// AccessResult reports the outcome of one shared-memory request: the data
// read back per lane (for reads) and the number of cycles consumed.
type AccessResult struct {
	ReadData      emu.LaneValues
	Cycles        int
	BankConflicts int
}

// Memory is the banked scratchpad of SPEC_FULL.md §4.5: size bytes,
// num_banks banks, word-interleaved (bank = word_index mod num_banks).
type Memory struct {
	numBanks int
	words    []uint32
}

// New creates a shared memory of the given size in bytes and bank count.
// numBanks must be a power of two.
func New(sizeBytes, numBanks int) *Memory {
	return &Memory{
		numBanks: numBanks,
		words:    make([]uint32, sizeBytes/4),
	}
}

func (m *Memory) bank(wordIndex uint32) int {
	return int(wordIndex) % m.numBanks
}

// Size returns the capacity in bytes.
func (m *Memory) Size() int {
	return len(m.words) * 4
}

// Access performs one cycle's worth of arbitration for mask's lanes
// against reqs, serializing bank conflicts into the minimum number of
// conflict-free rounds per §4.5's state machine
// (Idle → Arbitrate → BankConflict* → Access → Broadcast → Idle).
// A word index at or beyond the scratchpad's capacity faults
// InvalidAddress rather than accessing out of bounds.
func (m *Memory) Access(mask emu.LaneMask, reqs [emu.LanesPerWarp]LaneRequest, isWrite bool) (AccessResult, error) {
	var result AccessResult

	for lane := 0; lane < emu.LanesPerWarp; lane++ {
		if !mask.Test(lane) {
			continue
		}
		if int(reqs[lane].WordIndex) >= len(m.words) {
			return AccessResult{}, emu.NewFault(emu.FaultInvalidAddress,
				fmt.Sprintf("shared memory access at word index %d exceeds capacity %d", reqs[lane].WordIndex, len(m.words)))
		}
	}

	remaining := mask
	for remaining != 0 {
		round, conflicted := m.planRound(remaining, reqs)
		m.applyRound(round, reqs, isWrite, &result)
		result.Cycles++
		if conflicted {
			result.BankConflicts++
		}
		remaining &^= round
	}

	return result, nil
}

// planRound selects, for each bank, one word index to service this round
// (the lowest active lane's word index in that bank), and returns the set
// of lanes whose access matches that word index — i.e. the conflict-free
// subset serviceable in one cycle — plus whether any bank needed more than
// one round (a genuine conflict, not just multiple broadcasting lanes).
func (m *Memory) planRound(remaining emu.LaneMask, reqs [emu.LanesPerWarp]LaneRequest) (emu.LaneMask, bool) {
	bankWord := make(map[int]uint32)
	lanesByBank := make(map[int][]int)

	for lane := 0; lane < emu.LanesPerWarp; lane++ {
		if !remaining.Test(lane) {
			continue
		}
		b := m.bank(reqs[lane].WordIndex)
		lanesByBank[b] = append(lanesByBank[b], lane)
	}

	banks := make([]int, 0, len(lanesByBank))
	for b := range lanesByBank {
		banks = append(banks, b)
	}
	sort.Ints(banks)

	var round emu.LaneMask
	conflicted := false
	for _, b := range banks {
		lanes := lanesByBank[b]
		target := reqs[lanes[0]].WordIndex
		bankWord[b] = target
		for _, lane := range lanes {
			if reqs[lane].WordIndex == target {
				round = round.Set(lane)
			}
		}
		if len(lanes) > 1 {
			for _, lane := range lanes {
				if reqs[lane].WordIndex != target {
					conflicted = true
					break
				}
			}
		}
	}
	return round, conflicted
}

func (m *Memory) applyRound(round emu.LaneMask, reqs [emu.LanesPerWarp]LaneRequest, isWrite bool, result *AccessResult) {
	for lane := 0; lane < emu.LanesPerWarp; lane++ {
		if !round.Test(lane) {
			continue
		}
		idx := reqs[lane].WordIndex
		if isWrite {
			m.writeWord(idx, reqs[lane].Data, reqs[lane].ByteEnable)
		} else {
			result.ReadData[lane] = m.words[idx]
		}
	}
}

func (m *Memory) writeWord(idx uint32, data uint32, byteEnable uint8) {
	if byteEnable == 0xF {
		m.words[idx] = data
		return
	}
	cur := m.words[idx]
	for i := 0; i < 4; i++ {
		if byteEnable&(1<<uint(i)) != 0 {
			shift := uint(i * 8)
			cur = (cur &^ (0xFF << shift)) | (data & (0xFF << shift))
		}
	}
	m.words[idx] = cur
}
