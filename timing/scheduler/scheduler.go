// Package scheduler implements the warp scheduler (C10): round-robin
// selection over a pointer gated by the register-file scoreboard, barrier
// state, and branch-resolution stall penalties.
package scheduler

import "github.com/sarchlab/simtsim/emu"

// DefaultBranchPenalty is the stall charged to a warp after it resolves a
// conditional (non-BrALL) branch, per SPEC_FULL.md §4.10.
const DefaultBranchPenalty = 3

// SourceRegs is the pair of general-purpose source registers the warp's
// next instruction will read; a zero entry means that operand slot is
// unused (register 0 is hardwired zero and is never busy).
type SourceRegs [2]uint8

// Scheduler is the round-robin warp scheduler (C10).
type Scheduler struct {
	warps         []*emu.Warp
	pointer       int
	branchPenalty int
	stallCycles   []int
}

// New creates a Scheduler over warps (in a fixed, stable order) with the
// given branch-resolution stall penalty in cycles.
func New(warps []*emu.Warp, branchPenalty int) *Scheduler {
	return &Scheduler{
		warps:         warps,
		branchPenalty: branchPenalty,
		stallCycles:   make([]int, len(warps)),
	}
}

// StallForBranch charges warp index idx the scheduler's branch penalty in
// issue-stall cycles. The driver calls this after resolving any
// conditional (non-BrALL) branch, whether or not it redirected PC.
func (s *Scheduler) StallForBranch(idx int) {
	s.stallCycles[idx] = s.branchPenalty
}

// Tick decrements every warp's remaining branch-penalty stall by one,
// called once per simulated cycle regardless of whether a warp issued.
func (s *Scheduler) Tick() {
	for i := range s.stallCycles {
		if s.stallCycles[i] > 0 {
			s.stallCycles[i]--
		}
	}
}

// Next scans warps starting from the round-robin pointer in ascending
// index order, skipping any that are Finished, WaitingBarrier, under a
// branch-penalty stall, or whose next instruction (per srcRegs) reads a
// register the scoreboard marks busy. It returns the first eligible warp
// and advances the pointer past it, or nil if none is eligible this cycle.
func (s *Scheduler) Next(regFile *emu.RegFile, srcRegs func(w *emu.Warp) SourceRegs) *emu.Warp {
	n := len(s.warps)
	for i := 0; i < n; i++ {
		idx := (s.pointer + i) % n
		w := s.warps[idx]

		if w.State == emu.Finished || w.State == emu.WaitingBarrier {
			continue
		}
		if s.stallCycles[idx] > 0 {
			continue
		}

		regs := srcRegs(w)
		if (regs[0] != 0 && regFile.IsBusy(w.ID, regs[0])) ||
			(regs[1] != 0 && regFile.IsBusy(w.ID, regs[1])) {
			continue
		}

		s.pointer = (idx + 1) % n
		return w
	}
	return nil
}
