package emu

import "github.com/sarchlab/simtsim/insts"

// BranchUnit evaluates branch conditions per lane and resolves the warp's
// divergence/reconvergence per SPEC_FULL.md §4.9.
type BranchUnit struct{}

// NewBranchUnit creates a new BranchUnit. Like ALU it is stateless.
func NewBranchUnit() *BranchUnit {
	return &BranchUnit{}
}

// ConditionMask evaluates cond against src1/src2 for every lane in
// activeMask, returning the subset of activeMask for which the condition
// holds.
func (b *BranchUnit) ConditionMask(cond insts.BranchCond, activeMask LaneMask, src1, src2 LaneValues) LaneMask {
	if cond == insts.BrALL {
		return activeMask
	}
	var taken LaneMask
	for lane := 0; lane < LanesPerWarp; lane++ {
		if !activeMask.Test(lane) {
			continue
		}
		if b.evalLane(cond, int32(src1[lane]), int32(src2[lane])) {
			taken = taken.Set(lane)
		}
	}
	return taken
}

func (b *BranchUnit) evalLane(cond insts.BranchCond, x, y int32) bool {
	switch cond {
	case insts.BrEQ:
		return x == y
	case insts.BrNE:
		return x != y
	case insts.BrLT:
		return x < y
	case insts.BrGE:
		return x >= y
	case insts.BrLTU:
		return uint32(x) < uint32(y)
	case insts.BrGEU:
		return uint32(x) >= uint32(y)
	default:
		return false
	}
}

// Resolve applies a decoded branch to warp, per §4.9: an all-lanes branch
// simply retargets the PC; a no-lanes branch falls through; otherwise the
// warp diverges. Since instruction layout, not taken/not-taken polarity,
// determines which side can safely run without revisiting the other
// side's code, whichever of Target/fallthroughPC is lower runs now and
// the other side is parked on the divergence stack.
func (b *BranchUnit) Resolve(w *Warp, inst *insts.Instruction, takenMask LaneMask, fallthroughPC uint32) error {
	switch {
	case takenMask == w.ActiveMask:
		w.PC = inst.Target
	case takenMask == 0:
		w.PC = fallthroughPC
	default:
		elseMask := w.ActiveMask &^ takenMask
		if inst.Target < fallthroughPC {
			if err := w.PushDivergence(fallthroughPC, elseMask); err != nil {
				return err
			}
			w.ActiveMask = takenMask
			w.PC = inst.Target
		} else {
			if err := w.PushDivergence(inst.Target, takenMask); err != nil {
				return err
			}
			w.ActiveMask = elseMask
			w.PC = fallthroughPC
		}
	}
	return nil
}

// MaybeReconverge reconciles the warp's divergence stack against its
// current PC, or unconditionally pops one frame if forced is true (a
// sync-class converge instruction was executed). Landing exactly on the
// top frame's reconverge point merges it. Passing beyond it means the
// running side jumped past the dormant side's code without ever landing
// on the merge point directly (the taken arm of an if/else skipping past
// the else block it doesn't own); swap in the dormant lanes to run the
// skipped code, parking the lanes that just finished at the PC they
// reached, and keep resolving until the current PC no longer overtakes
// the new top of stack.
func (w *Warp) MaybeReconverge(forced bool) {
	if forced {
		w.PopDivergence()
		return
	}
	for {
		top, ok := w.TopReconvergePC()
		if !ok {
			return
		}
		switch {
		case w.PC == top:
			w.PopDivergence()
			return
		case w.PC > top:
			w.swapDivergence()
		default:
			return
		}
	}
}
