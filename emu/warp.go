package emu

// State is a warp's scheduling state.
type State int

// Warp states.
const (
	Ready State = iota
	Stalled
	WaitingBarrier
	Finished
)

func (s State) String() string {
	switch s {
	case Ready:
		return "Ready"
	case Stalled:
		return "Stalled"
	case WaitingBarrier:
		return "WaitingBarrier"
	case Finished:
		return "Finished"
	default:
		return "Unknown"
	}
}

// DivergenceEntry is one frame of a warp's divergence stack: the PC and
// lane mask of the side of a branch that is not currently running.
type DivergenceEntry struct {
	ReconvergePC uint32
	DormantMask  LaneMask
}

// Warp is the per-warp state record of SPEC_FULL.md §3: PC, active mask,
// scheduling state, and a bounded divergence stack.
type Warp struct {
	ID              int
	BlockID         int
	PC              uint32
	ActiveMask      LaneMask
	State           State
	LastActiveCycle uint64

	stack    []DivergenceEntry
	stackCap int
}

// NewWarp creates a warp with all lanes active at pc, ready to run, with a
// divergence stack bounded to stackDepth entries.
func NewWarp(id, blockID int, numLanes int, pc uint32, stackDepth int) *Warp {
	return &Warp{
		ID:         id,
		BlockID:    blockID,
		PC:         pc,
		ActiveMask: FullMask(numLanes),
		State:      Ready,
		stack:      make([]DivergenceEntry, 0, stackDepth),
		stackCap:   stackDepth,
	}
}

// PushDivergence records a divergence point: dormantMask is left behind at
// reconvergePC while the caller keeps running some other mask. Returns
// DivergenceStackOverflow if the warp's stack is already at capacity.
func (w *Warp) PushDivergence(reconvergePC uint32, dormantMask LaneMask) error {
	if len(w.stack) >= w.stackCap {
		return NewFault(FaultDivergenceStackOverflow, "divergence stack exhausted")
	}
	w.stack = append(w.stack, DivergenceEntry{ReconvergePC: reconvergePC, DormantMask: dormantMask})
	return nil
}

// TopReconvergePC returns the PC the current top-of-stack frame will
// reconverge at, and whether the stack is non-empty.
func (w *Warp) TopReconvergePC() (uint32, bool) {
	if len(w.stack) == 0 {
		return 0, false
	}
	return w.stack[len(w.stack)-1].ReconvergePC, true
}

// PopDivergence pops the top frame and ORs its dormant mask into the active
// mask, restoring PC to the frame's reconverge point. It is a no-op
// returning false if the stack is empty.
func (w *Warp) PopDivergence() bool {
	if len(w.stack) == 0 {
		return false
	}
	top := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]
	w.ActiveMask |= top.DormantMask
	w.PC = top.ReconvergePC
	return true
}

// swapDivergence exchanges the top frame: the lanes currently running
// become the new dormant frame (parked at the PC they've just reached),
// and the frame's own dormant lanes take over running at its PC. Used
// when the running side jumps past the dormant side's PC instead of
// landing on it, e.g. an if/else where the taken arm explicitly skips
// over the not-yet-run else block.
func (w *Warp) swapDivergence() {
	top := w.stack[len(w.stack)-1]
	w.stack[len(w.stack)-1] = DivergenceEntry{ReconvergePC: w.PC, DormantMask: w.ActiveMask}
	w.ActiveMask = top.DormantMask
	w.PC = top.ReconvergePC
}

// DivergenceDepth reports the number of frames currently on the stack.
func (w *Warp) DivergenceDepth() int {
	return len(w.stack)
}
