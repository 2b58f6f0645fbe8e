// Package insts provides the 32-bit SIMT instruction set definitions and
// decoding for the core.
package insts

// Class is the top-level instruction category, carried in bits [31:28] of
// the instruction word.
type Class uint8

// Instruction classes.
const (
	ClassALU Class = iota
	ClassBranch
	ClassLoad
	ClassStore
	ClassMove
	ClassSync
	ClassSpecial
	ClassControl
)

// String returns the class's trace-record name.
func (c Class) String() string {
	switch c {
	case ClassALU:
		return "alu"
	case ClassBranch:
		return "branch"
	case ClassLoad:
		return "load"
	case ClassStore:
		return "store"
	case ClassMove:
		return "move"
	case ClassSync:
		return "sync"
	case ClassSpecial:
		return "special"
	case ClassControl:
		return "control"
	default:
		return "unknown"
	}
}

// ALUOp is the operation within the ALU class, carried in bits [8:5].
type ALUOp uint8

// ALU operations.
const (
	ALUAdd ALUOp = iota
	ALUSub
	ALUMul
	ALUDiv
	ALUMod
	ALUAnd
	ALUOr
	ALUXor
	ALUShl
	ALUShr
	ALUSar
	ALUSlt
	ALUSltu
	ALUMin
	ALUMax
	ALUAbs
)

// BranchCond is the branch condition, carried in bits [8:5] for branch-class
// instructions.
type BranchCond uint8

// Branch conditions. BrALL is the distinguished unconditional-reconverge
// condition: every active lane always takes it, so the decoder never
// reports a branch tagged BrALL as diverging.
const (
	BrEQ BranchCond = iota
	BrNE
	BrLT
	BrGE
	BrLTU
	BrGEU
	BrALL
)

// MemSize is the width of a load or store, carried in bits [8:5] for
// memory-class instructions.
type MemSize uint8

// Memory access widths.
const (
	MemByte MemSize = iota
	MemHalf
	MemWord
)

// MemSpace distinguishes the address space a load/store targets. It is not
// part of the instruction encoding: the execution unit derives it from the
// high bits of the computed address (the reserved shared-memory range) and
// from whether the opcode names an atomic operation.
type MemSpace uint8

// Memory spaces.
const (
	SpaceGlobal MemSpace = iota
	SpaceShared
	SpaceTexture
	SpaceAtomic
)

// SyncOp is the operation within the Sync class.
type SyncOp uint8

// Sync operations.
const (
	SyncBarrier SyncOp = iota
	SyncArrive
	SyncWait
	SyncVoteAll
	SyncVoteAny
)

// SpecialOp is the operation within the Special class.
type SpecialOp uint8

// Special operations.
const (
	SpecialExit SpecialOp = iota
	SpecialTid
)

// AtomicOp is the RMW operation an atomic instruction requests. Atomics are
// encoded as Store-class instructions; the execution unit recognizes them by
// the IsAtomic flag set by the decoder from a reserved MemSize value rather
// than by a dedicated class, keeping the 8-class budget of bits [31:28].
type AtomicOp uint8

// Atomic RMW operations.
const (
	AtomicAdd AtomicOp = iota
	AtomicSub
	AtomicExch
	AtomicMin
	AtomicMax
	AtomicAnd
	AtomicOr
	AtomicXor
	AtomicCAS
	AtomicInc
	AtomicDec
)

// Instruction is the tagged decoded form of a 32-bit instruction word.
type Instruction struct {
	Class Class
	Raw   uint32

	Dest uint8
	Src1 uint8
	Src2 uint8

	UseImmediate bool
	Immediate    uint16

	PredReg        uint8
	PredComplement bool

	// Class-specific payloads; only the field matching Class is meaningful.
	ALUOp      ALUOp
	BranchCond BranchCond
	MemSize    MemSize
	SyncOp     SyncOp
	SpecialOp  SpecialOp
	AtomicOp   AtomicOp
	IsAtomic   bool

	// Target is the branch/jump target PC, already resolved from the
	// immediate field at decode time.
	Target uint32

	// AffectsPC is true for any instruction that may redirect control flow.
	AffectsPC bool

	// Diverges is true when the branch condition is not BrALL: lanes may
	// disagree on the outcome and the warp may need to push a divergence
	// stack entry.
	Diverges bool

	// Converges is true for the Sync-class reconvergence opcode.
	Converges bool

	// InvalidInstruction is true when the class/opcode combination is not
	// recognized; executing it fails with IllegalInstruction.
	InvalidInstruction bool
}

// IsMemory reports whether the instruction accesses a memory back-end
// (global, shared, texture or atomic).
func (i *Instruction) IsMemory() bool {
	return i.Class == ClassLoad || i.Class == ClassStore
}
