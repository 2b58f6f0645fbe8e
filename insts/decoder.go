package insts

// Fixed 32-bit instruction layout:
//
//	bits [31:28] class
//	bits [27:22] destination register
//	bits [21:16] source register 1
//	bits [15:10] source register 2
//	bit  [9]     use-immediate flag
//	bits [8:5]   operation within class
//	bits [4:1]   predicate register
//	bit  [0]     predicate complement
//	bits [15:0]  16-bit immediate, overlaid on rs2/op/pred when use-immediate is set

// Decoder decodes 32-bit instruction words into their tagged form.
type Decoder struct{}

// NewDecoder creates a new instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode maps a 32-bit instruction word to its decoded record. PC is the
// address the word was fetched from, used to compute branch/jump targets
// from their immediates.
func (d *Decoder) Decode(word uint32, pc uint32) *Instruction {
	inst := &Instruction{Raw: word}

	class := uint8((word >> 28) & 0xF)
	inst.Dest = uint8((word >> 22) & 0x3F)
	inst.Src1 = uint8((word >> 16) & 0x3F)
	inst.UseImmediate = (word>>9)&0x1 == 1
	op := uint8((word >> 5) & 0xF)
	inst.PredReg = uint8((word >> 1) & 0xF)
	inst.PredComplement = word&0x1 == 1

	if inst.UseImmediate {
		// The immediate overlays rs2/op/pred; the use-immediate flag
		// (bit 9) itself is not part of its value.
		inst.Immediate = uint16(word&0xFFFF) &^ (1 << 9)
	} else {
		inst.Src2 = uint8((word >> 10) & 0x3F)
	}

	switch class {
	case uint8(ClassALU):
		inst.Class = ClassALU
		d.decodeALU(op, inst)
	case uint8(ClassBranch):
		inst.Class = ClassBranch
		d.decodeBranch(op, pc, inst)
	case uint8(ClassLoad):
		inst.Class = ClassLoad
		d.decodeMem(op, inst)
	case uint8(ClassStore):
		inst.Class = ClassStore
		d.decodeMem(op, inst)
	case uint8(ClassMove):
		inst.Class = ClassMove
	case uint8(ClassSync):
		inst.Class = ClassSync
		d.decodeSync(op, inst)
	case uint8(ClassSpecial):
		inst.Class = ClassSpecial
		d.decodeSpecial(op, inst)
	case uint8(ClassControl):
		inst.Class = ClassControl
	default:
		inst.InvalidInstruction = true
	}

	return inst
}

func (d *Decoder) decodeALU(op uint8, inst *Instruction) {
	if op > uint8(ALUAbs) {
		inst.InvalidInstruction = true
		return
	}
	inst.ALUOp = ALUOp(op)
}

func (d *Decoder) decodeBranch(op uint8, pc uint32, inst *Instruction) {
	if op > uint8(BrALL) {
		inst.InvalidInstruction = true
		return
	}
	inst.BranchCond = BranchCond(op)
	inst.AffectsPC = true
	inst.Diverges = inst.BranchCond != BrALL

	offset := int32(int16(inst.Immediate))
	inst.Target = uint32(int32(pc) + offset*4)
}

// decodeMem handles both Load and Store classes. Codes 0-2 select a plain
// access width (MemSize); codes 4 and above select an atomic RMW, biased by
// 4 so AtomicAdd (0) lands on code 4. Code 3 and anything past the last
// atomic op are reserved.
func (d *Decoder) decodeMem(op uint8, inst *Instruction) {
	const atomicBias = 4
	switch {
	case op <= uint8(MemWord):
		inst.MemSize = MemSize(op)
	case op >= atomicBias && op-atomicBias <= uint8(AtomicDec):
		inst.IsAtomic = true
		inst.AtomicOp = AtomicOp(op - atomicBias)
	default:
		inst.InvalidInstruction = true
	}
}

func (d *Decoder) decodeSync(op uint8, inst *Instruction) {
	if op > uint8(SyncVoteAny) {
		inst.InvalidInstruction = true
		return
	}
	inst.SyncOp = SyncOp(op)
	if inst.SyncOp == SyncBarrier {
		inst.Converges = true
	}
}

func (d *Decoder) decodeSpecial(op uint8, inst *Instruction) {
	if op > uint8(SpecialTid) {
		inst.InvalidInstruction = true
		return
	}
	inst.SpecialOp = SpecialOp(op)
}
