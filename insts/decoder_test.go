package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/simtsim/insts"
)

func encode(class, dest, src1, src2OrImm uint32, useImm bool, op, pred uint32, predComplement bool) uint32 {
	var word uint32
	word |= (class & 0xF) << 28
	word |= (dest & 0x3F) << 22
	word |= (src1 & 0x3F) << 16
	if useImm {
		word |= 1 << 9
		word |= src2OrImm & 0xFFFF
	} else {
		word |= (src2OrImm & 0x3F) << 10
	}
	word |= (op & 0xF) << 5
	word |= (pred & 0xF) << 1
	if predComplement {
		word |= 1
	}
	return word
}

var _ = Describe("Decoder", func() {
	var d *insts.Decoder

	BeforeEach(func() {
		d = insts.NewDecoder()
	})

	It("decodes an ALU add with register operands", func() {
		word := encode(uint32(insts.ClassALU), 10, 2, 3, false, uint32(insts.ALUAdd), 0, false)
		inst := d.Decode(word, 0)

		Expect(inst.Class).To(Equal(insts.ClassALU))
		Expect(inst.Dest).To(Equal(uint8(10)))
		Expect(inst.Src1).To(Equal(uint8(2)))
		Expect(inst.Src2).To(Equal(uint8(3)))
		Expect(inst.ALUOp).To(Equal(insts.ALUAdd))
		Expect(inst.InvalidInstruction).To(BeFalse())
	})

	It("decodes an ALU op with an immediate operand", func() {
		word := encode(uint32(insts.ClassALU), 10, 0, 0x2A, true, uint32(insts.ALUAdd), 0, false)
		inst := d.Decode(word, 0)

		Expect(inst.UseImmediate).To(BeTrue())
		Expect(inst.Immediate).To(Equal(uint16(0x2A)))
	})

	It("flags unrecognized Special-class opcodes as invalid", func() {
		word := encode(uint32(insts.ClassSpecial), 0, 0, 0, false, 0xF, 0, false)
		inst := d.Decode(word, 0)
		Expect(inst.InvalidInstruction).To(BeTrue())
	})

	It("computes a branch target from a signed immediate offset", func() {
		word := encode(uint32(insts.ClassBranch), 0, 1, uint32(uint16(2)), true, uint32(insts.BrEQ), 0, false)
		inst := d.Decode(word, 0x100)

		Expect(inst.AffectsPC).To(BeTrue())
		Expect(inst.Diverges).To(BeTrue())
		Expect(inst.Target).To(Equal(uint32(0x108)))
	})

	It("marks BrALL branches as non-diverging", func() {
		word := encode(uint32(insts.ClassBranch), 0, 0, 0, true, uint32(insts.BrALL), 0, false)
		inst := d.Decode(word, 0)
		Expect(inst.Diverges).To(BeFalse())
	})

	It("decodes a plain memory access width", func() {
		word := encode(uint32(insts.ClassLoad), 5, 1, 0, true, uint32(insts.MemWord), 0, false)
		inst := d.Decode(word, 0)

		Expect(inst.MemSize).To(Equal(insts.MemWord))
		Expect(inst.IsAtomic).To(BeFalse())
	})

	It("decodes an atomic RMW opcode biased past the memory-size range", func() {
		word := encode(uint32(insts.ClassStore), 0, 1, 0, true, 4+uint32(insts.AtomicAdd), 0, false)
		inst := d.Decode(word, 0)

		Expect(inst.IsAtomic).To(BeTrue())
		Expect(inst.AtomicOp).To(Equal(insts.AtomicAdd))
	})

	It("sets Converges for the barrier sync opcode", func() {
		word := encode(uint32(insts.ClassSync), 0, 0, 0, true, uint32(insts.SyncBarrier), 0, false)
		inst := d.Decode(word, 0)
		Expect(inst.Converges).To(BeTrue())
	})

	It("flags an unrecognized class as invalid", func() {
		word := encode(0xF, 0, 0, 0, false, 0, 0, false)
		inst := d.Decode(word, 0)
		Expect(inst.InvalidInstruction).To(BeTrue())
	})
})
