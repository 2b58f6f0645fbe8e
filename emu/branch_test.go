package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/simtsim/emu"
	"github.com/sarchlab/simtsim/insts"
)

var _ = Describe("BranchUnit", func() {
	var (
		bu *emu.BranchUnit
		w  *emu.Warp
	)

	BeforeEach(func() {
		bu = emu.NewBranchUnit()
		w = emu.NewWarp(0, 0, 32, 0x100, 8)
	})

	It("retargets unconditionally when every active lane takes the branch", func() {
		var a, b emu.LaneValues
		mask := bu.ConditionMask(insts.BrALL, w.ActiveMask, a, b)
		Expect(mask).To(Equal(w.ActiveMask))

		inst := &insts.Instruction{Target: 0x200}
		Expect(bu.Resolve(w, inst, mask, 0x104)).To(Succeed())
		Expect(w.PC).To(Equal(uint32(0x200)))
		Expect(w.DivergenceDepth()).To(Equal(0))
	})

	It("falls through when no active lane takes the branch", func() {
		var a, b emu.LaneValues
		a[0], b[0] = 1, 2
		mask := bu.ConditionMask(insts.BrEQ, emu.FullMask(1), a, b)
		Expect(mask).To(Equal(emu.LaneMask(0)))

		inst := &insts.Instruction{Target: 0x200}
		Expect(bu.Resolve(w, inst, mask, 0x104)).To(Succeed())
		Expect(w.PC).To(Equal(uint32(0x104)))
	})

	It("runs the lower-addressed side now and parks the other on the stack", func() {
		var a, b emu.LaneValues
		a[0], b[0] = 1, 1 // lane 0 takes
		a[1], b[1] = 1, 2 // lane 1 does not
		active := emu.FullMask(2)
		w.ActiveMask = active
		mask := bu.ConditionMask(insts.BrEQ, active, a, b)

		// Target (0x200) is above fallthroughPC (0x104), so the not-taken
		// lane runs now at the fallthrough and the taken lane is parked.
		inst := &insts.Instruction{Target: 0x200}
		Expect(bu.Resolve(w, inst, mask, 0x104)).To(Succeed())

		Expect(w.ActiveMask).To(Equal(active &^ mask))
		Expect(w.PC).To(Equal(uint32(0x104)))
		Expect(w.DivergenceDepth()).To(Equal(1))
	})

	It("runs the taken side now when its target is the lower address", func() {
		var a, b emu.LaneValues
		a[0], b[0] = 1, 1 // lane 0 takes
		a[1], b[1] = 1, 2 // lane 1 does not
		active := emu.FullMask(2)
		w.ActiveMask = active
		mask := bu.ConditionMask(insts.BrEQ, active, a, b)

		// Target (0x100) is below fallthroughPC (0x200), so the taken lane
		// runs now at the target and the not-taken lane is parked.
		inst := &insts.Instruction{Target: 0x100}
		Expect(bu.Resolve(w, inst, mask, 0x200)).To(Succeed())

		Expect(w.ActiveMask).To(Equal(mask))
		Expect(w.PC).To(Equal(uint32(0x100)))
		Expect(w.DivergenceDepth()).To(Equal(1))
	})

	It("fails with DivergenceStackOverflow once the stack is full", func() {
		for i := 0; i < 8; i++ {
			Expect(w.PushDivergence(0x104, emu.LaneMask(1))).To(Succeed())
		}
		err := w.PushDivergence(0x108, emu.LaneMask(1))
		Expect(err).To(HaveOccurred())
		fault := err.(*emu.Fault)
		Expect(fault.Kind).To(Equal(emu.FaultDivergenceStackOverflow))
	})

	It("reconverges when PC reaches the stack-top reconverge point", func() {
		Expect(w.PushDivergence(0x300, emu.LaneMask(0b10))).To(Succeed())
		w.ActiveMask = emu.LaneMask(0b01)
		w.PC = 0x300

		w.MaybeReconverge(false)
		Expect(w.DivergenceDepth()).To(Equal(0))
		Expect(w.ActiveMask).To(Equal(emu.LaneMask(0b11)))
	})

	It("swaps in the dormant lanes when the running side jumps past them", func() {
		Expect(w.PushDivergence(0x200, emu.LaneMask(0b10))).To(Succeed())
		w.ActiveMask = emu.LaneMask(0b01)
		w.PC = 0x400 // jumped past the dormant frame's PC without landing on it

		w.MaybeReconverge(false)
		Expect(w.DivergenceDepth()).To(Equal(1))
		Expect(w.ActiveMask).To(Equal(emu.LaneMask(0b10)))
		Expect(w.PC).To(Equal(uint32(0x200)))

		// The lanes that were running now sit dormant at the PC they'd
		// reached, so a later exact match on that PC reconverges cleanly.
		w.PC = 0x400
		w.MaybeReconverge(false)
		Expect(w.DivergenceDepth()).To(Equal(0))
		Expect(w.ActiveMask).To(Equal(emu.LaneMask(0b11)))
	})
})
