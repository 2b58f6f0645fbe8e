package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/simtsim/emu"
)

var _ = Describe("RegFile", func() {
	var rf *emu.RegFile

	BeforeEach(func() {
		rf = emu.NewRegFile(4, 16)
	})

	It("always reads register 0 as zero", func() {
		var vals emu.LaneValues
		vals[0] = 123
		rf.Write(0, 0, emu.FullMask(32), vals)

		got := rf.Read(0, 0)
		Expect(got[0]).To(Equal(uint32(0)))
	})

	It("writes only the lanes set in the mask", func() {
		var vals emu.LaneValues
		vals[0] = 10
		vals[1] = 20
		mask := emu.LaneMask(0).Set(0)
		rf.Write(0, 3, mask, vals)

		got := rf.Read(0, 3)
		Expect(got[0]).To(Equal(uint32(10)))
		Expect(got[1]).To(Equal(uint32(0)))
	})

	It("tracks per-(warp,reg) scoreboard busy bits", func() {
		Expect(rf.IsBusy(1, 5)).To(BeFalse())

		rf.SetBusy(1, 5)
		Expect(rf.IsBusy(1, 5)).To(BeTrue())

		rf.ClearBusy(1, 5)
		Expect(rf.IsBusy(1, 5)).To(BeFalse())
	})

	It("discards writes to register 0 without setting busy", func() {
		var vals emu.LaneValues
		vals[0] = 99
		rf.Write(2, 0, emu.FullMask(32), vals)
		Expect(rf.IsBusy(2, 0)).To(BeFalse())
	})

	It("isolates registers across warps", func() {
		var vals emu.LaneValues
		vals[0] = 7
		rf.Write(0, 4, emu.FullMask(32), vals)

		got := rf.Read(1, 4)
		Expect(got[0]).To(Equal(uint32(0)))
	})
})
