package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/simtsim/emu"
	"github.com/sarchlab/simtsim/insts"
)

var _ = Describe("ALU", func() {
	var alu *emu.ALU

	BeforeEach(func() {
		alu = emu.NewALU()
	})

	It("adds elementwise across the active mask", func() {
		var a, b emu.LaneValues
		a[0], a[1] = 100, 5
		b[0], b[1] = 50, 5
		mask := emu.FullMask(2)

		out, err := alu.Eval(insts.ALUAdd, mask, a, b)
		Expect(err).NotTo(HaveOccurred())
		Expect(out[0]).To(Equal(uint32(150)))
		Expect(out[1]).To(Equal(uint32(10)))
	})

	It("fails with DivideByZero when any active lane divides by zero", func() {
		var a, b emu.LaneValues
		a[0] = 10
		b[0] = 0
		mask := emu.FullMask(1)

		_, err := alu.Eval(insts.ALUDiv, mask, a, b)
		Expect(err).To(HaveOccurred())

		fault, ok := err.(*emu.Fault)
		Expect(ok).To(BeTrue())
		Expect(fault.Kind).To(Equal(emu.FaultDivideByZero))
	})

	It("ignores lanes disabled by the mask", func() {
		var a, b emu.LaneValues
		a[1] = 10
		b[1] = 0 // would divide by zero, but lane 1 is disabled
		mask := emu.LaneMask(0).Set(0)
		a[0] = 4
		b[0] = 2

		out, err := alu.Eval(insts.ALUDiv, mask, a, b)
		Expect(err).NotTo(HaveOccurred())
		Expect(out[0]).To(Equal(uint32(2)))
	})

	It("takes shift amounts modulo 32", func() {
		var a, b emu.LaneValues
		a[0] = 1
		b[0] = 33 // 33 % 32 == 1
		mask := emu.FullMask(1)

		out, err := alu.Eval(insts.ALUShl, mask, a, b)
		Expect(err).NotTo(HaveOccurred())
		Expect(out[0]).To(Equal(uint32(2)))
	})

	It("defines ABS(INT_MIN) as INT_MIN", func() {
		var a, b emu.LaneValues
		var intMin int32 = -2147483648
		a[0] = uint32(intMin)
		mask := emu.FullMask(1)

		out, err := alu.Eval(insts.ALUAbs, mask, a, b)
		Expect(err).NotTo(HaveOccurred())
		Expect(int32(out[0])).To(Equal(int32(-2147483648)))
	})

	It("computes MIN and MAX", func() {
		var a, b emu.LaneValues
		a[0] = 7
		var negThree int32 = -3
		b[0] = uint32(negThree)
		mask := emu.FullMask(1)

		min, err := alu.Eval(insts.ALUMin, mask, a, b)
		Expect(err).NotTo(HaveOccurred())
		Expect(int32(min[0])).To(Equal(int32(-3)))

		max, err := alu.Eval(insts.ALUMax, mask, a, b)
		Expect(err).NotTo(HaveOccurred())
		Expect(int32(max[0])).To(Equal(int32(7)))
	})
})
