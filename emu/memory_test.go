package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/simtsim/emu"
)

var _ = Describe("Memory", func() {
	var m *emu.Memory

	BeforeEach(func() {
		m = emu.NewMemory()
	})

	It("reads unwritten addresses as zero", func() {
		v, err := m.Read32(0x1000)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(uint32(0)))
	})

	It("round-trips a written word", func() {
		Expect(m.Write32(0x2000, 0xDEADBEEF)).To(Succeed())
		v, err := m.Read32(0x2000)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(uint32(0xDEADBEEF)))
	})

	It("faults on unaligned word access", func() {
		_, err := m.Read32(0x2001)
		Expect(err).To(HaveOccurred())
		fault := err.(*emu.Fault)
		Expect(fault.Kind).To(Equal(emu.FaultAlignment))
	})

	It("faults on unaligned halfword access", func() {
		err := m.Write16(0x2001, 0xBEEF)
		Expect(err).To(HaveOccurred())
		fault := err.(*emu.Fault)
		Expect(fault.Kind).To(Equal(emu.FaultAlignment))
	})

	It("supports byte-granular block refill and writeback", func() {
		m.LoadSegment(0x4000, []byte{1, 2, 3, 4, 5, 6, 7, 8})
		block := m.ReadBlock(0x4000, 8)
		Expect(block).To(Equal([]byte{1, 2, 3, 4, 5, 6, 7, 8}))

		m.WriteBlock(0x5000, []byte{9, 9})
		Expect(m.Read8(0x5000)).To(Equal(uint8(9)))
		Expect(m.Read8(0x5001)).To(Equal(uint8(9)))
	})
})
