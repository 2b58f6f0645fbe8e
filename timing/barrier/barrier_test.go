package barrier_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/simtsim/emu"
	"github.com/sarchlab/simtsim/timing/barrier"
)

func TestBarrier(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Barrier Controller Suite")
}

var _ = Describe("Barrier Controller", func() {
	var c *barrier.Controller

	BeforeEach(func() {
		c = barrier.New(4)
	})

	It("does not release until every expected warp has arrived", func() {
		key := barrier.Key{BarrierID: 0, BlockID: 0}
		expected := emu.LaneMask(0).Set(0).Set(1).Set(2)

		Expect(c.Arrive(key, emu.LaneMask(0).Set(0), expected, 10)).To(Succeed())
		Expect(c.Released(key)).To(BeFalse())

		Expect(c.Arrive(key, emu.LaneMask(0).Set(1), expected, 11)).To(Succeed())
		Expect(c.Released(key)).To(BeFalse())

		Expect(c.Arrive(key, emu.LaneMask(0).Set(2), expected, 12)).To(Succeed())
		Expect(c.Released(key)).To(BeTrue())
	})

	It("frees the entry once released so the key can be reused", func() {
		key := barrier.Key{BarrierID: 1, BlockID: 0}
		expected := emu.LaneMask(0).Set(0)

		Expect(c.Arrive(key, emu.LaneMask(0).Set(0), expected, 0)).To(Succeed())
		Expect(c.Released(key)).To(BeTrue())
		Expect(c.InFlight()).To(Equal(0))

		Expect(c.Arrive(key, emu.LaneMask(0).Set(0), expected, 1)).To(Succeed())
		Expect(c.Released(key)).To(BeTrue())
	})

	It("fails with BarrierTableFull once maxEntries distinct barriers are in flight", func() {
		for i := 0; i < 4; i++ {
			key := barrier.Key{BarrierID: uint32(i), BlockID: 0}
			expected := emu.LaneMask(0).Set(0).Set(1)
			Expect(c.Arrive(key, emu.LaneMask(0).Set(0), expected, 0)).To(Succeed())
		}

		overflow := barrier.Key{BarrierID: 99, BlockID: 0}
		err := c.Arrive(overflow, emu.LaneMask(0).Set(0), emu.LaneMask(0).Set(0).Set(1), 0)
		Expect(err).To(HaveOccurred())
	})

	It("counts wait cycles for barriers still accumulating arrivals", func() {
		key := barrier.Key{BarrierID: 2, BlockID: 0}
		expected := emu.LaneMask(0).Set(0).Set(1)
		Expect(c.Arrive(key, emu.LaneMask(0).Set(0), expected, 0)).To(Succeed())

		c.Tick()
		c.Tick()
		Expect(c.WaitCycles(key)).To(Equal(uint64(2)))
	})
})
