package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/simtsim/emu"
	"github.com/sarchlab/simtsim/timing/cache"
)

var _ = Describe("Cache", func() {
	var (
		c       *cache.Cache
		memory  *emu.Memory
		backing *cache.MemoryBacking
	)

	BeforeEach(func() {
		memory = emu.NewMemory()
		backing = cache.NewMemoryBacking(memory)
		// 4KB, 4-way, 64B lines, 10-cycle backing-store latency.
		config := cache.Config{
			TotalSize:     4 * 1024,
			Associativity: 4,
			LineSize:      64,
			MemoryLatency: 10,
		}
		Expect(config.Validate()).To(Succeed())
		c = cache.New(config, backing)
	})

	Describe("Read operations", func() {
		It("should miss on cold cache", func() {
			memory.Write32(0x1000, 0xDEADBEEF)

			result := c.Read(0x1000, 4)
			Expect(result.Hit).To(BeFalse())
			Expect(result.Latency).To(Equal(uint64(10 + 64/16)))
			Expect(result.Data).To(Equal(uint64(0xDEADBEEF)))

			stats := c.Stats()
			Expect(stats.Reads).To(Equal(uint64(1)))
			Expect(stats.Misses).To(Equal(uint64(1)))
			Expect(stats.Hits).To(Equal(uint64(0)))
		})

		It("should hit on cached data at 1 cycle", func() {
			memory.Write32(0x1000, 0xCAFEBABE)

			c.Read(0x1000, 4)
			result := c.Read(0x1000, 4)
			Expect(result.Hit).To(BeTrue())
			Expect(result.Latency).To(Equal(uint64(1)))
			Expect(result.Data).To(Equal(uint64(0xCAFEBABE)))

			stats := c.Stats()
			Expect(stats.Reads).To(Equal(uint64(2)))
			Expect(stats.Misses).To(Equal(uint64(1)))
			Expect(stats.Hits).To(Equal(uint64(1)))
		})

		It("should hit on different offsets within the same line", func() {
			memory.Write32(0x1000, 0x11111111)
			memory.Write32(0x1004, 0x22222222)

			c.Read(0x1000, 4)
			result := c.Read(0x1004, 4)
			Expect(result.Hit).To(BeTrue())
			Expect(result.Data).To(Equal(uint64(0x22222222)))
		})
	})

	Describe("Write operations", func() {
		It("should write-allocate on miss", func() {
			result := c.Write(0x1000, 4, 0x12345678)
			Expect(result.Hit).To(BeFalse())

			readResult := c.Read(0x1000, 4)
			Expect(readResult.Hit).To(BeTrue())
			Expect(readResult.Data).To(Equal(uint64(0x12345678)))
		})

		It("should hit and mark dirty on a subsequent write", func() {
			c.Write(0x1000, 4, 0x11111111)

			result := c.Write(0x1000, 4, 0x22222222)
			Expect(result.Hit).To(BeTrue())
			Expect(result.Latency).To(Equal(uint64(1)))

			readResult := c.Read(0x1000, 4)
			Expect(readResult.Data).To(Equal(uint64(0x22222222)))
		})
	})

	Describe("Eviction", func() {
		It("should evict the LRU way when a set is full", func() {
			// 4KB / (4 * 64) = 16 sets; addresses 1024 apart map to set 0.
			c.Write(0x0000, 4, 0x11111111)
			c.Write(0x0400, 4, 0x22222222)
			c.Write(0x0800, 4, 0x33333333)
			c.Write(0x0C00, 4, 0x44444444)

			Expect(c.Read(0x0000, 4).Hit).To(BeTrue())
			Expect(c.Read(0x0400, 4).Hit).To(BeTrue())
			Expect(c.Read(0x0800, 4).Hit).To(BeTrue())
			Expect(c.Read(0x0C00, 4).Hit).To(BeTrue())

			result := c.Write(0x1000, 4, 0x55555555)
			Expect(result.Hit).To(BeFalse())
			Expect(result.Evicted).To(BeTrue())

			Expect(c.Stats().Evictions).To(Equal(uint64(1)))
		})

		It("should write back dirty evicted lines", func() {
			c.Write(0x0000, 4, 0x11111111)
			c.Write(0x0400, 4, 0x22222222)
			c.Write(0x0800, 4, 0x33333333)
			c.Write(0x0C00, 4, 0x44444444)

			c.Read(0x0400, 4)
			c.Read(0x0800, 4)
			c.Read(0x0C00, 4)

			c.Write(0x1000, 4, 0x55555555)

			v, err := memory.Read32(0x0000)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint32(0x11111111)))
			Expect(c.Stats().Writebacks).To(Equal(uint64(1)))
		})
	})

	Describe("Flush", func() {
		It("should write back all dirty lines", func() {
			c.Write(0x0000, 4, 0x11111111)
			c.Write(0x1000, 4, 0x22222222)

			v, _ := memory.Read32(0x0000)
			Expect(v).To(Equal(uint32(0)))

			c.Flush()

			v0, _ := memory.Read32(0x0000)
			v1, _ := memory.Read32(0x1000)
			Expect(v0).To(Equal(uint32(0x11111111)))
			Expect(v1).To(Equal(uint32(0x22222222)))
			Expect(c.Stats().Writebacks).To(Equal(uint64(2)))
		})
	})

	Describe("Config validation", func() {
		It("rejects a non-power-of-two total size", func() {
			bad := cache.Config{TotalSize: 100, LineSize: 64, Associativity: 4, MemoryLatency: 10}
			Expect(bad.Validate()).To(HaveOccurred())
		})

		It("rejects a line size that overruns the set budget", func() {
			bad := cache.Config{TotalSize: 1024, LineSize: 1024, Associativity: 4, MemoryLatency: 10}
			Expect(bad.Validate()).To(HaveOccurred())
		})
	})
})
