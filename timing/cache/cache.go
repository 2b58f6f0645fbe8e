package cache

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Config holds the C3 cache parameters of SPEC_FULL.md §4.3/§6.
type Config struct {
	// TotalSize is the cache capacity in bytes; must be a power of two.
	TotalSize int
	// LineSize is the cache line size in bytes; must be a power of two.
	LineSize int
	// Associativity is the number of ways per set.
	Associativity int
	// MemoryLatency is the number of cycles a backing-store fetch takes
	// on a miss, before the line-size-proportional transfer time.
	MemoryLatency uint64
}

// NumSets returns total_size / (line_size * associativity), per §3.
func (c Config) NumSets() int {
	return c.TotalSize / (c.LineSize * c.Associativity)
}

// Validate reports ConfigInvalid-worthy mismatches as a plain error;
// callers wrap the result in an emu.Fault.
func (c Config) Validate() error {
	switch {
	case !isPowerOfTwo(c.TotalSize):
		return errConfig("cache_size must be a power of two")
	case !isPowerOfTwo(c.LineSize):
		return errConfig("cache_line_size must be a power of two")
	case c.Associativity <= 0:
		return errConfig("associativity must be positive")
	case c.LineSize*c.Associativity > c.TotalSize:
		return errConfig("cache_line_size must be <= cache_size / associativity")
	default:
		return nil
	}
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

type configError string

func (e configError) Error() string { return string(e) }

func errConfig(msg string) error { return configError(msg) }

// AccessResult reports the outcome of a single cache access.
type AccessResult struct {
	Hit         bool
	Latency     uint64
	Data        uint64
	Evicted     bool
	EvictedAddr uint32
}

// Statistics accumulates read/write totals plus the four counters C3
// exposes per §4.3 (hits, misses, evictions, writebacks).
type Statistics struct {
	Reads      uint64
	Writes     uint64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
}

// BackingStore is the next level down the hierarchy (C2).
type BackingStore interface {
	Read(addr uint32, size int) []byte
	Write(addr uint32, data []byte)
}

// Cache is a set-associative, write-back, write-allocate cache with LRU
// replacement, backed by Akita's directory/victim-finder implementation
// for tag and LRU-state bookkeeping.
type Cache struct {
	config    Config
	directory *akitacache.DirectoryImpl
	dataStore [][]byte
	stats     Statistics
	backing   BackingStore
}

// New creates a Cache. Callers should call Config.Validate first; New does
// not itself return ConfigInvalid.
func New(config Config, backing BackingStore) *Cache {
	numSets := config.NumSets()
	totalBlocks := numSets * config.Associativity

	dataStore := make([][]byte, totalBlocks)
	for i := range dataStore {
		dataStore[i] = make([]byte, config.LineSize)
	}

	return &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.LineSize,
			akitacache.NewLRUVictimFinder(),
		),
		dataStore: dataStore,
		backing:   backing,
	}
}

// Config returns the cache configuration.
func (c *Cache) Config() Config { return c.config }

// Stats returns the current statistics snapshot.
func (c *Cache) Stats() Statistics { return c.stats }

func (c *Cache) blockAddr(addr uint32) uint32 {
	line := uint32(c.config.LineSize)
	return (addr / line) * line
}

func (c *Cache) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

// missLatency implements §4.3's "memory_latency + line_size/16" formula.
func (c *Cache) missLatency() uint64 {
	return c.config.MemoryLatency + uint64(c.config.LineSize)/16
}

// Read performs a cache read of size bytes at addr.
func (c *Cache) Read(addr uint32, size int) AccessResult {
	c.stats.Reads++

	blockAddr := c.blockAddr(addr)
	block := c.directory.Lookup(0, uint64(blockAddr))

	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)

		offset := addr - blockAddr
		data := c.dataStore[c.blockIndex(block)]
		return AccessResult{Hit: true, Latency: 1, Data: extractData(data, offset, size)}
	}

	c.stats.Misses++
	return c.handleMiss(addr, size, false, 0)
}

// Write performs a write-allocate cache write of size bytes at addr.
func (c *Cache) Write(addr uint32, size int, value uint64) AccessResult {
	c.stats.Writes++

	blockAddr := c.blockAddr(addr)
	block := c.directory.Lookup(0, uint64(blockAddr))

	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)

		offset := addr - blockAddr
		data := c.dataStore[c.blockIndex(block)]
		storeData(data, offset, size, value)
		block.IsDirty = true

		return AccessResult{Hit: true, Latency: 1}
	}

	c.stats.Misses++
	return c.handleMiss(addr, size, true, value)
}

// Probe ensures the line containing addr is resident and tallies exactly
// one transaction (a read or a write, per isWrite), reporting its hit/miss
// outcome and latency. It does not extract or store lane data. Callers
// coalescing several lanes onto one line call Probe once for the group,
// then use ReadNoStat/WriteNoStat for every lane sharing that line so the
// line's single transaction is tallied exactly once regardless of how
// many lanes it serves.
func (c *Cache) Probe(addr uint32, size int, isWrite bool) AccessResult {
	if isWrite {
		c.stats.Writes++
	} else {
		c.stats.Reads++
	}

	blockAddr := c.blockAddr(addr)
	block := c.directory.Lookup(0, uint64(blockAddr))
	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)
		return AccessResult{Hit: true, Latency: 1}
	}

	c.stats.Misses++
	return c.handleMiss(addr, size, false, 0)
}

// ReadNoStat extracts size bytes at addr from an already-resident line
// without updating statistics. See Probe.
func (c *Cache) ReadNoStat(addr uint32, size int) uint64 {
	blockAddr := c.blockAddr(addr)
	block := c.directory.Lookup(0, uint64(blockAddr))
	if block == nil || !block.IsValid {
		return 0
	}
	offset := addr - blockAddr
	return extractData(c.dataStore[c.blockIndex(block)], offset, size)
}

// WriteNoStat stores size bytes at addr into an already-resident line
// without updating statistics. See Probe.
func (c *Cache) WriteNoStat(addr uint32, size int, value uint64) {
	blockAddr := c.blockAddr(addr)
	block := c.directory.Lookup(0, uint64(blockAddr))
	if block == nil || !block.IsValid {
		return
	}
	offset := addr - blockAddr
	storeData(c.dataStore[c.blockIndex(block)], offset, size, value)
	block.IsDirty = true
}

func (c *Cache) handleMiss(addr uint32, size int, isWrite bool, writeValue uint64) AccessResult {
	result := AccessResult{Hit: false, Latency: c.missLatency()}

	blockAddr := c.blockAddr(addr)
	victim := c.directory.FindVictim(uint64(blockAddr))
	if victim == nil {
		return result
	}

	victimData := c.dataStore[c.blockIndex(victim)]

	if victim.IsValid {
		c.stats.Evictions++
		result.Evicted = true
		result.EvictedAddr = uint32(victim.Tag)

		if victim.IsDirty && c.backing != nil {
			c.stats.Writebacks++
			c.backing.Write(uint32(victim.Tag), victimData)
		}
	}

	if c.backing != nil {
		copy(victimData, c.backing.Read(blockAddr, c.config.LineSize))
	} else {
		for i := range victimData {
			victimData[i] = 0
		}
	}

	victim.Tag = uint64(blockAddr)
	victim.IsValid = true
	victim.IsDirty = false

	offset := addr - blockAddr
	if isWrite {
		storeData(victimData, offset, size, writeValue)
		victim.IsDirty = true
	} else {
		result.Data = extractData(victimData, offset, size)
	}

	c.directory.Visit(victim)

	return result
}

// Flush writes back all dirty lines and invalidates the cache.
func (c *Cache) Flush() {
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid && block.IsDirty && c.backing != nil {
				data := c.dataStore[c.blockIndex(block)]
				c.backing.Write(uint32(block.Tag), data)
				c.stats.Writebacks++
			}
			block.IsValid = false
			block.IsDirty = false
		}
	}
}

func extractData(data []byte, offset uint32, size int) uint64 {
	if data == nil || int(offset)+size > len(data) {
		return 0
	}
	var result uint64
	for i := 0; i < size; i++ {
		result |= uint64(data[int(offset)+i]) << (i * 8)
	}
	return result
}

func storeData(data []byte, offset uint32, size int, value uint64) {
	if data == nil || int(offset)+size > len(data) {
		return
	}
	for i := 0; i < size; i++ {
		data[int(offset)+i] = byte(value >> (i * 8))
	}
}
