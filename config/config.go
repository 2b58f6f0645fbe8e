// Package config holds the simulator's enumerated configuration options
// and the JSON load/save path used by the CLI and by tests that need an
// independent driver instance (see SPEC_FULL.md §9's elimination of
// process-wide singletons).
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/simtsim/emu"
)

// Config holds every option enumerated in SPEC_FULL.md §6.
type Config struct {
	NumWarps         int `json:"num_warps"`
	ThreadsPerWarp   int `json:"threads_per_warp"`
	CacheSize        int `json:"cache_size"`
	CacheLineSize    int `json:"cache_line_size"`
	Associativity    int `json:"associativity"`
	MemoryLatency    uint64 `json:"memory_latency"`
	SharedMemSize    int `json:"shared_mem_size"`
	NumBanks         int `json:"num_banks"`
	MaxBarriers      int `json:"max_barriers"`
	DivergenceDepth  int `json:"divergence_stack_depth"`
	CycleLimit       uint64 `json:"cycle_limit"`
}

// Default returns a Config populated with SPEC_FULL.md §6's defaults.
func Default() *Config {
	return &Config{
		NumWarps:        32,
		ThreadsPerWarp:  32,
		CacheSize:       32 * 1024,
		CacheLineSize:   64,
		Associativity:   8,
		MemoryLatency:   100,
		SharedMemSize:   16 * 1024,
		NumBanks:        32,
		MaxBarriers:     16,
		DivergenceDepth: 8,
		CycleLimit:      1_000_000,
	}
}

// LoadConfig reads a Config from a JSON file, starting from Default() so
// any field the file omits keeps its default value.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read simulator config file: %w", err)
	}

	c := Default()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse simulator config: %w", err)
	}
	return c, nil
}

// SaveConfig writes c to path as indented JSON.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize simulator config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write simulator config file: %w", err)
	}
	return nil
}

// Validate checks the invariants SPEC_FULL.md §6/§7 require, returning a
// ConfigInvalid fault describing the first violation found.
func (c *Config) Validate() error {
	if c.NumWarps <= 0 {
		return emu.NewFault(emu.FaultConfigInvalid, "num_warps must be > 0")
	}
	if c.ThreadsPerWarp <= 0 || c.ThreadsPerWarp > emu.LanesPerWarp {
		return emu.NewFault(emu.FaultConfigInvalid, fmt.Sprintf("threads_per_warp must be in (0, %d]", emu.LanesPerWarp))
	}
	if !isPowerOfTwo(c.CacheSize) {
		return emu.NewFault(emu.FaultConfigInvalid, "cache_size must be a power of two")
	}
	if !isPowerOfTwo(c.CacheLineSize) {
		return emu.NewFault(emu.FaultConfigInvalid, "cache_line_size must be a power of two")
	}
	if c.Associativity <= 0 || c.CacheLineSize*c.Associativity > c.CacheSize {
		return emu.NewFault(emu.FaultConfigInvalid, "cache_line_size must be <= cache_size / associativity")
	}
	if !isPowerOfTwo(c.NumBanks) {
		return emu.NewFault(emu.FaultConfigInvalid, "num_banks must be a power of two")
	}
	if c.SharedMemSize <= 0 || c.SharedMemSize%4 != 0 {
		return emu.NewFault(emu.FaultConfigInvalid, "shared_mem_size must be a positive multiple of 4")
	}
	if c.MaxBarriers <= 0 {
		return emu.NewFault(emu.FaultConfigInvalid, "max_barriers must be > 0")
	}
	if c.DivergenceDepth <= 0 {
		return emu.NewFault(emu.FaultConfigInvalid, "divergence_stack_depth must be > 0")
	}
	if c.CycleLimit == 0 {
		return emu.NewFault(emu.FaultConfigInvalid, "cycle_limit must be > 0")
	}
	return nil
}

// Clone returns an independent deep copy of c.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
