// Package main provides the entry point for simtsim, a cycle-level SIMT
// GPU micro-architecture simulator.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/simtsim/config"
	"github.com/sarchlab/simtsim/emu"
	"github.com/sarchlab/simtsim/loader"
	"github.com/sarchlab/simtsim/timing/core"
)

var (
	configPath = flag.String("config", "", "Path to simulator configuration JSON file")
	traceOut   = flag.String("trace", "", "Path to write a per-instruction CSV trace")
	numWarps   = flag.Int("warps", 0, "Override num_warps from the config")
	cycleLimit = flag.Uint64("cycle-limit", 0, "Override cycle_limit from the config")
	verbose    = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: simtsim [options] <program.bin>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		atexit.Exit(1)
	}

	programPath := flag.Arg(0)

	cfg, err := loadConfig()
	if err != nil {
		fail("Error loading config: %v\n", err)
	}
	if *numWarps > 0 {
		cfg.NumWarps = *numWarps
	}
	if *cycleLimit > 0 {
		cfg.CycleLimit = *cycleLimit
	}
	if err := cfg.Validate(); err != nil {
		fail("Invalid config: %v\n", err)
	}

	prog, err := loader.LoadRawImage(programPath, 0x0)
	if err != nil {
		fail("Error loading program: %v\n", err)
	}

	mem := emu.NewMemory()
	if err := loader.LoadInto(prog, mem, core.SharedMemBase); err != nil {
		fail("Error placing program image: %v\n", err)
	}

	if *verbose {
		fmt.Printf("Loaded: %s\n", programPath)
		fmt.Printf("Entry PC: 0x%x\n", prog.EntryPC)
		fmt.Printf("Segments: %d\n", len(prog.Segments))
	}

	warps := make([]*emu.Warp, cfg.NumWarps)
	for i := range warps {
		warps[i] = emu.NewWarp(i, 0, cfg.ThreadsPerWarp, prog.EntryPC, cfg.DivergenceDepth)
	}

	sim := core.New(cfg, mem, warps)

	if *traceOut != "" {
		f, err := os.Create(*traceOut)
		if err != nil {
			fail("Error creating trace file: %v\n", err)
		}
		atexit.Register(func() { _ = f.Close() })
		sim.Trace = f
	}

	runErr := sim.Run()
	report(sim, programPath, runErr)

	if runErr != nil {
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

func loadConfig() (*config.Config, error) {
	if *configPath == "" {
		return config.Default(), nil
	}
	return config.LoadConfig(*configPath)
}

func report(sim *core.Simulator, programPath string, runErr error) {
	stats := sim.Stats()

	fmt.Printf("\n")
	fmt.Printf("Program: %s\n", programPath)
	if runErr != nil {
		color.New(color.FgRed).Printf("Fault: %v\n", runErr)
	} else {
		color.New(color.FgGreen).Printf("Completed after %d cycles\n", stats.TotalCycles)
	}
	fmt.Printf("\n")
	fmt.Printf("Instructions executed: %d\n", stats.InstructionsExecuted)
	fmt.Printf("Total cycles:          %d\n", stats.TotalCycles)
	fmt.Printf("IPC:                    %.3f\n", stats.IPC())
	fmt.Printf("Stall cycles:           %d\n", stats.StallCycles)
	fmt.Printf("\n")
	fmt.Printf("Cache hit rate:         %.1f%%\n", 100*stats.HitRate())
	fmt.Printf("  hits:       %d\n", stats.CacheHits)
	fmt.Printf("  misses:     %d\n", stats.CacheMisses)
	fmt.Printf("  evictions:  %d\n", stats.CacheEvictions)
	fmt.Printf("  writebacks: %d\n", stats.CacheWritebacks)
	fmt.Printf("\n")
	fmt.Printf("Bank conflicts:         %d\n", stats.BankConflicts)
	fmt.Printf("Atomic ops:             %d (contentions: %d)\n", stats.AtomicOps, stats.AtomicContentions)
	fmt.Printf("Barrier releases:       %d\n", stats.BarrierReleases)
}

func fail(format string, args ...any) {
	color.New(color.FgRed).Fprintf(os.Stderr, format, args...)
	atexit.Exit(1)
}
