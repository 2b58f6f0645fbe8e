// Package main provides a profiling wrapper for simtsim to identify
// performance bottlenecks in the driver's event loop.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/pprof"
	"time"

	"github.com/sarchlab/simtsim/config"
	"github.com/sarchlab/simtsim/emu"
	"github.com/sarchlab/simtsim/loader"
	"github.com/sarchlab/simtsim/timing/core"
)

var (
	configPath = flag.String("config", "", "Path to simulator configuration JSON file")
	cpuProfile = flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile = flag.String("memprofile", "", "write memory profile to file")
	duration   = flag.Duration("duration", 30*time.Second, "max wall-clock duration before aborting")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: profile [options] <program.bin>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	programPath := flag.Arg(0)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	prog, err := loader.LoadRawImage(programPath, 0x0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}

	mem := emu.NewMemory()
	if err := loader.LoadInto(prog, mem, core.SharedMemBase); err != nil {
		fmt.Fprintf(os.Stderr, "Error placing program image: %v\n", err)
		os.Exit(1)
	}

	warps := make([]*emu.Warp, cfg.NumWarps)
	for i := range warps {
		warps[i] = emu.NewWarp(i, 0, cfg.ThreadsPerWarp, prog.EntryPC, cfg.DivergenceDepth)
	}
	sim := core.New(cfg, mem, warps)

	fmt.Printf("Loaded: %s\n", programPath)
	fmt.Printf("Entry PC: 0x%x\n", prog.EntryPC)

	start := time.Now()

	go func() {
		time.Sleep(*duration)
		fmt.Printf("\nTimeout reached after %v - stopping execution\n", *duration)
		os.Exit(2)
	}()

	runErr := sim.Run()
	elapsed := time.Since(start)

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating memory profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.WriteHeapProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing memory profile: %v\n", err)
		}
	}

	stats := sim.Stats()
	fmt.Printf("\nProfiling Results:\n")
	if runErr != nil {
		fmt.Printf("Fault: %v\n", runErr)
	}
	fmt.Printf("Instructions executed: %d\n", stats.InstructionsExecuted)
	fmt.Printf("Total cycles: %d\n", stats.TotalCycles)
	fmt.Printf("Elapsed time: %v\n", elapsed)
	if stats.InstructionsExecuted > 0 {
		fmt.Printf("Instructions/second: %.0f\n", float64(stats.InstructionsExecuted)/elapsed.Seconds())
	}
}
