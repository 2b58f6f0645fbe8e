// Package main provides a pointer to the real entry point.
//
// For the full CLI, use: go run ./cmd/simtsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("simtsim - cycle-level SIMT GPU micro-architecture simulator")
	fmt.Println("")
	fmt.Println("Usage: simtsim [options] <program.bin>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config       Path to simulator configuration JSON file")
	fmt.Println("  -trace        Path to write a per-instruction CSV trace")
	fmt.Println("  -warps        Override num_warps from the config")
	fmt.Println("  -cycle-limit  Override cycle_limit from the config")
	fmt.Println("  -v            Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/simtsim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/simtsim' instead.")
	}
}
