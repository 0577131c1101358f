// Package main provides the entry point for MemSim.
// MemSim is an educational multi-level memory hierarchy simulator.
//
// For the full CLI, use: go run ./cmd/memsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("MemSim - Memory Hierarchy Simulator")
	fmt.Println("")
	fmt.Println("Usage: memsim -config <machine.ini> -trace <accesses.vca>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config              Path to the machine configuration file")
	fmt.Println("  -trace               Path to the memory trace file")
	fmt.Println("  -debug               Debug verbosity (0-2)")
	fmt.Println("  -dramsys             Append memory accesses to a DRAMSys trace file")
	fmt.Println("  -run-to-breakpoint   Stop at the first trace breakpoint")
	fmt.Println("  -monitor             Serve read-only JSON snapshots over HTTP")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/memsim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/memsim' instead.")
	}
}
