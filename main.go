// Package main provides the entry point for armsim, an educational ARM32
// assembler, encoder and simulator.
//
// For the full CLI, use: go run ./cmd/armsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("armsim - educational ARM32 assembler, encoder and simulator")
	fmt.Println("")
	fmt.Println("Usage: armsim [options] <program.s|program.elf>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config     Path to simulator configuration JSON file")
	fmt.Println("  -script     Lua script to run after the program is loaded")
	fmt.Println("  -dump       Print address, encoding and source of every memory slot")
	fmt.Println("  -i          Step interactively")
	fmt.Println("  -v          Verbose output")
	fmt.Println("  -cpuprofile Write a CPU profile to file")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/armsim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/armsim' instead.")
	}
}
