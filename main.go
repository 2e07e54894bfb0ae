// Package main provides the entry point for rvpipe.
// rvpipe is a cycle-level 5-stage pipeline simulator built on Akita.
//
// For the full CLI, use: go run ./cmd/rvpipe
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("rvpipe - 5-stage pipeline simulator")
	fmt.Println("Built on Akita simulation framework")
	fmt.Println("")
	fmt.Println("Usage: rvpipe [options] <program.s>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config      Path to simulator configuration JSON file")
	fmt.Println("  -max-cycles  Absolute cycle ceiling")
	fmt.Println("  -step        Step one cycle at a time")
	fmt.Println("  -trace       Print the cycle trace")
	fmt.Println("  -functional  Run the functional emulator")
	fmt.Println("  -engine      Drive the pipeline through the Akita engine")
	fmt.Println("  -regs        Initial registers, e.g. x1=100,x2=5")
	fmt.Println("  -save        Save the session state at exit")
	fmt.Println("  -resume      Resume a saved session")
	fmt.Println("  -v           Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/rvpipe' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/rvpipe' instead.")
	}
}
