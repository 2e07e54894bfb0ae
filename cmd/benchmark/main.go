// Command benchmark runs the rvpipe timing benchmark harness.
//
// Usage:
//
//	go run ./cmd/benchmark [flags]
//
// Flags:
//
//	-csv        Output results in CSV format (default: human-readable)
//	-json       Output results as a JSON report
//	-dcache     Enable the data cache statistics model
//	-engine     Drive each run through the event-driven core
//	-core       Run only the core benchmark subset
//
// Example:
//
//	# Run all benchmarks with human-readable output
//	go run ./cmd/benchmark
//
//	# Output CSV for spreadsheet comparison
//	go run ./cmd/benchmark -csv > results.csv
//
// Every run is replayed on the functional emulator; a benchmark whose final
// state differs is reported and makes the command exit non-zero.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/rvpipe/benchmarks"
)

func main() {
	csvOutput := flag.Bool("csv", false, "Output results in CSV format")
	jsonOutput := flag.Bool("json", false, "Output results as a JSON report")
	dcache := flag.Bool("dcache", false, "Enable data cache simulation")
	engine := flag.Bool("engine", false, "Drive each run through the event-driven core")
	coreOnly := flag.Bool("core", false, "Run only the core benchmarks")
	flag.Parse()

	config := benchmarks.DefaultConfig()
	config.EnableDCache = *dcache
	config.UseEngine = *engine
	config.Output = os.Stdout

	harness := benchmarks.NewHarness(config)
	if *coreOnly {
		harness.AddBenchmarks(benchmarks.GetCoreBenchmarks())
	} else {
		harness.AddBenchmarks(benchmarks.GetMicrobenchmarks())
	}

	textOutput := !*csvOutput && !*jsonOutput
	if textOutput {
		fmt.Println("rvpipe Timing Benchmark Harness")
		fmt.Println("===============================")
		fmt.Printf("D-Cache: %v\n", config.EnableDCache)
		fmt.Printf("Engine:  %v\n", config.UseEngine)
		fmt.Println("")
	}

	results, err := harness.RunAll()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch {
	case *jsonOutput:
		if err := harness.PrintJSON(results); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing JSON: %v\n", err)
			os.Exit(1)
		}
	case *csvOutput:
		harness.PrintCSV(results)
	default:
		harness.PrintResults(results)

		summary := benchmarks.Summarize(results)
		fmt.Println("=== Summary ===")
		fmt.Printf("Benchmarks:   %d\n", summary.TotalBenchmarks)
		fmt.Printf("Cycles:       %d\n", summary.TotalCycles)
		fmt.Printf("Instructions: %d\n", summary.TotalInstructions)
		fmt.Printf("Average CPI:  %.3f\n", summary.AverageCPI)
		fmt.Printf("All match:    %v\n", summary.AllMatch)
	}

	if !benchmarks.Summarize(results).AllMatch {
		os.Exit(1)
	}
}
