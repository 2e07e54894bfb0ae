// Package main provides a profiling wrapper for rvpipe to identify
// performance bottlenecks in the simulator itself.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/pprof"
	"time"

	"github.com/sarchlab/rvpipe/emu"
	"github.com/sarchlab/rvpipe/loader"
	"github.com/sarchlab/rvpipe/timing/config"
	"github.com/sarchlab/rvpipe/timing/pipeline"
)

var (
	timing     = flag.Bool("timing", true, "Profile the pipeline (false profiles the functional emulator)")
	cpuProfile = flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile = flag.String("memprofile", "", "write memory profile to file")
	maxCycles  = flag.Uint64("max-cycles", config.DefaultMaxCycles, "cycle (or instruction) ceiling")
	repeat     = flag.Int("repeat", 1, "number of times to run the program")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: profile [options] <program.s>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	programPath := flag.Arg(0)

	prog, err := loader.Load(programPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Loaded: %s (%d instructions)\n", programPath, len(prog.Instructions))

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

	start := time.Now()

	var instrCount, cycles uint64
	for i := 0; i < *repeat; i++ {
		var n, c uint64
		if *timing {
			n, c, err = runTimingProfile(prog)
		} else {
			n, err = runEmulationProfile(prog)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		instrCount += n
		cycles += c
	}

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

	fmt.Printf("\nProfiling Results:\n")
	fmt.Printf("Instructions executed: %d\n", instrCount)
	if *timing {
		fmt.Printf("Cycles simulated: %d\n", cycles)
	}
	fmt.Printf("Elapsed time: %v\n", elapsed)
	if instrCount > 0 {
		fmt.Printf("Instructions/second: %.0f\n", float64(instrCount)/elapsed.Seconds())
	}
}

// runEmulationProfile runs the program on the functional emulator.
func runEmulationProfile(prog *loader.Program) (uint64, error) {
	emulator := emu.NewEmulator(prog.Instructions, emu.WithMaxInstructions(*maxCycles))
	if err := emulator.Run(); err != nil {
		return 0, err
	}
	return emulator.InstructionCount(), nil
}

// runTimingProfile runs the program on the pipeline with tracing disabled.
func runTimingProfile(prog *loader.Program) (uint64, uint64, error) {
	pipe := pipeline.NewPipeline(prog.Instructions, &emu.RegFile{}, emu.NewMemory(),
		pipeline.WithTracing(false))

	if err := pipe.Run(*maxCycles); err != nil {
		return 0, 0, err
	}

	stats := pipe.Stats()
	return stats.Instructions, stats.Cycles, nil
}
