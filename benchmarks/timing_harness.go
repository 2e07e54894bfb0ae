// Package benchmarks provides timing benchmark infrastructure for the
// pipeline model.
package benchmarks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/rvpipe/emu"
	"github.com/sarchlab/rvpipe/insts"
	"github.com/sarchlab/rvpipe/timing/cache"
	"github.com/sarchlab/rvpipe/timing/config"
	"github.com/sarchlab/rvpipe/timing/core"
	"github.com/sarchlab/rvpipe/timing/pipeline"
)

// Version is reported in JSON benchmark reports.
const Version = "0.1.0"

// BenchmarkResult holds the timing results for a single benchmark run.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	// SimulatedCycles is the total cycle count from the timing simulator
	SimulatedCycles uint64 `json:"simulated_cycles"`

	// InstructionsRetired is the number of completed instructions
	InstructionsRetired uint64 `json:"instructions_retired"`

	// CPI is cycles per instruction
	CPI float64 `json:"cpi"`

	// StallCycles is the number of load-use stall cycles
	StallCycles uint64 `json:"stall_cycles"`

	// DataHazards is the number of cycles with a forwarded operand
	DataHazards uint64 `json:"data_hazards"`

	// PipelineFlushes is the number of pipeline flushes
	PipelineFlushes uint64 `json:"pipeline_flushes"`

	// DCacheHits/Misses (if cache enabled)
	DCacheHits   uint64 `json:"dcache_hits,omitempty"`
	DCacheMisses uint64 `json:"dcache_misses,omitempty"`

	// Result is the final value of the benchmark's result register
	Result uint64 `json:"result"`

	// Expected is the value the result register should hold
	Expected uint64 `json:"expected"`

	// MatchesEmulator is true when registers and memory agree with the
	// functional emulator
	MatchesEmulator bool `json:"matches_emulator"`

	// WallTime is the actual time taken to run the simulation
	WallTime time.Duration `json:"wall_time_ns"`
}

// Benchmark defines a single benchmark program.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark measures
	Description string

	// Setup prepares the initial state (e.g., initialize registers, memory)
	Setup func(regFile *emu.RegFile, memory *emu.Memory)

	// Program is the instruction sequence to execute
	Program []insts.Instruction

	// ResultReg holds the benchmark's result when the program finishes
	ResultReg uint8

	// Expected is the expected value of ResultReg (for validation)
	Expected uint64
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// EnableDCache enables data cache simulation
	EnableDCache bool

	// UseEngine drives each pipeline through the event-driven core
	UseEngine bool

	// MaxCycles bounds every run
	MaxCycles uint64

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Verbose writes the cycle trace of every run to Output
	Verbose bool
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		EnableDCache: true,
		MaxCycles:    config.DefaultMaxCycles,
		Output:       os.Stdout,
	}
}

// Harness runs timing benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	return &Harness{
		config:     config,
		benchmarks: []Benchmark{},
	}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks and returns results. It stops at the first
// benchmark that fails to simulate.
func (h *Harness) RunAll() ([]BenchmarkResult, error) {
	results := make([]BenchmarkResult, 0, len(h.benchmarks))

	for _, bench := range h.benchmarks {
		result, err := h.runBenchmark(bench)
		if err != nil {
			return results, fmt.Errorf("benchmark %s: %w", bench.Name, err)
		}
		results = append(results, result)
	}

	return results, nil
}

func (h *Harness) freshState(bench Benchmark) (*emu.RegFile, *emu.Memory) {
	regFile := &emu.RegFile{}
	memory := emu.NewMemory()
	if bench.Setup != nil {
		bench.Setup(regFile, memory)
	}
	return regFile, memory
}

// runBenchmark executes a single benchmark.
func (h *Harness) runBenchmark(bench Benchmark) (BenchmarkResult, error) {
	regFile, memory := h.freshState(bench)

	opts := []pipeline.PipelineOption{pipeline.WithTracing(h.config.Verbose)}
	if h.config.Verbose {
		opts = append(opts, pipeline.WithTraceWriter(h.config.Output))
	}
	if h.config.EnableDCache {
		opts = append(opts, pipeline.WithDCache(cache.DefaultConfig()))
	}

	pipe := pipeline.NewPipeline(bench.Program, regFile, memory, opts...)

	maxCycles := h.config.MaxCycles
	if maxCycles == 0 {
		maxCycles = config.DefaultMaxCycles
	}

	start := time.Now()
	var err error
	if h.config.UseEngine {
		c := core.NewCore(bench.Name, sim.NewSerialEngine(), 1*sim.GHz, pipe)
		err = c.Run(maxCycles)
	} else {
		err = pipe.Run(maxCycles)
	}
	wallTime := time.Since(start)
	if err != nil {
		return BenchmarkResult{}, err
	}
	if !pipe.Halted() {
		return BenchmarkResult{}, fmt.Errorf("did not finish within %d cycles", maxCycles)
	}

	stats := pipe.Stats()
	result := BenchmarkResult{
		Name:                bench.Name,
		Description:         bench.Description,
		SimulatedCycles:     stats.Cycles,
		InstructionsRetired: stats.Instructions,
		CPI:                 stats.CPI(),
		StallCycles:         stats.Stalls,
		DataHazards:         stats.DataHazards,
		PipelineFlushes:     stats.Flushes,
		Result:              regFile.Dump()[bench.ResultReg],
		Expected:            bench.Expected,
		WallTime:            wallTime,
	}

	if pipe.UseDCache() {
		dcStats := pipe.DCacheStats()
		result.DCacheHits = dcStats.Hits
		result.DCacheMisses = dcStats.Misses
	}

	result.MatchesEmulator, err = h.matchesEmulator(bench, regFile, memory)
	if err != nil {
		return BenchmarkResult{}, err
	}

	return result, nil
}

// matchesEmulator replays the benchmark on the functional emulator and
// compares the final architectural state.
func (h *Harness) matchesEmulator(
	bench Benchmark,
	regFile *emu.RegFile,
	memory *emu.Memory,
) (bool, error) {
	refRegs, refMem := h.freshState(bench)
	e := emu.NewEmulator(bench.Program,
		emu.WithRegFile(refRegs),
		emu.WithMemory(refMem),
		emu.WithMaxInstructions(h.config.MaxCycles))

	if err := e.Run(); err != nil {
		return false, fmt.Errorf("reference run: %w", err)
	}

	return regFile.Dump() == refRegs.Dump() &&
		slices.Equal(memory.Dump(), refMem.Dump()), nil
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output, "=== rvpipe Timing Benchmark Results ===")
	_, _ = fmt.Fprintln(h.config.Output, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(h.config.Output, "  Description: %s\n", r.Description)
		_, _ = fmt.Fprintf(h.config.Output, "  Result: %d (expected %d, emulator match: %v)\n",
			r.Result, r.Expected, r.MatchesEmulator)
		_, _ = fmt.Fprintln(h.config.Output, "  --- Timing ---")
		_, _ = fmt.Fprintf(h.config.Output, "  Simulated Cycles:     %d\n", r.SimulatedCycles)
		_, _ = fmt.Fprintf(h.config.Output, "  Instructions Retired: %d\n", r.InstructionsRetired)
		_, _ = fmt.Fprintf(h.config.Output, "  CPI:                  %.3f\n", r.CPI)
		_, _ = fmt.Fprintf(h.config.Output, "  Stall Cycles:         %d\n", r.StallCycles)
		_, _ = fmt.Fprintf(h.config.Output, "  Data Hazards:         %d\n", r.DataHazards)
		_, _ = fmt.Fprintf(h.config.Output, "  Pipeline Flushes:     %d\n", r.PipelineFlushes)

		if r.DCacheHits > 0 || r.DCacheMisses > 0 {
			_, _ = fmt.Fprintln(h.config.Output, "  --- D-Cache ---")
			_, _ = fmt.Fprintf(h.config.Output, "  Hits:   %d\n", r.DCacheHits)
			_, _ = fmt.Fprintf(h.config.Output, "  Misses: %d\n", r.DCacheMisses)
		}

		_, _ = fmt.Fprintf(h.config.Output, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(h.config.Output, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,cycles,instructions,cpi,stalls,data_hazards,flushes,dcache_hits,dcache_misses,result,matches_emulator")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%.3f,%d,%d,%d,%d,%d,%d,%v\n",
			r.Name,
			r.SimulatedCycles,
			r.InstructionsRetired,
			r.CPI,
			r.StallCycles,
			r.DataHazards,
			r.PipelineFlushes,
			r.DCacheHits,
			r.DCacheMisses,
			r.Result,
			r.MatchesEmulator,
		)
	}
}

// BenchmarkReport is the complete output format for benchmark results.
type BenchmarkReport struct {
	// Metadata about the benchmark run
	Metadata ReportMetadata `json:"metadata"`

	// Results is the list of individual benchmark results
	Results []BenchmarkResult `json:"results"`

	// Summary contains aggregate statistics
	Summary ReportSummary `json:"summary"`
}

// ReportMetadata contains information about the benchmark run.
type ReportMetadata struct {
	Timestamp string          `json:"timestamp"`
	Version   string          `json:"version"`
	Config    BenchmarkConfig `json:"config"`
}

// BenchmarkConfig describes the harness configuration used.
type BenchmarkConfig struct {
	DCacheEnabled bool `json:"dcache_enabled"`
	EngineDriven  bool `json:"engine_driven"`
}

// ReportSummary contains aggregate statistics across all benchmarks.
type ReportSummary struct {
	TotalBenchmarks   int           `json:"total_benchmarks"`
	TotalCycles       uint64        `json:"total_cycles"`
	TotalInstructions uint64        `json:"total_instructions"`
	AverageCPI        float64       `json:"average_cpi"`
	AllMatch          bool          `json:"all_match"`
	TotalWallTime     time.Duration `json:"total_wall_time_ns"`
}

// Summarize aggregates results.
func Summarize(results []BenchmarkResult) ReportSummary {
	summary := ReportSummary{
		TotalBenchmarks: len(results),
		AllMatch:        true,
	}

	for _, r := range results {
		summary.TotalCycles += r.SimulatedCycles
		summary.TotalInstructions += r.InstructionsRetired
		summary.TotalWallTime += r.WallTime
		summary.AllMatch = summary.AllMatch && r.MatchesEmulator && r.Result == r.Expected
	}

	if summary.TotalInstructions > 0 {
		summary.AverageCPI = float64(summary.TotalCycles) / float64(summary.TotalInstructions)
	}

	return summary
}

// PrintJSON outputs benchmark results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	report := BenchmarkReport{
		Metadata: ReportMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   Version,
			Config: BenchmarkConfig{
				DCacheEnabled: h.config.EnableDCache,
				EngineDriven:  h.config.UseEngine,
			},
		},
		Results: results,
		Summary: Summarize(results),
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
