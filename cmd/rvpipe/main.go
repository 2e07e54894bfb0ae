// Package main provides the command-line front-end of rvpipe, a 5-stage
// pipeline simulator for a small RISC-V-like instruction set.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/rvpipe/emu"
	"github.com/sarchlab/rvpipe/loader"
	"github.com/sarchlab/rvpipe/timing/config"
	"github.com/sarchlab/rvpipe/timing/core"
	"github.com/sarchlab/rvpipe/timing/pipeline"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type options struct {
	configPath string
	maxCycles  uint64
	step       bool
	trace      bool
	verbose    bool
	functional bool
	engine     bool
	regs       string
	savePath   string
	resumePath string
}

func parseFlags(args []string, stderr io.Writer) (*options, []string, error) {
	opts := &options{}

	fs := flag.NewFlagSet("rvpipe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to simulator configuration JSON file")
	fs.Uint64Var(&opts.maxCycles, "max-cycles", 0, "Absolute cycle ceiling (overrides the config)")
	fs.BoolVar(&opts.step, "step", false, "Step interactively: Enter = one cycle, r = run, q = quit")
	fs.BoolVar(&opts.trace, "trace", false, "Print the cycle trace as it is produced")
	fs.BoolVar(&opts.verbose, "v", false, "Verbose output")
	fs.BoolVar(&opts.functional, "functional", false, "Run the functional emulator instead of the pipeline")
	fs.BoolVar(&opts.engine, "engine", false, "Drive the pipeline through the event-driven core")
	fs.StringVar(&opts.regs, "regs", "", "Initial registers, e.g. x1=100,x2=0x20")
	fs.StringVar(&opts.savePath, "save", "", "Save the session state to a JSON file at exit")
	fs.StringVar(&opts.resumePath, "resume", "", "Resume from a session saved with -save")
	fs.Usage = func() {
		_, _ = fmt.Fprintf(stderr, "Usage: rvpipe [options] <program.s>\n")
		_, _ = fmt.Fprintf(stderr, "\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	return opts, fs.Args(), nil
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, rest, err := parseFlags(args, stderr)
	if err != nil {
		return 2
	}

	if len(rest) < 1 {
		_, _ = fmt.Fprintf(stderr, "Usage: rvpipe [options] <program.s>\n")
		return 2
	}

	programPath := rest[0]

	prog, err := loader.Load(programPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error loading program: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}

	if opts.verbose {
		_, _ = fmt.Fprintf(stdout, "Loaded: %s\n", programPath)
		_, _ = fmt.Fprintf(stdout, "Instructions: %d\n", len(prog.Instructions))
		_, _ = fmt.Fprintf(stdout, "Labels: %d\n", len(prog.Labels))
	}

	regFile := &emu.RegFile{}
	memory := emu.NewMemory()

	if err := preloadRegisters(regFile, opts.regs); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error parsing -regs: %v\n", err)
		return 1
	}

	if opts.functional {
		err = runFunctional(prog, cfg, regFile, memory, stdout)
	} else {
		err = runTiming(opts, prog, cfg, regFile, memory, stdin, stdout)
	}

	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	printState(stdout, regFile, memory)

	return 0
}

func loadConfig(opts *options) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.configPath != "" {
		var err error
		cfg, err = config.LoadConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
	}

	if opts.maxCycles > 0 {
		cfg.MaxCycles = opts.maxCycles
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// preloadRegisters applies a comma-separated list of xN=value assignments.
func preloadRegisters(regFile *emu.RegFile, assignments string) error {
	if strings.TrimSpace(assignments) == "" {
		return nil
	}

	for _, assignment := range strings.Split(assignments, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(assignment), "=")
		if !found || !strings.HasPrefix(name, "x") {
			return fmt.Errorf("invalid assignment %q", assignment)
		}

		reg, err := strconv.ParseUint(name[1:], 10, 8)
		if err != nil {
			return fmt.Errorf("invalid register %q", name)
		}

		v, err := strconv.ParseInt(value, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid value %q", value)
		}

		if err := regFile.Write(uint8(reg), uint64(v)); err != nil {
			return err
		}
	}

	return nil
}

func runFunctional(
	prog *loader.Program,
	cfg *config.Config,
	regFile *emu.RegFile,
	memory *emu.Memory,
	stdout io.Writer,
) error {
	emulator := emu.NewEmulator(prog.Instructions,
		emu.WithRegFile(regFile),
		emu.WithMemory(memory),
		emu.WithMaxInstructions(cfg.MaxCycles),
	)

	if err := emulator.Run(); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(stdout, "Instructions executed: %d\n", emulator.InstructionCount())

	return nil
}

func runTiming(
	opts *options,
	prog *loader.Program,
	cfg *config.Config,
	regFile *emu.RegFile,
	memory *emu.Memory,
	stdin io.Reader,
	stdout io.Writer,
) error {
	pipeOpts := []pipeline.PipelineOption{pipeline.WithConfig(cfg)}
	if opts.trace {
		pipeOpts = append(pipeOpts,
			pipeline.WithTracing(true),
			pipeline.WithTraceWriter(stdout))
	}
	if opts.step && !opts.trace {
		pipeOpts = append(pipeOpts, pipeline.WithTracing(true))
	}

	pipe := pipeline.NewPipeline(prog.Instructions, regFile, memory, pipeOpts...)

	if opts.resumePath != "" {
		s, err := loadSession(opts.resumePath)
		if err != nil {
			return err
		}
		s.restore(pipe, regFile, memory)
	}

	var err error
	switch {
	case opts.step:
		err = stepLoop(pipe, cfg.MaxCycles, !opts.trace, stdin, stdout)
	case opts.engine:
		c := core.NewCore("Core", sim.NewSerialEngine(), 1*sim.GHz, pipe)
		err = c.Run(cfg.MaxCycles)
	default:
		err = pipe.Run(cfg.MaxCycles)
	}
	if err != nil {
		return err
	}

	printStats(stdout, pipe)

	if opts.savePath != "" {
		if err := newSession(pipe, regFile, memory).save(opts.savePath); err != nil {
			return err
		}
		if opts.verbose {
			_, _ = fmt.Fprintf(stdout, "Saved session to %s\n", opts.savePath)
		}
	}

	return nil
}

// stepLoop advances the pipeline one cycle per input line until it halts,
// reaches maxCycles, or the user quits.
func stepLoop(
	pipe *pipeline.Pipeline,
	maxCycles uint64,
	printLog bool,
	stdin io.Reader,
	stdout io.Writer,
) error {
	scanner := bufio.NewScanner(stdin)

	for !pipe.Halted() && pipe.Cycle() < maxCycles {
		_, _ = fmt.Fprintf(stdout, "[cycle %d] (Enter=step, r=run, q=quit) ", pipe.Cycle())
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(stdout)
			return scanner.Err()
		}

		limit := pipe.Cycle() + 1
		switch strings.TrimSpace(scanner.Text()) {
		case "q":
			return nil
		case "r":
			limit = maxCycles
		}

		if err := pipe.Run(limit); err != nil {
			return err
		}

		if printLog {
			for _, line := range pipe.Log() {
				_, _ = fmt.Fprintln(stdout, line)
			}
		}
	}

	return nil
}

func printStats(w io.Writer, pipe *pipeline.Pipeline) {
	stats := pipe.Stats()

	_, _ = fmt.Fprintf(w, "\n")
	if pipe.Halted() {
		_, _ = fmt.Fprintf(w, "Pipeline drained after %d cycles\n", stats.Cycles)
	} else {
		_, _ = fmt.Fprintf(w, "Stopped at cycle %d before draining\n", stats.Cycles)
	}
	_, _ = fmt.Fprintf(w, "Total Instructions: %d\n", stats.Instructions)
	_, _ = fmt.Fprintf(w, "Total Cycles: %d\n", stats.Cycles)
	_, _ = fmt.Fprintf(w, "CPI: %.2f\n", stats.CPI())
	_, _ = fmt.Fprintf(w, "\n")
	_, _ = fmt.Fprintf(w, "Pipeline Events:\n")
	_, _ = fmt.Fprintf(w, "  Stalls:       %d\n", stats.Stalls)
	_, _ = fmt.Fprintf(w, "  Flushes:      %d\n", stats.Flushes)
	_, _ = fmt.Fprintf(w, "  Data hazards: %d\n", stats.DataHazards)

	if pipe.UseDCache() {
		dc := pipe.DCacheStats()
		_, _ = fmt.Fprintf(w, "\nD-Cache:\n")
		_, _ = fmt.Fprintf(w, "  Hits:     %d\n", dc.Hits)
		_, _ = fmt.Fprintf(w, "  Misses:   %d\n", dc.Misses)
		_, _ = fmt.Fprintf(w, "  Hit rate: %.1f%%\n", 100*dc.HitRate())
	}
}

// printState prints the non-zero registers and the memory contents.
func printState(w io.Writer, regFile *emu.RegFile, memory *emu.Memory) {
	_, _ = fmt.Fprintf(w, "\nRegisters:\n")
	for i, v := range regFile.Dump() {
		if v != 0 {
			_, _ = fmt.Fprintf(w, "  x%-2d = %d\n", i, int64(v))
		}
	}

	_, _ = fmt.Fprintf(w, "\nMemory:\n")
	for _, cell := range memory.Dump() {
		_, _ = fmt.Fprintf(w, "  [%d] = %d\n", cell.Addr, int64(cell.Value))
	}
}

// session is the on-disk form of -save and -resume: the pipeline snapshot
// plus the architectural state it runs against.
type session struct {
	Snapshot  *pipeline.Snapshot  `json:"snapshot"`
	Registers [emu.NumRegs]uint64 `json:"registers"`
	Memory    []emu.Cell          `json:"memory"`
}

func newSession(pipe *pipeline.Pipeline, regFile *emu.RegFile, memory *emu.Memory) *session {
	return &session{
		Snapshot:  pipe.Snapshot(),
		Registers: regFile.Dump(),
		Memory:    memory.Dump(),
	}
}

func (s *session) restore(pipe *pipeline.Pipeline, regFile *emu.RegFile, memory *emu.Memory) {
	regFile.Reset()
	for i, v := range s.Registers {
		_ = regFile.Write(uint8(i), v)
	}

	memory.Reset()
	for _, cell := range s.Memory {
		memory.Store(cell.Addr, cell.Value)
	}

	if s.Snapshot != nil {
		pipe.Restore(s.Snapshot)
	}
}

func loadSession(path string) (*session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	s := &session{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}

	return s, nil
}

func (s *session) save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	return nil
}
