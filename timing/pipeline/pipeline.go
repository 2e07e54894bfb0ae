package pipeline

import (
	"fmt"
	"io"

	"github.com/sarchlab/rvpipe/emu"
	"github.com/sarchlab/rvpipe/insts"
	"github.com/sarchlab/rvpipe/timing/cache"
	"github.com/sarchlab/rvpipe/timing/config"
)

// Statistics holds pipeline performance statistics.
type Statistics struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64 `json:"cycles"`
	// Instructions is the number of instructions completed (retired).
	Instructions uint64 `json:"instructions"`
	// Stalls is the number of load-use stall cycles.
	Stalls uint64 `json:"stalls"`
	// Flushes is the number of pipeline flushes due to taken branches and jumps.
	Flushes uint64 `json:"flushes"`
	// DataHazards is the number of cycles in which an operand was forwarded.
	DataHazards uint64 `json:"data_hazards"`
}

// CPI returns the cycles per instruction.
func (s Statistics) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Instructions)
}

// PipelineOption is a functional option for configuring the Pipeline.
type PipelineOption func(*Pipeline)

// WithTraceWriter mirrors every trace line to w as it is produced.
func WithTraceWriter(w io.Writer) PipelineOption {
	return func(p *Pipeline) {
		p.traceWriter = w
	}
}

// WithTracing enables or disables collection of trace lines. Tracing is
// enabled by default.
func WithTracing(enabled bool) PipelineOption {
	return func(p *Pipeline) {
		p.tracing = enabled
	}
}

// WithDCache enables the data-cache statistics model with the given
// configuration.
func WithDCache(config cache.Config) PipelineOption {
	return func(p *Pipeline) {
		p.dcache = cache.New(config)
	}
}

// WithConfig applies the tracing and data-cache settings of cfg.
func WithConfig(cfg *config.Config) PipelineOption {
	return func(p *Pipeline) {
		p.tracing = cfg.Trace
		if cfg.DCache.Enabled {
			p.dcache = cache.New(cfg.DCache.Config)
		}
	}
}

// Pipeline implements a 5-stage pipelined CPU model.
// Stages: Fetch (IF) -> Decode (ID) -> Execute (EX) -> Memory (MEM) -> Writeback (WB)
//
// The register file and memory are owned by the caller and mutated in
// place. The pipeline owns only its registers, program counter, and
// bookkeeping, all of which are captured by Snapshot.
type Pipeline struct {
	program []insts.Instruction
	regFile *emu.RegFile
	memory  *emu.Memory

	// Pipeline stages
	fetchStage     *FetchStage
	decodeStage    *DecodeStage
	executeStage   *ExecuteStage
	memoryStage    *MemoryStage
	writebackStage *WritebackStage

	controlUnit *ControlUnit

	// Pipeline registers
	ifid  IFIDRegister
	idex  IDEXRegister
	exmem EXMEMRegister
	memwb MEMWBRegister

	pc        uint64
	cycle     uint64
	fetchDone bool
	halted    bool

	stats Statistics

	trace       *Trace
	tracing     bool
	traceWriter io.Writer

	dcache *cache.Cache
}

// NewPipeline creates a new 5-stage pipeline executing program.
func NewPipeline(
	program []insts.Instruction,
	regFile *emu.RegFile,
	memory *emu.Memory,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		program: program,
		regFile: regFile,
		memory:  memory,
		tracing: true,
	}

	for _, opt := range opts {
		opt(p)
	}

	p.trace = NewTrace(p.tracing, p.traceWriter)
	p.fetchStage = NewFetchStage(program, p.trace)
	p.decodeStage = NewDecodeStage(regFile, p.trace)
	p.executeStage = NewExecuteStage(p.trace)
	p.memoryStage = NewMemoryStage(memory, p.dcache, p.trace)
	p.writebackStage = NewWritebackStage(regFile, p.trace)
	p.controlUnit = NewControlUnit(p.trace)

	return p
}

// PC returns the slot of the next instruction to fetch.
func (p *Pipeline) PC() uint64 {
	return p.pc
}

// Cycle returns the number of cycles executed.
func (p *Pipeline) Cycle() uint64 {
	return p.cycle
}

// GetIFID returns the IF/ID pipeline register.
func (p *Pipeline) GetIFID() *IFIDRegister {
	return &p.ifid
}

// GetIDEX returns the ID/EX pipeline register.
func (p *Pipeline) GetIDEX() *IDEXRegister {
	return &p.idex
}

// GetEXMEM returns the EX/MEM pipeline register.
func (p *Pipeline) GetEXMEM() *EXMEMRegister {
	return &p.exmem
}

// GetMEMWB returns the MEM/WB pipeline register.
func (p *Pipeline) GetMEMWB() *MEMWBRegister {
	return &p.memwb
}

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() Statistics {
	return p.stats
}

// UseDCache returns true if the data-cache model is enabled.
func (p *Pipeline) UseDCache() bool {
	return p.dcache != nil
}

// DCacheStats returns D-cache statistics, or empty if D-cache not enabled.
func (p *Pipeline) DCacheStats() cache.Statistics {
	if p.dcache == nil {
		return cache.Statistics{}
	}
	return p.dcache.Stats()
}

// Halted returns true once the pipeline has fully drained.
func (p *Pipeline) Halted() bool {
	return p.halted
}

// Log returns the trace lines recorded since the last Run or ResetLog.
func (p *Pipeline) Log() []string {
	return p.trace.Lines()
}

// ResetLog drops the recorded trace lines.
func (p *Pipeline) ResetLog() {
	p.trace.Reset()
}

// Run ticks the pipeline until it halts or the cycle count reaches
// maxCycles. maxCycles is an absolute ceiling, not a budget: a pipeline
// already at maxCycles does not advance. The log is reset first.
func (p *Pipeline) Run(maxCycles uint64) error {
	p.trace.Reset()

	for !p.halted && p.cycle < maxCycles {
		if err := p.Tick(); err != nil {
			return err
		}
	}

	return nil
}

// RunCycles executes the pipeline for up to the specified number of
// cycles. Returns true if still running, false if halted.
func (p *Pipeline) RunCycles(cycles uint64) (bool, error) {
	for i := uint64(0); i < cycles && !p.halted; i++ {
		if err := p.Tick(); err != nil {
			return false, err
		}
	}
	return !p.halted, nil
}

// Tick executes one pipeline cycle.
//
// Stages are evaluated in reverse order (WB, MEM, control, EX, ID, IF) so
// that each stage reads the pipeline register produced in the previous
// cycle before a later step of this cycle overwrites it.
//
// Hazard handling:
//   - Decode resolves sources against in-flight results
//   - Execute applies forwarding from EX/MEM and MEM/WB
//   - Load-use stalls insert one bubble when a load result is needed immediately
//   - A taken branch or jump flushes IF/ID and ID/EX and redirects fetch
//
// A returned error is fatal; the pipeline state is left as it was at the
// point of failure.
func (p *Pipeline) Tick() error {
	if p.halted {
		return nil
	}

	p.cycle++
	p.stats.Cycles++
	p.trace.Tracef("=== Cycle %d ===", p.cycle)

	// Stage 5: Writeback
	retired, err := p.writebackStage.Writeback(&p.memwb)
	if err != nil {
		return fmt.Errorf("cycle %d: %w", p.cycle, err)
	}
	if retired {
		p.stats.Instructions++
	}

	// Stage 4: Memory
	p.memwb = p.memoryStage.Access(&p.exmem)

	// Control signals from the pre-execute ID/EX and EX/MEM registers.
	// Branch flushing is applied after execute below, not from these signals.
	signals := p.controlUnit.ComputeSignals(&p.ifid, &p.idex, &p.exmem, &p.memwb, false)
	if signals.ForwardA != ForwardNone || signals.ForwardB != ForwardNone {
		p.stats.DataHazards++
	}

	// Stage 3: Execute
	prevEXMEM := p.exmem
	exResult, err := p.executeStage.Execute(&p.idex, signals.ForwardingResult, &prevEXMEM, &p.memwb)
	if err != nil {
		return fmt.Errorf("cycle %d: %w", p.cycle, err)
	}
	p.exmem = exResult.EXMEM

	if exResult.BranchTaken {
		p.trace.Tracef("Branch taken! Flushing pipeline and jumping to PC=%d", exResult.NextPC)
		p.pc = exResult.NextPC
		p.ifid.Clear()
		p.idex.Clear()
		p.fetchDone = false
		p.stats.Flushes++
	}

	// Stage 2: Decode
	switch {
	case signals.BubbleExecute:
		p.idex.Clear()
		p.stats.Stalls++
		p.trace.Tracef("ID: Stalled, bubble inserted")
	case signals.StallDecode:
		p.trace.Tracef("ID: Stalled")
	default:
		idex, err := p.decodeStage.Decode(&p.ifid, &p.exmem, &prevEXMEM, &p.memwb)
		if err != nil {
			return fmt.Errorf("cycle %d: %w", p.cycle, err)
		}
		p.idex = idex
	}

	// Stage 1: Fetch
	switch {
	case signals.StallFetch:
		p.trace.Tracef("IF: Stalled")
	case p.fetchDone:
		p.ifid.Clear()
	default:
		ifid, fetched := p.fetchStage.Fetch(&p.pc)
		p.ifid = ifid
		if !fetched {
			p.fetchDone = true
		}
	}

	if p.drained() {
		p.halted = true
		p.trace.Tracef("Pipeline drained, stopping.")
	}

	return nil
}

func (p *Pipeline) drained() bool {
	return p.fetchDone &&
		!p.ifid.Valid && !p.idex.Valid && !p.exmem.Valid && !p.memwb.Valid
}

// Reset clears all pipeline state. The register file and memory are left
// untouched.
func (p *Pipeline) Reset() {
	p.ifid.Clear()
	p.idex.Clear()
	p.exmem.Clear()
	p.memwb.Clear()
	p.pc = 0
	p.cycle = 0
	p.fetchDone = false
	p.halted = false
	p.stats = Statistics{}
	p.trace.Reset()
	if p.dcache != nil {
		p.dcache.Reset()
	}
}
