package pipeline

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/rvpipe/emu"
	"github.com/sarchlab/rvpipe/insts"
)

// Snapshot is the resumable state of a pipeline after a whole number of
// cycles. Resuming from a snapshot is equivalent to uninterrupted
// execution.
type Snapshot struct {
	PC uint64 `json:"pc"`

	IFID  IFIDRegister  `json:"if_id"`
	IDEX  IDEXRegister  `json:"id_ex"`
	EXMEM EXMEMRegister `json:"ex_mem"`
	MEMWB MEMWBRegister `json:"mem_wb"`

	Cycle     uint64 `json:"cycle"`
	FetchDone bool   `json:"fetch_done"`
	Halted    bool   `json:"halted"`

	Stats Statistics `json:"stats"`

	// Log holds the trace lines of the call that produced the snapshot.
	Log []string `json:"log,omitempty"`
}

// Snapshot captures the current pipeline state.
func (p *Pipeline) Snapshot() *Snapshot {
	return &Snapshot{
		PC:        p.pc,
		IFID:      p.ifid,
		IDEX:      p.idex,
		EXMEM:     p.exmem,
		MEMWB:     p.memwb,
		Cycle:     p.cycle,
		FetchDone: p.fetchDone,
		Halted:    p.halted,
		Stats:     p.stats,
		Log:       p.trace.Lines(),
	}
}

// Restore replaces the pipeline state with s. The recorded log is not
// restored.
func (p *Pipeline) Restore(s *Snapshot) {
	p.pc = s.PC
	p.ifid = s.IFID
	p.idex = s.IDEX
	p.exmem = s.EXMEM
	p.memwb = s.MEMWB
	p.cycle = s.Cycle
	p.fetchDone = s.FetchDone
	p.halted = s.Halted
	p.stats = s.Stats
	p.trace.Reset()
}

// Run executes program on the caller's register file and memory until the
// pipeline halts or the cycle count reaches maxCycles, starting from resume
// if it is not nil. Calling Run again with the returned snapshot and a
// larger maxCycles continues exactly where it stopped; maxCycles of
// previous cycle + 1 steps a single cycle.
func Run(
	program []insts.Instruction,
	regFile *emu.RegFile,
	memory *emu.Memory,
	maxCycles uint64,
	resume *Snapshot,
	opts ...PipelineOption,
) (*Snapshot, error) {
	p := NewPipeline(program, regFile, memory, opts...)
	if resume != nil {
		p.Restore(resume)
	}

	if err := p.Run(maxCycles); err != nil {
		return nil, err
	}

	return p.Snapshot(), nil
}

// LoadSnapshot reads a snapshot from a JSON file.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	s := &Snapshot{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}

	return s, nil
}

// Save writes the snapshot to a JSON file.
func (s *Snapshot) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}

	return nil
}
