package emu

import (
	"errors"
	"fmt"

	"github.com/sarchlab/rvpipe/insts"
)

// ErrMaxInstructions is returned when the instruction limit is reached
// before the program runs off its end.
var ErrMaxInstructions = errors.New("max instructions reached")

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// Exited is true if the program counter left the instruction sequence.
	Exited bool

	// Err is set if an error occurred during execution.
	Err error
}

// Emulator executes an instruction sequence functionally, one instruction
// per step, with the same ALU semantics as the pipeline. It serves as the
// reference model for the timing simulator.
type Emulator struct {
	program []insts.Instruction
	regFile *RegFile
	memory  *Memory
	alu     *ALU
	decoder *insts.Decoder

	pc               uint64
	instructionCount uint64
	maxInstructions  uint64 // 0 means no limit
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithRegFile makes the emulator operate on a caller-owned register file.
func WithRegFile(regFile *RegFile) EmulatorOption {
	return func(e *Emulator) {
		e.regFile = regFile
	}
}

// WithMemory makes the emulator operate on a caller-owned memory.
func WithMemory(memory *Memory) EmulatorOption {
	return func(e *Emulator) {
		e.memory = memory
	}
}

// WithMaxInstructions sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// NewEmulator creates a new emulator for the given program.
func NewEmulator(program []insts.Instruction, opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		program: program,
		alu:     NewALU(),
		decoder: insts.NewDecoder(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.regFile == nil {
		e.regFile = &RegFile{}
	}
	if e.memory == nil {
		e.memory = NewMemory()
	}

	return e
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regFile
}

// Memory returns the emulator's memory.
func (e *Emulator) Memory() *Memory {
	return e.memory
}

// PC returns the slot of the next instruction to execute.
func (e *Emulator) PC() uint64 {
	return e.pc
}

// InstructionCount returns the number of instructions executed.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// Reset rewinds the program counter and clears all architectural state.
func (e *Emulator) Reset() {
	e.pc = 0
	e.instructionCount = 0
	e.regFile.Reset()
	e.memory.Reset()
}

// Step executes a single instruction.
func (e *Emulator) Step() StepResult {
	if e.pc >= uint64(len(e.program)) {
		return StepResult{Exited: true}
	}

	if e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions {
		return StepResult{Err: ErrMaxInstructions}
	}

	inst := e.program[e.pc]
	if err := e.execute(inst); err != nil {
		return StepResult{Err: fmt.Errorf("slot %d (%v): %w", e.pc, inst, err)}
	}

	e.instructionCount++

	return StepResult{Exited: e.pc >= uint64(len(e.program))}
}

// Run executes instructions until the program counter leaves the program or
// an error occurs.
func (e *Emulator) Run() error {
	for {
		result := e.Step()
		if result.Err != nil {
			return result.Err
		}
		if result.Exited {
			return nil
		}
	}
}

func (e *Emulator) execute(inst insts.Instruction) error {
	fields := e.decoder.Fields(inst)

	rs1, err := e.regFile.Read(fields.Rs1)
	if err != nil {
		return err
	}
	rs2, err := e.regFile.Read(fields.Rs2)
	if err != nil {
		return err
	}

	result, err := e.alu.Execute(inst.Op, Operands{
		Rs1: rs1,
		Rs2: rs2,
		Imm: fields.Imm,
		PC:  e.pc,
	})
	if err != nil {
		return err
	}

	value := result.Value
	switch inst.Op {
	case insts.OpLOAD:
		value = e.memory.Load(result.Value)
	case insts.OpSTORE:
		e.memory.Store(result.Value, rs2)
	}

	if inst.Op.WritesRegister() {
		if err := e.regFile.Write(fields.Rd, value); err != nil {
			return err
		}
	}

	if result.Taken {
		e.pc = result.NextPC
	} else {
		e.pc++
	}

	return nil
}
