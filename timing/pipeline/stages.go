package pipeline

import (
	"fmt"

	"github.com/sarchlab/rvpipe/emu"
	"github.com/sarchlab/rvpipe/insts"
	"github.com/sarchlab/rvpipe/timing/cache"
)

// FetchStage handles instruction fetch from the program.
type FetchStage struct {
	program []insts.Instruction
	tracer  Tracer
}

// NewFetchStage creates a new fetch stage.
func NewFetchStage(program []insts.Instruction, tracer Tracer) *FetchStage {
	return &FetchStage{
		program: program,
		tracer:  tracerOrNop(tracer),
	}
}

// Fetch latches the instruction at *pc and advances the counter. Past the end
// of the program it returns an empty register and false.
func (s *FetchStage) Fetch(pc *uint64) (IFIDRegister, bool) {
	if *pc >= uint64(len(s.program)) {
		s.tracer.Tracef("IF: End of program")
		return IFIDRegister{}, false
	}

	reg := IFIDRegister{
		Valid: true,
		PC:    *pc,
		Inst:  s.program[*pc],
	}
	*pc++

	s.tracer.Tracef("IF: Fetched instruction %v at PC=%d", reg.Inst, reg.PC)

	return reg, true
}

// DecodeStage handles field extraction and source operand resolution.
type DecodeStage struct {
	regFile *emu.RegFile
	decoder *insts.Decoder
	tracer  Tracer
}

// NewDecodeStage creates a new decode stage.
func NewDecodeStage(regFile *emu.RegFile, tracer Tracer) *DecodeStage {
	return &DecodeStage{
		regFile: regFile,
		decoder: insts.NewDecoder(),
		tracer:  tracerOrNop(tracer),
	}
}

// Decode extracts the instruction fields and resolves the source values.
// Each source is taken from the first of: the current EX/MEM register, the
// previous EX/MEM register, the MEM/WB register, the register file. Only
// registers carrying an already computed value take part in the bypass.
func (s *DecodeStage) Decode(
	ifid *IFIDRegister,
	exmem, prevEXMEM *EXMEMRegister,
	memwb *MEMWBRegister,
) (IDEXRegister, error) {
	if !ifid.Valid {
		s.tracer.Tracef("ID: NOP")
		return IDEXRegister{}, nil
	}

	fields := s.decoder.Fields(ifid.Inst)

	rs1Value, err := s.resolve(fields.Rs1, exmem, prevEXMEM, memwb)
	if err != nil {
		return IDEXRegister{}, err
	}

	rs2Value, err := s.resolve(fields.Rs2, exmem, prevEXMEM, memwb)
	if err != nil {
		return IDEXRegister{}, err
	}

	s.tracer.Tracef("ID: Decoded %v | rs1=x%d(%d), rs2=x%d(%d), imm=%d",
		fields.Op, fields.Rs1, rs1Value, fields.Rs2, rs2Value, fields.Imm)

	return IDEXRegister{
		Valid:    true,
		PC:       ifid.PC,
		Inst:     ifid.Inst,
		Rd:       fields.Rd,
		Rs1:      fields.Rs1,
		Rs2:      fields.Rs2,
		UsesRs2:  fields.UsesRs2,
		Rs1Value: rs1Value,
		Rs2Value: rs2Value,
		Imm:      fields.Imm,
	}, nil
}

func (s *DecodeStage) resolve(
	reg uint8,
	exmem, prevEXMEM *EXMEMRegister,
	memwb *MEMWBRegister,
) (uint64, error) {
	value, err := s.regFile.Read(reg)
	if err != nil || reg == 0 {
		return value, err
	}

	if exmem.Resolved() && exmem.Rd == reg {
		return exmem.ALUResult, nil
	}

	if prevEXMEM.Resolved() && prevEXMEM.Rd == reg {
		return prevEXMEM.ALUResult, nil
	}

	if v, ok := memwb.WriteValue(); ok && memwb.Rd == reg {
		return v, nil
	}

	return value, nil
}

// ExecuteStage handles ALU operations and address calculation.
type ExecuteStage struct {
	alu    *emu.ALU
	tracer Tracer
}

// NewExecuteStage creates a new execute stage.
func NewExecuteStage(tracer Tracer) *ExecuteStage {
	return &ExecuteStage{
		alu:    emu.NewALU(),
		tracer: tracerOrNop(tracer),
	}
}

// ExecuteResult holds the result of the execute stage.
type ExecuteResult struct {
	EXMEM EXMEMRegister

	// Branch resolution, meaningful for BEQ, BNE, JAL and JALR only.
	BranchTaken bool
	NextPC      uint64
}

// Execute performs the ALU operation of the instruction in ID/EX. exmem and
// memwb are the registers forwarded values are taken from.
func (s *ExecuteStage) Execute(
	idex *IDEXRegister,
	forwarding ForwardingResult,
	exmem *EXMEMRegister,
	memwb *MEMWBRegister,
) (ExecuteResult, error) {
	if !idex.Valid {
		s.tracer.Tracef("EX: NOP")
		return ExecuteResult{}, nil
	}

	op := idex.Inst.Op
	rs1Value := idex.Rs1Value
	rs2Value := idex.Rs2Value

	// Branch operands were already resolved against in-flight producers
	// at decode.
	if !op.IsBranch() {
		rs1Value = forwardedValue(forwarding.ForwardA, rs1Value, exmem, memwb)
		rs2Value = forwardedValue(forwarding.ForwardB, rs2Value, exmem, memwb)
	}

	aluResult, err := s.alu.Execute(op, emu.Operands{
		Rs1: rs1Value,
		Rs2: rs2Value,
		Imm: idex.Imm,
		PC:  idex.PC,
	})
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("execute PC=%d: %w", idex.PC, err)
	}

	result := ExecuteResult{
		EXMEM: EXMEMRegister{
			Valid:     true,
			PC:        idex.PC,
			Inst:      idex.Inst,
			Rd:        idex.Rd,
			ALUResult: aluResult.Value,
			RegWrite:  op.WritesRegister(),
			MemRead:   op == insts.OpLOAD,
			MemWrite:  op == insts.OpSTORE,
		},
	}

	if op == insts.OpSTORE {
		result.EXMEM.StoreValue = rs2Value
	}

	if op.IsControlFlow() {
		result.BranchTaken = aluResult.Taken
		result.NextPC = aluResult.NextPC
	}

	s.tracer.Tracef("EX: op=%v rs1_val=%d rs2_val=%d imm=%d -> result=%d",
		op, rs1Value, rs2Value, idex.Imm, aluResult.Value)

	return result, nil
}

func forwardedValue(
	source ForwardSource,
	value uint64,
	exmem *EXMEMRegister,
	memwb *MEMWBRegister,
) uint64 {
	switch source {
	case ForwardFromEXMEM:
		return exmem.ALUResult
	case ForwardFromMEMWB:
		if v, ok := memwb.WriteValue(); ok {
			return v
		}
	}
	return value
}

// MemoryStage handles data memory access.
type MemoryStage struct {
	memory *emu.Memory
	dcache *cache.Cache
	tracer Tracer
}

// NewMemoryStage creates a new memory stage. dcache may be nil.
func NewMemoryStage(memory *emu.Memory, dcache *cache.Cache, tracer Tracer) *MemoryStage {
	return &MemoryStage{
		memory: memory,
		dcache: dcache,
		tracer: tracerOrNop(tracer),
	}
}

// Access performs the memory operation of the instruction in EX/MEM and
// produces the MEM/WB register. Memory accesses never fail.
func (s *MemoryStage) Access(exmem *EXMEMRegister) MEMWBRegister {
	if !exmem.Valid {
		s.tracer.Tracef("MEM: NOP")
		return MEMWBRegister{}
	}

	result := MEMWBRegister{
		Valid:     true,
		PC:        exmem.PC,
		Inst:      exmem.Inst,
		Rd:        exmem.Rd,
		ALUResult: exmem.ALUResult,
		RegWrite:  exmem.RegWrite,
		MemToReg:  exmem.MemRead,
	}

	addr := exmem.ALUResult

	switch {
	case exmem.MemRead:
		result.MemData = s.memory.Load(addr)
		result.ValueReady = true
		if s.dcache != nil {
			s.dcache.Read(addr)
		}
		s.tracer.Tracef("MEM: Loaded %d from address %d", result.MemData, addr)
	case exmem.MemWrite:
		s.memory.Store(addr, exmem.StoreValue)
		if s.dcache != nil {
			s.dcache.Write(addr)
		}
		s.tracer.Tracef("MEM: Stored %d at address %d", exmem.StoreValue, addr)
	default:
		result.ValueReady = exmem.RegWrite
		s.tracer.Tracef("MEM: No memory access for op=%v", exmem.Inst.Op)
	}

	return result
}

// WritebackStage handles register writeback.
type WritebackStage struct {
	regFile *emu.RegFile
	tracer  Tracer
}

// NewWritebackStage creates a new writeback stage.
func NewWritebackStage(regFile *emu.RegFile, tracer Tracer) *WritebackStage {
	return &WritebackStage{
		regFile: regFile,
		tracer:  tracerOrNop(tracer),
	}
}

// Writeback commits the result in MEM/WB to the register file. It returns
// true when an instruction retired this cycle. It never decides halting.
func (s *WritebackStage) Writeback(memwb *MEMWBRegister) (bool, error) {
	if !memwb.Valid {
		s.tracer.Tracef("WB: NOP")
		return false, nil
	}

	if !memwb.RegWrite {
		s.tracer.Tracef("WB: No write for op=%v", memwb.Inst.Op)
		return true, nil
	}

	value, ok := memwb.WriteValue()
	if !ok {
		return false, fmt.Errorf("%w: %v at PC=%d",
			emu.ErrMissingWriteValue, memwb.Inst.Op, memwb.PC)
	}

	if err := s.regFile.Write(memwb.Rd, value); err != nil {
		return false, err
	}

	if memwb.MemToReg {
		s.tracer.Tracef("WB: Loaded %d into x%d", value, memwb.Rd)
	} else {
		s.tracer.Tracef("WB: Wrote %d to x%d", value, memwb.Rd)
	}

	return true, nil
}
