// Package pipeline provides the 5-stage pipeline implementation for timing simulation.
package pipeline

import "github.com/sarchlab/rvpipe/insts"

// IFIDRegister holds state between Fetch and Decode stages.
type IFIDRegister struct {
	// Valid indicates if this pipeline register contains valid data.
	Valid bool `json:"valid"`

	// PC is the instruction slot of the fetched instruction.
	PC uint64 `json:"pc"`

	// Inst is the fetched instruction record.
	Inst insts.Instruction `json:"inst"`
}

// Clear resets the IF/ID register to empty state.
func (r *IFIDRegister) Clear() {
	*r = IFIDRegister{}
}

// IDEXRegister holds state between Decode and Execute stages. An invalid
// register is a NOP bubble.
type IDEXRegister struct {
	Valid bool              `json:"valid"`
	PC    uint64            `json:"pc"`
	Inst  insts.Instruction `json:"inst"`

	// Register numbers for hazard detection. Absent sources are 0.
	Rd  uint8 `json:"rd"`
	Rs1 uint8 `json:"rs1"`
	Rs2 uint8 `json:"rs2"`

	// UsesRs2 is false for immediate-form instructions.
	UsesRs2 bool `json:"uses_rs2"`

	// Source values resolved at decode.
	Rs1Value uint64 `json:"rs1_value"`
	Rs2Value uint64 `json:"rs2_value"`

	Imm int64 `json:"imm"`
}

// Clear resets the ID/EX register to a NOP bubble.
func (r *IDEXRegister) Clear() {
	*r = IDEXRegister{}
}

// EXMEMRegister holds state between Execute and Memory stages.
type EXMEMRegister struct {
	Valid bool              `json:"valid"`
	PC    uint64            `json:"pc"`
	Inst  insts.Instruction `json:"inst"`

	Rd uint8 `json:"rd"`

	// ALUResult is the computed value, or the effective address of a memory
	// operation.
	ALUResult uint64 `json:"alu_result"`

	// StoreValue is the value to write for a store.
	StoreValue uint64 `json:"store_value"`

	// Control signals.
	RegWrite bool `json:"reg_write"`
	MemRead  bool `json:"mem_read"`
	MemWrite bool `json:"mem_write"`
}

// Clear resets the EX/MEM register to empty state.
func (r *EXMEMRegister) Clear() {
	*r = EXMEMRegister{}
}

// Resolved reports whether the register carries a register result that is
// already computed. A load's result only exists after the memory stage.
func (r *EXMEMRegister) Resolved() bool {
	return r.Valid && r.RegWrite && !r.MemRead
}

// MEMWBRegister holds state between Memory and Writeback stages.
type MEMWBRegister struct {
	Valid bool              `json:"valid"`
	PC    uint64            `json:"pc"`
	Inst  insts.Instruction `json:"inst"`

	Rd uint8 `json:"rd"`

	ALUResult uint64 `json:"alu_result"`
	MemData   uint64 `json:"mem_data"`

	// Control signals.
	RegWrite bool `json:"reg_write"`
	MemToReg bool `json:"mem_to_reg"`

	// ValueReady is set once the write value has been resolved.
	ValueReady bool `json:"value_ready"`
}

// Clear resets the MEM/WB register to empty state.
func (r *MEMWBRegister) Clear() {
	*r = MEMWBRegister{}
}

// WriteValue returns the value write-back stores, and whether one exists.
func (r *MEMWBRegister) WriteValue() (uint64, bool) {
	if !r.Valid || !r.RegWrite || !r.ValueReady {
		return 0, false
	}
	if r.MemToReg {
		return r.MemData, true
	}
	return r.ALUResult, true
}
