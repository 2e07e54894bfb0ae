package insts

import (
	"fmt"
	"strings"
)

// Op represents an opcode.
type Op uint8

// Supported opcodes.
const (
	OpUnknown Op = iota
	OpADD
	OpSUB
	OpAND
	OpOR
	OpXOR
	OpADDI
	OpLOAD
	OpSTORE
	OpBEQ
	OpBNE
	OpJAL
	OpJALR
	OpLUI
	OpAUIPC
)

var opNames = [...]string{
	OpUnknown: "UNKNOWN",
	OpADD:     "ADD",
	OpSUB:     "SUB",
	OpAND:     "AND",
	OpOR:      "OR",
	OpXOR:     "XOR",
	OpADDI:    "ADDI",
	OpLOAD:    "LOAD",
	OpSTORE:   "STORE",
	OpBEQ:     "BEQ",
	OpBNE:     "BNE",
	OpJAL:     "JAL",
	OpJALR:    "JALR",
	OpLUI:     "LUI",
	OpAUIPC:   "AUIPC",
}

// String returns the mnemonic of the opcode.
func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("OP(%d)", uint8(op))
}

// ParseOp looks up an opcode by mnemonic. LW and SW are accepted as aliases
// of LOAD and STORE.
func ParseOp(name string) (Op, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	switch name {
	case "LW":
		return OpLOAD, true
	case "SW":
		return OpSTORE, true
	}

	for i, n := range opNames {
		if Op(i) != OpUnknown && n == name {
			return Op(i), true
		}
	}

	return OpUnknown, false
}

// Format represents the operand shape of an instruction.
type Format uint8

// Instruction formats.
const (
	FormatUnknown Format = iota
	FormatR              // rd, rs1, rs2
	FormatI              // rd, rs1, imm
	FormatS              // rs1, rs2, imm
	FormatB              // rs1, rs2, imm
	FormatJ              // rd, imm
	FormatU              // rd, imm
)

// Format returns the operand shape of the opcode.
func (op Op) Format() Format {
	switch op {
	case OpADD, OpSUB, OpAND, OpOR, OpXOR:
		return FormatR
	case OpADDI, OpLOAD, OpJALR:
		return FormatI
	case OpSTORE:
		return FormatS
	case OpBEQ, OpBNE:
		return FormatB
	case OpJAL:
		return FormatJ
	case OpLUI, OpAUIPC:
		return FormatU
	default:
		return FormatUnknown
	}
}

// HasRd reports whether the format carries a destination register.
func (f Format) HasRd() bool {
	return f == FormatR || f == FormatI || f == FormatJ || f == FormatU
}

// UsesRs1 reports whether the format reads a first source register.
func (f Format) UsesRs1() bool {
	return f == FormatR || f == FormatI || f == FormatS || f == FormatB
}

// UsesRs2 reports whether the format reads a second source register.
func (f Format) UsesRs2() bool {
	return f == FormatR || f == FormatS || f == FormatB
}

// HasImm reports whether the format carries an immediate.
func (f Format) HasImm() bool {
	return f != FormatR && f != FormatUnknown
}

// WritesRegister reports whether write-back stores a result for the opcode.
func (op Op) WritesRegister() bool {
	switch op {
	case OpADD, OpSUB, OpAND, OpOR, OpXOR, OpADDI,
		OpLOAD, OpLUI, OpAUIPC, OpJAL, OpJALR:
		return true
	default:
		return false
	}
}

// Forwardable reports whether the forwarding unit may bypass the opcode's
// result. Jumps write a link register but are never forwarded: the flush
// they cause keeps every consumer at least two cycles behind.
func (op Op) Forwardable() bool {
	return op.WritesRegister() && !op.IsJump()
}

// IsBranch reports whether the opcode is a conditional branch.
func (op Op) IsBranch() bool {
	return op == OpBEQ || op == OpBNE
}

// IsJump reports whether the opcode is an unconditional jump.
func (op Op) IsJump() bool {
	return op == OpJAL || op == OpJALR
}

// IsControlFlow reports whether the opcode may redirect the program counter.
func (op Op) IsControlFlow() bool {
	return op.IsBranch() || op.IsJump()
}

// IsMemory reports whether the opcode accesses data memory.
func (op Op) IsMemory() bool {
	return op == OpLOAD || op == OpSTORE
}

// Instruction is an immutable, pre-structured instruction record. Only the
// fields required by Op.Format() are meaningful; the others are zero.
type Instruction struct {
	Op  Op    `json:"op"`
	Rd  uint8 `json:"rd,omitempty"`
	Rs1 uint8 `json:"rs1,omitempty"`
	Rs2 uint8 `json:"rs2,omitempty"`
	Imm int64 `json:"imm,omitempty"`
}

// R builds a register-register instruction.
func R(op Op, rd, rs1, rs2 uint8) Instruction {
	return Instruction{Op: op, Rd: rd, Rs1: rs1, Rs2: rs2}
}

// I builds a register-immediate instruction (ADDI, LOAD, JALR).
func I(op Op, rd, rs1 uint8, imm int64) Instruction {
	return Instruction{Op: op, Rd: rd, Rs1: rs1, Imm: imm}
}

// S builds a store: mem[rs1+imm] = rs2.
func S(rs1, rs2 uint8, imm int64) Instruction {
	return Instruction{Op: OpSTORE, Rs1: rs1, Rs2: rs2, Imm: imm}
}

// B builds a conditional branch with an offset in instruction slots.
func B(op Op, rs1, rs2 uint8, offset int64) Instruction {
	return Instruction{Op: op, Rs1: rs1, Rs2: rs2, Imm: offset}
}

// J builds a JAL with an offset in instruction slots.
func J(rd uint8, offset int64) Instruction {
	return Instruction{Op: OpJAL, Rd: rd, Imm: offset}
}

// U builds an upper-immediate instruction (LUI, AUIPC).
func U(op Op, rd uint8, imm int64) Instruction {
	return Instruction{Op: op, Rd: rd, Imm: imm}
}

// Format returns the operand shape of the instruction.
func (i Instruction) Format() Format {
	return i.Op.Format()
}

// String renders the instruction in assembly syntax.
func (i Instruction) String() string {
	switch i.Format() {
	case FormatR:
		return fmt.Sprintf("%v x%d, x%d, x%d", i.Op, i.Rd, i.Rs1, i.Rs2)
	case FormatI:
		if i.Op == OpLOAD {
			return fmt.Sprintf("%v x%d, %d(x%d)", i.Op, i.Rd, i.Imm, i.Rs1)
		}
		return fmt.Sprintf("%v x%d, x%d, %d", i.Op, i.Rd, i.Rs1, i.Imm)
	case FormatS:
		return fmt.Sprintf("%v x%d, %d(x%d)", i.Op, i.Rs2, i.Imm, i.Rs1)
	case FormatB:
		return fmt.Sprintf("%v x%d, x%d, %d", i.Op, i.Rs1, i.Rs2, i.Imm)
	case FormatJ, FormatU:
		return fmt.Sprintf("%v x%d, %d", i.Op, i.Rd, i.Imm)
	default:
		return i.Op.String()
	}
}

// Fields is the structural field extraction of an instruction. Absent
// source registers read as register 0.
type Fields struct {
	Op  Op
	Rd  uint8
	Rs1 uint8
	Rs2 uint8
	Imm int64

	HasRd   bool
	UsesRs1 bool
	UsesRs2 bool
	HasImm  bool
}

// Decoder extracts operand fields from instruction records.
type Decoder struct{}

// NewDecoder creates a new instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Fields extracts the operand fields the instruction's format defines.
// Fields outside the format are reported as zero.
func (d *Decoder) Fields(inst Instruction) Fields {
	f := inst.Format()
	fields := Fields{
		Op:      inst.Op,
		HasRd:   f.HasRd(),
		UsesRs1: f.UsesRs1(),
		UsesRs2: f.UsesRs2(),
		HasImm:  f.HasImm(),
	}

	if fields.HasRd {
		fields.Rd = inst.Rd
	}
	if fields.UsesRs1 {
		fields.Rs1 = inst.Rs1
	}
	if fields.UsesRs2 {
		fields.Rs2 = inst.Rs2
	}
	if fields.HasImm {
		fields.Imm = inst.Imm
	}

	return fields
}

// Reads reports whether the instruction reads register reg as a source
// operand. Register 0 is never reported.
func (d *Decoder) Reads(inst Instruction, reg uint8) bool {
	if reg == 0 {
		return false
	}
	fields := d.Fields(inst)
	return (fields.UsesRs1 && fields.Rs1 == reg) ||
		(fields.UsesRs2 && fields.Rs2 == reg)
}
