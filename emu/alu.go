package emu

import (
	"fmt"

	"github.com/sarchlab/rvpipe/insts"
)

// Operands are the input values of one ALU operation.
type Operands struct {
	Rs1 uint64
	Rs2 uint64
	Imm int64

	// PC is the instruction slot of the operation.
	PC uint64
}

// Result is the output of one ALU operation.
type Result struct {
	// Value is the computed result. For branches it is the fall-through
	// slot; for jumps it is the link value.
	Value uint64

	// NextPC is the resolved next slot for control-flow operations.
	NextPC uint64

	// Taken is true when a branch condition holds or for any jump.
	Taken bool
}

// ALU computes integer results and control-flow targets. It holds no state.
type ALU struct{}

// NewALU creates a new ALU.
func NewALU() *ALU {
	return &ALU{}
}

// Execute dispatches op over the operands. All arithmetic wraps modulo 2^64.
func (a *ALU) Execute(op insts.Op, in Operands) (Result, error) {
	imm := uint64(in.Imm)

	switch op {
	case insts.OpADD:
		return Result{Value: in.Rs1 + in.Rs2}, nil
	case insts.OpSUB:
		return Result{Value: in.Rs1 - in.Rs2}, nil
	case insts.OpAND:
		return Result{Value: in.Rs1 & in.Rs2}, nil
	case insts.OpOR:
		return Result{Value: in.Rs1 | in.Rs2}, nil
	case insts.OpXOR:
		return Result{Value: in.Rs1 ^ in.Rs2}, nil
	case insts.OpADDI, insts.OpLOAD, insts.OpSTORE:
		// Memory operations compute their effective address here.
		return Result{Value: in.Rs1 + imm}, nil
	case insts.OpBEQ:
		return a.branch(in, in.Rs1 == in.Rs2), nil
	case insts.OpBNE:
		return a.branch(in, in.Rs1 != in.Rs2), nil
	case insts.OpJAL:
		return Result{Value: in.PC + 4, NextPC: in.PC + imm, Taken: true}, nil
	case insts.OpJALR:
		return Result{
			Value:  in.PC + 4,
			NextPC: (in.Rs1 + imm) &^ 1,
			Taken:  true,
		}, nil
	case insts.OpLUI:
		return Result{Value: imm << 12}, nil
	case insts.OpAUIPC:
		return Result{Value: in.PC*4 + imm<<12}, nil
	default:
		return Result{}, fmt.Errorf("%w: %v", ErrUnsupportedOperation, op)
	}
}

func (a *ALU) branch(in Operands, cond bool) Result {
	fallthroughPC := in.PC + 1
	if cond {
		return Result{
			Value:  fallthroughPC,
			NextPC: in.PC + uint64(in.Imm),
			Taken:  true,
		}
	}
	return Result{Value: fallthroughPC, NextPC: fallthroughPC}
}
