// Package emu provides the architectural state and functional execution of
// the reduced RISC-V integer core.
package emu

import "fmt"

// NumRegs is the number of integer registers.
const NumRegs = 32

// RegFile represents the integer register file.
// It contains 32 general-purpose 64-bit registers (x0-x31).
type RegFile struct {
	// X holds general-purpose registers x0-x31.
	// X[0] is hard-wired to zero.
	X [NumRegs]uint64
}

// Read reads a register value. Register 0 always reads as 0.
func (r *RegFile) Read(reg uint8) (uint64, error) {
	if reg >= NumRegs {
		return 0, fmt.Errorf("%w: read x%d", ErrOutOfRange, reg)
	}
	if reg == 0 {
		return 0, nil
	}
	return r.X[reg], nil
}

// Write writes a value to a register. Writes to register 0 are ignored.
func (r *RegFile) Write(reg uint8, value uint64) error {
	if reg >= NumRegs {
		return fmt.Errorf("%w: write x%d", ErrOutOfRange, reg)
	}
	if reg == 0 {
		return nil
	}
	r.X[reg] = value
	return nil
}

// Dump returns a copy of all register values indexed by register number.
func (r *RegFile) Dump() [NumRegs]uint64 {
	regs := r.X
	regs[0] = 0
	return regs
}

// Reset zeroes every register.
func (r *RegFile) Reset() {
	r.X = [NumRegs]uint64{}
}
