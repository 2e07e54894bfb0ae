package emu

import "errors"

// Fatal conditions. Every other pipeline condition (empty latches, stalls,
// flushes, end of program) is a normal control state.
var (
	// ErrOutOfRange is returned for a register index outside [0, 31].
	ErrOutOfRange = errors.New("register index out of range")

	// ErrUnsupportedOperation is returned when an opcode outside the
	// supported set reaches the ALU.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrMissingWriteValue is returned when write-back expects a resolved
	// value and finds none.
	ErrMissingWriteValue = errors.New("missing write value")
)
