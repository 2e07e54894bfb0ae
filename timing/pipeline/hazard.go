package pipeline

import (
	"github.com/sarchlab/rvpipe/insts"
)

// ForwardSource indicates where a forwarded value should come from.
type ForwardSource int

const (
	// ForwardNone means no forwarding needed - use the value resolved at decode.
	ForwardNone ForwardSource = iota
	// ForwardFromEXMEM means forward from EX/MEM pipeline register.
	ForwardFromEXMEM
	// ForwardFromMEMWB means forward from MEM/WB pipeline register.
	ForwardFromMEMWB
)

// String returns the signal name of the source.
func (s ForwardSource) String() string {
	switch s {
	case ForwardFromEXMEM:
		return "FROM_EX_MEM"
	case ForwardFromMEMWB:
		return "FROM_MEM_WB"
	default:
		return "NONE"
	}
}

// ForwardingResult contains forwarding decisions for both source operands.
type ForwardingResult struct {
	// ForwardA specifies the forwarding source for the rs1 operand.
	ForwardA ForwardSource
	// ForwardB specifies the forwarding source for the rs2 operand.
	ForwardB ForwardSource
}

// StallResult contains stall control signals.
type StallResult struct {
	// StallFetch holds the program counter and the IF/ID register.
	StallFetch bool
	// StallDecode holds the instruction waiting in IF/ID.
	StallDecode bool
	// BubbleExecute forces the ID/EX register to a NOP.
	BubbleExecute bool
}

// FlushResult contains flush control signals.
type FlushResult struct {
	FlushIFID bool
	FlushIDEX bool
}

// Signals is the full set of control signals for one cycle.
type Signals struct {
	ForwardingResult
	StallResult
	FlushResult
}

// ControlUnit detects data hazards and determines forwarding, stall, and
// flush signals. It holds no pipeline state.
type ControlUnit struct {
	decoder *insts.Decoder
	tracer  Tracer
}

// NewControlUnit creates a new control unit that reports its decisions to
// tracer. A nil tracer discards them.
func NewControlUnit(tracer Tracer) *ControlUnit {
	return &ControlUnit{
		decoder: insts.NewDecoder(),
		tracer:  tracerOrNop(tracer),
	}
}

// DetectForwarding determines if forwarding is needed for the instruction in
// ID/EX. It checks if the source registers match the destination register of
// instructions in later pipeline stages.
func (c *ControlUnit) DetectForwarding(
	idex *IDEXRegister,
	exmem *EXMEMRegister,
	memwb *MEMWBRegister,
) ForwardingResult {
	result := ForwardingResult{}

	if idex.Valid {
		result.ForwardA = c.detectForwardForReg(idex.Rs1, exmem, memwb)

		// Immediate-form instructions have no second register operand.
		if idex.UsesRs2 {
			result.ForwardB = c.detectForwardForReg(idex.Rs2, exmem, memwb)
		}
	}

	c.tracer.Tracef("Forwarding: forwardA=%v, forwardB=%v",
		result.ForwardA, result.ForwardB)

	return result
}

// detectForwardForReg checks if a specific register needs forwarding.
func (c *ControlUnit) detectForwardForReg(
	reg uint8,
	exmem *EXMEMRegister,
	memwb *MEMWBRegister,
) ForwardSource {
	// x0 always reads as 0, no need to forward
	if reg == 0 {
		return ForwardNone
	}

	// Priority: EX/MEM has precedence over MEM/WB (more recent value).
	// A load in EX/MEM only carries its address; its data is picked up from
	// MEM/WB instead.
	if exmem.Valid && exmem.Inst.Op.Forwardable() && !exmem.MemRead &&
		exmem.Rd == reg {
		return ForwardFromEXMEM
	}

	if memwb.Valid && memwb.Inst.Op.Forwardable() && memwb.ValueReady &&
		memwb.Rd == reg {
		return ForwardFromMEMWB
	}

	return ForwardNone
}

// DetectLoadUseHazard detects a load in ID/EX immediately followed by an
// instruction in IF/ID that reads the loaded register. The value is not
// available until the MEM stage, so the pipeline must stall for a cycle.
func (c *ControlUnit) DetectLoadUseHazard(
	ifid *IFIDRegister,
	idex *IDEXRegister,
) StallResult {
	result := StallResult{}

	if ifid.Valid && idex.Valid && idex.Inst.Op == insts.OpLOAD &&
		idex.Rd != 0 && c.decoder.Reads(ifid.Inst, idex.Rd) {
		result = StallResult{
			StallFetch:    true,
			StallDecode:   true,
			BubbleExecute: true,
		}
		c.tracer.Tracef("Hazard: load-use on x%d, stalling fetch and decode", idex.Rd)
		return result
	}

	c.tracer.Tracef("Hazard: none")

	return result
}

// BranchFlush sets both flush signals to branchTaken.
func (c *ControlUnit) BranchFlush(branchTaken bool) FlushResult {
	c.tracer.Tracef("Branch Flush: flush_fetch_decode=%t, flush_decode_execute=%t",
		branchTaken, branchTaken)

	return FlushResult{FlushIFID: branchTaken, FlushIDEX: branchTaken}
}

// ComputeSignals combines forwarding, load-use detection, and branch flush
// into the control signals of one cycle.
func (c *ControlUnit) ComputeSignals(
	ifid *IFIDRegister,
	idex *IDEXRegister,
	exmem *EXMEMRegister,
	memwb *MEMWBRegister,
	branchTaken bool,
) Signals {
	signals := Signals{
		ForwardingResult: c.DetectForwarding(idex, exmem, memwb),
		StallResult:      c.DetectLoadUseHazard(ifid, idex),
		FlushResult:      c.BranchFlush(branchTaken),
	}

	c.tracer.Tracef("Control signals: forwardA=%v, forwardB=%v, "+
		"stall_fetch=%t, stall_decode=%t, bubble_execute=%t, "+
		"flush_fetch_decode=%t, flush_decode_execute=%t",
		signals.ForwardA, signals.ForwardB,
		signals.StallFetch, signals.StallDecode, signals.BubbleExecute,
		signals.FlushIFID, signals.FlushIDEX)

	return signals
}
