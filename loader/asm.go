// Package loader reads assembly source into a program of pre-structured
// instructions.
//
// Source is one instruction per line. A '#' starts a comment, and a line
// may begin with one or more "label:" prefixes; a label names the slot of
// the next instruction. Branch and jump targets may be a label or a literal
// offset in instruction slots.
package loader

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sarchlab/rvpipe/insts"
)

// ErrSyntax is wrapped by every parse error.
var ErrSyntax = errors.New("syntax error")

// Program is a parsed assembly program.
type Program struct {
	// Instructions in fetch order.
	Instructions []insts.Instruction
	// Labels maps a label name to the slot it names.
	Labels map[string]uint64
}

// Load reads and parses an assembly file.
func Load(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read assembly file: %w", err)
	}

	prog, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return prog, nil
}

type sourceLine struct {
	number int
	text   string
}

// Parse parses assembly source text.
func Parse(text string) (*Program, error) {
	lines, labels, err := collectLabels(text)
	if err != nil {
		return nil, err
	}

	prog := &Program{
		Instructions: make([]insts.Instruction, 0, len(lines)),
		Labels:       labels,
	}

	for slot, line := range lines {
		inst, err := parseInstruction(line.text, labels, uint64(slot))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line.number, err)
		}
		prog.Instructions = append(prog.Instructions, inst)
	}

	return prog, nil
}

// collectLabels strips comments and labels, recording each label's slot.
func collectLabels(text string) ([]sourceLine, map[string]uint64, error) {
	var lines []sourceLine
	labels := make(map[string]uint64)

	for i, raw := range strings.Split(text, "\n") {
		line, _, _ := strings.Cut(raw, "#")
		line = strings.TrimSpace(line)

		for {
			label, rest, found := strings.Cut(line, ":")
			if !found {
				break
			}

			label = strings.TrimSpace(label)
			if !validLabel(label) {
				return nil, nil, fmt.Errorf("line %d: %w: invalid label %q",
					i+1, ErrSyntax, label)
			}
			if _, dup := labels[label]; dup {
				return nil, nil, fmt.Errorf("line %d: %w: duplicate label %q",
					i+1, ErrSyntax, label)
			}

			labels[label] = uint64(len(lines))
			line = strings.TrimSpace(rest)
		}

		if line != "" {
			lines = append(lines, sourceLine{number: i + 1, text: line})
		}
	}

	return lines, labels, nil
}

func validLabel(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '.':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func parseInstruction(
	line string,
	labels map[string]uint64,
	slot uint64,
) (insts.Instruction, error) {
	operands := splitOperands(line)
	if len(operands) == 0 {
		return insts.Instruction{}, fmt.Errorf("%w: missing op", ErrSyntax)
	}
	mnemonic := operands[0]
	operands = operands[1:]

	op, ok := insts.ParseOp(mnemonic)
	if !ok {
		return insts.Instruction{}, fmt.Errorf("%w: unsupported op %q", ErrSyntax, mnemonic)
	}

	switch op.Format() {
	case insts.FormatR:
		regs, err := parseOperands(operands, 3, parseRegister, parseRegister, parseRegister)
		if err != nil {
			return insts.Instruction{}, err
		}
		return insts.R(op, uint8(regs[0]), uint8(regs[1]), uint8(regs[2])), nil

	case insts.FormatI:
		if op == insts.OpLOAD {
			return parseLoad(operands)
		}
		vals, err := parseOperands(operands, 3, parseRegister, parseRegister, parseImmediate)
		if err != nil {
			return insts.Instruction{}, err
		}
		return insts.I(op, uint8(vals[0]), uint8(vals[1]), vals[2]), nil

	case insts.FormatS:
		return parseStore(operands)

	case insts.FormatB:
		target := func(s string) (int64, error) { return parseTarget(s, labels, slot) }
		vals, err := parseOperands(operands, 3, parseRegister, parseRegister, target)
		if err != nil {
			return insts.Instruction{}, err
		}
		return insts.B(op, uint8(vals[0]), uint8(vals[1]), vals[2]), nil

	case insts.FormatJ:
		target := func(s string) (int64, error) { return parseTarget(s, labels, slot) }
		vals, err := parseOperands(operands, 2, parseRegister, target)
		if err != nil {
			return insts.Instruction{}, err
		}
		return insts.J(uint8(vals[0]), vals[1]), nil

	case insts.FormatU:
		vals, err := parseOperands(operands, 2, parseRegister, parseImmediate)
		if err != nil {
			return insts.Instruction{}, err
		}
		return insts.U(op, uint8(vals[0]), vals[1]), nil
	}

	return insts.Instruction{}, fmt.Errorf("%w: unsupported op %q", ErrSyntax, mnemonic)
}

func splitOperands(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\r'
	})
}

type operandParser func(string) (int64, error)

func parseOperands(operands []string, n int, parsers ...operandParser) ([]int64, error) {
	if len(operands) != n {
		return nil, fmt.Errorf("%w: expected %d operands, got %d", ErrSyntax, n, len(operands))
	}

	vals := make([]int64, n)
	for i, parse := range parsers {
		v, err := parse(operands[i])
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}

	return vals, nil
}

// parseLoad parses "rd, off(rs1)".
func parseLoad(operands []string) (insts.Instruction, error) {
	if len(operands) != 2 {
		return insts.Instruction{}, fmt.Errorf("%w: expected 2 operands, got %d",
			ErrSyntax, len(operands))
	}

	rd, err := parseRegister(operands[0])
	if err != nil {
		return insts.Instruction{}, err
	}

	offset, base, err := parseAddress(operands[1])
	if err != nil {
		return insts.Instruction{}, err
	}

	return insts.I(insts.OpLOAD, uint8(rd), base, offset), nil
}

// parseStore parses "rs2, off(rs1)".
func parseStore(operands []string) (insts.Instruction, error) {
	if len(operands) != 2 {
		return insts.Instruction{}, fmt.Errorf("%w: expected 2 operands, got %d",
			ErrSyntax, len(operands))
	}

	rs2, err := parseRegister(operands[0])
	if err != nil {
		return insts.Instruction{}, err
	}

	offset, base, err := parseAddress(operands[1])
	if err != nil {
		return insts.Instruction{}, err
	}

	return insts.S(base, uint8(rs2), offset), nil
}

// parseAddress parses "off(xN)" and "(xN)".
func parseAddress(s string) (int64, uint8, error) {
	offsetPart, regPart, found := strings.Cut(s, "(")
	if !found || !strings.HasSuffix(regPart, ")") {
		return 0, 0, fmt.Errorf("%w: invalid memory address %q", ErrSyntax, s)
	}

	var offset int64
	if offsetPart != "" {
		v, err := parseImmediate(offsetPart)
		if err != nil {
			return 0, 0, err
		}
		offset = v
	}

	base, err := parseRegister(strings.TrimSuffix(regPart, ")"))
	if err != nil {
		return 0, 0, err
	}

	return offset, uint8(base), nil
}

func parseRegister(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || (s[0] != 'x' && s[0] != 'X') {
		return 0, fmt.Errorf("%w: invalid register name %q", ErrSyntax, s)
	}

	n, err := strconv.ParseUint(s[1:], 10, 8)
	if err != nil || n >= 32 {
		return 0, fmt.Errorf("%w: invalid register name %q", ErrSyntax, s)
	}

	return int64(n), nil
}

func parseImmediate(s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid immediate %q", ErrSyntax, s)
	}
	return v, nil
}

// parseTarget resolves a label to an offset from slot, or parses a literal
// offset.
func parseTarget(s string, labels map[string]uint64, slot uint64) (int64, error) {
	if target, ok := labels[s]; ok {
		return int64(target) - int64(slot), nil
	}

	if validLabel(s) {
		return 0, fmt.Errorf("%w: undefined label %q", ErrSyntax, s)
	}

	return parseImmediate(s)
}
