package benchmarks

import (
	"github.com/sarchlab/rvpipe/emu"
	"github.com/sarchlab/rvpipe/insts"
)

// GetMicrobenchmarks returns the standard set of microbenchmarks. Each
// benchmark targets one pipeline behavior.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		arithmeticSequential(),
		dependencyChain(),
		memorySequential(),
		loadUseChain(),
		branchTaken(),
		loopSimulation(),
		arraySum(),
		indirectJump(),
	}
}

// GetCoreBenchmarks returns a minimal set of 3 core benchmarks for quick
// validation: a loop, a load-heavy loop, and branch-heavy code.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		loopSimulation(),
		arraySum(),
		branchTaken(),
	}
}

// 1. Arithmetic Sequential - Tests throughput with independent operations
func arithmeticSequential() Benchmark {
	program := make([]insts.Instruction, 0, 20)
	for i := 0; i < 4; i++ {
		for rd := uint8(1); rd <= 5; rd++ {
			program = append(program, insts.I(insts.OpADDI, rd, rd, 1))
		}
	}

	return Benchmark{
		Name:        "arithmetic_sequential",
		Description: "20 ADDIs over 5 registers - no hazards, ideal CPI",
		Program:     program,
		ResultReg:   1,
		Expected:    4,
	}
}

// 2. Dependency Chain - Tests forwarding with back-to-back RAW hazards
func dependencyChain() Benchmark {
	return Benchmark{
		Name:        "dependency_chain",
		Description: "20 dependent ADDIs (x1 = x1 + 1) - measures forwarding",
		Program:     buildDependencyChain(20),
		ResultReg:   1,
		Expected:    20,
	}
}

func buildDependencyChain(n int) []insts.Instruction {
	program := make([]insts.Instruction, 0, n)
	for i := 0; i < n; i++ {
		program = append(program, insts.I(insts.OpADDI, 1, 1, 1))
	}
	return program
}

// 3. Memory Sequential - Tests store/load round trips
func memorySequential() Benchmark {
	program := []insts.Instruction{
		insts.I(insts.OpADDI, 1, 0, 100),
		insts.I(insts.OpADDI, 2, 0, 42),
	}
	for i := int64(0); i < 10; i++ {
		// Each load feeds the next store: one load-use stall per pair.
		program = append(program,
			insts.S(1, 2, i),
			insts.I(insts.OpLOAD, 2, 1, i),
		)
	}

	return Benchmark{
		Name:        "memory_sequential",
		Description: "10 store/load pairs to sequential addresses - measures load-use stalls",
		Program:     program,
		ResultReg:   2,
		Expected:    42,
	}
}

// 4. Load-Use Chain - Every load result is consumed immediately
func loadUseChain() Benchmark {
	program := make([]insts.Instruction, 0, 10)
	for i := 0; i < 5; i++ {
		program = append(program,
			insts.I(insts.OpLOAD, 2, 1, 0),
			insts.R(insts.OpADD, 3, 3, 2),
		)
	}

	return Benchmark{
		Name:        "load_use_chain",
		Description: "5 loads each consumed by the next instruction",
		Setup: func(regFile *emu.RegFile, memory *emu.Memory) {
			_ = regFile.Write(1, 100)
			memory.Store(100, 7)
		},
		Program:   program,
		ResultReg: 3,
		Expected:  35,
	}
}

// 5. Branch Taken - Tests flush cost of taken branches
func branchTaken() Benchmark {
	program := make([]insts.Instruction, 0, 11)
	for i := 0; i < 5; i++ {
		program = append(program,
			insts.B(insts.OpBEQ, 0, 0, 2),
			insts.I(insts.OpADDI, 1, 1, 1), // skipped
		)
	}
	program = append(program, insts.I(insts.OpADDI, 2, 0, 5))

	return Benchmark{
		Name:        "branch_taken",
		Description: "5 taken BEQs each skipping one instruction - measures flush cost",
		Program:     program,
		ResultReg:   2,
		Expected:    5,
	}
}

// 6. Loop Simulation - Counted loop with a backward branch
func loopSimulation() Benchmark {
	return Benchmark{
		Name:        "loop_simulation",
		Description: "sum 10..1 with a BNE loop",
		Program: []insts.Instruction{
			insts.I(insts.OpADDI, 1, 0, 10),
			insts.I(insts.OpADDI, 2, 0, 0),
			insts.R(insts.OpADD, 2, 2, 1), // loop:
			insts.I(insts.OpADDI, 1, 1, -1),
			insts.B(insts.OpBNE, 1, 0, -2),
		},
		ResultReg: 2,
		Expected:  55,
	}
}

// 7. Array Sum - Load-heavy loop over an initialized array
func arraySum() Benchmark {
	return Benchmark{
		Name:        "array_sum",
		Description: "sum an 8-element array with a load-use hazard per iteration",
		Setup: func(regFile *emu.RegFile, memory *emu.Memory) {
			for i := uint64(0); i < 8; i++ {
				memory.Store(i, i+1)
			}
		},
		Program: []insts.Instruction{
			insts.I(insts.OpADDI, 1, 0, 8),
			insts.I(insts.OpLOAD, 4, 3, 0), // loop:
			insts.R(insts.OpADD, 2, 2, 4),
			insts.I(insts.OpADDI, 3, 3, 1),
			insts.I(insts.OpADDI, 1, 1, -1),
			insts.B(insts.OpBNE, 1, 0, -4),
		},
		ResultReg: 2,
		Expected:  36,
	}
}

// 8. Indirect Jump - JALR to a computed target
func indirectJump() Benchmark {
	return Benchmark{
		Name:        "indirect_jump",
		Description: "JALR over two instructions to a register target",
		Program: []insts.Instruction{
			insts.I(insts.OpADDI, 5, 0, 4),
			insts.I(insts.OpJALR, 6, 5, 0),
			insts.I(insts.OpADDI, 1, 0, 99), // skipped
			insts.I(insts.OpADDI, 1, 0, 98), // skipped
			insts.I(insts.OpADDI, 2, 0, 7),
		},
		ResultReg: 2,
		Expected:  7,
	}
}
