// Package insts provides instruction definitions for the reduced RISC-V
// integer core.
//
// Instructions arrive pre-structured: there is no binary encoding. Each
// record carries an opcode and the operand fields its format requires:
//   - R format: ADD, SUB, AND, OR, XOR (rd, rs1, rs2)
//   - I format: ADDI, LOAD, JALR (rd, rs1, imm)
//   - S format: STORE (rs1, rs2, imm)
//   - B format: BEQ, BNE (rs1, rs2, imm)
//   - J format: JAL (rd, imm)
//   - U format: LUI, AUIPC (rd, imm)
//
// Usage:
//
//	inst := insts.I(insts.OpADDI, 1, 0, 10) // ADDI x1, x0, 10
//	fields := insts.NewDecoder().Fields(inst)
//	fmt.Printf("Op: %v, Rd: %d, Rs1: %d, Imm: %d\n",
//		inst.Op, fields.Rd, fields.Rs1, fields.Imm)
package insts
