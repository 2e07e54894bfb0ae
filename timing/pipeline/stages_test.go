package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvpipe/emu"
	"github.com/sarchlab/rvpipe/insts"
	"github.com/sarchlab/rvpipe/timing/cache"
	"github.com/sarchlab/rvpipe/timing/pipeline"
)

var _ = Describe("Pipeline Stages", func() {
	var (
		regFile *emu.RegFile
		memory  *emu.Memory
	)

	BeforeEach(func() {
		regFile = &emu.RegFile{}
		memory = emu.NewMemory()
	})

	Describe("FetchStage", func() {
		var fetchStage *pipeline.FetchStage

		BeforeEach(func() {
			fetchStage = pipeline.NewFetchStage([]insts.Instruction{
				insts.I(insts.OpADDI, 1, 0, 1),
				insts.I(insts.OpADDI, 2, 0, 2),
			}, nil)
		})

		It("should latch the instruction and advance the PC", func() {
			pc := uint64(1)

			ifid, ok := fetchStage.Fetch(&pc)

			Expect(ok).To(BeTrue())
			Expect(ifid.Valid).To(BeTrue())
			Expect(ifid.PC).To(Equal(uint64(1)))
			Expect(ifid.Inst).To(Equal(insts.I(insts.OpADDI, 2, 0, 2)))
			Expect(pc).To(Equal(uint64(2)))
		})

		It("should signal the end of the program", func() {
			pc := uint64(2)

			ifid, ok := fetchStage.Fetch(&pc)

			Expect(ok).To(BeFalse())
			Expect(ifid.Valid).To(BeFalse())
			Expect(pc).To(Equal(uint64(2)))
		})
	})

	Describe("DecodeStage", func() {
		var (
			decodeStage *pipeline.DecodeStage
			ifid        *pipeline.IFIDRegister
			exmem       *pipeline.EXMEMRegister
			prevEXMEM   *pipeline.EXMEMRegister
			memwb       *pipeline.MEMWBRegister
		)

		BeforeEach(func() {
			decodeStage = pipeline.NewDecodeStage(regFile, nil)
			ifid = &pipeline.IFIDRegister{
				Valid: true, PC: 4, Inst: insts.R(insts.OpADD, 3, 1, 2),
			}
			exmem = &pipeline.EXMEMRegister{}
			prevEXMEM = &pipeline.EXMEMRegister{}
			memwb = &pipeline.MEMWBRegister{}

			Expect(regFile.Write(1, 10)).To(Succeed())
			Expect(regFile.Write(2, 20)).To(Succeed())
		})

		It("should read operands from the register file", func() {
			idex, err := decodeStage.Decode(ifid, exmem, prevEXMEM, memwb)

			Expect(err).ToNot(HaveOccurred())
			Expect(idex.Valid).To(BeTrue())
			Expect(idex.PC).To(Equal(uint64(4)))
			Expect(idex.Rd).To(Equal(uint8(3)))
			Expect(idex.Rs1Value).To(Equal(uint64(10)))
			Expect(idex.Rs2Value).To(Equal(uint64(20)))
			Expect(idex.UsesRs2).To(BeTrue())
		})

		It("should produce a NOP for an empty IF/ID register", func() {
			idex, err := decodeStage.Decode(&pipeline.IFIDRegister{}, exmem, prevEXMEM, memwb)

			Expect(err).ToNot(HaveOccurred())
			Expect(idex.Valid).To(BeFalse())
		})

		It("should prefer the current EX/MEM result over the previous one", func() {
			*exmem = pipeline.EXMEMRegister{
				Valid: true, Inst: insts.I(insts.OpADDI, 1, 0, 1), Rd: 1,
				ALUResult: 111, RegWrite: true,
			}
			*prevEXMEM = pipeline.EXMEMRegister{
				Valid: true, Inst: insts.I(insts.OpADDI, 1, 0, 2), Rd: 1,
				ALUResult: 222, RegWrite: true,
			}

			idex, _ := decodeStage.Decode(ifid, exmem, prevEXMEM, memwb)

			Expect(idex.Rs1Value).To(Equal(uint64(111)))
		})

		It("should fall back to the previous EX/MEM result", func() {
			*prevEXMEM = pipeline.EXMEMRegister{
				Valid: true, Inst: insts.I(insts.OpADDI, 2, 0, 2), Rd: 2,
				ALUResult: 222, RegWrite: true,
			}

			idex, _ := decodeStage.Decode(ifid, exmem, prevEXMEM, memwb)

			Expect(idex.Rs1Value).To(Equal(uint64(10)))
			Expect(idex.Rs2Value).To(Equal(uint64(222)))
		})

		It("should use loaded data from MEM/WB instead of a load address", func() {
			*prevEXMEM = pipeline.EXMEMRegister{
				Valid: true, Inst: insts.I(insts.OpLOAD, 1, 5, 0), Rd: 1,
				ALUResult: 500, RegWrite: true, MemRead: true,
			}
			*memwb = pipeline.MEMWBRegister{
				Valid: true, Inst: insts.I(insts.OpLOAD, 1, 5, 0), Rd: 1,
				ALUResult: 500, MemData: 77, RegWrite: true, MemToReg: true,
				ValueReady: true,
			}

			idex, _ := decodeStage.Decode(ifid, exmem, prevEXMEM, memwb)

			Expect(idex.Rs1Value).To(Equal(uint64(77)))
		})

		It("should take the link value of a jump", func() {
			*prevEXMEM = pipeline.EXMEMRegister{
				Valid: true, Inst: insts.J(1, 2), Rd: 1,
				ALUResult: 4, RegWrite: true,
			}

			idex, _ := decodeStage.Decode(ifid, exmem, prevEXMEM, memwb)

			Expect(idex.Rs1Value).To(Equal(uint64(4)))
		})

		It("should default absent source registers to x0", func() {
			*exmem = pipeline.EXMEMRegister{
				Valid: true, Inst: insts.I(insts.OpADDI, 0, 0, 1), Rd: 0,
				ALUResult: 9, RegWrite: true,
			}
			ifid.Inst = insts.U(insts.OpLUI, 4, 1)

			idex, _ := decodeStage.Decode(ifid, exmem, prevEXMEM, memwb)

			Expect(idex.Rs1).To(Equal(uint8(0)))
			Expect(idex.Rs1Value).To(BeZero())
			Expect(idex.Rs2Value).To(BeZero())
			Expect(idex.Imm).To(Equal(int64(1)))
		})

		It("should fail for an out of range source register", func() {
			ifid.Inst = insts.R(insts.OpADD, 3, 33, 2)

			_, err := decodeStage.Decode(ifid, exmem, prevEXMEM, memwb)

			Expect(err).To(MatchError(emu.ErrOutOfRange))
		})
	})

	Describe("ExecuteStage", func() {
		var (
			executeStage *pipeline.ExecuteStage
			exmem        *pipeline.EXMEMRegister
			memwb        *pipeline.MEMWBRegister
		)

		BeforeEach(func() {
			executeStage = pipeline.NewExecuteStage(nil)
			exmem = &pipeline.EXMEMRegister{ALUResult: 1000}
			memwb = &pipeline.MEMWBRegister{
				Valid: true, RegWrite: true, ValueReady: true, ALUResult: 2000,
			}
		})

		It("should execute ALU operations with latched values", func() {
			idex := &pipeline.IDEXRegister{
				Valid: true, PC: 2, Inst: insts.R(insts.OpSUB, 3, 1, 2),
				Rd: 3, Rs1: 1, Rs2: 2, UsesRs2: true, Rs1Value: 50, Rs2Value: 8,
			}

			result, err := executeStage.Execute(idex, pipeline.ForwardingResult{}, exmem, memwb)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.EXMEM.Valid).To(BeTrue())
			Expect(result.EXMEM.ALUResult).To(Equal(uint64(42)))
			Expect(result.EXMEM.Rd).To(Equal(uint8(3)))
			Expect(result.EXMEM.RegWrite).To(BeTrue())
			Expect(result.BranchTaken).To(BeFalse())
		})

		It("should apply forwarded values", func() {
			idex := &pipeline.IDEXRegister{
				Valid: true, Inst: insts.R(insts.OpADD, 3, 1, 2),
				Rs1: 1, Rs2: 2, UsesRs2: true, Rs1Value: 1, Rs2Value: 2,
			}

			result, _ := executeStage.Execute(idex, pipeline.ForwardingResult{
				ForwardA: pipeline.ForwardFromEXMEM,
				ForwardB: pipeline.ForwardFromMEMWB,
			}, exmem, memwb)

			Expect(result.EXMEM.ALUResult).To(Equal(uint64(3000)))
		})

		It("should not apply forwarding to branches", func() {
			idex := &pipeline.IDEXRegister{
				Valid: true, PC: 3, Inst: insts.B(insts.OpBEQ, 1, 2, 5),
				Rs1: 1, Rs2: 2, UsesRs2: true, Rs1Value: 7, Rs2Value: 7, Imm: 5,
			}

			result, _ := executeStage.Execute(idex, pipeline.ForwardingResult{
				ForwardA: pipeline.ForwardFromEXMEM,
			}, exmem, memwb)

			Expect(result.BranchTaken).To(BeTrue())
			Expect(result.NextPC).To(Equal(uint64(8)))
			Expect(result.EXMEM.RegWrite).To(BeFalse())
		})

		It("should compute a store address and carry the value", func() {
			idex := &pipeline.IDEXRegister{
				Valid: true, Inst: insts.S(1, 2, 4),
				Rs1: 1, Rs2: 2, UsesRs2: true, Rs1Value: 100, Rs2Value: 42, Imm: 4,
			}

			result, _ := executeStage.Execute(idex, pipeline.ForwardingResult{}, exmem, memwb)

			Expect(result.EXMEM.ALUResult).To(Equal(uint64(104)))
			Expect(result.EXMEM.StoreValue).To(Equal(uint64(42)))
			Expect(result.EXMEM.MemWrite).To(BeTrue())
			Expect(result.EXMEM.RegWrite).To(BeFalse())
		})

		It("should compute a load address", func() {
			idex := &pipeline.IDEXRegister{
				Valid: true, Inst: insts.I(insts.OpLOAD, 3, 1, -1),
				Rd: 3, Rs1: 1, Rs1Value: 100, Imm: -1,
			}

			result, _ := executeStage.Execute(idex, pipeline.ForwardingResult{}, exmem, memwb)

			Expect(result.EXMEM.ALUResult).To(Equal(uint64(99)))
			Expect(result.EXMEM.MemRead).To(BeTrue())
			Expect(result.EXMEM.Resolved()).To(BeFalse())
		})

		It("should resolve jumps", func() {
			idex := &pipeline.IDEXRegister{
				Valid: true, PC: 1, Inst: insts.I(insts.OpJALR, 1, 5, 3),
				Rd: 1, Rs1: 5, Rs1Value: 10, Imm: 3,
			}

			result, _ := executeStage.Execute(idex, pipeline.ForwardingResult{}, exmem, memwb)

			Expect(result.BranchTaken).To(BeTrue())
			Expect(result.NextPC).To(Equal(uint64(12)))
			Expect(result.EXMEM.ALUResult).To(Equal(uint64(5)))
		})

		It("should pass a NOP through", func() {
			result, err := executeStage.Execute(&pipeline.IDEXRegister{},
				pipeline.ForwardingResult{}, exmem, memwb)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.EXMEM.Valid).To(BeFalse())
		})

		It("should fail for unsupported opcodes", func() {
			idex := &pipeline.IDEXRegister{Valid: true, Inst: insts.Instruction{Op: insts.Op(77)}}

			_, err := executeStage.Execute(idex, pipeline.ForwardingResult{}, exmem, memwb)

			Expect(err).To(MatchError(emu.ErrUnsupportedOperation))
		})
	})

	Describe("MemoryStage", func() {
		var memoryStage *pipeline.MemoryStage

		BeforeEach(func() {
			memoryStage = pipeline.NewMemoryStage(memory, nil, nil)
		})

		It("should load data", func() {
			memory.Store(100, 55)

			memwb := memoryStage.Access(&pipeline.EXMEMRegister{
				Valid: true, Inst: insts.I(insts.OpLOAD, 3, 1, 0), Rd: 3,
				ALUResult: 100, RegWrite: true, MemRead: true,
			})

			Expect(memwb.MemData).To(Equal(uint64(55)))
			Expect(memwb.MemToReg).To(BeTrue())

			value, ok := memwb.WriteValue()
			Expect(ok).To(BeTrue())
			Expect(value).To(Equal(uint64(55)))
		})

		It("should store data", func() {
			memwb := memoryStage.Access(&pipeline.EXMEMRegister{
				Valid: true, Inst: insts.S(1, 2, 0),
				ALUResult: 100, StoreValue: 9, MemWrite: true,
			})

			Expect(memory.Load(100)).To(Equal(uint64(9)))
			Expect(memwb.Valid).To(BeTrue())
			Expect(memwb.RegWrite).To(BeFalse())
		})

		It("should pass ALU results through", func() {
			memwb := memoryStage.Access(&pipeline.EXMEMRegister{
				Valid: true, Inst: insts.I(insts.OpADDI, 1, 0, 5), Rd: 1,
				ALUResult: 5, RegWrite: true,
			})

			value, ok := memwb.WriteValue()
			Expect(ok).To(BeTrue())
			Expect(value).To(Equal(uint64(5)))
			Expect(memory.Len()).To(BeZero())
		})

		It("should record accesses in the data cache", func() {
			dcache := cache.New(cache.DefaultConfig())
			memoryStage = pipeline.NewMemoryStage(memory, dcache, nil)

			memoryStage.Access(&pipeline.EXMEMRegister{
				Valid: true, Inst: insts.S(1, 2, 0), ALUResult: 8, MemWrite: true,
			})
			memoryStage.Access(&pipeline.EXMEMRegister{
				Valid: true, Inst: insts.I(insts.OpLOAD, 3, 1, 0), Rd: 3,
				ALUResult: 8, RegWrite: true, MemRead: true,
			})

			stats := dcache.Stats()
			Expect(stats.Writes).To(Equal(uint64(1)))
			Expect(stats.Reads).To(Equal(uint64(1)))
			Expect(stats.Hits).To(Equal(uint64(1)))
		})
	})

	Describe("WritebackStage", func() {
		var writebackStage *pipeline.WritebackStage

		BeforeEach(func() {
			writebackStage = pipeline.NewWritebackStage(regFile, nil)
		})

		It("should write ALU results", func() {
			retired, err := writebackStage.Writeback(&pipeline.MEMWBRegister{
				Valid: true, Inst: insts.I(insts.OpADDI, 4, 0, 1), Rd: 4,
				ALUResult: 1, RegWrite: true, ValueReady: true,
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(retired).To(BeTrue())
			Expect(regFile.X[4]).To(Equal(uint64(1)))
		})

		It("should write loaded data", func() {
			_, err := writebackStage.Writeback(&pipeline.MEMWBRegister{
				Valid: true, Inst: insts.I(insts.OpLOAD, 4, 1, 0), Rd: 4,
				ALUResult: 100, MemData: 6, RegWrite: true, MemToReg: true,
				ValueReady: true,
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(regFile.X[4]).To(Equal(uint64(6)))
		})

		It("should retire non-writing instructions without a write", func() {
			retired, err := writebackStage.Writeback(&pipeline.MEMWBRegister{
				Valid: true, Inst: insts.S(1, 2, 0),
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(retired).To(BeTrue())
			Expect(regFile.Dump()).To(Equal([emu.NumRegs]uint64{}))
		})

		It("should not retire a NOP", func() {
			retired, err := writebackStage.Writeback(&pipeline.MEMWBRegister{})

			Expect(err).ToNot(HaveOccurred())
			Expect(retired).To(BeFalse())
		})

		It("should fail when the write value is missing", func() {
			_, err := writebackStage.Writeback(&pipeline.MEMWBRegister{
				Valid: true, Inst: insts.I(insts.OpADDI, 4, 0, 1), Rd: 4,
				RegWrite: true,
			})

			Expect(err).To(MatchError(emu.ErrMissingWriteValue))
		})

		It("should fail for an out of range destination", func() {
			_, err := writebackStage.Writeback(&pipeline.MEMWBRegister{
				Valid: true, Inst: insts.I(insts.OpADDI, 40, 0, 1), Rd: 40,
				RegWrite: true, ValueReady: true,
			})

			Expect(err).To(MatchError(emu.ErrOutOfRange))
		})
	})
})
