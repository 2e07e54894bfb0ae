package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvpipe/insts"
	"github.com/sarchlab/rvpipe/timing/pipeline"
)

var _ = Describe("ControlUnit", func() {
	var (
		controlUnit *pipeline.ControlUnit
		trace       *pipeline.Trace
	)

	BeforeEach(func() {
		trace = pipeline.NewTrace(true, nil)
		controlUnit = pipeline.NewControlUnit(trace)
	})

	Describe("DetectForwarding", func() {
		var idex *pipeline.IDEXRegister
		var exmem *pipeline.EXMEMRegister
		var memwb *pipeline.MEMWBRegister

		BeforeEach(func() {
			idex = &pipeline.IDEXRegister{
				Valid: true, Inst: insts.R(insts.OpADD, 3, 1, 2),
				Rd: 3, Rs1: 1, Rs2: 2, UsesRs2: true,
			}
			exmem = &pipeline.EXMEMRegister{}
			memwb = &pipeline.MEMWBRegister{}
		})

		Context("when no forwarding is needed", func() {
			It("should return ForwardNone for both operands", func() {
				result := controlUnit.DetectForwarding(idex, exmem, memwb)

				Expect(result.ForwardA).To(Equal(pipeline.ForwardNone))
				Expect(result.ForwardB).To(Equal(pipeline.ForwardNone))
				Expect(trace.Lines()).To(ConsistOf("Forwarding: forwardA=NONE, forwardB=NONE"))
			})
		})

		Context("when forwarding from EX/MEM is needed", func() {
			BeforeEach(func() {
				exmem.Valid = true
				exmem.RegWrite = true
				exmem.Inst = insts.I(insts.OpADDI, 1, 0, 5)
			})

			It("should forward rs1 from EX/MEM", func() {
				exmem.Rd = 1

				result := controlUnit.DetectForwarding(idex, exmem, memwb)

				Expect(result.ForwardA).To(Equal(pipeline.ForwardFromEXMEM))
				Expect(result.ForwardB).To(Equal(pipeline.ForwardNone))
			})

			It("should forward rs2 from EX/MEM", func() {
				exmem.Rd = 2

				result := controlUnit.DetectForwarding(idex, exmem, memwb)

				Expect(result.ForwardA).To(Equal(pipeline.ForwardNone))
				Expect(result.ForwardB).To(Equal(pipeline.ForwardFromEXMEM))
			})

			It("should not forward rs2 for immediate-form instructions", func() {
				exmem.Rd = 2
				idex.UsesRs2 = false

				result := controlUnit.DetectForwarding(idex, exmem, memwb)

				Expect(result.ForwardB).To(Equal(pipeline.ForwardNone))
			})

			It("should prefer EX/MEM over MEM/WB", func() {
				exmem.Rd = 1
				memwb.Valid = true
				memwb.RegWrite = true
				memwb.ValueReady = true
				memwb.Inst = insts.I(insts.OpADDI, 1, 0, 9)
				memwb.Rd = 1

				result := controlUnit.DetectForwarding(idex, exmem, memwb)

				Expect(result.ForwardA).To(Equal(pipeline.ForwardFromEXMEM))
			})
		})

		Context("when forwarding from MEM/WB is needed", func() {
			BeforeEach(func() {
				memwb.Valid = true
				memwb.RegWrite = true
				memwb.Inst = insts.I(insts.OpLOAD, 2, 5, 0)
				memwb.Rd = 2
				memwb.MemToReg = true
			})

			It("should forward a resolved value", func() {
				memwb.ValueReady = true

				result := controlUnit.DetectForwarding(idex, exmem, memwb)

				Expect(result.ForwardB).To(Equal(pipeline.ForwardFromMEMWB))
			})

			It("should not forward an unresolved value", func() {
				result := controlUnit.DetectForwarding(idex, exmem, memwb)

				Expect(result.ForwardB).To(Equal(pipeline.ForwardNone))
			})

			It("should take a load's data from MEM/WB rather than its address", func() {
				memwb.ValueReady = true
				exmem.Valid = true
				exmem.RegWrite = true
				exmem.MemRead = true
				exmem.Inst = memwb.Inst
				exmem.Rd = 2

				result := controlUnit.DetectForwarding(idex, exmem, memwb)

				Expect(result.ForwardB).To(Equal(pipeline.ForwardFromMEMWB))
			})
		})

		DescribeTable("producers that are never forwarded",
			func(producer insts.Instruction) {
				exmem.Valid = true
				exmem.Inst = producer
				exmem.RegWrite = producer.Op.WritesRegister()
				exmem.Rd = 1

				result := controlUnit.DetectForwarding(idex, exmem, memwb)

				Expect(result.ForwardA).To(Equal(pipeline.ForwardNone))
			},
			Entry("STORE", insts.S(1, 2, 0)),
			Entry("BEQ", insts.B(insts.OpBEQ, 1, 2, 2)),
			Entry("BNE", insts.B(insts.OpBNE, 1, 2, 2)),
			Entry("JAL", insts.J(1, 2)),
			Entry("JALR", insts.I(insts.OpJALR, 1, 2, 0)),
		)

		It("should never forward x0", func() {
			idex.Rs1 = 0
			exmem.Valid = true
			exmem.RegWrite = true
			exmem.Inst = insts.I(insts.OpADDI, 0, 0, 5)

			result := controlUnit.DetectForwarding(idex, exmem, memwb)

			Expect(result.ForwardA).To(Equal(pipeline.ForwardNone))
		})

		It("should ignore an empty ID/EX register", func() {
			idex.Valid = false
			exmem.Valid = true
			exmem.RegWrite = true
			exmem.Inst = insts.I(insts.OpADDI, 1, 0, 5)
			exmem.Rd = 1

			result := controlUnit.DetectForwarding(idex, exmem, memwb)

			Expect(result.ForwardA).To(Equal(pipeline.ForwardNone))
		})
	})

	Describe("DetectLoadUseHazard", func() {
		var (
			ifid *pipeline.IFIDRegister
			idex *pipeline.IDEXRegister
		)

		BeforeEach(func() {
			idex = &pipeline.IDEXRegister{
				Valid: true, Inst: insts.I(insts.OpLOAD, 2, 1, 0), Rd: 2, Rs1: 1,
			}
			ifid = &pipeline.IFIDRegister{Valid: true}
		})

		It("should stall when the next instruction reads the loaded register", func() {
			ifid.Inst = insts.R(insts.OpADD, 3, 4, 2)

			result := controlUnit.DetectLoadUseHazard(ifid, idex)

			Expect(result).To(Equal(pipeline.StallResult{
				StallFetch: true, StallDecode: true, BubbleExecute: true,
			}))
		})

		It("should stall for the store value operand", func() {
			ifid.Inst = insts.S(5, 2, 0)

			Expect(controlUnit.DetectLoadUseHazard(ifid, idex).BubbleExecute).To(BeTrue())
		})

		It("should not stall for independent instructions", func() {
			ifid.Inst = insts.R(insts.OpADD, 3, 4, 5)

			Expect(controlUnit.DetectLoadUseHazard(ifid, idex)).To(BeZero())
		})

		It("should not stall on an operand outside the format", func() {
			ifid.Inst = insts.Instruction{Op: insts.OpADDI, Rd: 3, Rs1: 4, Rs2: 2}

			Expect(controlUnit.DetectLoadUseHazard(ifid, idex)).To(BeZero())
		})

		It("should not stall for loads into x0", func() {
			idex.Inst = insts.I(insts.OpLOAD, 0, 1, 0)
			idex.Rd = 0
			ifid.Inst = insts.R(insts.OpADD, 3, 0, 0)

			Expect(controlUnit.DetectLoadUseHazard(ifid, idex)).To(BeZero())
		})

		It("should not stall for non-load producers", func() {
			idex.Inst = insts.I(insts.OpADDI, 2, 1, 0)
			ifid.Inst = insts.R(insts.OpADD, 3, 2, 2)

			Expect(controlUnit.DetectLoadUseHazard(ifid, idex)).To(BeZero())
		})

		It("should not stall with an empty IF/ID register", func() {
			ifid.Valid = false
			ifid.Inst = insts.R(insts.OpADD, 3, 2, 2)

			Expect(controlUnit.DetectLoadUseHazard(ifid, idex)).To(BeZero())
		})
	})

	Describe("BranchFlush", func() {
		It("should pass the branch flag through to both flush signals", func() {
			Expect(controlUnit.BranchFlush(true)).To(Equal(
				pipeline.FlushResult{FlushIFID: true, FlushIDEX: true}))
			Expect(controlUnit.BranchFlush(false)).To(BeZero())
		})
	})

	Describe("ComputeSignals", func() {
		It("should combine all sub-procedures and trace each decision", func() {
			ifid := &pipeline.IFIDRegister{Valid: true, Inst: insts.R(insts.OpADD, 3, 2, 2)}
			idex := &pipeline.IDEXRegister{
				Valid: true, Inst: insts.I(insts.OpLOAD, 2, 1, 0), Rd: 2, Rs1: 1,
			}
			exmem := &pipeline.EXMEMRegister{
				Valid: true, Inst: insts.I(insts.OpADDI, 1, 0, 100), Rd: 1, RegWrite: true,
			}

			signals := controlUnit.ComputeSignals(ifid, idex, exmem, &pipeline.MEMWBRegister{}, false)

			Expect(signals.ForwardA).To(Equal(pipeline.ForwardFromEXMEM))
			Expect(signals.BubbleExecute).To(BeTrue())
			Expect(signals.FlushIFID).To(BeFalse())

			lines := trace.Lines()
			Expect(lines).To(HaveLen(4))
			Expect(lines[0]).To(HavePrefix("Forwarding:"))
			Expect(lines[1]).To(Equal("Hazard: load-use on x2, stalling fetch and decode"))
			Expect(lines[2]).To(HavePrefix("Branch Flush:"))
			Expect(lines[3]).To(HavePrefix("Control signals: forwardA=FROM_EX_MEM"))
		})
	})

	It("should accept a nil tracer", func() {
		cu := pipeline.NewControlUnit(nil)
		Expect(func() { cu.BranchFlush(true) }).NotTo(Panic())
	})
})
