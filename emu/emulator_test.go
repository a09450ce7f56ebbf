package emu_test

import (
	"bytes"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/armsim/emu"
	"github.com/sarchlab/armsim/insts"
)

var _ = Describe("Emulator", func() {
	var (
		e         *emu.Emulator
		memory    *emu.Memory
		stdoutBuf *bytes.Buffer
		recorder  *diagnosticRecorder
	)

	BeforeEach(func() {
		stdoutBuf = &bytes.Buffer{}
		memory = emu.NewMemory()
		recorder = &diagnosticRecorder{}
		e = emu.NewEmulator(
			emu.WithStdout(stdoutBuf),
			emu.WithMemory(memory),
		)
		e.AcceptHook(recorder)
	})

	add := func(mnemonic string, operands ...string) {
		Expect(memory.AddInstruction(stmt(mnemonic, operands...))).To(Succeed())
	}

	Describe("NewEmulator", func() {
		It("should create an emulator with initialized components", func() {
			Expect(e).NotTo(BeNil())
			Expect(e.RegFile()).NotTo(BeNil())
			Expect(e.Memory()).To(BeIdenticalTo(memory))
		})

		It("should create its own memory when none is given", func() {
			Expect(emu.NewEmulator().Memory()).NotTo(BeNil())
		})
	})

	Describe("Step", func() {
		Context("ALU instructions", func() {
			It("should execute add r0, r1, r2 without touching flags", func() {
				add("add", "r0", "r1", "r2")
				e.RegFile().WriteReg(1, 5)
				e.RegFile().WriteReg(2, 7)
				e.RegFile().CPSR.SetBits(0b0110)

				result := e.Step()

				Expect(result.Halted).To(BeFalse())
				Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(12)))
				Expect(e.RegFile().PC()).To(Equal(uint32(4)))
				Expect(e.RegFile().CPSR.Bits()).To(Equal(uint8(0b0110)))
			})

			It("should set flags for cmp without writing a register", func() {
				add("cmp", "r0", "r1")
				e.RegFile().WriteReg(0, 3)
				e.RegFile().WriteReg(1, 3)

				e.Step()

				cpsr := e.RegFile().CPSR
				Expect(cpsr.Z).To(BeTrue())
				Expect(cpsr.C).To(BeTrue())
				Expect(cpsr.N).To(BeFalse())
				Expect(cpsr.V).To(BeFalse())
				Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(3)))
			})

			It("should use the short form destination as source", func() {
				add("sub", "r3", "#1")
				e.RegFile().WriteReg(3, 10)

				e.Step()

				Expect(e.RegFile().ReadReg(3)).To(Equal(uint32(9)))
			})

			It("should move complemented immediates", func() {
				add("mov", "r0", "#0xffffffff")
				e.Step()
				Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(0xffffffff)))
			})

			It("should feed the shifter carry into movs", func() {
				memory.AddInstruction(insts.Statement{
					Mnemonic: "mov", SetFlags: true, Operands: []string{"r0", "r1,lsr#1"},
				})
				e.RegFile().WriteReg(1, 3)

				e.Step()

				Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(1)))
				Expect(e.RegFile().CPSR.C).To(BeTrue())
			})

			It("should shift by a register", func() {
				add("mov", "r0", "r1,lslr2")
				e.RegFile().WriteReg(1, 1)
				e.RegFile().WriteReg(2, 0x104) // only the bottom byte counts

				e.Step()

				Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(0x10)))
			})

			It("should multiply and accumulate", func() {
				add("mla", "r0", "r1", "r2", "r3")
				e.RegFile().WriteReg(1, 6)
				e.RegFile().WriteReg(2, 7)
				e.RegFile().WriteReg(3, 100)

				e.Step()

				Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(142)))
			})

			It("should return through mov pc, lr", func() {
				add("mov", "pc", "lr")
				e.RegFile().WriteReg(insts.LR, 0x40)

				e.Step()

				Expect(e.RegFile().PC()).To(Equal(uint32(0x40)))
			})
		})

		Context("conditions", func() {
			It("should skip failed conditions but count the step", func() {
				memory.AddInstruction(insts.Statement{Mnemonic: "mov", Cond: "eq", Operands: []string{"r0", "#1"}})

				result := e.Step()

				Expect(result.Halted).To(BeFalse())
				Expect(e.RegFile().ReadReg(0)).To(BeZero())
				Expect(e.RegFile().PC()).To(Equal(uint32(4)))
				Expect(e.InstructionCount()).To(Equal(uint64(1)))
			})

			It("should never execute nv", func() {
				memory.AddInstruction(insts.Statement{Mnemonic: "mov", Cond: "nv", Operands: []string{"r0", "#1"}})
				e.RegFile().CPSR.SetBits(0b1111)

				e.Step()

				Expect(e.RegFile().ReadReg(0)).To(BeZero())
				Expect(e.RegFile().PC()).To(Equal(uint32(4)))
			})
		})

		Context("branches", func() {
			It("should branch to a label", func() {
				add("b", "target")
				add("mov", "r0", "#1")
				Expect(memory.AddLabel(8, "target")).To(Succeed())
				add("mov", "r0", "#2")

				e.Step()

				Expect(e.RegFile().PC()).To(Equal(uint32(8)))
			})

			It("should save the return address for bl", func() {
				Expect(memory.AddLabel(0x10, "fn")).To(Succeed())
				add("bl", "fn")

				e.Step()

				Expect(e.RegFile().PC()).To(Equal(uint32(0x10)))
				Expect(e.RegFile().ReadReg(insts.LR)).To(Equal(uint32(4)))
			})

			It("should halt on an unresolved label", func() {
				add("b", "nowhere")

				result := e.Step()

				Expect(result.Halted).To(BeTrue())
				Expect(errors.Is(result.Err, insts.ErrInvalidBranchLabel)).To(BeTrue())
				Expect(e.RegFile().PC()).To(Equal(uint32(4)))
				Expect(e.RegFile().ReadReg(insts.LR)).To(BeZero())
				Expect(recorder.diagnostics).To(HaveLen(1))
				Expect(recorder.diagnostics[0].Severity).To(Equal(emu.SeverityError))
			})
		})

		Context("unsimulated instructions", func() {
			It("should advance past memory transfers with an info diagnostic", func() {
				add("ldr", "r0", "[r1]")
				add("swi")

				Expect(e.Step().Halted).To(BeFalse())
				Expect(e.Step().Halted).To(BeFalse())

				Expect(e.RegFile().PC()).To(Equal(uint32(8)))
				Expect(recorder.diagnostics).To(HaveLen(2))
				Expect(recorder.diagnostics[0].Severity).To(Equal(emu.SeverityInfo))
			})
		})

		Context("fetch", func() {
			It("should halt on an unaligned pc", func() {
				e.RegFile().SetPC(2)

				result := e.Step()

				Expect(result.Halted).To(BeTrue())
				Expect(errors.Is(result.Err, emu.ErrInvalidMemoryAddress)).To(BeTrue())
			})

			It("should halt when the slot holds no instruction", func() {
				result := e.Step()

				Expect(result.Halted).To(BeTrue())
				Expect(errors.Is(result.Err, emu.ErrInstructionsFinished)).To(BeTrue())
				Expect(recorder.diagnostics[0].Severity).To(Equal(emu.SeverityInfo))
			})
		})

		It("should report every executed address to step hooks", func() {
			add("mov", "r0", "#1")
			add("mov", "r1", "#2")

			e.Step()
			e.Step()

			Expect(recorder.steps).To(Equal([]uint32{0, 4}))
		})

		It("should not report instructions whose condition failed", func() {
			add("mov", "r0", "#1")
			Expect(memory.AddInstruction(insts.Statement{
				Mnemonic: "mov", Cond: "eq", Operands: []string{"r1", "#2"},
			})).To(Succeed())
			add("mov", "r2", "#3")

			e.Step()
			e.Step()
			e.Step()

			Expect(recorder.steps).To(Equal([]uint32{0, 8}))
			Expect(e.RegFile().ReadReg(1)).To(BeZero())
			Expect(e.RegFile().PC()).To(Equal(uint32(12)))
		})
	})

	Describe("Continue", func() {
		It("should run a counting loop to completion", func() {
			add("mov", "r0", "#0")
			Expect(memory.AddLabel(4, "loop")).To(Succeed())
			add("add", "r0", "r0", "#1")
			add("cmp", "r0", "#5")
			memory.AddInstruction(insts.Statement{Mnemonic: "b", Cond: "ne", Operands: []string{"loop"}})

			result := e.Continue()

			Expect(result.Reason).To(Equal(emu.StopFinished))
			Expect(errors.Is(result.Err, emu.ErrInstructionsFinished)).To(BeTrue())
			Expect(result.Steps).To(Equal(uint64(16)))
			Expect(e.RegFile().ReadReg(0)).To(Equal(uint32(5)))
		})

		It("should stop at the step limit", func() {
			e = emu.NewEmulator(emu.WithMemory(memory), emu.WithStepLimit(10))
			Expect(memory.AddLabel(0, "spin")).To(Succeed())
			add("b", "spin")

			result := e.Continue()

			Expect(result.Reason).To(Equal(emu.StopStepLimit))
			Expect(result.Steps).To(Equal(uint64(10)))
			Expect(errors.Is(result.Err, emu.ErrAutomaticBreakpoint)).To(BeTrue())
		})

		It("should default the step limit", func() {
			Expect(memory.AddLabel(0, "spin")).To(Succeed())
			add("b", "spin")

			result := e.Continue()

			Expect(result.Steps).To(Equal(uint64(emu.DefaultStepLimit)))
			last := recorder.diagnostics[len(recorder.diagnostics)-1]
			Expect(last.Severity).To(Equal(emu.SeverityWarning))
		})

		It("should pause at breakpoints", func() {
			add("mov", "r0", "#1")
			add("mov", "r1", "#2")
			add("mov", "r2", "#3")
			e.SetBetweenSteps(emu.StopAtBreakpoints)
			e.SetBreakpoint(8)

			result := e.Continue()

			Expect(result.Reason).To(Equal(emu.StopPaused))
			Expect(result.Steps).To(Equal(uint64(2)))
			Expect(e.RegFile().PC()).To(Equal(uint32(8)))

			result = e.Continue()
			Expect(result.Reason).To(Equal(emu.StopFinished))
			Expect(e.RegFile().ReadReg(2)).To(Equal(uint32(3)))
		})

		It("should stop when asked between steps", func() {
			Expect(memory.AddLabel(0, "spin")).To(Succeed())
			add("b", "spin")

			calls := 0
			e.SetBetweenSteps(func(em *emu.Emulator) bool {
				calls++
				if calls == 3 {
					em.Stop()
				}
				return true
			})

			result := e.Continue()

			Expect(result.Reason).To(Equal(emu.StopRequested))
			Expect(result.Steps).To(Equal(uint64(3)))
		})

		It("should reject re-entry", func() {
			add("mov", "r0", "#1")

			var inner emu.RunResult
			e.SetBetweenSteps(func(em *emu.Emulator) bool {
				inner = em.Continue()
				return true
			})

			e.Continue()

			Expect(errors.Is(inner.Err, emu.ErrAlreadyRunning)).To(BeTrue())
		})
	})

	Describe("Breakpoints", func() {
		It("should keep a sorted set", func() {
			e.SetBreakpoint(8)
			e.SetBreakpoint(4)
			e.SetBreakpoint(8)
			Expect(e.Breakpoints()).To(Equal([]uint32{4, 8}))

			e.ClearBreakpoint(4)
			Expect(e.IsBreakpoint(4)).To(BeFalse())
			Expect(e.ToggleBreakpoint(4)).To(BeTrue())
			Expect(e.ToggleBreakpoint(4)).To(BeFalse())
		})
	})

	Describe("ResetRegisters", func() {
		It("should zero registers, flags and the count", func() {
			add("mov", "r0", "#1")
			e.Step()
			e.RegFile().CPSR.SetBits(0b1111)

			e.ResetRegisters()

			Expect(e.RegFile().R).To(Equal([16]uint32{}))
			Expect(e.RegFile().CPSR.Bits()).To(BeZero())
			Expect(e.InstructionCount()).To(BeZero())
		})
	})

	Describe("DumpRegisters", func() {
		It("should print registers and flags", func() {
			e.RegFile().WriteReg(0, 0x2a)
			e.DumpRegisters()

			Expect(stdoutBuf.String()).To(ContainSubstring("r0  = 0x0000002a"))
			Expect(stdoutBuf.String()).To(ContainSubstring("pc  = 0x00000000"))
			Expect(stdoutBuf.String()).To(ContainSubstring("N=0 Z=0 C=0 V=0"))
		})
	})
})
