package insts_test

import (
	"errors"
	"fmt"
	"math/bits"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/armsim/insts"
)

var _ = Describe("Operand resolution", func() {
	Describe("Registers", func() {
		It("should encode every register as four binary digits", func() {
			for i := 0; i < 16; i++ {
				r, err := insts.ResolveRegister(fmt.Sprintf("r%d", i))
				Expect(err).ToNot(HaveOccurred())
				Expect(r).To(Equal(insts.Reg(i)))
				Expect(r.Encoding()).To(Equal(fmt.Sprintf("%04b", i)))
			}
		})

		It("should resolve aliases to the same index", func() {
			sp, err := insts.ResolveRegister("sp")
			Expect(err).ToNot(HaveOccurred())
			Expect(sp).To(Equal(insts.Reg(13)))
			Expect(sp.Encoding()).To(Equal("1101"))

			lr, _ := insts.ResolveRegister("lr")
			pc, _ := insts.ResolveRegister("pc")
			Expect(lr).To(Equal(insts.LR))
			Expect(pc).To(Equal(insts.PC))
			Expect(insts.Reg(15).String()).To(Equal("pc"))
		})

		It("should reject unknown registers", func() {
			for _, tok := range []string{"r16", "r07", "x1", "r", "", "#1"} {
				_, err := insts.ResolveRegister(tok)
				Expect(errors.Is(err, insts.ErrInvalidOperand)).To(BeTrue(), tok)
			}
		})
	})

	Describe("Immediates", func() {
		It("should round-trip every rotated 8-bit pattern", func() {
			for imm8 := uint32(0); imm8 < 256; imm8++ {
				for rot := 0; rot < 16; rot++ {
					value := bits.RotateLeft32(imm8, -2*rot)
					imm, err := insts.ResolveImmediate(fmt.Sprintf("#0x%x", value))
					Expect(err).ToNot(HaveOccurred())
					Expect(imm.Value()).To(Equal(value))
					Expect(imm.Inverted).To(BeFalse())
				}
			}
		})

		It("should reject #0x101", func() {
			_, err := insts.ResolveImmediate("#0x101")
			Expect(errors.Is(err, insts.ErrInvalidOperand)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("not representable by the shifter"))
		})

		It("should accept #0xff000000", func() {
			imm, err := insts.ResolveImmediate("#0xff000000")
			Expect(err).ToNot(HaveOccurred())
			Expect(imm.Imm8).To(Equal(uint8(0xff)))
			Expect(imm.Rotate).To(Equal(uint8(4)))
			Expect(imm.Field()).To(Equal(uint32(0x4ff)))
			Expect(imm.String()).To(Equal("#0xff000000"))
		})

		It("should use the complement when the value does not fit", func() {
			imm, err := insts.ResolveImmediate("#-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(imm.Inverted).To(BeTrue())
			Expect(imm.Imm8).To(Equal(uint8(0)))
			Expect(imm.Value()).To(Equal(uint32(0xffffffff)))
			Expect(imm.String()).To(Equal("#-1"))
		})

		It("should accept binary and octal prefixes", func() {
			imm, err := insts.ResolveImmediate("#0b1010")
			Expect(err).ToNot(HaveOccurred())
			Expect(imm.Value()).To(Equal(uint32(10)))

			imm, err = insts.ResolveImmediate("#0o17")
			Expect(err).ToNot(HaveOccurred())
			Expect(imm.Value()).To(Equal(uint32(15)))
		})

		It("should require the # prefix", func() {
			_, err := insts.ResolveImmediate("42")
			Expect(errors.Is(err, insts.ErrInvalidOperand)).To(BeTrue())
		})
	})

	Describe("Shifters", func() {
		It("should resolve an immediate shift", func() {
			s, err := insts.ResolveShifter("r2,lsl#3")
			Expect(err).ToNot(HaveOccurred())
			Expect(s.Value).To(Equal(insts.Reg(2)))
			Expect(s.Type).To(Equal(insts.ShiftLSL))
			Expect(s.Amount.(insts.Imm).Value()).To(Equal(uint32(3)))
			Expect(s.String()).To(Equal("r2, lsl #3"))
		})

		It("should resolve a register shift", func() {
			s, err := insts.ResolveShifter("r2,asrr3")
			Expect(err).ToNot(HaveOccurred())
			Expect(s.Type).To(Equal(insts.ShiftASR))
			Expect(s.Amount).To(Equal(insts.Reg(3)))
		})

		It("should resolve rrx without an amount", func() {
			s, err := insts.ResolveShifter("r1,rrx")
			Expect(err).ToNot(HaveOccurred())
			Expect(s.Type).To(Equal(insts.ShiftRRX))
			Expect(s.Amount).To(BeNil())

			_, err = insts.ResolveShifter("r1,rrx#1")
			Expect(err).To(HaveOccurred())
		})

		It("should reject shift amounts above 31", func() {
			_, err := insts.ResolveShifter("r2,lsl#32")
			Expect(errors.Is(err, insts.ErrInvalidOperand)).To(BeTrue())
		})

		It("should reject unknown shift kinds", func() {
			_, err := insts.ResolveShifter("r2,foo#1")
			Expect(errors.Is(err, insts.ErrInvalidOperand)).To(BeTrue())
		})
	})

	Describe("Addresses", func() {
		It("should resolve a bare base register", func() {
			m, err := insts.ResolveMem("[r1]")
			Expect(err).ToNot(HaveOccurred())
			Expect(m).To(Equal(insts.Mem{Base: 1}))
		})

		It("should resolve pre-indexed writeback", func() {
			m, err := insts.ResolveMem("[r1,#4]!")
			Expect(err).ToNot(HaveOccurred())
			Expect(m.Writeback).To(BeTrue())
			Expect(m.PostIndexed).To(BeFalse())
			Expect(m.Offset.(insts.Imm).Value()).To(Equal(uint32(4)))
			Expect(m.String()).To(Equal("[r1, #4]!"))
		})

		It("should force writeback for post-indexed addresses", func() {
			m, err := insts.ResolveMem("[r1],#4")
			Expect(err).ToNot(HaveOccurred())
			Expect(m.PostIndexed).To(BeTrue())
			Expect(m.Writeback).To(BeTrue())
			Expect(m.String()).To(Equal("[r1], #4"))
		})

		It("should resolve negative register offsets", func() {
			m, err := insts.ResolveMem("[r1,-r2]")
			Expect(err).ToNot(HaveOccurred())
			Expect(m.Subtract).To(BeTrue())
			Expect(m.Offset).To(Equal(insts.Reg(2)))
		})

		It("should resolve negative immediate offsets", func() {
			m, err := insts.ResolveMem("[r1,#-8]")
			Expect(err).ToNot(HaveOccurred())
			Expect(m.Subtract).To(BeTrue())
			Expect(m.Offset.(insts.Imm).Value()).To(Equal(uint32(8)))
		})

		It("should resolve shifted register offsets", func() {
			m, err := insts.ResolveMem("[r1,r2,lsl#2]")
			Expect(err).ToNot(HaveOccurred())
			s := m.Offset.(insts.Shifter)
			Expect(s.Value).To(Equal(insts.Reg(2)))
			Expect(s.Type).To(Equal(insts.ShiftLSL))
		})

		It("should reject malformed addresses", func() {
			for _, tok := range []string{"r1", "[r1", "[x1]", "[r1,#4],#4", "[r1]?"} {
				_, err := insts.ResolveMem(tok)
				Expect(errors.Is(err, insts.ErrInvalidOperand)).To(BeTrue(), tok)
			}
		})
	})

	Describe("Register lists", func() {
		It("should expand ranges and sort", func() {
			l, err := insts.ResolveRegList("{lr,r0-r3}")
			Expect(err).ToNot(HaveOccurred())
			Expect(l).To(Equal(insts.RegList{0, 1, 2, 3, 14}))
			Expect(l.Bitmap()).To(Equal(uint16(0x400f)))
		})

		It("should collapse duplicates", func() {
			l, err := insts.ResolveRegList("{r3,r1,r1,r1-r3}")
			Expect(err).ToNot(HaveOccurred())
			Expect(l).To(Equal(insts.RegList{1, 2, 3}))
		})

		It("should reject descending ranges", func() {
			_, err := insts.ResolveRegList("{r3-r1}")
			Expect(errors.Is(err, insts.ErrInvalidOperand)).To(BeTrue())
		})

		It("should report every bad entry at once", func() {
			_, err := insts.ResolveRegList("{r0,x1,r99}")
			Expect(errors.Is(err, insts.ErrInvalidOperand)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("x1"))
			Expect(err.Error()).To(ContainSubstring("r99"))
		})

		It("should reject empty lists", func() {
			_, err := insts.ResolveRegList("{}")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Literal loads", func() {
		It("should resolve numbers and labels", func() {
			li, err := insts.ResolveLoadImm("=0x20")
			Expect(err).ToNot(HaveOccurred())
			Expect(li.Value).To(Equal(uint32(0x20)))

			li, err = insts.ResolveLoadImm("=loop")
			Expect(err).ToNot(HaveOccurred())
			Expect(li.Label).To(Equal("loop"))
		})

		It("should reject other tokens", func() {
			_, err := insts.ResolveLoadImm("=#1")
			Expect(errors.Is(err, insts.ErrInvalidOperand)).To(BeTrue())
		})
	})

	Describe("Conditions", func() {
		It("should parse aliases", func() {
			c, err := insts.ParseCond("hs")
			Expect(err).ToNot(HaveOccurred())
			Expect(c).To(Equal(insts.CondCS))

			c, err = insts.ParseCond("")
			Expect(err).ToNot(HaveOccurred())
			Expect(c).To(Equal(insts.CondAL))
			Expect(c.Suffix()).To(BeEmpty())
		})

		It("should reject unknown conditions", func() {
			_, err := insts.ParseCond("xx")
			Expect(errors.Is(err, insts.ErrInvalidInstruction)).To(BeTrue())
		})
	})
})
