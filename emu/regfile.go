// Package emu provides functional ARM32 emulation.
package emu

import (
	"fmt"

	"github.com/sarchlab/armsim/insts"
)

// RegFile represents the ARM32 register file.
// It contains 16 general-purpose registers (R0-R15, where R13 is the stack
// pointer, R14 the link register and R15 the program counter) and the
// status flags.
type RegFile struct {
	// R holds general-purpose registers R0-R15.
	R [16]uint32

	// CPSR holds the condition flags.
	CPSR StatusRegister
}

// StatusRegister holds the NZCV condition flags.
type StatusRegister struct {
	// N is the negative flag.
	N bool
	// Z is the zero flag.
	Z bool
	// C is the carry flag.
	C bool
	// V is the overflow flag.
	V bool
}

// ReadReg reads a register value.
func (r *RegFile) ReadReg(reg insts.Reg) uint32 {
	return r.R[reg&0xF]
}

// WriteReg writes a value to a register. Writing R15 moves the PC.
func (r *RegFile) WriteReg(reg insts.Reg, value uint32) {
	r.R[reg&0xF] = value
}

// PC returns the program counter.
func (r *RegFile) PC() uint32 {
	return r.R[insts.PC]
}

// SetPC sets the program counter.
func (r *RegFile) SetPC(pc uint32) {
	r.R[insts.PC] = pc
}

// Reset zeroes all registers and flags.
func (r *RegFile) Reset() {
	*r = RegFile{}
}

// UpdateFlags sets the flags from the untruncated result y of an
// operation on a and b. N and Z always follow the 32-bit result. For
// arithmetic operations C is the carry out of bit 31 and V the signed
// overflow of a + b, where b is complemented for subtractions since y was
// computed as a + ^b + carry. Non-arithmetic operations leave C and V.
func (s *StatusRegister) UpdateFlags(y uint64, a, b uint32, subtraction, arithmetic bool) {
	result := uint32(y)
	s.N = result>>31 == 1
	s.Z = result == 0

	if !arithmetic {
		return
	}

	s.C = y > 0xFFFFFFFF
	if subtraction {
		b = ^b
	}
	s.V = ((a^result)&(b^result))>>31 == 1
}

// Bits returns the flags as a 4-bit NZCV value.
func (s StatusRegister) Bits() uint8 {
	var v uint8
	for i, f := range []bool{s.V, s.C, s.Z, s.N} {
		if f {
			v |= 1 << i
		}
	}
	return v
}

// SetBits sets the flags from a 4-bit NZCV value.
func (s *StatusRegister) SetBits(v uint8) {
	s.N = v&0b1000 != 0
	s.Z = v&0b0100 != 0
	s.C = v&0b0010 != 0
	s.V = v&0b0001 != 0
}

func (s StatusRegister) String() string {
	b := func(f bool) int {
		if f {
			return 1
		}
		return 0
	}
	return fmt.Sprintf("N=%d Z=%d C=%d V=%d", b(s.N), b(s.Z), b(s.C), b(s.V))
}
