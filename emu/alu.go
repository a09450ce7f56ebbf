package emu

import "github.com/sarchlab/armsim/insts"

// ALU implements ARM32 arithmetic, logic and multiply operations.
type ALU struct {
	regFile *RegFile
}

// NewALU creates a new ALU connected to the given register file.
func NewALU(regFile *RegFile) *ALU {
	return &ALU{regFile: regFile}
}

func (a *ALU) carry() uint64 {
	if a.regFile.CPSR.C {
		return 1
	}
	return 0
}

// Arithmetic performs add, adc, sub, sbc, rsb or rsc on rn and op2 and
// returns the 32-bit result. Subtractions are computed as x + ^y + carry
// so that C holds the ARM not-borrow.
func (a *ALU) Arithmetic(op insts.Op, rn, op2 uint32, setFlags bool) uint32 {
	var (
		x, y     uint32
		carryIn  uint64
		subtract bool
	)

	switch op {
	case insts.OpADD:
		x, y = rn, op2
	case insts.OpADC:
		x, y, carryIn = rn, op2, a.carry()
	case insts.OpSUB:
		x, y, carryIn, subtract = rn, op2, 1, true
	case insts.OpSBC:
		x, y, carryIn, subtract = rn, op2, a.carry(), true
	case insts.OpRSB:
		x, y, carryIn, subtract = op2, rn, 1, true
	case insts.OpRSC:
		x, y, carryIn, subtract = op2, rn, a.carry(), true
	}

	addend := y
	if subtract {
		addend = ^y
	}
	sum := uint64(x) + uint64(addend) + carryIn

	if setFlags {
		a.regFile.CPSR.UpdateFlags(sum, x, y, subtract, true)
	}
	return uint32(sum)
}

// Logic performs and, orr, eor, bic, mov, mvn and the compare operations.
// shifterCarry is the carry out of the barrel shifter and becomes C when
// flags are set. V is never touched except by cmp and cmn, which are
// arithmetic.
func (a *ALU) Logic(op insts.Op, rn, op2 uint32, shifterCarry, setFlags bool) uint32 {
	var result uint32

	switch op {
	case insts.OpCMP:
		return a.Arithmetic(insts.OpSUB, rn, op2, setFlags)
	case insts.OpCMN:
		return a.Arithmetic(insts.OpADD, rn, op2, setFlags)
	case insts.OpAND, insts.OpTST:
		result = rn & op2
	case insts.OpORR:
		result = rn | op2
	case insts.OpEOR, insts.OpTEQ:
		result = rn ^ op2
	case insts.OpBIC:
		result = rn &^ op2
	case insts.OpMOV:
		result = op2
	case insts.OpMVN:
		result = ^op2
	}

	if setFlags {
		a.regFile.CPSR.UpdateFlags(uint64(result), 0, 0, false, false)
		a.regFile.CPSR.C = shifterCarry
	}
	return result
}

// Multiply computes rm * rs, plus rn when accumulating. Only N and Z are
// affected.
func (a *ALU) Multiply(rm, rs, rn uint32, accumulate, setFlags bool) uint32 {
	result := rm * rs
	if accumulate {
		result += rn
	}

	if setFlags {
		a.regFile.CPSR.UpdateFlags(uint64(result), 0, 0, false, false)
	}
	return result
}
