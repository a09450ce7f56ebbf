package emu

import "github.com/sarchlab/armsim/insts"

// BranchUnit implements ARM32 branch operations and condition evaluation.
type BranchUnit struct {
	regFile *RegFile
}

// NewBranchUnit creates a new BranchUnit connected to the given register file.
func NewBranchUnit(regFile *RegFile) *BranchUnit {
	return &BranchUnit{regFile: regFile}
}

// B branches to target.
func (b *BranchUnit) B(target uint32) {
	b.regFile.SetPC(target)
}

// BL branches to target and saves the return address in LR. The PC must
// already point past the branch.
func (b *BranchUnit) BL(target uint32) {
	b.regFile.WriteReg(insts.LR, b.regFile.PC())
	b.regFile.SetPC(target)
}

// CheckCondition evaluates an ARM condition code against the current flags.
func (b *BranchUnit) CheckCondition(cond insts.Cond) bool {
	cpsr := &b.regFile.CPSR

	switch cond {
	case insts.CondEQ:
		// Equal: Z == 1
		return cpsr.Z
	case insts.CondNE:
		// Not Equal: Z == 0
		return !cpsr.Z
	case insts.CondCS:
		// Carry Set / Unsigned higher or same: C == 1
		return cpsr.C
	case insts.CondCC:
		// Carry Clear / Unsigned lower: C == 0
		return !cpsr.C
	case insts.CondMI:
		// Minus / Negative: N == 1
		return cpsr.N
	case insts.CondPL:
		// Plus / Positive or zero: N == 0
		return !cpsr.N
	case insts.CondVS:
		// Overflow: V == 1
		return cpsr.V
	case insts.CondVC:
		// No overflow: V == 0
		return !cpsr.V
	case insts.CondHI:
		// Unsigned higher: C == 1 && Z == 0
		return cpsr.C && !cpsr.Z
	case insts.CondLS:
		// Unsigned lower or same: C == 0 || Z == 1
		return !cpsr.C || cpsr.Z
	case insts.CondGE:
		// Signed greater than or equal: N == V
		return cpsr.N == cpsr.V
	case insts.CondLT:
		// Signed less than: N != V
		return cpsr.N != cpsr.V
	case insts.CondGT:
		// Signed greater than: Z == 0 && N == V
		return !cpsr.Z && (cpsr.N == cpsr.V)
	case insts.CondLE:
		// Signed less than or equal: Z == 1 || N != V
		return cpsr.Z || (cpsr.N != cpsr.V)
	case insts.CondAL:
		return true
	default:
		// NV never executes
		return false
	}
}
