package insts

import (
	"fmt"
	"math/bits"
	"strings"
)

// Assemble validates a statement and resolves its operands into a typed
// instruction. Wrong operand counts, unknown mnemonics and illegal suffixes
// fail with ErrInvalidInstruction. Every operand token that does not
// resolve is reported together in one *OperandError.
func Assemble(stmt Statement) (Instruction, error) {
	op, suffix, err := lookupOp(strings.ToLower(stmt.Mnemonic))
	if err != nil {
		return nil, err
	}

	cond, err := ParseCond(stmt.Cond)
	if err != nil {
		return nil, err
	}

	if stmt.SetFlags && !allowsSetFlags(op) {
		return nil, fmt.Errorf("%w: %s cannot set flags", ErrInvalidInstruction, op)
	}

	a := &assembler{
		stmt: stmt,
		common: Common{
			Op:       op,
			Cond:     cond,
			SetFlags: stmt.SetFlags || op.IsCompare(),
		},
		errs: &OperandError{Mnemonic: stmt.Mnemonic},
	}

	var inst Instruction
	switch op.Family() {
	case FamilyArithmetic:
		inst, err = a.arithmetic()
	case FamilyMultiplication:
		inst, err = a.multiplication()
	case FamilyLogic:
		inst, err = a.logic()
	case FamilyCopy:
		inst, err = a.copy()
	case FamilyJump:
		inst, err = a.jump()
	case FamilyLoadStore:
		inst, err = a.loadStore(suffix)
	case FamilyLoadStoreMultiple:
		inst, err = a.loadStoreMultiple(suffix)
	case FamilySwap:
		inst, err = a.swap(suffix)
	case FamilySoftwareInterrupt:
		inst, err = a.softwareInterrupt()
	default:
		err = fmt.Errorf("%w: unknown mnemonic %q", ErrInvalidInstruction, stmt.Mnemonic)
	}
	if err != nil {
		return nil, err
	}

	if !a.errs.empty() {
		return nil, a.errs
	}
	return inst, nil
}

type assembler struct {
	stmt   Statement
	common Common
	errs   *OperandError
}

func (a *assembler) arity(counts ...int) error {
	n := len(a.stmt.Operands)
	for _, c := range counts {
		if n == c {
			return nil
		}
	}

	want := make([]string, len(counts))
	for i, c := range counts {
		want[i] = fmt.Sprint(c)
	}
	return fmt.Errorf("%w: %s expects %s operands, got %d",
		ErrInvalidInstruction, a.common.Op, strings.Join(want, " or "), n)
}

func (a *assembler) reg(i int) Reg {
	tok := a.stmt.Operands[i]
	r, err := ResolveRegister(tok)
	if err != nil {
		a.errs.add(tok, err)
	}
	return r
}

// operand2 resolves a flexible second operand and checks that the encoder
// can express it for this opcode.
func (a *assembler) operand2(i int) Operand {
	tok := a.stmt.Operands[i]
	o, err := ResolveOperand2(tok)
	if err != nil {
		a.errs.add(tok, err)
		return nil
	}

	switch v := o.(type) {
	case Imm:
		if v.Inverted && !hasComplement(a.common.Op) {
			a.errs.add(tok, invalidOperand(tok,
				"0x%x is not representable by the shifter", v.Value()))
		}
	case Shifter:
		if _, isImm := v.Value.(Imm); !isImm {
			break
		}
		value, ok := FoldShifter(v)
		if !ok {
			a.errs.add(tok, invalidOperand(tok, "shifted immediate needs a constant shift"))
			break
		}
		imm, ok := NewImm(value)
		if !ok || (imm.Inverted && !hasComplement(a.common.Op)) {
			a.errs.add(tok, invalidOperand(tok,
				"0x%x is not representable by the shifter", value))
		}
	}
	return o
}

// hasComplement reports whether the opcode has a partner that computes the
// same result from the complemented immediate.
func hasComplement(op Op) bool {
	_, ok := complementOp[op]
	return ok
}

var complementOp = map[Op]Op{
	OpMOV: OpMVN,
	OpMVN: OpMOV,
	OpAND: OpBIC,
	OpBIC: OpAND,
}

// FoldShifter computes the value of an immediate shifted by an immediate
// amount. It fails for register operands, register amounts and rrx, whose
// results are only known at run time.
func FoldShifter(s Shifter) (uint32, bool) {
	imm, ok := s.Value.(Imm)
	if !ok || s.Type == ShiftRRX {
		return 0, false
	}
	amt, ok := s.Amount.(Imm)
	if !ok {
		return 0, false
	}

	v, n := imm.Value(), amt.Value()
	switch s.Type {
	case ShiftLSL, ShiftASL:
		return v << n, true
	case ShiftLSR:
		return v >> n, true
	case ShiftASR:
		return uint32(int32(v) >> n), true
	case ShiftROR:
		return bits.RotateLeft32(v, -int(n)), true
	}
	return 0, false
}

func (a *assembler) arithmetic() (Instruction, error) {
	if err := a.arity(2, 3); err != nil {
		return nil, err
	}

	inst := Arithmetic{Common: a.common}
	inst.Rd = a.reg(0)
	if len(a.stmt.Operands) == 2 {
		inst.Rn = inst.Rd
		inst.Short = true
		inst.Op2 = a.operand2(1)
	} else {
		inst.Rn = a.reg(1)
		inst.Op2 = a.operand2(2)
	}
	return inst, nil
}

func (a *assembler) multiplication() (Instruction, error) {
	if a.common.Op == OpMLA {
		if err := a.arity(4); err != nil {
			return nil, err
		}
	} else if err := a.arity(3); err != nil {
		return nil, err
	}

	inst := Multiplication{Common: a.common}
	inst.Rd = a.reg(0)
	inst.Rm = a.reg(1)
	inst.Rs = a.reg(2)
	if a.common.Op == OpMLA {
		inst.Rn = a.reg(3)
	}
	return inst, nil
}

func (a *assembler) logic() (Instruction, error) {
	inst := Logic{Common: a.common}
	if a.common.Op.IsCompare() {
		if err := a.arity(2); err != nil {
			return nil, err
		}
		inst.Rn = a.reg(0)
		inst.Op2 = a.operand2(1)
		return inst, nil
	}

	if err := a.arity(3); err != nil {
		return nil, err
	}
	inst.Rd = a.reg(0)
	inst.Rn = a.reg(1)
	inst.Op2 = a.operand2(2)
	return inst, nil
}

func (a *assembler) copy() (Instruction, error) {
	if err := a.arity(2); err != nil {
		return nil, err
	}

	inst := Copy{Common: a.common}
	inst.Rd = a.reg(0)
	inst.Op2 = a.operand2(1)
	return inst, nil
}

func (a *assembler) jump() (Instruction, error) {
	if err := a.arity(1); err != nil {
		return nil, err
	}

	tok := a.stmt.Operands[0]
	target, err := ResolveBranch(tok)
	if err != nil {
		a.errs.add(tok, err)
	}
	return Jump{Common: a.common, Target: target}, nil
}

func (a *assembler) loadStore(suffix string) (Instruction, error) {
	if err := a.arity(2); err != nil {
		return nil, err
	}

	var size TransferSize
	for i, s := range sizeSuffixes {
		if s == suffix {
			size = TransferSize(i)
		}
	}
	if a.common.Op == OpSTR && (size == SizeSignedByte || size == SizeSignedHalf) {
		return nil, fmt.Errorf("%w: str%s is not a valid store", ErrInvalidInstruction, suffix)
	}

	inst := LoadStore{Common: a.common, Size: size}
	inst.Rd = a.reg(0)

	tok := a.stmt.Operands[1]
	if strings.HasPrefix(tok, "=") {
		if a.common.Op != OpLDR {
			a.errs.add(tok, invalidOperand(tok, "only ldr accepts a literal"))
			return inst, nil
		}
		li, err := ResolveLoadImm(tok)
		if err != nil {
			a.errs.add(tok, err)
		}
		inst.Addr = li
		return inst, nil
	}

	m, err := ResolveMem(tok)
	if err != nil {
		a.errs.add(tok, err)
		return inst, nil
	}
	if err := checkOffset(tok, m, size); err != nil {
		a.errs.add(tok, err)
	}
	inst.Addr = m
	return inst, nil
}

func checkOffset(tok string, m Mem, size TransferSize) error {
	switch off := m.Offset.(type) {
	case Imm:
		limit := uint32(0xFFF)
		if size.IsHalfwordForm() {
			limit = 0xFF
		}
		if off.Value() > limit {
			return invalidOperand(tok, "offset 0x%x exceeds 0x%x", off.Value(), limit)
		}
	case Shifter:
		if size.IsHalfwordForm() {
			return invalidOperand(tok, "halfword transfers take no shifted offset")
		}
		if _, ok := off.Amount.(Reg); ok {
			return invalidOperand(tok, "offset shift amount must be an immediate")
		}
	}
	return nil
}

func (a *assembler) swap(suffix string) (Instruction, error) {
	if err := a.arity(3); err != nil {
		return nil, err
	}

	inst := Swap{Common: a.common, Byte: suffix == "b"}
	inst.Rd = a.reg(0)
	inst.Rm = a.reg(1)

	tok := a.stmt.Operands[2]
	m, err := ResolveMem(tok)
	switch {
	case err != nil:
		a.errs.add(tok, err)
	case m.Offset != nil || m.Writeback:
		a.errs.add(tok, invalidOperand(tok, "swap takes a bare [rn] address"))
	default:
		inst.Rn = m.Base
	}
	return inst, nil
}

func (a *assembler) loadStoreMultiple(suffix string) (Instruction, error) {
	if err := a.arity(2); err != nil {
		return nil, err
	}

	inst := LoadStoreMultiple{Common: a.common, Mode: modeByName[suffix]}

	baseTok := a.stmt.Operands[0]
	regTok := strings.TrimSuffix(baseTok, "!")
	inst.Writeback = regTok != baseTok
	rn, err := ResolveRegister(regTok)
	if err != nil {
		a.errs.add(baseTok, err)
	}
	inst.Rn = rn

	listTok := a.stmt.Operands[1]
	list, err := ResolveRegList(listTok)
	if err != nil {
		a.errs.add(listTok, err)
	}
	inst.Regs = list
	return inst, nil
}

func (a *assembler) softwareInterrupt() (Instruction, error) {
	if err := a.arity(0); err != nil {
		return nil, err
	}
	return SoftwareInterrupt{Common: a.common}, nil
}
