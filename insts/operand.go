package insts

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// Operand is one resolved instruction operand. The set of operand types is
// closed: Reg, Imm, Shifter, Branch, Mem, RegList and LoadImm.
type Operand interface {
	isOperand()
	String() string
}

// Reg is a register operand. The zero value denotes r0.
type Reg uint8

// Registers with a display alias.
const (
	SP Reg = 13
	LR Reg = 14
	PC Reg = 15
)

func (Reg) isOperand() {}

func (r Reg) String() string {
	switch r {
	case SP:
		return "sp"
	case LR:
		return "lr"
	case PC:
		return "pc"
	}
	return "r" + strconv.Itoa(int(r))
}

// Encoding returns the 4-bit register field as a binary string.
func (r Reg) Encoding() string {
	return fmt.Sprintf("%04b", uint8(r)&0xF)
}

// Imm is a rotated immediate: an 8-bit pattern rotated right by twice the
// rotate count. When Inverted is set the operand's value is the bitwise
// complement of that pattern, which lets mov/mvn and and/bic swap opcodes
// at encoding time.
type Imm struct {
	Imm8     uint8
	Rotate   uint8
	Inverted bool

	// Base is the radix the value was written in (2, 8, 10 or 16).
	Base int
	// Signed records that the value was written with a minus sign.
	Signed bool
}

func (Imm) isOperand() {}

// Pattern returns the rotated 8-bit pattern without complementing.
func (i Imm) Pattern() uint32 {
	return bits.RotateLeft32(uint32(i.Imm8), -2*int(i.Rotate&0xF))
}

// Value returns the 32-bit value of the operand.
func (i Imm) Value() uint32 {
	if i.Inverted {
		return ^i.Pattern()
	}
	return i.Pattern()
}

// Field returns the 12-bit {rotate, imm8} encoding field.
func (i Imm) Field() uint32 {
	return uint32(i.Rotate&0xF)<<8 | uint32(i.Imm8)
}

func (i Imm) String() string {
	v := i.Value()
	sign := ""
	if i.Signed && int32(v) < 0 {
		sign = "-"
		v = -v
	}
	switch i.Base {
	case 16:
		return fmt.Sprintf("#%s0x%x", sign, v)
	case 8:
		return fmt.Sprintf("#%s0o%o", sign, v)
	case 2:
		return fmt.Sprintf("#%s0b%b", sign, v)
	}
	return fmt.Sprintf("#%s%d", sign, v)
}

// NewImm finds the smallest rotate count that represents value as a rotated
// 8-bit pattern. When no rotation fits, the complement of value is tried and
// the result is marked Inverted. The second result is false when neither
// value nor its complement is representable.
func NewImm(value uint32) (Imm, bool) {
	if imm, ok := rotatedImm(value); ok {
		return imm, true
	}
	if imm, ok := rotatedImm(^value); ok {
		imm.Inverted = true
		return imm, true
	}
	return Imm{}, false
}

func rotatedImm(value uint32) (Imm, bool) {
	for rot := 0; rot < 16; rot++ {
		v := bits.RotateLeft32(value, 2*rot)
		if v <= 0xFF {
			return Imm{Imm8: uint8(v), Rotate: uint8(rot), Base: 10}, true
		}
	}
	return Imm{}, false
}

// ShiftType represents a barrel shifter operation.
type ShiftType uint8

// Shift types. ASL is an alias of LSL; RRX is ROR by zero in the encoding.
const (
	ShiftLSL ShiftType = 0b00 // Logical shift left
	ShiftLSR ShiftType = 0b01 // Logical shift right
	ShiftASR ShiftType = 0b10 // Arithmetic shift right
	ShiftROR ShiftType = 0b11 // Rotate right
	ShiftASL ShiftType = 0b100
	ShiftRRX ShiftType = 0b111
)

var shiftNames = map[string]ShiftType{
	"lsl": ShiftLSL,
	"asl": ShiftASL,
	"lsr": ShiftLSR,
	"asr": ShiftASR,
	"ror": ShiftROR,
	"rrx": ShiftRRX,
}

// Bits returns the 2-bit shift type field.
func (s ShiftType) Bits() uint32 {
	return uint32(s) & 0b11
}

func (s ShiftType) String() string {
	switch s {
	case ShiftLSL:
		return "lsl"
	case ShiftLSR:
		return "lsr"
	case ShiftASR:
		return "asr"
	case ShiftROR:
		return "ror"
	case ShiftASL:
		return "asl"
	case ShiftRRX:
		return "rrx"
	}
	return fmt.Sprintf("ShiftType(%d)", uint8(s))
}

// Shifter is a register or immediate passed through the barrel shifter.
// Amount is a Reg or an Imm no larger than 31, and nil for RRX.
type Shifter struct {
	Value  Operand
	Type   ShiftType
	Amount Operand
}

func (Shifter) isOperand() {}

func (s Shifter) String() string {
	if s.Type == ShiftRRX {
		return s.Value.String() + ", rrx"
	}
	return fmt.Sprintf("%s, %s %s", s.Value, s.Type, s.Amount)
}

// Branch is a branch target label. It is resolved against the label table
// when the instruction is encoded or executed.
type Branch struct {
	Label string
}

func (Branch) isOperand() {}

func (b Branch) String() string {
	return b.Label
}

// Mem is a load/store address operand. Offset is nil, a Reg, an Imm or a
// Shifter. Post-indexed operands always write back.
type Mem struct {
	Base        Reg
	Offset      Operand
	Subtract    bool
	PostIndexed bool
	Writeback   bool
}

func (Mem) isOperand() {}

func (m Mem) offsetString() string {
	sign := ""
	if m.Subtract {
		sign = "-"
	}
	if imm, ok := m.Offset.(Imm); ok {
		return "#" + sign + strings.TrimPrefix(imm.String(), "#")
	}
	return sign + m.Offset.String()
}

func (m Mem) String() string {
	if m.Offset == nil {
		return "[" + m.Base.String() + "]"
	}
	if m.PostIndexed {
		return fmt.Sprintf("[%s], %s", m.Base, m.offsetString())
	}
	s := fmt.Sprintf("[%s, %s]", m.Base, m.offsetString())
	if m.Writeback {
		s += "!"
	}
	return s
}

// RegList is an ascending, duplicate-free register list.
type RegList []Reg

func (RegList) isOperand() {}

// Bitmap returns the 16-bit register presence mask.
func (l RegList) Bitmap() uint16 {
	var m uint16
	for _, r := range l {
		m |= 1 << (r & 0xF)
	}
	return m
}

func (l RegList) String() string {
	parts := make([]string, len(l))
	for i, r := range l {
		parts[i] = r.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// LoadImm is the ldr pseudo operand: either a literal value or a label.
type LoadImm struct {
	Value uint32
	Label string
}

func (LoadImm) isOperand() {}

func (l LoadImm) String() string {
	if l.Label != "" {
		return "=" + l.Label
	}
	return fmt.Sprintf("=0x%x", l.Value)
}
