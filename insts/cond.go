package insts

import "fmt"

// Cond represents an ARM condition code.
type Cond uint8

// ARM condition codes.
const (
	CondEQ Cond = 0b0000 // Equal (Z == 1)
	CondNE Cond = 0b0001 // Not Equal (Z == 0)
	CondCS Cond = 0b0010 // Carry Set / Unsigned higher or same (C == 1)
	CondCC Cond = 0b0011 // Carry Clear / Unsigned lower (C == 0)
	CondMI Cond = 0b0100 // Minus / Negative (N == 1)
	CondPL Cond = 0b0101 // Plus / Positive or zero (N == 0)
	CondVS Cond = 0b0110 // Overflow (V == 1)
	CondVC Cond = 0b0111 // No overflow (V == 0)
	CondHI Cond = 0b1000 // Unsigned higher (C == 1 && Z == 0)
	CondLS Cond = 0b1001 // Unsigned lower or same (C == 0 || Z == 1)
	CondGE Cond = 0b1010 // Signed greater than or equal (N == V)
	CondLT Cond = 0b1011 // Signed less than (N != V)
	CondGT Cond = 0b1100 // Signed greater than (Z == 0 && N == V)
	CondLE Cond = 0b1101 // Signed less than or equal (Z == 1 || N != V)
	CondAL Cond = 0b1110 // Always (unconditional)
	CondNV Cond = 0b1111 // Never
)

var condNames = [16]string{
	"eq", "ne", "cs", "cc", "mi", "pl", "vs", "vc",
	"hi", "ls", "ge", "lt", "gt", "le", "al", "nv",
}

var condByName = map[string]Cond{
	"":   CondAL,
	"eq": CondEQ,
	"ne": CondNE,
	"cs": CondCS,
	"hs": CondCS,
	"cc": CondCC,
	"lo": CondCC,
	"mi": CondMI,
	"pl": CondPL,
	"vs": CondVS,
	"vc": CondVC,
	"hi": CondHI,
	"ls": CondLS,
	"ge": CondGE,
	"lt": CondLT,
	"gt": CondGT,
	"le": CondLE,
	"al": CondAL,
	"nv": CondNV,
}

// ParseCond converts a condition suffix into a Cond. The empty string means
// always.
func ParseCond(s string) (Cond, error) {
	c, ok := condByName[s]
	if !ok {
		return CondAL, fmt.Errorf("%w: unknown condition %q", ErrInvalidInstruction, s)
	}
	return c, nil
}

// String returns the lower-case condition suffix.
func (c Cond) String() string {
	return condNames[c&0xF]
}

// Suffix returns the condition as it appears in a mnemonic; "al" is omitted.
func (c Cond) Suffix() string {
	if c == CondAL {
		return ""
	}
	return c.String()
}
