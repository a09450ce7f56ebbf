package emu

import (
	"math/bits"

	"github.com/sarchlab/armsim/insts"
)

// Shift applies the barrel shifter to value and returns the result and the
// shifter carry out. A zero amount passes value through with carryIn.
// Register-specified amounts should be limited to their bottom byte by the
// caller; amounts of 32 and above follow the ARM register shift rules. RRX
// ignores amount and rotates through carryIn.
func Shift(value uint32, kind insts.ShiftType, amount uint32, carryIn bool) (uint32, bool) {
	if kind == insts.ShiftRRX {
		result := value >> 1
		if carryIn {
			result |= 1 << 31
		}
		return result, value&1 == 1
	}

	if amount == 0 {
		return value, carryIn
	}

	switch kind {
	case insts.ShiftLSL, insts.ShiftASL:
		switch {
		case amount < 32:
			return value << amount, (value>>(32-amount))&1 == 1
		case amount == 32:
			return 0, value&1 == 1
		}
		return 0, false

	case insts.ShiftLSR:
		switch {
		case amount < 32:
			return value >> amount, (value>>(amount-1))&1 == 1
		case amount == 32:
			return 0, value>>31 == 1
		}
		return 0, false

	case insts.ShiftASR:
		if amount >= 32 {
			if value>>31 == 1 {
				return 0xFFFFFFFF, true
			}
			return 0, false
		}
		return uint32(int32(value) >> amount), (value>>(amount-1))&1 == 1

	case insts.ShiftROR:
		r := amount % 32
		if r == 0 {
			return value, value>>31 == 1
		}
		return bits.RotateLeft32(value, -int(r)), (value>>(r-1))&1 == 1
	}

	return value, carryIn
}
