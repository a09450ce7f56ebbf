package insts

import (
	"fmt"
	"strings"
)

// Op represents an ARM mnemonic without suffixes.
type Op uint8

// ARM opcodes.
const (
	OpUnknown Op = iota
	OpADD
	OpADC
	OpSUB
	OpSBC
	OpRSB
	OpRSC
	OpMUL
	OpMLA
	OpAND
	OpORR
	OpEOR
	OpBIC
	OpCMP
	OpCMN
	OpTST
	OpTEQ
	OpMOV
	OpMVN
	OpB
	OpBL
	OpLDR
	OpSTR
	OpLDM
	OpSTM
	OpSWP
	OpSWI
)

var opNames = [...]string{
	OpUnknown: "unknown",
	OpADD:     "add",
	OpADC:     "adc",
	OpSUB:     "sub",
	OpSBC:     "sbc",
	OpRSB:     "rsb",
	OpRSC:     "rsc",
	OpMUL:     "mul",
	OpMLA:     "mla",
	OpAND:     "and",
	OpORR:     "orr",
	OpEOR:     "eor",
	OpBIC:     "bic",
	OpCMP:     "cmp",
	OpCMN:     "cmn",
	OpTST:     "tst",
	OpTEQ:     "teq",
	OpMOV:     "mov",
	OpMVN:     "mvn",
	OpB:       "b",
	OpBL:      "bl",
	OpLDR:     "ldr",
	OpSTR:     "str",
	OpLDM:     "ldm",
	OpSTM:     "stm",
	OpSWP:     "swp",
	OpSWI:     "swi",
}

var opByName = map[string]Op{
	"add": OpADD, "adc": OpADC, "sub": OpSUB, "sbc": OpSBC, "rsb": OpRSB, "rsc": OpRSC,
	"mul": OpMUL, "mla": OpMLA,
	"and": OpAND, "orr": OpORR, "eor": OpEOR, "bic": OpBIC,
	"cmp": OpCMP, "cmn": OpCMN, "tst": OpTST, "teq": OpTEQ,
	"mov": OpMOV, "mvn": OpMVN,
	"b": OpB, "bl": OpBL,
	"ldr": OpLDR, "str": OpSTR,
	"ldm": OpLDM, "stm": OpSTM,
	"swp": OpSWP,
	"swi": OpSWI,
}

func (op Op) String() string {
	if int(op) >= len(opNames) {
		return fmt.Sprintf("Op(%d)", uint8(op))
	}
	return opNames[op]
}

// Family groups opcodes that share operand rules and an encoding format.
type Family uint8

// Instruction families.
const (
	FamilyUnknown Family = iota
	FamilyArithmetic
	FamilyMultiplication
	FamilyLogic
	FamilyCopy
	FamilyJump
	FamilyLoadStore
	FamilyLoadStoreMultiple
	FamilySwap
	FamilySoftwareInterrupt
)

// Family returns the family the opcode belongs to.
func (op Op) Family() Family {
	switch op {
	case OpADD, OpADC, OpSUB, OpSBC, OpRSB, OpRSC:
		return FamilyArithmetic
	case OpMUL, OpMLA:
		return FamilyMultiplication
	case OpAND, OpORR, OpEOR, OpBIC, OpCMP, OpCMN, OpTST, OpTEQ:
		return FamilyLogic
	case OpMOV, OpMVN:
		return FamilyCopy
	case OpB, OpBL:
		return FamilyJump
	case OpLDR, OpSTR:
		return FamilyLoadStore
	case OpLDM, OpSTM:
		return FamilyLoadStoreMultiple
	case OpSWP:
		return FamilySwap
	case OpSWI:
		return FamilySoftwareInterrupt
	default:
		return FamilyUnknown
	}
}

// IsCompare reports whether the opcode only sets flags (cmp, cmn, tst, teq).
func (op Op) IsCompare() bool {
	return op == OpCMP || op == OpCMN || op == OpTST || op == OpTEQ
}

// TransferSize is the data size of a single load/store.
type TransferSize uint8

// Transfer sizes and their mnemonic suffixes.
const (
	SizeWord       TransferSize = iota // ""
	SizeByte                           // "b"
	SizeHalf                           // "h"
	SizeSignedByte                     // "sb"
	SizeSignedHalf                     // "sh"
)

var sizeSuffixes = [...]string{"", "b", "h", "sb", "sh"}

func (s TransferSize) String() string {
	return sizeSuffixes[s]
}

// IsHalfwordForm reports whether the size uses the halfword/signed encoding.
func (s TransferSize) IsHalfwordForm() bool {
	return s == SizeHalf || s == SizeSignedByte || s == SizeSignedHalf
}

// AddrMode is the addressing mode suffix of ldm/stm.
type AddrMode uint8

// Addressing modes. The stack modes are aliases resolved per direction.
const (
	ModeIA AddrMode = iota // increment after (default)
	ModeIB                 // increment before
	ModeDA                 // decrement after
	ModeDB                 // decrement before
	ModeFA                 // full ascending
	ModeEA                 // empty ascending
	ModeFD                 // full descending
	ModeED                 // empty descending
)

var modeNames = [...]string{"ia", "ib", "da", "db", "fa", "ea", "fd", "ed"}

var modeByName = map[string]AddrMode{
	"": ModeIA, "ia": ModeIA, "ib": ModeIB, "da": ModeDA, "db": ModeDB,
	"fa": ModeFA, "ea": ModeEA, "fd": ModeFD, "ed": ModeED,
}

func (m AddrMode) String() string {
	return modeNames[m]
}

// Common holds the fields every instruction carries.
type Common struct {
	Op       Op
	Cond     Cond
	SetFlags bool
}

// Opcode returns the instruction's opcode.
func (c Common) Opcode() Op { return c.Op }

// Condition returns the instruction's condition code.
func (c Common) Condition() Cond { return c.Cond }

// UpdatesFlags reports whether the instruction writes the status flags.
func (c Common) UpdatesFlags() bool { return c.SetFlags }

func (c Common) mnemonic(suffix string) string {
	s := ""
	if c.SetFlags && !c.Op.IsCompare() {
		s = "s"
	}
	return c.Op.String() + suffix + s + c.Cond.Suffix()
}

// Instruction is an assembled instruction. The set of implementations is
// closed: Arithmetic, Multiplication, Logic, Copy, Jump, LoadStore,
// LoadStoreMultiple, Swap and SoftwareInterrupt. Instructions are immutable
// once assembled.
type Instruction interface {
	isInstruction()
	Opcode() Op
	Condition() Cond
	UpdatesFlags() bool
	String() string
}

func format(mnemonic string, operands ...fmt.Stringer) string {
	parts := make([]string, len(operands))
	for i, o := range operands {
		parts[i] = o.String()
	}
	if len(parts) == 0 {
		return mnemonic
	}
	return mnemonic + " " + strings.Join(parts, ", ")
}

// Arithmetic is add, adc, sub, sbc, rsb or rsc. Short records the
// two-operand form where Rd is also the first source.
type Arithmetic struct {
	Common
	Rd    Reg
	Rn    Reg
	Op2   Operand
	Short bool
}

func (Arithmetic) isInstruction() {}

func (i Arithmetic) String() string {
	if i.Short {
		return format(i.mnemonic(""), i.Rd, i.Op2)
	}
	return format(i.mnemonic(""), i.Rd, i.Rn, i.Op2)
}

// Multiplication is mul (Rd = Rm * Rs) or mla (Rd = Rm * Rs + Rn).
type Multiplication struct {
	Common
	Rd Reg
	Rm Reg
	Rs Reg
	Rn Reg
}

func (Multiplication) isInstruction() {}

func (i Multiplication) String() string {
	if i.Op == OpMLA {
		return format(i.mnemonic(""), i.Rd, i.Rm, i.Rs, i.Rn)
	}
	return format(i.mnemonic(""), i.Rd, i.Rm, i.Rs)
}

// Logic is and, orr, eor, bic, or one of the compare instructions cmp, cmn,
// tst, teq. Compare instructions have no destination and always set flags.
type Logic struct {
	Common
	Rd  Reg
	Rn  Reg
	Op2 Operand
}

func (Logic) isInstruction() {}

func (i Logic) String() string {
	if i.Op.IsCompare() {
		return format(i.mnemonic(""), i.Rn, i.Op2)
	}
	return format(i.mnemonic(""), i.Rd, i.Rn, i.Op2)
}

// Copy is mov or mvn.
type Copy struct {
	Common
	Rd  Reg
	Op2 Operand
}

func (Copy) isInstruction() {}

func (i Copy) String() string {
	return format(i.mnemonic(""), i.Rd, i.Op2)
}

// Jump is b or bl.
type Jump struct {
	Common
	Target Branch
}

func (Jump) isInstruction() {}

func (i Jump) String() string {
	return format(i.mnemonic(""), i.Target)
}

// LoadStore is a single ldr or str. Addr is a Mem, or a LoadImm for the
// ldr pseudo instruction.
type LoadStore struct {
	Common
	Size TransferSize
	Rd   Reg
	Addr Operand
}

func (LoadStore) isInstruction() {}

func (i LoadStore) String() string {
	return format(i.mnemonic(i.Size.String()), i.Rd, i.Addr)
}

// LoadStoreMultiple is ldm or stm.
type LoadStoreMultiple struct {
	Common
	Mode      AddrMode
	Rn        Reg
	Writeback bool
	Regs      RegList
}

func (LoadStoreMultiple) isInstruction() {}

func (i LoadStoreMultiple) String() string {
	base := i.Rn.String()
	if i.Writeback {
		base += "!"
	}
	return i.mnemonic(i.Mode.String()) + " " + base + ", " + i.Regs.String()
}

// Swap is swp or swpb: Rd = [Rn], [Rn] = Rm.
type Swap struct {
	Common
	Byte bool
	Rd   Reg
	Rm   Reg
	Rn   Reg
}

func (Swap) isInstruction() {}

func (i Swap) String() string {
	suffix := ""
	if i.Byte {
		suffix = "b"
	}
	return format(i.mnemonic(suffix), i.Rd, i.Rm, Mem{Base: i.Rn})
}

// SoftwareInterrupt is swi.
type SoftwareInterrupt struct {
	Common
}

func (SoftwareInterrupt) isInstruction() {}

func (i SoftwareInterrupt) String() string {
	return i.mnemonic("")
}
