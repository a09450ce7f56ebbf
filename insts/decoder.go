package insts

import (
	"fmt"
	"math/bits"
	"strings"
)

// Format represents an instruction encoding format.
type Format uint8

// Instruction formats.
const (
	FormatUnknown           Format = iota
	FormatDataProcessing           // Data processing / PSR-free ALU
	FormatMultiply                 // MUL, MLA
	FormatSingleTransfer           // LDR, STR, LDRB, STRB
	FormatHalfwordTransfer         // LDRH, STRH, LDRSB, LDRSH
	FormatSwap                     // SWP, SWPB
	FormatBlockTransfer            // LDM, STM
	FormatBranch                   // B, BL
	FormatSoftwareInterrupt        // SWI
)

// Decoded is the field-level view of a 32-bit ARM word.
type Decoded struct {
	Op     Op     // Operation code
	Format Format // Encoding format
	Cond   Cond   // Condition code

	SetFlags bool  // S bit
	Rd       uint8 // Destination register
	Rn       uint8 // First operand / base register
	Rm       uint8 // Operand register
	Rs       uint8 // Shift amount or multiplier register

	// Immediate operand
	Immediate bool   // Operand or offset is an immediate
	Imm       uint32 // Rotated immediate value, or transfer offset
	Rotate    uint8  // Rotate field of a data processing immediate

	// Shift for register operand
	ShiftType   ShiftType
	ShiftAmount uint8
	ShiftByReg  bool

	// Transfer fields
	PreIndex  bool // P bit
	Up        bool // U bit
	Writeback bool // W bit
	Load      bool // L bit
	Size      TransferSize
	Byte      bool   // Swap byte
	RegList   uint16 // Block transfer register mask

	// Branch fields
	BranchOffset int32 // Signed byte offset from the branch address + 8
}

// Decoder decodes ARM machine words.
type Decoder struct{}

// NewDecoder creates a new ARM instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a 32-bit ARM instruction word.
func (d *Decoder) Decode(word uint32) *Decoded {
	inst := &Decoded{Op: OpUnknown, Format: FormatUnknown, Cond: Cond(word >> 28)}

	// Multiply, swap and halfword transfers live inside the data processing
	// space and must be matched first.
	switch {
	case d.isMultiply(word):
		d.decodeMultiply(word, inst)
	case d.isSwap(word):
		d.decodeSwap(word, inst)
	case d.isHalfwordTransfer(word):
		d.decodeHalfwordTransfer(word, inst)
	case d.isDataProcessing(word):
		d.decodeDataProcessing(word, inst)
	case d.isSingleTransfer(word):
		d.decodeSingleTransfer(word, inst)
	case d.isBlockTransfer(word):
		d.decodeBlockTransfer(word, inst)
	case d.isBranch(word):
		d.decodeBranch(word, inst)
	case d.isSoftwareInterrupt(word):
		inst.Format = FormatSoftwareInterrupt
		inst.Op = OpSWI
		inst.Imm = word & 0xFFFFFF
	}

	return inst
}

func bit(word uint32, pos uint) bool {
	return (word>>pos)&1 == 1
}

// isMultiply checks for MUL/MLA.
// Format: cond | 000000 | A | S | Rd | Rn | Rs | 1001 | Rm
func (d *Decoder) isMultiply(word uint32) bool {
	return (word>>22)&0x3F == 0 && (word>>4)&0xF == 0b1001
}

func (d *Decoder) decodeMultiply(word uint32, inst *Decoded) {
	inst.Format = FormatMultiply
	inst.Op = OpMUL
	if bit(word, 21) {
		inst.Op = OpMLA
	}
	inst.SetFlags = bit(word, 20)
	inst.Rd = uint8((word >> 16) & 0xF)
	inst.Rn = uint8((word >> 12) & 0xF)
	inst.Rs = uint8((word >> 8) & 0xF)
	inst.Rm = uint8(word & 0xF)
}

// isSwap checks for SWP/SWPB.
// Format: cond | 00010 | B | 00 | Rn | Rd | 0000 | 1001 | Rm
func (d *Decoder) isSwap(word uint32) bool {
	return (word>>23)&0x1F == 0b00010 &&
		(word>>20)&0x3 == 0 &&
		(word>>4)&0xFF == 0b00001001
}

func (d *Decoder) decodeSwap(word uint32, inst *Decoded) {
	inst.Format = FormatSwap
	inst.Op = OpSWP
	inst.Byte = bit(word, 22)
	inst.Rn = uint8((word >> 16) & 0xF)
	inst.Rd = uint8((word >> 12) & 0xF)
	inst.Rm = uint8(word & 0xF)
}

// isHalfwordTransfer checks for LDRH/STRH/LDRSB/LDRSH.
// Format: cond | 000 | P | U | I | W | L | Rn | Rd | immH | 1 S H 1 | immL/Rm
func (d *Decoder) isHalfwordTransfer(word uint32) bool {
	return (word>>25)&0x7 == 0 &&
		bit(word, 7) && bit(word, 4) &&
		(word>>5)&0x3 != 0
}

func (d *Decoder) decodeHalfwordTransfer(word uint32, inst *Decoded) {
	inst.Format = FormatHalfwordTransfer
	d.decodeTransferBits(word, inst)

	switch (word >> 5) & 0x3 {
	case 0b01:
		inst.Size = SizeHalf
	case 0b10:
		inst.Size = SizeSignedByte
	case 0b11:
		inst.Size = SizeSignedHalf
	}

	inst.Immediate = bit(word, 22)
	if inst.Immediate {
		inst.Imm = (word>>8)&0xF<<4 | word&0xF
	} else {
		inst.Rm = uint8(word & 0xF)
	}
}

// isDataProcessing checks for the data processing class.
// Format: cond | 00 | I | opcode | S | Rn | Rd | shifter_operand
func (d *Decoder) isDataProcessing(word uint32) bool {
	return (word>>26)&0x3 == 0
}

func (d *Decoder) decodeDataProcessing(word uint32, inst *Decoded) {
	inst.Format = FormatDataProcessing

	opcode := (word >> 21) & 0xF
	for op, code := range dpOpcodes {
		if code == opcode {
			inst.Op = op
			break
		}
	}

	inst.SetFlags = bit(word, 20)
	inst.Rn = uint8((word >> 16) & 0xF)
	inst.Rd = uint8((word >> 12) & 0xF)

	inst.Immediate = bit(word, 25)
	if inst.Immediate {
		inst.Rotate = uint8((word >> 8) & 0xF)
		inst.Imm = bits.RotateLeft32(word&0xFF, -2*int(inst.Rotate))
		return
	}
	d.decodeRegShift(word, inst)
}

// decodeRegShift decodes a shifted Rm in bits [11:0].
func (d *Decoder) decodeRegShift(word uint32, inst *Decoded) {
	inst.Rm = uint8(word & 0xF)
	inst.ShiftType = ShiftType((word >> 5) & 0x3)

	if bit(word, 4) {
		inst.ShiftByReg = true
		inst.Rs = uint8((word >> 8) & 0xF)
		return
	}

	inst.ShiftAmount = uint8((word >> 7) & 0x1F)
	if inst.ShiftType == ShiftROR && inst.ShiftAmount == 0 {
		inst.ShiftType = ShiftRRX
	}
}

// isSingleTransfer checks for LDR/STR word and byte.
// Format: cond | 01 | I | P | U | B | W | L | Rn | Rd | offset12
func (d *Decoder) isSingleTransfer(word uint32) bool {
	return (word>>26)&0x3 == 0b01
}

func (d *Decoder) decodeSingleTransfer(word uint32, inst *Decoded) {
	inst.Format = FormatSingleTransfer
	d.decodeTransferBits(word, inst)

	if bit(word, 22) {
		inst.Size = SizeByte
	}

	// I=1 means a register offset here, the reverse of data processing.
	inst.Immediate = !bit(word, 25)
	if inst.Immediate {
		inst.Imm = word & 0xFFF
		return
	}
	d.decodeRegShift(word, inst)
}

func (d *Decoder) decodeTransferBits(word uint32, inst *Decoded) {
	inst.PreIndex = bit(word, 24)
	inst.Up = bit(word, 23)
	inst.Writeback = bit(word, 21)
	inst.Load = bit(word, 20)
	inst.Rn = uint8((word >> 16) & 0xF)
	inst.Rd = uint8((word >> 12) & 0xF)

	inst.Op = OpSTR
	if inst.Load {
		inst.Op = OpLDR
	}
}

// isBlockTransfer checks for LDM/STM.
// Format: cond | 100 | P | U | S | W | L | Rn | register_list
func (d *Decoder) isBlockTransfer(word uint32) bool {
	return (word>>25)&0x7 == 0b100
}

func (d *Decoder) decodeBlockTransfer(word uint32, inst *Decoded) {
	inst.Format = FormatBlockTransfer
	inst.PreIndex = bit(word, 24)
	inst.Up = bit(word, 23)
	inst.Writeback = bit(word, 21)
	inst.Load = bit(word, 20)
	inst.Rn = uint8((word >> 16) & 0xF)
	inst.RegList = uint16(word & 0xFFFF)

	inst.Op = OpSTM
	if inst.Load {
		inst.Op = OpLDM
	}
}

// isBranch checks for B/BL.
// Format: cond | 101 | L | offset24
func (d *Decoder) isBranch(word uint32) bool {
	return (word>>25)&0x7 == 0b101
}

func (d *Decoder) decodeBranch(word uint32, inst *Decoded) {
	inst.Format = FormatBranch
	inst.Op = OpB
	if bit(word, 24) {
		inst.Op = OpBL
	}

	// Sign-extend offset24 and multiply by 4
	inst.BranchOffset = int32(word<<8) >> 6
}

// isSoftwareInterrupt checks for SWI.
// Format: cond | 1111 | comment24
func (d *Decoder) isSoftwareInterrupt(word uint32) bool {
	return (word>>24)&0xF == 0xF
}

// String renders the decoded word in assembler syntax. Branch targets are
// shown as byte offsets relative to the branch address.
func (inst *Decoded) String() string {
	reg := func(r uint8) string { return Reg(r).String() }
	s := func() string {
		if inst.SetFlags && !inst.Op.IsCompare() {
			return "s"
		}
		return ""
	}
	cond := inst.Cond.Suffix()

	switch inst.Format {
	case FormatDataProcessing:
		op2 := inst.operand2String()
		switch {
		case inst.Op.IsCompare():
			return fmt.Sprintf("%s%s %s, %s", inst.Op, cond, reg(inst.Rn), op2)
		case inst.Op == OpMOV || inst.Op == OpMVN:
			return fmt.Sprintf("%s%s%s %s, %s", inst.Op, s(), cond, reg(inst.Rd), op2)
		}
		return fmt.Sprintf("%s%s%s %s, %s, %s", inst.Op, s(), cond, reg(inst.Rd), reg(inst.Rn), op2)
	case FormatMultiply:
		if inst.Op == OpMLA {
			return fmt.Sprintf("mla%s%s %s, %s, %s, %s", s(), cond,
				reg(inst.Rd), reg(inst.Rm), reg(inst.Rs), reg(inst.Rn))
		}
		return fmt.Sprintf("mul%s%s %s, %s, %s", s(), cond, reg(inst.Rd), reg(inst.Rm), reg(inst.Rs))
	case FormatSingleTransfer, FormatHalfwordTransfer:
		return fmt.Sprintf("%s%s%s %s, %s", inst.Op, inst.Size, cond, reg(inst.Rd), inst.addressString())
	case FormatSwap:
		b := ""
		if inst.Byte {
			b = "b"
		}
		return fmt.Sprintf("swp%s%s %s, %s, [%s]", b, cond, reg(inst.Rd), reg(inst.Rm), reg(inst.Rn))
	case FormatBlockTransfer:
		return inst.blockString(cond)
	case FormatBranch:
		return fmt.Sprintf("%s%s %+d", inst.Op, cond, inst.BranchOffset+8)
	case FormatSoftwareInterrupt:
		return fmt.Sprintf("swi%s 0x%x", cond, inst.Imm)
	}
	return "unknown"
}

func (inst *Decoded) shiftString() string {
	switch {
	case inst.ShiftType == ShiftRRX:
		return ", rrx"
	case inst.ShiftByReg:
		return fmt.Sprintf(", %s %s", inst.ShiftType, Reg(inst.Rs))
	case inst.ShiftAmount != 0:
		return fmt.Sprintf(", %s #%d", inst.ShiftType, inst.ShiftAmount)
	}
	return ""
}

func (inst *Decoded) operand2String() string {
	if inst.Immediate {
		return fmt.Sprintf("#0x%x", inst.Imm)
	}
	return Reg(inst.Rm).String() + inst.shiftString()
}

func (inst *Decoded) addressString() string {
	sign := ""
	if !inst.Up {
		sign = "-"
	}

	var offset string
	switch {
	case inst.Immediate && inst.Imm == 0:
	case inst.Immediate:
		offset = fmt.Sprintf("#%s0x%x", sign, inst.Imm)
	default:
		offset = sign + Reg(inst.Rm).String() + inst.shiftString()
	}

	base := Reg(inst.Rn).String()
	switch {
	case offset == "":
		return "[" + base + "]"
	case !inst.PreIndex:
		return fmt.Sprintf("[%s], %s", base, offset)
	case inst.Writeback:
		return fmt.Sprintf("[%s, %s]!", base, offset)
	}
	return fmt.Sprintf("[%s, %s]", base, offset)
}

func (inst *Decoded) blockString(cond string) string {
	mode := "i"
	if !inst.Up {
		mode = "d"
	}
	if inst.PreIndex {
		mode += "b"
	} else {
		mode += "a"
	}

	base := Reg(inst.Rn).String()
	if inst.Writeback {
		base += "!"
	}

	var regs []string
	for r := 0; r < 16; r++ {
		if inst.RegList&(1<<r) != 0 {
			regs = append(regs, Reg(r).String())
		}
	}
	return fmt.Sprintf("%s%s%s %s, {%s}", inst.Op, mode, cond, base, strings.Join(regs, ", "))
}
