package insts

import "fmt"

// LabelResolver looks up the address of a label.
type LabelResolver interface {
	Lookup(label string) (uint32, bool)
}

// Encoder turns instructions into 32-bit ARM machine words.
type Encoder struct {
	labels LabelResolver
}

// NewEncoder creates an encoder that resolves branch targets with labels.
// A nil resolver makes every branch fail with ErrInvalidBranchLabel.
func NewEncoder(labels LabelResolver) *Encoder {
	return &Encoder{labels: labels}
}

// Data processing opcode field values.
var dpOpcodes = map[Op]uint32{
	OpAND: 0b0000,
	OpEOR: 0b0001,
	OpSUB: 0b0010,
	OpRSB: 0b0011,
	OpADD: 0b0100,
	OpADC: 0b0101,
	OpSBC: 0b0110,
	OpRSC: 0b0111,
	OpTST: 0b1000,
	OpTEQ: 0b1001,
	OpCMP: 0b1010,
	OpCMN: 0b1011,
	OpORR: 0b1100,
	OpMOV: 0b1101,
	OpBIC: 0b1110,
	OpMVN: 0b1111,
}

// EncodeHex encodes inst placed at addr as eight lower-case hex digits.
func (e *Encoder) EncodeHex(inst Instruction, addr uint32) (string, error) {
	word, err := e.Encode(inst, addr)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%08x", word), nil
}

// Encode encodes inst placed at addr. The address only matters for
// branches, whose offset is relative to addr+8.
func (e *Encoder) Encode(inst Instruction, addr uint32) (uint32, error) {
	var (
		word uint32
		err  error
	)

	switch i := inst.(type) {
	case Arithmetic:
		word, err = encodeDataProcessing(i.Common, i.Rd, i.Rn, i.Op2)
	case Logic:
		word, err = encodeDataProcessing(i.Common, i.Rd, i.Rn, i.Op2)
	case Copy:
		word, err = encodeDataProcessing(i.Common, i.Rd, 0, i.Op2)
	case Multiplication:
		word = encodeMultiply(i)
	case Jump:
		word, err = e.encodeBranch(i, addr)
	case LoadStore:
		if _, literal := i.Addr.(LoadImm); literal {
			// ldr rd, =value has no literal pool to point into.
			return 0, nil
		}
		word, err = encodeLoadStore(i)
	case LoadStoreMultiple:
		word = encodeBlockTransfer(i)
	case Swap:
		word = encodeSwap(i)
	case SoftwareInterrupt:
		word = 0b1111 << 24
	default:
		return 0, fmt.Errorf("%w: cannot encode %T", ErrInvalidInstruction, inst)
	}
	if err != nil {
		return 0, fmt.Errorf("encode %q: %w", inst, err)
	}

	return uint32(inst.Condition()&0xF)<<28 | word, nil
}

func boolBit(b bool, pos uint) uint32 {
	if b {
		return 1 << pos
	}
	return 0
}

func encodeDataProcessing(c Common, rd, rn Reg, op2 Operand) (uint32, error) {
	opcode := dpOpcodes[c.Op]
	shifter, immediate, inverted, err := encodeShifterOperand(op2)
	if err != nil {
		return 0, err
	}
	if inverted {
		opcode = dpOpcodes[complementOp[c.Op]]
	}

	if c.Op.IsCompare() {
		rd = 0
	}

	return boolBit(immediate, 25) |
		opcode<<21 |
		boolBit(c.SetFlags, 20) |
		uint32(rn&0xF)<<16 |
		uint32(rd&0xF)<<12 |
		shifter, nil
}

// encodeShifterOperand returns the 12-bit shifter operand field, whether it
// is an immediate, and whether the immediate is complemented.
func encodeShifterOperand(op2 Operand) (uint32, bool, bool, error) {
	switch o := op2.(type) {
	case Reg:
		return uint32(o & 0xF), false, false, nil
	case Imm:
		return o.Field(), true, o.Inverted, nil
	case Shifter:
		if _, ok := o.Value.(Imm); ok {
			value, ok := FoldShifter(o)
			if !ok {
				return 0, false, false, fmt.Errorf("%w: %s cannot be folded", ErrInvalidOperand, o)
			}
			imm, ok := NewImm(value)
			if !ok {
				return 0, false, false, fmt.Errorf("%w: 0x%x is not representable by the shifter",
					ErrInvalidOperand, value)
			}
			return imm.Field(), true, imm.Inverted, nil
		}
		field, err := encodeRegShift(o)
		return field, false, false, err
	}
	return 0, false, false, fmt.Errorf("%w: %v is not a data processing operand", ErrInvalidOperand, op2)
}

// encodeRegShift encodes a shifted register as {amt5}{type}0{Rm} or
// {Rs}0{type}1{Rm}.
func encodeRegShift(s Shifter) (uint32, error) {
	rm, ok := s.Value.(Reg)
	if !ok {
		return 0, fmt.Errorf("%w: %s does not shift a register", ErrInvalidOperand, s)
	}

	if s.Type == ShiftRRX {
		return uint32(ShiftROR.Bits())<<5 | uint32(rm&0xF), nil
	}

	switch amt := s.Amount.(type) {
	case Reg:
		return uint32(amt&0xF)<<8 | s.Type.Bits()<<5 | 1<<4 | uint32(rm&0xF), nil
	case Imm:
		n := amt.Value()
		if n == 0 {
			// A zero amount only means "no shift" as lsl.
			return uint32(rm & 0xF), nil
		}
		return (n&0x1F)<<7 | s.Type.Bits()<<5 | uint32(rm&0xF), nil
	}
	return 0, fmt.Errorf("%w: bad shift amount in %s", ErrInvalidOperand, s)
}

func encodeMultiply(i Multiplication) uint32 {
	return boolBit(i.Op == OpMLA, 21) |
		boolBit(i.SetFlags, 20) |
		uint32(i.Rd&0xF)<<16 |
		uint32(i.Rn&0xF)<<12 |
		uint32(i.Rs&0xF)<<8 |
		0b1001<<4 |
		uint32(i.Rm&0xF)
}

// BranchOffset returns the signed word offset from a branch at addr to
// target.
func BranchOffset(addr, target uint32) int32 {
	return int32(target-(addr+8)) >> 2
}

func (e *Encoder) encodeBranch(i Jump, addr uint32) (uint32, error) {
	if e.labels == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidBranchLabel, i.Target.Label)
	}
	target, ok := e.labels.Lookup(i.Target.Label)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidBranchLabel, i.Target.Label)
	}

	offset := uint32(BranchOffset(addr, target)) & 0xFFFFFF
	return 0b101<<25 | boolBit(i.Op == OpBL, 24) | offset, nil
}

func encodeLoadStore(i LoadStore) (uint32, error) {
	m, ok := i.Addr.(Mem)
	if !ok {
		return 0, fmt.Errorf("%w: %v is not an address", ErrInvalidOperand, i.Addr)
	}

	if i.Size.IsHalfwordForm() {
		return encodeHalfwordTransfer(i, m)
	}

	var offset uint32
	register := false
	switch off := m.Offset.(type) {
	case nil:
	case Imm:
		offset = off.Value() & 0xFFF
	case Reg:
		offset = uint32(off & 0xF)
		register = true
	case Shifter:
		field, err := encodeRegShift(off)
		if err != nil {
			return 0, err
		}
		if _, isReg := off.Amount.(Reg); isReg {
			return 0, fmt.Errorf("%w: register-shifted offset", ErrInvalidOperand)
		}
		offset = field
		register = true
	}

	return 0b01<<26 |
		boolBit(register, 25) |
		boolBit(!m.PostIndexed, 24) |
		boolBit(!m.Subtract, 23) |
		boolBit(i.Size == SizeByte, 22) |
		boolBit(m.Writeback && !m.PostIndexed, 21) |
		boolBit(i.Op == OpLDR, 20) |
		uint32(m.Base&0xF)<<16 |
		uint32(i.Rd&0xF)<<12 |
		offset, nil
}

func encodeHalfwordTransfer(i LoadStore, m Mem) (uint32, error) {
	var sh uint32
	switch i.Size {
	case SizeHalf:
		sh = 0b01
	case SizeSignedByte:
		sh = 0b10
	case SizeSignedHalf:
		sh = 0b11
	}

	var low, high uint32
	immediate := true
	switch off := m.Offset.(type) {
	case nil:
	case Imm:
		v := off.Value()
		if v > 0xFF {
			return 0, fmt.Errorf("%w: halfword offset 0x%x exceeds 0xff", ErrInvalidOperand, v)
		}
		high, low = v>>4, v&0xF
	case Reg:
		low = uint32(off & 0xF)
		immediate = false
	default:
		return 0, fmt.Errorf("%w: halfword transfers take no shifted offset", ErrInvalidOperand)
	}

	return boolBit(!m.PostIndexed, 24) |
		boolBit(!m.Subtract, 23) |
		boolBit(immediate, 22) |
		boolBit(m.Writeback && !m.PostIndexed, 21) |
		boolBit(i.Op == OpLDR, 20) |
		uint32(m.Base&0xF)<<16 |
		uint32(i.Rd&0xF)<<12 |
		high<<8 |
		1<<7 | sh<<5 | 1<<4 |
		low, nil
}

func encodeSwap(i Swap) uint32 {
	return 0b00010<<23 |
		boolBit(i.Byte, 22) |
		uint32(i.Rn&0xF)<<16 |
		uint32(i.Rd&0xF)<<12 |
		0b1001<<4 |
		uint32(i.Rm&0xF)
}

// stackModes maps the stack addressing aliases to their base modes, per
// direction.
var stackModes = map[Op]map[AddrMode]AddrMode{
	OpLDM: {ModeFA: ModeDA, ModeEA: ModeDB, ModeFD: ModeIA, ModeED: ModeIB},
	OpSTM: {ModeFA: ModeIB, ModeEA: ModeIA, ModeFD: ModeDB, ModeED: ModeDA},
}

// Addressing returns the P (before) and U (up) bits of the transfer.
func (i LoadStoreMultiple) Addressing() (before, up bool) {
	mode := i.Mode
	if base, ok := stackModes[i.Op][mode]; ok {
		mode = base
	}

	switch mode {
	case ModeIB:
		return true, true
	case ModeDA:
		return false, false
	case ModeDB:
		return true, false
	}
	return false, true
}

func encodeBlockTransfer(i LoadStoreMultiple) uint32 {
	before, up := i.Addressing()
	return 0b100<<25 |
		boolBit(before, 24) |
		boolBit(up, 23) |
		boolBit(i.Writeback, 21) |
		boolBit(i.Op == OpLDM, 20) |
		uint32(i.Rn&0xF)<<16 |
		uint32(i.Regs.Bitmap())
}
