package emu

import (
	"fmt"
	"sort"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/armsim/insts"
)

// Line is one word-sized memory slot. It holds either an assembled
// instruction or a data word.
type Line struct {
	Inst insts.Instruction
	Word uint32
}

// IsInstruction reports whether the slot holds an instruction.
func (l Line) IsInstruction() bool {
	return l.Inst != nil
}

func (l Line) String() string {
	if l.Inst != nil {
		return l.Inst.String()
	}
	return fmt.Sprintf(".word 0x%08x", l.Word)
}

// Memory is the program store: a sparse map from word-aligned addresses to
// lines plus a bijective label table. Addresses that were never written
// read as a zero data word.
type Memory struct {
	*sim.HookableBase

	lines      map[uint32]Line
	labels     map[string]uint32
	addrLabels map[uint32]string
}

// NewMemory creates an empty program store.
func NewMemory() *Memory {
	m := &Memory{HookableBase: sim.NewHookableBase()}
	m.ResetMemory()
	return m
}

// Name identifies the memory in hook contexts.
func (m *Memory) Name() string {
	return "Memory"
}

// ResetMemory drops every line and label.
func (m *Memory) ResetMemory() {
	m.lines = make(map[uint32]Line)
	m.labels = make(map[string]uint32)
	m.addrLabels = make(map[uint32]string)
}

// Len returns the number of occupied slots.
func (m *Memory) Len() int {
	return len(m.lines)
}

// NextAddress returns the address the next appended instruction gets.
func (m *Memory) NextAddress() uint32 {
	return uint32(len(m.lines)) * 4
}

func (m *Memory) checkAligned(addr uint32) error {
	if addr%4 != 0 {
		return fmt.Errorf("0x%08x: %w", addr, ErrUnalignedAddress)
	}
	return nil
}

func (m *Memory) fail(addr uint32, err error) error {
	emitError(m, addr, err)
	return err
}

// AddInstruction assembles stmt and appends it after the occupied slots.
func (m *Memory) AddInstruction(stmt insts.Statement) error {
	return m.AddInstructionAt(m.NextAddress(), stmt)
}

// AddInstructionAt assembles stmt and stores it at addr, replacing whatever
// the slot held. Nothing is stored when assembly fails.
func (m *Memory) AddInstructionAt(addr uint32, stmt insts.Statement) error {
	if err := m.checkAligned(addr); err != nil {
		return m.fail(addr, err)
	}

	inst, err := insts.Assemble(stmt)
	if err != nil {
		return m.fail(addr, fmt.Errorf("0x%08x %s: %w", addr, stmt, err))
	}

	m.lines[addr] = Line{Inst: inst}
	return nil
}

// AddLabel binds label to addr. Labels and labeled addresses are unique.
func (m *Memory) AddLabel(addr uint32, label string) error {
	if err := m.checkAligned(addr); err != nil {
		return m.fail(addr, err)
	}

	if existing, ok := m.labels[label]; ok {
		return m.fail(addr, fmt.Errorf("%q at 0x%08x: %w", label, existing, ErrDuplicateLabel))
	}

	if existing, ok := m.addrLabels[addr]; ok {
		return m.fail(addr, fmt.Errorf("0x%08x is %q: %w", addr, existing, ErrAddressAlreadyLabeled))
	}

	m.labels[label] = addr
	m.addrLabels[addr] = label
	return nil
}

// AddData stores a data word at addr. Slots holding instructions cannot be
// overwritten with data.
func (m *Memory) AddData(addr, value uint32) error {
	if err := m.checkAligned(addr); err != nil {
		return m.fail(addr, err)
	}

	if m.lines[addr].IsInstruction() {
		return m.fail(addr, fmt.Errorf("0x%08x: %w", addr, ErrDataOverwritesCode))
	}

	m.lines[addr] = Line{Word: value}
	return nil
}

// Line returns the slot at addr. A slot that was never written is
// materialized as a zero data word. Unaligned addresses read as a zero
// data word and are never stored.
func (m *Memory) Line(addr uint32) Line {
	if addr%4 != 0 {
		return Line{}
	}

	line, ok := m.lines[addr]
	if !ok {
		m.lines[addr] = line
	}
	return line
}

// Lookup returns the address bound to label.
func (m *Memory) Lookup(label string) (uint32, bool) {
	addr, ok := m.labels[label]
	return addr, ok
}

// LabelAt returns the label bound to addr.
func (m *Memory) LabelAt(addr uint32) (string, bool) {
	label, ok := m.addrLabels[addr]
	return label, ok
}

// Addresses returns the occupied addresses in ascending order.
func (m *Memory) Addresses() []uint32 {
	addrs := make([]uint32, 0, len(m.lines))
	for addr := range m.lines {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// Encoding returns the slot at addr as eight hex digits: the machine word
// of an instruction or the data word itself.
func (m *Memory) Encoding(addr uint32) (string, error) {
	line := m.Line(addr)
	if !line.IsInstruction() {
		return fmt.Sprintf("%08x", line.Word), nil
	}

	hex, err := insts.NewEncoder(m).EncodeHex(line.Inst, addr)
	if err != nil {
		return "", m.fail(addr, err)
	}
	return hex, nil
}
