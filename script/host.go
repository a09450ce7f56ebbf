// Package script drives a simulation from Lua. A script places code and
// data, steps or runs the emulator and reads back registers and flags.
package script

import (
	"fmt"
	"io"
	"math"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/sarchlab/armsim/emu"
	"github.com/sarchlab/armsim/insts"
	"github.com/sarchlab/armsim/loader"
)

// Host exposes one Memory and its Emulator to Lua scripts.
type Host struct {
	memory   *emu.Memory
	emulator *emu.Emulator
	out      io.Writer

	// cursor is where the next asm line is placed.
	cursor uint32
}

// NewHost creates a host. Script output goes to out.
func NewHost(mem *emu.Memory, e *emu.Emulator, out io.Writer) *Host {
	return &Host{
		memory:   mem,
		emulator: e,
		out:      out,
		cursor:   mem.NextAddress(),
	}
}

// Run executes Lua source.
func (h *Host) Run(src string) error {
	L := h.newState()
	defer L.Close()

	return L.DoString(src)
}

// RunFile executes the Lua file at path.
func (h *Host) RunFile(path string) error {
	L := h.newState()
	defer L.Close()

	return L.DoFile(path)
}

func (h *Host) newState() *lua.LState {
	L := lua.NewState()

	for name, fn := range map[string]lua.LGFunction{
		"asm":        h.asm,
		"label":      h.label,
		"word":       h.word,
		"step":       h.step,
		"continue":   h.cont,
		"run":        h.cont,
		"reg":        h.reg,
		"setreg":     h.setReg,
		"flags":      h.flags,
		"encode":     h.encode,
		"breakpoint": h.breakpoint,
		"reset":      h.reset,
		"print":      h.print,
	} {
		L.SetGlobal(name, L.NewFunction(fn))
	}

	return L
}

// checkWord accepts integral numbers in the int32 or uint32 range. Negative
// values are taken as two's complement words.
func checkWord(L *lua.LState, n int) uint32 {
	v := float64(L.CheckNumber(n))
	if v != math.Trunc(v) {
		L.ArgError(n, "integer expected")
	}
	if v < math.MinInt32 || v > math.MaxUint32 {
		L.ArgError(n, "value out of 32-bit range")
	}
	return uint32(int64(v))
}

func checkReg(L *lua.LState, n int) insts.Reg {
	switch v := L.CheckAny(n).(type) {
	case lua.LNumber:
		f := float64(v)
		if f != math.Trunc(f) || f < 0 || f > 15 {
			L.ArgError(n, "register index must be an integer from 0 to 15")
		}
		return insts.Reg(f)
	case lua.LString:
		r, err := insts.ResolveRegister(strings.ToLower(string(v)))
		if err != nil {
			L.ArgError(n, err.Error())
		}
		return r
	}
	L.ArgError(n, "register index or name expected")
	return 0
}

// asm(line) places one source line at the cursor and returns the address
// following it.
func (h *Host) asm(L *lua.LState) int {
	entries, err := loader.ParseLine(L.CheckString(1))
	if err != nil {
		L.RaiseError("%s", err.Error())
	}

	next, err := (&loader.Program{Entries: entries}).AssembleAt(h.memory, h.cursor)
	if err != nil {
		L.RaiseError("%s", err.Error())
	}
	h.cursor = next

	L.Push(lua.LNumber(next))
	return 1
}

// label(name, addr)
func (h *Host) label(L *lua.LState) int {
	name := strings.ToLower(L.CheckString(1))
	if err := h.memory.AddLabel(checkWord(L, 2), name); err != nil {
		L.RaiseError("%s", err.Error())
	}
	return 0
}

// word(addr, value)
func (h *Host) word(L *lua.LState) int {
	if err := h.memory.AddData(checkWord(L, 1), checkWord(L, 2)); err != nil {
		L.RaiseError("%s", err.Error())
	}
	return 0
}

// step() returns whether execution halted and the halting error, if any.
func (h *Host) step(L *lua.LState) int {
	result := h.emulator.Step()
	L.Push(lua.LBool(result.Halted))
	pushErr(L, result.Err)
	return 2
}

// continue(), also bound as run(), returns the stop reason, the step
// count and the error, if any.
func (h *Host) cont(L *lua.LState) int {
	result := h.emulator.Continue()
	L.Push(lua.LString(result.Reason.String()))
	L.Push(lua.LNumber(result.Steps))
	pushErr(L, result.Err)
	return 3
}

func pushErr(L *lua.LState, err error) {
	if err == nil {
		L.Push(lua.LNil)
		return
	}
	L.Push(lua.LString(err.Error()))
}

// reg(r) accepts an index or a name such as "r3" or "lr".
func (h *Host) reg(L *lua.LState) int {
	L.Push(lua.LNumber(h.emulator.RegFile().ReadReg(checkReg(L, 1))))
	return 1
}

// setreg(r, value)
func (h *Host) setReg(L *lua.LState) int {
	h.emulator.RegFile().WriteReg(checkReg(L, 1), checkWord(L, 2))
	return 0
}

// flags() returns a table with boolean fields n, z, c and v.
func (h *Host) flags(L *lua.LState) int {
	cpsr := h.emulator.RegFile().CPSR
	t := L.NewTable()
	L.SetField(t, "n", lua.LBool(cpsr.N))
	L.SetField(t, "z", lua.LBool(cpsr.Z))
	L.SetField(t, "c", lua.LBool(cpsr.C))
	L.SetField(t, "v", lua.LBool(cpsr.V))
	L.Push(t)
	return 1
}

// encode(addr) returns the slot's machine word as 8 hex digits.
func (h *Host) encode(L *lua.LState) int {
	hex, err := h.memory.Encoding(checkWord(L, 1))
	if err != nil {
		L.RaiseError("%s", err.Error())
	}
	L.Push(lua.LString(hex))
	return 1
}

// breakpoint(addr) toggles a breakpoint and returns whether it is now set.
// Continue pauses at breakpoints once a script has set one.
func (h *Host) breakpoint(L *lua.LState) int {
	set := h.emulator.ToggleBreakpoint(checkWord(L, 1))
	h.emulator.SetBetweenSteps(emu.StopAtBreakpoints)
	L.Push(lua.LBool(set))
	return 1
}

func (h *Host) reset(L *lua.LState) int {
	h.emulator.ResetRegisters()
	return 0
}

func (h *Host) print(L *lua.LState) int {
	parts := make([]string, L.GetTop())
	for i := range parts {
		parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
	}
	_, _ = fmt.Fprintln(h.out, strings.Join(parts, "\t"))
	return 0
}
