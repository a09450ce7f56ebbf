package emu

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync/atomic"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/armsim/insts"
)

// DefaultStepLimit is the number of steps Continue runs before it stops
// with ErrAutomaticBreakpoint.
const DefaultStepLimit = 1000

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// Halted is true if no further step is possible.
	Halted bool

	// Err is set if the step halted execution. ErrInstructionsFinished
	// marks a normal end of the program.
	Err error
}

// StopReason tells why Continue returned.
type StopReason uint8

// Reasons for Continue to return.
const (
	StopFinished  StopReason = iota // ran past the last instruction
	StopError                       // an instruction failed
	StopRequested                   // Stop was called
	StopPaused                      // the between-steps callback returned false
	StopStepLimit                   // the step limit was reached
)

func (r StopReason) String() string {
	switch r {
	case StopFinished:
		return "finished"
	case StopError:
		return "error"
	case StopRequested:
		return "stopped"
	case StopPaused:
		return "paused"
	case StopStepLimit:
		return "step limit"
	}
	return "unknown"
}

// RunResult represents the result of Continue.
type RunResult struct {
	Reason StopReason
	// Steps counts the instructions completed by this call.
	Steps uint64
	Err   error
}

// BetweenSteps is called by Continue after every completed step. Returning
// false pauses the run.
type BetweenSteps func(e *Emulator) bool

// Emulator executes ARM32 instructions functionally.
type Emulator struct {
	*sim.HookableBase

	regFile *RegFile
	memory  *Memory

	// Execution units
	alu        *ALU
	branchUnit *BranchUnit

	// I/O
	stdout io.Writer

	// Run control
	stepLimit    uint64 // 0 means no limit
	betweenSteps BetweenSteps
	breakpoints  map[uint32]struct{}
	stopped      atomic.Bool
	running      atomic.Bool

	instructionCount uint64
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithStdout sets a custom stdout writer.
func WithStdout(w io.Writer) EmulatorOption {
	return func(e *Emulator) {
		e.stdout = w
	}
}

// WithMemory runs the emulator on an existing program store.
func WithMemory(m *Memory) EmulatorOption {
	return func(e *Emulator) {
		e.memory = m
	}
}

// WithStepLimit sets the maximum number of steps one Continue call runs.
// A value of 0 means no limit.
func WithStepLimit(limit uint64) EmulatorOption {
	return func(e *Emulator) {
		e.stepLimit = limit
	}
}

// WithBetweenSteps installs the callback Continue calls after each step.
func WithBetweenSteps(fn BetweenSteps) EmulatorOption {
	return func(e *Emulator) {
		e.betweenSteps = fn
	}
}

// NewEmulator creates a new ARM32 emulator.
func NewEmulator(opts ...EmulatorOption) *Emulator {
	regFile := &RegFile{}

	e := &Emulator{
		HookableBase: sim.NewHookableBase(),
		regFile:      regFile,
		stdout:       os.Stdout,
		stepLimit:    DefaultStepLimit,
		breakpoints:  make(map[uint32]struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.memory == nil {
		e.memory = NewMemory()
	}

	// Create execution units
	e.alu = NewALU(regFile)
	e.branchUnit = NewBranchUnit(regFile)

	return e
}

// Name identifies the emulator in hook contexts.
func (e *Emulator) Name() string {
	return "Emulator"
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regFile
}

// Memory returns the emulator's program store.
func (e *Emulator) Memory() *Memory {
	return e.memory
}

// InstructionCount returns the number of instructions executed since the
// last register reset.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// SetBetweenSteps replaces the between-steps callback.
func (e *Emulator) SetBetweenSteps(fn BetweenSteps) {
	e.betweenSteps = fn
}

// ResetRegisters zeroes all registers and flags.
func (e *Emulator) ResetRegisters() {
	e.regFile.Reset()
	e.instructionCount = 0
}

// SetBreakpoint marks addr as a breakpoint.
func (e *Emulator) SetBreakpoint(addr uint32) {
	e.breakpoints[addr] = struct{}{}
}

// ClearBreakpoint removes the breakpoint at addr.
func (e *Emulator) ClearBreakpoint(addr uint32) {
	delete(e.breakpoints, addr)
}

// ToggleBreakpoint flips the breakpoint at addr and reports whether it is
// now set.
func (e *Emulator) ToggleBreakpoint(addr uint32) bool {
	if e.IsBreakpoint(addr) {
		e.ClearBreakpoint(addr)
		return false
	}
	e.SetBreakpoint(addr)
	return true
}

// IsBreakpoint reports whether addr is a breakpoint.
func (e *Emulator) IsBreakpoint(addr uint32) bool {
	_, ok := e.breakpoints[addr]
	return ok
}

// Breakpoints returns the breakpoint addresses in ascending order.
func (e *Emulator) Breakpoints() []uint32 {
	addrs := make([]uint32, 0, len(e.breakpoints))
	for addr := range e.breakpoints {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// StopAtBreakpoints is a BetweenSteps callback that pauses when the next
// instruction is a breakpoint.
func StopAtBreakpoints(e *Emulator) bool {
	return !e.IsBreakpoint(e.regFile.PC())
}

// Stop asks a running Continue to return before its next step. It is safe
// to call from another goroutine.
func (e *Emulator) Stop() {
	e.stopped.Store(true)
}

// Step executes a single instruction.
// Returns a StepResult indicating whether execution can continue.
func (e *Emulator) Step() StepResult {
	addr := e.regFile.PC()

	// 1. Fetch
	if addr%4 != 0 {
		return e.halt(addr, fmt.Errorf("pc=0x%08x: %w", addr, ErrInvalidMemoryAddress))
	}
	line := e.memory.Line(addr)
	if !line.IsInstruction() {
		return e.halt(addr, fmt.Errorf("pc=0x%08x: %w", addr, ErrInstructionsFinished))
	}
	inst := line.Inst

	e.regFile.SetPC(addr + 4)
	e.instructionCount++

	// 2. Condition
	if !e.branchUnit.CheckCondition(inst.Condition()) {
		return StepResult{}
	}

	if e.NumHooks() > 0 {
		e.InvokeHook(sim.HookCtx{
			Domain: e,
			Pos:    HookPosStep,
			Item:   inst,
			Detail: addr,
		})
	}

	// 3. Execute
	if err := e.execute(inst, addr); err != nil {
		return e.halt(addr, err)
	}

	return StepResult{}
}

func (e *Emulator) halt(addr uint32, err error) StepResult {
	emitError(e, addr, err)
	return StepResult{Halted: true, Err: err}
}

// Continue steps until the program halts, Stop is called, the
// between-steps callback returns false or the step limit is reached.
func (e *Emulator) Continue() RunResult {
	if !e.running.CompareAndSwap(false, true) {
		return RunResult{Reason: StopError, Err: ErrAlreadyRunning}
	}
	defer e.running.Store(false)
	e.stopped.Store(false)

	var steps uint64
	for {
		if e.stopped.Load() {
			return RunResult{Reason: StopRequested, Steps: steps}
		}

		if e.stepLimit > 0 && steps >= e.stepLimit {
			err := fmt.Errorf("%d steps at pc=0x%08x: %w", steps, e.regFile.PC(), ErrAutomaticBreakpoint)
			emitError(e, e.regFile.PC(), err)
			return RunResult{Reason: StopStepLimit, Steps: steps, Err: err}
		}

		result := e.Step()
		if result.Halted {
			reason := StopError
			if errors.Is(result.Err, ErrInstructionsFinished) {
				reason = StopFinished
			}
			return RunResult{Reason: reason, Steps: steps, Err: result.Err}
		}
		steps++

		if e.betweenSteps != nil && !e.betweenSteps(e) {
			return RunResult{Reason: StopPaused, Steps: steps}
		}
	}
}

// execute dispatches and executes an instruction whose condition passed.
func (e *Emulator) execute(inst insts.Instruction, addr uint32) error {
	switch i := inst.(type) {
	case insts.Arithmetic:
		op2, _ := e.operand2(i.Op2)
		result := e.alu.Arithmetic(i.Op, e.regFile.ReadReg(i.Rn), op2, i.SetFlags)
		e.regFile.WriteReg(i.Rd, result)
	case insts.Logic:
		op2, carry := e.operand2(i.Op2)
		result := e.alu.Logic(i.Op, e.regFile.ReadReg(i.Rn), op2, carry, i.SetFlags)
		if !i.Op.IsCompare() {
			e.regFile.WriteReg(i.Rd, result)
		}
	case insts.Copy:
		op2, carry := e.operand2(i.Op2)
		e.regFile.WriteReg(i.Rd, e.alu.Logic(i.Op, 0, op2, carry, i.SetFlags))
	case insts.Multiplication:
		result := e.alu.Multiply(
			e.regFile.ReadReg(i.Rm),
			e.regFile.ReadReg(i.Rs),
			e.regFile.ReadReg(i.Rn),
			i.Op == insts.OpMLA,
			i.SetFlags,
		)
		e.regFile.WriteReg(i.Rd, result)
	case insts.Jump:
		return e.executeJump(i)
	case insts.LoadStore, insts.LoadStoreMultiple, insts.Swap, insts.SoftwareInterrupt:
		emit(e, Diagnostic{
			Severity: SeverityInfo,
			Text:     fmt.Sprintf("%s: memory transfers and interrupts are not simulated", inst),
			Address:  addr,
		})
	default:
		return fmt.Errorf("%w: cannot execute %T", insts.ErrInvalidInstruction, inst)
	}
	return nil
}

// operand2 evaluates a flexible second operand and returns it with the
// shifter carry out. Plain registers and immediates keep the current C.
func (e *Emulator) operand2(op insts.Operand) (uint32, bool) {
	carry := e.regFile.CPSR.C

	switch o := op.(type) {
	case insts.Reg:
		return e.regFile.ReadReg(o), carry
	case insts.Imm:
		return o.Value(), carry
	case insts.Shifter:
		var value uint32
		switch v := o.Value.(type) {
		case insts.Reg:
			value = e.regFile.ReadReg(v)
		case insts.Imm:
			value = v.Value()
		}

		var amount uint32
		switch a := o.Amount.(type) {
		case insts.Reg:
			amount = e.regFile.ReadReg(a) & 0xFF
		case insts.Imm:
			amount = a.Value()
		}
		return Shift(value, o.Type, amount, carry)
	}
	return 0, carry
}

func (e *Emulator) executeJump(i insts.Jump) error {
	target, ok := e.memory.Lookup(i.Target.Label)
	if !ok {
		return fmt.Errorf("%q: %w", i.Target.Label, insts.ErrInvalidBranchLabel)
	}

	if i.Op == insts.OpBL {
		e.branchUnit.BL(target)
	} else {
		e.branchUnit.B(target)
	}
	return nil
}

// DumpRegisters writes the register file and flags to stdout.
func (e *Emulator) DumpRegisters() {
	for i := 0; i < 16; i++ {
		_, _ = fmt.Fprintf(e.stdout, "%-3s = 0x%08x", insts.Reg(i), e.regFile.R[i])
		if i%4 == 3 {
			_, _ = fmt.Fprintln(e.stdout)
		} else {
			_, _ = fmt.Fprint(e.stdout, "  ")
		}
	}
	_, _ = fmt.Fprintln(e.stdout, e.regFile.CPSR)
}
