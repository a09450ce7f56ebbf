package emu

import (
	"errors"

	"github.com/sarchlab/akita/v4/sim"
)

// Placement and execution errors.
var (
	ErrUnalignedAddress      = errors.New("address is not word aligned")
	ErrDuplicateLabel        = errors.New("duplicate label")
	ErrAddressAlreadyLabeled = errors.New("address already labeled")
	ErrDataOverwritesCode    = errors.New("data would overwrite an instruction")
	ErrInvalidMemoryAddress  = errors.New("invalid memory address")
	ErrInstructionsFinished  = errors.New("no instruction at pc")
	ErrAutomaticBreakpoint   = errors.New("step limit reached")
	ErrAlreadyRunning        = errors.New("emulator is already running")
)

// Severity ranks a diagnostic.
type Severity uint8

// Diagnostic severities.
const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return "unknown"
}

// Diagnostic is a message for the user about assembly or execution.
type Diagnostic struct {
	Severity Severity
	Text     string
	// Address is the memory address the message concerns.
	Address uint32
	// Err is the underlying error, if any.
	Err error
}

func (d Diagnostic) String() string {
	return d.Severity.String() + ": " + d.Text
}

// HookPosDiagnostic marks a diagnostic. The hook item is a Diagnostic.
var HookPosDiagnostic = &sim.HookPos{Name: "Diagnostic"}

// HookPosStep marks an executed step. It fires once the condition has
// passed, so skipped instructions are not reported. The hook item is the
// instruction and the detail is its address.
var HookPosStep = &sim.HookPos{Name: "Step"}

// severityOf picks the severity an error is reported with.
func severityOf(err error) Severity {
	switch {
	case errors.Is(err, ErrInstructionsFinished):
		return SeverityInfo
	case errors.Is(err, ErrAutomaticBreakpoint):
		return SeverityWarning
	}
	return SeverityError
}

type diagnoser interface {
	sim.Hookable
	InvokeHook(ctx sim.HookCtx)
}

func emit(domain diagnoser, d Diagnostic) {
	if domain.NumHooks() == 0 {
		return
	}
	domain.InvokeHook(sim.HookCtx{
		Domain: domain,
		Pos:    HookPosDiagnostic,
		Item:   d,
	})
}

func emitError(domain diagnoser, addr uint32, err error) {
	emit(domain, Diagnostic{
		Severity: severityOf(err),
		Text:     err.Error(),
		Address:  addr,
		Err:      err,
	})
}
