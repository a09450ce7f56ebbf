package insts

import (
	"errors"
	"fmt"
	"strings"
)

// Assembly and encoding errors.
var (
	// ErrInvalidOperand is returned when an operand token does not resolve.
	ErrInvalidOperand = errors.New("invalid operand")
	// ErrInvalidInstruction is returned for unknown mnemonics and bad
	// operand counts or suffixes.
	ErrInvalidInstruction = errors.New("invalid instruction")
	// ErrInvalidBranchLabel is returned when a branch label has no address.
	ErrInvalidBranchLabel = errors.New("invalid branch label")
)

// OperandError collects every operand token of one statement that failed
// to resolve. It unwraps to ErrInvalidOperand.
type OperandError struct {
	Mnemonic string
	Tokens   []string
	Reasons  []error
}

func (e *OperandError) add(token string, reason error) {
	e.Tokens = append(e.Tokens, token)
	e.Reasons = append(e.Reasons, reason)
}

func (e *OperandError) empty() bool {
	return len(e.Tokens) == 0
}

// Error lists the failing tokens with their individual reasons.
func (e *OperandError) Error() string {
	parts := make([]string, len(e.Tokens))
	for i, tok := range e.Tokens {
		parts[i] = fmt.Sprintf("%q (%v)", tok, e.Reasons[i])
	}
	return fmt.Sprintf("%v for %s: %s", ErrInvalidOperand, e.Mnemonic, strings.Join(parts, ", "))
}

// Unwrap makes errors.Is(err, ErrInvalidOperand) hold.
func (e *OperandError) Unwrap() error {
	return ErrInvalidOperand
}
