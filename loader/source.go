// Package loader turns assembly source and ARM ELF images into the
// contents of an emu.Memory.
package loader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/sarchlab/armsim/emu"
	"github.com/sarchlab/armsim/insts"
)

// ErrSyntax marks a source line that cannot be split into a statement.
var ErrSyntax = errors.New("syntax error")

// EntryKind tells what a source entry places into memory.
type EntryKind uint8

// Entry kinds.
const (
	EntryInstruction EntryKind = iota
	EntryLabel
	EntryData
	EntryOrigin
)

// Entry is one placement step parsed from the source.
type Entry struct {
	// Line is the 1-based source line.
	Line int
	Kind EntryKind

	Stmt   insts.Statement // EntryInstruction
	Label  string          // EntryLabel
	Words  []uint32        // EntryData
	Origin uint32          // EntryOrigin
}

// Program is parsed assembly source ready to be placed into memory.
type Program struct {
	Entries []Entry
}

// Load reads and parses the assembly file at path.
func Load(path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Parse(f)
}

// Parse reads assembly source. Every malformed line is reported; the
// returned error joins them.
func Parse(r io.Reader) (*Program, error) {
	prog := &Program{}
	var errs []error

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		entries, err := ParseLine(scanner.Text())
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", lineNum, err))
			continue
		}
		for _, e := range entries {
			e.Line = lineNum
			prog.Entries = append(prog.Entries, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return prog, nil
}

// ParseLine parses one source line into its entries: an optional label
// followed by an optional directive or instruction.
func ParseLine(line string) ([]Entry, error) {
	line = strings.TrimSpace(stripComment(line))

	var entries []Entry
	if name, rest, ok := cutLabel(line); ok {
		entries = append(entries, Entry{Kind: EntryLabel, Label: name})
		line = rest
	}

	if line == "" {
		return entries, nil
	}

	word, operands := splitFirstField(line)
	word = strings.ToLower(word)

	if strings.HasPrefix(word, ".") {
		e, err := parseDirective(word, operands)
		if err != nil {
			return nil, err
		}
		return append(entries, e), nil
	}

	mnemonic, cond, setFlags, err := insts.SplitMnemonic(word)
	if err != nil {
		return nil, err
	}

	toks, err := SplitOperands(operands)
	if err != nil {
		return nil, err
	}

	return append(entries, Entry{
		Kind: EntryInstruction,
		Stmt: insts.Statement{
			Mnemonic: mnemonic,
			Cond:     cond,
			SetFlags: setFlags,
			Operands: toks,
		},
	}), nil
}

func stripComment(line string) string {
	for _, marker := range []string{";", "@", "//"} {
		if i := strings.Index(line, marker); i >= 0 {
			line = line[:i]
		}
	}
	return line
}

func cutLabel(line string) (string, string, bool) {
	name, rest, ok := strings.Cut(line, ":")
	if !ok || !isIdentifier(name) {
		return "", line, false
	}
	return strings.ToLower(name), strings.TrimSpace(rest), true
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}

func splitFirstField(line string) (string, string) {
	i := strings.IndexFunc(line, unicode.IsSpace)
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimSpace(line[i:])
}

func parseDirective(word, operands string) (Entry, error) {
	args := strings.Split(strings.ToLower(removeSpaces(operands)), ",")

	switch word {
	case ".word":
		if operands == "" {
			return Entry{}, fmt.Errorf("%w: .word needs a value", ErrSyntax)
		}
		words := make([]uint32, 0, len(args))
		for _, arg := range args {
			v, _, _, err := insts.ParseNumber(arg)
			if err != nil {
				return Entry{}, fmt.Errorf("%w: .word %q: %v", ErrSyntax, arg, err)
			}
			words = append(words, v)
		}
		return Entry{Kind: EntryData, Words: words}, nil
	case ".org":
		if len(args) != 1 || args[0] == "" {
			return Entry{}, fmt.Errorf("%w: .org takes one address", ErrSyntax)
		}
		v, _, _, err := insts.ParseNumber(args[0])
		if err != nil {
			return Entry{}, fmt.Errorf("%w: .org %q: %v", ErrSyntax, args[0], err)
		}
		return Entry{Kind: EntryOrigin, Origin: v}, nil
	}
	return Entry{}, fmt.Errorf("%w: unknown directive %s", ErrSyntax, word)
}

func removeSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// SplitOperands turns the operand text of one instruction into resolver
// tokens. Commas inside [] and {} do not split. A shift specifier is
// joined to the operand it shifts and a post-index offset is joined to its
// address, so "r1, lsl #2" and "[r0], #4" each form one token.
func SplitOperands(text string) ([]string, error) {
	text = strings.ToLower(removeSpaces(text))
	if text == "" {
		return nil, nil
	}

	var parts []string
	depth, start := 0, 0
	for i, r := range text {
		switch r {
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: unbalanced %q", ErrSyntax, r)
			}
		case ',':
			if depth == 0 {
				parts = append(parts, text[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("%w: unclosed bracket in %q", ErrSyntax, text)
	}
	parts = append(parts, text[start:])

	var toks []string
	for _, p := range parts {
		n := len(toks)
		if n > 0 && (isShiftSpec(p) || isPostIndexed(toks[n-1], p)) {
			toks[n-1] += "," + p
			continue
		}
		toks = append(toks, p)
	}
	return toks, nil
}

var shiftKinds = []string{"lsl", "lsr", "asr", "ror", "asl", "rrx"}

func isShiftSpec(p string) bool {
	for _, kind := range shiftKinds {
		if !strings.HasPrefix(p, kind) {
			continue
		}
		amount := p[len(kind):]
		if kind == "rrx" {
			return amount == ""
		}
		if strings.HasPrefix(amount, "#") {
			return true
		}
		if _, err := insts.ResolveRegister(amount); err == nil {
			return true
		}
	}
	return false
}

func isPostIndexed(prev, p string) bool {
	return strings.HasPrefix(prev, "[") && strings.HasSuffix(prev, "]") &&
		!strings.HasPrefix(p, "[") && !strings.HasPrefix(p, "{")
}

// Assemble places the program into mem, starting at address 0. Every
// failing entry is reported; the returned error joins them.
func (p *Program) Assemble(mem *emu.Memory) error {
	_, err := p.AssembleAt(mem, 0)
	return err
}

// AssembleAt places the program into mem starting at addr and returns the
// address following the last placed word.
func (p *Program) AssembleAt(mem *emu.Memory, addr uint32) (uint32, error) {
	var errs []error

	for _, e := range p.Entries {
		var err error
		switch e.Kind {
		case EntryLabel:
			err = mem.AddLabel(addr, e.Label)
		case EntryOrigin:
			addr = e.Origin
		case EntryData:
			for _, w := range e.Words {
				if err = mem.AddData(addr, w); err != nil {
					break
				}
				addr += 4
			}
		case EntryInstruction:
			err = mem.AddInstructionAt(addr, e.Stmt)
			addr += 4
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", e.Line, err))
		}
	}

	return addr, errors.Join(errs...)
}
