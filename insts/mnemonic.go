package insts

import (
	"fmt"
	"sort"
	"strings"
)

// Statement is one tokenized source instruction. Mnemonic is the base
// mnemonic with its size or addressing-mode suffix ("ldrsb", "stmfd",
// "swpb"). Cond is a condition suffix or empty for always. Operands are
// lower-cased, whitespace-free resolver tokens.
type Statement struct {
	Mnemonic string
	Cond     string
	SetFlags bool
	Operands []string
}

func (s Statement) String() string {
	m := s.Mnemonic
	if s.SetFlags {
		m += "s"
	}
	m += s.Cond
	if len(s.Operands) == 0 {
		return m
	}
	return m + " " + strings.Join(s.Operands, ", ")
}

// basesByLength lists the base mnemonics longest first so that "bl" and
// "bic" are tried before "b".
var basesByLength = func() []string {
	names := make([]string, 0, len(opByName))
	for name := range opByName {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return names
}()

// condSpellings lists every accepted condition suffix, "" included, in a
// fixed order.
var condSpellings = func() []string {
	names := make([]string, 0, len(condByName))
	for name := range condByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}()

func opSuffixes(op Op) []string {
	switch op.Family() {
	case FamilyLoadStore:
		return sizeSuffixes[:]
	case FamilyLoadStoreMultiple:
		return append([]string{""}, modeNames[:]...)
	case FamilySwap:
		return []string{"", "b"}
	}
	return []string{""}
}

func allowsSetFlags(op Op) bool {
	switch op.Family() {
	case FamilyArithmetic, FamilyMultiplication, FamilyLogic, FamilyCopy:
		return true
	}
	return false
}

// lookupOp splits a base-plus-suffix mnemonic into its opcode and suffix.
func lookupOp(mnemonic string) (Op, string, error) {
	for _, base := range basesByLength {
		if !strings.HasPrefix(mnemonic, base) {
			continue
		}
		op := opByName[base]
		rest := mnemonic[len(base):]
		for _, suffix := range opSuffixes(op) {
			if rest == suffix {
				return op, suffix, nil
			}
		}
	}
	return OpUnknown, "", fmt.Errorf("%w: unknown mnemonic %q", ErrInvalidInstruction, mnemonic)
}

// SplitMnemonic splits a full mnemonic word such as "addeqs", "addseq",
// "ldrsbne" or "stmfd" into the base-plus-suffix mnemonic, the condition
// suffix and the set-flags bit. Both the pre-UAL order (condition before
// s or size) and the unified order are accepted.
func SplitMnemonic(word string) (string, string, bool, error) {
	word = strings.ToLower(word)
	for _, base := range basesByLength {
		if !strings.HasPrefix(word, base) {
			continue
		}
		op := opByName[base]
		rest := word[len(base):]
		flagChoices := []string{""}
		if allowsSetFlags(op) {
			flagChoices = append(flagChoices, "s")
		}
		for _, suffix := range opSuffixes(op) {
			for _, cond := range condSpellings {
				for _, s := range flagChoices {
					if rest == suffix+s+cond || rest == suffix+cond+s || rest == cond+suffix+s {
						return base + suffix, cond, s == "s", nil
					}
				}
			}
		}
	}
	return "", "", false, fmt.Errorf("%w: unknown mnemonic %q", ErrInvalidInstruction, word)
}
