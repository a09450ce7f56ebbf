package insts

import (
	"fmt"
	"strconv"
	"strings"
)

// The Resolve functions turn one lower-cased, whitespace-free operand token
// into a typed Operand. Every failure wraps ErrInvalidOperand.

func invalidOperand(tok, format string, args ...interface{}) error {
	return fmt.Errorf("%w %q: %s", ErrInvalidOperand, tok, fmt.Sprintf(format, args...))
}

// ResolveRegister resolves r0-r15 and the sp, lr and pc aliases.
func ResolveRegister(tok string) (Reg, error) {
	switch tok {
	case "sp":
		return SP, nil
	case "lr":
		return LR, nil
	case "pc":
		return PC, nil
	}

	if len(tok) < 2 || tok[0] != 'r' {
		return 0, invalidOperand(tok, "not a register")
	}
	digits := tok[1:]
	if len(digits) > 1 && digits[0] == '0' {
		return 0, invalidOperand(tok, "not a register")
	}
	n, err := strconv.ParseUint(digits, 10, 8)
	if err != nil || n > 15 {
		return 0, invalidOperand(tok, "not a register")
	}
	return Reg(n), nil
}

// ParseNumber parses an optionally signed integer with an optional 0x, 0o or
// 0b prefix. Negative values wrap modulo 2^32. It returns the value, the
// radix it was written in and whether a minus sign was present.
func ParseNumber(s string) (uint32, int, bool, error) {
	negative := false
	switch {
	case strings.HasPrefix(s, "-"):
		negative = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	base := 10
	switch {
	case strings.HasPrefix(s, "0x"):
		base, s = 16, s[2:]
	case strings.HasPrefix(s, "0o"):
		base, s = 8, s[2:]
	case strings.HasPrefix(s, "0b"):
		base, s = 2, s[2:]
	}

	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, base, negative, fmt.Errorf("bad number %q: %w", s, err)
	}

	value := uint32(v)
	if negative {
		value = -value
	}
	return value, base, negative, nil
}

// ResolveImmediate resolves #value into a rotated immediate, trying the
// smallest rotation first and the complement of the value second.
func ResolveImmediate(tok string) (Imm, error) {
	if !strings.HasPrefix(tok, "#") {
		return Imm{}, invalidOperand(tok, "immediate must start with #")
	}

	value, base, negative, err := ParseNumber(tok[1:])
	if err != nil {
		return Imm{}, invalidOperand(tok, "%v", err)
	}

	imm, ok := NewImm(value)
	if !ok {
		return Imm{}, invalidOperand(tok, "0x%x is not representable by the shifter", value)
	}
	imm.Base = base
	imm.Signed = negative
	return imm, nil
}

func resolveRegOrImm(tok string) (Operand, error) {
	if strings.HasPrefix(tok, "#") {
		return ResolveImmediate(tok)
	}
	return ResolveRegister(tok)
}

// ResolveShifter resolves "value,kind amount" where value is a register or
// immediate and amount is a register or an immediate no larger than 31.
// rrx takes no amount.
func ResolveShifter(tok string) (Shifter, error) {
	left, right, ok := strings.Cut(tok, ",")
	if !ok {
		return Shifter{}, invalidOperand(tok, "missing shift")
	}

	value, err := resolveRegOrImm(left)
	if err != nil {
		return Shifter{}, invalidOperand(tok, "bad shifted operand %q", left)
	}

	if len(right) < 3 {
		return Shifter{}, invalidOperand(tok, "missing shift kind")
	}
	kind, ok := shiftNames[right[:3]]
	if !ok {
		return Shifter{}, invalidOperand(tok, "unknown shift %q", right[:3])
	}

	s := Shifter{Value: value, Type: kind}
	rest := right[3:]
	if kind == ShiftRRX {
		if rest != "" {
			return Shifter{}, invalidOperand(tok, "rrx takes no amount")
		}
		return s, nil
	}

	amount, err := resolveRegOrImm(rest)
	if err != nil {
		return Shifter{}, invalidOperand(tok, "bad shift amount %q", rest)
	}
	if imm, ok := amount.(Imm); ok && (imm.Inverted || imm.Value() > 31) {
		return Shifter{}, invalidOperand(tok, "shift amount %d out of range 0-31", imm.Value())
	}
	s.Amount = amount
	return s, nil
}

// ResolveOperand2 resolves the flexible second operand of a data processing
// instruction: a register, an immediate or a shifter.
func ResolveOperand2(tok string) (Operand, error) {
	if strings.Contains(tok, ",") {
		return ResolveShifter(tok)
	}
	return resolveRegOrImm(tok)
}

func isLabel(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == '.':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// ResolveBranch resolves a branch target label. The label does not need to
// exist yet.
func ResolveBranch(tok string) (Branch, error) {
	if !isLabel(tok) {
		return Branch{}, invalidOperand(tok, "not a label")
	}
	return Branch{Label: tok}, nil
}

// ResolveMem resolves a bracketed load/store address:
//
//	[rn]  [rn,offset]  [rn,offset]!  [rn],offset
//
// where offset is an optionally signed register, immediate or shifted
// register. The post-indexed form always writes back.
func ResolveMem(tok string) (Mem, error) {
	if !strings.HasPrefix(tok, "[") {
		return Mem{}, invalidOperand(tok, "address must start with [")
	}
	end := strings.IndexByte(tok, ']')
	if end < 0 {
		return Mem{}, invalidOperand(tok, "missing ]")
	}

	inner, after := tok[1:end], tok[end+1:]
	baseTok, offTok, hasOffset := strings.Cut(inner, ",")

	base, err := ResolveRegister(baseTok)
	if err != nil {
		return Mem{}, invalidOperand(tok, "bad base register %q", baseTok)
	}
	m := Mem{Base: base}

	switch {
	case after == "":
	case after == "!":
		m.Writeback = true
	case after[0] == ',':
		if hasOffset {
			return Mem{}, invalidOperand(tok, "offset given twice")
		}
		offTok, hasOffset = after[1:], true
		m.PostIndexed = true
		m.Writeback = true
	default:
		return Mem{}, invalidOperand(tok, "unexpected %q after ]", after)
	}

	if !hasOffset {
		return m, nil
	}

	off, subtract, err := resolveOffset(offTok)
	if err != nil {
		return Mem{}, invalidOperand(tok, "bad offset %q", offTok)
	}
	m.Offset = off
	m.Subtract = subtract
	return m, nil
}

func resolveOffset(tok string) (Operand, bool, error) {
	if strings.HasPrefix(tok, "#") {
		body := tok[1:]
		subtract := false
		switch {
		case strings.HasPrefix(body, "-"):
			subtract, body = true, body[1:]
		case strings.HasPrefix(body, "+"):
			body = body[1:]
		}
		imm, err := ResolveImmediate("#" + body)
		if err != nil {
			return nil, false, err
		}
		if imm.Inverted {
			return nil, false, invalidOperand(tok, "offset out of range")
		}
		return imm, subtract, nil
	}

	subtract := false
	switch {
	case strings.HasPrefix(tok, "-"):
		subtract, tok = true, tok[1:]
	case strings.HasPrefix(tok, "+"):
		tok = tok[1:]
	}

	if strings.Contains(tok, ",") {
		s, err := ResolveShifter(tok)
		if err != nil {
			return nil, false, err
		}
		if _, ok := s.Value.(Reg); !ok {
			return nil, false, invalidOperand(tok, "shifted offset must be a register")
		}
		return s, subtract, nil
	}

	r, err := ResolveRegister(tok)
	if err != nil {
		return nil, false, err
	}
	return r, subtract, nil
}

// ResolveRegList resolves {reg, reg-reg, ...}. Ranges are inclusive and
// need a low register below the high one. Every bad entry is reported in
// one error.
func ResolveRegList(tok string) (RegList, error) {
	if !strings.HasPrefix(tok, "{") || !strings.HasSuffix(tok, "}") {
		return nil, invalidOperand(tok, "register list must be enclosed in {}")
	}
	inner := tok[1 : len(tok)-1]
	if inner == "" {
		return nil, invalidOperand(tok, "empty register list")
	}

	var present [16]bool
	var bad []string
	for _, item := range strings.Split(inner, ",") {
		loTok, hiTok, isRange := strings.Cut(item, "-")
		lo, err := ResolveRegister(loTok)
		if err != nil {
			bad = append(bad, item)
			continue
		}
		if !isRange {
			present[lo] = true
			continue
		}
		hi, err := ResolveRegister(hiTok)
		if err != nil || lo >= hi {
			bad = append(bad, item)
			continue
		}
		for r := lo; r <= hi; r++ {
			present[r] = true
		}
	}

	if len(bad) > 0 {
		return nil, invalidOperand(tok, "unresolvable registers %s", strings.Join(bad, ", "))
	}

	var list RegList
	for r, ok := range present {
		if ok {
			list = append(list, Reg(r))
		}
	}
	return list, nil
}

// ResolveLoadImm resolves the ldr pseudo operand =value or =label.
func ResolveLoadImm(tok string) (LoadImm, error) {
	if !strings.HasPrefix(tok, "=") {
		return LoadImm{}, invalidOperand(tok, "must start with =")
	}
	body := tok[1:]
	if value, _, _, err := ParseNumber(body); err == nil {
		return LoadImm{Value: value}, nil
	}
	if isLabel(body) {
		return LoadImm{Label: body}, nil
	}
	return LoadImm{}, invalidOperand(tok, "neither a number nor a label")
}
