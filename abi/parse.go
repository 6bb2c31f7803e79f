package abi

import (
	"strconv"
	"strings"

	"github.com/wippyai/native-runtime/errors"
)

var typeNames = map[string]ValueType{
	"void":    Void,
	"f32":     F32,
	"float":   F32,
	"f64":     F64,
	"double":  F64,
	"u8":      U8,
	"u16":     U16,
	"u32":     U32,
	"u64":     U64,
	"u128":    U128,
	"i8":      I8,
	"i16":     I16,
	"i32":     I32,
	"i64":     I64,
	"i128":    I128,
	"ptr":     Pointer,
	"pointer": Pointer,
	"bool":    Bool,
	"cstr":    CStr,
	"wstr":    WStr,
	"char":    Char,
	"wchar":   WChar,
}

// ParseType parses a type name such as "u32", "ptr" or "struct[12]".
func ParseType(s string) (ValueType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if t, ok := typeNames[s]; ok {
		return t, nil
	}

	if rest, ok := strings.CutPrefix(s, "struct"); ok {
		rest = strings.TrimSpace(rest)
		if len(rest) >= 2 && (rest[0] == '[' && rest[len(rest)-1] == ']' || rest[0] == '(' && rest[len(rest)-1] == ')') {
			n, err := strconv.ParseUint(strings.TrimSpace(rest[1:len(rest)-1]), 10, 32)
			if err != nil {
				return ValueType{}, errors.New(errors.PhaseConstruct, errors.KindConstruction).
					Detail("invalid struct size in %q", s).
					Cause(err).
					Build()
			}
			return Struct(uint32(n))
		}
	}

	return ValueType{}, errors.New(errors.PhaseConstruct, errors.KindConstruction).
		Detail("unknown type %q", s).
		Build()
}

// ParseSignature parses "(t1, t2) -> ret @conv". The return defaults to
// void and the convention to the host's.
func ParseSignature(s string) (*Signature, error) {
	text := strings.TrimSpace(s)

	conv := Host()
	if at := strings.LastIndexByte(text, '@'); at >= 0 {
		c, err := ParseConvention(text[at+1:])
		if err != nil {
			return nil, err
		}
		conv = c
		text = strings.TrimSpace(text[:at])
	}

	if !strings.HasPrefix(text, "(") {
		return nil, errors.Construction("signature %q must start with '('", s)
	}
	closeIdx := matchParen(text)
	if closeIdx < 0 {
		return nil, errors.Construction("signature %q is missing ')'", s)
	}

	var args []ValueType
	if inner := strings.TrimSpace(text[1:closeIdx]); inner != "" {
		for _, part := range splitTypes(inner) {
			t, err := ParseType(part)
			if err != nil {
				return nil, err
			}
			args = append(args, t)
		}
	}

	ret := Void
	rest := strings.TrimSpace(text[closeIdx+1:])
	if rest != "" {
		after, ok := strings.CutPrefix(rest, "->")
		if !ok {
			return nil, errors.Construction("unexpected %q after argument list", rest)
		}
		t, err := ParseType(after)
		if err != nil {
			return nil, err
		}
		ret = t
	}

	return NewSignature(args, ret, conv)
}

// matchParen returns the index of the ')' closing text[0], or -1.
func matchParen(text string) int {
	depth := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
			if depth == 0 && text[i] == ')' {
				return i
			}
		}
	}
	return -1
}

// splitTypes splits on commas outside brackets.
func splitTypes(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[', '(':
			depth++
		case ']', ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
