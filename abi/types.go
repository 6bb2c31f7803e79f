package abi

import (
	"fmt"
	"math/bits"

	"github.com/wippyai/native-runtime/errors"
)

// Kind identifies a native value type
type Kind uint8

const (
	KindVoid Kind = iota
	KindF32
	KindF64
	KindU8
	KindU16
	KindU32
	KindU64
	KindU128
	KindI8
	KindI16
	KindI32
	KindI64
	KindI128
	KindPointer
	KindBool
	KindCStr
	KindWStr
	KindChar
	KindWChar
	KindStruct
)

var kindNames = [...]string{
	KindVoid:    "void",
	KindF32:     "f32",
	KindF64:     "f64",
	KindU8:      "u8",
	KindU16:     "u16",
	KindU32:     "u32",
	KindU64:     "u64",
	KindU128:    "u128",
	KindI8:      "i8",
	KindI16:     "i16",
	KindI32:     "i32",
	KindI64:     "i64",
	KindI128:    "i128",
	KindPointer: "ptr",
	KindBool:    "bool",
	KindCStr:    "cstr",
	KindWStr:    "wstr",
	KindChar:    "char",
	KindWChar:   "wchar",
	KindStruct:  "struct",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ValueType is a member of the closed native type set.
// Struct carries only its byte size; the shape is opaque.
type ValueType struct {
	kind Kind
	size uint32
}

var (
	Void    = ValueType{kind: KindVoid}
	F32     = ValueType{kind: KindF32, size: 4}
	F64     = ValueType{kind: KindF64, size: 8}
	U8      = ValueType{kind: KindU8, size: 1}
	U16     = ValueType{kind: KindU16, size: 2}
	U32     = ValueType{kind: KindU32, size: 4}
	U64     = ValueType{kind: KindU64, size: 8}
	U128    = ValueType{kind: KindU128, size: 16}
	I8      = ValueType{kind: KindI8, size: 1}
	I16     = ValueType{kind: KindI16, size: 2}
	I32     = ValueType{kind: KindI32, size: 4}
	I64     = ValueType{kind: KindI64, size: 8}
	I128    = ValueType{kind: KindI128, size: 16}
	Pointer = ValueType{kind: KindPointer, size: 8}
	Bool    = ValueType{kind: KindBool, size: 1}
	CStr    = ValueType{kind: KindCStr, size: 8}
	WStr    = ValueType{kind: KindWStr, size: 8}
	Char    = ValueType{kind: KindChar, size: 1}
	WChar   = ValueType{kind: KindWChar, size: 2}
)

// MaxStructSize bounds struct sizes so alignment and layout arithmetic
// stay within 32 bits.
const MaxStructSize = 1 << 30

// Struct returns an opaque struct type of n bytes. Zero-size structs and
// structs larger than MaxStructSize are rejected.
func Struct(n uint32) (ValueType, error) {
	if n == 0 {
		return ValueType{}, errors.Construction("struct size must be non-zero")
	}
	if n > MaxStructSize {
		return ValueType{}, errors.Construction("struct size %d exceeds %d", n, MaxStructSize)
	}
	return ValueType{kind: KindStruct, size: n}, nil
}

// MustStruct is like Struct but panics on an invalid size.
func MustStruct(n uint32) ValueType {
	t, err := Struct(n)
	if err != nil {
		panic(err)
	}
	return t
}

// Kind returns the type's kind
func (t ValueType) Kind() Kind { return t.kind }

// Size returns the natural byte width, or n for Struct(n).
func (t ValueType) Size() uint32 { return t.size }

// Align returns next_pow2(size); indirect structs are floored at 16.
func (t ValueType) Align() uint32 {
	a := NextPow2(t.size)
	if t.IsIndirect() && a < 16 {
		a = 16
	}
	return a
}

// IsIndirect reports whether a struct is passed through a pointer:
// true iff its size exceeds 8 bytes or is not a power of two.
func (t ValueType) IsIndirect() bool {
	if t.kind != KindStruct {
		return false
	}
	return t.size > 8 || !IsPow2(t.size)
}

func (t ValueType) IsVoid() bool { return t.kind == KindVoid }

// IsFloat reports whether the value travels in a vector register.
func (t ValueType) IsFloat() bool { return t.kind == KindF32 || t.kind == KindF64 }

// IsWide reports 128-bit integers.
func (t ValueType) IsWide() bool { return t.kind == KindU128 || t.kind == KindI128 }

// IsSigned reports signed integer kinds, which are sign-extended on load.
func (t ValueType) IsSigned() bool {
	switch t.kind {
	case KindI8, KindI16, KindI32, KindI64, KindI128:
		return true
	}
	return false
}

// IsPointerLike reports kinds whose zero value is not a safe return.
func (t ValueType) IsPointerLike() bool {
	switch t.kind {
	case KindPointer, KindCStr, KindWStr:
		return true
	}
	return false
}

func (t ValueType) String() string {
	if t.kind == KindStruct {
		return fmt.Sprintf("struct[%d]", t.size)
	}
	return t.kind.String()
}

// NextPow2 returns the smallest power of two >= n (1 for n == 0), or 0
// when that power does not fit in 32 bits.
func NextPow2(n uint32) uint32 {
	if n <= 1 {
		return 1
	}
	l := bits.Len32(n - 1)
	if l >= 32 {
		return 0
	}
	return 1 << l
}

func IsPow2(n uint32) bool {
	return n != 0 && n&(n-1) == 0
}

// AlignTo rounds offset up to a multiple of align (a power of two).
func AlignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}
