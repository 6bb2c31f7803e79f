package script

import (
	"bytes"
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/wippyai/native-runtime/errors"
)

// ValueKind tags a script Value.
type ValueKind uint8

const (
	KindNil ValueKind = iota
	KindInt
	KindUint
	KindFloat
	KindBool
	KindString
	KindBytes
	KindBigInt
)

func (k ValueKind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindBigInt:
		return "bigint"
	}
	return "unknown"
}

// Value is a script value crossing the native boundary.
// The zero Value is nil.
type Value struct {
	kind ValueKind
	bits uint64
	str  string
	buf  []byte
	big  *big.Int
}

func Nil() Value { return Value{} }
func Int(v int64) Value { return Value{kind: KindInt, bits: uint64(v)} }
func Uint(v uint64) Value { return Value{kind: KindUint, bits: v} }
func Float(v float64) Value { return Value{kind: KindFloat, bits: math.Float64bits(v)} }
func String(s string) Value { return Value{kind: KindString, str: s} }
func Bytes(b []byte) Value { return Value{kind: KindBytes, buf: b} }
func BigInt(v *big.Int) Value { return Value{kind: KindBigInt, big: new(big.Int).Set(v)} }
func Bool(v bool) Value {
	if v {
		return Value{kind: KindBool, bits: 1}
	}
	return Value{kind: KindBool}
}

// Kind returns the value's tag.
func (v Value) Kind() ValueKind { return v.kind }

func (v Value) IsNil() bool { return v.kind == KindNil }

func (v Value) mismatch(want string) error {
	return errors.TypeMismatch(errors.PhaseCall, nil, v.kind.String(), want)
}

// Int64 converts numeric values to int64. Floats truncate toward zero,
// unsigned and big values keep their low 64 bits.
func (v Value) Int64() (int64, error) {
	switch v.kind {
	case KindInt, KindUint, KindBool:
		return int64(v.bits), nil
	case KindFloat:
		return int64(math.Float64frombits(v.bits)), nil
	case KindBigInt:
		return int64(lowBits(v.big)), nil
	}
	return 0, v.mismatch("int")
}

// Uint64 converts numeric values to uint64 with the same rules as Int64.
func (v Value) Uint64() (uint64, error) {
	switch v.kind {
	case KindInt, KindUint, KindBool:
		return v.bits, nil
	case KindFloat:
		f := math.Float64frombits(v.bits)
		if f < 0 {
			return uint64(int64(f)), nil
		}
		return uint64(f), nil
	case KindBigInt:
		return lowBits(v.big), nil
	}
	return 0, v.mismatch("uint")
}

// Float64 converts numeric values to float64.
func (v Value) Float64() (float64, error) {
	switch v.kind {
	case KindFloat:
		return math.Float64frombits(v.bits), nil
	case KindInt:
		return float64(int64(v.bits)), nil
	case KindUint:
		return float64(v.bits), nil
	case KindBigInt:
		f, _ := new(big.Float).SetInt(v.big).Float64()
		return f, nil
	}
	return 0, v.mismatch("float")
}

// Truth converts bools and integers; nil is false.
func (v Value) Truth() (bool, error) {
	switch v.kind {
	case KindNil:
		return false, nil
	case KindBool, KindInt, KindUint:
		return v.bits != 0, nil
	}
	return false, v.mismatch("bool")
}

// Text returns string and byte values as a string.
func (v Value) Text() (string, error) {
	switch v.kind {
	case KindString:
		return v.str, nil
	case KindBytes:
		return string(v.buf), nil
	}
	return "", v.mismatch("string")
}

// Raw returns string and byte values as bytes.
func (v Value) Raw() ([]byte, error) {
	switch v.kind {
	case KindBytes:
		return v.buf, nil
	case KindString:
		return []byte(v.str), nil
	}
	return nil, v.mismatch("bytes")
}

// Big converts integer values to a big.Int.
func (v Value) Big() (*big.Int, error) {
	switch v.kind {
	case KindInt, KindBool:
		return big.NewInt(int64(v.bits)), nil
	case KindUint:
		return new(big.Int).SetUint64(v.bits), nil
	case KindBigInt:
		return new(big.Int).Set(v.big), nil
	case KindFloat:
		f := math.Float64frombits(v.bits)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, errors.Overflow(errors.PhaseCall, nil, f, "integer")
		}
		bf := big.NewFloat(math.Trunc(f))
		i, _ := bf.Int(nil)
		return i, nil
	}
	return nil, v.mismatch("integer")
}

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindBytes:
		return bytes.Equal(v.buf, o.buf)
	case KindBigInt:
		return v.big.Cmp(o.big) == 0
	}
	return v.bits == o.bits
}

func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindInt:
		return strconv.FormatInt(int64(v.bits), 10)
	case KindUint:
		return strconv.FormatUint(v.bits, 10)
	case KindFloat:
		return strconv.FormatFloat(math.Float64frombits(v.bits), 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.bits != 0)
	case KindString:
		return strconv.Quote(v.str)
	case KindBytes:
		return fmt.Sprintf("%x", v.buf)
	case KindBigInt:
		return v.big.String()
	}
	return "?"
}

func lowBits(b *big.Int) uint64 {
	m := new(big.Int).And(b, new(big.Int).SetUint64(math.MaxUint64))
	return m.Uint64()
}
