package marshal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"unicode/utf16"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/native-runtime/abi"
	"github.com/wippyai/native-runtime/errors"
	"github.com/wippyai/native-runtime/script"
)

// SlotSize is the size of the return value union.
const SlotSize = 16

// maxStringScan bounds NUL searches when reading native strings.
const maxStringScan = 1 << 20

func view(p unsafe.Pointer, n uint32) []byte {
	return unsafe.Slice((*byte)(p), n)
}

// WriteArg encodes v as type t at dst. Numeric conversions truncate to the
// target width. Strings are copied into arena and their address stored.
func WriteArg(dst unsafe.Pointer, t abi.ValueType, v script.Value, arena Arena) error {
	return write(view(dst, max(t.Size(), 1)), t, v, arena)
}

// WriteReturn encodes v into a return slot. For indirect structs dst must
// be the caller-supplied result buffer.
func WriteReturn(dst unsafe.Pointer, t abi.ValueType, v script.Value, arena Arena) error {
	if t.IsVoid() {
		return nil
	}
	size := t.Size()
	if !t.IsIndirect() {
		size = SlotSize
		clear(view(dst, size))
	}
	return write(view(dst, size), t, v, arena)
}

// WriteDefault zeroes the return slot for t and reports whether the zero
// value is a safe substitute for a failed callback.
func WriteDefault(dst unsafe.Pointer, t abi.ValueType) bool {
	if t.IsVoid() {
		return true
	}
	size := uint32(SlotSize)
	if t.IsIndirect() {
		size = t.Size()
	}
	clear(view(dst, size))
	return !t.IsPointerLike()
}

func write(dst []byte, t abi.ValueType, v script.Value, arena Arena) error {
	le := binary.LittleEndian

	switch t.Kind() {
	case abi.KindVoid:
		return errors.Construction("void has no value")

	case abi.KindF32:
		f, err := v.Float64()
		if err != nil {
			return withType(err, t)
		}
		le.PutUint32(dst, math.Float32bits(float32(f)))

	case abi.KindF64:
		f, err := v.Float64()
		if err != nil {
			return withType(err, t)
		}
		le.PutUint64(dst, math.Float64bits(f))

	case abi.KindU8, abi.KindI8, abi.KindU16, abi.KindI16,
		abi.KindU32, abi.KindI32, abi.KindU64, abi.KindI64:
		u, err := v.Uint64()
		if err != nil {
			return withType(err, t)
		}
		var tmp [8]byte
		le.PutUint64(tmp[:], u)
		copy(dst[:t.Size()], tmp[:])

	case abi.KindU128, abi.KindI128:
		b, err := v.Big()
		if err != nil {
			return withType(err, t)
		}
		putInt128(dst, b)

	case abi.KindPointer:
		if v.IsNil() {
			le.PutUint64(dst, 0)
			return nil
		}
		u, err := v.Uint64()
		if err != nil {
			return withType(err, t)
		}
		le.PutUint64(dst, u)

	case abi.KindBool:
		b, err := v.Truth()
		if err != nil {
			return withType(err, t)
		}
		dst[0] = 0
		if b {
			dst[0] = 1
		}

	case abi.KindCStr:
		p, err := cstring(v, arena)
		if err != nil {
			return withType(err, t)
		}
		le.PutUint64(dst, uint64(p))

	case abi.KindWStr:
		p, err := wstring(v, arena)
		if err != nil {
			return withType(err, t)
		}
		le.PutUint64(dst, uint64(p))

	case abi.KindChar:
		c, err := char(v, 0x7F)
		if err != nil {
			return withType(err, t)
		}
		dst[0] = byte(c)

	case abi.KindWChar:
		c, err := char(v, 0xFFFF)
		if err != nil {
			return withType(err, t)
		}
		le.PutUint16(dst, uint16(c))

	case abi.KindStruct:
		raw, err := v.Raw()
		if err != nil {
			return withType(err, t)
		}
		if uint32(len(raw)) != t.Size() {
			return errors.New(errors.PhaseCall, errors.KindInvalidData).
				NativeType(t.String()).
				Detail("struct needs exactly %d bytes, got %d", t.Size(), len(raw)).
				Build()
		}
		copy(dst, raw)

	default:
		return errors.Unsupported(errors.PhaseCall, t.String())
	}
	return nil
}

func withType(err error, t abi.ValueType) error {
	if e, ok := err.(*errors.Error); ok && e.NativeType == "" {
		e.NativeType = t.String()
	}
	return err
}

// cstring returns the address of a NUL-terminated copy. Integers pass
// through as raw pointers. Text lacking a trailing NUL yields the empty
// string rather than an unterminated buffer.
func cstring(v script.Value, arena Arena) (uintptr, error) {
	switch v.Kind() {
	case script.KindNil:
		return 0, nil
	case script.KindInt, script.KindUint:
		u, _ := v.Uint64()
		return uintptr(u), nil
	}
	raw, err := v.Raw()
	if err != nil {
		return 0, err
	}
	if len(raw) == 0 || raw[len(raw)-1] != 0 {
		Logger().Warn("cstr argument is not NUL-terminated, passing empty string",
			zap.Int("len", len(raw)))
		return EmptyCString(), nil
	}
	if arena == nil {
		return 0, errors.New(errors.PhaseCall, errors.KindNotInitialized).Detail("no string arena").Build()
	}
	return arena.Keep(raw), nil
}

// wstring encodes text as NUL-terminated UTF-16. Byte buffers are taken as
// UTF-16LE and must end in a zero unit.
func wstring(v script.Value, arena Arena) (uintptr, error) {
	switch v.Kind() {
	case script.KindNil:
		return 0, nil
	case script.KindInt, script.KindUint:
		u, _ := v.Uint64()
		return uintptr(u), nil
	case script.KindBytes:
		raw, _ := v.Raw()
		n := len(raw)
		if n < 2 || n%2 != 0 || raw[n-1] != 0 || raw[n-2] != 0 {
			Logger().Warn("wstr argument is not NUL-terminated, passing empty string",
				zap.Int("len", n))
			return EmptyCString(), nil
		}
		if arena == nil {
			return 0, errors.New(errors.PhaseCall, errors.KindNotInitialized).Detail("no string arena").Build()
		}
		return arena.Keep(raw), nil
	}
	s, err := v.Text()
	if err != nil {
		return 0, err
	}
	if arena == nil {
		return 0, errors.New(errors.PhaseCall, errors.KindNotInitialized).Detail("no string arena").Build()
	}
	return arena.Keep(EncodeUTF16(s)), nil
}

// EncodeUTF16 returns s as UTF-16LE bytes with a terminating zero unit.
func EncodeUTF16(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 2*len(units)+2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[2*i:], u)
	}
	return out
}

func char(v script.Value, limit rune) (rune, error) {
	switch v.Kind() {
	case script.KindInt, script.KindUint:
		u, _ := v.Uint64()
		return rune(u & uint64(limit)), nil
	}
	s, err := v.Text()
	if err != nil {
		return 0, err
	}
	width := 1
	if limit > 0x7F {
		width = 2
	}
	r := []rune(s)
	if len(r) != 1 || r[0] > limit || (limit == 0xFFFF && utf16.IsSurrogate(r[0])) {
		return 0, errors.New(errors.PhaseCall, errors.KindInvalidData).
			Value(s).
			Detail("expected a single character encodable in %d bytes", width).
			Build()
	}
	return r[0], nil
}

func putInt128(dst []byte, b *big.Int) {
	mod := new(big.Int).Lsh(big.NewInt(1), 128)
	u := new(big.Int).Mod(b, mod)
	var tmp [16]byte
	u.FillBytes(tmp[:])
	for i := 0; i < 16; i++ {
		dst[i] = tmp[15-i]
	}
}

func getInt128(src []byte, signed bool) *big.Int {
	var tmp [16]byte
	for i := 0; i < 16; i++ {
		tmp[i] = src[15-i]
	}
	u := new(big.Int).SetBytes(tmp[:])
	if signed && src[15]&0x80 != 0 {
		u.Sub(u, new(big.Int).Lsh(big.NewInt(1), 128))
	}
	return u
}

// ReadArg decodes a value of type t at src.
func ReadArg(src unsafe.Pointer, t abi.ValueType) (script.Value, error) {
	if t.IsVoid() {
		return script.Nil(), nil
	}
	return read(view(src, t.Size()), t)
}

// ReadReturn decodes a return slot. For indirect structs src is the result buffer.
func ReadReturn(src unsafe.Pointer, t abi.ValueType) (script.Value, error) {
	return ReadArg(src, t)
}

func read(b []byte, t abi.ValueType) (script.Value, error) {
	le := binary.LittleEndian

	switch t.Kind() {
	case abi.KindF32:
		return script.Float(float64(math.Float32frombits(le.Uint32(b)))), nil
	case abi.KindF64:
		return script.Float(math.Float64frombits(le.Uint64(b))), nil
	case abi.KindU8:
		return script.Uint(uint64(b[0])), nil
	case abi.KindU16:
		return script.Uint(uint64(le.Uint16(b))), nil
	case abi.KindU32:
		return script.Uint(uint64(le.Uint32(b))), nil
	case abi.KindU64:
		return script.Uint(le.Uint64(b)), nil
	case abi.KindI8:
		return script.Int(int64(int8(b[0]))), nil
	case abi.KindI16:
		return script.Int(int64(int16(le.Uint16(b)))), nil
	case abi.KindI32:
		return script.Int(int64(int32(le.Uint32(b)))), nil
	case abi.KindI64:
		return script.Int(int64(le.Uint64(b))), nil
	case abi.KindU128:
		return script.BigInt(getInt128(b, false)), nil
	case abi.KindI128:
		return script.BigInt(getInt128(b, true)), nil
	case abi.KindPointer:
		return script.Uint(le.Uint64(b)), nil
	case abi.KindBool:
		return script.Bool(b[0] != 0), nil
	case abi.KindCStr:
		p := uintptr(le.Uint64(b))
		if p == 0 {
			return script.Nil(), nil
		}
		return script.String(ReadCString(p)), nil
	case abi.KindWStr:
		p := uintptr(le.Uint64(b))
		if p == 0 {
			return script.Nil(), nil
		}
		return script.String(ReadWString(p)), nil
	case abi.KindChar:
		return script.String(string(rune(b[0]))), nil
	case abi.KindWChar:
		return script.String(string(utf16.Decode([]uint16{le.Uint16(b)}))), nil
	case abi.KindStruct:
		return script.Bytes(bytes.Clone(b)), nil
	}
	return script.Value{}, errors.Unsupported(errors.PhaseCall, fmt.Sprintf("read %s", t))
}

// ReadCString reads a NUL-terminated string at p.
func ReadCString(p uintptr) string {
	var out []byte
	for i := 0; i < maxStringScan; i++ {
		c := *(*byte)(unsafe.Pointer(p + uintptr(i)))
		if c == 0 {
			break
		}
		out = append(out, c)
	}
	return string(out)
}

// ReadWString reads a NUL-terminated UTF-16 string at p.
func ReadWString(p uintptr) string {
	var units []uint16
	for i := 0; i < maxStringScan; i++ {
		u := *(*uint16)(unsafe.Pointer(p + uintptr(2*i)))
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}
