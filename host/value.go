package host

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/native-runtime/abi"
	"github.com/wippyai/native-runtime/errors"
	"github.com/wippyai/native-runtime/marshal"
	"github.com/wippyai/native-runtime/script"
)

// slotSize is the width of one argument in a call's args array.
const slotSize = 8

// span splits a buffer slot into its guest pointer (low half) and byte
// length (high half).
func span(u uint64) (ptr, n uint32) { return uint32(u), uint32(u >> 32) }

// decodeArg turns one guest slot into a script value for t. Buffer types
// carry a packed span into guest memory; a zero span means nil.
func decodeArg(mem api.Memory, slot []byte, t abi.ValueType) (script.Value, error) {
	u := binary.LittleEndian.Uint64(slot)

	switch t.Kind() {
	case abi.KindF32, abi.KindF64:
		return script.Float(math.Float64frombits(u)), nil
	case abi.KindI8, abi.KindI16, abi.KindI32, abi.KindI64:
		return script.Int(int64(u)), nil
	case abi.KindBool:
		return script.Bool(u != 0), nil
	case abi.KindU8, abi.KindU16, abi.KindU32, abi.KindU64,
		abi.KindPointer, abi.KindChar, abi.KindWChar:
		return script.Uint(u), nil
	}

	ptr, n := span(u)
	if ptr == 0 && n == 0 {
		return script.Nil(), nil
	}
	b, ok := readGuest(mem, ptr, n)
	if !ok {
		return script.Value{}, errors.New(errors.PhaseCall, errors.KindInvalidData).
			NativeType(t.String()).
			Detail("argument buffer [%#x, +%d) out of guest bounds", ptr, n).
			Build()
	}

	switch t.Kind() {
	case abi.KindCStr:
		if len(b) == 0 || b[len(b)-1] != 0 {
			b = append(b, 0)
		}
		return script.Bytes(b), nil
	case abi.KindWStr:
		return script.String(string(b)), nil
	case abi.KindStruct:
		return script.Bytes(b), nil
	case abi.KindU128, abi.KindI128:
		if len(b) != 16 {
			return script.Value{}, errors.New(errors.PhaseCall, errors.KindInvalidData).
				NativeType(t.String()).
				Detail("128-bit argument needs 16 bytes, got %d", len(b)).
				Build()
		}
		return marshal.ReadArg(unsafe.Pointer(&b[0]), t)
	}
	return script.Value{}, errors.Unsupported(errors.PhaseCall, t.String())
}

// encodeResult renders a native result for the guest. Scalars take 8 bytes,
// 128-bit integers 16 bytes two's complement, text and structs their raw
// bytes. Void and nil produce nothing.
func encodeResult(v script.Value, t abi.ValueType) ([]byte, error) {
	if t.IsVoid() || v.IsNil() {
		return nil, nil
	}
	var out [16]byte

	switch t.Kind() {
	case abi.KindF32, abi.KindF64:
		f, err := v.Float64()
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint64(out[:], math.Float64bits(f))
		return out[:8], nil

	case abi.KindI8, abi.KindI16, abi.KindI32, abi.KindI64:
		i, err := v.Int64()
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint64(out[:], uint64(i))
		return out[:8], nil

	case abi.KindU8, abi.KindU16, abi.KindU32, abi.KindU64, abi.KindPointer:
		u, err := v.Uint64()
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint64(out[:], u)
		return out[:8], nil

	case abi.KindBool:
		b, err := v.Truth()
		if err != nil {
			return nil, err
		}
		if b {
			out[0] = 1
		}
		return out[:8], nil

	case abi.KindU128, abi.KindI128:
		if err := marshal.WriteArg(unsafe.Pointer(&out[0]), t, v, nil); err != nil {
			return nil, err
		}
		return out[:], nil

	case abi.KindCStr, abi.KindWStr, abi.KindChar, abi.KindWChar:
		s, err := v.Text()
		if err != nil {
			return nil, err
		}
		return []byte(s), nil

	case abi.KindStruct:
		return v.Raw()
	}
	return nil, errors.Unsupported(errors.PhaseCall, t.String())
}
