package host

import (
	"bytes"
	"encoding/binary"
	"math"
	"math/big"
	"testing"

	"github.com/wippyai/native-runtime/abi"
	"github.com/wippyai/native-runtime/script"
)

func slot(u uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], u)
	return b[:]
}

func spanSlot(ptr, n uint32) []byte { return slot(uint64(n)<<32 | uint64(ptr)) }

func TestDecodeArg(t *testing.T) {
	mem := guestMemory(t)
	mem.WriteString(100, "abc")
	mem.WriteString(200, "nul\x00")
	mem.Write(300, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})
	wide := make([]byte, 16)
	for i := range wide {
		wide[i] = 0xFF
	}
	mem.Write(400, wide)

	tests := []struct {
		name string
		slot []byte
		t    abi.ValueType
		want script.Value
	}{
		{"f64", slot(math.Float64bits(2.5)), abi.F64, script.Float(2.5)},
		{"f32 travels as f64", slot(math.Float64bits(-1)), abi.F32, script.Float(-1)},
		{"i32 negative", slot(uint64(0xFFFFFFFFFFFFFFFF)), abi.I32, script.Int(-1)},
		{"u64", slot(7), abi.U64, script.Uint(7)},
		{"pointer", slot(0xdead), abi.Pointer, script.Uint(0xdead)},
		{"bool", slot(2), abi.Bool, script.Bool(true)},
		{"char", slot('x'), abi.Char, script.Uint('x')},
		{"cstr gains terminator", spanSlot(100, 3), abi.CStr, script.Bytes([]byte("abc\x00"))},
		{"cstr keeps terminator", spanSlot(200, 4), abi.CStr, script.Bytes([]byte("nul\x00"))},
		{"cstr null", spanSlot(0, 0), abi.CStr, script.Nil()},
		{"wstr", spanSlot(100, 3), abi.WStr, script.String("abc")},
		{"struct", spanSlot(300, 12), abi.MustStruct(12), script.Bytes([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})},
		{"i128", spanSlot(400, 16), abi.I128, script.BigInt(big.NewInt(-1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeArg(mem, tt.slot, tt.t)
			if err != nil {
				t.Fatalf("decodeArg: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeArg_Errors(t *testing.T) {
	mem := guestMemory(t)
	tests := []struct {
		name string
		slot []byte
		t    abi.ValueType
	}{
		{"out of bounds", spanSlot(1<<20, 4), abi.CStr},
		{"short 128-bit", spanSlot(0, 8), abi.U128},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeArg(mem, tt.slot, tt.t); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestEncodeResult(t *testing.T) {
	minusOne := make([]byte, 16)
	for i := range minusOne {
		minusOne[i] = 0xFF
	}
	tests := []struct {
		name string
		v    script.Value
		t    abi.ValueType
		want []byte
	}{
		{"void", script.Nil(), abi.Void, nil},
		{"nil string", script.Nil(), abi.CStr, nil},
		{"i32", script.Int(-2), abi.I32, slot(uint64(0xFFFFFFFFFFFFFFFE))},
		{"u8", script.Uint(200), abi.U8, slot(200)},
		{"f64", script.Float(1.5), abi.F64, slot(math.Float64bits(1.5))},
		{"bool", script.Bool(true), abi.Bool, slot(1)},
		{"i128", script.BigInt(big.NewInt(-1)), abi.I128, minusOne},
		{"cstr", script.String("hey"), abi.CStr, []byte("hey")},
		{"struct", script.Bytes([]byte{9, 8}), abi.MustStruct(2), []byte{9, 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodeResult(tt.v, tt.t)
			if err != nil {
				t.Fatalf("encodeResult: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("got %x, want %x", got, tt.want)
			}
		})
	}
}
