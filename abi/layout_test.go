package abi

import (
	stderrors "errors"
	"reflect"
	"testing"

	"github.com/wippyai/native-runtime/errors"
)

func TestNewLayout(t *testing.T) {
	tests := []struct {
		name    string
		args    []ValueType
		offsets []uint32
		size    uint32
		align   uint32
	}{
		{
			name:    "single u32",
			args:    []ValueType{U32},
			offsets: []uint32{0},
			size:    4,
			align:   4,
		},
		{
			name:    "u8 then u64",
			args:    []ValueType{U8, U64},
			offsets: []uint32{0, 8},
			size:    16,
			align:   8,
		},
		{
			name:    "u64 then u8 padded",
			args:    []ValueType{U64, U8},
			offsets: []uint32{0, 8},
			size:    16,
			align:   8,
		},
		{
			name:    "mixed small",
			args:    []ValueType{Bool, WChar, U32, Char},
			offsets: []uint32{0, 2, 4, 8},
			size:    12,
			align:   4,
		},
		{
			name:    "indirect struct floor 16",
			args:    []ValueType{U8, MustStruct(12)},
			offsets: []uint32{0, 16},
			size:    32,
			align:   16,
		},
		{
			name:    "odd struct is indirect",
			args:    []ValueType{MustStruct(3), U16},
			offsets: []uint32{0, 4},
			size:    16,
			align:   16,
		},
		{
			name:    "u128 alignment",
			args:    []ValueType{U32, I128},
			offsets: []uint32{0, 16},
			size:    32,
			align:   16,
		},
		{
			name:    "strings and pointers",
			args:    []ValueType{CStr, WStr, Pointer, F32},
			offsets: []uint32{0, 8, 16, 24},
			size:    32,
			align:   8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLayout(tt.args)
			if l == nil {
				t.Fatal("layout is nil")
			}
			if !reflect.DeepEqual(l.Offsets, tt.offsets) {
				t.Errorf("offsets: got %v, want %v", l.Offsets, tt.offsets)
			}
			if l.Size != tt.size {
				t.Errorf("size: got %d, want %d", l.Size, tt.size)
			}
			if l.Align != tt.align {
				t.Errorf("align: got %d, want %d", l.Align, tt.align)
			}
		})
	}
}

func TestNewLayout_Empty(t *testing.T) {
	if l := NewLayout(nil); l != nil {
		t.Errorf("got %+v, want nil", l)
	}
}

func TestNewLayout_Deterministic(t *testing.T) {
	args := []ValueType{U8, MustStruct(24), F64, I16, CStr, MustStruct(8), U128}
	first := NewLayout(args)
	for i := 0; i < 10; i++ {
		again := NewLayout(args)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d: got %+v, want %+v", i, again, first)
		}
	}
}

func TestNewLayout_OffsetsIncreaseAndAlign(t *testing.T) {
	args := []ValueType{Char, U64, MustStruct(5), F32, Bool, MustStruct(2), I128}
	l := NewLayout(args)
	for i, off := range l.Offsets {
		if off%args[i].Align() != 0 {
			t.Errorf("arg %d: offset %d not aligned to %d", i, off, args[i].Align())
		}
		if i > 0 && off <= l.Offsets[i-1] {
			t.Errorf("arg %d: offset %d not after %d", i, off, l.Offsets[i-1])
		}
	}
	if l.Size%l.Align != 0 {
		t.Errorf("size %d not padded to align %d", l.Size, l.Align)
	}
}

func TestStruct_Indirection(t *testing.T) {
	for n := uint32(1); n <= 64; n++ {
		st := MustStruct(n)
		want := n > 8 || !IsPow2(n)
		if st.IsIndirect() != want {
			t.Errorf("struct[%d]: indirect = %v, want %v", n, st.IsIndirect(), want)
		}
		if want && st.Align() < 16 {
			t.Errorf("struct[%d]: align %d below 16", n, st.Align())
		}
	}
}

func TestStruct_PointerWidthIsDirect(t *testing.T) {
	st := MustStruct(8)
	if st.IsIndirect() {
		t.Fatal("struct[8] must be direct")
	}
	if st.Align() != 8 {
		t.Errorf("align: got %d, want 8", st.Align())
	}

	sig := MustSignature([]ValueType{st}, st, Win64)
	if loc := sig.Location(0); loc.ByRef || loc.Class != ClassInt {
		t.Errorf("win64 arg location = %+v, want direct int register", loc)
	}
	if sig.RetClass() != ClassInt {
		t.Errorf("win64 ret class = %v, want ClassInt", sig.RetClass())
	}

	st9 := MustStruct(9)
	sig9 := MustSignature([]ValueType{st9}, Void, Win64)
	if !sig9.Location(0).ByRef {
		t.Error("struct[9] must be passed by reference")
	}
}

func TestStruct_Size(t *testing.T) {
	tests := []struct {
		n       uint32
		wantErr bool
	}{
		{0, true},
		{1, false},
		{MaxStructSize, false},
		{MaxStructSize + 1, true},
		{1<<31 + 1, true},
		{3000000000, true},
		{1<<32 - 1, true},
	}
	for _, tt := range tests {
		_, err := Struct(tt.n)
		if (err != nil) != tt.wantErr {
			t.Errorf("Struct(%d): err = %v, wantErr %v", tt.n, err, tt.wantErr)
		}
		if err != nil && !stderrors.Is(err, errors.ErrConstruction) {
			t.Errorf("Struct(%d): got %v, want construction error", tt.n, err)
		}
	}
}

func TestParseSignature_OversizedStruct(t *testing.T) {
	for _, text := range []string{
		"(struct[3000000000]) -> void",
		"() -> struct[2147483649]",
		"(struct[1073741824], struct[1073741824]) -> void @win64",
	} {
		if _, err := ParseSignature(text); !stderrors.Is(err, errors.ErrConstruction) {
			t.Errorf("%q: got %v, want construction error", text, err)
		}
	}
}

func TestAlignment_Primitives(t *testing.T) {
	for _, vt := range []ValueType{F32, F64, U8, U16, U32, U64, U128, I8, I16, I32, I64, I128, Pointer, Bool, CStr, WStr, Char, WChar} {
		if vt.Align() != NextPow2(vt.Size()) {
			t.Errorf("%s: align %d, want %d", vt, vt.Align(), NextPow2(vt.Size()))
		}
	}
}

func TestNextPow2(t *testing.T) {
	tests := []struct{ in, want uint32 }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {5, 8}, {8, 8}, {9, 16}, {17, 32},
		{1 << 30, 1 << 30}, {1 << 31, 1 << 31},
		{1<<31 + 1, 0}, {1<<32 - 1, 0},
	}
	for _, tt := range tests {
		if got := NextPow2(tt.in); got != tt.want {
			t.Errorf("NextPow2(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
