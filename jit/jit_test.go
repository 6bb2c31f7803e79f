package jit

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/big"
	"runtime"
	"testing"
	"unsafe"

	"golang.org/x/arch/x86/x86asm"

	"github.com/wippyai/native-runtime/abi"
	"github.com/wippyai/native-runtime/errors"
	"github.com/wippyai/native-runtime/script"
)

func requireNative(t *testing.T) {
	t.Helper()
	if runtime.GOARCH != "amd64" {
		t.Skip("generated code is x86-64")
	}
	if runtime.GOOS != "linux" && runtime.GOOS != "windows" {
		t.Skip("executable memory needs linux or windows")
	}
}

var convs = []abi.Convention{abi.Win64, abi.SysV}

func sig(t *testing.T, text string) *abi.Signature {
	t.Helper()
	s, err := abi.ParseSignature(text)
	if err != nil {
		t.Fatalf("ParseSignature(%q): %v", text, err)
	}
	return s
}

// decodeAll checks that code is a sequence of valid instructions.
func decodeAll(t *testing.T, code []byte) {
	t.Helper()
	for off := 0; off < len(code); {
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil {
			t.Fatalf("offset %d: % x: %v", off, code[off:min(off+8, len(code))], err)
		}
		off += inst.Len
	}
}

func TestBuildStubs_Decode(t *testing.T) {
	sigs := []string{
		"() -> void",
		"(u32, u32) -> u32",
		"(u8, i16, f32, f64, ptr, bool, char, wchar) -> i64",
		"(u64, u64, u64, u64, u64, u64, u64, u64, f64, f64) -> f64",
		"(struct[8], struct[4]) -> struct[2]",
		"(u128, i128, u32) -> u128",
		"(cstr, wstr) -> cstr",
	}
	win64Only := []string{
		"(struct[12], u32, struct[24], u8, struct[3]) -> struct[40]",
	}

	for _, conv := range convs {
		for _, text := range sigs {
			full := fmt.Sprintf("%s @%s", text, conv)
			t.Run(full, func(t *testing.T) {
				s := sig(t, full)
				for _, host := range convs {
					code, err := buildCall(0x1122334455, s, host)
					if err != nil {
						t.Fatalf("buildCall: %v", err)
					}
					decodeAll(t, code)

					code, err = buildCallback(s, 7, 0x5566778899, host)
					if err != nil {
						t.Fatalf("buildCallback: %v", err)
					}
					decodeAll(t, code)
				}
			})
		}
	}
	for _, text := range win64Only {
		s := sig(t, text+" @win64")
		for _, host := range convs {
			code, err := buildCallback(s, 1, 0x1000, host)
			if err != nil {
				t.Fatalf("buildCallback: %v", err)
			}
			decodeAll(t, code)
		}
	}
}

func TestBuildCall_Deterministic(t *testing.T) {
	s := sig(t, "(u32, f64, struct[16], u64, u64) -> u64 @win64")
	a, _ := buildCall(0x1000, s, abi.SysV)
	b, _ := buildCall(0x1000, s, abi.SysV)
	if string(a) != string(b) {
		t.Error("same input produced different code")
	}
}

func TestDispatch_DirectScratch(t *testing.T) {
	s := sig(t, "(u32, u32) -> u32 @sysv")
	rt := script.NewFuncs()
	sctx, _ := rt.NewContext()
	d := &callbackData{
		name: "add",
		sig:  s,
		fn: script.NewFunc("add", func(_ context.Context, args []script.Value) (script.Value, error) {
			a, _ := args[0].Uint64()
			b, _ := args[1].Uint64()
			return script.Uint(a + b), nil
		}),
		sctx:    sctx,
		strings: newStringPool(),
	}
	h := handles.add(d)
	defer handles.remove(h)

	scratch := make([]byte, s.BufferSize())
	*(*uint32)(unsafe.Pointer(&scratch[0])) = 2
	*(*uint32)(unsafe.Pointer(&scratch[4])) = 3
	var ret [16]byte

	if st := dispatch(unsafe.Pointer(&scratch[0]), h, unsafe.Pointer(&ret[0])); st != statusOK {
		t.Fatalf("status: got %d", st)
	}
	if got := *(*uint32)(unsafe.Pointer(&ret[0])); got != 5 {
		t.Errorf("got %d, want 5", got)
	}
	if d.calls.Load() != 1 {
		t.Errorf("calls: got %d", d.calls.Load())
	}
}

func TestDispatch_FaultPolicy(t *testing.T) {
	failing := script.NewFunc("fail", func(context.Context, []script.Value) (script.Value, error) {
		return script.Value{}, fmt.Errorf("boom")
	})

	tests := []struct {
		name   string
		sig    string
		policy FaultPolicy
		status int32
	}{
		{"integer substitutes zero", "() -> u32 @sysv", FaultSubstitute, statusOK},
		{"void substitutes", "() -> void @sysv", FaultSubstitute, statusOK},
		{"pointer traps", "() -> ptr @sysv", FaultSubstitute, statusTrap},
		{"cstr traps", "() -> cstr @sysv", FaultSubstitute, statusTrap},
		{"trap policy", "() -> u32 @sysv", FaultTrap, statusTrap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sctx, _ := script.NewFuncs().NewContext()
			d := &callbackData{name: "fail", sig: sig(t, tt.sig), fn: failing, sctx: sctx, policy: tt.policy, strings: newStringPool()}
			h := handles.add(d)
			defer handles.remove(h)

			ret := [16]byte{0xAA, 0xAA, 0xAA, 0xAA}
			if st := dispatch(nil, h, unsafe.Pointer(&ret[0])); st != tt.status {
				t.Errorf("status: got %d, want %d", st, tt.status)
			}
			if !d.sig.Ret.IsVoid() && ret[0] != 0 {
				t.Errorf("return slot not zeroed: %#x", ret[0])
			}
			if d.faults.Load() != 1 {
				t.Errorf("faults: got %d, want 1", d.faults.Load())
			}
		})
	}
}

func TestDispatch_UnknownHandleTraps(t *testing.T) {
	var ret [16]byte
	if st := dispatch(nil, 1<<40, unsafe.Pointer(&ret[0])); st != statusTrap {
		t.Errorf("status: got %d, want trap", st)
	}
}

// plusOne returns x+1 for the given convention's first integer argument.
func plusOne(t *testing.T, conv abi.Convention) *Stub {
	t.Helper()
	code := []byte{0x48, 0x8D, 0x41, 0x01, 0xC3} // lea rax, [rcx+1]; ret
	if conv == abi.SysV {
		code = []byte{0x48, 0x8D, 0x47, 0x01, 0xC3} // lea rax, [rdi+1]; ret
	}
	s, err := newStub(code, 0)
	if err != nil {
		t.Fatalf("newStub: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNativeCall_PlusOne(t *testing.T) {
	requireNative(t)

	for _, conv := range convs {
		t.Run(conv.String(), func(t *testing.T) {
			fn := plusOne(t, conv)
			call, err := NewNativeCall(fn.Entry(), sig(t, "(u64) -> u64 @"+conv.String()))
			if err != nil {
				t.Fatalf("NewNativeCall: %v", err)
			}
			defer call.Close()

			got, err := call.Call(script.Uint(41))
			if err != nil {
				t.Fatalf("Call: %v", err)
			}
			if !got.Equal(script.Uint(42)) {
				t.Errorf("got %v, want 42", got)
			}
		})
	}
}

func TestNativeCall_Arity(t *testing.T) {
	call, err := NewNativeCall(0x1000, sig(t, "(u32, u32) -> u32"))
	if err != nil {
		t.Fatalf("NewNativeCall: %v", err)
	}
	defer call.Close()

	_, err = call.Call(script.Uint(1))
	if !stderrors.Is(err, errors.ErrArity) {
		t.Errorf("got %v, want arity error", err)
	}
}

func TestNativeCall_MarshalErrorNamesArgument(t *testing.T) {
	requireNative(t)
	fn := plusOne(t, abi.Host())
	call, _ := NewNativeCall(fn.Entry(), sig(t, "(u64) -> u64"))
	defer call.Close()

	_, err := call.Call(script.String("x"))
	var e *errors.Error
	if !stderrors.As(err, &e) {
		t.Fatalf("got %v, want *errors.Error", err)
	}
	if len(e.Path) != 2 || e.Path[1] != "0" {
		t.Errorf("path: got %v", e.Path)
	}
}

func TestNativeCall_Closed(t *testing.T) {
	call, _ := NewNativeCall(0x1000, sig(t, "() -> void"))
	if err := call.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := call.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := call.Call(); !stderrors.Is(err, errors.ErrClosed) {
		t.Errorf("got %v, want closed", err)
	}
}

func newCallback(t *testing.T, text string, fn script.Func) *Callback {
	t.Helper()
	cb, err := CompileCallback(sig(t, text), script.NewFuncs(), script.NewFunc("test", fn), CallbackOptions{})
	if err != nil {
		t.Fatalf("CompileCallback: %v", err)
	}
	t.Cleanup(func() { cb.Close() })
	return cb
}

func callThrough(t *testing.T, cb *Callback, args ...script.Value) script.Value {
	t.Helper()
	call, err := NewNativeCall(cb.Entry(), cb.Signature())
	if err != nil {
		t.Fatalf("NewNativeCall: %v", err)
	}
	defer call.Close()
	got, err := call.Call(args...)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	return got
}

func TestCallback_AddThroughNativeCall(t *testing.T) {
	requireNative(t)

	for _, conv := range convs {
		t.Run(conv.String(), func(t *testing.T) {
			cb := newCallback(t, "(u32, u32) -> u32 @"+conv.String(), func(_ context.Context, args []script.Value) (script.Value, error) {
				a, _ := args[0].Uint64()
				b, _ := args[1].Uint64()
				return script.Uint(a + b), nil
			})
			got := callThrough(t, cb, script.Uint(2), script.Uint(3))
			if !got.Equal(script.Uint(5)) {
				t.Errorf("got %v, want 5", got)
			}
			if cb.Calls() != 1 {
				t.Errorf("calls: got %d, want 1", cb.Calls())
			}
		})
	}
}

func TestCallback_ManyMixedArguments(t *testing.T) {
	requireNative(t)

	text := "(u32, f64, u64, i8, f32, u16, u64, u32, f64, i64, f32, u8, f64, f64, f64, f64, f64, f64, f64) -> f64"
	sum := func(_ context.Context, args []script.Value) (script.Value, error) {
		total := 0.0
		for _, a := range args {
			f, err := a.Float64()
			if err != nil {
				return script.Value{}, err
			}
			total += f
		}
		return script.Float(total), nil
	}

	args := []script.Value{
		script.Uint(1), script.Float(2.5), script.Uint(3), script.Int(-4), script.Float(5.5),
		script.Uint(6), script.Uint(7), script.Uint(8), script.Float(9.25), script.Int(-10),
		script.Float(11.5), script.Uint(12), script.Float(1), script.Float(2), script.Float(3),
		script.Float(4), script.Float(5), script.Float(6), script.Float(7),
	}
	want := 1 + 2.5 + 3 - 4 + 5.5 + 6 + 7 + 8 + 9.25 - 10 + 11.5 + 12 + 1 + 2 + 3 + 4 + 5 + 6 + 7

	for _, conv := range convs {
		t.Run(conv.String(), func(t *testing.T) {
			cb := newCallback(t, text+" @"+conv.String(), sum)
			got := callThrough(t, cb, args...)
			if !got.Equal(script.Float(want)) {
				t.Errorf("got %v, want %v", got, want)
			}
		})
	}
}

func TestCallback_Win64Structs(t *testing.T) {
	requireNative(t)

	// struct[12] by reference in, struct[24] through the hidden result pointer out.
	cb := newCallback(t, "(u8, struct[12], struct[4], u32, struct[12]) -> struct[24] @win64",
		func(_ context.Context, args []script.Value) (script.Value, error) {
			a, _ := args[1].Raw()
			b, _ := args[4].Raw()
			return script.Bytes(append(append([]byte{}, a...), b...)), nil
		})

	a := []byte("abcdefghijkl")
	b := []byte("mnopqrstuvwx")
	got := callThrough(t, cb,
		script.Uint(1), script.Bytes(a), script.Bytes([]byte{1, 2, 3, 4}), script.Uint(9), script.Bytes(b))
	if !got.Equal(script.Bytes([]byte("abcdefghijklmnopqrstuvwx"))) {
		t.Errorf("got %v", got)
	}
}

func TestCallback_WideIntegers(t *testing.T) {
	requireNative(t)

	add := func(_ context.Context, args []script.Value) (script.Value, error) {
		a, _ := args[0].Big()
		b, _ := args[1].Big()
		return script.BigInt(new(big.Int).Add(a, b)), nil
	}
	x := new(big.Int).Lsh(big.NewInt(3), 80)
	y := big.NewInt(-5)
	want := script.BigInt(new(big.Int).Add(x, y))

	for _, conv := range convs {
		t.Run(conv.String(), func(t *testing.T) {
			cb := newCallback(t, "(i128, i128) -> i128 @"+conv.String(), add)
			if got := callThrough(t, cb, script.BigInt(x), script.BigInt(y)); !got.Equal(want) {
				t.Errorf("got %v, want %v", got, want)
			}
		})
	}
}

func TestCallback_Strings(t *testing.T) {
	requireNative(t)

	for _, conv := range convs {
		t.Run(conv.String(), func(t *testing.T) {
			var seen []string
			cb := newCallback(t, "(cstr, wstr) -> cstr @"+conv.String(), func(_ context.Context, args []script.Value) (script.Value, error) {
				a, _ := args[0].Text()
				b, _ := args[1].Text()
				seen = append(seen, a, b)
				return script.String(a + "+" + b + "\x00"), nil
			})

			got := callThrough(t, cb, script.String("left\x00"), script.String("right"))
			if !got.Equal(script.String("left+right")) {
				t.Errorf("got %v", got)
			}
			if len(seen) != 2 || seen[0] != "left" || seen[1] != "right" {
				t.Errorf("callback saw %q", seen)
			}
			if cb.data.strings.Len() != 1 {
				t.Errorf("pooled strings: got %d, want 1", cb.data.strings.Len())
			}
		})
	}
}

func TestCallback_FaultSubstitutesZero(t *testing.T) {
	requireNative(t)

	cb := newCallback(t, "(u32) -> u32", func(context.Context, []script.Value) (script.Value, error) {
		return script.Value{}, fmt.Errorf("script raised")
	})
	if got := callThrough(t, cb, script.Uint(1)); !got.Equal(script.Uint(0)) {
		t.Errorf("got %v, want 0", got)
	}
	if cb.Faults() != 1 {
		t.Errorf("faults: got %d, want 1", cb.Faults())
	}
}

func TestCallback_CloseReleasesHandle(t *testing.T) {
	requireNative(t)

	before := handles.len()
	cb, err := CompileCallback(sig(t, "() -> void"), script.NewFuncs(),
		script.NewFunc("noop", func(context.Context, []script.Value) (script.Value, error) { return script.Nil(), nil }),
		CallbackOptions{Name: "noop"})
	if err != nil {
		t.Fatalf("CompileCallback: %v", err)
	}
	if handles.len() != before+1 {
		t.Errorf("handles: got %d, want %d", handles.len(), before+1)
	}
	if cb.Name() != "noop" || cb.Size() == 0 {
		t.Errorf("name %q size %d", cb.Name(), cb.Size())
	}
	if err := cb.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := cb.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if handles.len() != before {
		t.Errorf("handles after close: got %d, want %d", handles.len(), before)
	}
}

func TestParseFaultPolicy(t *testing.T) {
	for in, want := range map[string]FaultPolicy{"": FaultSubstitute, "substitute": FaultSubstitute, "trap": FaultTrap} {
		got, err := ParseFaultPolicy(in)
		if err != nil || got != want {
			t.Errorf("%q: got %v, %v", in, got, err)
		}
	}
	if _, err := ParseFaultPolicy("ignore"); err == nil {
		t.Error("expected error")
	}
}
