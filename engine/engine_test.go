package engine

import (
	"context"
	stderrors "errors"
	"runtime"
	"testing"

	"github.com/wippyai/native-runtime/abi"
	"github.com/wippyai/native-runtime/errors"
	"github.com/wippyai/native-runtime/imports"
	"github.com/wippyai/native-runtime/jit"
	"github.com/wippyai/native-runtime/memory"
	"github.com/wippyai/native-runtime/script"
)

func requireNative(t *testing.T) {
	t.Helper()
	if runtime.GOARCH != "amd64" || (runtime.GOOS != "linux" && runtime.GOOS != "windows") {
		t.Skip("needs x86-64 linux or windows")
	}
}

// plusOne emits a host-convention f(x) = x + 1 padded with relocatable
// nops so any jump form fits.
func plusOne(t *testing.T) uintptr {
	t.Helper()
	reg := byte(0x47)
	if abi.Host() == abi.Win64 {
		reg = 0x41
	}
	code := []byte{
		0x0F, 0x1F, 0x44, 0x00, 0x00,
		0x0F, 0x1F, 0x44, 0x00, 0x00,
		0x0F, 0x1F, 0x44, 0x00, 0x00,
		0x48, 0x8D, reg, 0x01,
		0xC3,
	}
	region, err := memory.Alloc(len(code), memory.ProtRW)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	t.Cleanup(func() { region.Free() })
	memory.Write(region.Addr(), code)
	if _, err := memory.Protect(region.Addr(), region.Size(), memory.ProtRX); err != nil {
		t.Fatalf("Protect: %v", err)
	}
	return region.Addr()
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(Options{})
	t.Cleanup(func() { e.Close() })
	return e
}

func mustSig(t *testing.T, e *Engine, text string) *abi.Signature {
	t.Helper()
	s, err := e.Signature(text)
	if err != nil {
		t.Fatalf("Signature(%q): %v", text, err)
	}
	return s
}

func call(t *testing.T, c *jit.NativeCall, args ...script.Value) uint64 {
	t.Helper()
	v, err := c.Call(args...)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	u, _ := v.Uint64()
	return u
}

func TestEngine_SignatureDefaultConvention(t *testing.T) {
	e := New(Options{Conv: abi.Win64})
	defer e.Close()

	s, err := e.Signature("(u32) -> u32")
	if err != nil {
		t.Fatalf("Signature: %v", err)
	}
	if s.Conv != abi.Win64 {
		t.Errorf("Conv: got %v, want win64", s.Conv)
	}
	s, _ = e.Signature("(u32) -> u32 @sysv")
	if s.Conv != abi.SysV {
		t.Errorf("explicit Conv: got %v, want sysv", s.Conv)
	}
	if _, err := e.Signature("(void) -> u32"); !stderrors.Is(err, errors.ErrConstruction) {
		t.Errorf("void arg: got %v", err)
	}
}

// incrementer returns a script function computing orig(x) + 1, where orig
// is set once the hook is installed.
func incrementer(orig **jit.NativeCall) *script.GoFunc {
	return script.NewFunc("inc", func(_ context.Context, args []script.Value) (script.Value, error) {
		x, _ := args[0].Uint64()
		v, err := (*orig).Call(script.Uint(x))
		if err != nil {
			return script.Value{}, err
		}
		y, _ := v.Uint64()
		return script.Uint(y + 1), nil
	})
}

func TestCallback_HookFunction(t *testing.T) {
	requireNative(t)
	e := newEngine(t)
	sig := mustSig(t, e, "(u64) -> u64")

	f := plusOne(t)
	direct, err := e.NewNativeCall(f, sig)
	if err != nil {
		t.Fatalf("NewNativeCall: %v", err)
	}
	if got := call(t, direct, script.Uint(5)); got != 6 {
		t.Fatalf("f(5) = %d, want 6", got)
	}

	var orig *jit.NativeCall
	cb, err := e.NewCallback(incrementer(&orig), script.NewFuncs(), sig)
	if err != nil {
		t.Fatalf("NewCallback: %v", err)
	}

	orig, err = cb.Hook(f)
	if err != nil {
		t.Fatalf("Hook: %v", err)
	}
	if got := call(t, direct, script.Uint(5)); got != 7 {
		t.Errorf("hooked f(5) = %d, want 7", got)
	}
	if got := call(t, orig, script.Uint(5)); got != 6 {
		t.Errorf("original(5) = %d, want 6", got)
	}
	if cb.Calls() != 1 {
		t.Errorf("calls: got %d, want 1", cb.Calls())
	}

	if _, err := cb.Hook(f); !stderrors.Is(err, errors.ErrAlreadyHooked) {
		t.Errorf("second Hook: got %v", err)
	}

	if err := cb.Unhook(); err != nil {
		t.Fatalf("Unhook: %v", err)
	}
	if err := cb.Unhook(); err != nil {
		t.Errorf("second Unhook: %v", err)
	}
	if got := call(t, direct, script.Uint(5)); got != 6 {
		t.Errorf("unhooked f(5) = %d, want 6", got)
	}
	if cb.Hooked() {
		t.Error("Hooked() after Unhook")
	}
}

func TestCallback_RehookReleasesTrampolines(t *testing.T) {
	requireNative(t)
	e := newEngine(t)
	sig := mustSig(t, e, "(u64) -> u64")
	f := plusOne(t)

	var orig *jit.NativeCall
	cb, _ := e.NewCallback(incrementer(&orig), script.NewFuncs(), sig)

	base := len(e.calls)
	for i := 0; i < 5; i++ {
		var err error
		if orig, err = cb.Hook(f); err != nil {
			t.Fatalf("Hook %d: %v", i, err)
		}
		if len(e.calls) != base+1 {
			t.Fatalf("hooked round %d: tracking %d calls, want %d", i, len(e.calls), base+1)
		}
		if err := cb.Unhook(); err != nil {
			t.Fatalf("Unhook %d: %v", i, err)
		}
		if len(e.calls) != base {
			t.Fatalf("unhooked round %d: tracking %d calls, want %d", i, len(e.calls), base)
		}
	}
}

func TestCallback_SiteTakenByAnotherCallback(t *testing.T) {
	requireNative(t)
	e := newEngine(t)
	sig := mustSig(t, e, "(u64) -> u64")
	f := plusOne(t)

	var origA, origB *jit.NativeCall
	a, _ := e.NewCallback(incrementer(&origA), script.NewFuncs(), sig)
	b, _ := e.NewCallback(incrementer(&origB), script.NewFuncs(), sig)

	var err error
	if origA, err = a.Hook(f); err != nil {
		t.Fatalf("Hook a: %v", err)
	}
	if _, err := b.Hook(f); !stderrors.Is(err, errors.ErrAlreadyHooked) {
		t.Errorf("Hook b: got %v, want already hooked", err)
	}
	if b.Hooked() {
		t.Error("b reports hooked after failure")
	}
}

func TestCallback_CloseUnhooks(t *testing.T) {
	requireNative(t)
	e := newEngine(t)
	sig := mustSig(t, e, "(u64) -> u64")
	f := plusOne(t)
	before := memory.Read(f, 20)

	var orig *jit.NativeCall
	cb, _ := e.NewCallback(incrementer(&orig), script.NewFuncs(), sig)
	orig, _ = cb.Hook(f)

	if err := cb.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if string(memory.Read(f, 20)) != string(before) {
		t.Error("target not restored by Close")
	}
	if _, err := cb.Hook(f); !stderrors.Is(err, errors.ErrClosed) {
		t.Errorf("Hook after Close: got %v", err)
	}
}

// table allocates n pointer cells through the engine, filled with vals.
func table(t *testing.T, e *Engine, vals ...uintptr) uintptr {
	t.Helper()
	base, err := e.Alloc(8 * len(vals))
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	for i, v := range vals {
		memory.WritePtr(base+uintptr(8*i), v)
	}
	return base
}

func TestCallback_HookImportCell(t *testing.T) {
	requireNative(t)
	e := newEngine(t)
	sig := mustSig(t, e, "(u64) -> u64")
	f := plusOne(t)
	cell := table(t, e, f)

	var orig *jit.NativeCall
	cb, _ := e.NewCallback(incrementer(&orig), script.NewFuncs(), sig)

	var err error
	orig, err = cb.HookImport(imports.Symbol{Name: "plus_one", Cell: cell})
	if err != nil {
		t.Fatalf("HookImport: %v", err)
	}
	if got := memory.ReadPtr(cell); got != cb.Addr() {
		t.Fatalf("cell: got %#x, want callback %#x", got, cb.Addr())
	}
	if orig.Target() != f {
		t.Errorf("original target: got %#x, want %#x", orig.Target(), f)
	}

	through, _ := e.NewNativeCall(memory.ReadPtr(cell), sig)
	if got := call(t, through, script.Uint(1)); got != 3 {
		t.Errorf("through cell: got %d, want 3", got)
	}

	if err := cb.Unhook(); err != nil {
		t.Fatalf("Unhook: %v", err)
	}
	if got := memory.ReadPtr(cell); got != f {
		t.Errorf("cell after unhook: got %#x, want %#x", got, f)
	}
}

func TestCallback_HookVTable(t *testing.T) {
	requireNative(t)
	e := newEngine(t)
	sig := mustSig(t, e, "(u64) -> u64")
	f := plusOne(t)
	vt := table(t, e, 0x1234, f, 0x5678)

	var orig *jit.NativeCall
	cb, _ := e.NewCallback(incrementer(&orig), script.NewFuncs(), sig)

	var err error
	if orig, err = cb.HookVTable(vt, 1); err != nil {
		t.Fatalf("HookVTable: %v", err)
	}
	if got := memory.ReadPtr(vt + 8); got != cb.Addr() {
		t.Errorf("slot 1: got %#x", got)
	}

	if err := e.ResetVTable(vt); err != nil {
		t.Fatalf("ResetVTable: %v", err)
	}
	if got := memory.ReadPtr(vt + 8); got != f {
		t.Errorf("slot 1 after reset: got %#x", got)
	}

	// The callback still owns the slot record; unhooking is harmless.
	if err := cb.Unhook(); err != nil {
		t.Errorf("Unhook after reset: %v", err)
	}
	if _, err := cb.HookVTable(vt, 1); err != nil {
		t.Errorf("re-hook slot: %v", err)
	}
}

func TestEngine_CloseRestoresEverything(t *testing.T) {
	requireNative(t)
	e := New(Options{})
	sig := mustSig(t, e, "(u64) -> u64")
	f := plusOne(t)
	before := memory.Read(f, 20)

	g := plusOne(t)
	cell, _ := e.Alloc(8)
	memory.WritePtr(cell, g)

	var o1, o2 *jit.NativeCall
	c1, _ := e.NewCallback(incrementer(&o1), script.NewFuncs(), sig)
	c2, _ := e.NewCallback(incrementer(&o2), script.NewFuncs(), sig)
	o1, _ = c1.Hook(f)
	o2, _ = c2.HookImport(imports.Symbol{Cell: cell})
	if memory.ReadPtr(cell) != c2.Addr() {
		t.Fatal("import not hooked")
	}

	if err := c2.Unhook(); err != nil {
		t.Fatalf("Unhook: %v", err)
	}
	if got := memory.ReadPtr(cell); got != g {
		t.Errorf("cell: got %#x, want %#x", got, g)
	}

	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if string(memory.Read(f, 20)) != string(before) {
		t.Error("jump patch not restored by engine Close")
	}
	if _, err := e.NewNativeCall(f, sig); !stderrors.Is(err, errors.ErrClosed) {
		t.Errorf("NewNativeCall after Close: got %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestEngine_MemoryHelpers(t *testing.T) {
	requireNative(t)
	e := newEngine(t)

	addr, err := e.Alloc(64)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	tests := []struct {
		name string
		typ  abi.ValueType
		in   script.Value
		want script.Value
	}{
		{"u32", abi.U32, script.Uint(0xDEADBEEF), script.Uint(0xDEADBEEF)},
		{"i16 truncates", abi.I16, script.Int(0x12345), script.Int(0x2345)},
		{"f64", abi.F64, script.Float(2.25), script.Float(2.25)},
		{"cstr", abi.CStr, script.String("hello\x00"), script.String("hello")},
		{"struct", abi.MustStruct(4), script.Bytes([]byte{1, 2, 3, 4}), script.Bytes([]byte{1, 2, 3, 4})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := e.WriteValue(addr, tt.typ, tt.in); err != nil {
				t.Fatalf("WriteValue: %v", err)
			}
			got, err := e.ReadValue(addr, tt.typ)
			if err != nil {
				t.Fatalf("ReadValue: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if err := e.Write(addr, []byte("raw")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if b, _ := e.Read(addr, 3); string(b) != "raw" {
		t.Errorf("Read: got %q", b)
	}
	if _, err := e.Read(0, 1); err == nil {
		t.Error("expected error reading null")
	}
	if err := e.Free(addr); err != nil {
		t.Errorf("Free: %v", err)
	}
	if err := e.Free(addr); err == nil {
		t.Error("expected error freeing twice")
	}
	if _, err := e.Alloc(0); err == nil {
		t.Error("expected error for zero allocation")
	}
}
