package engine

import (
	stderrors "errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/native-runtime/abi"
	"github.com/wippyai/native-runtime/errors"
	"github.com/wippyai/native-runtime/hook"
	"github.com/wippyai/native-runtime/jit"
	"github.com/wippyai/native-runtime/marshal"
	"github.com/wippyai/native-runtime/memory"
	"github.com/wippyai/native-runtime/script"
)

// Options configures an Engine.
type Options struct {
	// Policy decides what a failing callback returns to native code.
	Policy jit.FaultPolicy

	// Conv applies to signature text without an explicit convention.
	// Zero selects the host convention.
	Conv abi.Convention

	// AbsoluteJumps disables near relays for jump patches.
	AbsoluteJumps bool
}

// Engine owns every native call, callback, hook and allocation created
// through it and releases them on Close.
type Engine struct {
	mu        sync.Mutex
	opts      Options
	hooks     *hook.Registry
	vtables   map[uintptr]*hook.VTable
	calls     []*jit.NativeCall
	callbacks []*Callback
	regions   map[uintptr]*memory.Region
	strings   *marshal.HeapArena
	closed    bool
}

// New creates an engine.
func New(opts Options) *Engine {
	if opts.Conv == 0 {
		opts.Conv = abi.Host()
	}
	return &Engine{
		opts:    opts,
		hooks:   hook.NewRegistry(),
		vtables: make(map[uintptr]*hook.VTable),
		regions: make(map[uintptr]*memory.Region),
		strings: &marshal.HeapArena{},
	}
}

// Options returns the engine configuration.
func (e *Engine) Options() Options { return e.opts }

// Signature parses text, applying the default convention when the text
// names none.
func (e *Engine) Signature(text string) (*abi.Signature, error) {
	if !strings.Contains(text, "@") {
		text += " @" + e.opts.Conv.String()
	}
	return abi.ParseSignature(text)
}

// NewNativeCall returns a proxy that calls addr with sig.
func (e *Engine) NewNativeCall(addr uintptr, sig *abi.Signature) (*jit.NativeCall, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errors.Closed(errors.PhaseCall, "engine")
	}
	return e.newCall(addr, sig)
}

func (e *Engine) newCall(addr uintptr, sig *abi.Signature) (*jit.NativeCall, error) {
	call, err := jit.NewNativeCall(addr, sig)
	if err != nil {
		return nil, err
	}
	if err := call.Compile(); err != nil {
		_ = call.Close()
		return nil, err
	}
	e.calls = append(e.calls, call)
	Logger().Debug("native call created",
		zap.Uintptr("target", addr),
		zap.Stringer("signature", sig))
	return call, nil
}

// NewCallback exposes fn from rt as a native function with sig.
func (e *Engine) NewCallback(fn script.Callable, rt script.Runtime, sig *abi.Signature) (*Callback, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errors.Closed(errors.PhaseCodegen, "engine")
	}

	cb, err := jit.CompileCallback(sig, rt, fn, jit.CallbackOptions{Name: fn.Name(), Policy: e.opts.Policy})
	if err != nil {
		return nil, err
	}
	c := &Callback{engine: e, cb: cb}
	e.callbacks = append(e.callbacks, c)
	Logger().Debug("callback created",
		zap.String("name", fn.Name()),
		zap.Uintptr("entry", cb.Entry()),
		zap.Stringer("signature", sig))
	return c, nil
}

func (e *Engine) vtable(base uintptr) (*hook.VTable, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if vt, ok := e.vtables[base]; ok {
		return vt, nil
	}
	vt, err := hook.NewVTable(base)
	if err != nil {
		return nil, err
	}
	e.vtables[base] = vt
	return vt, nil
}

// ResetVTable restores every slot of the table at base hooked through
// this engine.
func (e *Engine) ResetVTable(base uintptr) error {
	e.mu.Lock()
	vt, ok := e.vtables[base]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	return vt.Reset()
}

func (e *Engine) forget(c *Callback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, other := range e.callbacks {
		if other == c {
			e.callbacks = append(e.callbacks[:i], e.callbacks[i+1:]...)
			return
		}
	}
}

// dropCall stops tracking a call closed by its owner.
func (e *Engine) dropCall(call *jit.NativeCall) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, other := range e.calls {
		if other == call {
			e.calls = append(e.calls[:i], e.calls[i+1:]...)
			return
		}
	}
}

// Close tears down in reverse dependency order: callbacks (unhooking
// first), remaining hooks, vtables, native calls, then allocations.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	callbacks := e.callbacks
	e.callbacks = nil
	e.mu.Unlock()

	var errs []error
	for i := len(callbacks) - 1; i >= 0; i-- {
		if err := callbacks[i].close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.hooks.CloseAll(); err != nil {
		errs = append(errs, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for base, vt := range e.vtables {
		if err := vt.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(e.vtables, base)
	}
	for i := len(e.calls) - 1; i >= 0; i-- {
		if err := e.calls[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.calls = nil
	for addr, r := range e.regions {
		if err := r.Free(); err != nil {
			errs = append(errs, err)
		}
		delete(e.regions, addr)
	}
	e.strings.Reset()

	Logger().Debug("engine closed", zap.Int("errors", len(errs)))
	return stderrors.Join(errs...)
}
