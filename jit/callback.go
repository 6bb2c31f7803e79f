package jit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/native-runtime/abi"
	"github.com/wippyai/native-runtime/errors"
	"github.com/wippyai/native-runtime/marshal"
	"github.com/wippyai/native-runtime/script"
)

// FaultPolicy decides what a callback does when its script callable fails.
type FaultPolicy uint8

const (
	// FaultSubstitute logs the failure and returns the zero value when
	// that is a valid return; it traps otherwise.
	FaultSubstitute FaultPolicy = iota
	// FaultTrap logs the failure and always traps.
	FaultTrap
)

// ParseFaultPolicy accepts "substitute" and "trap".
func ParseFaultPolicy(s string) (FaultPolicy, error) {
	switch s {
	case "", "substitute":
		return FaultSubstitute, nil
	case "trap":
		return FaultTrap, nil
	}
	return 0, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("unknown fault policy %q", s))
}

func (p FaultPolicy) String() string {
	if p == FaultTrap {
		return "trap"
	}
	return "substitute"
}

const (
	statusOK   = 0
	statusTrap = 1
)

// callbackData is everything the bridge needs for one callback. It lives in
// the handle table; generated code only embeds the handle.
type callbackData struct {
	name    string
	sig     *abi.Signature
	fn      script.Callable
	sctx    script.Context
	policy  FaultPolicy
	strings *stringPool
	calls   atomic.Uint64
	faults  atomic.Uint64
}

// handleTable maps stub handles to callback data. It is the only
// process-wide table: the bridge is one C symbol shared by every stub.
type handleTable struct {
	mu      sync.RWMutex
	next    uintptr
	entries map[uintptr]*callbackData
}

var handles = &handleTable{next: 1, entries: make(map[uintptr]*callbackData)}

func (t *handleTable) add(d *callbackData) uintptr {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.next
	t.next++
	t.entries[h] = d
	return h
}

func (t *handleTable) get(h uintptr) *callbackData {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.entries[h]
}

func (t *handleTable) remove(h uintptr) {
	t.mu.Lock()
	delete(t.entries, h)
	t.mu.Unlock()
}

func (t *handleTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// dispatch runs on the native thread that called the stub. It decodes the
// scratch buffer, invokes the callable and writes the return slot. A
// non-zero status makes the stub trap.
func dispatch(scratch unsafe.Pointer, handle uintptr, ret unsafe.Pointer) (status int32) {
	d := handles.get(handle)
	if d == nil {
		Logger().Error("callback invoked after close", zap.Uintptr("handle", handle))
		return statusTrap
	}
	d.calls.Add(1)

	defer func() {
		if r := recover(); r != nil {
			status = d.fail(ret, fmt.Errorf("panic: %v", r))
		}
	}()

	args := make([]script.Value, len(d.sig.Args))
	if layout := d.sig.Layout(); layout != nil {
		for i, t := range d.sig.Args {
			v, err := marshal.ReadArg(unsafe.Add(scratch, layout.Offsets[i]), t)
			if err != nil {
				return d.fail(ret, err)
			}
			args[i] = v
		}
	}

	res, err := d.sctx.Invoke(context.Background(), d.fn, args)
	if err != nil {
		return d.fail(ret, err)
	}
	if err := marshal.WriteReturn(ret, d.sig.Ret, res, d.strings); err != nil {
		return d.fail(ret, err)
	}
	return statusOK
}

func (d *callbackData) fail(ret unsafe.Pointer, cause error) int32 {
	d.faults.Add(1)
	err := errors.ScriptFault(d.name, cause)
	safe := marshal.WriteDefault(ret, d.sig.Ret)
	if d.policy == FaultTrap || !safe {
		Logger().Error("callback failed with no safe return value, trapping",
			zap.String("callback", d.name),
			zap.Stringer("sig", d.sig),
			zap.Error(err))
		return statusTrap
	}
	Logger().Error("callback failed, returning zero value",
		zap.String("callback", d.name),
		zap.Stringer("sig", d.sig),
		zap.Error(err))
	return statusOK
}

// CallbackOptions configures CompileCallback.
type CallbackOptions struct {
	Name   string
	Policy FaultPolicy
}

// Callback is a native entry point that dispatches into a script callable.
type Callback struct {
	handle uintptr
	stub   *Stub
	data   *callbackData
	once   sync.Once
	err    error
}

// CompileCallback builds a native function with signature sig whose body
// invokes fn on a fresh execution context of rt.
func CompileCallback(sig *abi.Signature, rt script.Runtime, fn script.Callable, opts CallbackOptions) (*Callback, error) {
	sctx, err := rt.NewContext()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseScript, errors.KindNotInitialized, err, "create execution context")
	}

	name := opts.Name
	if name == "" {
		name = fn.Name()
	}
	d := &callbackData{
		name:    name,
		sig:     sig,
		fn:      fn,
		sctx:    sctx,
		policy:  opts.Policy,
		strings: newStringPool(),
	}
	h := handles.add(d)

	code, err := buildCallback(sig, h, bridgeAddr(), abi.Host())
	if err == nil {
		var stub *Stub
		stub, err = newStub(code, 0)
		if err == nil {
			Logger().Debug("compiled callback stub",
				zap.String("callback", name),
				zap.Stringer("sig", sig),
				zap.Uintptr("entry", stub.Entry()),
				zap.Int("size", stub.Size()))
			return &Callback{handle: h, stub: stub, data: d}, nil
		}
	}

	handles.remove(h)
	_ = sctx.Close(context.Background())
	return nil, err
}

// Entry returns the native function pointer.
func (c *Callback) Entry() uintptr { return c.stub.Entry() }

// Size returns the generated code size.
func (c *Callback) Size() int { return c.stub.Size() }

// Signature returns the callback's signature.
func (c *Callback) Signature() *abi.Signature { return c.data.sig }

// Name returns the callback's name.
func (c *Callback) Name() string { return c.data.name }

// Calls returns how many times native code entered the callback.
func (c *Callback) Calls() uint64 { return c.data.calls.Load() }

// Faults returns how many invocations failed.
func (c *Callback) Faults() uint64 { return c.data.faults.Load() }

// Close removes the handle, frees the code and returned strings, and
// closes the execution context. Native code must no longer call Entry.
func (c *Callback) Close() error {
	c.once.Do(func() {
		handles.remove(c.handle)
		err := c.stub.Close()
		c.data.strings.free()
		if cerr := c.data.sctx.Close(context.Background()); err == nil {
			err = cerr
		}
		c.err = err
	})
	return c.err
}
