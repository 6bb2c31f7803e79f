package jit

import (
	"strconv"
	"sync"
	"unsafe"

	"github.com/wippyai/native-runtime/abi"
	"github.com/wippyai/native-runtime/errors"
	"github.com/wippyai/native-runtime/marshal"
	"github.com/wippyai/native-runtime/script"
)

// NativeCall invokes a native function with script values. It owns one
// argument buffer and one return slot; concurrent calls are serialized.
type NativeCall struct {
	mu     sync.Mutex
	target uintptr
	sig    *abi.Signature
	stub   *Stub
	args   *cBuffer
	ret    *cBuffer
	arena  callArena
	closed bool
}

// NewNativeCall prepares a call to target. The stub is compiled on first use.
func NewNativeCall(target uintptr, sig *abi.Signature) (*NativeCall, error) {
	if target == 0 {
		return nil, errors.Construction("native call target is null")
	}
	retSize := marshal.SlotSize
	if sig.Ret.IsIndirect() && int(sig.Ret.Size()) > retSize {
		retSize = int(sig.Ret.Size())
	}
	return &NativeCall{
		target: target,
		sig:    sig,
		args:   newCBuffer(int(sig.BufferSize())),
		ret:    newCBuffer(retSize),
	}, nil
}

// Target returns the called address.
func (c *NativeCall) Target() uintptr { return c.target }

// Signature returns the call signature.
func (c *NativeCall) Signature() *abi.Signature { return c.sig }

// Compile builds the stub now instead of on the first call.
func (c *NativeCall) Compile() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compile()
}

func (c *NativeCall) compile() error {
	if c.closed {
		return errors.Closed(errors.PhaseCall, "native call")
	}
	if c.stub != nil {
		return nil
	}
	stub, err := CompileCall(c.target, c.sig)
	if err != nil {
		return err
	}
	c.stub = stub
	return nil
}

// Call marshals args, invokes the target and decodes its return value.
// Marshaling errors abort only this call.
func (c *NativeCall) Call(args ...script.Value) (script.Value, error) {
	if len(args) != len(c.sig.Args) {
		return script.Value{}, errors.Arity(len(c.sig.Args), len(args))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.compile(); err != nil {
		return script.Value{}, err
	}
	defer c.arena.reset()

	c.args.clear()
	if layout := c.sig.Layout(); layout != nil {
		for i, t := range c.sig.Args {
			if err := marshal.WriteArg(unsafe.Add(c.args.ptr, layout.Offsets[i]), t, args[i], &c.arena); err != nil {
				return script.Value{}, atArg(err, i)
			}
		}
	}
	c.ret.clear()

	invoke(c.stub.Entry(), c.args.ptr, c.ret.ptr)

	if c.sig.Ret.IsVoid() {
		return script.Nil(), nil
	}
	return marshal.ReadReturn(c.ret.ptr, c.sig.Ret)
}

func atArg(err error, i int) error {
	if e, ok := err.(*errors.Error); ok && len(e.Path) == 0 {
		e.Path = []string{"args", strconv.Itoa(i)}
	}
	return err
}

// Close frees the stub and buffers.
func (c *NativeCall) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	var err error
	if c.stub != nil {
		err = c.stub.Close()
	}
	c.args.free()
	c.ret.free()
	return err
}
