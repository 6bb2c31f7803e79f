package engine

import (
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/native-runtime/abi"
	"github.com/wippyai/native-runtime/errors"
	"github.com/wippyai/native-runtime/marshal"
	"github.com/wippyai/native-runtime/memory"
	"github.com/wippyai/native-runtime/script"
)

// Alloc maps n zeroed read-write bytes owned by the engine.
func (e *Engine) Alloc(n int) (uintptr, error) {
	if n <= 0 {
		return 0, errors.InvalidInput(errors.PhaseMemory, "allocation size must be positive")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, errors.Closed(errors.PhaseMemory, "engine")
	}
	r, err := memory.Alloc(n, memory.ProtRW)
	if err != nil {
		return 0, err
	}
	e.regions[r.Addr()] = r
	Logger().Debug("memory allocated", zap.Uintptr("addr", r.Addr()), zap.Int("size", r.Size()))
	return r.Addr(), nil
}

// Free releases memory returned by Alloc.
func (e *Engine) Free(addr uintptr) error {
	e.mu.Lock()
	r, ok := e.regions[addr]
	delete(e.regions, addr)
	e.mu.Unlock()
	if !ok {
		return errors.NotFound(errors.PhaseMemory, "allocation")
	}
	return r.Free()
}

// Read copies n bytes at addr.
func (e *Engine) Read(addr uintptr, n int) ([]byte, error) {
	if addr == 0 {
		return nil, errors.InvalidInput(errors.PhaseMemory, "read from null")
	}
	return memory.Read(addr, n), nil
}

// Write copies b to addr, which must be writable.
func (e *Engine) Write(addr uintptr, b []byte) error {
	if addr == 0 {
		return errors.InvalidInput(errors.PhaseMemory, "write to null")
	}
	memory.Write(addr, b)
	return nil
}

// ReadValue decodes a value of type t stored at addr.
func (e *Engine) ReadValue(addr uintptr, t abi.ValueType) (script.Value, error) {
	if addr == 0 {
		return script.Value{}, errors.InvalidInput(errors.PhaseMemory, "read from null")
	}
	return marshal.ReadArg(unsafe.Pointer(addr), t)
}

// WriteValue encodes v as type t at addr. Strings written this way stay
// valid until the engine is closed.
func (e *Engine) WriteValue(addr uintptr, t abi.ValueType, v script.Value) error {
	if addr == 0 {
		return errors.InvalidInput(errors.PhaseMemory, "write to null")
	}
	return marshal.WriteArg(unsafe.Pointer(addr), t, v, e.strings)
}
