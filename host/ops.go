package host

import (
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/native-runtime/engine"
	"github.com/wippyai/native-runtime/errors"
	"github.com/wippyai/native-runtime/imports"
	"github.com/wippyai/native-runtime/jit"
	"github.com/wippyai/native-runtime/script"
)

func readGuest(mem api.Memory, ptr, n uint32) ([]byte, bool) {
	if mem == nil {
		return nil, false
	}
	b, ok := mem.Read(ptr, n)
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b...), true
}

func readText(mem api.Memory, ptr, n uint32) (string, bool) {
	b, ok := readGuest(mem, ptr, n)
	return string(b), ok
}

// log writes a guest message at level 0 debug, 1 info, 2 warn, 3+ error.
func (h *Host) log(mem api.Memory, level int32, ptr, n uint32) {
	msg, ok := readText(mem, ptr, n)
	if !ok {
		return
	}
	l := Logger().Named("guest")
	switch {
	case level <= 0:
		l.Debug(msg)
	case level == 1:
		l.Info(msg)
	case level == 2:
		l.Warn(msg)
	default:
		l.Error(msg)
	}
}

// memRead copies n native bytes at addr into guest memory at dst.
func (h *Host) memRead(mem api.Memory, addr uintptr, dst, n uint32) int32 {
	b, err := h.eng.Read(addr, int(n))
	if err != nil {
		return h.fail("mem_read", err)
	}
	if !mem.Write(dst, b) {
		return h.invalid("mem_read", "guest buffer out of bounds")
	}
	return int32(n)
}

// memWrite copies n guest bytes at src to native memory at addr.
func (h *Host) memWrite(mem api.Memory, addr uintptr, src, n uint32) int32 {
	b, ok := readGuest(mem, src, n)
	if !ok {
		return h.invalid("mem_write", "guest buffer out of bounds")
	}
	if err := h.eng.Write(addr, b); err != nil {
		return h.fail("mem_write", err)
	}
	return int32(n)
}

func (h *Host) memAlloc(n uint32) uintptr {
	addr, err := h.eng.Alloc(int(n))
	if err != nil {
		h.fail("mem_alloc", err)
		return 0
	}
	return addr
}

func (h *Host) memFree(addr uintptr) int32 {
	if err := h.eng.Free(addr); err != nil {
		return h.fail("mem_free", err)
	}
	return 0
}

// callNew creates a native call to addr with the signature text at
// sigPtr and returns its handle.
func (h *Host) callNew(mem api.Memory, addr uintptr, sigPtr, sigLen uint32) int32 {
	text, ok := readText(mem, sigPtr, sigLen)
	if !ok {
		return h.invalid("call_new", "signature out of bounds")
	}
	sig, err := h.eng.Signature(text)
	if err != nil {
		return h.fail("call_new", err)
	}
	c, err := h.eng.NewNativeCall(addr, sig)
	if err != nil {
		return h.fail("call_new", err)
	}
	return h.add(c)
}

// call invokes the native call handle with nargs 8-byte slots at argsPtr
// and writes the result to ret. It returns the full result length, which
// may exceed retCap when the result was truncated.
func (h *Host) call(mem api.Memory, handle int32, argsPtr, nargs, retPtr, retCap uint32) int32 {
	c, ok := h.nativeCall(handle)
	if !ok {
		return h.invalid("call", "unknown call handle")
	}
	sig := c.Signature()
	if int(nargs) != len(sig.Args) {
		return h.fail("call", errors.Arity(len(sig.Args), int(nargs)))
	}

	raw, ok := readGuest(mem, argsPtr, nargs*slotSize)
	if !ok {
		return h.invalid("call", "arguments out of bounds")
	}
	args := make([]script.Value, nargs)
	for i, t := range sig.Args {
		v, err := decodeArg(mem, raw[i*slotSize:], t)
		if err != nil {
			return h.fail("call", err)
		}
		args[i] = v
	}

	var (
		result script.Value
		err    error
	)
	h.guest.Release(func() {
		result, err = c.Call(args...)
	})
	if err != nil {
		return h.fail("call", err)
	}

	out, err := encodeResult(result, sig.Ret)
	if err != nil {
		return h.fail("call", err)
	}
	n := uint32(len(out))
	if n > retCap {
		n = retCap
	}
	if n > 0 && !mem.Write(retPtr, out[:n]) {
		return h.invalid("call", "result buffer out of bounds")
	}
	return int32(len(out))
}

// callbackNew exposes the guest export named at namePtr as a native
// function with the signature text at sigPtr.
func (h *Host) callbackNew(mem api.Memory, namePtr, nameLen, sigPtr, sigLen uint32) int32 {
	name, ok := readText(mem, namePtr, nameLen)
	if !ok {
		return h.invalid("callback_new", "name out of bounds")
	}
	text, ok := readText(mem, sigPtr, sigLen)
	if !ok {
		return h.invalid("callback_new", "signature out of bounds")
	}
	sig, err := h.eng.Signature(text)
	if err != nil {
		return h.fail("callback_new", err)
	}
	fn, err := h.guest.Lookup(name)
	if err != nil {
		return h.fail("callback_new", err)
	}
	cb, err := h.eng.NewCallback(fn, h.guest, sig)
	if err != nil {
		return h.fail("callback_new", err)
	}
	Logger().Debug("guest callback created", zap.String("name", name), zap.Uintptr("entry", cb.Addr()))
	return h.add(cb)
}

func (h *Host) callbackAddr(handle int32) uintptr {
	cb, ok := h.callback(handle)
	if !ok {
		h.invalid("callback_addr", "unknown callback handle")
		return 0
	}
	return cb.Addr()
}

// hook redirects target to the callback and returns a call handle for the
// original function.
func (h *Host) hook(handle int32, target uintptr) int32 {
	cb, ok := h.callback(handle)
	if !ok {
		return h.invalid("hook", "unknown callback handle")
	}
	orig, err := cb.Hook(target)
	if err != nil {
		return h.fail("hook", err)
	}
	return h.add(orig)
}

// hookImport redirects the import of symbol by module. An empty module
// selects the main executable.
func (h *Host) hookImport(mem api.Memory, handle int32, modPtr, modLen, symPtr, symLen uint32) int32 {
	cb, ok := h.callback(handle)
	if !ok {
		return h.invalid("hook_import", "unknown callback handle")
	}
	module, ok := readText(mem, modPtr, modLen)
	if !ok {
		return h.invalid("hook_import", "module name out of bounds")
	}
	name, ok := readText(mem, symPtr, symLen)
	if !ok {
		return h.invalid("hook_import", "symbol name out of bounds")
	}
	sym, err := imports.FindImport(module, imports.ByName(name))
	if err != nil {
		return h.fail("hook_import", err)
	}
	orig, err := cb.HookImport(sym)
	if err != nil {
		return h.fail("hook_import", err)
	}
	return h.add(orig)
}

func (h *Host) hookVTable(handle int32, table uintptr, index int32) int32 {
	cb, ok := h.callback(handle)
	if !ok {
		return h.invalid("hook_vtable", "unknown callback handle")
	}
	orig, err := cb.HookVTable(table, int(index))
	if err != nil {
		return h.fail("hook_vtable", err)
	}
	return h.add(orig)
}

func (h *Host) unhook(handle int32) int32 {
	cb, ok := h.callback(handle)
	if !ok {
		return h.invalid("unhook", "unknown callback handle")
	}
	if err := cb.Unhook(); err != nil {
		return h.fail("unhook", err)
	}
	return 0
}

// close releases a call or callback handle.
func (h *Host) close(handle int32) int32 {
	obj, ok := h.get(handle)
	if !ok {
		return h.invalid("close", "unknown handle")
	}
	var err error
	switch o := obj.(type) {
	case *jit.NativeCall:
		err = o.Close()
	case *engine.Callback:
		err = o.Close()
	}
	h.remove(handle)
	if err != nil {
		return h.fail("close", err)
	}
	return 0
}

// lastError copies the most recent failure message into the guest buffer
// and returns its full length.
func (h *Host) lastError(mem api.Memory, ptr, capacity uint32) int32 {
	h.mu.Lock()
	err := h.lastErr
	h.mu.Unlock()
	if err == nil {
		return 0
	}
	msg := []byte(err.Error())
	n := uint32(len(msg))
	if n > capacity {
		n = capacity
	}
	if n > 0 && !mem.Write(ptr, msg[:n]) {
		return codeInvalid
	}
	return int32(len(msg))
}
