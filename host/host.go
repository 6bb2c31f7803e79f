package host

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/native-runtime/engine"
	"github.com/wippyai/native-runtime/errors"
	"github.com/wippyai/native-runtime/jit"
	"github.com/wippyai/native-runtime/script"
)

// ModuleName is the import module guests use.
const ModuleName = "nms"

// Result codes returned to the guest. Non-negative values are handles,
// lengths or zero for success.
const (
	codeInvalid   int32 = -1
	codeConstruct int32 = -2
	codeCall      int32 = -3
	codeHook      int32 = -4
	codeMemory    int32 = -5
	codeNotFound  int32 = -6
	codeClosed    int32 = -7
	codeScript    int32 = -8
)

// Guest runs script code and can step aside while native code runs.
type Guest interface {
	script.Runtime
	Lookup(name string) (script.Callable, error)
	Release(fn func())
}

// Host exposes an engine to one guest.
type Host struct {
	eng   *engine.Engine
	guest Guest

	mu      sync.Mutex
	next    int32
	objects map[int32]any
	lastErr error
}

// New binds eng to guest.
func New(eng *engine.Engine, guest Guest) *Host {
	return &Host{eng: eng, guest: guest, objects: make(map[int32]any)}
}

// Instantiate registers the nms host module on rt.
func (h *Host) Instantiate(ctx context.Context, rt wazero.Runtime) error {
	i32, i64 := api.ValueTypeI32, api.ValueTypeI64
	b := rt.NewHostModuleBuilder(ModuleName)

	export := func(name string, fn api.GoModuleFunc, params, results []api.ValueType) {
		b.NewFunctionBuilder().WithGoModuleFunction(fn, params, results).Export(name)
	}
	types := func(ts ...api.ValueType) []api.ValueType { return ts }

	export("log", func(_ context.Context, m api.Module, s []uint64) {
		h.log(m.Memory(), api.DecodeI32(s[0]), api.DecodeU32(s[1]), api.DecodeU32(s[2]))
	}, types(i32, i32, i32), nil)

	export("mem_read", func(_ context.Context, m api.Module, s []uint64) {
		s[0] = api.EncodeI32(h.memRead(m.Memory(), uintptr(s[0]), api.DecodeU32(s[1]), api.DecodeU32(s[2])))
	}, types(i64, i32, i32), types(i32))

	export("mem_write", func(_ context.Context, m api.Module, s []uint64) {
		s[0] = api.EncodeI32(h.memWrite(m.Memory(), uintptr(s[0]), api.DecodeU32(s[1]), api.DecodeU32(s[2])))
	}, types(i64, i32, i32), types(i32))

	export("mem_alloc", func(_ context.Context, _ api.Module, s []uint64) {
		s[0] = uint64(h.memAlloc(api.DecodeU32(s[0])))
	}, types(i32), types(i64))

	export("mem_free", func(_ context.Context, _ api.Module, s []uint64) {
		s[0] = api.EncodeI32(h.memFree(uintptr(s[0])))
	}, types(i64), types(i32))

	export("call_new", func(_ context.Context, m api.Module, s []uint64) {
		s[0] = api.EncodeI32(h.callNew(m.Memory(), uintptr(s[0]), api.DecodeU32(s[1]), api.DecodeU32(s[2])))
	}, types(i64, i32, i32), types(i32))

	export("call", func(_ context.Context, m api.Module, s []uint64) {
		s[0] = api.EncodeI32(h.call(m.Memory(), api.DecodeI32(s[0]),
			api.DecodeU32(s[1]), api.DecodeU32(s[2]), api.DecodeU32(s[3]), api.DecodeU32(s[4])))
	}, types(i32, i32, i32, i32, i32), types(i32))

	export("callback_new", func(_ context.Context, m api.Module, s []uint64) {
		s[0] = api.EncodeI32(h.callbackNew(m.Memory(),
			api.DecodeU32(s[0]), api.DecodeU32(s[1]), api.DecodeU32(s[2]), api.DecodeU32(s[3])))
	}, types(i32, i32, i32, i32), types(i32))

	export("callback_addr", func(_ context.Context, _ api.Module, s []uint64) {
		s[0] = uint64(h.callbackAddr(api.DecodeI32(s[0])))
	}, types(i32), types(i64))

	export("hook", func(_ context.Context, _ api.Module, s []uint64) {
		s[0] = api.EncodeI32(h.hook(api.DecodeI32(s[0]), uintptr(s[1])))
	}, types(i32, i64), types(i32))

	export("hook_import", func(_ context.Context, m api.Module, s []uint64) {
		s[0] = api.EncodeI32(h.hookImport(m.Memory(), api.DecodeI32(s[0]),
			api.DecodeU32(s[1]), api.DecodeU32(s[2]), api.DecodeU32(s[3]), api.DecodeU32(s[4])))
	}, types(i32, i32, i32, i32, i32), types(i32))

	export("hook_vtable", func(_ context.Context, _ api.Module, s []uint64) {
		s[0] = api.EncodeI32(h.hookVTable(api.DecodeI32(s[0]), uintptr(s[1]), api.DecodeI32(s[2])))
	}, types(i32, i64, i32), types(i32))

	export("unhook", func(_ context.Context, _ api.Module, s []uint64) {
		s[0] = api.EncodeI32(h.unhook(api.DecodeI32(s[0])))
	}, types(i32), types(i32))

	export("close", func(_ context.Context, _ api.Module, s []uint64) {
		s[0] = api.EncodeI32(h.close(api.DecodeI32(s[0])))
	}, types(i32), types(i32))

	export("last_error", func(_ context.Context, m api.Module, s []uint64) {
		s[0] = api.EncodeI32(h.lastError(m.Memory(), api.DecodeU32(s[0]), api.DecodeU32(s[1])))
	}, types(i32, i32), types(i32))

	if _, err := b.Instantiate(ctx); err != nil {
		return errors.Wrap(errors.PhaseLoad, errors.KindNotInitialized, err, "instantiate host module "+ModuleName)
	}
	return nil
}

func (h *Host) add(obj any) int32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	h.objects[h.next] = obj
	return h.next
}

func (h *Host) get(handle int32) (any, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, ok := h.objects[handle]
	return obj, ok
}

func (h *Host) remove(handle int32) {
	h.mu.Lock()
	delete(h.objects, handle)
	h.mu.Unlock()
}

// Len returns the number of live handles.
func (h *Host) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.objects)
}

func (h *Host) nativeCall(handle int32) (*jit.NativeCall, bool) {
	obj, ok := h.get(handle)
	if !ok {
		return nil, false
	}
	c, ok := obj.(*jit.NativeCall)
	return c, ok
}

func (h *Host) callback(handle int32) (*engine.Callback, bool) {
	obj, ok := h.get(handle)
	if !ok {
		return nil, false
	}
	c, ok := obj.(*engine.Callback)
	return c, ok
}

// fail records err for last_error and maps it to a result code.
func (h *Host) fail(op string, err error) int32 {
	h.mu.Lock()
	h.lastErr = err
	h.mu.Unlock()
	Logger().Debug("host call failed", zap.String("op", op), zap.Error(err))
	return code(err)
}

func (h *Host) invalid(op, detail string) int32 {
	return h.fail(op, errors.InvalidInput(errors.PhaseCall, detail))
}

func code(err error) int32 {
	var e *errors.Error
	if !stderrors.As(err, &e) {
		return codeInvalid
	}
	switch e.Kind {
	case errors.KindConstruction:
		return codeConstruct
	case errors.KindArity, errors.KindTypeMismatch, errors.KindOverflow, errors.KindCodegen:
		return codeCall
	case errors.KindAlreadyHooked, errors.KindProtection:
		return codeHook
	case errors.KindAllocation:
		return codeMemory
	case errors.KindNotFound:
		return codeNotFound
	case errors.KindClosed:
		return codeClosed
	case errors.KindScriptFault:
		return codeScript
	}
	return codeInvalid
}

// Close releases every handle. Engine objects are closed by the engine.
func (h *Host) Close() {
	h.mu.Lock()
	h.objects = make(map[int32]any)
	h.mu.Unlock()
}
