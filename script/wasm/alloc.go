package wasm

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/native-runtime/errors"
)

// allocator copies host data into guest memory through the guest's own
// allocation exports.
type allocator struct {
	mem     api.Memory
	realloc api.Function // cabi_realloc(old, old_size, align, new_size)
	malloc  api.Function // malloc(size) or alloc(size)
	free    api.Function
}

func newAllocator(mod api.Module) *allocator {
	a := &allocator{mem: mod.Memory()}
	if f := mod.ExportedFunction("cabi_realloc"); f != nil {
		a.realloc = f
	}
	for _, name := range []string{"malloc", "alloc"} {
		if f := mod.ExportedFunction(name); f != nil {
			a.malloc = f
			break
		}
	}
	for _, name := range []string{"free", "dealloc"} {
		if f := mod.ExportedFunction(name); f != nil && len(f.Definition().ParamTypes()) == 1 {
			a.free = f
			break
		}
	}
	return a
}

// copyIn stores b followed by a NUL byte and returns the guest address.
func (a *allocator) copyIn(ctx context.Context, b []byte) (uint32, error) {
	if a == nil || a.mem == nil || (a.realloc == nil && a.malloc == nil) {
		return 0, errors.New(errors.PhaseScript, errors.KindNotInitialized).
			Detail("guest exports no allocator for text arguments").
			Build()
	}
	size := uint64(len(b) + 1)

	var (
		res []uint64
		err error
	)
	if a.malloc != nil {
		res, err = a.malloc.Call(ctx, size)
	} else {
		res, err = a.realloc.Call(ctx, 0, 0, 1, size)
	}
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseScript, int(size), err)
	}
	ptr := api.DecodeU32(res[0])
	if ptr == 0 {
		return 0, errors.AllocationFailed(errors.PhaseScript, int(size), nil)
	}

	buf := make([]byte, size)
	copy(buf, b)
	if !a.mem.Write(ptr, buf) {
		return 0, errors.New(errors.PhaseScript, errors.KindInvalidData).
			Detail("guest allocation %#x+%d out of bounds", ptr, size).
			Build()
	}
	return ptr, nil
}

// release frees pointers from copyIn when the guest exports a free.
func (a *allocator) release(ctx context.Context, ptrs []uint32) {
	if a == nil || a.free == nil {
		return
	}
	for _, p := range ptrs {
		_, _ = a.free.Call(ctx, api.EncodeU32(p))
	}
}
