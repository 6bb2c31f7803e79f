package jit

/*
#include <stdlib.h>
#include <string.h>
*/
import "C"

import (
	"sync"
	"unsafe"
)

// cBuffer is zeroed C heap memory, safe to hand to native code.
type cBuffer struct {
	ptr  unsafe.Pointer
	size int
}

func newCBuffer(size int) *cBuffer {
	if size < 1 {
		size = 1
	}
	return &cBuffer{ptr: C.calloc(C.size_t(size), 1), size: size}
}

func (b *cBuffer) clear() {
	C.memset(b.ptr, 0, C.size_t(b.size))
}

func (b *cBuffer) free() {
	if b.ptr != nil {
		C.free(b.ptr)
		b.ptr = nil
	}
}

// callArena holds argument strings for the duration of one outbound call.
type callArena struct {
	ptrs []unsafe.Pointer
}

func (a *callArena) Keep(b []byte) uintptr {
	p := C.CBytes(b)
	a.ptrs = append(a.ptrs, p)
	return uintptr(p)
}

func (a *callArena) reset() {
	for _, p := range a.ptrs {
		C.free(p)
	}
	a.ptrs = a.ptrs[:0]
}

// stringPool keeps strings returned from callbacks alive until the callback
// is closed. Identical contents share one copy.
type stringPool struct {
	mu   sync.Mutex
	ptrs map[string]unsafe.Pointer
}

func newStringPool() *stringPool {
	return &stringPool{ptrs: make(map[string]unsafe.Pointer)}
}

func (p *stringPool) Keep(b []byte) uintptr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ptr, ok := p.ptrs[string(b)]; ok {
		return uintptr(ptr)
	}
	ptr := C.CBytes(b)
	p.ptrs[string(b)] = ptr
	return uintptr(ptr)
}

func (p *stringPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ptrs)
}

func (p *stringPool) free() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, ptr := range p.ptrs {
		C.free(ptr)
		delete(p.ptrs, k)
	}
}
