package marshal

import (
	"sync"
	"unsafe"
)

// Arena keeps native copies of string data alive while native code may
// read them. Implementations return the address of a stable copy of b.
type Arena interface {
	Keep(b []byte) uintptr
}

// HeapArena keeps copies in Go memory until Reset.
type HeapArena struct {
	mu   sync.Mutex
	bufs [][]byte
}

// Keep stores a copy of b and returns its address.
func (a *HeapArena) Keep(b []byte) uintptr {
	c := make([]byte, len(b))
	copy(c, b)
	a.mu.Lock()
	a.bufs = append(a.bufs, c)
	a.mu.Unlock()
	if len(c) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&c[0]))
}

// Reset drops all copies.
func (a *HeapArena) Reset() {
	a.mu.Lock()
	a.bufs = nil
	a.mu.Unlock()
}

// Len returns the number of live copies.
func (a *HeapArena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.bufs)
}

var emptyCStr = [2]byte{}

// EmptyCString is the address of a static empty C (and wide) string.
func EmptyCString() uintptr {
	return uintptr(unsafe.Pointer(&emptyCStr[0]))
}
