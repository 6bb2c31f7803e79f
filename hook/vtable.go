package hook

import (
	stderrors "errors"
	"sort"
	"sync"

	"github.com/wippyai/native-runtime/errors"
	"github.com/wippyai/native-runtime/memory"
)

// VTable tracks the altered slots of one table of function pointers.
type VTable struct {
	mu    sync.Mutex
	base  uintptr
	slots map[int]*PointerHook
}

// NewVTable wraps the table whose first slot is at base.
func NewVTable(base uintptr) (*VTable, error) {
	if base == 0 {
		return nil, errors.InvalidInput(errors.PhaseHook, "vtable is null")
	}
	return &VTable{base: base, slots: make(map[int]*PointerHook)}, nil
}

// Base returns the table address.
func (v *VTable) Base() uintptr { return v.base }

// Slot returns the hook handle for slot index. Repeated calls return the
// same handle.
func (v *VTable) Slot(index int) (*PointerHook, error) {
	if index < 0 {
		return nil, errors.InvalidInput(errors.PhaseHook, "negative vtable index")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if h, ok := v.slots[index]; ok {
		return h, nil
	}
	h, err := newPointerHook("vtable", v.base+uintptr(index)*8)
	if err != nil {
		return nil, err
	}
	v.slots[index] = h
	return h, nil
}

// Original returns the pointer slot index held before it was hooked, or
// the current pointer when it is not hooked.
func (v *VTable) Original(index int) (uintptr, bool) {
	v.mu.Lock()
	h, ok := v.slots[index]
	v.mu.Unlock()
	if ok {
		if orig, hooked := h.Original(); hooked {
			return orig, true
		}
	}
	if index < 0 {
		return 0, false
	}
	slot := v.base + uintptr(index)*8
	if memory.Readable(slot, 8) < 8 {
		return 0, false
	}
	return memory.ReadPtr(slot), true
}

// Hooked returns the indexes of slots currently redirected, ascending.
func (v *VTable) Hooked() []int {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []int
	for i, h := range v.slots {
		if h.Hooked() {
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out
}

// Reset restores every hooked slot. Slots that fail to restore are
// reported together and stay hooked.
func (v *VTable) Reset() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	var errs []error
	for _, h := range v.slots {
		if err := h.Unhook(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Close restores all slots and releases the handles.
func (v *VTable) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	var errs []error
	for i, h := range v.slots {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
			continue
		}
		delete(v.slots, i)
	}
	return stderrors.Join(errs...)
}
