package hook

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/native-runtime/errors"
	"github.com/wippyai/native-runtime/memory"
)

// PointerHook redirects calls made through one pointer cell, such as an
// import table entry or a virtual table slot.
type PointerHook struct {
	mu     sync.Mutex
	kind   string
	cell   uintptr
	orig   uintptr
	hooked bool
	closed bool
}

// NewImportEntry prepares a hook on an import table cell.
func NewImportEntry(cell uintptr) (*PointerHook, error) {
	return newPointerHook("import", cell)
}

func newPointerHook(kind string, cell uintptr) (*PointerHook, error) {
	if cell == 0 {
		return nil, errors.InvalidInput(errors.PhaseHook, kind+" cell is null")
	}
	if cell%8 != 0 {
		return nil, errors.InvalidInput(errors.PhaseHook, kind+" cell is not pointer aligned")
	}
	return &PointerHook{kind: kind, cell: cell}, nil
}

// Site returns the cell address.
func (h *PointerHook) Site() uintptr { return h.cell }

// Hook stores replacement in the cell and remembers the previous pointer.
func (h *PointerHook) Hook(replacement uintptr) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return errors.Closed(errors.PhaseHook, h.kind+" hook")
	}
	if h.hooked {
		return errors.AlreadyHooked(h.cell)
	}
	if replacement == 0 {
		return errors.InvalidInput(errors.PhaseHook, "replacement is null")
	}

	prev, err := memory.PatchPtr(h.cell, replacement)
	if err != nil {
		return err
	}
	h.orig = prev
	h.hooked = true

	Logger().Debug("pointer hook installed",
		zap.String("kind", h.kind),
		zap.Uintptr("cell", h.cell),
		zap.Uintptr("original", prev),
		zap.Uintptr("replacement", replacement))
	return nil
}

// Unhook writes the remembered pointer back.
func (h *PointerHook) Unhook() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unhook()
}

func (h *PointerHook) unhook() error {
	if !h.hooked {
		return nil
	}
	if _, err := memory.PatchPtr(h.cell, h.orig); err != nil {
		return err
	}
	h.hooked = false
	Logger().Debug("pointer hook removed", zap.String("kind", h.kind), zap.Uintptr("cell", h.cell))
	return nil
}

// Original returns the pointer the cell held before Hook.
func (h *PointerHook) Original() (uintptr, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.hooked {
		return 0, false
	}
	return h.orig, true
}

// Hooked reports whether the cell holds the replacement.
func (h *PointerHook) Hooked() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hooked
}

// Close restores the cell. Later Hook calls fail.
func (h *PointerHook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	if err := h.unhook(); err != nil {
		return err
	}
	h.closed = true
	return nil
}
