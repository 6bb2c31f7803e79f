package engine

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/native-runtime/abi"
	"github.com/wippyai/native-runtime/errors"
	"github.com/wippyai/native-runtime/hook"
	"github.com/wippyai/native-runtime/imports"
	"github.com/wippyai/native-runtime/jit"
)

// Callback is a script function callable from native code. It can replace
// one native site at a time.
type Callback struct {
	engine *Engine
	cb     *jit.Callback

	mu     sync.Mutex
	site   hook.Hook
	owned  bool // site is closed with the hook, not shared with a VTable
	tramp  *jit.NativeCall
	closed bool
}

// Addr returns the native entry point.
func (c *Callback) Addr() uintptr { return c.cb.Entry() }

// Size returns the generated code size.
func (c *Callback) Size() int { return c.cb.Size() }

// Signature returns the callback signature.
func (c *Callback) Signature() *abi.Signature { return c.cb.Signature() }

// Name returns the script function name.
func (c *Callback) Name() string { return c.cb.Name() }

// Calls returns how many times native code entered the callback.
func (c *Callback) Calls() uint64 { return c.cb.Calls() }

// Faults returns how many invocations failed.
func (c *Callback) Faults() uint64 { return c.cb.Faults() }

// Hooked reports whether the callback currently replaces a site.
func (c *Callback) Hooked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.site != nil
}

// Hook redirects the function at target to this callback and returns a
// proxy that calls the original through a trampoline.
func (c *Callback) Hook(target uintptr) (*jit.NativeCall, error) {
	p, err := hook.NewJumpPatch(target)
	if err != nil {
		return nil, err
	}
	p.SetAbsolute(c.engine.opts.AbsoluteJumps)
	return c.install(p, true)
}

// HookImport redirects the import cell of sym to this callback and returns
// a proxy that calls the previously bound function.
func (c *Callback) HookImport(sym imports.Symbol) (*jit.NativeCall, error) {
	h, err := hook.NewImportEntry(sym.Cell)
	if err != nil {
		return nil, err
	}
	return c.install(h, true)
}

// HookVTable redirects slot index of the table at base to this callback.
func (c *Callback) HookVTable(base uintptr, index int) (*jit.NativeCall, error) {
	vt, err := c.engine.vtable(base)
	if err != nil {
		return nil, err
	}
	slot, err := vt.Slot(index)
	if err != nil {
		return nil, err
	}
	return c.install(slot, false)
}

func (c *Callback) install(h hook.Hook, owned bool) (*jit.NativeCall, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	release := func() {
		if owned {
			_ = h.Close()
		}
	}
	if c.closed {
		release()
		return nil, errors.Closed(errors.PhaseHook, "callback")
	}
	if c.site != nil {
		release()
		return nil, errors.AlreadyHooked(c.site.Site())
	}

	if err := c.engine.hooks.Install(h, c.cb.Entry()); err != nil {
		release()
		return nil, err
	}

	orig, ok := h.Original()
	if !ok {
		_ = c.engine.hooks.Remove(h.Site())
		release()
		return nil, errors.New(errors.PhaseHook, errors.KindNotInitialized).
			Detail("hook at %#x has no original", h.Site()).
			Build()
	}

	c.engine.mu.Lock()
	tramp, err := c.engine.newCall(orig, c.cb.Signature())
	c.engine.mu.Unlock()
	if err != nil {
		_ = c.engine.hooks.Remove(h.Site())
		release()
		return nil, err
	}

	c.site, c.owned, c.tramp = h, owned, tramp
	Logger().Info("callback hooked",
		zap.String("callback", c.cb.Name()),
		zap.Uintptr("site", h.Site()),
		zap.Uintptr("original", orig))
	return tramp, nil
}

// Unhook restores the hooked site. The trampoline proxy is closed. It is a
// no-op when nothing is hooked.
func (c *Callback) Unhook() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unhook()
}

func (c *Callback) unhook() error {
	if c.site == nil {
		return nil
	}
	site := c.site.Site()
	if err := c.engine.hooks.Remove(site); err != nil {
		return err
	}
	if c.owned {
		if err := c.site.Close(); err != nil {
			return err
		}
	}
	_ = c.tramp.Close()
	c.engine.dropCall(c.tramp)
	c.site, c.tramp = nil, nil
	Logger().Info("callback unhooked", zap.String("callback", c.cb.Name()), zap.Uintptr("site", site))
	return nil
}

// Close unhooks, then frees the callback code. Native code must no longer
// call Addr.
func (c *Callback) Close() error {
	err := c.close()
	c.engine.forget(c)
	return err
}

func (c *Callback) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	if err := c.unhook(); err != nil {
		return err
	}
	c.closed = true
	return c.cb.Close()
}
