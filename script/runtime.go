package script

import (
	"context"
	"fmt"
	"sync"

	"github.com/wippyai/native-runtime/errors"
)

// Callable is a script function handle owned by a Runtime.
type Callable interface {
	Name() string
}

// Runtime creates execution contexts.
type Runtime interface {
	NewContext() (Context, error)
}

// Context is one logical view of a runtime. Calls through a Context are
// serialized; a Context may be used from any goroutine.
type Context interface {
	Invoke(ctx context.Context, fn Callable, args []Value) (Value, error)
	Close(ctx context.Context) error
}

// Func is the Go signature of an in-process script function.
type Func func(ctx context.Context, args []Value) (Value, error)

// GoFunc is a Callable backed by a Go function.
type GoFunc struct {
	name string
	fn   Func
}

// NewFunc wraps fn as a named Callable.
func NewFunc(name string, fn Func) *GoFunc {
	return &GoFunc{name: name, fn: fn}
}

func (f *GoFunc) Name() string { return f.name }

// Funcs is a Runtime whose callables are Go functions.
type Funcs struct{}

// NewFuncs returns a Go function runtime.
func NewFuncs() *Funcs { return &Funcs{} }

// NewContext returns a fresh, independently locked context.
func (r *Funcs) NewContext() (Context, error) {
	return &funcContext{}, nil
}

type funcContext struct {
	mu     sync.Mutex
	closed bool
}

func (c *funcContext) Invoke(ctx context.Context, fn Callable, args []Value) (result Value, err error) {
	gf, ok := fn.(*GoFunc)
	if !ok {
		return Value{}, errors.InvalidInput(errors.PhaseScript, fmt.Sprintf("callable %T does not belong to this runtime", fn))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Value{}, errors.Closed(errors.PhaseScript, "context")
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.ScriptFault(gf.name, fmt.Errorf("panic: %v", r))
		}
	}()

	result, err = gf.fn(ctx, args)
	if err != nil {
		return Value{}, errors.ScriptFault(gf.name, err)
	}
	return result, nil
}

func (c *funcContext) Close(context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}
