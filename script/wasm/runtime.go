package wasm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/wippyai/native-runtime/errors"
	"github.com/wippyai/native-runtime/script"
)

// Config configures a Runtime.
type Config struct {
	// MemoryLimitPages caps guest memory in 64KiB pages. 0 keeps the
	// wazero default.
	MemoryLimitPages uint32

	// WASI instantiates wasi_snapshot_preview1 with stdout and stderr
	// attached to the process.
	WASI bool
}

// Runtime is one guest instance.
type Runtime struct {
	mu     sync.Mutex
	rt     wazero.Runtime
	mod    api.Module
	alloc  *allocator
	closed bool
}

// New creates a wazero runtime. Register host modules on Wazero before
// calling Load.
func New(ctx context.Context, cfg Config) (*Runtime, error) {
	rc := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, rc)

	if cfg.WASI {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
			_ = rt.Close(ctx)
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindNotInitialized, err, "instantiate WASI")
		}
	}
	return &Runtime{rt: rt}, nil
}

// Wazero returns the underlying runtime for host module registration.
func (r *Runtime) Wazero() wazero.Runtime { return r.rt }

// Module returns the loaded guest, or nil before Load.
func (r *Runtime) Module() api.Module { return r.mod }

// Load compiles and instantiates the guest. A runtime holds one guest.
func (r *Runtime) Load(ctx context.Context, name string, wasm []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.Closed(errors.PhaseLoad, "script runtime")
	}
	if r.mod != nil {
		return errors.InvalidInput(errors.PhaseLoad, "a guest module is already loaded")
	}

	compiled, err := r.rt.CompileModule(ctx, wasm)
	if err != nil {
		return errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "compile "+name)
	}
	mc := wazero.NewModuleConfig().
		WithName(name).
		WithStdout(os.Stdout).
		WithStderr(os.Stderr).
		WithStartFunctions("_initialize")

	mod, err := r.rt.InstantiateModule(ctx, compiled, mc)
	if err != nil {
		return errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "instantiate "+name)
	}
	r.mod = mod
	r.alloc = newAllocator(mod)
	return nil
}

// Release runs fn with the guest lock released. Host functions call it
// around native code that may fire callbacks into this runtime.
func (r *Runtime) Release(fn func()) {
	r.mu.Unlock()
	defer r.mu.Lock()
	fn()
}

// Function returns the exported guest function name as a callable.
func (r *Runtime) Function(name string) (*Function, error) {
	if r.mod == nil {
		return nil, errors.New(errors.PhaseScript, errors.KindNotInitialized).Detail("no guest loaded").Build()
	}
	def, ok := r.mod.ExportedFunctionDefinitions()[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseScript, "export "+name)
	}
	return &Function{name: name, params: def.ParamTypes(), results: def.ResultTypes()}, nil
}

// Lookup is Function returning a script.Callable.
func (r *Runtime) Lookup(name string) (script.Callable, error) {
	f, err := r.Function(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Functions lists the guest's exported functions sorted by name.
func (r *Runtime) Functions() []*Function {
	if r.mod == nil {
		return nil
	}
	defs := r.mod.ExportedFunctionDefinitions()
	out := make([]*Function, 0, len(defs))
	for name, def := range defs {
		out = append(out, &Function{name: name, params: def.ParamTypes(), results: def.ResultTypes()})
	}
	sortFunctions(out)
	return out
}

// NewContext returns a context sharing the runtime's guest.
func (r *Runtime) NewContext() (script.Context, error) {
	if r.closed {
		return nil, errors.Closed(errors.PhaseScript, "script runtime")
	}
	return &guestContext{r: r}, nil
}

// Call invokes the export name with args.
func (r *Runtime) Call(ctx context.Context, name string, args ...script.Value) (script.Value, error) {
	fn, err := r.Function(name)
	if err != nil {
		return script.Value{}, err
	}
	return r.invoke(ctx, fn, args)
}

func (r *Runtime) invoke(ctx context.Context, fn *Function, args []script.Value) (result script.Value, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return script.Value{}, errors.Closed(errors.PhaseScript, "script runtime")
	}
	if len(args) != len(fn.params) {
		return script.Value{}, errors.Arity(len(fn.params), len(args))
	}

	f := r.mod.ExportedFunction(fn.name)
	if f == nil {
		return script.Value{}, errors.NotFound(errors.PhaseScript, "export "+fn.name)
	}

	var owned []uint32
	defer func() {
		r.alloc.release(ctx, owned)
	}()

	params := make([]uint64, len(args))
	for i, a := range args {
		p, ptr, err := r.lower(ctx, a, fn.params[i])
		if err != nil {
			return script.Value{}, atParam(err, fn.name, i)
		}
		if ptr != 0 {
			owned = append(owned, ptr)
		}
		params[i] = p
	}

	defer func() {
		if p := recover(); p != nil {
			err = errors.ScriptFault(fn.name, fmt.Errorf("panic: %v", p))
		}
	}()

	results, err := f.Call(ctx, params...)
	if err != nil {
		return script.Value{}, errors.ScriptFault(fn.name, err)
	}
	if len(fn.results) == 0 || len(results) == 0 {
		return script.Nil(), nil
	}
	return lift(results[0], fn.results[0]), nil
}

// Close releases the guest and the wazero runtime.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.rt.Close(ctx)
}

// Function is an exported guest function.
type Function struct {
	name    string
	params  []api.ValueType
	results []api.ValueType
}

func (f *Function) Name() string { return f.name }

// Params returns the guest parameter types.
func (f *Function) Params() []api.ValueType { return f.params }

// Results returns the guest result types.
func (f *Function) Results() []api.ValueType { return f.results }

func (f *Function) String() string {
	names := func(ts []api.ValueType) string {
		parts := make([]string, len(ts))
		for i, t := range ts {
			parts[i] = api.ValueTypeName(t)
		}
		return strings.Join(parts, ", ")
	}
	s := f.name + "(" + names(f.params) + ")"
	if len(f.results) > 0 {
		s += " -> " + names(f.results)
	}
	return s
}

type guestContext struct {
	r      *Runtime
	mu     sync.Mutex
	closed bool
}

func (c *guestContext) Invoke(ctx context.Context, fn script.Callable, args []script.Value) (script.Value, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return script.Value{}, errors.Closed(errors.PhaseScript, "context")
	}

	f, ok := fn.(*Function)
	if !ok {
		resolved, err := c.r.Function(fn.Name())
		if err != nil {
			return script.Value{}, err
		}
		f = resolved
	}
	return c.r.invoke(ctx, f, args)
}

func (c *guestContext) Close(context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}
