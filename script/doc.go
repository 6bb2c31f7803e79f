// Package script defines the boundary between native code and a scripting
// layer: a closed Value union with checked conversions, and the Runtime,
// Context and Callable interfaces a script backend implements.
//
// Two backends exist: Funcs (Go functions, used by tests and embedders)
// and script/wasm (WebAssembly modules on wazero).
//
//	rt := script.NewFuncs()
//	add := script.NewFunc("add", func(_ context.Context, args []script.Value) (script.Value, error) {
//		a, _ := args[0].Uint64()
//		b, _ := args[1].Uint64()
//		return script.Uint(a + b), nil
//	})
//	sctx, _ := rt.NewContext()
//	v, err := sctx.Invoke(ctx, add, []script.Value{script.Uint(2), script.Uint(3)})
package script
