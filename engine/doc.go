// Package engine is the surface scripts use to reach native code.
//
// An Engine creates three kinds of objects and owns all of them:
//
//	NativeCall  - calls a native address with script values
//	Callback    - exposes a script function as a native entry point
//	allocations - engine-owned read-write memory
//
// A Callback can replace one native site at a time: a function entry
// (Hook), an import table cell (HookImport) or a vtable slot (HookVTable).
// Each hook returns a NativeCall that reaches the original code.
//
// Closing a Callback unhooks it before freeing its code. Closing the Engine
// closes callbacks newest first, then any remaining hooks, native calls and
// allocations.
//
// # Example
//
//	eng := engine.New(engine.Options{})
//	defer eng.Close()
//
//	sig, _ := eng.Signature("(u32, u32) -> u32")
//	cb, _ := eng.NewCallback(fn, rt, sig)
//	orig, _ := cb.Hook(target)
package engine
