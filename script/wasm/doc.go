// Package wasm runs WebAssembly modules as script runtimes.
//
// A Runtime wraps one wazero runtime and one guest instance. Exported guest
// functions are script callables. Guest execution is serialized by a
// runtime-wide lock; host functions that enter native code release it with
// Release so callbacks fired from that native code can re-enter the guest.
//
// Numbers map to the guest's parameter types. Strings and byte buffers are
// copied into guest memory as NUL-terminated data when the guest exports an
// allocator (cabi_realloc, malloc or alloc) and are passed as an i32
// pointer, freed after the call when a matching free is exported.
package wasm
