// Package jit generates x86-64 call stubs at runtime.
//
// # Outbound calls
//
// CompileCall emits a stub with the C signature void(void *args, void *ret).
// It loads each argument from its layout offset in args into the target
// convention's registers and stack slots, calls the target and stores rax,
// rax:rdx or xmm0 into ret. NativeCall wraps a stub with an argument
// buffer, a return slot and a lock spanning fill, invoke and read.
//
// # Callbacks
//
// CompileCallback emits a native entry point for a signature. The stub
// spills incoming registers and stack arguments into a scratch buffer on
// its own frame, copies by-reference arguments inline, then calls one
// shared bridge with (scratch, handle, ret). The handle indexes a table of
// callback data; generated code never holds Go pointers. When the script
// callable fails, the bridge writes a zero return value or, if none is
// safe, returns a status that makes the stub execute ud2.
//
// # Register preservation
//
// A stub that sits between a Win64 caller and a SysV callee saves rsi, rdi
// and xmm6-xmm15, which Win64 treats as callee-saved.
package jit
