// Package asm is a small x86-64 machine code emitter for call stubs.
//
// It covers only what the stub generators need: register moves, sized
// loads and stores against [base+disp32], SSE scalar moves, stack pointer
// arithmetic, indirect calls and a handful of control instructions.
//
// Jump encoding:
//
//	jmp rel32        E9 xx xx xx xx                      5 bytes
//	jmp [rip+0]      FF 25 00 00 00 00 <abs64>          14 bytes
//
// CodeLen uses golang.org/x/arch/x86/x86asm to find whole-instruction spans
// for jump patching.
package asm
