// Package abi models native value types, flat argument layouts and the two
// x86-64 calling conventions.
//
// # Layout Rules
//
//   - Size: natural byte width (bool/char 1, wchar 2, pointers and strings 8,
//     128-bit integers 16), or n for struct[n].
//   - Alignment: next power of two of the size.
//   - A struct is indirect (passed through a pointer) iff its size exceeds 8
//     or is not a power of two. Indirect structs are aligned to at least 16.
//   - Arguments are placed in declaration order, each offset rounded up to
//     the argument's own alignment; the total size is padded to the largest
//     alignment.
//
// # Conventions
//
// Win64 assigns the first four arguments to positional slots (rcx, rdx, r8,
// r9 or xmm0-xmm3), passes 128-bit integers and indirect structs by
// reference and returns them through a hidden first pointer argument.
// SysV counts integer (rdi, rsi, rdx, rcx, r8, r9) and vector (xmm0-xmm7)
// registers independently and returns 128-bit integers in rax:rdx; indirect
// structs are rejected.
//
// # Usage
//
//	sig, err := abi.ParseSignature("(u32, ptr, struct[12]) -> f64 @win64")
//	layout := sig.Layout()
//	loc := sig.Location(2) // ClassInt, ByRef
package abi
