// Package memory provides raw process memory primitives: page allocation
// (optionally within rel32 reach of an address), protection changes that
// report the previous protection, and unchecked reads and writes.
//
// On linux pages come from mmap and the previous protection is read from
// /proc/self/maps; on windows VirtualAlloc, VirtualProtect and VirtualQuery
// are used.
//
// Read, Write and the pointer helpers dereference arbitrary addresses.
// Passing an unmapped address faults the process.
package memory
