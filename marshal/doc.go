// Package marshal converts script values to and from raw native memory.
//
// Arguments are written at their layout offsets in a flat buffer; return
// values live in a 16-byte slot (rax and rdx, or xmm0). Indirect structs
// are written to and read from the caller's result buffer.
//
// Conversion rules:
//   - integers truncate to the target width; floats truncate toward zero
//   - cstr needs a trailing NUL; without one the empty string is passed
//   - wstr text is encoded as NUL-terminated UTF-16
//   - char and wchar take one character encodable in one or two bytes
//   - struct[n] takes exactly n bytes
package marshal
