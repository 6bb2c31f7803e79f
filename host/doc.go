// Package host exposes the native interop engine to WebAssembly guests as
// the "nms" host module.
//
// Every import works on 32-bit guest pointers and 64-bit native addresses.
// Objects such as native calls and callbacks are referred to by positive
// int32 handles. Negative results are failure codes; the message of the
// most recent failure is available through last_error.
//
// The call import takes an array of 8-byte argument slots. Floats travel as
// f64 bits, integers as 64-bit values, and text, structs and 128-bit
// integers as a span with the guest pointer in the low 32 bits and the byte
// length in the high 32 bits. Results are copied into the guest buffer and
// call returns the full result length.
package host
