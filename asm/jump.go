package asm

import (
	"encoding/binary"
	"math"
)

const (
	// RelJumpSize is the length of jmp rel32.
	RelJumpSize = 5
	// AbsJumpSize is the length of jmp [rip+0] followed by the 8-byte target.
	AbsJumpSize = 14
)

// FitsRel32 reports whether a 5-byte jump at from can reach to.
func FitsRel32(from, to uintptr) bool {
	d := int64(to) - int64(from+RelJumpSize)
	return d >= math.MinInt32 && d <= math.MaxInt32
}

// JumpSize returns the length MakeJump would produce.
func JumpSize(from, to uintptr) int {
	if FitsRel32(from, to) {
		return RelJumpSize
	}
	return AbsJumpSize
}

// MakeJump encodes a jump located at from that lands at to. The 5-byte
// relative form is used when the displacement fits in 32 bits.
func MakeJump(from, to uintptr) []byte {
	if !FitsRel32(from, to) {
		return MakeAbsJump(to)
	}
	b := make([]byte, RelJumpSize)
	b[0] = 0xE9
	binary.LittleEndian.PutUint32(b[1:], uint32(int32(int64(to)-int64(from+RelJumpSize))))
	return b
}

// MakeAbsJump encodes jmp qword [rip+0] followed by the absolute target.
func MakeAbsJump(to uintptr) []byte {
	b := make([]byte, AbsJumpSize)
	copy(b, []byte{0xFF, 0x25, 0, 0, 0, 0})
	binary.LittleEndian.PutUint64(b[6:], uint64(to))
	return b
}

// DecodeJump recovers the destination of a jump produced by MakeJump.
func DecodeJump(from uintptr, b []byte) (uintptr, bool) {
	switch {
	case len(b) >= RelJumpSize && b[0] == 0xE9:
		rel := int32(binary.LittleEndian.Uint32(b[1:5]))
		return uintptr(int64(from) + RelJumpSize + int64(rel)), true
	case len(b) >= AbsJumpSize && b[0] == 0xFF && b[1] == 0x25 &&
		binary.LittleEndian.Uint32(b[2:6]) == 0:
		return uintptr(binary.LittleEndian.Uint64(b[6:14])), true
	}
	return 0, false
}
