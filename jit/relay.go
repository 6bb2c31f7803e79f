package jit

import (
	"go.uber.org/zap"

	"github.com/wippyai/native-runtime/asm"
)

// NewRelay places an absolute jump to dest within rel32 reach of near, so
// that a 5-byte jump written at near can reach any dest.
func NewRelay(near, dest uintptr) (*Stub, error) {
	stub, err := newStub(asm.MakeAbsJump(dest), near)
	if err != nil {
		return nil, err
	}
	Logger().Debug("allocated relay",
		zap.Uintptr("near", near),
		zap.Uintptr("relay", stub.Entry()),
		zap.Uintptr("dest", dest))
	return stub, nil
}

// NewTrampoline copies the relocated prologue bytes and appends a jump to
// resume, producing an executable entry to the original function body.
func NewTrampoline(prologue []byte, resume uintptr) (*Stub, error) {
	code := make([]byte, 0, len(prologue)+asm.AbsJumpSize)
	code = append(code, prologue...)
	code = append(code, asm.MakeAbsJump(resume)...)
	return newStub(code, 0)
}
