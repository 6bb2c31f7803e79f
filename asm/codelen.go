package asm

import (
	"golang.org/x/arch/x86/x86asm"

	"github.com/wippyai/native-runtime/errors"
)

// CodeLen returns the length of the shortest run of whole instructions at
// the start of code that covers at least min bytes. Instructions that
// depend on their own address (relative branches, rip-relative operands)
// cannot be relocated and are rejected.
func CodeLen(code []byte, min int) (int, error) {
	n := 0
	for n < min {
		if n >= len(code) {
			return 0, errors.New(errors.PhaseHook, errors.KindInvalidData).
				Detail("need %d bytes of instructions, only %d available", min, len(code)).
				Build()
		}
		inst, err := x86asm.Decode(code[n:], 64)
		if err != nil {
			return 0, errors.New(errors.PhaseHook, errors.KindInvalidData).
				Detail("undecodable instruction at offset %d", n).
				Cause(err).
				Build()
		}
		if relocationSensitive(inst) {
			return 0, errors.New(errors.PhaseHook, errors.KindUnsupported).
				Detail("position-relative instruction %q at offset %d", inst.String(), n).
				Build()
		}
		n += inst.Len
	}
	return n, nil
}

func relocationSensitive(inst x86asm.Inst) bool {
	if inst.PCRel != 0 {
		return true
	}
	for _, arg := range inst.Args {
		switch v := arg.(type) {
		case x86asm.Rel:
			return true
		case x86asm.Mem:
			if v.Base == x86asm.RIP {
				return true
			}
		}
	}
	return false
}
