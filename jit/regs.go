package jit

import (
	"github.com/wippyai/native-runtime/abi"
	"github.com/wippyai/native-runtime/asm"
)

var (
	win64IntArgs = []asm.Reg{asm.RCX, asm.RDX, asm.R8, asm.R9}
	sysvIntArgs  = []asm.Reg{asm.RDI, asm.RSI, asm.RDX, asm.RCX, asm.R8, asm.R9}
)

func intArg(c abi.Convention, i int) asm.Reg {
	if c == abi.Win64 {
		return win64IntArgs[i]
	}
	return sysvIntArgs[i]
}

// extraSaved returns the registers the caller's convention preserves but
// the callee's does not. A stub sitting between the two must save them.
func extraSaved(caller, callee abi.Convention) (gprs []asm.Reg, xmm bool) {
	if caller == abi.Win64 && callee == abi.SysV {
		return []asm.Reg{asm.RSI, asm.RDI}, true
	}
	return nil, false
}

// xmmSaveSize covers xmm6-xmm15.
const xmmSaveSize = 10 * 16

func saveXMM(a *asm.Assembler, off int32) {
	for i := 0; i < 10; i++ {
		a.StoreVec(asm.RSP, off+int32(16*i), asm.XReg(6+i))
	}
}

func restoreXMM(a *asm.Assembler, off int32) {
	for i := 0; i < 10; i++ {
		a.LoadVec(asm.XReg(6+i), asm.RSP, off+int32(16*i))
	}
}

// loadSize returns the load width for a register-passed value of type t.
func loadSize(t abi.ValueType) int {
	switch {
	case t.IsWide():
		return 8
	case t.Size() >= 8:
		return 8
	}
	return int(t.Size())
}
