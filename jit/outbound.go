package jit

import (
	"go.uber.org/zap"

	"github.com/wippyai/native-runtime/abi"
	"github.com/wippyai/native-runtime/asm"
	"github.com/wippyai/native-runtime/errors"
)

// CompileCall generates a stub callable from C as
//
//	void stub(void *args, void *ret)
//
// that loads each argument of sig from its layout offset in args, calls
// target with sig's convention and stores the result in ret. For sret
// signatures ret is passed to target as the hidden result pointer.
func CompileCall(target uintptr, sig *abi.Signature) (*Stub, error) {
	code, err := buildCall(target, sig, abi.Host())
	if err != nil {
		return nil, err
	}
	stub, err := newStub(code, 0)
	if err != nil {
		return nil, err
	}
	Logger().Debug("compiled call stub",
		zap.Stringer("sig", sig),
		zap.Uintptr("target", target),
		zap.Uintptr("entry", stub.Entry()),
		zap.Int("size", stub.Size()))
	return stub, nil
}

// buildCall emits the outbound stub. host is the convention of the stub's
// own entry.
func buildCall(target uintptr, sig *abi.Signature, host abi.Convention) (code []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Codegen(nil, "emit call stub: "+toString(r))
		}
	}()

	const (
		args = asm.R13
		ret  = asm.R12
	)

	extra, saveX := extraSaved(host, sig.Conv)
	pushed := append([]asm.Reg{asm.RBX, asm.R12, asm.R13}, extra...)

	shadow := int32(sig.Conv.ShadowSpace())
	outArea := shadow + 8*int32(sig.StackSlots())
	xmmOff := int32(abi.AlignTo(uint32(outArea), 16))
	frame := xmmOff
	if saveX {
		frame += xmmSaveSize
	}
	pushBytes := 8 * int32(len(pushed))
	frame = int32(abi.AlignTo(uint32(frame+pushBytes), 16)) - pushBytes

	a := asm.New()
	a.Push(asm.RBP)
	a.Mov(asm.RBP, asm.RSP)
	for _, r := range pushed {
		a.Push(r)
	}
	a.SubRSP(frame)
	if saveX {
		saveXMM(a, xmmOff)
	}

	a.Mov(args, intArg(host, 0))
	a.Mov(ret, intArg(host, 1))

	layout := sig.Layout()
	offset := func(i int) int32 { return int32(layout.Offsets[i]) }

	// Stack arguments go through rax, so they are written before any
	// register argument is loaded.
	for i, t := range sig.Args {
		loc := sig.Location(i)
		if loc.Class != abi.ClassStack {
			continue
		}
		dst := shadow + 8*int32(loc.Slot)
		switch {
		case loc.ByRef:
			a.Lea(asm.RAX, args, offset(i))
			a.Store(asm.RSP, dst, asm.RAX, 8)
		case loc.Slots == 2:
			a.Load(asm.RAX, args, offset(i), 8, false)
			a.Store(asm.RSP, dst, asm.RAX, 8)
			a.Load(asm.RAX, args, offset(i)+8, 8, false)
			a.Store(asm.RSP, dst+8, asm.RAX, 8)
		default:
			a.Load(asm.RAX, args, offset(i), loadSize(t), t.IsSigned())
			a.Store(asm.RSP, dst, asm.RAX, 8)
		}
	}

	floats := 0
	for i, t := range sig.Args {
		loc := sig.Location(i)
		switch loc.Class {
		case abi.ClassFloat:
			a.LoadFloat(asm.XReg(loc.Reg), args, offset(i), int(t.Size()))
			floats++
		case abi.ClassInt:
			r := intArg(sig.Conv, loc.Reg)
			switch {
			case loc.ByRef:
				a.Lea(r, args, offset(i))
			case loc.Slots == 2:
				a.Load(r, args, offset(i), 8, false)
				a.Load(intArg(sig.Conv, loc.Reg+1), args, offset(i)+8, 8, false)
			default:
				a.Load(r, args, offset(i), loadSize(t), t.IsSigned())
			}
		}
	}

	if sig.HasSRet() {
		a.Mov(intArg(sig.Conv, 0), ret)
	}
	if sig.Conv == abi.SysV {
		// al carries the vector register count for variadic callees.
		a.MovImm32(asm.RAX, uint32(floats))
	}

	a.MovImm64(asm.R11, uint64(target))
	a.CallReg(asm.R11)

	switch sig.RetClass() {
	case abi.ClassInt:
		a.Store(ret, 0, asm.RAX, 8)
	case abi.ClassFloat:
		a.StoreFloat(ret, 0, 0, int(sig.Ret.Size()))
	case abi.ClassPair:
		a.Store(ret, 0, asm.RAX, 8)
		a.Store(ret, 8, asm.RDX, 8)
	}

	if saveX {
		restoreXMM(a, xmmOff)
	}
	a.Lea(asm.RSP, asm.RBP, -pushBytes)
	for i := len(pushed) - 1; i >= 0; i-- {
		a.Pop(pushed[i])
	}
	a.Pop(asm.RBP)
	a.Ret()

	return a.Bytes(), nil
}
