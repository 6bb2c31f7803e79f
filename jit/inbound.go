package jit

import (
	"github.com/wippyai/native-runtime/abi"
	"github.com/wippyai/native-runtime/asm"
	"github.com/wippyai/native-runtime/errors"
)

// calleeFrame is the layout of the inbound stub's frame, relative to the
// aligned stack pointer.
type calleeFrame struct {
	retOff     int32 // 16-byte return slot
	xmmOff     int32 // xmm6-xmm15 save area
	ptrOff     int32 // saved pointers of by-reference arguments
	scratchOff int32 // argument buffer in layout order
	size       int32
}

func planCallee(sig *abi.Signature, host abi.Convention, saveX bool) calleeFrame {
	var f calleeFrame
	f.retOff = int32(host.ShadowSpace())
	off := f.retOff + 16
	f.xmmOff = off
	if saveX {
		off += xmmSaveSize
	}
	f.ptrOff = off
	for i := range sig.Args {
		if sig.Location(i).ByRef {
			off += 8
		}
	}

	f.scratchOff = int32(abi.AlignTo(uint32(off), 16))
	f.size = int32(abi.AlignTo(uint32(f.scratchOff)+sig.BufferSize(), 16))
	return f
}

// inboundPushed is the fixed set of registers the inbound stub preserves.
var inboundPushed = []asm.Reg{asm.RBX, asm.RSI, asm.RDI, asm.R12, asm.R13}

// buildCallback emits a stub whose entry follows sig's convention. It
// spills the incoming arguments into a scratch buffer laid out per
// sig.Layout, then calls bridge(scratch, handle, ret) with the host
// convention. A non-zero bridge status executes ud2.
func buildCallback(sig *abi.Signature, handle uintptr, bridge uintptr, host abi.Convention) (code []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Codegen(nil, "emit callback stub: "+toString(r))
		}
	}()

	// The bridge follows host; sig's caller expects sig.Conv's saved set.
	_, saveX := extraSaved(sig.Conv, host)
	f := planCallee(sig, host, saveX)
	pushBytes := 8 * int32(len(inboundPushed))
	incoming := 16 + int32(sig.Conv.ShadowSpace())

	a := asm.New()
	a.Push(asm.RBP)
	a.Mov(asm.RBP, asm.RSP)
	for _, r := range inboundPushed {
		a.Push(r)
	}
	a.SubRSP(f.size)
	a.AndRSP(-16)

	if sig.HasSRet() {
		a.Mov(asm.RBX, intArg(sig.Conv, 0))
	}

	layout := sig.Layout()
	scratch := func(i int) int32 { return f.scratchOff + int32(layout.Offsets[i]) }

	// Register arguments first: the copies below clobber rcx, rsi and rdi.
	ptrSlot := f.ptrOff
	ptrSlots := make(map[int]int32)
	for i, t := range sig.Args {
		loc := sig.Location(i)
		switch loc.Class {
		case abi.ClassFloat:
			a.StoreFloat(asm.RSP, scratch(i), asm.XReg(loc.Reg), int(t.Size()))
		case abi.ClassInt:
			r := intArg(sig.Conv, loc.Reg)
			switch {
			case loc.ByRef:
				a.Store(asm.RSP, ptrSlot, r, 8)
				ptrSlots[i] = ptrSlot
				ptrSlot += 8
			case loc.Slots == 2:
				a.Store(asm.RSP, scratch(i), r, 8)
				a.Store(asm.RSP, scratch(i)+8, intArg(sig.Conv, loc.Reg+1), 8)
			default:
				a.Store(asm.RSP, scratch(i), r, int(t.Size()))
			}
		}
	}

	for i, t := range sig.Args {
		loc := sig.Location(i)
		if loc.Class != abi.ClassStack {
			continue
		}
		src := incoming + 8*int32(loc.Slot)
		switch {
		case loc.ByRef:
			a.Load(asm.RAX, asm.RBP, src, 8, false)
			a.Store(asm.RSP, ptrSlot, asm.RAX, 8)
			ptrSlots[i] = ptrSlot
			ptrSlot += 8
		case loc.Slots == 2:
			a.Load(asm.RAX, asm.RBP, src, 8, false)
			a.Store(asm.RSP, scratch(i), asm.RAX, 8)
			a.Load(asm.RAX, asm.RBP, src+8, 8, false)
			a.Store(asm.RSP, scratch(i)+8, asm.RAX, 8)
		default:
			a.Load(asm.RAX, asm.RBP, src, 8, false)
			a.Store(asm.RSP, scratch(i), asm.RAX, int(t.Size()))
		}
	}

	// By-reference arguments are copied into the scratch buffer so the
	// bridge sees every argument inline.
	for i, t := range sig.Args {
		p, ok := ptrSlots[i]
		if !ok {
			continue
		}
		a.Load(asm.RSI, asm.RSP, p, 8, false)
		a.Lea(asm.RDI, asm.RSP, scratch(i))
		a.MovImm32(asm.RCX, t.Size())
		a.RepMovsb()
	}

	if saveX {
		saveXMM(a, f.xmmOff)
	}

	if sig.HasSRet() {
		a.Mov(intArg(host, 2), asm.RBX)
	} else {
		a.Lea(intArg(host, 2), asm.RSP, f.retOff)
	}
	a.Lea(intArg(host, 0), asm.RSP, f.scratchOff)
	a.MovImm64(intArg(host, 1), uint64(handle))
	a.MovImm64(asm.RAX, uint64(bridge))
	a.CallReg(asm.RAX)

	a.TestEAX()
	ok := a.Jz()
	a.Ud2()
	a.Bind(ok)

	switch sig.RetClass() {
	case abi.ClassInt:
		a.Load(asm.RAX, asm.RSP, f.retOff, 8, false)
	case abi.ClassFloat:
		a.LoadFloat(0, asm.RSP, f.retOff, int(sig.Ret.Size()))
	case abi.ClassPair:
		a.Load(asm.RAX, asm.RSP, f.retOff, 8, false)
		a.Load(asm.RDX, asm.RSP, f.retOff+8, 8, false)
	case abi.ClassSRet:
		a.Mov(asm.RAX, asm.RBX)
	}

	if saveX {
		restoreXMM(a, f.xmmOff)
	}
	a.Lea(asm.RSP, asm.RBP, -pushBytes)
	for i := len(inboundPushed) - 1; i >= 0; i-- {
		a.Pop(inboundPushed[i])
	}
	a.Pop(asm.RBP)
	a.Ret()

	return a.Bytes(), nil
}
