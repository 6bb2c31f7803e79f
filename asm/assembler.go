package asm

import (
	"encoding/binary"
	"fmt"
)

// Reg is a 64-bit general purpose register number.
type Reg uint8

const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

var regNames = [...]string{"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15"}

func (r Reg) String() string { return regNames[r&15] }

// XReg is an SSE register number.
type XReg uint8

func (x XReg) String() string { return fmt.Sprintf("xmm%d", uint8(x)) }

// Assembler appends x86-64 machine code to a buffer. Memory operands are
// always [base+disp32].
type Assembler struct {
	buf []byte
}

// New returns an empty assembler.
func New() *Assembler {
	return &Assembler{buf: make([]byte, 0, 256)}
}

// Bytes returns the emitted code.
func (a *Assembler) Bytes() []byte { return a.buf }

// Len returns the number of bytes emitted so far.
func (a *Assembler) Len() int { return len(a.buf) }

func (a *Assembler) emit(b ...byte) { a.buf = append(a.buf, b...) }

func (a *Assembler) emit32(v uint32) {
	a.buf = binary.LittleEndian.AppendUint32(a.buf, v)
}

func (a *Assembler) emit64(v uint64) {
	a.buf = binary.LittleEndian.AppendUint64(a.buf, v)
}

// rex builds a REX prefix; it returns 0 when none is required.
func rex(w bool, reg, base uint8) byte {
	var b byte
	if w {
		b |= 0x08
	}
	if reg >= 8 {
		b |= 0x04
	}
	if base >= 8 {
		b |= 0x01
	}
	if b == 0 {
		return 0
	}
	return 0x40 | b
}

func (a *Assembler) rexOpt(w bool, reg, base uint8) {
	if p := rex(w, reg, base); p != 0 {
		a.emit(p)
	}
}

// mem emits ModRM (and SIB) for [base+disp32] with the given reg field.
func (a *Assembler) mem(reg uint8, base Reg, disp int32) {
	a.emit(0x80 | (reg&7)<<3 | uint8(base)&7)
	if base&7 == RSP {
		a.emit(0x24)
	}
	a.emit32(uint32(disp))
}

// Push emits push r64.
func (a *Assembler) Push(r Reg) {
	a.rexOpt(false, 0, uint8(r))
	a.emit(0x50 | uint8(r)&7)
}

// Pop emits pop r64.
func (a *Assembler) Pop(r Reg) {
	a.rexOpt(false, 0, uint8(r))
	a.emit(0x58 | uint8(r)&7)
}

// Mov emits mov dst, src (64-bit).
func (a *Assembler) Mov(dst, src Reg) {
	a.emit(rex(true, uint8(src), uint8(dst)), 0x89, 0xC0|(uint8(src)&7)<<3|uint8(dst)&7)
}

// MovImm64 emits movabs dst, imm64.
func (a *Assembler) MovImm64(dst Reg, imm uint64) {
	a.emit(rex(true, 0, uint8(dst)), 0xB8|uint8(dst)&7)
	a.emit64(imm)
}

// MovImm32 emits mov dst32, imm32, zero-extending into the full register.
func (a *Assembler) MovImm32(dst Reg, imm uint32) {
	a.rexOpt(false, 0, uint8(dst))
	a.emit(0xB8 | uint8(dst)&7)
	a.emit32(imm)
}

// SubRSP emits sub rsp, imm32.
func (a *Assembler) SubRSP(n int32) {
	a.emit(0x48, 0x81, 0xEC)
	a.emit32(uint32(n))
}

// AddRSP emits add rsp, imm32.
func (a *Assembler) AddRSP(n int32) {
	a.emit(0x48, 0x81, 0xC4)
	a.emit32(uint32(n))
}

// AndRSP emits and rsp, imm8 (sign-extended), used with negative masks.
func (a *Assembler) AndRSP(mask int8) {
	a.emit(0x48, 0x83, 0xE4, byte(mask))
}

// Lea emits lea dst, [base+disp].
func (a *Assembler) Lea(dst, base Reg, disp int32) {
	a.emit(rex(true, uint8(dst), uint8(base)), 0x8D)
	a.mem(uint8(dst), base, disp)
}

// Load emits a size-byte load from [base+disp] into dst, zero- or
// sign-extended to 64 bits.
func (a *Assembler) Load(dst, base Reg, disp int32, size int, signed bool) {
	d, b := uint8(dst), uint8(base)
	switch size {
	case 8:
		a.emit(rex(true, d, b), 0x8B)
	case 4:
		if signed {
			a.emit(rex(true, d, b), 0x63)
		} else {
			a.rexOpt(false, d, b)
			a.emit(0x8B)
		}
	case 2:
		a.rexOpt(signed, d, b)
		if signed {
			a.emit(0x0F, 0xBF)
		} else {
			a.emit(0x0F, 0xB7)
		}
	case 1:
		a.rexOpt(signed, d, b)
		if signed {
			a.emit(0x0F, 0xBE)
		} else {
			a.emit(0x0F, 0xB6)
		}
	default:
		panic(fmt.Sprintf("asm: invalid load size %d", size))
	}
	a.mem(d, base, disp)
}

// Store emits a size-byte store of src to [base+disp].
func (a *Assembler) Store(base Reg, disp int32, src Reg, size int) {
	s, b := uint8(src), uint8(base)
	switch size {
	case 8:
		a.emit(rex(true, s, b), 0x89)
	case 4:
		a.rexOpt(false, s, b)
		a.emit(0x89)
	case 2:
		a.emit(0x66)
		a.rexOpt(false, s, b)
		a.emit(0x89)
	case 1:
		p := rex(false, s, b)
		if p == 0 && src >= RSP && src <= RDI {
			p = 0x40 // spl, bpl, sil, dil
		}
		if p != 0 {
			a.emit(p)
		}
		a.emit(0x88)
	default:
		panic(fmt.Sprintf("asm: invalid store size %d", size))
	}
	a.mem(s, base, disp)
}

func (a *Assembler) sse(prefix byte, op byte, x XReg, base Reg, disp int32) {
	if prefix != 0 {
		a.emit(prefix)
	}
	a.rexOpt(false, uint8(x), uint8(base))
	a.emit(0x0F, op)
	a.mem(uint8(x), base, disp)
}

// LoadFloat emits movss (size 4) or movsd (size 8) x, [base+disp].
func (a *Assembler) LoadFloat(x XReg, base Reg, disp int32, size int) {
	a.sse(floatPrefix(size), 0x10, x, base, disp)
}

// StoreFloat emits movss (size 4) or movsd (size 8) [base+disp], x.
func (a *Assembler) StoreFloat(base Reg, disp int32, x XReg, size int) {
	a.sse(floatPrefix(size), 0x11, x, base, disp)
}

func floatPrefix(size int) byte {
	if size == 4 {
		return 0xF3
	}
	return 0xF2
}

// LoadVec emits movups x, [base+disp].
func (a *Assembler) LoadVec(x XReg, base Reg, disp int32) {
	a.sse(0, 0x10, x, base, disp)
}

// StoreVec emits movups [base+disp], x.
func (a *Assembler) StoreVec(base Reg, disp int32, x XReg) {
	a.sse(0, 0x11, x, base, disp)
}

// CallReg emits call r64.
func (a *Assembler) CallReg(r Reg) {
	a.rexOpt(false, 0, uint8(r))
	a.emit(0xFF, 0xD0|uint8(r)&7)
}

// JmpReg emits jmp r64.
func (a *Assembler) JmpReg(r Reg) {
	a.rexOpt(false, 0, uint8(r))
	a.emit(0xFF, 0xE0|uint8(r)&7)
}

// RepMovsb emits rep movsb (copy rcx bytes from [rsi] to [rdi]).
func (a *Assembler) RepMovsb() { a.emit(0xF3, 0xA4) }

// TestEAX emits test eax, eax.
func (a *Assembler) TestEAX() { a.emit(0x85, 0xC0) }

// Jz emits jz rel8 with a zero displacement and returns its patch position.
func (a *Assembler) Jz() int {
	a.emit(0x74, 0x00)
	return len(a.buf) - 1
}

// Bind resolves a rel8 placeholder to the current position.
func (a *Assembler) Bind(pos int) {
	rel := len(a.buf) - (pos + 1)
	if rel > 127 {
		panic("asm: rel8 out of range")
	}
	a.buf[pos] = byte(int8(rel))
}

// Ud2 emits the undefined instruction, raising an invalid opcode fault.
func (a *Assembler) Ud2() { a.emit(0x0F, 0x0B) }

// Ret emits ret.
func (a *Assembler) Ret() { a.emit(0xC3) }

// Raw appends arbitrary bytes.
func (a *Assembler) Raw(b []byte) { a.emit(b...) }
