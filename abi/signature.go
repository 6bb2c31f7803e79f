package abi

import (
	"strconv"
	"strings"

	"github.com/wippyai/native-runtime/errors"
)

// Class says where an argument or return value lives at the call boundary.
type Class uint8

const (
	ClassNone Class = iota
	ClassInt        // general purpose register
	ClassFloat      // xmm register
	ClassStack      // 8-byte stack slot(s)
	ClassPair       // two consecutive registers (rax:rdx on return)
	ClassSRet       // written through a hidden pointer argument
)

// Location is the placement of one argument.
type Location struct {
	Class Class
	// Reg indexes the convention's integer or vector register list.
	Reg int
	// Slot is the 8-byte stack slot counted from the first stack argument.
	Slot int
	// Slots is 2 for a 128-bit integer split over two registers or slots.
	Slots int
	// ByRef marks a value passed as a pointer to the caller's copy.
	ByRef bool
}

// Signature is an immutable call signature with its derived layout and placement.
type Signature struct {
	Args []ValueType
	Ret  ValueType
	Conv Convention

	layout     *Layout
	locs       []Location
	ret        Class
	stackSlots int
	sret       bool
}

// NewSignature validates args and ret for conv and precomputes placement.
func NewSignature(args []ValueType, ret ValueType, conv Convention) (*Signature, error) {
	if !conv.valid() {
		return nil, errors.Construction("invalid calling convention %d", conv)
	}
	for i, a := range args {
		if a.IsVoid() {
			return nil, errors.New(errors.PhaseConstruct, errors.KindConstruction).
				Path("args", strconv.Itoa(i)).
				Detail("void is not a valid argument type").
				Build()
		}
		if a.Kind() == KindStruct && a.Size() == 0 {
			return nil, errors.Construction("argument %d: struct size must be non-zero", i)
		}
		if conv == SysV && a.IsIndirect() {
			return nil, errors.New(errors.PhaseConstruct, errors.KindConstruction).
				Path("args", strconv.Itoa(i)).
				NativeType(a.String()).
				Detail("indirect struct arguments are not supported by sysv").
				Build()
		}
	}
	if !layoutFits(args) {
		return nil, errors.Construction("argument buffer exceeds %d bytes", MaxStructSize)
	}
	if conv == SysV && ret.IsIndirect() {
		return nil, errors.New(errors.PhaseConstruct, errors.KindConstruction).
			Path("ret").
			NativeType(ret.String()).
			Detail("indirect struct returns are not supported by sysv").
			Build()
	}

	s := &Signature{
		Args:   append([]ValueType(nil), args...),
		Ret:    ret,
		Conv:   conv,
		layout: NewLayout(args),
	}
	s.classify()
	return s, nil
}

// MustSignature is like NewSignature but panics on error.
func MustSignature(args []ValueType, ret ValueType, conv Convention) *Signature {
	s, err := NewSignature(args, ret, conv)
	if err != nil {
		panic(err)
	}
	return s
}

// Layout returns the flat argument buffer layout, nil for no arguments.
func (s *Signature) Layout() *Layout { return s.layout }

// Location returns the placement of argument i.
func (s *Signature) Location(i int) Location { return s.locs[i] }

// RetClass returns how the return value comes back.
func (s *Signature) RetClass() Class { return s.ret }

// HasSRet reports whether a hidden return pointer is passed as the first argument.
func (s *Signature) HasSRet() bool { return s.sret }

// StackSlots returns the number of 8-byte outgoing stack slots, excluding shadow space.
func (s *Signature) StackSlots() int { return s.stackSlots }

// BufferSize returns the layout size, 0 when there are no arguments.
func (s *Signature) BufferSize() uint32 {
	if s.layout == nil {
		return 0
	}
	return s.layout.Size
}

func (s *Signature) classify() {
	s.locs = make([]Location, len(s.Args))
	s.ret = s.classifyRet()
	s.sret = s.ret == ClassSRet

	if s.Conv == Win64 {
		s.classifyWin64()
	} else {
		s.classifySysV()
	}
}

func (s *Signature) classifyRet() Class {
	r := s.Ret
	switch {
	case r.IsVoid():
		return ClassNone
	case r.IsFloat():
		return ClassFloat
	case r.IsWide():
		if s.Conv == Win64 {
			return ClassSRet
		}
		return ClassPair
	case r.IsIndirect():
		return ClassSRet
	}
	return ClassInt
}

func (s *Signature) classifyWin64() {
	pos := 0
	if s.sret {
		pos = 1
	}
	for i, a := range s.Args {
		loc := Location{Slots: 1, ByRef: a.IsIndirect() || a.IsWide()}
		if pos < 4 {
			loc.Reg = pos
			if a.IsFloat() {
				loc.Class = ClassFloat
			} else {
				loc.Class = ClassInt
			}
		} else {
			loc.Class = ClassStack
			loc.Slot = pos - 4
		}
		s.locs[i] = loc
		pos++
	}
	if pos > 4 {
		s.stackSlots = pos - 4
	}
}

func (s *Signature) classifySysV() {
	gpr, xmm, slot := 0, 0, 0
	for i, a := range s.Args {
		var loc Location
		switch {
		case a.IsFloat():
			loc.Slots = 1
			if xmm < 8 {
				loc.Class, loc.Reg = ClassFloat, xmm
				xmm++
			} else {
				loc.Class, loc.Slot = ClassStack, slot
				slot++
			}
		case a.IsWide():
			loc.Slots = 2
			if gpr+2 <= 6 {
				loc.Class, loc.Reg = ClassInt, gpr
				gpr += 2
			} else {
				slot = int(AlignTo(uint32(slot), 2))
				loc.Class, loc.Slot = ClassStack, slot
				slot += 2
			}
		default:
			loc.Slots = 1
			if gpr < 6 {
				loc.Class, loc.Reg = ClassInt, gpr
				gpr++
			} else {
				loc.Class, loc.Slot = ClassStack, slot
				slot++
			}
		}
		s.locs[i] = loc
	}
	s.stackSlots = slot
}

func (s *Signature) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, a := range s.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(a.String())
	}
	b.WriteString(") -> ")
	b.WriteString(s.Ret.String())
	b.WriteString(" @")
	b.WriteString(s.Conv.String())
	return b.String()
}
