package abi

// Layout places an ordered argument list in one flat buffer.
type Layout struct {
	Offsets []uint32
	Size    uint32
	Align   uint32
}

// NewLayout computes the flat-buffer layout for args. It returns nil for an
// empty list. Each argument is placed after the previous one, rounded up to
// its own alignment; the total is padded to the largest alignment.
func NewLayout(args []ValueType) *Layout {
	if len(args) == 0 {
		return nil
	}

	l := &Layout{
		Offsets: make([]uint32, len(args)),
		Align:   1,
	}

	offset := uint32(0)
	for i, arg := range args {
		align := arg.Align()
		offset = AlignTo(offset, align)
		l.Offsets[i] = offset
		offset += arg.Size()
		if align > l.Align {
			l.Align = align
		}
	}

	l.Size = AlignTo(offset, l.Align)
	return l
}

// Offset returns the byte offset of argument i.
func (l *Layout) Offset(i int) uint32 {
	return l.Offsets[i]
}

// layoutFits reports whether NewLayout(args) stays within MaxStructSize.
func layoutFits(args []ValueType) bool {
	var offset uint64
	for _, arg := range args {
		if arg.Size() > MaxStructSize {
			return false
		}
		a := uint64(arg.Align())
		offset = (offset+a-1)&^(a-1) + uint64(arg.Size())
		if offset > MaxStructSize {
			return false
		}
	}
	return true
}
