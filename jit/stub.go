package jit

import (
	"sync"

	"github.com/wippyai/native-runtime/errors"
	"github.com/wippyai/native-runtime/memory"
)

// Stub is a block of generated machine code. It owns its executable pages.
type Stub struct {
	region *memory.Region
	entry  uintptr
	size   int
	once   sync.Once
}

// newStub copies code into fresh pages and makes them executable. When
// near is non-zero the pages are placed within rel32 reach of it.
func newStub(code []byte, near uintptr) (*Stub, error) {
	var (
		region *memory.Region
		err    error
	)
	if near != 0 {
		region, err = memory.AllocNear(near, len(code), memory.ProtRW)
	} else {
		region, err = memory.Alloc(len(code), memory.ProtRW)
	}
	if err != nil {
		return nil, errors.Codegen(err, "allocate stub memory")
	}

	memory.Write(region.Addr(), code)
	if _, err := memory.Protect(region.Addr(), region.Size(), memory.ProtRX); err != nil {
		_ = region.Free()
		return nil, errors.Codegen(err, "make stub executable")
	}

	return &Stub{region: region, entry: region.Addr(), size: len(code)}, nil
}

// Entry returns the stub's entry address.
func (s *Stub) Entry() uintptr { return s.entry }

// Size returns the code size in bytes.
func (s *Stub) Size() int { return s.size }

// Close frees the code. The entry address must not be called afterwards.
func (s *Stub) Close() error {
	var err error
	s.once.Do(func() {
		err = s.region.Free()
	})
	return err
}
