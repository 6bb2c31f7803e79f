package memory

import (
	"encoding/binary"
	"strings"
	"sync"
	"unsafe"

	"github.com/wippyai/native-runtime/errors"
)

// Prot is a page protection bit set.
type Prot uint8

const (
	ProtNone  Prot = 0
	ProtRead  Prot = 1 << 0
	ProtWrite Prot = 1 << 1
	ProtExec  Prot = 1 << 2

	ProtRW  = ProtRead | ProtWrite
	ProtRX  = ProtRead | ProtExec
	ProtRWX = ProtRead | ProtWrite | ProtExec
)

func (p Prot) String() string {
	var b strings.Builder
	for _, f := range []struct {
		bit Prot
		c   byte
	}{{ProtRead, 'r'}, {ProtWrite, 'w'}, {ProtExec, 'x'}} {
		if p&f.bit != 0 {
			b.WriteByte(f.c)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// NearRange is the reach of a rel32 displacement.
const NearRange = 1<<31 - 1

// Region is an owned block of pages.
type Region struct {
	addr uintptr
	size int
	once sync.Once
	err  error
}

// Addr returns the region's base address.
func (r *Region) Addr() uintptr { return r.addr }

// Size returns the mapped size in bytes.
func (r *Region) Size() int { return r.size }

// Bytes views the region as a byte slice. The region must be readable.
func (r *Region) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(r.addr)), r.size)
}

// Free releases the region. It is safe to call more than once.
func (r *Region) Free() error {
	r.once.Do(func() {
		r.err = release(r.addr, r.size)
		r.addr = 0
	})
	return r.err
}

// Alloc maps n bytes (rounded up to whole pages) with the given protection.
func Alloc(n int, prot Prot) (*Region, error) {
	size := roundPage(n)
	addr, err := allocAt(0, size, prot)
	if err != nil {
		return nil, errors.AllocationFailed(errors.PhaseMemory, size, err)
	}
	return &Region{addr: addr, size: size}, nil
}

// AllocNear maps n bytes within NearRange of target so a 5-byte relative
// jump can bridge the two.
func AllocNear(target uintptr, n int, prot Prot) (*Region, error) {
	size := roundPage(n)
	for _, hint := range nearHints(target, size) {
		addr, err := allocAt(hint, size, prot)
		if err != nil {
			continue
		}
		if within(target, addr, size) {
			return &Region{addr: addr, size: size}, nil
		}
		_ = release(addr, size)
	}
	return nil, errors.New(errors.PhaseMemory, errors.KindAllocation).
		Detail("no free %d bytes within 2GiB of %#x", size, target).
		Build()
}

func within(target, addr uintptr, size int) bool {
	lo := int64(addr) - int64(target)
	hi := int64(addr) + int64(size) - int64(target)
	return lo > -NearRange && hi < NearRange
}

// nearHints yields candidate addresses alternating above and below target,
// stepping by the allocation granularity.
func nearHints(target uintptr, size int) []uintptr {
	const steps = 512
	gran := uintptr(allocGranularity())
	step := uintptr(NearRange/steps) &^ (gran - 1)
	base := target &^ (gran - 1)

	hints := make([]uintptr, 0, 2*steps)
	for i := uintptr(1); i < steps; i++ {
		if up := base + i*step; up > base && up+uintptr(size) > up {
			hints = append(hints, up)
		}
		if i*step < base {
			hints = append(hints, base-i*step)
		}
	}
	return hints
}

// Read copies n bytes starting at addr.
func Read(addr uintptr, n int) []byte {
	out := make([]byte, n)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(addr)), n))
	return out
}

// Write copies b to addr. The destination must be writable.
func Write(addr uintptr, b []byte) {
	copy(unsafe.Slice((*byte)(unsafe.Pointer(addr)), len(b)), b)
}

// ReadPtr reads a pointer-sized little-endian value at addr.
func ReadPtr(addr uintptr) uintptr {
	return uintptr(binary.LittleEndian.Uint64(Read(addr, 8)))
}

// WritePtr writes a pointer-sized value at addr. The destination must be writable.
func WritePtr(addr, v uintptr) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	Write(addr, b[:])
}

// protectPages is the platform protection call. Tests replace it to
// simulate failures.
var protectPages = protect

// Protect changes the protection of the pages covering [addr, addr+n) and
// returns the protection that was in effect at addr.
func Protect(addr uintptr, n int, prot Prot) (Prot, error) {
	start := addr &^ uintptr(PageSize()-1)
	length := roundPage(int(addr-start) + n)
	old, err := protectPages(start, length, prot)
	if err != nil {
		return 0, errors.Protection(addr, n, err)
	}
	return old, nil
}

// Query returns the protection of the page containing addr.
func Query(addr uintptr) (Prot, error) {
	_, _, prot, err := region(addr)
	return prot, err
}

// protRange is a run of pages sharing one protection.
type protRange struct {
	start, end uintptr
	prot       Prot
}

// ranges returns the protection runs covering [addr, addr+n). Any unmapped
// gap is an error.
func ranges(addr uintptr, n int) ([]protRange, error) {
	end := addr + uintptr(n)
	var out []protRange
	for cur := addr; cur < end; {
		lo, hi, prot, err := region(cur)
		if err != nil {
			return nil, err
		}
		out = append(out, protRange{start: lo, end: hi, prot: prot})
		cur = hi
	}
	return out, nil
}

// Readable returns how many of the n bytes at addr can be read without
// faulting. The count stops at the first unmapped or unreadable page.
func Readable(addr uintptr, n int) int {
	end := addr + uintptr(n)
	cur := addr
	for cur < end {
		_, hi, prot, err := region(cur)
		if err != nil || prot&ProtRead == 0 {
			break
		}
		cur = hi
	}
	if cur > end {
		cur = end
	}
	return int(cur - addr)
}

// Patch writes b at addr, temporarily making the span writable. Each page
// gets its own protection back. When a protection change fails the
// original bytes are left in place.
func Patch(addr uintptr, b []byte) error {
	_, err := patch(addr, b)
	return err
}

// PatchPtr replaces the pointer stored at cell and returns the previous value.
func PatchPtr(cell, v uintptr) (uintptr, error) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	prev, err := patch(cell, b[:])
	if err != nil {
		return 0, err
	}
	return uintptr(binary.LittleEndian.Uint64(prev)), nil
}

func patch(addr uintptr, b []byte) ([]byte, error) {
	rs, err := ranges(addr, len(b))
	if err != nil {
		return nil, errors.Protection(addr, len(b), err)
	}
	if _, err := Protect(addr, len(b), ProtRWX); err != nil {
		return nil, err
	}
	prev := Read(addr, len(b))
	Write(addr, b)

	if err := restore(rs, addr, len(b)); err != nil {
		if _, perr := Protect(addr, len(b), ProtRWX); perr == nil {
			Write(addr, prev)
			_ = restore(rs, addr, len(b))
		}
		return nil, err
	}
	return prev, nil
}

// restore gives each page of [addr, addr+n) the protection recorded in rs.
func restore(rs []protRange, addr uintptr, n int) error {
	page := uintptr(PageSize())
	lo := addr &^ (page - 1)
	hi := (addr + uintptr(n) + page - 1) &^ (page - 1)
	for _, r := range rs {
		start, end := max(r.start, lo), min(r.end, hi)
		if start >= end {
			continue
		}
		if _, err := Protect(start, int(end-start), r.prot); err != nil {
			return err
		}
	}
	return nil
}

func roundPage(n int) int {
	ps := PageSize()
	if n <= 0 {
		return ps
	}
	return (n + ps - 1) &^ (ps - 1)
}
