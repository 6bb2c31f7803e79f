//go:build windows

package memory

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/wippyai/native-runtime/errors"
)

// PageSize returns the system page size.
func PageSize() int { return windows.Getpagesize() }

// VirtualAlloc reservations are aligned to 64KiB.
func allocGranularity() int { return 64 << 10 }

func toWindows(p Prot) uint32 {
	switch {
	case p&ProtExec != 0 && p&ProtWrite != 0:
		return windows.PAGE_EXECUTE_READWRITE
	case p&ProtExec != 0 && p&ProtRead != 0:
		return windows.PAGE_EXECUTE_READ
	case p&ProtExec != 0:
		return windows.PAGE_EXECUTE
	case p&ProtWrite != 0:
		return windows.PAGE_READWRITE
	case p&ProtRead != 0:
		return windows.PAGE_READONLY
	}
	return windows.PAGE_NOACCESS
}

func fromWindows(v uint32) Prot {
	switch v &^ (windows.PAGE_GUARD | windows.PAGE_NOCACHE | windows.PAGE_WRITECOMBINE) {
	case windows.PAGE_EXECUTE_READWRITE, windows.PAGE_EXECUTE_WRITECOPY:
		return ProtRWX
	case windows.PAGE_EXECUTE_READ:
		return ProtRX
	case windows.PAGE_EXECUTE:
		return ProtExec
	case windows.PAGE_READWRITE, windows.PAGE_WRITECOPY:
		return ProtRW
	case windows.PAGE_READONLY:
		return ProtRead
	}
	return ProtNone
}

func allocAt(hint uintptr, size int, prot Prot) (uintptr, error) {
	return windows.VirtualAlloc(hint, uintptr(size), windows.MEM_COMMIT|windows.MEM_RESERVE, toWindows(prot))
}

func release(addr uintptr, _ int) error {
	if addr == 0 {
		return nil
	}
	return windows.VirtualFree(addr, 0, windows.MEM_RELEASE)
}

func protect(addr uintptr, size int, prot Prot) (Prot, error) {
	var old uint32
	if err := windows.VirtualProtect(addr, uintptr(size), toWindows(prot), &old); err != nil {
		return 0, err
	}
	return fromWindows(old), nil
}

// region returns the run of pages containing addr that share one
// protection.
func region(addr uintptr) (start, end uintptr, prot Prot, err error) {
	var info windows.MemoryBasicInformation
	if err := windows.VirtualQuery(addr, &info, unsafe.Sizeof(info)); err != nil {
		return 0, 0, 0, errors.Wrap(errors.PhaseMemory, errors.KindNotFound, err, fmt.Sprintf("query %#x", addr))
	}
	if info.State != windows.MEM_COMMIT {
		return 0, 0, 0, errors.NotFound(errors.PhaseMemory, fmt.Sprintf("address %#x is not committed", addr))
	}
	return info.BaseAddress, info.BaseAddress + info.RegionSize, fromWindows(info.Protect), nil
}
