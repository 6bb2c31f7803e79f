//go:build !linux && !windows

package memory

import (
	"golang.org/x/sys/unix"

	"github.com/wippyai/native-runtime/errors"
)

// PageSize returns the system page size.
func PageSize() int { return unix.Getpagesize() }

func allocGranularity() int { return unix.Getpagesize() }

func allocAt(uintptr, int, Prot) (uintptr, error) {
	return 0, errors.Unsupported(errors.PhaseMemory, "executable allocation on this platform")
}

func release(uintptr, int) error { return nil }

func protect(uintptr, int, Prot) (Prot, error) {
	return 0, errors.Unsupported(errors.PhaseMemory, "protection changes on this platform")
}

func region(uintptr) (start, end uintptr, prot Prot, err error) {
	return 0, 0, 0, errors.Unsupported(errors.PhaseMemory, "protection queries on this platform")
}
