//go:build linux

package memory

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/wippyai/native-runtime/errors"
)

// PageSize returns the system page size.
func PageSize() int { return unix.Getpagesize() }

func allocGranularity() int { return unix.Getpagesize() }

func toUnix(p Prot) int {
	var v int
	if p&ProtRead != 0 {
		v |= unix.PROT_READ
	}
	if p&ProtWrite != 0 {
		v |= unix.PROT_WRITE
	}
	if p&ProtExec != 0 {
		v |= unix.PROT_EXEC
	}
	return v
}

func allocAt(hint uintptr, size int, prot Prot) (uintptr, error) {
	flags := unix.MAP_PRIVATE | unix.MAP_ANONYMOUS
	if hint != 0 {
		flags |= unix.MAP_FIXED_NOREPLACE
	}
	p, err := unix.MmapPtr(-1, 0, unsafe.Pointer(hint), uintptr(size), toUnix(prot), flags)
	if err != nil {
		return 0, err
	}
	return uintptr(p), nil
}

func release(addr uintptr, size int) error {
	if addr == 0 {
		return nil
	}
	return unix.MunmapPtr(unsafe.Pointer(addr), uintptr(size))
}

func protect(addr uintptr, size int, prot Prot) (Prot, error) {
	old, err := Query(addr)
	if err != nil {
		return 0, err
	}
	if err := unix.Mprotect(unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), toUnix(prot)); err != nil {
		return 0, err
	}
	return old, nil
}

// Mapping is one line of /proc/self/maps.
type Mapping struct {
	Start  uintptr
	End    uintptr
	Prot   Prot
	Offset uint64
	Path   string
}

// Mappings returns the current process's memory map.
func Mappings() ([]Mapping, error) {
	f, err := os.Open("/proc/self/maps")
	if err != nil {
		return nil, errors.Wrap(errors.PhaseMemory, errors.KindNotFound, err, "open /proc/self/maps")
	}
	defer f.Close()

	var out []Mapping
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m, err := parseMapping(sc.Text())
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(errors.PhaseMemory, errors.KindInvalidData, err, "read /proc/self/maps")
	}
	return out, nil
}

// parseMapping parses "start-end perms offset dev inode [path]".
func parseMapping(line string) (Mapping, error) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return Mapping{}, errors.InvalidData(errors.PhaseMemory, nil, fmt.Sprintf("malformed maps line %q", line))
	}
	lo, hi, ok := strings.Cut(fields[0], "-")
	if !ok {
		return Mapping{}, errors.InvalidData(errors.PhaseMemory, nil, fmt.Sprintf("malformed range %q", fields[0]))
	}
	start, err1 := strconv.ParseUint(lo, 16, 64)
	end, err2 := strconv.ParseUint(hi, 16, 64)
	off, err3 := strconv.ParseUint(fields[2], 16, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return Mapping{}, errors.InvalidData(errors.PhaseMemory, nil, fmt.Sprintf("malformed maps line %q", line))
	}

	var prot Prot
	perms := fields[1]
	if len(perms) >= 3 {
		if perms[0] == 'r' {
			prot |= ProtRead
		}
		if perms[1] == 'w' {
			prot |= ProtWrite
		}
		if perms[2] == 'x' {
			prot |= ProtExec
		}
	}

	m := Mapping{Start: uintptr(start), End: uintptr(end), Prot: prot, Offset: off}
	if len(fields) >= 6 {
		m.Path = strings.Join(fields[5:], " ")
	}
	return m, nil
}

// region returns the mapping containing addr.
func region(addr uintptr) (start, end uintptr, prot Prot, err error) {
	maps, err := Mappings()
	if err != nil {
		return 0, 0, 0, err
	}
	for _, m := range maps {
		if addr >= m.Start && addr < m.End {
			return m.Start, m.End, m.Prot, nil
		}
	}
	return 0, 0, 0, errors.NotFound(errors.PhaseMemory, fmt.Sprintf("address %#x is not mapped", addr))
}
