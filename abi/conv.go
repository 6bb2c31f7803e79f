package abi

import (
	"runtime"
	"strings"

	"github.com/wippyai/native-runtime/errors"
)

// Convention is a 64-bit calling convention tag
type Convention uint8

const (
	// Win64 is the Microsoft x64 convention: four positional register
	// slots shared between integer and vector registers, 32 bytes of
	// shadow space, large values by reference.
	Win64 Convention = iota + 1
	// SysV is the System V AMD64 convention: six integer and eight
	// vector argument registers counted independently.
	SysV
)

// Host returns the convention used by C code in this process.
func Host() Convention {
	if runtime.GOOS == "windows" {
		return Win64
	}
	return SysV
}

// ParseConvention accepts c, host, win64, fastcall, stdcall and sysv.
// stdcall and fastcall collapse onto win64 on x86-64.
func ParseConvention(s string) (Convention, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "c", "host", "cdecl":
		return Host(), nil
	case "win64", "windows", "fastcall", "stdcall", "ms":
		return Win64, nil
	case "sysv", "systemv", "sysv64":
		return SysV, nil
	}
	return 0, errors.New(errors.PhaseConstruct, errors.KindConstruction).
		Detail("unknown calling convention %q", s).
		Build()
}

func (c Convention) String() string {
	switch c {
	case Win64:
		return "win64"
	case SysV:
		return "sysv"
	}
	return "unknown"
}

// IntArgRegs returns the number of integer argument registers.
func (c Convention) IntArgRegs() int {
	if c == Win64 {
		return 4
	}
	return 6
}

// FloatArgRegs returns the number of vector argument registers.
func (c Convention) FloatArgRegs() int {
	if c == Win64 {
		return 4
	}
	return 8
}

// ShadowSpace is the caller-reserved area above the return address.
func (c Convention) ShadowSpace() uint32 {
	if c == Win64 {
		return 32
	}
	return 0
}

// Positional reports whether integer and vector registers share slot numbering.
func (c Convention) Positional() bool { return c == Win64 }

func (c Convention) valid() bool { return c == Win64 || c == SysV }
