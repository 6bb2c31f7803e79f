package imports

import (
	"encoding/binary"
	stderrors "errors"
	"runtime"
	"testing"
	"unsafe"

	"github.com/wippyai/native-runtime/errors"
	"github.com/wippyai/native-runtime/memory"
)

func TestSameModule(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("names are case-folded on windows")
	}
	tests := []struct {
		have, want string
		match      bool
	}{
		{"libc.so.6", "libc.so.6", true},
		{"libc.so.6", "libc", true},
		{"libc-2.31.so", "libc", true},
		{"libcrypt.so.1", "libc", false},
		{"libm.so.6", "libc", false},
		{"libc.so.6", "libc.so.6.1", false},
	}
	for _, tt := range tests {
		if got := sameModule(tt.have, tt.want); got != tt.match {
			t.Errorf("sameModule(%q, %q) = %v, want %v", tt.have, tt.want, got, tt.match)
		}
	}
}

func TestFind(t *testing.T) {
	syms := []Symbol{
		{Name: "CreateFileW", Library: "KERNEL32.dll", Cell: 0x10},
		{Ordinal: 17, Library: "WS2_32.dll", Cell: 0x18},
		{Name: "CreateFileW", Library: "kernelbase.dll", Cell: 0x20},
	}
	tests := []struct {
		name    string
		library string
		id      Ident
		cell    uintptr
		found   bool
	}{
		{"by name", "", ByName("CreateFileW"), 0x10, true},
		{"scoped case-insensitive", "KernelBase.DLL", ByName("CreateFileW"), 0x20, true},
		{"scope without extension", "kernel32", ByName("CreateFileW"), 0x10, true},
		{"by ordinal", "ws2_32.dll", ByOrdinal(17), 0x18, true},
		{"ordinal mismatch", "", ByOrdinal(18), 0, false},
		{"wrong library", "user32.dll", ByName("CreateFileW"), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := find(syms, tt.library, tt.id)
			if ok != tt.found || s.Cell != tt.cell {
				t.Errorf("got %#x, %v; want %#x, %v", s.Cell, ok, tt.cell, tt.found)
			}
		})
	}
}

func TestIdentString(t *testing.T) {
	if ByName("free").String() != "free" || ByOrdinal(3).String() != "#3" {
		t.Error("unexpected Ident strings")
	}
}

// buildImage lays out a minimal import directory: one descriptor for
// "kernel32.dll" with a named import and an ordinal import.
func buildImage() ([]byte, uint32) {
	image := make([]byte, 0x400)
	le := binary.LittleEndian

	const (
		dir    = 0x100
		lookup = 0x200
		iat    = 0x240
		names  = 0x300
		hint   = 0x320
	)
	le.PutUint32(image[dir:], lookup)
	le.PutUint32(image[dir+12:], names)
	le.PutUint32(image[dir+16:], iat)
	// second descriptor stays zero as the terminator

	copy(image[names:], "kernel32.dll\x00")
	copy(image[hint+2:], "Sleep\x00")

	le.PutUint64(image[lookup:], hint)
	le.PutUint64(image[lookup+8:], ordinalFlag|42)
	le.PutUint64(image[iat:], 0xAAAA)
	le.PutUint64(image[iat+8:], 0xBBBB)
	return image, dir
}

func TestWalkImports(t *testing.T) {
	image, dir := buildImage()
	syms, err := walkImports(image, 0x7000_0000, dir, "app.exe")
	if err != nil {
		t.Fatalf("walkImports: %v", err)
	}
	if len(syms) != 2 {
		t.Fatalf("got %d symbols, want 2", len(syms))
	}

	want := []Symbol{
		{Name: "Sleep", Library: "kernel32.dll", Module: "app.exe", Cell: 0x7000_0000 + 0x240},
		{Ordinal: 42, Library: "kernel32.dll", Module: "app.exe", Cell: 0x7000_0000 + 0x248},
	}
	for i := range want {
		if syms[i] != want[i] {
			t.Errorf("symbol %d: got %+v, want %+v", i, syms[i], want[i])
		}
	}
}

func TestWalkImports_Truncated(t *testing.T) {
	image, dir := buildImage()
	if _, err := walkImports(image[:dir+10], 0, dir, "x"); !stderrors.Is(err, &errors.Error{Kind: errors.KindInvalidData}) {
		t.Errorf("got %v, want invalid data", err)
	}
}

func TestWalkImports_MappedImage(t *testing.T) {
	image, dir := buildImage()
	base := uintptr(unsafe.Pointer(&image[0]))
	syms, err := walkImports(image, base, dir, "app.exe")
	if err != nil {
		t.Fatalf("walkImports: %v", err)
	}
	if got := memory.ReadPtr(syms[1].Cell); got != 0xBBBB {
		t.Errorf("cell content: got %#x, want 0xBBBB", got)
	}
}
