//go:build windows

package imports

import (
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/wippyai/native-runtime/errors"
)

func modules() ([]Module, error) {
	proc := windows.CurrentProcess()
	handles := make([]windows.Handle, 256)
	for {
		var needed uint32
		size := uint32(len(handles)) * uint32(unsafe.Sizeof(handles[0]))
		if err := windows.EnumProcessModules(proc, &handles[0], size, &needed); err != nil {
			return nil, errors.Wrap(errors.PhaseLocate, errors.KindNotFound, err, "enumerate modules")
		}
		n := int(needed / uint32(unsafe.Sizeof(handles[0])))
		if n <= len(handles) {
			handles = handles[:n]
			break
		}
		handles = make([]windows.Handle, n)
	}

	out := make([]Module, 0, len(handles))
	for i, h := range handles {
		var info windows.ModuleInfo
		if err := windows.GetModuleInformation(proc, h, &info, uint32(unsafe.Sizeof(info))); err != nil {
			continue
		}
		buf := make([]uint16, windows.MAX_PATH)
		n, err := windows.GetModuleFileName(h, &buf[0], uint32(len(buf)))
		if err != nil {
			continue
		}
		path := windows.UTF16ToString(buf[:n])
		out = append(out, Module{
			Name: filepath.Base(path),
			Path: path,
			Base: info.BaseOfDll,
			Size: uintptr(info.SizeOfImage),
			Main: i == 0,
		})
	}
	return out, nil
}

func moduleImports(m Module) ([]Symbol, error) {
	return peImports(m.Base, m.Name)
}
