//go:build linux

package imports

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/wippyai/native-runtime/memory"
)

func modules() ([]Module, error) {
	maps, err := memory.Mappings()
	if err != nil {
		return nil, err
	}
	exe, _ := os.Executable()
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return groupMappings(maps, exe), nil
}

// groupMappings collapses file-backed mappings into one module per path,
// keeping first-seen order with the executable moved to the front.
func groupMappings(maps []memory.Mapping, exe string) []Module {
	var out []Module
	index := make(map[string]int)
	for _, m := range maps {
		if !strings.HasPrefix(m.Path, "/") {
			continue
		}
		i, ok := index[m.Path]
		if !ok {
			index[m.Path] = len(out)
			out = append(out, Module{
				Name: filepath.Base(m.Path),
				Path: m.Path,
				Base: m.Start,
				Size: m.End - m.Start,
				Main: m.Path == exe,
			})
			continue
		}
		mod := &out[i]
		if m.Start < mod.Base {
			mod.Size += mod.Base - m.Start
			mod.Base = m.Start
		}
		if end := m.End; end > mod.Base+mod.Size {
			mod.Size = end - mod.Base
		}
	}
	for i := range out {
		if out[i].Main && i > 0 {
			main := out[i]
			copy(out[1:i+1], out[:i])
			out[0] = main
			break
		}
	}
	return out
}

func moduleImports(m Module) ([]Symbol, error) {
	return elfImports(m.Path, m.Base)
}
