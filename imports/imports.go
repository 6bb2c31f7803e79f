package imports

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/wippyai/native-runtime/errors"
)

// Module is one loaded executable image.
type Module struct {
	Name string
	Path string
	Base uintptr
	Size uintptr
	Main bool
}

// Symbol is one import table cell of a module.
type Symbol struct {
	Name    string
	Ordinal uint16
	// Library is the providing library when the format records it.
	Library string
	// Module is the importing module.
	Module string
	Cell   uintptr
}

// Ident selects an import by name or, when Name is empty, by ordinal.
type Ident struct {
	Name    string
	Ordinal uint16
}

// ByName selects an import by symbol name.
func ByName(name string) Ident { return Ident{Name: name} }

// ByOrdinal selects an import by ordinal.
func ByOrdinal(ord uint16) Ident { return Ident{Ordinal: ord} }

func (id Ident) String() string {
	if id.Name != "" {
		return id.Name
	}
	return fmt.Sprintf("#%d", id.Ordinal)
}

func (id Ident) matches(s Symbol) bool {
	if id.Name != "" {
		return s.Name == id.Name
	}
	return s.Name == "" && s.Ordinal == id.Ordinal
}

// Modules lists the loaded modules, the main executable first.
func Modules() ([]Module, error) {
	return modules()
}

// FindModule returns the loaded module called name. The empty name selects
// the main executable. A name without a version suffix matches versioned
// files, so "libc" finds "libc.so.6".
func FindModule(name string) (Module, error) {
	mods, err := modules()
	if err != nil {
		return Module{}, err
	}
	for _, m := range mods {
		if name == "" && m.Main {
			return m, nil
		}
		if name != "" && sameModule(m.Name, name) {
			return m, nil
		}
	}
	if name == "" {
		name = "main executable"
	}
	return Module{}, errors.NotFound(errors.PhaseLocate, "module "+name)
}

func sameModule(have, want string) bool {
	if runtime.GOOS == "windows" {
		have, want = strings.ToLower(have), strings.ToLower(want)
		if !strings.Contains(want, ".") {
			want += ".dll"
		}
	}
	if have == want {
		return true
	}
	if !strings.HasPrefix(have, want) {
		return false
	}
	next := have[len(want)]
	return next == '.' || next == '-'
}

// Imports lists the import cells of module.
func Imports(module string) ([]Symbol, error) {
	m, err := FindModule(module)
	if err != nil {
		return nil, err
	}
	return moduleImports(m)
}

// FindImport returns the first import of module matching id.
func FindImport(module string, id Ident) (Symbol, error) {
	return FindModuleImport(module, "", id)
}

// FindModuleImport returns the import of module matching id that is
// provided by library. An empty library matches any provider. Library
// names compare case-insensitively.
func FindModuleImport(module, library string, id Ident) (Symbol, error) {
	syms, err := Imports(module)
	if err != nil {
		return Symbol{}, err
	}
	if s, ok := find(syms, library, id); ok {
		return s, nil
	}
	what := "import " + id.String()
	if library != "" {
		what += " from " + library
	}
	return Symbol{}, errors.NotFound(errors.PhaseLocate, what)
}

func find(syms []Symbol, library string, id Ident) (Symbol, bool) {
	for _, s := range syms {
		if library != "" && !sameLibrary(s.Library, library) {
			continue
		}
		if id.matches(s) {
			return s, true
		}
	}
	return Symbol{}, false
}

func sameLibrary(have, want string) bool {
	have, want = strings.ToLower(have), strings.ToLower(want)
	if have == want {
		return true
	}
	return strings.TrimSuffix(have, ".dll") == strings.TrimSuffix(want, ".dll")
}
