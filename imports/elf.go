package imports

import (
	stderrors "errors"
	"path/filepath"

	"github.com/Binject/debug/elf"

	"github.com/wippyai/native-runtime/errors"
)

const relaSize = 24

// elfImports reads the GOT cells bound by JUMP_SLOT and GLOB_DAT
// relocations. mapStart is the lowest address the file is mapped at.
func elfImports(path string, mapStart uintptr) ([]Symbol, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLocate, errors.KindInvalidData, err, "open "+path)
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS64 || f.Machine != elf.EM_X86_64 {
		return nil, errors.Unsupported(errors.PhaseLocate, "non x86-64 ELF "+path)
	}

	syms, err := f.DynamicSymbols()
	if err != nil {
		if stderrors.Is(err, elf.ErrNoSymbols) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.PhaseLocate, errors.KindInvalidData, err, "read dynamic symbols")
	}

	bias := loadBias(f, mapStart)
	libs := elfLibraries(f)
	module := filepath.Base(path)
	bo := f.ByteOrder

	var out []Symbol
	for _, name := range []string{".rela.plt", ".rela.dyn"} {
		sec := f.Section(name)
		if sec == nil || sec.Type != elf.SHT_RELA {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLocate, errors.KindInvalidData, err, "read "+name)
		}
		for off := 0; off+relaSize <= len(data); off += relaSize {
			roff := bo.Uint64(data[off:])
			info := bo.Uint64(data[off+8:])

			typ := elf.R_X86_64(elf.R_TYPE64(info))
			if typ != elf.R_X86_64_JMP_SLOT && typ != elf.R_X86_64_GLOB_DAT {
				continue
			}
			idx := int(elf.R_SYM64(info))
			if idx == 0 || idx > len(syms) {
				continue
			}
			sym := syms[idx-1].Name
			out = append(out, Symbol{
				Name:    sym,
				Library: libs[sym],
				Module:  module,
				Cell:    bias + uintptr(roff),
			})
		}
	}
	return out, nil
}

// loadBias is zero for fixed-address executables. Position-independent
// images are shifted by the distance between their first PT_LOAD segment
// and where it was mapped.
func loadBias(f *elf.File, mapStart uintptr) uintptr {
	if f.Type != elf.ET_DYN {
		return 0
	}
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		vaddr := uintptr(p.Vaddr)
		if p.Align > 1 {
			vaddr &^= uintptr(p.Align - 1)
		}
		return mapStart - vaddr
	}
	return mapStart
}

// elfLibraries maps versioned imports to the library named by their
// version requirement.
func elfLibraries(f *elf.File) map[string]string {
	out := make(map[string]string)
	imported, err := f.ImportedSymbols()
	if err != nil {
		return out
	}
	for _, s := range imported {
		if s.Library != "" {
			out[s.Name] = s.Library
		}
	}
	return out
}
