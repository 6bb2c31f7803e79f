package imports

import (
	"bytes"
	"encoding/binary"
	"io"
	"unsafe"

	"github.com/Binject/debug/pe"

	"github.com/wippyai/native-runtime/errors"
)

const (
	importDirectory = 1
	descriptorSize  = 20
	thunkSize       = 8
	ordinalFlag     = uint64(1) << 63
)

// imageReader serves a mapped image to the PE parser.
type imageReader struct {
	data []byte
}

func (r *imageReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n := copy(p, r.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// mappedImage returns the loaded image at base as a byte slice covering
// SizeOfImage.
func mappedImage(base uintptr) ([]byte, error) {
	head := unsafe.Slice((*byte)(unsafe.Pointer(base)), 0x40)
	if head[0] != 'M' || head[1] != 'Z' {
		return nil, errors.InvalidData(errors.PhaseLocate, nil, "missing MZ signature")
	}
	lfanew := uintptr(binary.LittleEndian.Uint32(head[0x3C:]))
	nt := unsafe.Slice((*byte)(unsafe.Pointer(base+lfanew)), 24+60)
	if !bytes.Equal(nt[:4], []byte("PE\x00\x00")) {
		return nil, errors.InvalidData(errors.PhaseLocate, nil, "missing PE signature")
	}
	size := binary.LittleEndian.Uint32(nt[24+56:])
	return unsafe.Slice((*byte)(unsafe.Pointer(base)), size), nil
}

// peImports lists the IAT cells of the image mapped at base.
func peImports(base uintptr, module string) ([]Symbol, error) {
	image, err := mappedImage(base)
	if err != nil {
		return nil, err
	}
	f, err := pe.NewFileFromMemory(&imageReader{data: image})
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLocate, errors.KindInvalidData, err, "parse PE headers of "+module)
	}
	defer f.Close()

	oh, ok := f.OptionalHeader.(*pe.OptionalHeader64)
	if !ok {
		return nil, errors.Unsupported(errors.PhaseLocate, "32-bit image "+module)
	}
	if oh.NumberOfRvaAndSizes <= importDirectory {
		return nil, nil
	}
	dir := oh.DataDirectory[importDirectory]
	if dir.VirtualAddress == 0 {
		return nil, nil
	}
	return walkImports(image, base, dir.VirtualAddress, module)
}

// walkImports reads the import descriptors at dirRVA of a mapped image.
// Cells are the IAT entries; names come from the lookup table when present.
func walkImports(image []byte, base uintptr, dirRVA uint32, module string) ([]Symbol, error) {
	le := binary.LittleEndian
	var out []Symbol

	for d := int(dirRVA); ; d += descriptorSize {
		if d+descriptorSize > len(image) {
			return nil, errors.InvalidData(errors.PhaseLocate, nil, "import directory runs past image")
		}
		lookupRVA := le.Uint32(image[d:])
		nameRVA := le.Uint32(image[d+12:])
		iatRVA := le.Uint32(image[d+16:])
		if nameRVA == 0 && iatRVA == 0 {
			break
		}
		library, err := cstring(image, nameRVA)
		if err != nil {
			return nil, err
		}
		if lookupRVA == 0 {
			lookupRVA = iatRVA
		}

		for i := 0; ; i++ {
			at := int(lookupRVA) + i*thunkSize
			if at+thunkSize > len(image) {
				return nil, errors.InvalidData(errors.PhaseLocate, nil, "thunk table of "+library+" runs past image")
			}
			entry := le.Uint64(image[at:])
			if entry == 0 {
				break
			}
			sym := Symbol{
				Library: library,
				Module:  module,
				Cell:    base + uintptr(iatRVA) + uintptr(i*thunkSize),
			}
			if entry&ordinalFlag != 0 {
				sym.Ordinal = uint16(entry)
			} else {
				// Hint/name entry: 2-byte hint, then the name.
				name, err := cstring(image, uint32(entry&0x7FFFFFFF)+2)
				if err != nil {
					return nil, err
				}
				sym.Name = name
			}
			out = append(out, sym)
		}
	}
	return out, nil
}

func cstring(image []byte, rva uint32) (string, error) {
	if int(rva) >= len(image) {
		return "", errors.InvalidData(errors.PhaseLocate, nil, "string outside image")
	}
	n := bytes.IndexByte(image[rva:], 0)
	if n < 0 {
		return "", errors.InvalidData(errors.PhaseLocate, nil, "unterminated string")
	}
	return string(image[rva : int(rva)+n]), nil
}
