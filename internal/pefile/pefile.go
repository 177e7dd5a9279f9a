// Package pefile reads the parts of a Portable Executable image that classification
// and export extraction need: CLR header presence, DLL flag, imported libraries and
// the export directory.
package pefile

import (
	"debug/pe"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Data directory indices from the PE/COFF specification.
const (
	dirExport = 0
	dirImport = 1
	dirCLR    = 14
)

// ErrNotPE is returned when the input lacks the MZ/PE signatures.
var ErrNotPE = errors.New("not a PE image")

// Export is one entry of the export directory.
type Export struct {
	Name      string
	Ordinal   uint32
	RVA       uint32
	Forwarder string
}

// Image summarizes a PE file.
type Image struct {
	Machine   uint16
	Is64      bool
	IsDLL     bool
	IsManaged bool
	Imports   []string
	Exports   []Export
}

// ImportsAny reports whether the image imports any of the given libraries (case-insensitive).
func (img *Image) ImportsAny(libs ...string) bool {
	for _, have := range img.Imports {
		for _, want := range libs {
			if strings.EqualFold(have, want) {
				return true
			}
		}
	}
	return false
}

// ExportsAny reports whether the image exports any of the given names.
func (img *Image) ExportsAny(names ...string) bool {
	for _, e := range img.Exports {
		for _, n := range names {
			if e.Name == n {
				return true
			}
		}
	}
	return false
}

// HasSignature checks the MZ header and the PE\0\0 signature at e_lfanew.
func HasSignature(r io.ReaderAt) bool {
	var dos [64]byte
	if _, err := r.ReadAt(dos[:], 0); err != nil {
		return false
	}
	if dos[0] != 'M' || dos[1] != 'Z' {
		return false
	}
	lfanew := int64(binary.LittleEndian.Uint32(dos[0x3c:]))
	var sig [4]byte
	if _, err := r.ReadAt(sig[:], lfanew); err != nil {
		return false
	}
	return sig == [4]byte{'P', 'E', 0, 0}
}

// Open reads the image at path.
func Open(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads an image from r.
func Parse(r io.ReaderAt) (*Image, error) {
	if !HasSignature(r) {
		return nil, ErrNotPE
	}
	f, err := pe.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PE headers: %w", err)
	}
	defer f.Close()

	img := &Image{
		Machine: f.Machine,
		IsDLL:   f.Characteristics&pe.IMAGE_FILE_DLL != 0,
	}
	dirs := dataDirectories(f)
	_, img.Is64 = f.OptionalHeader.(*pe.OptionalHeader64)
	if len(dirs) > dirCLR && dirs[dirCLR].VirtualAddress != 0 && dirs[dirCLR].Size != 0 {
		img.IsManaged = true
	}

	img.Imports = importedLibraries(f)

	if len(dirs) > dirExport && dirs[dirExport].VirtualAddress != 0 {
		exports, err := readExports(f, dirs[dirExport])
		if err != nil {
			return nil, err
		}
		img.Exports = exports
	}
	return img, nil
}

func dataDirectories(f *pe.File) []pe.DataDirectory {
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		return oh.DataDirectory[:min(int(oh.NumberOfRvaAndSizes), len(oh.DataDirectory))]
	case *pe.OptionalHeader64:
		return oh.DataDirectory[:min(int(oh.NumberOfRvaAndSizes), len(oh.DataDirectory))]
	}
	return nil
}

// importedLibraries derives the DLL list from ImportedSymbols' "func:dll" entries.
func importedLibraries(f *pe.File) []string {
	syms, err := f.ImportedSymbols()
	if err != nil {
		return nil
	}
	seen := map[string]bool{}
	var libs []string
	for _, s := range syms {
		i := strings.LastIndexByte(s, ':')
		if i < 0 {
			continue
		}
		lib := strings.ToLower(s[i+1:])
		if !seen[lib] {
			seen[lib] = true
			libs = append(libs, lib)
		}
	}
	return libs
}

// rvaReader resolves RVAs to section bytes.
type rvaReader struct {
	sections []*pe.Section
	data     map[*pe.Section][]byte
}

func (r *rvaReader) bytes(rva, n uint32) ([]byte, error) {
	for _, s := range r.sections {
		size := max(s.VirtualSize, s.Size)
		if rva < s.VirtualAddress || rva-s.VirtualAddress >= size {
			continue
		}
		d, ok := r.data[s]
		if !ok {
			var err error
			d, err = s.Data()
			if err != nil {
				return nil, fmt.Errorf("failed to read section %s: %w", s.Name, err)
			}
			r.data[s] = d
		}
		off := rva - s.VirtualAddress
		if uint64(off)+uint64(n) > uint64(len(d)) {
			return nil, fmt.Errorf("rva %#x+%d outside section %s", rva, n, s.Name)
		}
		return d[off : off+n], nil
	}
	return nil, fmt.Errorf("rva %#x not mapped by any section", rva)
}

func (r *rvaReader) u32(rva uint32) (uint32, error) {
	b, err := r.bytes(rva, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *rvaReader) u16(rva uint32) (uint16, error) {
	b, err := r.bytes(rva, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *rvaReader) cstring(rva uint32) (string, error) {
	var sb strings.Builder
	for i := uint32(0); i < 4096; i++ {
		b, err := r.bytes(rva+i, 1)
		if err != nil {
			return "", err
		}
		if b[0] == 0 {
			return sb.String(), nil
		}
		sb.WriteByte(b[0])
	}
	return sb.String(), nil
}

// exportDirectory is IMAGE_EXPORT_DIRECTORY.
type exportDirectory struct {
	Characteristics       uint32
	TimeDateStamp         uint32
	MajorVersion          uint16
	MinorVersion          uint16
	Name                  uint32
	Base                  uint32
	NumberOfFunctions     uint32
	NumberOfNames         uint32
	AddressOfFunctions    uint32
	AddressOfNames        uint32
	AddressOfNameOrdinals uint32
}

// readExports walks the export directory. Named exports come first in name-table
// order, followed by ordinal-only exports in ordinal order.
func readExports(f *pe.File, dd pe.DataDirectory) ([]Export, error) {
	r := &rvaReader{sections: f.Sections, data: map[*pe.Section][]byte{}}

	raw, err := r.bytes(dd.VirtualAddress, uint32(binary.Size(exportDirectory{})))
	if err != nil {
		return nil, fmt.Errorf("failed to read export directory: %w", err)
	}
	var dir exportDirectory
	if _, err := binary.Decode(raw, binary.LittleEndian, &dir); err != nil {
		return nil, fmt.Errorf("failed to decode export directory: %w", err)
	}
	if dir.NumberOfFunctions > 1<<16 || dir.NumberOfNames > dir.NumberOfFunctions {
		return nil, fmt.Errorf("implausible export directory: %d functions, %d names", dir.NumberOfFunctions, dir.NumberOfNames)
	}

	funcs := make([]uint32, dir.NumberOfFunctions)
	for i := range funcs {
		if funcs[i], err = r.u32(dir.AddressOfFunctions + uint32(i)*4); err != nil {
			return nil, err
		}
	}

	inRange := func(rva uint32) bool {
		return rva >= dd.VirtualAddress && rva-dd.VirtualAddress < dd.Size
	}
	forwarder := func(rva uint32) string {
		if !inRange(rva) {
			return ""
		}
		s, _ := r.cstring(rva)
		return s
	}

	named := make(map[uint32]bool, dir.NumberOfNames)
	exports := make([]Export, 0, dir.NumberOfFunctions)
	for i := uint32(0); i < dir.NumberOfNames; i++ {
		nameRVA, err := r.u32(dir.AddressOfNames + i*4)
		if err != nil {
			return nil, err
		}
		idx, err := r.u16(dir.AddressOfNameOrdinals + i*2)
		if err != nil {
			return nil, err
		}
		if uint32(idx) >= dir.NumberOfFunctions {
			continue
		}
		name, err := r.cstring(nameRVA)
		if err != nil {
			return nil, err
		}
		named[uint32(idx)] = true
		fn := funcs[idx]
		exports = append(exports, Export{
			Name:      name,
			Ordinal:   dir.Base + uint32(idx),
			RVA:       fn,
			Forwarder: forwarder(fn),
		})
	}

	var unnamed []Export
	for i, fn := range funcs {
		if fn == 0 || named[uint32(i)] {
			continue
		}
		unnamed = append(unnamed, Export{Ordinal: dir.Base + uint32(i), RVA: fn, Forwarder: forwarder(fn)})
	}
	sort.Slice(unnamed, func(a, b int) bool { return unnamed[a].Ordinal < unnamed[b].Ordinal })
	return append(exports, unnamed...), nil
}
