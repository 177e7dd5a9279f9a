package pefile

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// ImportSpec lists the functions a test image imports from one DLL.
type ImportSpec struct {
	DLL       string
	Functions []string
}

// ImageSpec describes a synthetic PE32 image for tests.
type ImageSpec struct {
	DLL     bool
	Managed bool
	// Exports are named exports; ordinals are assigned from 1 in slice order.
	Exports []string
	// Forwarders maps an export name to a "DLL.Function" forwarder string.
	Forwarders map[string]string
	// OrdinalOnly adds this many unnamed exports after the named ones.
	OrdinalOnly int
	Imports     []ImportSpec
}

const (
	testSectionRVA  = 0x1000
	testRawOffset   = 0x200
	testFileAlign   = 0x200
	testSectionAlig = 0x1000
)

type sectionBuf struct{ b []byte }

func (s *sectionBuf) alloc(n int) int {
	off := len(s.b)
	s.b = append(s.b, make([]byte, n)...)
	return off
}

func (s *sectionBuf) str(v string) int {
	off := len(s.b)
	s.b = append(s.b, v...)
	s.b = append(s.b, 0)
	return off
}

func (s *sectionBuf) put32(off int, v uint32) { binary.LittleEndian.PutUint32(s.b[off:], v) }
func (s *sectionBuf) put16(off int, v uint16) { binary.LittleEndian.PutUint16(s.b[off:], v) }

func rvaOf(off int) uint32 { return uint32(testSectionRVA + off) }

// BuildTestImage assembles a minimal single-section PE32 image.
func BuildTestImage(t testing.TB, spec ImageSpec) []byte {
	t.Helper()

	var dirs [16]pe.DataDirectory
	sec := &sectionBuf{}

	// fake code bytes so function RVAs point outside the export directory
	code := sec.alloc(64)
	for i := 0; i < 64; i++ {
		sec.b[code+i] = 0xC3
	}

	total := len(spec.Exports) + spec.OrdinalOnly
	if total > 0 {
		start := sec.alloc(40)
		funcs := sec.alloc(4 * total)
		names := sec.alloc(4 * len(spec.Exports))
		ords := sec.alloc(2 * len(spec.Exports))
		dllName := sec.str("test.dll")

		for i, name := range spec.Exports {
			nameOff := sec.str(name)
			sec.put32(names+4*i, rvaOf(nameOff))
			sec.put16(ords+2*i, uint16(i))
			target := rvaOf(code + i%64)
			if fwd, ok := spec.Forwarders[name]; ok {
				target = rvaOf(sec.str(fwd))
			}
			sec.put32(funcs+4*i, target)
		}
		for i := len(spec.Exports); i < total; i++ {
			sec.put32(funcs+4*i, rvaOf(code+i%64))
		}

		sec.put32(start+12, rvaOf(dllName))
		sec.put32(start+16, 1) // Base
		sec.put32(start+20, uint32(total))
		sec.put32(start+24, uint32(len(spec.Exports)))
		sec.put32(start+28, rvaOf(funcs))
		sec.put32(start+32, rvaOf(names))
		sec.put32(start+36, rvaOf(ords))
		dirs[dirExport] = pe.DataDirectory{VirtualAddress: rvaOf(start), Size: uint32(len(sec.b) - start)}
	}

	if len(spec.Imports) > 0 {
		desc := sec.alloc(20 * (len(spec.Imports) + 1))
		for i, imp := range spec.Imports {
			ilt := sec.alloc(4 * (len(imp.Functions) + 1))
			for j, fn := range imp.Functions {
				hint := sec.alloc(2)
				sec.str(fn)
				sec.put32(ilt+4*j, rvaOf(hint))
			}
			dll := sec.str(imp.DLL)
			d := desc + 20*i
			sec.put32(d, rvaOf(ilt))
			sec.put32(d+12, rvaOf(dll))
			sec.put32(d+16, rvaOf(ilt))
		}
		dirs[dirImport] = pe.DataDirectory{VirtualAddress: rvaOf(desc), Size: uint32(20 * (len(spec.Imports) + 1))}
	}

	if spec.Managed {
		cor := sec.alloc(72)
		sec.put32(cor, 72)
		dirs[dirCLR] = pe.DataDirectory{VirtualAddress: rvaOf(cor), Size: 72}
	}

	virtualSize := len(sec.b)
	rawSize := align(virtualSize, testFileAlign)
	sec.b = append(sec.b, make([]byte, rawSize-virtualSize)...)

	characteristics := uint16(pe.IMAGE_FILE_EXECUTABLE_IMAGE | pe.IMAGE_FILE_32BIT_MACHINE)
	if spec.DLL {
		characteristics |= pe.IMAGE_FILE_DLL
	}

	var buf bytes.Buffer
	dos := make([]byte, 64)
	dos[0], dos[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(dos[0x3c:], 0x40)
	buf.Write(dos)
	buf.Write([]byte{'P', 'E', 0, 0})

	write := func(v any) {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, v))
	}
	write(pe.FileHeader{
		Machine:              pe.IMAGE_FILE_MACHINE_I386,
		NumberOfSections:     1,
		SizeOfOptionalHeader: uint16(binary.Size(pe.OptionalHeader32{})),
		Characteristics:      characteristics,
	})
	write(pe.OptionalHeader32{
		Magic:               0x10b,
		ImageBase:           0x10000000,
		SectionAlignment:    testSectionAlig,
		FileAlignment:       testFileAlign,
		SizeOfImage:         uint32(testSectionRVA + align(virtualSize, testSectionAlig)),
		SizeOfHeaders:       testRawOffset,
		Subsystem:           2,
		NumberOfRvaAndSizes: 16,
		DataDirectory:       dirs,
	})
	var name [8]uint8
	copy(name[:], ".rdata")
	write(pe.SectionHeader32{
		Name:             name,
		VirtualSize:      uint32(virtualSize),
		VirtualAddress:   testSectionRVA,
		SizeOfRawData:    uint32(rawSize),
		PointerToRawData: testRawOffset,
		Characteristics:  0x40000040,
	})

	require.LessOrEqual(t, buf.Len(), testRawOffset)
	buf.Write(make([]byte, testRawOffset-buf.Len()))
	buf.Write(sec.b)
	return buf.Bytes()
}

// WriteTestImage writes BuildTestImage's output to dir/name and returns the path.
func WriteTestImage(t testing.TB, dir, name string, spec ImageSpec) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, BuildTestImage(t, spec), 0o644))
	return path
}

func align(n, to int) int {
	if n%to == 0 {
		return n
	}
	return n + to - n%to
}
