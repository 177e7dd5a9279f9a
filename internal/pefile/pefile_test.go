package pefile

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for pefile:
// - Named exports are read with ordinals from the base, in name-table order
// - Ordinal-only exports follow the named ones
// - Forwarded exports carry their forwarder string
// - DLL characteristic, CLR directory and imports are reported
// - Non-PE input returns ErrNotPE

func TestParse_Exports(t *testing.T) {
	t.Parallel()

	data := BuildTestImage(t, ImageSpec{
		DLL:         true,
		Exports:     []string{"double_it", "GetVersion", "Fwd"},
		Forwarders:  map[string]string{"Fwd": "KERNEL32.GetTickCount"},
		OrdinalOnly: 2,
	})

	img, err := Parse(bytes.NewReader(data))
	require.NoError(t, err)

	assert.True(t, img.IsDLL)
	assert.False(t, img.IsManaged)
	assert.False(t, img.Is64)
	require.Len(t, img.Exports, 5)

	assert.Equal(t, "double_it", img.Exports[0].Name)
	assert.Equal(t, uint32(1), img.Exports[0].Ordinal)
	assert.NotZero(t, img.Exports[0].RVA)
	assert.Empty(t, img.Exports[0].Forwarder)

	assert.Equal(t, "GetVersion", img.Exports[1].Name)
	assert.Equal(t, uint32(2), img.Exports[1].Ordinal)

	assert.Equal(t, "Fwd", img.Exports[2].Name)
	assert.Equal(t, "KERNEL32.GetTickCount", img.Exports[2].Forwarder)

	assert.Empty(t, img.Exports[3].Name)
	assert.Equal(t, uint32(4), img.Exports[3].Ordinal)
	assert.Equal(t, uint32(5), img.Exports[4].Ordinal)

	assert.True(t, img.ExportsAny("GetVersion", "nope"))
	assert.False(t, img.ExportsAny("nope"))
}

func TestParse_ImportsAndCLR(t *testing.T) {
	t.Parallel()

	data := BuildTestImage(t, ImageSpec{
		Managed: true,
		Imports: []ImportSpec{
			{DLL: "mscoree.dll", Functions: []string{"_CorExeMain"}},
			{DLL: "OLE32.dll", Functions: []string{"CoInitialize", "CoCreateInstance"}},
		},
	})

	img, err := Parse(bytes.NewReader(data))
	require.NoError(t, err)

	assert.False(t, img.IsDLL)
	assert.True(t, img.IsManaged)
	assert.Equal(t, []string{"mscoree.dll", "ole32.dll"}, img.Imports)
	assert.True(t, img.ImportsAny("ole32.dll"))
	assert.Empty(t, img.Exports)
}

func TestParse_NotPE(t *testing.T) {
	t.Parallel()

	for _, data := range [][]byte{
		nil,
		[]byte("#!/bin/sh\necho hi\n"),
		append([]byte("MZ"), make([]byte, 100)...),
	} {
		_, err := Parse(bytes.NewReader(data))
		assert.ErrorIs(t, err, ErrNotPE)
		assert.False(t, HasSignature(bytes.NewReader(data)))
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	path := WriteTestImage(t, t.TempDir(), "lib.dll", ImageSpec{DLL: true, Exports: []string{"A"}})
	img, err := Open(path)
	require.NoError(t, err)
	require.Len(t, img.Exports, 1)

	_, err = Open(path + ".missing")
	assert.Error(t, err)
}
