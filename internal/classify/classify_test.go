package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/pefile"
)

// Test Plan for Classifier:
// - Every fast-path extension maps to its kind, never unknown (even for empty files)
// - Structured text files are sniffed, falling back to the per-format default
// - PE images: managed, executable, plain DLL and COM server
// - MZ without a PE signature and empty unrecognized files are unknown without error
// - Extension-less files with a shebang map through enry
// - Missing files are unknown

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestClassify_ExtensionTotality(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for ext, want := range extensionKinds {
		path := writeFile(t, dir, "artifact"+ext, "")
		got := Classify(path)
		assert.Equal(t, want, got, ext)
		assert.NotEqual(t, catalog.KindUnknown, got, ext)
	}

	for ext, want := range structuredDefaults {
		path := writeFile(t, dir, "empty"+ext, "")
		assert.Equal(t, want, Classify(path), ext)
	}
}

func TestClassify_EmptyUnknown(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "mystery.zzz", "")
	assert.Equal(t, catalog.KindUnknown, Classify(path))

	assert.Equal(t, catalog.KindUnknown, Classify(filepath.Join(dir, "does-not-exist.bin")))
}

func TestClassify_CaseInsensitiveExtension(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "SETUP.PS1", "Write-Host hi")
	assert.Equal(t, catalog.KindPowerShellScript, Classify(path))
}

func TestClassify_StructuredSniff(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    catalog.FileKind
	}{
		{"api.yaml", "openapi: 3.0.0\ninfo:\n  title: x\n", catalog.KindOpenAPI},
		{"api.json", `{"swagger": "2.0", "paths": {}}`, catalog.KindOpenAPI},
		{"rpc.json", `{"openrpc": "1.2.6", "methods": []}`, catalog.KindJSONRPC},
		{"rpc.yml", "methods:\n  - name: add\n", catalog.KindJSONRPC},
		{"web.xml", "<web-app><resource-ref><res-ref-name>jdbc/x</res-ref-name></resource-ref></web-app>", catalog.KindJNDIConfig},
		{"context.xml", `<Context><Resource name="jdbc/x" type="javax.sql.DataSource"/></Context>`, catalog.KindJNDIConfig},
		{"svc.xml", `<definitions xmlns="http://schemas.xmlsoap.org/wsdl/"></definitions>`, catalog.KindWSDL},
		{"jndi.properties", "java.naming.factory.initial=x\n", catalog.KindJNDIConfig},
		{"plain.json", `{"name": "x"}`, catalog.KindOpenAPI},
		{"plain.xml", `<root/>`, catalog.KindWSDL},
	}

	for _, tt := range tests {
		path := writeFile(t, dir, tt.name, tt.content)
		assert.Equal(t, tt.want, Classify(path), tt.name)
	}
}

func TestClassify_PEImages(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		name string
		spec pefile.ImageSpec
		want catalog.FileKind
	}{
		{"app.exe", pefile.ImageSpec{}, catalog.KindNativeExecutable},
		{"lib.dll", pefile.ImageSpec{DLL: true, Exports: []string{"double_it"}}, catalog.KindNativeModule},
		{"managed.dll", pefile.ImageSpec{DLL: true, Managed: true}, catalog.KindManagedAssembly},
		{"server.dll", pefile.ImageSpec{
			DLL:     true,
			Exports: []string{"DllGetClassObject", "DllCanUnloadNow"},
			Imports: []pefile.ImportSpec{{DLL: "OLEAUT32.dll", Functions: []string{"SysAllocString"}}},
		}, catalog.KindCOMServer},
		{"ole-no-factory.dll", pefile.ImageSpec{
			DLL:     true,
			Exports: []string{"Other"},
			Imports: []pefile.ImportSpec{{DLL: "ole32.dll", Functions: []string{"CoInitialize"}}},
		}, catalog.KindNativeModule},
		{"noext", pefile.ImageSpec{}, catalog.KindNativeExecutable},
	}

	for _, tt := range tests {
		path := pefile.WriteTestImage(t, dir, tt.name, tt.spec)
		assert.Equal(t, tt.want, Classify(path), tt.name)
	}

	fake := writeFile(t, dir, "fake.dll", "MZ this is not really a PE image at all, just text padding........")
	assert.Equal(t, catalog.KindUnknown, Classify(fake))
}

func TestClassify_Shebang(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := map[string]catalog.FileKind{
		"#!/usr/bin/env python3\nprint(1)\n": catalog.KindPythonScript,
		"#!/bin/bash\necho hi\n":             catalog.KindShellScript,
		"#!/usr/bin/env node\nconsole.log()": catalog.KindJavaScript,
		"#!/usr/bin/ruby\nputs 1\n":          catalog.KindRubyScript,
		"no shebang here\n":                  catalog.KindUnknown,
	}

	i := 0
	for content, want := range tests {
		i++
		path := writeFile(t, dir, "script"+string(rune('a'+i)), content)
		assert.Equal(t, want, Classify(path), content)
	}
}

func TestShebangKind_NotAShebang(t *testing.T) {
	t.Parallel()
	assert.Equal(t, catalog.KindUnknown, ShebangKind([]byte("print(1)")))
	assert.Equal(t, catalog.KindUnknown, ShebangKind(nil))
}
