package hosts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/callmap/internal/pefile"
)

// Test Plan for hosts:
// - Runner returns stdout and substitutes {path}
// - Timeout maps to ErrHostTimeout, missing binary and failures to ErrHostUnavailable
// - Empty command template is unavailable without spawning anything
// - Identical content is served from the result cache; changed content is not
// - Command hosts decode JSON output; invalid JSON degrades
// - Help runner refuses unless execution is allowed and tolerates non-zero exit with output
// - Demangler handles Itanium and MSVC names
// - FilePEReader parses real images and reports ErrNotPE otherwise

func artifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "artifact.bin")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunner_Run(t *testing.T) {
	t.Parallel()

	r := NewRunner(5*time.Second, nil, nil)
	path := artifact(t, "x")

	out, err := r.Run(context.Background(), "echo", []string{"sh", "-c", `printf '%s' "$1"`, "sh", PathPlaceholder}, path)
	require.NoError(t, err)
	assert.Equal(t, path, string(out))
}

func TestRunner_Errors(t *testing.T) {
	t.Parallel()

	path := artifact(t, "x")
	ctx := context.Background()

	slow := NewRunner(50*time.Millisecond, nil, nil)
	_, err := slow.Run(ctx, "sleep", []string{"sh", "-c", "exec sleep 5", "sh"}, path)
	assert.ErrorIs(t, err, ErrHostTimeout)
	assert.True(t, IsDegraded(err))

	r := NewRunner(5*time.Second, nil, nil)
	_, err = r.Run(ctx, "missing", []string{"callmap-definitely-not-installed"}, path)
	assert.ErrorIs(t, err, ErrHostUnavailable)

	_, err = r.Run(ctx, "fail", []string{"sh", "-c", "echo boom >&2; exit 3"}, path)
	assert.ErrorIs(t, err, ErrHostUnavailable)
	assert.Contains(t, err.Error(), "boom")

	_, err = r.Run(ctx, "none", nil, path)
	assert.ErrorIs(t, err, ErrHostUnavailable)
}

func TestRunner_Cache(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	counter := filepath.Join(dir, "count")
	path := artifact(t, "same content")

	cache, err := NewResultCache(16)
	require.NoError(t, err)
	defer cache.Close()

	r := NewRunner(5*time.Second, cache, nil)
	cmd := []string{"sh", "-c", "echo run >> " + counter + "; echo '[]'", "sh"}

	for i := 0; i < 3; i++ {
		out, err := r.Run(context.Background(), "symbols", cmd, path)
		require.NoError(t, err)
		assert.Equal(t, "[]\n", string(out))
	}
	runs, err := os.ReadFile(counter)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(runs), "run"))

	require.NoError(t, os.WriteFile(path, []byte("changed"), 0o644))
	_, err = r.Run(context.Background(), "symbols", cmd, path)
	require.NoError(t, err)
	runs, err = os.ReadFile(counter)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(runs), "run"))
}

func TestCommandHosts_JSON(t *testing.T) {
	t.Parallel()

	r := NewRunner(5*time.Second, nil, nil)
	path := artifact(t, "x")
	ctx := context.Background()

	refl := NewCommandReflectionHost(r, []string{"sh", "-c", `echo '{"name":"Calc","types":[{"namespace":"Acme","name":"Calc","methods":[{"name":"Add","return_type":"System.Int32","is_static":true,"parameters":[{"name":"a","type":"System.Int32"}]}]}]}'`, "sh"})
	asm, err := refl.Reflect(ctx, path)
	require.NoError(t, err)
	require.Len(t, asm.Types, 1)
	assert.Equal(t, "Acme.Calc", asm.Types[0].FullName())
	assert.True(t, asm.Types[0].Methods[0].IsStatic)

	sig := NewCommandSignatureVerifier(r, []string{"sh", "-c", `echo '{"signed":true,"publisher":"Contoso"}'`, "sh"})
	s, err := sig.Verify(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, Signature{Signed: true, Publisher: "Contoso"}, s)

	bad := NewCommandSymbolResolver(r, []string{"sh", "-c", "echo not-json", "sh"})
	_, err = bad.Symbols(ctx, path)
	assert.ErrorIs(t, err, ErrHostUnavailable)

	unconfigured := NewCommandTypeLibHost(r, nil)
	_, err = unconfigured.Describe(ctx, path)
	assert.ErrorIs(t, err, ErrHostUnavailable)
}

func TestExecHelpRunner(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tool := filepath.Join(dir, "tool")
	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\necho \"Usage: tool [--verbose]\"\nexit 1\n"), 0o755))

	r := NewRunner(5*time.Second, nil, nil)

	_, err := NewExecHelpRunner(r, "--help", false).Help(context.Background(), tool)
	assert.ErrorIs(t, err, ErrHostUnavailable)

	text, err := NewExecHelpRunner(r, "", true).Help(context.Background(), tool)
	require.NoError(t, err)
	assert.Contains(t, text, "Usage: tool")
}

func TestDemangler(t *testing.T) {
	t.Parallel()

	d := ItaniumDemangler{}

	out, ok := d.Demangle("_Z3addii")
	require.True(t, ok)
	assert.Equal(t, "add(int, int)", out)

	out, ok = d.Demangle("__ZN4math6doubleEi")
	require.True(t, ok)
	assert.Equal(t, "math::double(int)", out)

	out, ok = d.Demangle("?Add@Calc@Acme@@QAEHHH@Z")
	require.True(t, ok)
	assert.Equal(t, "Acme::Calc::Add", out)

	_, ok = d.Demangle("plain_c_name")
	assert.False(t, ok)

	_, ok = d.Demangle("??_C@_0BA@string")
	assert.False(t, ok)
}

func TestFilePEReader(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := pefile.WriteTestImage(t, dir, "lib.dll", pefile.ImageSpec{DLL: true, Exports: []string{"A", "B"}})

	img, err := FilePEReader{}.Read(path)
	require.NoError(t, err)
	assert.Len(t, img.Exports, 2)

	_, err = FilePEReader{}.Read(artifact(t, "plain text"))
	assert.ErrorIs(t, err, ErrNotPE)
}

func TestNewSet(t *testing.T) {
	t.Parallel()

	set, closeFn, err := NewSet(Options{Timeout: time.Second}, nil)
	require.NoError(t, err)
	defer closeFn()

	_, err = set.Reflection.Reflect(context.Background(), artifact(t, "x"))
	assert.ErrorIs(t, err, ErrHostUnavailable)

	_, err = set.Help.Help(context.Background(), artifact(t, "x"))
	assert.ErrorIs(t, err, ErrHostUnavailable)
}
