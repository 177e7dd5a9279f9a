package adapters

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/confidence"
	"github.com/mvp-joe/callmap/internal/hosts"
)

// Test Plan for Registry:
// - Default registry covers every declared kind except unknown
// - Two adapters claiming one kind is a construction error
// - Invalid name patterns surface as configuration errors
// - Names are sorted and Kinds follow declaration order
// - Every adapter returns the read error for a missing artifact
// - Every adapter recovers from garbage input without an error

func writeArtifact(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func extractOne(t *testing.T, a Adapter, path string) []catalog.Invocable {
	t.Helper()
	invs, err := a.Extract(context.Background(), path)
	require.NoError(t, err)
	for _, inv := range invs {
		require.NoError(t, inv.Validate(), inv.Name)
	}
	return invs
}

func indexByName(invs []catalog.Invocable) map[string]catalog.Invocable {
	m := make(map[string]catalog.Invocable, len(invs))
	for _, inv := range invs {
		m[inv.Name] = inv
	}
	return m
}

func names(invs []catalog.Invocable) []string {
	out := make([]string, 0, len(invs))
	for _, inv := range invs {
		out = append(out, inv.Name)
	}
	return out
}

func paramNames(ps []catalog.Parameter) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Name)
	}
	return out
}

func testDeps() Deps {
	return Deps{Hosts: hosts.Unavailable()}
}

func TestNewRegistry_CoversEveryKind(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(testDeps())
	require.NoError(t, err)

	for _, k := range catalog.AllKinds() {
		_, ok := r.For(k)
		if k == catalog.KindUnknown {
			assert.False(t, ok)
			continue
		}
		assert.True(t, ok, "no adapter for %s", k)
	}
	assert.Len(t, r.Kinds(), len(catalog.AllKinds())-1)
	assert.IsNonDecreasing(t, r.Names())
}

func TestNewRegistryOf_DuplicateKind(t *testing.T) {
	t.Parallel()

	_, err := NewRegistryOf(NewSQLAdapter(Deps{}), NewSQLAdapter(Deps{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sql_source")
}

func TestNewRegistry_BadPattern(t *testing.T) {
	t.Parallel()

	deps := testDeps()
	deps.Options.NamePatterns = []string{"Get[*"}
	_, err := NewRegistry(deps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "confidence.name_patterns")
}

func TestAdapters_MissingArtifact(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(testDeps())
	require.NoError(t, err)
	missing := filepath.Join(t.TempDir(), "absent.bin")

	for _, a := range r.Adapters() {
		t.Run(a.Name(), func(t *testing.T) {
			t.Parallel()
			_, err := a.Extract(context.Background(), missing)
			assert.Error(t, err)
		})
	}
}

func TestAdapters_GarbageInput(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(testDeps())
	require.NoError(t, err)
	path := writeArtifact(t, t.TempDir(), "garbage.dat", "\x00\x01{{{[[[ <<< not a real artifact ]]] \"unterminated")

	for _, a := range r.Adapters() {
		t.Run(a.Name(), func(t *testing.T) {
			t.Parallel()
			invs, err := a.Extract(context.Background(), path)
			require.NoError(t, err)
			for _, inv := range invs {
				assert.NoError(t, inv.Validate())
				assert.NotEqual(t, confidence.Guaranteed, inv.Confidence.Tier)
			}
		})
	}
}
