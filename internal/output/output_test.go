package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/confidence"
)

// Test Plan for output:
// - A built catalog encodes to a document that satisfies the embedded schema
// - Unknown kinds and missing execution objects are schema violations (ErrSchemaViolation)
// - Write skips validation when disabled
// - AtomicWriter writes through a temp file, leaves nothing behind and refuses invalid documents
// - FileName flattens relative paths and never escapes the output directory

func sampleCatalog() *catalog.Catalog {
	inv := catalog.Invocable{
		Name:       "double_it",
		Kind:       catalog.KindNativeModule,
		Signature:  "int double_it(int x)",
		Parameters: []catalog.Parameter{catalog.NewParameter("int x", 0)},
		Return:     catalog.NewReturn("int"),
		Confidence: confidence.Derive(confidence.Factors{Documentation: "header comment", Parameters: "prototype", ReturnType: "prototype"}),
		Origin:     catalog.Origin{Path: "math.dll"},
		Execution:  catalog.ModuleCall{ModulePath: "math.dll", Function: "double_it", Ordinal: 1},
	}
	meta := catalog.Metadata{
		TargetPath:      "/tmp/math.dll",
		TargetName:      "math.dll",
		TargetKind:      catalog.KindNativeModule,
		SizeBytes:       2048,
		Timestamp:       time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		PipelineVersion: "test",
		RunID:           "run-1",
	}
	return catalog.Build(meta, []catalog.Invocable{inv})
}

func TestValidateDocument(t *testing.T) {
	t.Parallel()

	data, err := Encode(sampleCatalog())
	require.NoError(t, err)
	require.NoError(t, ValidateDocument(data))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	summary := doc["summary"].(map[string]any)
	assert.Equal(t, float64(1), summary["total"])
}

func TestValidateDocument_EmptyCatalog(t *testing.T) {
	t.Parallel()

	c := catalog.Build(catalog.Metadata{TargetPath: "/x/empty.txt", TargetName: "empty.txt", TargetKind: catalog.KindUnknown}, nil)
	data, err := Encode(c)
	require.NoError(t, err)
	assert.NoError(t, ValidateDocument(data))
}

func TestValidateDocument_Violations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(c *catalog.Catalog)
	}{
		{"unknown kind", func(c *catalog.Catalog) { c.Invocables[0].Kind = "bogus" }},
		{"missing execution", func(c *catalog.Catalog) { c.Invocables[0].Execution = nil }},
		{"empty target name", func(c *catalog.Catalog) { c.Metadata.TargetName = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := sampleCatalog()
			tt.mutate(c)
			data, err := Encode(c)
			require.NoError(t, err)
			assert.ErrorIs(t, ValidateDocument(data), ErrSchemaViolation)
		})
	}

	assert.Error(t, ValidateDocument([]byte("{not json")))
}

func TestWrite(t *testing.T) {
	t.Parallel()

	bad := sampleCatalog()
	bad.Invocables[0].Kind = "bogus"

	var buf bytes.Buffer
	assert.ErrorIs(t, Write(&buf, bad, true), ErrSchemaViolation)
	assert.Zero(t, buf.Len())

	require.NoError(t, Write(&buf, bad, false))
	assert.Contains(t, buf.String(), `"bogus"`)

	_, err := Encode(nil)
	assert.Error(t, err)
}

func TestAtomicWriter(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".tmp"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp", "stale.json"), []byte("x"), 0644))

	w, err := NewAtomicWriter(dir, true)
	require.NoError(t, err)
	assert.Equal(t, dir, w.Dir())
	assert.NoFileExists(t, filepath.Join(dir, ".tmp", "stale.json"))

	name := FileName("bin/math.dll")
	path, err := w.WriteCatalog(name, sampleCatalog())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "bin__math.dll.callmap.json"), path)
	assert.NoFileExists(t, filepath.Join(dir, ".tmp", name))

	data, err := w.ReadDocument(name)
	require.NoError(t, err)
	assert.NoError(t, ValidateDocument(data))

	missing, err := w.ReadDocument("nope.callmap.json")
	require.NoError(t, err)
	assert.Nil(t, missing)

	bad := sampleCatalog()
	bad.Invocables[0].Execution = nil
	_, err = w.WriteCatalog("bad.callmap.json", bad)
	assert.ErrorIs(t, err, ErrSchemaViolation)
	assert.NoFileExists(t, filepath.Join(dir, "bad.callmap.json"))

	require.NoError(t, w.Close())
	assert.NoDirExists(t, filepath.Join(dir, ".tmp"))
}

func TestFileName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rel  string
		want string
	}{
		{"math.dll", "math.dll.callmap.json"},
		{"./scripts/deploy.sh", "scripts__deploy.sh.callmap.json"},
		{"../outside/x.py", "outside__x.py.callmap.json"},
		{"/abs/api.yaml", "abs__api.yaml.callmap.json"},
		{".", "artifact.callmap.json"},
		{".env.properties", ".env.properties.callmap.json"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FileName(tt.rel), tt.rel)
	}
}

func TestSchema(t *testing.T) {
	t.Parallel()

	var doc map[string]any
	require.NoError(t, json.Unmarshal(Schema(), &doc))
	assert.Equal(t, "object", doc["type"])
}
