package catalog

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mvp-joe/callmap/internal/confidence"
	"github.com/mvp-joe/callmap/internal/textscan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for catalog:
// - Three "Foo" records with different ordinals collapse to the last under LastSeenWins
// - FirstSeenWins keeps the first; survivor keeps the first-appearance position
// - Summary counts by kind and tier, all tiers present
// - Invocable JSON: flattened confidence, method-first execution, empty arrays not null
// - Validate rejects empty names, unknown kinds, missing execution and bare non-low tiers
// - AllKinds keeps declaration order and ends with unknown

func fooExport(ordinal uint32) Invocable {
	return Invocable{
		Name:      "Foo",
		Kind:      KindNativeModule,
		Execution: ModuleCall{ModulePath: "lib.dll", Function: "Foo", Ordinal: ordinal},
	}
}

func TestDedup_LastSeenWinsForOrdinals(t *testing.T) {
	t.Parallel()

	in := []Invocable{fooExport(1), fooExport(2), fooExport(3)}
	out := Dedup(in, LastSeenWins)

	require.Len(t, out, 1)
	assert.Equal(t, "Foo", out[0].Name)
	assert.Equal(t, uint32(3), out[0].Execution.(ModuleCall).Ordinal)
}

func TestDedup_FirstSeenWinsKeepsPosition(t *testing.T) {
	t.Parallel()

	bar := Invocable{Name: "Bar", Kind: KindNativeModule, Execution: ModuleCall{Function: "Bar"}}
	in := []Invocable{fooExport(1), bar, fooExport(2)}

	first := Dedup(in, FirstSeenWins)
	require.Len(t, first, 2)
	assert.Equal(t, []string{"Foo", "Bar"}, []string{first[0].Name, first[1].Name})
	assert.Equal(t, uint32(1), first[0].Execution.(ModuleCall).Ordinal)

	last := Dedup(in, LastSeenWins)
	require.Len(t, last, 2)
	assert.Equal(t, "Foo", last[0].Name)
	assert.Equal(t, uint32(2), last[0].Execution.(ModuleCall).Ordinal)

	// input is not modified
	assert.Equal(t, uint32(1), in[0].Execution.(ModuleCall).Ordinal)
}

func TestBuild_Summary(t *testing.T) {
	t.Parallel()

	invs := []Invocable{
		{Name: "a", Kind: KindPythonScript, Confidence: confidence.Record{Tier: confidence.High, Rationale: []string{"x"}}},
		{Name: "b", Kind: KindPythonScript},
		{Name: "c", Kind: KindShellScript},
	}
	cat := Build(Metadata{TargetName: "t"}, invs)

	assert.Equal(t, 3, cat.Summary.Total)
	assert.Equal(t, map[FileKind]int{KindPythonScript: 2, KindShellScript: 1}, cat.Summary.ByKind)
	assert.Equal(t, map[confidence.Tier]int{
		confidence.Low: 2, confidence.Medium: 0, confidence.High: 1, confidence.Guaranteed: 0,
	}, cat.Summary.ByConfidence)

	empty := Build(Metadata{}, nil)
	assert.NotNil(t, empty.Invocables)
	assert.Equal(t, 0, empty.Summary.Total)
}

func TestInvocable_MarshalJSON(t *testing.T) {
	t.Parallel()

	inv := Invocable{
		Name:          "double_it",
		Kind:          KindNativeModule,
		Signature:     "int double_it(int x)",
		Parameters:    []Parameter{NewParameter("int x", 0)},
		Return:        NewReturn("int"),
		Documentation: "Doubles x.",
		Confidence:    confidence.Derive(confidence.Factors{Documentation: "header comment", Parameters: "prototype", ReturnType: "prototype"}),
		Origin:        Origin{Path: "math.dll"},
		Execution:     ModuleCall{ModulePath: "math.dll", Function: "double_it", Ordinal: 1},
	}

	data, err := json.Marshal(inv)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "guaranteed", doc["confidence"])
	assert.Equal(t, "Doubles x.", doc["description"])
	assert.Len(t, doc["rationale"], 3)
	assert.Equal(t, map[string]any{"type": "integer", "native": "int"}, doc["return_type"])

	params := doc["parameters"].([]any)
	require.Len(t, params, 1)
	assert.Equal(t, map[string]any{"name": "x", "type": "integer", "native_type": "int", "required": true}, params[0])

	exec := doc["execution"].(map[string]any)
	assert.Equal(t, "module_call", exec["method"])
	assert.Equal(t, "double_it", exec["function"])

	raw, err := MarshalExecution(inv.Execution)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `{"method":"module_call","module_path"`)
}

func TestInvocable_MarshalJSONEmpty(t *testing.T) {
	t.Parallel()

	inv := Invocable{Name: "op", Kind: KindOpenAPI, Execution: HTTPRequest{Path: "/x", HTTPMethod: "GET"}}
	data, err := json.Marshal(inv)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "low", doc["confidence"])
	assert.Equal(t, []any{}, doc["parameters"])
	assert.Equal(t, []any{}, doc["rationale"])
	assert.Nil(t, doc["return_type"])
	assert.Nil(t, doc["description"])
}

func TestInvocable_Validate(t *testing.T) {
	t.Parallel()

	ok := Invocable{Name: "f", Kind: KindRubyScript, Execution: ProcessInvoke{Executable: "ruby", ArgStyle: "function"}}
	assert.NoError(t, ok.Validate())

	bad := Invocable{Kind: "mystery", Confidence: confidence.Record{Tier: confidence.High}}
	err := bad.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyName)
	assert.ErrorIs(t, err, ErrInvalidKind)
	assert.ErrorIs(t, err, ErrMissingExecution)
	assert.ErrorIs(t, err, ErrMissingRationale)
}

func TestKinds(t *testing.T) {
	t.Parallel()

	kinds := AllKinds()
	assert.Len(t, kinds, 22)
	assert.Equal(t, KindNativeModule, kinds[0])
	assert.Equal(t, KindUnknown, kinds[len(kinds)-1])

	k, err := ParseKind("wsdl")
	require.NoError(t, err)
	assert.Equal(t, KindWSDL, k)

	_, err = ParseKind("elf")
	assert.Error(t, err)

	assert.True(t, KindBatchScript.IsScript())
	assert.False(t, KindSQLSource.IsScript())
}

func TestFormatSignature(t *testing.T) {
	t.Parallel()

	params := []Parameter{
		{Name: "a", Type: textscan.TypeInteger, NativeType: "int"},
		{Name: "b", Type: textscan.TypeString},
	}
	assert.Equal(t, "int add(int a, string b)", FormatSignature("add", params, NewReturn("int")))
	assert.Equal(t, "noop()", FormatSignature("noop", nil, nil))
}

func TestMetadataTimestamp(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	data, err := json.Marshal(Build(Metadata{Timestamp: ts, RunID: "r"}, nil))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"timestamp":"2026-01-02T03:04:05Z"`)
	assert.Contains(t, string(data), `"by_confidence":{"guaranteed":0,"high":0,"low":0,"medium":0}`)
}
