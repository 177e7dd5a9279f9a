package adapters

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dominikbraun/graph"
	"github.com/goccy/go-yaml"
	"github.com/goccy/go-yaml/ast"
	"github.com/goccy/go-yaml/parser"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/textscan"
)

// descriptorDoc is a decoded YAML or JSON service descriptor together with the
// source line of every mapping key and sequence item.
type descriptorDoc struct {
	root  map[string]any
	lines map[string]int
}

// loadDescriptor decodes data. Line numbers are best effort: a document the
// AST parser rejects still decodes without them.
func loadDescriptor(data []byte) (*descriptorDoc, error) {
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to decode descriptor: %w", err)
	}
	if root == nil {
		return nil, fmt.Errorf("descriptor is empty")
	}
	doc := &descriptorDoc{root: root, lines: map[string]int{}}
	if file, err := parser.ParseBytes(data, 0); err == nil && len(file.Docs) > 0 {
		doc.indexLines(file.Docs[0].Body, "")
	}
	return doc, nil
}

func lineKey(parts ...string) string {
	return strings.Join(parts, "\x1f")
}

func (d *descriptorDoc) line(parts ...string) int {
	return d.lines[lineKey(parts...)]
}

func (d *descriptorDoc) indexLines(node ast.Node, prefix string) {
	join := func(k string) string {
		if prefix == "" {
			return k
		}
		return prefix + "\x1f" + k
	}
	switch n := node.(type) {
	case *ast.MappingNode:
		for _, mv := range n.Values {
			d.indexLines(mv, prefix)
		}
	case *ast.MappingValueNode:
		key := join(keyText(n.Key))
		d.lines[key] = n.Key.GetToken().Position.Line
		d.indexLines(n.Value, key)
	case *ast.SequenceNode:
		for i, v := range n.Values {
			key := join(strconv.Itoa(i))
			if tok := v.GetToken(); tok != nil {
				d.lines[key] = tok.Position.Line
			}
			d.indexLines(v, key)
		}
	case *ast.TagNode:
		d.indexLines(n.Value, prefix)
	case *ast.AnchorNode:
		d.indexLines(n.Value, prefix)
	}
}

func keyText(k ast.Node) string {
	if s, ok := k.(*ast.StringNode); ok {
		return s.Value
	}
	return k.GetToken().Value
}

func mapOf(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func sliceOf(v any) []any {
	s, _ := v.([]any)
	return s
}

func strOf(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func boolOf(v any) bool {
	b, _ := v.(bool)
	return b
}

// sortedKeys returns the keys of m in lexical order.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var errRefCycle = errors.New("reference cycle")

// refResolver follows local "#/..." JSON references. Every hop is recorded as
// an edge in a directed graph that refuses cycles, so a self-referencing
// schema is reported instead of expanded forever.
type refResolver struct {
	root  map[string]any
	graph graph.Graph[string, string]
}

func newRefResolver(root map[string]any) *refResolver {
	return &refResolver{
		root:  root,
		graph: graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles()),
	}
}

// deref returns node with any chain of $ref replaced by its target, and the
// identity of the resolved node for further hops.
func (r *refResolver) deref(from string, node map[string]any) (map[string]any, string, error) {
	for node != nil {
		ref, ok := node["$ref"].(string)
		if !ok {
			return node, from, nil
		}
		if err := r.link(from, ref); err != nil {
			return nil, from, err
		}
		target, ok := r.lookup(ref)
		if !ok {
			return nil, from, fmt.Errorf("unresolved reference %q", ref)
		}
		from, node = ref, target
	}
	return nil, from, nil
}

func (r *refResolver) link(from, to string) error {
	for _, v := range []string{from, to} {
		if err := r.graph.AddVertex(v); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
			return err
		}
	}
	err := r.graph.AddEdge(from, to)
	switch {
	case err == nil, errors.Is(err, graph.ErrEdgeAlreadyExists):
		return nil
	case errors.Is(err, graph.ErrEdgeCreatesCycle):
		return fmt.Errorf("%w: %s -> %s", errRefCycle, from, to)
	}
	return err
}

// lookup walks a local JSON pointer.
func (r *refResolver) lookup(ref string) (map[string]any, bool) {
	if !strings.HasPrefix(ref, "#/") {
		return nil, false
	}
	var cur any = r.root
	for _, part := range strings.Split(ref[2:], "/") {
		part = strings.ReplaceAll(strings.ReplaceAll(part, "~1", "/"), "~0", "~")
		switch c := cur.(type) {
		case map[string]any:
			cur = c[part]
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(c) {
				return nil, false
			}
			cur = c[i]
		default:
			return nil, false
		}
	}
	m, ok := cur.(map[string]any)
	return m, ok
}

// refName is the last segment of a reference: "#/components/schemas/Pet" is "Pet".
func refName(ref string) string {
	return ref[strings.LastIndexByte(ref, '/')+1:]
}

func jsonSchemaType(t string) textscan.SemanticType {
	switch t {
	case "string":
		return textscan.TypeString
	case "integer":
		return textscan.TypeInteger
	case "number":
		return textscan.TypeNumber
	case "boolean":
		return textscan.TypeBoolean
	case "array":
		return textscan.TypeArray
	case "object":
		return textscan.TypeObject
	case "null":
		return textscan.TypeNull
	}
	return textscan.TypeAny
}

// schemaType describes a schema without expanding references: a $ref is an
// object named after its target.
func schemaType(schema map[string]any) (textscan.SemanticType, string) {
	if schema == nil {
		return textscan.TypeAny, ""
	}
	if ref, ok := schema["$ref"].(string); ok {
		return textscan.TypeObject, refName(ref)
	}
	t, _ := schema["type"].(string)
	if types := sliceOf(schema["type"]); len(types) > 0 {
		// OpenAPI 3.1 nullable form: [T, "null"]
		for _, v := range types {
			if s := strOf(v); s != "null" {
				t = s
				break
			}
		}
	}
	switch {
	case t == "array":
		_, item := schemaType(mapOf(schema["items"]))
		if item == "" {
			item = "any"
		}
		return textscan.TypeArray, item + "[]"
	case t == "" && schema["properties"] != nil:
		return textscan.TypeObject, "object"
	case t == "":
		for _, key := range []string{"oneOf", "anyOf", "allOf"} {
			if len(sliceOf(schema[key])) > 0 {
				return textscan.TypeObject, key
			}
		}
		return textscan.TypeAny, ""
	}
	if f := strOf(schema["format"]); f != "" {
		return jsonSchemaType(t), t + "(" + f + ")"
	}
	return jsonSchemaType(t), t
}

// schemaParams turns an object schema's properties into parameters, merging
// allOf members. Property schemas are not expanded.
func (r *refResolver) schemaParams(from string, schema map[string]any) ([]catalog.Parameter, error) {
	schema, from, err := r.deref(from, schema)
	if err != nil || schema == nil {
		return nil, err
	}
	var params []catalog.Parameter
	for _, member := range sliceOf(schema["allOf"]) {
		sub, err := r.schemaParams(from, mapOf(member))
		if err != nil {
			return nil, err
		}
		params = append(params, sub...)
	}

	required := map[string]bool{}
	for _, v := range sliceOf(schema["required"]) {
		required[strOf(v)] = true
	}
	props := mapOf(schema["properties"])
	for _, name := range sortedKeys(props) {
		prop := mapOf(props[name])
		typ, native := schemaType(prop)
		params = append(params, catalog.Parameter{
			Name:        name,
			Type:        typ,
			NativeType:  native,
			Required:    required[name],
			Description: strOf(prop["description"]),
		})
	}
	return params, nil
}

// schemaReturn describes a response schema, following a top-level $ref.
func (r *refResolver) schemaReturn(from string, schema map[string]any) (*catalog.ReturnType, error) {
	if schema == nil {
		return nil, nil
	}
	target, _, err := r.deref(from, schema)
	if err != nil {
		return nil, err
	}
	typ, native := schemaType(schema)
	if ref, ok := schema["$ref"].(string); ok {
		if t, _ := schemaType(target); t != textscan.TypeAny {
			typ = t
		}
		native = refName(ref)
	}
	return &catalog.ReturnType{Type: typ, Native: native}, nil
}
