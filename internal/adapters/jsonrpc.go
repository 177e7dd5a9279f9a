package adapters

import (
	"context"
	"os"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/confidence"
)

// JSONRPCAdapter lists the methods of an OpenRPC document. A bare "methods"
// object keyed by method name is accepted too.
type JSONRPCAdapter struct {
	logger *log.Logger
}

func NewJSONRPCAdapter(deps Deps) *JSONRPCAdapter {
	return &JSONRPCAdapter{logger: deps.logger()}
}

func (a *JSONRPCAdapter) Name() string { return "jsonrpc" }

func (a *JSONRPCAdapter) Kinds() []catalog.FileKind {
	return []catalog.FileKind{catalog.KindJSONRPC}
}

func (a *JSONRPCAdapter) Policy() catalog.DedupPolicy { return catalog.FirstSeenWins }

type rpcMethod struct {
	def  map[string]any
	name string
	line int
}

func (a *JSONRPCAdapter) Extract(ctx context.Context, path string) ([]catalog.Invocable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := loadDescriptor(data)
	if err != nil {
		a.logger.Warn("failed to decode", "adapter", a.Name(), "path", path, "err", err)
		return nil, nil
	}
	refs := newRefResolver(doc.root)

	var methods []rpcMethod
	switch m := doc.root["methods"].(type) {
	case []any:
		for i, raw := range m {
			def, _, err := refs.deref("methods/"+strconv.Itoa(i), mapOf(raw))
			if err != nil || def == nil {
				continue
			}
			methods = append(methods, rpcMethod{def: def, name: strOf(def["name"]), line: doc.line("methods", strconv.Itoa(i))})
		}
	case map[string]any:
		for _, name := range sortedKeys(m) {
			methods = append(methods, rpcMethod{def: mapOf(m[name]), name: name, line: doc.line("methods", name)})
		}
	}

	endpoint := ""
	if servers := sliceOf(doc.root["servers"]); len(servers) > 0 {
		endpoint = strOf(mapOf(servers[0])["url"])
	}
	version := "2.0"
	if v := strOf(doc.root["jsonrpc"]); v != "" {
		version = v
	}

	out := make([]catalog.Invocable, 0, len(methods))
	for _, m := range methods {
		if m.name == "" || m.def == nil {
			continue
		}
		out = append(out, a.method(path, endpoint, version, refs, m))
	}
	return out, nil
}

func (a *JSONRPCAdapter) method(path, endpoint, version string, refs *refResolver, m rpcMethod) catalog.Invocable {
	from := "method:" + m.name
	var params []catalog.Parameter
	for _, raw := range sliceOf(m.def["params"]) {
		cd, _, err := refs.deref(from, mapOf(raw))
		if err != nil || cd == nil {
			a.logger.Warn("skipping parameter", "path", path, "method", m.name, "err", err)
			continue
		}
		typ, native := schemaType(mapOf(cd["schema"]))
		params = append(params, catalog.Parameter{
			Name:        strOf(cd["name"]),
			Type:        typ,
			NativeType:  native,
			Required:    boolOf(cd["required"]),
			Description: joinDoc(strOf(cd["summary"]), strOf(cd["description"])),
		})
	}
	var ret *catalog.ReturnType
	result, _, err := refs.deref(from, mapOf(m.def["result"]))
	if err != nil {
		a.logger.Warn("skipping result", "path", path, "method", m.name, "err", err)
	}
	if result != nil {
		if ret, err = refs.schemaReturn(from, mapOf(result["schema"])); err != nil {
			a.logger.Warn("skipping result schema", "path", path, "method", m.name, "err", err)
			result = nil
		}
	}

	structure := strOf(m.def["paramStructure"])
	if structure == "" {
		structure = "either"
	}
	doc := joinDoc(strOf(m.def["summary"]), strOf(m.def["description"]))
	inv := catalog.Invocable{
		Name:          m.name,
		Kind:          catalog.KindJSONRPC,
		Parameters:    params,
		Return:        ret,
		Documentation: doc,
		Origin:        catalog.Origin{Path: path, Line: m.line},
		Execution: catalog.JSONRPCCall{
			Endpoint:       endpoint,
			RPCMethod:      m.name,
			Version:        version,
			ParamStructure: structure,
		},
	}
	return finish(inv, confidence.Factors{
		Documentation: evidence(doc != "", "method description"),
		Parameters:    evidence(len(params) > 0, "content descriptors"),
		ReturnType:    evidence(result != nil && ret != nil, "result schema"),
	})
}
