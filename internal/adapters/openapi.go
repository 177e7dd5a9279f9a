package adapters

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/confidence"
	"github.com/mvp-joe/callmap/internal/textscan"
)

// OpenAPIAdapter lists the operations of an OpenAPI 3.x or Swagger 2.0
// document, YAML or JSON.
type OpenAPIAdapter struct {
	logger *log.Logger
}

func NewOpenAPIAdapter(deps Deps) *OpenAPIAdapter {
	return &OpenAPIAdapter{logger: deps.logger()}
}

func (a *OpenAPIAdapter) Name() string { return "openapi" }

func (a *OpenAPIAdapter) Kinds() []catalog.FileKind {
	return []catalog.FileKind{catalog.KindOpenAPI}
}

func (a *OpenAPIAdapter) Policy() catalog.DedupPolicy { return catalog.FirstSeenWins }

var httpMethods = []string{"get", "put", "post", "delete", "options", "head", "patch", "trace"}

func (a *OpenAPIAdapter) Extract(ctx context.Context, path string) ([]catalog.Invocable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := loadDescriptor(data)
	if err != nil {
		a.logger.Warn("failed to decode", "adapter", a.Name(), "path", path, "err", err)
		return nil, nil
	}

	api := &openAPIDoc{
		descriptorDoc: doc,
		refs:          newRefResolver(doc.root),
		swagger:       doc.root["swagger"] != nil,
		path:          path,
		logger:        a.logger,
	}
	api.baseURL = api.serverURL()

	paths := mapOf(doc.root["paths"])
	var out []catalog.Invocable
	for _, p := range sortedKeys(paths) {
		item, _, err := api.refs.deref("path:"+p, mapOf(paths[p]))
		if err != nil || item == nil {
			continue
		}
		for _, method := range httpMethods {
			op := mapOf(item[method])
			if op == nil {
				continue
			}
			out = append(out, api.operation(p, method, item, op))
		}
	}
	// document order where the AST gave lines
	sort.SliceStable(out, func(i, j int) bool { return out[i].Origin.Line < out[j].Origin.Line })
	return out, nil
}

type openAPIDoc struct {
	*descriptorDoc
	refs    *refResolver
	swagger bool
	baseURL string
	path    string
	logger  *log.Logger
}

func (d *openAPIDoc) serverURL() string {
	if servers := sliceOf(d.root["servers"]); len(servers) > 0 {
		return strOf(mapOf(servers[0])["url"])
	}
	host := strOf(d.root["host"])
	if host == "" {
		return strOf(d.root["basePath"])
	}
	scheme := "https"
	if schemes := sliceOf(d.root["schemes"]); len(schemes) > 0 {
		scheme = strOf(schemes[0])
	}
	return scheme + "://" + host + strOf(d.root["basePath"])
}

func (d *openAPIDoc) operation(path, method string, item, op map[string]any) catalog.Invocable {
	name := strOf(op["operationId"])
	if name == "" {
		name = strings.ToUpper(method) + " " + path
	}
	from := "op:" + strings.ToUpper(method) + " " + path

	params, contentType := d.parameters(from, item, op)
	ret, retDeclared := d.response(from, op)
	doc := joinDoc(strOf(op["summary"]), strOf(op["description"]))

	inv := catalog.Invocable{
		Name:          name,
		Kind:          catalog.KindOpenAPI,
		Parameters:    params,
		Return:        ret,
		Documentation: doc,
		Origin:        catalog.Origin{Path: d.path, Line: d.line("paths", path, method)},
		Execution: catalog.HTTPRequest{
			BaseURL:     d.baseURL,
			Path:        path,
			HTTPMethod:  strings.ToUpper(method),
			OperationID: strOf(op["operationId"]),
			ContentType: contentType,
		},
	}
	return finish(inv, confidence.Factors{
		Documentation: evidence(doc != "", "operation description"),
		Parameters:    evidence(len(params) > 0, "parameter schemas"),
		ReturnType:    evidence(retDeclared, "response schema"),
	})
}

// parameters merges path-level and operation parameters (the operation wins
// on the same name and location) and expands the request body.
func (d *openAPIDoc) parameters(from string, item, op map[string]any) ([]catalog.Parameter, string) {
	type key struct{ name, in string }
	var order []key
	byKey := map[key]map[string]any{}
	for _, list := range [][]any{sliceOf(item["parameters"]), sliceOf(op["parameters"])} {
		for _, raw := range list {
			p, _, err := d.refs.deref(from, mapOf(raw))
			if err != nil || p == nil {
				d.refWarning(from, err)
				continue
			}
			k := key{strOf(p["name"]), strOf(p["in"])}
			if _, seen := byKey[k]; !seen {
				order = append(order, k)
			}
			byKey[k] = p
		}
	}

	var params []catalog.Parameter
	contentType := ""
	for _, k := range order {
		p := byKey[k]
		if k.in == "body" {
			body, err := d.refs.schemaParams(from, mapOf(p["schema"]))
			if err != nil {
				d.refWarning(from, err)
			}
			if len(body) == 0 {
				typ, native := schemaType(mapOf(p["schema"]))
				body = []catalog.Parameter{{Name: k.name, Type: typ, NativeType: native, Required: boolOf(p["required"])}}
			}
			params = append(params, body...)
			contentType = "application/json"
			if consumes := sliceOf(op["consumes"]); len(consumes) > 0 {
				contentType = strOf(consumes[0])
			}
			continue
		}
		schema := mapOf(p["schema"])
		if schema == nil && d.swagger {
			schema = p
		}
		typ, native := schemaType(schema)
		params = append(params, catalog.Parameter{
			Name:        k.name,
			Type:        typ,
			NativeType:  native,
			Required:    boolOf(p["required"]) || k.in == "path",
			Description: strOf(p["description"]),
		})
	}

	body, _, err := d.refs.deref(from, mapOf(op["requestBody"]))
	if err != nil {
		d.refWarning(from, err)
	}
	if body != nil {
		ct, media := pickMedia(mapOf(body["content"]))
		contentType = ct
		schema := mapOf(media["schema"])
		props, err := d.refs.schemaParams(from, schema)
		if err != nil {
			d.refWarning(from, err)
		}
		if len(props) == 0 && schema != nil {
			typ, native := schemaType(schema)
			props = []catalog.Parameter{{Name: "body", Type: typ, NativeType: native, Required: boolOf(body["required"]), Description: strOf(body["description"])}}
		}
		params = append(params, props...)
	}
	return params, contentType
}

// pickMedia prefers a JSON media type, then the first in lexical order.
func pickMedia(content map[string]any) (string, map[string]any) {
	keys := sortedKeys(content)
	for _, k := range keys {
		if strings.Contains(k, "json") {
			return k, mapOf(content[k])
		}
	}
	if len(keys) > 0 {
		return keys[0], mapOf(content[keys[0]])
	}
	return "", nil
}

// response returns the success response's schema. A 204 declares "no body",
// which establishes the return with nothing to return.
func (d *openAPIDoc) response(from string, op map[string]any) (*catalog.ReturnType, bool) {
	responses := mapOf(op["responses"])
	code := ""
	for _, k := range sortedKeys(responses) {
		if strings.HasPrefix(k, "2") {
			code = k
			break
		}
	}
	if code == "" && responses["default"] != nil {
		code = "default"
	}
	if code == "" {
		return nil, false
	}
	if code == "204" {
		return nil, true
	}
	resp, _, err := d.refs.deref(from, mapOf(responses[code]))
	if err != nil || resp == nil {
		d.refWarning(from, err)
		return nil, false
	}
	schema := mapOf(resp["schema"])
	if !d.swagger || schema == nil {
		_, media := pickMedia(mapOf(resp["content"]))
		if s := mapOf(media["schema"]); s != nil {
			schema = s
		}
	}
	if schema == nil {
		return nil, false
	}
	ret, err := d.refs.schemaReturn(from, schema)
	if err != nil {
		d.refWarning(from, err)
		return nil, false
	}
	if ret.Type == textscan.TypeNull {
		return nil, true
	}
	return ret, true
}

func (d *openAPIDoc) refWarning(from string, err error) {
	if err != nil {
		d.logger.Warn("skipping reference", "path", d.path, "from", from, "err", err)
	}
}
