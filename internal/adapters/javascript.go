package adapters

import (
	"context"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	sitter "github.com/tree-sitter/go-tree-sitter"
	typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/confidence"
	"github.com/mvp-joe/callmap/internal/textscan"
)

// ECMAScriptAdapter lists top-level functions, arrow-function constants and
// class methods of JavaScript or TypeScript sources. Both use the TypeScript
// grammar; JavaScript types come from JSDoc tags instead of annotations.
type ECMAScriptAdapter struct {
	logger      *log.Logger
	grammar     *treeSitterGrammar
	kind        catalog.FileKind
	name        string
	interpreter string
	executable  string
}

func NewJavaScriptAdapter(deps Deps) *ECMAScriptAdapter {
	return &ECMAScriptAdapter{
		logger:      deps.logger(),
		grammar:     newTreeSitterGrammar(sitter.NewLanguage(typescript.LanguageTypescript()), "javascript"),
		kind:        catalog.KindJavaScript,
		name:        "javascript",
		interpreter: "node",
		executable:  "node",
	}
}

func NewTypeScriptAdapter(deps Deps) *ECMAScriptAdapter {
	return &ECMAScriptAdapter{
		logger:      deps.logger(),
		grammar:     newTreeSitterGrammar(sitter.NewLanguage(typescript.LanguageTypescript()), "typescript"),
		kind:        catalog.KindTypeScript,
		name:        "typescript",
		interpreter: "node",
		executable:  "tsx",
	}
}

func (a *ECMAScriptAdapter) Name() string { return a.name }

func (a *ECMAScriptAdapter) Kinds() []catalog.FileKind { return []catalog.FileKind{a.kind} }

func (a *ECMAScriptAdapter) Policy() catalog.DedupPolicy { return catalog.FirstSeenWins }

func (a *ECMAScriptAdapter) Extract(ctx context.Context, path string) ([]catalog.Invocable, error) {
	text, err := readText(path)
	if err != nil {
		return nil, err
	}
	source := []byte(text)

	var out []catalog.Invocable
	err = a.grammar.parse(source, func(root *sitter.Node) {
		for _, stmt := range namedChildren(root) {
			out = append(out, a.statement(path, stmt, stmt, source)...)
		}
	})
	if err != nil {
		a.logger.Warn("failed to parse", "adapter", a.Name(), "path", path, "err", err)
		return nil, nil
	}
	return out, nil
}

// statement handles one top-level statement. docNode is the node whose
// preceding comment documents it (the export statement when wrapped).
func (a *ECMAScriptAdapter) statement(path string, node, docNode *sitter.Node, source []byte) []catalog.Invocable {
	switch node.Kind() {
	case "export_statement":
		if decl := node.ChildByFieldName("declaration"); decl != nil {
			return a.statement(path, decl, docNode, source)
		}
	case "function_declaration", "generator_function_declaration":
		name := fieldText(node, "name", source)
		return []catalog.Invocable{a.function(path, name, node, docNode, source)}
	case "lexical_declaration", "variable_declaration":
		var out []catalog.Invocable
		for _, d := range namedChildren(node) {
			if d.Kind() != "variable_declarator" {
				continue
			}
			value := d.ChildByFieldName("value")
			if value == nil || (value.Kind() != "arrow_function" && value.Kind() != "function_expression" && value.Kind() != "function") {
				continue
			}
			out = append(out, a.function(path, fieldText(d, "name", source), value, docNode, source))
		}
		return out
	case "class_declaration", "abstract_class_declaration":
		className := fieldText(node, "name", source)
		var out []catalog.Invocable
		for _, m := range namedChildren(node.ChildByFieldName("body")) {
			if m.Kind() != "method_definition" && m.Kind() != "abstract_method_signature" {
				continue
			}
			name := fieldText(m, "name", source)
			if name == "constructor" || strings.HasPrefix(name, "#") || isPrivateMember(m, source) {
				continue
			}
			out = append(out, a.function(path, className+"."+name, m, m, source))
		}
		return out
	}
	return nil
}

func isPrivateMember(m *sitter.Node, source []byte) bool {
	mod := findChildByType(m, "accessibility_modifier")
	if mod == nil {
		return false
	}
	t := nodeText(mod, source)
	return t == "private" || t == "protected"
}

func (a *ECMAScriptAdapter) function(path, name string, fn, docNode *sitter.Node, source []byte) catalog.Invocable {
	params := ecmaParams(fn.ChildByFieldName("parameters"), source)
	if params == nil {
		// single-identifier arrow functions: x => x * 2
		if p := fn.ChildByFieldName("parameter"); p != nil {
			params = []catalog.Parameter{untypedParam(nodeText(p, source), true)}
		}
	}
	retNative := strings.TrimSpace(strings.TrimPrefix(fieldText(fn, "return_type", source), ":"))

	raw := docAbove(docNode, source, textscan.CSyntax)
	dc := textscan.ParseDocComment(raw)
	typed := applyParamDocs(params, dc)
	retSource := "return annotation"
	if retNative == "" && dc.Returns.Type != "" {
		retNative = dc.Returns.Type
		retSource = "JSDoc @returns"
	}
	paramSource := "type annotations"
	if a.kind == catalog.KindJavaScript {
		paramSource = "JSDoc @param"
	}

	inv := catalog.Invocable{
		Name:          name,
		Kind:          a.kind,
		Parameters:    params,
		Documentation: dc.Summary,
		Origin:        catalog.Origin{Path: path, Line: nodeLine(fn)},
		Execution: catalog.ProcessInvoke{
			Executable:  a.executable,
			Interpreter: a.interpreter,
			ScriptPath:  path,
			Function:    name,
			ArgStyle:    "positional",
		},
	}
	if retNative != "" && retNative != "void" && retNative != "Promise<void>" {
		inv.Return = catalog.NewReturn(retNative)
	}
	return finish(inv, confidence.Factors{
		Documentation: evidence(dc.Summary != "", "JSDoc"),
		Parameters:    evidence(typed, paramSource),
		ReturnType:    evidence(retNative != "", retSource),
	})
}

// ecmaParams reads formal_parameters. It returns nil when node is nil.
func ecmaParams(node *sitter.Node, source []byte) []catalog.Parameter {
	if node == nil {
		return nil
	}
	params := []catalog.Parameter{}
	for i, p := range namedChildren(node) {
		switch p.Kind() {
		case "required_parameter", "optional_parameter":
			pattern := p.ChildByFieldName("pattern")
			name := nodeText(pattern, source)
			optional := p.Kind() == "optional_parameter" || p.ChildByFieldName("value") != nil
			if pattern != nil && pattern.Kind() == "rest_pattern" {
				name = strings.TrimPrefix(name, "...")
				param := catalog.Parameter{Name: name, Type: textscan.TypeArray}
				if t := p.ChildByFieldName("type"); t != nil {
					param.NativeType = strings.TrimSpace(strings.TrimPrefix(nodeText(t, source), ":"))
				}
				params = append(params, param)
				continue
			}
			if pattern != nil && pattern.Kind() != "identifier" {
				// destructured object or array argument
				name = "arg" + strconv.Itoa(i)
			}
			if t := p.ChildByFieldName("type"); t != nil {
				native := strings.TrimSpace(strings.TrimPrefix(nodeText(t, source), ":"))
				params = append(params, typedParam(name, native, !optional))
			} else {
				params = append(params, untypedParam(name, !optional))
			}
		case "identifier":
			params = append(params, untypedParam(nodeText(p, source), true))
		case "assignment_pattern":
			params = append(params, untypedParam(fieldText(p, "left", source), false))
		case "rest_pattern":
			params = append(params, catalog.Parameter{Name: strings.TrimPrefix(nodeText(p, source), "..."), Type: textscan.TypeArray})
		}
	}
	return params
}
