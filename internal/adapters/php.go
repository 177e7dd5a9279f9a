package adapters

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
	sitter "github.com/tree-sitter/go-tree-sitter"
	php "github.com/tree-sitter/tree-sitter-php/bindings/go"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/confidence"
	"github.com/mvp-joe/callmap/internal/textscan"
)

// PHPAdapter lists functions and public class methods of a PHP source.
// Declared types win over PHPDoc; PHPDoc fills the gaps.
type PHPAdapter struct {
	logger  *log.Logger
	grammar *treeSitterGrammar
}

func NewPHPAdapter(deps Deps) *PHPAdapter {
	return &PHPAdapter{
		logger:  deps.logger(),
		grammar: newTreeSitterGrammar(sitter.NewLanguage(php.LanguagePHP()), "php"),
	}
}

func (a *PHPAdapter) Name() string { return "php" }

func (a *PHPAdapter) Kinds() []catalog.FileKind {
	return []catalog.FileKind{catalog.KindPHPScript}
}

func (a *PHPAdapter) Policy() catalog.DedupPolicy { return catalog.FirstSeenWins }

func (a *PHPAdapter) Extract(ctx context.Context, path string) ([]catalog.Invocable, error) {
	text, err := readText(path)
	if err != nil {
		return nil, err
	}
	source := []byte(text)

	var out []catalog.Invocable
	err = a.grammar.parse(source, func(root *sitter.Node) {
		walkTree(root, func(n *sitter.Node) bool {
			switch n.Kind() {
			case "function_definition":
				out = append(out, phpFunction(path, fieldText(n, "name", source), n, source))
				return false
			case "class_declaration", "trait_declaration":
				out = append(out, phpClass(path, n, source)...)
				return false
			case "interface_declaration":
				return false
			}
			return true
		})
	})
	if err != nil {
		a.logger.Warn("failed to parse", "adapter", a.Name(), "path", path, "err", err)
		return nil, nil
	}
	return out, nil
}

func phpClass(path string, class *sitter.Node, source []byte) []catalog.Invocable {
	className := fieldText(class, "name", source)
	var out []catalog.Invocable
	for _, m := range namedChildren(class.ChildByFieldName("body")) {
		if m.Kind() != "method_declaration" {
			continue
		}
		name := fieldText(m, "name", source)
		if strings.HasPrefix(name, "__") || !phpPublic(m, source) {
			continue
		}
		out = append(out, phpFunction(path, className+"."+name, m, source))
	}
	return out
}

// phpPublic reports whether a method has no visibility modifier or a public one.
func phpPublic(m *sitter.Node, source []byte) bool {
	mod := findChildByType(m, "visibility_modifier")
	return mod == nil || strings.EqualFold(nodeText(mod, source), "public")
}

func phpFunction(path, name string, fn *sitter.Node, source []byte) catalog.Invocable {
	params := phpParams(fn.ChildByFieldName("parameters"), source)
	retNative := fieldText(fn, "return_type", source)
	dc := textscan.ParseDocComment(docAbove(fn, source, textscan.CSyntax))
	typed := applyParamDocs(params, dc)
	retSource := "return declaration"
	if retNative == "" && dc.Returns.Type != "" {
		retNative = dc.Returns.Type
		retSource = "PHPDoc @return"
	}

	inv := catalog.Invocable{
		Name:          name,
		Kind:          catalog.KindPHPScript,
		Parameters:    params,
		Documentation: dc.Summary,
		Origin:        catalog.Origin{Path: path, Line: nodeLine(fn)},
		Execution: catalog.ProcessInvoke{
			Executable:  "php",
			Interpreter: "php",
			ScriptPath:  path,
			Function:    name,
			ArgStyle:    "positional",
		},
	}
	if retNative != "" && !strings.EqualFold(retNative, "void") && !strings.EqualFold(retNative, "never") {
		inv.Return = catalog.NewReturn(strings.TrimPrefix(retNative, "?"))
	}
	return finish(inv, confidence.Factors{
		Documentation: evidence(dc.Summary != "", "PHPDoc"),
		Parameters:    evidence(typed, "parameter types"),
		ReturnType:    evidence(retNative != "", retSource),
	})
}

func phpParams(node *sitter.Node, source []byte) []catalog.Parameter {
	var params []catalog.Parameter
	for _, p := range namedChildren(node) {
		name := strings.TrimPrefix(fieldText(p, "name", source), "$")
		native := strings.TrimPrefix(fieldText(p, "type", source), "?")
		switch p.Kind() {
		case "simple_parameter", "property_promotion_parameter":
			required := p.ChildByFieldName("default_value") == nil
			if native != "" {
				params = append(params, typedParam(name, native, required))
			} else {
				params = append(params, untypedParam(name, required))
			}
		case "variadic_parameter":
			params = append(params, catalog.Parameter{Name: name, Type: textscan.TypeArray, NativeType: native})
		}
	}
	return params
}
