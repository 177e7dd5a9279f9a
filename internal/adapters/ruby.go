package adapters

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
	sitter "github.com/tree-sitter/go-tree-sitter"
	ruby "github.com/tree-sitter/tree-sitter-ruby/bindings/go"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/confidence"
	"github.com/mvp-joe/callmap/internal/textscan"
)

// hashSyntax is the comment syntax of Ruby and POSIX shells.
var hashSyntax = textscan.CommentSyntax{
	Line:    []string{"#"},
	Quotes:  `"'`,
	DocLine: []string{"#"},
}

// RubyAdapter lists methods of a Ruby source, qualified by their enclosing
// modules and classes. YARD tags supply types.
type RubyAdapter struct {
	logger  *log.Logger
	grammar *treeSitterGrammar
}

func NewRubyAdapter(deps Deps) *RubyAdapter {
	return &RubyAdapter{
		logger:  deps.logger(),
		grammar: newTreeSitterGrammar(sitter.NewLanguage(ruby.Language()), "ruby"),
	}
}

func (a *RubyAdapter) Name() string { return "ruby" }

func (a *RubyAdapter) Kinds() []catalog.FileKind {
	return []catalog.FileKind{catalog.KindRubyScript}
}

func (a *RubyAdapter) Policy() catalog.DedupPolicy { return catalog.FirstSeenWins }

func (a *RubyAdapter) Extract(ctx context.Context, path string) ([]catalog.Invocable, error) {
	text, err := readText(path)
	if err != nil {
		return nil, err
	}
	source := []byte(text)

	var out []catalog.Invocable
	err = a.grammar.parse(source, func(root *sitter.Node) {
		out = rubyScope(path, root, source, nil)
	})
	if err != nil {
		a.logger.Warn("failed to parse", "adapter", a.Name(), "path", path, "err", err)
		return nil, nil
	}
	return out, nil
}

// rubyScope walks the statements of a program, class or module body. Methods
// after a bare `private` or `protected` call are skipped.
func rubyScope(path string, body *sitter.Node, source []byte, scope []string) []catalog.Invocable {
	var out []catalog.Invocable
	hidden := false
	for _, n := range namedChildren(body) {
		switch n.Kind() {
		case "class", "module":
			name := fieldText(n, "name", source)
			inner := append(append([]string{}, scope...), name)
			if b := n.ChildByFieldName("body"); b != nil {
				out = append(out, rubyScope(path, b, source, inner)...)
			} else {
				// older grammars put statements directly under the class node
				out = append(out, rubyScope(path, n, source, inner)...)
			}
		case "identifier":
			switch nodeText(n, source) {
			case "private", "protected":
				hidden = true
			case "public":
				hidden = false
			}
		case "method", "singleton_method":
			if hidden {
				continue
			}
			if inv, ok := rubyMethod(path, n, source, scope); ok {
				out = append(out, inv)
			}
		}
	}
	return out
}

func rubyMethod(path string, m *sitter.Node, source []byte, scope []string) (catalog.Invocable, bool) {
	name := fieldText(m, "name", source)
	if name == "" || name == "initialize" {
		return catalog.Invocable{}, false
	}
	qualified := name
	if len(scope) > 0 {
		qualified = strings.Join(scope, "::") + "." + name
	}

	params := rubyParams(m.ChildByFieldName("parameters"), source)
	dc := textscan.ParseDocComment(docAbove(m, source, hashSyntax))
	typed := applyParamDocs(params, dc)

	inv := catalog.Invocable{
		Name:          qualified,
		Kind:          catalog.KindRubyScript,
		Parameters:    params,
		Documentation: dc.Summary,
		Origin:        catalog.Origin{Path: path, Line: nodeLine(m)},
		Execution: catalog.ProcessInvoke{
			Executable:  "ruby",
			Interpreter: "ruby",
			ScriptPath:  path,
			Function:    qualified,
			ArgStyle:    "positional",
		},
	}
	if dc.Returns.Type != "" && dc.Returns.Type != "void" && dc.Returns.Type != "nil" {
		inv.Return = catalog.NewReturn(dc.Returns.Type)
	}
	return finish(inv, confidence.Factors{
		Documentation: evidence(dc.Summary != "", "YARD comment"),
		Parameters:    evidence(typed, "YARD @param"),
		ReturnType:    evidence(dc.Returns.Type != "", "YARD @return"),
	}), true
}

func rubyParams(node *sitter.Node, source []byte) []catalog.Parameter {
	var params []catalog.Parameter
	for _, p := range namedChildren(node) {
		switch p.Kind() {
		case "identifier":
			params = append(params, untypedParam(nodeText(p, source), true))
		case "optional_parameter":
			params = append(params, untypedParam(fieldText(p, "name", source), false))
		case "keyword_parameter":
			params = append(params, untypedParam(fieldText(p, "name", source), p.ChildByFieldName("value") == nil))
		case "splat_parameter":
			params = append(params, catalog.Parameter{Name: fieldText(p, "name", source), Type: textscan.TypeArray})
		case "hash_splat_parameter":
			params = append(params, catalog.Parameter{Name: fieldText(p, "name", source), Type: textscan.TypeObject})
		case "block_parameter":
			params = append(params, untypedParam(fieldText(p, "name", source), false))
		}
	}
	return params
}
