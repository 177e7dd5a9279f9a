package adapters

import (
	"context"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	sitter "github.com/tree-sitter/go-tree-sitter"
	python "github.com/tree-sitter/tree-sitter-python/bindings/go"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/confidence"
	"github.com/mvp-joe/callmap/internal/textscan"
)

// PythonAdapter lists public module-level functions and class methods.
type PythonAdapter struct {
	logger  *log.Logger
	grammar *treeSitterGrammar
}

func NewPythonAdapter(deps Deps) *PythonAdapter {
	return &PythonAdapter{
		logger:  deps.logger(),
		grammar: newTreeSitterGrammar(sitter.NewLanguage(python.Language()), "python"),
	}
}

func (a *PythonAdapter) Name() string { return "python" }

func (a *PythonAdapter) Kinds() []catalog.FileKind {
	return []catalog.FileKind{catalog.KindPythonScript}
}

func (a *PythonAdapter) Policy() catalog.DedupPolicy { return catalog.FirstSeenWins }

func (a *PythonAdapter) Extract(ctx context.Context, path string) ([]catalog.Invocable, error) {
	text, err := readText(path)
	if err != nil {
		return nil, err
	}
	source := []byte(text)

	var out []catalog.Invocable
	err = a.grammar.parse(source, func(root *sitter.Node) {
		for _, child := range namedChildren(root) {
			def, _ := unwrapDecorated(child, source)
			switch def.Kind() {
			case "function_definition":
				if inv, ok := pythonFunction(path, def, source, "", false); ok {
					out = append(out, inv)
				}
			case "class_definition":
				out = append(out, pythonClass(path, def, source)...)
			}
		}
	})
	if err != nil {
		a.logger.Warn("failed to parse", "adapter", a.Name(), "path", path, "err", err)
		return nil, nil
	}
	return out, nil
}

// unwrapDecorated returns the definition inside a decorated_definition and
// whether one of its decorators is @staticmethod.
func unwrapDecorated(node *sitter.Node, source []byte) (*sitter.Node, bool) {
	if node.Kind() != "decorated_definition" {
		return node, false
	}
	static := false
	for _, c := range namedChildren(node) {
		if c.Kind() == "decorator" && strings.TrimSpace(nodeText(c, source)) == "@staticmethod" {
			static = true
		}
	}
	if def := node.ChildByFieldName("definition"); def != nil {
		return def, static
	}
	return node, static
}

func pythonClass(path string, class *sitter.Node, source []byte) []catalog.Invocable {
	className := fieldText(class, "name", source)
	if strings.HasPrefix(className, "_") {
		return nil
	}
	var out []catalog.Invocable
	for _, child := range namedChildren(class.ChildByFieldName("body")) {
		def, static := unwrapDecorated(child, source)
		if def.Kind() != "function_definition" {
			continue
		}
		if inv, ok := pythonFunction(path, def, source, className, !static); ok {
			out = append(out, inv)
		}
	}
	return out
}

// pythonFunction builds the record for one def. hasReceiver drops the first
// parameter (self or cls).
func pythonFunction(path string, def *sitter.Node, source []byte, className string, hasReceiver bool) (catalog.Invocable, bool) {
	name := fieldText(def, "name", source)
	if name == "" || strings.HasPrefix(name, "_") {
		return catalog.Invocable{}, false
	}

	params := pythonParams(def.ChildByFieldName("parameters"), source, hasReceiver)
	retNative := fieldText(def, "return_type", source)
	dc := parsePythonDocstring(pythonDocstring(def, source))
	typed := applyParamDocs(params, dc)
	if retNative == "" && dc.Returns.Type != "" {
		retNative = dc.Returns.Type
	}

	qualified := name
	if className != "" {
		qualified = className + "." + name
	}
	inv := catalog.Invocable{
		Name:          qualified,
		Kind:          catalog.KindPythonScript,
		Parameters:    params,
		Documentation: dc.Summary,
		Origin:        catalog.Origin{Path: path, Line: nodeLine(def)},
		Execution: catalog.ProcessInvoke{
			Executable:  "python3",
			Interpreter: "python",
			ScriptPath:  path,
			Function:    qualified,
			ArgStyle:    "positional",
		},
	}
	if retNative != "" && retNative != "None" {
		inv.Return = catalog.NewReturn(retNative)
	}
	return finish(inv, confidence.Factors{
		Documentation: evidence(dc.Summary != "", "docstring"),
		Parameters:    evidence(typed, "type annotations"),
		ReturnType:    evidence(retNative != "", "return annotation"),
	}), true
}

func pythonParams(node *sitter.Node, source []byte, hasReceiver bool) []catalog.Parameter {
	var params []catalog.Parameter
	for i, p := range namedChildren(node) {
		if hasReceiver && i == 0 {
			continue
		}
		switch p.Kind() {
		case "identifier":
			params = append(params, untypedParam(nodeText(p, source), true))
		case "typed_parameter":
			name := nodeText(findChildByType(p, "identifier"), source)
			native := fieldText(p, "type", source)
			if splat := findChildByType(p, "list_splat_pattern"); splat != nil {
				name = strings.TrimPrefix(nodeText(splat, source), "*")
				params = append(params, catalog.Parameter{Name: name, Type: textscan.TypeArray, NativeType: native})
				continue
			}
			if splat := findChildByType(p, "dictionary_splat_pattern"); splat != nil {
				name = strings.TrimPrefix(nodeText(splat, source), "**")
				params = append(params, catalog.Parameter{Name: name, Type: textscan.TypeObject, NativeType: native})
				continue
			}
			params = append(params, typedParam(name, native, true))
		case "default_parameter":
			params = append(params, untypedParam(fieldText(p, "name", source), false))
		case "typed_default_parameter":
			params = append(params, typedParam(fieldText(p, "name", source), fieldText(p, "type", source), false))
		case "list_splat_pattern":
			name := strings.TrimPrefix(nodeText(p, source), "*")
			params = append(params, catalog.Parameter{Name: name, Type: textscan.TypeArray})
		case "dictionary_splat_pattern":
			name := strings.TrimPrefix(nodeText(p, source), "**")
			params = append(params, catalog.Parameter{Name: name, Type: textscan.TypeObject})
		}
	}
	return params
}

// pythonDocstring returns the raw string literal opening a function body.
func pythonDocstring(def *sitter.Node, source []byte) string {
	body := def.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Kind() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str.Kind() != "string" {
		return ""
	}
	return nodeText(str, source)
}

var (
	sphinxParam  = regexp.MustCompile(`^:(?:param|parameter|arg|argument)\s+(?:(\S+)\s+)?(\w+):\s*(.*)$`)
	sphinxType   = regexp.MustCompile(`^:type\s+(\w+):\s*(.*)$`)
	sphinxReturn = regexp.MustCompile(`^:returns?:\s*(.*)$`)
	sphinxRType  = regexp.MustCompile(`^:rtype:\s*(.*)$`)
	googleArg    = regexp.MustCompile(`^(\*{0,2}\w+)\s*(?:\(([^)]*)\))?:\s*(.*)$`)
	googleReturn = regexp.MustCompile(`^([^:]+):\s*(.*)$`)
)

// parsePythonDocstring understands plain summaries plus Sphinx field lists
// (:param x:, :type x:, :rtype:) and Google-style Args/Returns sections.
func parsePythonDocstring(raw string) textscan.DocComment {
	dc := textscan.DocComment{Params: map[string]textscan.TagDoc{}}
	body := stripPythonQuotes(raw)
	if body == "" {
		return dc
	}

	var summary []string
	section := ""
	inSummary := true
	for _, line := range dedent(body) {
		t := strings.TrimSpace(line)
		indented := strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")

		switch strings.ToLower(strings.TrimSuffix(t, ":")) {
		case "args", "arguments", "parameters", "params":
			if strings.HasSuffix(t, ":") {
				section, inSummary = "args", false
				continue
			}
		case "returns", "return", "yields":
			if strings.HasSuffix(t, ":") {
				section, inSummary = "returns", false
				continue
			}
		case "raises", "examples", "example", "note", "notes", "attributes", "see also":
			if strings.HasSuffix(t, ":") {
				section, inSummary = "other", false
				continue
			}
		}

		if m := sphinxParam.FindStringSubmatch(t); m != nil {
			inSummary = false
			td := dc.Params[m[2]]
			td.Description = m[3]
			if m[1] != "" {
				td.Type = m[1]
			}
			dc.Params[m[2]] = td
			continue
		}
		if m := sphinxType.FindStringSubmatch(t); m != nil {
			inSummary = false
			td := dc.Params[m[1]]
			td.Type = m[2]
			dc.Params[m[1]] = td
			continue
		}
		if m := sphinxReturn.FindStringSubmatch(t); m != nil {
			inSummary = false
			dc.Returns.Description = m[1]
			continue
		}
		if m := sphinxRType.FindStringSubmatch(t); m != nil {
			inSummary = false
			dc.Returns.Type = m[1]
			continue
		}

		switch {
		case inSummary:
			if t == "" && len(summary) > 0 {
				inSummary = false
				continue
			}
			if t != "" {
				summary = append(summary, t)
			}
		case section == "args" && indented:
			if m := googleArg.FindStringSubmatch(t); m != nil {
				name := strings.TrimLeft(m[1], "*")
				dc.Params[name] = textscan.TagDoc{Type: m[2], Description: m[3]}
			}
		case section == "returns" && indented && dc.Returns.Type == "" && dc.Returns.Description == "":
			if m := googleReturn.FindStringSubmatch(t); m != nil && !strings.Contains(m[1], " ") {
				dc.Returns = textscan.TagDoc{Type: m[1], Description: m[2]}
			} else {
				dc.Returns.Description = t
			}
		}
	}
	dc.Summary = strings.Join(summary, " ")
	return dc
}

func stripPythonQuotes(raw string) string {
	s := strings.TrimLeft(raw, "rRuUbBfF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return ""
}

// dedent removes the common leading whitespace of every line after the first.
func dedent(s string) []string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	indent := -1
	for _, l := range lines[1:] {
		if strings.TrimSpace(l) == "" {
			continue
		}
		n := len(l) - len(strings.TrimLeft(l, " \t"))
		if indent < 0 || n < indent {
			indent = n
		}
	}
	lines[0] = strings.TrimSpace(lines[0])
	if indent > 0 {
		for i := 1; i < len(lines); i++ {
			if len(lines[i]) >= indent {
				lines[i] = lines[i][indent:]
			} else {
				lines[i] = strings.TrimLeft(lines[i], " \t")
			}
		}
	}
	return lines
}
