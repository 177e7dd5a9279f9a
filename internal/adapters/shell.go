package adapters

import (
	"context"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/syntax"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/confidence"
	"github.com/mvp-joe/callmap/internal/textscan"
)

// ShellAdapter lists the functions of a POSIX or bash script. Shell arguments
// are untyped strings; parameters are established only when the doc comment
// names every positional the body reads. A script without functions is
// itself the invocable.
type ShellAdapter struct {
	logger *log.Logger
}

func NewShellAdapter(deps Deps) *ShellAdapter {
	return &ShellAdapter{logger: deps.logger()}
}

func (a *ShellAdapter) Name() string { return "shell" }

func (a *ShellAdapter) Kinds() []catalog.FileKind {
	return []catalog.FileKind{catalog.KindShellScript}
}

func (a *ShellAdapter) Policy() catalog.DedupPolicy { return catalog.FirstSeenWins }

func (a *ShellAdapter) Extract(ctx context.Context, path string) ([]catalog.Invocable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	parser := syntax.NewParser(syntax.KeepComments(true), syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(f, path)
	if err != nil {
		a.logger.Warn("failed to parse", "adapter", a.Name(), "path", path, "err", err)
		return nil, nil
	}

	var out []catalog.Invocable
	for _, stmt := range file.Stmts {
		fn, ok := stmt.Cmd.(*syntax.FuncDecl)
		if !ok || fn.Name == nil || strings.HasPrefix(fn.Name.Value, "_") {
			continue
		}
		out = append(out, shellInvocable(path, fn.Name.Value, fn.Name.Value, int(stmt.Pos().Line()), stmtDoc(stmt), fn.Body))
	}
	if len(out) == 0 {
		doc := headerDoc(file)
		out = append(out, shellInvocable(path, scriptName(path), "", 1, doc, file))
	}
	return out, nil
}

// stmtDoc joins the comment lines that directly precede stmt.
func stmtDoc(stmt *syntax.Stmt) string {
	line := stmt.Pos().Line()
	var lines []string
	for i := len(stmt.Comments) - 1; i >= 0; i-- {
		c := stmt.Comments[i]
		if c.Hash.Line() != line-1 {
			break
		}
		lines = append([]string{c.Text}, lines...)
		line = c.Hash.Line()
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// headerDoc is the first comment block of a script, skipping the shebang.
func headerDoc(file *syntax.File) string {
	var comments []syntax.Comment
	if len(file.Stmts) > 0 {
		comments = file.Stmts[0].Comments
	} else {
		comments = file.Last
	}
	var lines []string
	var prev uint
	for _, c := range comments {
		if strings.HasPrefix(c.Text, "!") {
			prev = c.Hash.Line()
			continue
		}
		if len(lines) > 0 && c.Hash.Line() != prev+1 {
			break
		}
		lines = append(lines, c.Text)
		prev = c.Hash.Line()
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

type shellPositional struct {
	index    int
	name     string
	optional bool
}

// shellPositionals scans body for $1..$9 and "$@". Positionals assigned to a
// named variable (local x=$1, x="${1}") take that name.
func shellPositionals(body syntax.Node) ([]shellPositional, bool) {
	found := map[int]*shellPositional{}
	variadic := false
	note := func(p *syntax.ParamExp, name string) {
		if p == nil || p.Param == nil {
			return
		}
		v := p.Param.Value
		if v == "@" || v == "*" {
			variadic = true
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return
		}
		sp, ok := found[n]
		if !ok {
			sp = &shellPositional{index: n}
			found[n] = sp
		}
		if name != "" && sp.name == "" {
			sp.name = name
		}
		if p.Exp != nil && (p.Exp.Op == syntax.DefaultUnset || p.Exp.Op == syntax.DefaultUnsetOrNull) {
			sp.optional = true
		}
	}
	syntax.Walk(body, func(n syntax.Node) bool {
		switch x := n.(type) {
		case *syntax.Assign:
			if x.Name != nil && x.Value != nil {
				note(wordParam(x.Value), x.Name.Value)
			}
		case *syntax.ParamExp:
			note(x, "")
		case *syntax.FuncDecl:
			// nested functions read their own arguments
			return false
		}
		return true
	})

	out := make([]shellPositional, 0, len(found))
	for _, sp := range found {
		out = append(out, *sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out, variadic
}

// wordParam returns the expansion when w is exactly one positional expansion,
// optionally double-quoted.
func wordParam(w *syntax.Word) *syntax.ParamExp {
	if len(w.Parts) != 1 {
		return nil
	}
	switch p := w.Parts[0].(type) {
	case *syntax.ParamExp:
		return p
	case *syntax.DblQuoted:
		if len(p.Parts) == 1 {
			pe, _ := p.Parts[0].(*syntax.ParamExp)
			return pe
		}
	}
	return nil
}

// shellInvocable builds one record; function is empty for the script itself.
func shellInvocable(path, name, function string, line int, doc string, body syntax.Node) catalog.Invocable {
	positionals, variadic := shellPositionals(body)
	dc := textscan.ParseDocComment(doc)

	var params []catalog.Parameter
	covered := len(positionals) > 0 || variadic
	for _, sp := range positionals {
		pname := sp.name
		if pname == "" {
			pname = "arg" + strconv.Itoa(sp.index)
		}
		p := typedParam(pname, "string", !sp.optional)
		td, ok := dc.Params[pname]
		if !ok {
			td, ok = dc.Params[strconv.Itoa(sp.index)]
		}
		if ok {
			p.Description = td.Description
		} else {
			covered = false
		}
		params = append(params, p)
	}
	if variadic {
		p := catalog.Parameter{Name: "args", Type: textscan.TypeArray, NativeType: "string..."}
		if td, ok := dc.Params["args"]; ok {
			p.Description = td.Description
		} else {
			covered = false
		}
		params = append(params, p)
	}

	inv := catalog.Invocable{
		Name:          name,
		Kind:          catalog.KindShellScript,
		Parameters:    params,
		Documentation: dc.Summary,
		Origin:        catalog.Origin{Path: path, Line: line},
		Execution: catalog.ProcessInvoke{
			Executable:  "bash",
			Interpreter: "bash",
			ScriptPath:  path,
			Function:    function,
			ArgStyle:    "positional",
		},
	}
	hasReturn := dc.Returns.Type != "" || dc.Returns.Description != ""
	if hasReturn {
		native := dc.Returns.Type
		if native == "" {
			native = "string"
		}
		inv.Return = catalog.NewReturn(native)
	}
	return finish(inv, confidence.Factors{
		Documentation: evidence(dc.Summary != "", "comment"),
		Parameters:    evidence(covered, "@param comments"),
		ReturnType:    evidence(hasReturn, "@return comment"),
	})
}
