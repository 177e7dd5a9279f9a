package adapters

import (
	"context"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/confidence"
	"github.com/mvp-joe/callmap/internal/hosts"
	"github.com/mvp-joe/callmap/internal/textscan"
)

// SymbolsAdapter lists the functions recorded in a debug symbol file.
type SymbolsAdapter struct {
	logger    *log.Logger
	resolver  hosts.SymbolResolver
	demangler hosts.Demangler
	internal  patternSet
	names     patternSet
}

// NewSymbolsAdapter creates the debug-symbol adapter. internal filters compiler
// and runtime symbols; names are the conventional-name patterns.
func NewSymbolsAdapter(deps Deps, internal, names patternSet) *SymbolsAdapter {
	d := deps.Hosts.Demangler
	if d == nil {
		d = hosts.ItaniumDemangler{}
	}
	return &SymbolsAdapter{
		logger:    deps.logger(),
		resolver:  deps.Hosts.Symbols,
		demangler: d,
		internal:  internal,
		names:     names,
	}
}

func (a *SymbolsAdapter) Name() string { return "symbols" }

func (a *SymbolsAdapter) Kinds() []catalog.FileKind {
	return []catalog.FileKind{catalog.KindDebugSymbols}
}

// Policy is first-seen-wins on the cleaned name: overload and thunk copies of a
// function collapse onto the first record.
func (a *SymbolsAdapter) Policy() catalog.DedupPolicy { return catalog.FirstSeenWins }

func (a *SymbolsAdapter) Extract(ctx context.Context, path string) ([]catalog.Invocable, error) {
	if err := statArtifact(path); err != nil {
		return nil, err
	}
	if a.resolver == nil {
		return nil, nil
	}
	syms, err := a.resolver.Symbols(ctx, path)
	if err != nil {
		hostFailure(a.logger, a.Name(), path, err)
		return nil, nil
	}

	var out []catalog.Invocable
	skipped := 0
	for _, s := range syms {
		if !isFunctionSymbol(s.Kind) || a.internal.match(s.Name) != "" {
			skipped++
			continue
		}
		if inv, ok := a.symbolInvocable(path, s); ok {
			out = append(out, inv)
		}
	}
	a.logger.Debug("symbols", "path", path, "kept", len(out), "skipped", skipped)
	return out, nil
}

func isFunctionSymbol(kind string) bool {
	k := strings.ToLower(kind)
	return k == "" || strings.Contains(k, "func") || strings.Contains(k, "proc") || k == "public" || k == "thunk"
}

func (a *SymbolsAdapter) symbolInvocable(path string, s hosts.Symbol) (catalog.Invocable, bool) {
	exec := catalog.SymbolReference{SymbolFile: path, Address: s.Address, Module: s.Module}
	factors := confidence.Factors{}
	var (
		name   string
		params []catalog.Parameter
		ret    *catalog.ReturnType
	)

	switch {
	case strings.Contains(s.Undecorated, "("):
		proto, ok := SplitPrototype(s.Undecorated)
		if !ok {
			return catalog.Invocable{}, false
		}
		name = proto.Name
		for i, raw := range textscan.SplitParams(proto.Params) {
			params = append(params, catalog.NewParameter(raw, i))
		}
		factors.Parameters = "undecorated prototype"
		if proto.Return != "" {
			factors.ReturnType = "undecorated prototype"
			if !isVoid(proto.Return) {
				ret = catalog.NewReturn(proto.Return)
			}
		}
	default:
		demangled, ok := a.demangler.Demangle(s.Name)
		if ok && strings.Contains(demangled, "(") {
			proto, pok := SplitPrototype(demangled)
			if !pok {
				return catalog.Invocable{}, false
			}
			name = proto.Name
			params = positionalParams(proto.Params)
			factors.Parameters = "demangled name"
		} else if ok {
			name = demangled
		} else {
			name = undecorateC(s.Name)
		}
	}
	if name == "" {
		return catalog.Invocable{}, false
	}
	if name != s.Name {
		exec.MangledName = s.Name
	}
	exec.Symbol = name
	if factors.Parameters == "" && factors.ReturnType == "" {
		factors.NamePattern = a.names.match(name)
	}

	inv := catalog.Invocable{
		Name:       name,
		Kind:       catalog.KindDebugSymbols,
		Parameters: params,
		Return:     ret,
		Origin:     catalog.Origin{Path: path},
		Execution:  exec,
	}
	if factors.Parameters == "" {
		inv.Signature = name
	}
	return finish(inv, factors), true
}

// positionalParams types a demangled parameter list, which carries types only.
func positionalParams(list string) []catalog.Parameter {
	raw := textscan.SplitParams(list)
	params := make([]catalog.Parameter, 0, len(raw))
	for i, p := range raw {
		param := typedParam("arg"+strconv.Itoa(i), p, true)
		if p == "..." {
			param = catalog.Parameter{Name: "args", Type: textscan.TypeArray, NativeType: "..."}
		}
		params = append(params, param)
	}
	return params
}

// Prototype is a function declaration split into its parts.
type Prototype struct {
	Return string
	Name   string
	Params string
}

// SplitPrototype splits "ret scope::name(params) qualifiers" at the parameter
// list that closes the declaration. Return may be empty.
func SplitPrototype(s string) (Prototype, bool) {
	s = strings.TrimSpace(s)
	closeIdx := strings.LastIndexByte(s, ')')
	if closeIdx < 0 {
		return Prototype{}, false
	}
	depth := 0
	openIdx := -1
	for i := closeIdx; i >= 0; i-- {
		switch s[i] {
		case ')':
			depth++
		case '(':
			depth--
			if depth == 0 {
				openIdx = i
			}
		}
		if openIdx >= 0 {
			break
		}
	}
	if openIdx <= 0 {
		return Prototype{}, false
	}

	head := strings.TrimSpace(s[:openIdx])
	nameStart := nameStartIndex(head)
	name := strings.TrimSpace(head[nameStart:])
	if name == "" {
		return Prototype{}, false
	}
	return Prototype{
		Return: textscan.NormalizeReturnType(head[:nameStart]),
		Name:   name,
		Params: s[openIdx+1 : closeIdx],
	}, true
}

// nameStartIndex finds where the (possibly scoped, possibly templated) name
// at the end of head begins.
func nameStartIndex(head string) int {
	depth := 0
	for i := len(head) - 1; i >= 0; i-- {
		c := head[i]
		switch {
		case c == '>':
			depth++
		case c == '<':
			depth--
		case depth == 0 && (c == ' ' || c == '*' || c == '&'):
			return i + 1
		}
	}
	return 0
}

// undecorateC strips the x86 C decorations: a leading underscore and the
// stdcall "@bytes" suffix.
func undecorateC(name string) string {
	if at := strings.LastIndexByte(name, '@'); at > 0 && isDigits(name[at+1:]) {
		name = name[:at]
	}
	name = strings.TrimPrefix(name, "@")
	if strings.HasPrefix(name, "_") && !strings.HasPrefix(name, "__") {
		name = name[1:]
	}
	return name
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
