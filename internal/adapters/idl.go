package adapters

import (
	"context"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/confidence"
	"github.com/mvp-joe/callmap/internal/textscan"
)

// IDLAdapter lists the operations declared in CORBA or Microsoft IDL. CORBA
// interfaces become corba_call records, MIDL [object] and dispinterfaces
// com_dispatch, and other [uuid] interfaces MS-RPC rpc_call.
type IDLAdapter struct {
	logger *log.Logger
}

func NewIDLAdapter(deps Deps) *IDLAdapter {
	return &IDLAdapter{logger: deps.logger()}
}

func (a *IDLAdapter) Name() string { return "idl" }

func (a *IDLAdapter) Kinds() []catalog.FileKind {
	return []catalog.FileKind{catalog.KindCORBAIDL}
}

func (a *IDLAdapter) Policy() catalog.DedupPolicy { return catalog.FirstSeenWins }

func (a *IDLAdapter) Extract(ctx context.Context, path string) ([]catalog.Invocable, error) {
	text, err := readText(path)
	if err != nil {
		return nil, err
	}
	var out []catalog.Invocable
	for _, iface := range ScanIDL(text) {
		for _, op := range iface.Operations {
			out = append(out, idlInvocable(path, iface, op))
		}
	}
	return out, nil
}

// IDL interface flavors.
const (
	FlavorCORBA = "corba"
	FlavorRPC   = "rpc"
	FlavorCOM   = "com"
)

// IDLInterface is one interface or dispinterface body.
type IDLInterface struct {
	Module     []string
	Name       string
	Flavor     string
	UUID       string
	Version    string
	Doc        string
	Line       int
	Operations []IDLOperation
}

// IDLOperation is an operation, or one accessor of an attribute or property.
type IDLOperation struct {
	Name       string
	InvokeKind string // method, propget, propput, propputref
	DispID     *int32
	Params     []IDLParam
	Return     string
	Oneway     bool
	Doc        string
	Line       int
	Opnum      int
}

// IDLParam is one operation parameter. Dir is in, out or inout.
type IDLParam struct {
	Name     string
	Type     string
	Dir      string
	Retval   bool
	Optional bool
}

// idlSyntax treats any comment directly above a declaration as its documentation.
var idlSyntax = textscan.CommentSyntax{
	Line:     []string{"//"},
	Block:    [][2]string{{"/*", "*/"}},
	Quotes:   `"`,
	DocLine:  []string{"//"},
	DocBlock: []string{"/*"},
}

type idlToken struct {
	text string
	off  int
}

// tokenizeIDL splits comment-free IDL into identifiers (scoped names joined),
// string literals, numbers and single-character punctuation. Preprocessor
// lines are dropped.
func tokenizeIDL(code string) []idlToken {
	var toks []idlToken
	n := len(code)
	lineStart := true
	for i := 0; i < n; {
		c := code[i]
		switch {
		case c == '\n':
			lineStart = true
			i++
			continue
		case c == ' ' || c == '\t' || c == '\r':
			i++
			continue
		case c == '#' && lineStart:
			for i < n && code[i] != '\n' {
				i++
			}
			continue
		}
		lineStart = false
		start := i
		switch {
		case isIdentByte(c) && !(c >= '0' && c <= '9'), c == ':' && i+1 < n && code[i+1] == ':':
			for i < n && (isIdentByte(code[i]) || (code[i] == ':' && i+1 < n && code[i+1] == ':')) {
				if code[i] == ':' {
					i += 2
					continue
				}
				i++
			}
		case c >= '0' && c <= '9':
			for i < n && (isIdentByte(code[i]) || code[i] == '.' || code[i] == '-') {
				i++
			}
		case c == '"':
			i++
			for i < n && code[i] != '"' {
				if code[i] == '\\' {
					i++
				}
				i++
			}
			i++
		default:
			i++
		}
		if i > n {
			i = n
		}
		toks = append(toks, idlToken{text: code[start:i], off: start})
	}
	return toks
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

type idlParser struct {
	text string
	code string
	idx  *textscan.CommentIndex
	toks []idlToken
	pos  int
	out  []IDLInterface
}

// ScanIDL parses IDL text into interfaces. It is a pure function of its input.
func ScanIDL(text string) []IDLInterface {
	idx := textscan.NewCommentIndex(text, idlSyntax)
	code := idx.Blank(text, 0, len(text))
	p := &idlParser{text: text, code: code, idx: idx, toks: tokenizeIDL(code)}
	p.scope(nil)
	return p.out
}

func (p *idlParser) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos].text
	}
	return ""
}

func (p *idlParser) next() idlToken {
	if p.pos < len(p.toks) {
		t := p.toks[p.pos]
		p.pos++
		return t
	}
	return idlToken{off: len(p.code)}
}

func (p *idlParser) accept(s string) bool {
	if p.peek() == s {
		p.pos++
		return true
	}
	return false
}

func (p *idlParser) doc(off int) string {
	return textscan.DocAbove(p.text, off, p.idx, idlSyntax)
}

// skipStatement advances past the next ';' at brace depth zero. A closing
// brace of the enclosing scope is left in place.
func (p *idlParser) skipStatement() {
	depth := 0
	for p.pos < len(p.toks) {
		switch p.peek() {
		case "{":
			depth++
		case "}":
			if depth == 0 {
				return
			}
			depth--
		case ";":
			if depth == 0 {
				p.pos++
				return
			}
		}
		p.pos++
	}
}

// skipGroup consumes a balanced (...) group when one is next.
func (p *idlParser) skipGroup() {
	if p.peek() != "(" {
		return
	}
	depth := 0
	for p.pos < len(p.toks) {
		switch p.next().text {
		case "(":
			depth++
		case ")":
			depth--
			if depth == 0 {
				return
			}
		}
	}
}

// attrs parses a [ ... ] attribute list into lower-cased names and raw args.
func (p *idlParser) attrs() map[string]string {
	open := p.next()
	closeIdx := matchClose(p.code, open.off, nil, `"`)
	if closeIdx < 0 {
		p.pos = len(p.toks)
		return nil
	}
	for p.pos < len(p.toks) && p.toks[p.pos].off <= closeIdx {
		p.pos++
	}
	return parseIDLAttrs(p.code[open.off+1 : closeIdx])
}

func parseIDLAttrs(s string) map[string]string {
	out := map[string]string{}
	for _, item := range textscan.SplitParams(s) {
		name, arg := item, ""
		if i := strings.IndexByte(item, '('); i >= 0 {
			name = item[:i]
			arg = strings.TrimSuffix(strings.TrimSpace(item[i+1:]), ")")
			arg = strings.Trim(strings.TrimSpace(arg), `"`)
		}
		out[strings.ToLower(strings.TrimSpace(name))] = arg
	}
	return out
}

func (p *idlParser) scope(module []string) {
	var attrs map[string]string
	declStart := -1
	for p.pos < len(p.toks) {
		switch kw := p.peek(); kw {
		case "}":
			p.pos++
			p.accept(";")
			return
		case "[":
			if declStart < 0 {
				declStart = p.toks[p.pos].off
			}
			attrs = p.attrs()
			continue
		case "module", "library":
			p.pos++
			name := p.next().text
			if p.accept("{") {
				p.scope(append(append([]string{}, module...), name))
			}
			p.accept(";")
		case "interface", "dispinterface":
			p.interfaceDecl(module, attrs, declStart)
		case "abstract", "local", "custom":
			p.pos++
			continue
		case "cpp_quote", "midl_pragma":
			p.pos++
			p.skipGroup()
		default:
			p.skipStatement()
		}
		attrs = nil
		declStart = -1
	}
}

func (p *idlParser) interfaceDecl(module []string, attrs map[string]string, declStart int) {
	kw := p.next()
	if declStart < 0 {
		declStart = kw.off
	}
	nameTok := p.next()
	if p.accept(";") {
		return // forward declaration
	}
	for p.pos < len(p.toks) && p.peek() != "{" && p.peek() != ";" {
		p.pos++ // base interfaces
	}
	if !p.accept("{") {
		p.accept(";")
		return
	}

	iface := IDLInterface{
		Module:  module,
		Name:    nameTok.text,
		Flavor:  FlavorCORBA,
		Doc:     p.doc(declStart),
		Line:    textscan.LineOf(p.text, nameTok.off),
		UUID:    attrs["uuid"],
		Version: attrs["version"],
	}
	_, object := attrs["object"]
	switch {
	case kw.text == "dispinterface" || object || hasKey(attrs, "dual"):
		iface.Flavor = FlavorCOM
	case attrs["uuid"] != "":
		iface.Flavor = FlavorRPC
	}
	if iface.Doc == "" {
		iface.Doc = attrs["helpstring"]
	}

	var opAttrs map[string]string
	opStart := -1
	for p.pos < len(p.toks) {
		t := p.peek()
		switch t {
		case "}":
			p.pos++
			p.accept(";")
			p.out = append(p.out, iface)
			return
		case "[":
			if opStart < 0 {
				opStart = p.toks[p.pos].off
			}
			opAttrs = p.attrs()
			continue
		case "properties", "methods":
			p.pos++
			p.accept(":")
			continue
		case "readonly", "attribute":
			iface.Operations = append(iface.Operations, p.attribute()...)
		case "typedef", "struct", "enum", "union", "const", "exception", "native":
			p.skipStatement()
		default:
			iface.Operations = append(iface.Operations, p.operation(&iface, opAttrs, opStart)...)
		}
		opAttrs = nil
		opStart = -1
	}
	p.out = append(p.out, iface)
}

func hasKey(m map[string]string, k string) bool {
	_, ok := m[k]
	return ok
}

// attribute expands a CORBA attribute into _get_ and, unless readonly, _set_.
func (p *idlParser) attribute() []IDLOperation {
	first := p.toks[p.pos]
	readonly := p.accept("readonly")
	if !p.accept("attribute") {
		p.skipStatement()
		return nil
	}
	typeStart := p.pos
	var names []idlToken
	for p.pos < len(p.toks) && p.peek() != ";" && p.peek() != "}" {
		t := p.next()
		if t.text == "," || t.text == "raises" || t.text == "getraises" || t.text == "setraises" {
			if t.text != "," {
				p.skipGroup()
			}
			continue
		}
		if p.peek() == "," || p.peek() == ";" || p.peek() == "raises" || p.peek() == "getraises" || p.peek() == "setraises" {
			names = append(names, t)
		}
	}
	p.accept(";")
	if len(names) == 0 || typeStart >= len(p.toks) {
		return nil
	}
	typ := collapseSpace(p.code[p.toks[typeStart].off:names[0].off])
	doc := p.doc(first.off)
	line := textscan.LineOf(p.text, first.off)

	var ops []IDLOperation
	for _, n := range names {
		ops = append(ops, IDLOperation{Name: "_get_" + n.text, InvokeKind: "propget", Return: typ, Doc: doc, Line: line})
		if !readonly {
			ops = append(ops, IDLOperation{
				Name:       "_set_" + n.text,
				InvokeKind: "propput",
				Params:     []IDLParam{{Name: "value", Type: typ, Dir: "in"}},
				Return:     "void",
				Doc:        doc,
				Line:       line,
			})
		}
	}
	return ops
}

var idlCallModifiers = map[string]bool{
	"STDMETHODCALLTYPE": true, "__stdcall": true, "_stdcall": true, "__cdecl": true,
	"WINAPI": true, "CALLBACK": true, "__RPC_FAR": true,
}

// operation parses "ret name(params) raises(...);" or, in a dispinterface, a
// property declaration "type name;".
func (p *idlParser) operation(iface *IDLInterface, attrs map[string]string, declStart int) []IDLOperation {
	start := p.pos
	for p.pos < len(p.toks) && p.peek() != "(" && p.peek() != ";" && p.peek() != "}" {
		p.pos++
	}
	head := p.toks[start:p.pos]
	if len(head) == 0 {
		p.skipStatement()
		return nil
	}
	nameTok := head[len(head)-1]
	first := head[0]
	if declStart < 0 {
		declStart = first.off
	}
	op := IDLOperation{
		Name:       nameTok.text,
		InvokeKind: "method",
		Doc:        p.doc(declStart),
		Line:       textscan.LineOf(p.text, first.off),
		Opnum:      len(iface.Operations),
	}
	if op.Doc == "" {
		op.Doc = attrs["helpstring"]
	}
	if id, err := strconv.ParseInt(strings.TrimSpace(attrs["id"]), 0, 32); err == nil {
		v := int32(id)
		op.DispID = &v
	}
	for _, k := range []string{"propget", "propput", "propputref"} {
		if hasKey(attrs, k) {
			op.InvokeKind = k
		}
	}

	var ret []string
	for _, w := range strings.Fields(p.code[first.off:nameTok.off]) {
		switch {
		case w == "oneway":
			op.Oneway = true
		case idlCallModifiers[w]:
		default:
			ret = append(ret, w)
		}
	}
	op.Return = strings.Join(ret, " ")

	if p.peek() != "(" {
		// dispinterface property
		p.accept(";")
		if iface.Flavor != FlavorCOM {
			return nil
		}
		op.InvokeKind = "propget"
		ops := []IDLOperation{op}
		if !hasKey(attrs, "readonly") {
			put := op
			put.InvokeKind = "propput"
			put.Params = []IDLParam{{Name: "value", Type: op.Return, Dir: "in"}}
			put.Return = "void"
			ops = append(ops, put)
		}
		return ops
	}

	open := p.next()
	closeIdx := matchClose(p.code, open.off, nil, `"`)
	if closeIdx < 0 {
		p.pos = len(p.toks)
		return nil
	}
	for p.pos < len(p.toks) && p.toks[p.pos].off <= closeIdx {
		p.pos++
	}
	op.Params = parseIDLParams(p.code[open.off+1 : closeIdx])
	p.skipStatement() // raises(...), context(...)
	return []IDLOperation{op}
}

func parseIDLParams(list string) []IDLParam {
	var out []IDLParam
	for i, raw := range textscan.SplitParams(list) {
		prm := IDLParam{Dir: "in"}
		raw = strings.TrimSpace(raw)
		if strings.HasPrefix(raw, "[") {
			if closeIdx := matchClose(raw, 0, nil, `"`); closeIdx > 0 {
				attrs := parseIDLAttrs(raw[1:closeIdx])
				_, in := attrs["in"]
				_, out := attrs["out"]
				switch {
				case in && out:
					prm.Dir = "inout"
				case out:
					prm.Dir = "out"
				}
				prm.Retval = hasKey(attrs, "retval")
				prm.Optional = hasKey(attrs, "optional") || hasKey(attrs, "defaultvalue")
				raw = strings.TrimSpace(raw[closeIdx+1:])
			}
		}
		words := strings.Fields(raw)
		if len(words) > 0 {
			switch words[0] {
			case "in", "out", "inout":
				prm.Dir = words[0]
				words = words[1:]
			}
		}
		if len(words) == 0 {
			continue
		}
		c := textscan.CanonicalizeParam(strings.Join(words, " "), i)
		prm.Name, prm.Type = c.Name, c.Native
		out = append(out, prm)
	}
	return out
}

func idlInvocable(path string, iface IDLInterface, op IDLOperation) catalog.Invocable {
	var params []catalog.Parameter
	retNative := op.Return
	for _, prm := range op.Params {
		if prm.Retval {
			retNative = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(prm.Type), "*"))
			continue
		}
		if prm.Dir == "out" {
			continue
		}
		params = append(params, typedParam(prm.Name, prm.Type, !prm.Optional))
	}
	if iface.Flavor == FlavorCOM && strings.EqualFold(retNative, "HRESULT") {
		retNative = ""
	}

	module := strings.Join(iface.Module, "::")
	qualified := iface.Name
	if module != "" && iface.Flavor == FlavorCORBA {
		qualified = module + "::" + iface.Name
	}

	var exec catalog.Execution
	member := op.Name
	switch iface.Flavor {
	case FlavorCOM:
		exec = catalog.COMDispatch{
			ServerPath:  path,
			Interface:   iface.Name,
			InterfaceID: iface.UUID,
			DispID:      op.DispID,
			InvokeKind:  op.InvokeKind,
			Member:      op.Name,
		}
		qualified = iface.Name
		member = accessorName(op.InvokeKind, op.Name)
	case FlavorRPC:
		exec = catalog.RPCCall{
			IDLPath:       path,
			Interface:     iface.Name,
			InterfaceUUID: iface.UUID,
			Version:       iface.Version,
			Operation:     op.Name,
			Opnum:         op.Opnum,
		}
	default:
		repo := "IDL:" + strings.Join(append(append([]string{}, iface.Module...), iface.Name), "/") + ":1.0"
		exec = catalog.CORBACall{
			IDLPath:      path,
			Module:       module,
			Interface:    iface.Name,
			Operation:    op.Name,
			RepositoryID: repo,
			Oneway:       op.Oneway,
		}
	}

	inv := catalog.Invocable{
		Name:          qualified + "." + member,
		Kind:          catalog.KindCORBAIDL,
		Parameters:    params,
		Documentation: op.Doc,
		Origin:        catalog.Origin{Path: path, Line: op.Line},
		Execution:     exec,
	}
	if retNative != "" && retNative != "void" {
		inv.Return = catalog.NewReturn(retNative)
	}
	return finish(inv, confidence.Factors{
		Documentation: evidence(op.Doc != "", "IDL comment"),
		Parameters:    "IDL declaration",
		ReturnType:    "IDL declaration",
	})
}
