package adapters

import (
	"context"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/mvp-joe/callmap/internal/catalog"
	"github.com/mvp-joe/callmap/internal/confidence"
	"github.com/mvp-joe/callmap/internal/textscan"
)

// PowerShellAdapter lists the functions of a PowerShell script, reading
// comment-based help, param blocks and [OutputType()] attributes. A script
// without functions is itself the invocable.
type PowerShellAdapter struct {
	logger *log.Logger
}

func NewPowerShellAdapter(deps Deps) *PowerShellAdapter {
	return &PowerShellAdapter{logger: deps.logger()}
}

func (a *PowerShellAdapter) Name() string { return "powershell" }

func (a *PowerShellAdapter) Kinds() []catalog.FileKind {
	return []catalog.FileKind{catalog.KindPowerShellScript}
}

func (a *PowerShellAdapter) Policy() catalog.DedupPolicy { return catalog.FirstSeenWins }

var (
	psFunction   = regexp.MustCompile(`(?im)^[ \t]*(?:function|filter|workflow)[ \t]+(?:(global|script|private|local):)?([A-Za-z_][\w-]*)[ \t]*(\()?`)
	psParamBlock = regexp.MustCompile(`(?i)\bparam\s*\(`)
	psOutputType = regexp.MustCompile(`(?i)\[OutputType\(\s*(?:\[([^\]]+)\]|['"]([\w.]+)['"]|([\w.]+))`)
	psVariable   = regexp.MustCompile(`\$([A-Za-z_]\w*)`)
	psHelpKey    = regexp.MustCompile(`^\.([A-Za-z]+)\s*(.*)$`)
)

func (a *PowerShellAdapter) Extract(ctx context.Context, path string) ([]catalog.Invocable, error) {
	text, err := readText(path)
	if err != nil {
		return nil, err
	}
	idx := textscan.NewCommentIndex(text, textscan.PowerShellSyntax)

	var out []catalog.Invocable
	for _, m := range psFunction.FindAllStringSubmatchIndex(text, -1) {
		if idx.InComment(m[4]) {
			continue
		}
		if m[2] >= 0 && strings.EqualFold(text[m[2]:m[3]], "private") {
			continue
		}
		name := text[m[4]:m[5]]
		fn := psFunctionDecl{name: name, line: textscan.LineOf(text, m[4])}

		pos := m[1]
		if m[6] >= 0 {
			closeIdx := matchClose(text, m[6], idx, `"'`)
			if closeIdx < 0 {
				continue
			}
			fn.params = idx.Blank(text, m[6]+1, closeIdx)
			fn.hasParams = true
			pos = closeIdx + 1
		}
		open := strings.IndexByte(text[pos:], '{')
		if open < 0 || !onlySpace(text[pos:pos+open]) {
			continue
		}
		open += pos
		closeIdx := matchClose(text, open, idx, `"'`)
		if closeIdx < 0 {
			a.logger.Debug("unterminated function body", "path", path, "function", name)
			continue
		}

		fn.help = textscan.DocAbove(text, m[4], idx, textscan.PowerShellSyntax)
		if fn.help == "" {
			fn.help = leadingBlockComment(text, open+1, closeIdx, idx)
		}
		fn.readBody(text, open+1, closeIdx, idx)
		out = append(out, fn.invocable(path))
	}

	if len(out) == 0 {
		fn := psFunctionDecl{name: scriptName(path), line: 1, script: true}
		fn.help = leadingBlockComment(text, 0, len(text), idx)
		fn.readBody(text, 0, len(text), idx)
		out = append(out, fn.invocable(path))
	}
	return out, nil
}

// leadingBlockComment returns the cleaned <# #> block that opens text[start:end].
func leadingBlockComment(text string, start, end int, idx *textscan.CommentIndex) string {
	for _, s := range idx.Spans() {
		if s.Start < start {
			continue
		}
		if s.Start >= end || !onlySpace(text[start:s.Start]) {
			return ""
		}
		body := text[s.Start:s.End]
		if strings.HasPrefix(body, "<#") {
			return textscan.CleanComment(body, textscan.PowerShellSyntax)
		}
		// skip a leading line comment such as #Requires
		start = s.End
	}
	return ""
}

type psFunctionDecl struct {
	name       string
	line       int
	script     bool
	help       string
	params     string
	hasParams  bool
	outputType string
}

// readBody picks the param block and [OutputType()] out of a function body.
func (fn *psFunctionDecl) readBody(text string, start, end int, idx *textscan.CommentIndex) {
	body := idx.Blank(text, start, end)
	loc := psParamBlock.FindStringIndex(body)
	if m := psOutputType.FindStringSubmatch(body); m != nil {
		for _, g := range m[1:] {
			if g != "" {
				fn.outputType = g
				break
			}
		}
	}
	if fn.hasParams || loc == nil || strings.Contains(body[:loc[0]], "{") {
		return
	}
	open := start + loc[1] - 1
	closeIdx := matchClose(text, open, idx, `"'`)
	if closeIdx < 0 || closeIdx > end {
		return
	}
	fn.params = idx.Blank(text, open+1, closeIdx)
	fn.hasParams = true
}

// psHelp is parsed comment-based help.
type psHelp struct {
	Synopsis    string
	Description string
	Params      map[string]string
	Outputs     string
}

func parsePSHelp(raw string) psHelp {
	h := psHelp{Params: map[string]string{}}
	key, arg := "", ""
	var buf []string
	flush := func() {
		content := strings.TrimSpace(strings.Join(buf, " "))
		switch strings.ToUpper(key) {
		case "SYNOPSIS":
			h.Synopsis = content
		case "DESCRIPTION":
			h.Description = content
		case "PARAMETER":
			h.Params[strings.ToLower(arg)] = content
		case "OUTPUTS":
			if f := strings.Fields(content); len(f) > 0 && h.Outputs == "" {
				h.Outputs = strings.TrimRight(f[0], ".,;")
			}
		}
		buf = buf[:0]
	}
	for _, line := range strings.Split(raw, "\n") {
		t := strings.TrimSpace(line)
		if m := psHelpKey.FindStringSubmatch(t); m != nil {
			flush()
			key, arg = m[1], strings.TrimSpace(m[2])
			continue
		}
		if t != "" {
			buf = append(buf, t)
		}
	}
	flush()
	return h
}

// psParams parses the entries of a param block or inline parameter list.
func psParams(list string) ([]catalog.Parameter, bool) {
	var params []catalog.Parameter
	typed := true
	for _, entry := range textscan.SplitParams(list) {
		vars := psVariable.FindAllStringSubmatchIndex(entry, -1)
		if len(vars) == 0 {
			continue
		}
		// the declared variable is the first one outside attribute brackets
		var nameLoc []int
		for _, v := range vars {
			if strings.Count(entry[:v[0]], "[") == strings.Count(entry[:v[0]], "]") {
				nameLoc = v
				break
			}
		}
		if nameLoc == nil {
			continue
		}
		name := entry[nameLoc[2]:nameLoc[3]]
		attrs := entry[:nameLoc[0]]
		rest := entry[nameLoc[1]:]

		native := psDeclaredType(attrs)
		required := psMandatory(attrs)
		if strings.Contains(rest, "=") || strings.EqualFold(native, "switch") {
			required = false
		}
		var p catalog.Parameter
		if native != "" {
			p = typedParam(name, native, required)
		} else {
			p = untypedParam(name, required)
			typed = false
		}
		params = append(params, p)
	}
	return params, typed
}

// psDeclaredType is the last bare [Type] attribute, ignoring [Parameter()] and
// validation attributes which carry parentheses.
func psDeclaredType(attrs string) string {
	native := ""
	for i := 0; i < len(attrs); i++ {
		if attrs[i] != '[' {
			continue
		}
		closeIdx := matchClose(attrs, i, nil, `"'`)
		if closeIdx < 0 {
			break
		}
		inner := strings.TrimSpace(attrs[i+1 : closeIdx])
		if !strings.Contains(inner, "(") {
			native = inner
		}
		i = closeIdx
	}
	return native
}

var psMandatoryRe = regexp.MustCompile(`(?i)\bMandatory\b(\s*=\s*\$(true|false))?`)

func psMandatory(attrs string) bool {
	m := psMandatoryRe.FindStringSubmatch(attrs)
	return m != nil && !strings.EqualFold(m[2], "false")
}

func (fn *psFunctionDecl) invocable(path string) catalog.Invocable {
	help := parsePSHelp(fn.help)
	params, typed := psParams(fn.params)
	for i := range params {
		params[i].Description = help.Params[strings.ToLower(params[i].Name)]
	}

	retNative, retSource := fn.outputType, "[OutputType()]"
	if retNative == "" && help.Outputs != "" {
		retNative, retSource = help.Outputs, ".OUTPUTS help"
	}
	doc := help.Synopsis
	if doc == "" {
		doc = help.Description
	}

	function := fn.name
	if fn.script {
		function = ""
	}
	inv := catalog.Invocable{
		Name:          fn.name,
		Kind:          catalog.KindPowerShellScript,
		Parameters:    params,
		Documentation: doc,
		Origin:        catalog.Origin{Path: path, Line: fn.line},
		Execution: catalog.ProcessInvoke{
			Executable:  "pwsh",
			Interpreter: "powershell",
			ScriptPath:  path,
			Function:    function,
			ArgStyle:    "named",
		},
	}
	if retNative != "" && !strings.EqualFold(retNative, "void") && !strings.EqualFold(retNative, "None") {
		inv.Return = catalog.NewReturn(strings.Trim(retNative, "[]"))
	}
	return finish(inv, confidence.Factors{
		Documentation: evidence(doc != "", "comment-based help"),
		Parameters:    evidence(fn.hasParams && typed, "param block"),
		ReturnType:    evidence(retNative != "", retSource),
	})
}
