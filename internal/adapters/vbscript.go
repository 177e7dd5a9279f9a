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

// VBScriptAdapter lists the public Function and Sub procedures of a VBScript
// file, qualified by their Class. VBScript is untyped, so types come from
// "As" clauses (accepted for VBA-style sources) or @param comments.
type VBScriptAdapter struct {
	logger *log.Logger
}

func NewVBScriptAdapter(deps Deps) *VBScriptAdapter {
	return &VBScriptAdapter{logger: deps.logger()}
}

func (a *VBScriptAdapter) Name() string { return "vbscript" }

func (a *VBScriptAdapter) Kinds() []catalog.FileKind {
	return []catalog.FileKind{catalog.KindVBScript}
}

func (a *VBScriptAdapter) Policy() catalog.DedupPolicy { return catalog.FirstSeenWins }

var (
	vbProcedure = regexp.MustCompile(`(?i)^(?:(public|private)\s+)?(?:default\s+)?(function|sub)\s+([A-Za-z_]\w*)\s*(?:\((.*)\))?\s*(?:as\s+([\w.]+))?\s*$`)
	vbClass     = regexp.MustCompile(`(?i)^(?:(?:public|private)\s+)?class\s+([A-Za-z_]\w*)\s*$`)
	vbEndClass  = regexp.MustCompile(`(?i)^end\s+class\b`)
	vbComment   = regexp.MustCompile(`(?i)^(?:'|rem(?:\s|$))(.*)$`)
	vbParam     = regexp.MustCompile(`(?i)^(optional\s+)?(?:(?:byval|byref)\s+)?([A-Za-z_]\w*)(\(\))?(?:\s+as\s+([\w.]+))?\s*(=.*)?$`)
)

type vbLine struct {
	text string
	no   int
}

// vbLogicalLines joins " _" continuations and keeps the first physical line number.
func vbLogicalLines(text string) []vbLine {
	var out []vbLine
	var buf strings.Builder
	start := 0
	for i, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line := strings.TrimSpace(raw)
		if buf.Len() == 0 {
			start = i + 1
		}
		if strings.HasSuffix(line, " _") || line == "_" {
			buf.WriteString(strings.TrimSuffix(line, "_"))
			buf.WriteByte(' ')
			continue
		}
		buf.WriteString(line)
		out = append(out, vbLine{text: buf.String(), no: start})
		buf.Reset()
	}
	if buf.Len() > 0 {
		out = append(out, vbLine{text: buf.String(), no: start})
	}
	return out
}

func (a *VBScriptAdapter) Extract(ctx context.Context, path string) ([]catalog.Invocable, error) {
	text, err := readText(path)
	if err != nil {
		return nil, err
	}

	var out []catalog.Invocable
	var doc []string
	class := ""
	for _, l := range vbLogicalLines(text) {
		if m := vbComment.FindStringSubmatch(l.text); m != nil {
			doc = append(doc, strings.TrimSpace(strings.TrimLeft(m[1], "'")))
			continue
		}
		if l.text == "" {
			doc = nil
			continue
		}
		if m := vbClass.FindStringSubmatch(l.text); m != nil {
			class = m[1]
			doc = nil
			continue
		}
		if vbEndClass.MatchString(l.text) {
			class = ""
			doc = nil
			continue
		}
		m := vbProcedure.FindStringSubmatch(stripVBComment(l.text))
		if m == nil {
			doc = nil
			continue
		}
		comments := doc
		doc = nil
		if strings.EqualFold(m[1], "private") {
			continue
		}
		name := m[3]
		if class != "" {
			if strings.EqualFold(name, "Class_Initialize") || strings.EqualFold(name, "Class_Terminate") {
				continue
			}
			name = class + "." + name
		}
		out = append(out, vbInvocable(path, name, l.no, m, comments))
	}
	return out, nil
}

// stripVBComment drops a trailing ' comment outside string literals.
func stripVBComment(s string) string {
	inString := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inString = !inString
		case '\'':
			if !inString {
				return strings.TrimSpace(s[:i])
			}
		}
	}
	return s
}

func vbInvocable(path, name string, line int, m []string, comments []string) catalog.Invocable {
	isSub := strings.EqualFold(m[2], "sub")
	dc := textscan.ParseDocComment(strings.Join(comments, "\n"))

	var params []catalog.Parameter
	for _, raw := range textscan.SplitParams(m[4]) {
		pm := vbParam.FindStringSubmatch(strings.TrimSpace(raw))
		if pm == nil {
			continue
		}
		required := pm[1] == "" && pm[5] == ""
		switch {
		case pm[3] != "":
			elem := pm[4]
			if elem == "" {
				elem = "Variant"
			}
			params = append(params, catalog.Parameter{Name: pm[2], Type: textscan.TypeArray, NativeType: elem + "()", Required: required})
		case pm[4] != "":
			params = append(params, typedParam(pm[2], pm[4], required))
		default:
			params = append(params, untypedParam(pm[2], required))
		}
	}
	typed := applyParamDocs(params, dc)

	retNative, retSource := m[5], "As clause"
	if retNative == "" && dc.Returns.Type != "" {
		retNative, retSource = dc.Returns.Type, "@return comment"
	}
	hasReturn := retNative != ""
	if isSub {
		hasReturn, retNative, retSource = true, "", "Sub declaration"
	}

	inv := catalog.Invocable{
		Name:          name,
		Kind:          catalog.KindVBScript,
		Parameters:    params,
		Documentation: dc.Summary,
		Origin:        catalog.Origin{Path: path, Line: line},
		Execution: catalog.ProcessInvoke{
			Executable:  "cscript.exe",
			Interpreter: "wscript",
			ScriptPath:  path,
			Function:    name,
			ArgStyle:    "positional",
		},
	}
	if retNative != "" {
		inv.Return = catalog.NewReturn(retNative)
	}
	return finish(inv, confidence.Factors{
		Documentation: evidence(dc.Summary != "", "comment"),
		Parameters:    evidence(typed, "parameter types"),
		ReturnType:    evidence(hasReturn, retSource),
	})
}
