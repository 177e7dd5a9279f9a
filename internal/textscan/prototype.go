package textscan

import (
	"strings"
)

// maxDeclarationLen bounds the forward scan for a declaration terminator.
const maxDeclarationLen = 16 * 1024

// HeaderFile is one header's path and full text.
type HeaderFile struct {
	Path string
	Text string
}

// PrototypeMatch is the declaration found for a symbol in a header.
type PrototypeMatch struct {
	ReturnType string
	Params     string
	Doc        string
	File       string
	Line       int
	Prototype  string
}

var callingConventions = map[string]bool{
	"__stdcall": true, "_stdcall": true, "__cdecl": true, "_cdecl": true,
	"__fastcall": true, "__thiscall": true, "__vectorcall": true, "__clrcall": true,
	"WINAPI": true, "APIENTRY": true, "CALLBACK": true, "STDMETHODCALLTYPE": true,
	"PASCAL": true, "WINAPIV": true, "NTAPI": true, "STDAPICALLTYPE": true,
}

var storageQualifiers = map[string]bool{
	"extern": true, "static": true, "inline": true, "__inline": true,
	"__forceinline": true, "virtual": true,
}

var exportMacroSuffixes = []string{"API", "_EXPORT", "_EXPORTS", "_DECL", "_IMPORT", "_DECLSPEC", "DLLEXPORT", "DLLIMPORT"}

// FindPrototype searches headers in order for the first valid declaration of symbol.
func FindPrototype(headers []HeaderFile, symbol string) (*PrototypeMatch, bool) {
	for _, h := range headers {
		if m, ok := FindPrototypeInText(h.Path, h.Text, symbol); ok {
			return m, true
		}
	}
	return nil, false
}

// FindPrototypeInText returns the first valid declaration of symbol in one header text.
func FindPrototypeInText(file, text, symbol string) (*PrototypeMatch, bool) {
	if symbol == "" || !strings.Contains(text, symbol) {
		return nil, false
	}
	idx := NewCommentIndex(text, CSyntax)

	from := 0
	for {
		rel := strings.Index(text[from:], symbol)
		if rel < 0 {
			return nil, false
		}
		pos := from + rel
		from = pos + len(symbol)

		if !isCallCandidate(text, pos, symbol) || idx.InComment(pos) || isDirectiveLine(text, pos) {
			continue
		}

		start := declarationStart(text, pos, idx)
		end, ok := declarationEnd(text, start, idx)
		if !ok {
			continue
		}

		clean := idx.Blank(text, start, end)
		k := findCallIn(clean, symbol)
		if k < 0 {
			continue
		}
		before := clean[:k]
		params, ok := balancedParens(clean[k+len(symbol):])
		if !ok || !plausibleReturnSegment(before) {
			continue
		}

		first := start + leadingSpace(clean)
		m := &PrototypeMatch{
			ReturnType: NormalizeReturnType(before),
			Params:     strings.TrimSpace(params),
			File:       file,
			Line:       LineOf(text, first),
			Prototype:  collapseSpace(clean),
		}
		m.Doc = DocTrailing(text, end, idx, CSyntax)
		if m.Doc == "" {
			m.Doc = DocAbove(text, first, idx, CSyntax)
		}
		return m, true
	}
}

// NormalizeReturnType collapses whitespace and strips calling conventions, storage
// qualifiers, linkage specifiers, __declspec/__attribute__ groups and export macros.
func NormalizeReturnType(before string) string {
	s := strings.ReplaceAll(before, `extern "C"`, " ")
	s = removeCallGroup(s, "__declspec")
	s = removeCallGroup(s, "__attribute__")
	s = strings.NewReplacer("*", " * ", "&", " & ").Replace(s)

	var kept []string
	for _, tok := range strings.Fields(s) {
		if callingConventions[tok] || storageQualifiers[tok] || isExportMacro(tok) {
			continue
		}
		kept = append(kept, tok)
	}
	out := strings.Join(kept, " ")
	out = strings.ReplaceAll(out, " *", "*")
	out = strings.ReplaceAll(out, " &", "&")
	return out
}

func isExportMacro(tok string) bool {
	if tok != strings.ToUpper(tok) || strings.ContainsAny(tok, "*&") {
		return false
	}
	if tok == "EXPORT" {
		return true
	}
	for _, suf := range exportMacroSuffixes {
		if strings.HasSuffix(tok, suf) {
			return true
		}
	}
	return false
}

// removeCallGroup removes every "name(...)" group with balanced parentheses.
func removeCallGroup(s, name string) string {
	for {
		i := strings.Index(s, name)
		if i < 0 {
			return s
		}
		j := i + len(name)
		for j < len(s) && (s[j] == ' ' || s[j] == '\t') {
			j++
		}
		if j >= len(s) || s[j] != '(' {
			s = s[:i] + s[i+len(name):]
			continue
		}
		inner, ok := balancedParens(s[j:])
		if !ok {
			return s[:i]
		}
		s = s[:i] + " " + s[j+len(inner)+2:]
	}
}

// isCallCandidate reports whether symbol at pos has a non-identifier left neighbour
// and is followed by optional whitespace and '('.
func isCallCandidate(text string, pos int, symbol string) bool {
	if pos > 0 && isIdentByte(text[pos-1]) {
		return false
	}
	j := pos + len(symbol)
	for j < len(text) && isSpace(text[j]) {
		j++
	}
	return j < len(text) && text[j] == '('
}

// isDirectiveLine reports whether pos sits on a preprocessor line, following
// backslash continuations back to their first line.
func isDirectiveLine(text string, pos int) bool {
	ls := lineStartOf(text, pos)
	for ls > 0 {
		prev := strings.TrimRight(text[lineStartOf(text, ls-1):ls-1], " \t\r")
		if !strings.HasSuffix(prev, `\`) {
			break
		}
		ls = lineStartOf(text, ls-1)
	}
	return strings.HasPrefix(strings.TrimLeft(text[ls:], " \t"), "#")
}

// declarationStart is the candidate's line start, moved past any earlier statement
// terminator on the same line.
func declarationStart(text string, pos int, idx *CommentIndex) int {
	start := lineStartOf(text, pos)
	for i := pos - 1; i >= start; i-- {
		if idx.InComment(i) {
			continue
		}
		switch text[i] {
		case ';', '{', '}':
			return i + 1
		}
	}
	return start
}

// declarationEnd scans forward for ';' or '{' at parenthesis depth zero, skipping comments.
func declarationEnd(text string, start int, idx *CommentIndex) (int, bool) {
	depth := 0
	limit := min(len(text), start+maxDeclarationLen)
	for i := start; i < limit; i++ {
		if s, ok := idx.SpanAt(i); ok {
			i = s.End - 1
			continue
		}
		switch text[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ';', '{':
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// findCallIn returns the offset of symbol in s where it is a call candidate, or -1.
func findCallIn(s, symbol string) int {
	from := 0
	for {
		rel := strings.Index(s[from:], symbol)
		if rel < 0 {
			return -1
		}
		pos := from + rel
		if isCallCandidate(s, pos, symbol) {
			return pos
		}
		from = pos + len(symbol)
	}
}

// plausibleReturnSegment rejects call sites and assignments that merely mention the symbol.
func plausibleReturnSegment(before string) bool {
	before = removeCallGroup(removeCallGroup(before, "__declspec"), "__attribute__")
	if strings.ContainsAny(before, "=.()") || strings.Contains(before, "->") {
		return false
	}
	for _, tok := range strings.Fields(before) {
		if tok == "return" || tok == "typedef" || tok == "#define" {
			return false
		}
	}
	return true
}

// balancedParens returns the content between the first '(' in s and its matching ')'.
func balancedParens(s string) (string, bool) {
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return "", false
	}
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[open+1 : i], true
			}
		}
	}
	return "", false
}

func leadingSpace(s string) int {
	return len(s) - len(strings.TrimLeft(s, " \t\r\n"))
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
