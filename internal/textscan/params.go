package textscan

import (
	"regexp"
	"strconv"
	"strings"
)

// Param is one canonicalized parameter.
type Param struct {
	Name       string
	Type       SemanticType
	Native     string
	HasDefault bool
	Variadic   bool
}

var qualifiers = set("const", "volatile", "static", "extern", "register")

// C keywords that can close an unnamed parameter, e.g. "unsigned int".
var primitiveTail = set("int", "char", "short", "long", "float", "double", "bool", "_Bool",
	"void", "unsigned", "signed", "wchar_t", "size_t")

var colonLHS = regexp.MustCompile(`^(\.\.\.|\*{1,2})?[A-Za-z_][A-Za-z0-9_]*\??$`)

// Canonicalize turns one raw parameter declaration into a (name, semantic type) pair.
// index is the parameter's zero-based position, used for synthesized argN names.
func Canonicalize(raw string, index int) (string, SemanticType) {
	p := CanonicalizeParam(raw, index)
	return p.Name, p.Type
}

// CanonicalizeParam is Canonicalize with the native type text and default/variadic flags kept.
func CanonicalizeParam(raw string, index int) Param {
	synth := "arg" + strconv.Itoa(index)
	s := strings.TrimSpace(raw)

	if s == "..." {
		return Param{Name: "args", Type: TypeArray, Native: "...", Variadic: true}
	}

	var p Param
	if eq := topLevelIndex(s, '='); eq >= 0 {
		s = strings.TrimSpace(s[:eq])
		p.HasDefault = true
	}

	// (1) name: type
	if c := colonIndex(s); c > 0 {
		lhs := strings.TrimSpace(s[:c])
		if colonLHS.MatchString(lhs) {
			p.Name, p.Variadic = cleanName(lhs)
			p.Native = stripQualifiers(strings.TrimSpace(s[c+1:]))
			p.Type = SemanticTypeOf(p.Native)
			if p.Variadic && p.Type != TypeArray {
				p.Type = TypeArray
			}
			return p
		}
	}

	tokens := strings.Fields(stripQualifiers(s))
	switch {
	case len(tokens) == 0:
		p.Name, p.Type = synth, TypeAny

	// (2) a lone token is a type
	case len(tokens) == 1:
		p.Name, p.Native = synth, tokens[0]
		p.Type = SemanticTypeOf(p.Native)

	// (3) sigil-prefixed name followed by its type
	case strings.HasPrefix(tokens[0], "@") || strings.HasPrefix(tokens[0], "$"):
		p.Name = tokens[0][1:]
		p.Native = strings.Join(tokens[1:], " ")
		p.Type = SemanticTypeOf(p.Native)

	// (4) sized type such as VARCHAR(50) after the name
	case strings.Contains(tokens[len(tokens)-1], "("):
		p.Name = tokens[0]
		p.Native = strings.Join(tokens[1:], " ")
		p.Type = SemanticTypeOf(p.Native)

	// unnamed multi-word C type
	case primitiveTail[tokens[len(tokens)-1]]:
		p.Name, p.Native = synth, strings.Join(tokens, " ")
		p.Type = SemanticTypeOf(p.Native)

	// (5) type tokens followed by the name
	default:
		last := tokens[len(tokens)-1]
		typ := strings.Join(tokens[:len(tokens)-1], " ")
		name := strings.TrimLeft(last, "*&")
		if stars := last[:len(last)-len(name)]; stars != "" {
			typ += stars
		}
		if b := strings.IndexByte(name, '['); b >= 0 {
			name = name[:b]
			typ += "[]"
		}
		if name == "" {
			name = synth
		}
		p.Name, p.Native = name, typ
		p.Type = SemanticTypeOf(typ)
	}

	if p.Name == "" {
		p.Name = synth
	}
	return p
}

// SplitParams splits a parameter list on top-level commas. Empty entries and a lone
// "void" are dropped; "..." is kept as a variadic marker.
func SplitParams(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" || text == "void" {
		return nil
	}
	var out []string
	depth := 0
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '(', '[', '{', '<':
			depth++
		case ')', ']', '}', '>':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				out = appendParam(out, text[start:i])
				start = i + 1
			}
		}
	}
	return appendParam(out, text[start:])
}

func appendParam(out []string, p string) []string {
	p = strings.TrimSpace(p)
	if p == "" || p == "void" {
		return out
	}
	return append(out, p)
}

func stripQualifiers(s string) string {
	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if !qualifiers[f] {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " ")
}

func cleanName(lhs string) (string, bool) {
	variadic := strings.HasPrefix(lhs, "...") || strings.HasPrefix(lhs, "*")
	name := strings.TrimLeft(lhs, ".*")
	name = strings.TrimSuffix(name, "?")
	return name, variadic
}

// colonIndex returns the first ':' that is not part of "::".
func colonIndex(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] != ':' {
			continue
		}
		if i+1 < len(s) && s[i+1] == ':' {
			i++
			continue
		}
		return i
	}
	return -1
}

// topLevelIndex returns the first c outside brackets and quotes, or -1.
func topLevelIndex(s string, c byte) int {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '"', '\'':
			quote = ch
		case '(', '[', '{', '<':
			depth++
		case ')', ']', '}', '>':
			if depth > 0 {
				depth--
			}
		default:
			if ch == c && depth == 0 {
				return i
			}
		}
	}
	return -1
}
