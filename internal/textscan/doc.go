package textscan

import (
	"sort"
	"strings"
)

// DocComment is a documentation comment split into its summary and tagged sections.
type DocComment struct {
	Summary string
	Params  map[string]TagDoc
	Returns TagDoc
}

// TagDoc is the type and description attached to an @param or @return tag.
type TagDoc struct {
	Type        string
	Description string
}

// DocAbove returns the documentation comment directly above the line containing offset.
// A block comment must use one of syntax.DocBlock as opener; a line-comment run must
// use one of syntax.DocLine. A blank line between comment and declaration breaks adjacency,
// and a comment that shares its first line with code is never documentation.
func DocAbove(text string, offset int, idx *CommentIndex, syntax CommentSyntax) string {
	ls := lineStartOf(text, offset)
	if ls == 0 {
		return ""
	}
	p := ls - 2
	for p >= 0 && (text[p] == ' ' || text[p] == '\t' || text[p] == '\r') {
		p--
	}
	if p < 0 || text[p] == '\n' {
		return ""
	}
	span, ok := idx.SpanAt(p)
	if !ok {
		return ""
	}
	body := text[span.Start:span.End]

	// a comment trailing code on its own line belongs to that code
	if strings.TrimSpace(text[lineStartOf(text, span.Start):span.Start]) != "" {
		return ""
	}

	if isBlockComment(body, syntax) {
		if !hasAnyPrefix(body, syntax.DocBlock) {
			return ""
		}
		return CleanComment(body, syntax)
	}

	if !hasAnyPrefix(body, syntax.DocLine) {
		return ""
	}
	lines := []string{body}
	cur := lineStartOf(text, span.Start)
	for cur > 0 {
		prevStart := lineStartOf(text, cur-1)
		line := strings.TrimSpace(text[prevStart : cur-1])
		if !hasAnyPrefix(line, syntax.DocLine) || isBlockComment(line, syntax) {
			break
		}
		first := prevStart + strings.Index(text[prevStart:cur-1], line)
		if !idx.InComment(first) {
			break
		}
		lines = append([]string{line}, lines...)
		cur = prevStart
	}
	return CleanComment(strings.Join(lines, "\n"), syntax)
}

// DocTrailing returns the comment that follows offset on the same line, if any.
func DocTrailing(text string, offset int, idx *CommentIndex, syntax CommentSyntax) string {
	end := lineEndOf(text, offset)
	i := sort.Search(len(idx.spans), func(i int) bool { return idx.spans[i].Start > offset })
	if i == len(idx.spans) || idx.spans[i].Start >= end {
		return ""
	}
	s := idx.spans[i]
	return CleanComment(text[s.Start:s.End], syntax)
}

// CleanComment strips comment delimiters, leading stars and doc markers from raw.
func CleanComment(raw string, syntax CommentSyntax) string {
	raw = strings.TrimSpace(raw)
	block := false
	for _, pair := range syntax.Block {
		if strings.HasPrefix(raw, pair[0]) {
			raw = strings.TrimSuffix(raw[len(pair[0]):], pair[1])
			raw = strings.TrimLeft(raw, "*!<")
			block = true
			break
		}
	}

	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if block {
			if strings.HasPrefix(line, "*") && !strings.HasPrefix(line, "*/") {
				line = strings.TrimSpace(line[1:])
			}
		} else {
			for _, open := range syntax.Line {
				if strings.HasPrefix(line, open) {
					line = strings.TrimLeft(line, open[:1])
					line = strings.TrimLeft(line, "!<")
					line = strings.TrimSpace(line)
					break
				}
			}
		}
		out = append(out, line)
	}

	// drop leading and trailing blank lines
	for len(out) > 0 && out[0] == "" {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

// ParseDocComment splits a cleaned documentation comment into summary, @param and @return sections.
// It understands Doxygen (@param x, \param[in] x), JSDoc (@param {T} x), PHPDoc (@param T $x)
// and YARD (@param x [T]) spellings.
func ParseDocComment(doc string) DocComment {
	dc := DocComment{Params: map[string]TagDoc{}}
	var summary []string
	inTags := false

	for _, line := range strings.Split(doc, "\n") {
		t := strings.TrimSpace(line)
		tag, rest := splitTag(t)
		switch tag {
		case "param", "arg", "argument":
			inTags = true
			name, td := parseParamTag(rest)
			if name != "" {
				if _, dup := dc.Params[name]; !dup {
					dc.Params[name] = td
				}
			}
		case "return", "returns", "retval":
			inTags = true
			dc.Returns = parseReturnTag(rest)
		case "":
			if !inTags {
				summary = append(summary, t)
			}
		default:
			inTags = true
		}
	}

	dc.Summary = strings.TrimSpace(strings.Join(summary, "\n"))
	return dc
}

func splitTag(line string) (string, string) {
	if !strings.HasPrefix(line, "@") && !strings.HasPrefix(line, `\`) {
		return "", line
	}
	body := line[1:]
	end := strings.IndexAny(body, " \t[")
	if end < 0 {
		return strings.ToLower(body), ""
	}
	tag := strings.ToLower(body[:end])
	rest := body[end:]
	// Doxygen direction: \param[in]
	if strings.HasPrefix(rest, "[") {
		if c := strings.IndexByte(rest, ']'); c >= 0 {
			rest = rest[c+1:]
		}
	}
	return tag, strings.TrimSpace(rest)
}

func parseParamTag(rest string) (string, TagDoc) {
	var td TagDoc
	if strings.HasPrefix(rest, "{") {
		if c := strings.IndexByte(rest, '}'); c >= 0 {
			td.Type = strings.TrimSpace(rest[1:c])
			rest = strings.TrimSpace(rest[c+1:])
		}
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", td
	}

	name := fields[0]
	descFrom := 1
	switch {
	case td.Type == "" && len(fields) >= 2 && strings.HasPrefix(fields[1], "$"):
		td.Type = fields[0]
		name = fields[1]
		descFrom = 2
	case td.Type == "" && len(fields) >= 2 && strings.HasPrefix(fields[1], "[") && strings.HasSuffix(fields[1], "]"):
		td.Type = strings.Trim(fields[1], "[]")
		descFrom = 2
	}

	name = strings.TrimPrefix(name, "$")
	// JSDoc optional: [name] or [name=default]
	name = strings.Trim(name, "[]")
	if eq := strings.IndexByte(name, '='); eq >= 0 {
		name = name[:eq]
	}
	desc := strings.Join(fields[min(descFrom, len(fields)):], " ")
	td.Description = strings.TrimSpace(strings.TrimPrefix(desc, "- "))
	return name, td
}

func parseReturnTag(rest string) TagDoc {
	var td TagDoc
	switch {
	case strings.HasPrefix(rest, "{"):
		if c := strings.IndexByte(rest, '}'); c >= 0 {
			td.Type = strings.TrimSpace(rest[1:c])
			rest = rest[c+1:]
		}
	case strings.HasPrefix(rest, "["):
		if c := strings.IndexByte(rest, ']'); c >= 0 {
			td.Type = strings.TrimSpace(rest[1:c])
			rest = rest[c+1:]
		}
	}
	td.Description = strings.TrimSpace(rest)
	return td
}

func isBlockComment(s string, syntax CommentSyntax) bool {
	for _, pair := range syntax.Block {
		if strings.HasPrefix(s, pair[0]) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
