// Package textscan holds the text-scanning primitives shared by the extraction
// adapters: a comment-span index, the header prototype matcher, the parameter
// canonicalizer and the keyword-based semantic type mapping.
//
// Everything in this package is a pure function of its input text. Callers build
// a fresh CommentIndex per artifact and discard it afterwards.
package textscan

import (
	"sort"
	"strings"
)

// CommentSyntax describes how comments and string literals are written in a language.
type CommentSyntax struct {
	// Line lists line-comment openers, e.g. "//" or "--".
	Line []string
	// Block lists block-comment delimiters as {open, close} pairs.
	Block [][2]string
	// Quotes lists the characters that open a single-line string literal.
	Quotes string
	// DocLine lists line-comment prefixes that mark documentation comments.
	DocLine []string
	// DocBlock lists block-comment openers that mark documentation comments.
	DocBlock []string
}

var (
	// CSyntax covers C, C++ and IDL headers.
	CSyntax = CommentSyntax{
		Line:     []string{"//"},
		Block:    [][2]string{{"/*", "*/"}},
		Quotes:   `"'`,
		DocLine:  []string{"///", "//!"},
		DocBlock: []string{"/**", "/*!"},
	}

	// SQLSyntax covers SQL DDL sources. Any comment directly above a routine counts as documentation.
	SQLSyntax = CommentSyntax{
		Line:     []string{"--"},
		Block:    [][2]string{{"/*", "*/"}},
		Quotes:   `'`,
		DocLine:  []string{"--"},
		DocBlock: []string{"/*"},
	}

	// PowerShellSyntax covers PowerShell scripts including comment-based help blocks.
	PowerShellSyntax = CommentSyntax{
		Line:     []string{"#"},
		Block:    [][2]string{{"<#", "#>"}},
		Quotes:   `"'`,
		DocLine:  []string{"#"},
		DocBlock: []string{"<#"},
	}
)

// Span is a half-open byte range [Start, End) covered by a comment.
type Span struct {
	Start int
	End   int
}

// CommentIndex is a sorted, non-overlapping list of comment spans for one text.
type CommentIndex struct {
	spans []Span
}

// NewCommentIndex scans text once and records every comment span.
// Line comments end before the terminating newline. An unterminated block
// comment runs to the end of the text. String literals never span lines.
func NewCommentIndex(text string, syntax CommentSyntax) *CommentIndex {
	idx := &CommentIndex{}
	n := len(text)
	i := 0
	for i < n {
		c := text[i]

		if strings.IndexByte(syntax.Quotes, c) >= 0 {
			i = skipString(text, i)
			continue
		}

		if open, closer, ok := blockAt(text, i, syntax); ok {
			end := strings.Index(text[i+len(open):], closer)
			if end < 0 {
				end = n
			} else {
				end = i + len(open) + end + len(closer)
			}
			idx.spans = append(idx.spans, Span{Start: i, End: end})
			i = end
			continue
		}

		if lineAt(text, i, syntax) {
			end := strings.IndexByte(text[i:], '\n')
			if end < 0 {
				end = n
			} else {
				end = i + end
			}
			idx.spans = append(idx.spans, Span{Start: i, End: end})
			i = end
			continue
		}

		i++
	}
	return idx
}

// Spans returns a copy of the recorded spans in document order.
func (ci *CommentIndex) Spans() []Span {
	out := make([]Span, len(ci.spans))
	copy(out, ci.spans)
	return out
}

// InComment reports whether the byte at offset lies inside a comment.
func (ci *CommentIndex) InComment(offset int) bool {
	_, ok := ci.SpanAt(offset)
	return ok
}

// SpanAt returns the comment span containing offset, if any.
func (ci *CommentIndex) SpanAt(offset int) (Span, bool) {
	// first span whose start is beyond offset
	i := sort.Search(len(ci.spans), func(i int) bool { return ci.spans[i].Start > offset })
	if i == 0 {
		return Span{}, false
	}
	s := ci.spans[i-1]
	if offset >= s.Start && offset < s.End {
		return s, true
	}
	return Span{}, false
}

// Blank returns text[start:end] with every commented byte replaced by a space.
// Newlines are kept so offsets and line numbers stay aligned.
func (ci *CommentIndex) Blank(text string, start, end int) string {
	b := []byte(text[start:end])
	for _, s := range ci.spans {
		if s.End <= start || s.Start >= end {
			continue
		}
		from := max(s.Start, start)
		to := min(s.End, end)
		for k := from; k < to; k++ {
			if b[k-start] != '\n' {
				b[k-start] = ' '
			}
		}
	}
	return string(b)
}

func blockAt(text string, i int, syntax CommentSyntax) (string, string, bool) {
	for _, pair := range syntax.Block {
		if strings.HasPrefix(text[i:], pair[0]) {
			return pair[0], pair[1], true
		}
	}
	return "", "", false
}

func lineAt(text string, i int, syntax CommentSyntax) bool {
	for _, open := range syntax.Line {
		if strings.HasPrefix(text[i:], open) {
			return true
		}
	}
	return false
}

// skipString returns the offset just past the string literal starting at i.
func skipString(text string, i int) int {
	quote := text[i]
	j := i + 1
	for j < len(text) {
		switch text[j] {
		case '\\':
			j += 2
			continue
		case '\n':
			return j
		case quote:
			return j + 1
		}
		j++
	}
	return len(text)
}

// LineOf returns the 1-based line number of offset.
func LineOf(text string, offset int) int {
	if offset > len(text) {
		offset = len(text)
	}
	return strings.Count(text[:offset], "\n") + 1
}

// lineStartOf returns the offset of the first byte of the line containing offset.
func lineStartOf(text string, offset int) int {
	return strings.LastIndexByte(text[:offset], '\n') + 1
}

// lineEndOf returns the offset of the newline ending the line containing offset (or len(text)).
func lineEndOf(text string, offset int) int {
	if e := strings.IndexByte(text[offset:], '\n'); e >= 0 {
		return offset + e
	}
	return len(text)
}
