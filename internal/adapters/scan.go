package adapters

import (
	"strings"

	"github.com/mvp-joe/callmap/internal/textscan"
)

var closers = map[byte]byte{'(': ')', '{': '}', '[': ']'}

// matchClose returns the offset of the bracket closing the one at open,
// skipping comments and quoted strings, or -1 when unbalanced.
func matchClose(text string, open int, idx *textscan.CommentIndex, quotes string) int {
	opener := text[open]
	closer, ok := closers[opener]
	if !ok {
		return -1
	}
	depth := 0
	for i := open; i < len(text); i++ {
		if idx != nil {
			if span, in := idx.SpanAt(i); in {
				i = span.End - 1
				continue
			}
		}
		c := text[i]
		if strings.IndexByte(quotes, c) >= 0 {
			end := strings.IndexByte(text[i+1:], c)
			if end < 0 {
				return -1
			}
			i += end + 1
			continue
		}
		switch c {
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// onlySpace reports whether s holds nothing but whitespace.
func onlySpace(s string) bool {
	return strings.TrimSpace(s) == ""
}
