package textscan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for CommentIndex:
// - Block comments cover open through close, first close wins
// - Line comments cover opener through end of line, newline excluded
// - Unterminated block comment runs to end of text
// - Comment openers inside string and char literals are ignored
// - Every offset is classified exactly as a brute-force reference scanner says
// - Re-running on the same text yields identical spans
// - Blank replaces commented bytes while preserving newlines

func TestCommentIndex_BlockAndLine(t *testing.T) {
	t.Parallel()

	text := "int a; /* one */ int b; // two\nint c;"
	idx := NewCommentIndex(text, CSyntax)

	spans := idx.Spans()
	require.Len(t, spans, 2)
	assert.Equal(t, "/* one */", text[spans[0].Start:spans[0].End])
	assert.Equal(t, "// two", text[spans[1].Start:spans[1].End])

	assert.False(t, idx.InComment(strings.Index(text, "int a")))
	assert.True(t, idx.InComment(strings.Index(text, "one")))
	assert.False(t, idx.InComment(strings.Index(text, "int b")))
	assert.True(t, idx.InComment(strings.Index(text, "two")))
	assert.False(t, idx.InComment(strings.Index(text, "\n")))
	assert.False(t, idx.InComment(strings.Index(text, "int c")))
}

func TestCommentIndex_FirstCloseWins(t *testing.T) {
	t.Parallel()

	text := "/* a /* b */ code */"
	idx := NewCommentIndex(text, CSyntax)

	// Test: nested openers do not nest
	assert.True(t, idx.InComment(strings.Index(text, "b")))
	assert.False(t, idx.InComment(strings.Index(text, "code")))
}

func TestCommentIndex_Unterminated(t *testing.T) {
	t.Parallel()

	text := "int x; /* never closed\nint y;"
	idx := NewCommentIndex(text, CSyntax)

	assert.True(t, idx.InComment(len(text)-1))
	assert.False(t, idx.InComment(0))
}

func TestCommentIndex_StringsHonored(t *testing.T) {
	t.Parallel()

	text := `const char *u = "http://example"; char c = '/'; // real`
	idx := NewCommentIndex(text, CSyntax)

	spans := idx.Spans()
	require.Len(t, spans, 1)
	assert.Equal(t, "// real", text[spans[0].Start:spans[0].End])
}

func TestCommentIndex_ExhaustiveAgainstReference(t *testing.T) {
	t.Parallel()

	texts := []string{
		"a /* b */ c // d\ne",
		"/**/x//\n//y\n/*\n*/z",
		"///doc\nint f(void); /*! x */",
		"no comments at all",
		"/* open\n\n// inside block\n*/ after // tail",
	}

	for _, text := range texts {
		idx := NewCommentIndex(text, CSyntax)
		want := referenceCommentMask(text)
		for off := 0; off < len(text); off++ {
			assert.Equal(t, want[off], idx.InComment(off), "text %q offset %d", text, off)
		}
	}
}

func TestCommentIndex_Idempotent(t *testing.T) {
	t.Parallel()

	text := "/** doc */\nint f(int a); // trailing\n/* x */"
	first := NewCommentIndex(text, CSyntax).Spans()
	second := NewCommentIndex(text, CSyntax).Spans()
	assert.Equal(t, first, second)
}

func TestCommentIndex_SQLAndPowerShell(t *testing.T) {
	t.Parallel()

	sql := "SELECT 1; -- note\nSELECT '--not'; /* block */"
	sqlIdx := NewCommentIndex(sql, SQLSyntax)
	require.Len(t, sqlIdx.Spans(), 2)
	assert.False(t, sqlIdx.InComment(strings.Index(sql, "--not")))

	ps := "<# help #>\nfunction Get-X { } # tail"
	psIdx := NewCommentIndex(ps, PowerShellSyntax)
	spans := psIdx.Spans()
	require.Len(t, spans, 2)
	assert.Equal(t, "<# help #>", ps[spans[0].Start:spans[0].End])
	assert.Equal(t, "# tail", ps[spans[1].Start:spans[1].End])
}

func TestCommentIndex_Blank(t *testing.T) {
	t.Parallel()

	text := "int /* x */ f(\n// y\nint a);"
	idx := NewCommentIndex(text, CSyntax)
	blank := idx.Blank(text, 0, len(text))

	assert.Len(t, blank, len(text))
	assert.NotContains(t, blank, "x")
	assert.NotContains(t, blank, "y")
	assert.Equal(t, strings.Count(text, "\n"), strings.Count(blank, "\n"))
}

// referenceCommentMask is a straightforward per-byte state machine for C comments
// without string handling; the inputs above contain no literals.
func referenceCommentMask(text string) []bool {
	mask := make([]bool, len(text))
	for i := 0; i < len(text); {
		switch {
		case strings.HasPrefix(text[i:], "/*"):
			end := strings.Index(text[i+2:], "*/")
			stop := len(text)
			if end >= 0 {
				stop = i + 2 + end + 2
			}
			for k := i; k < stop; k++ {
				mask[k] = true
			}
			i = stop
		case strings.HasPrefix(text[i:], "//"):
			stop := len(text)
			if nl := strings.IndexByte(text[i:], '\n'); nl >= 0 {
				stop = i + nl
			}
			for k := i; k < stop; k++ {
				mask[k] = true
			}
			i = stop
		default:
			i++
		}
	}
	return mask
}
