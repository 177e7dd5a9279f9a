package adapters

import (
	"fmt"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/mvp-joe/callmap/internal/textscan"
)

// treeSitterGrammar parses one script language with tree-sitter.
type treeSitterGrammar struct {
	language *sitter.Language
	lang     string
}

func newTreeSitterGrammar(language *sitter.Language, lang string) *treeSitterGrammar {
	return &treeSitterGrammar{language: language, lang: lang}
}

// parse runs the parser over source and hands the root node to visit. The tree
// is released when visit returns.
func (g *treeSitterGrammar) parse(source []byte, visit func(root *sitter.Node)) error {
	parser := sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(g.language); err != nil {
		return fmt.Errorf("set %s language: %w", g.lang, err)
	}

	tree := parser.Parse(source, nil)
	if tree == nil {
		return fmt.Errorf("failed to parse %s source", g.lang)
	}
	defer tree.Close()

	visit(tree.RootNode())
	return nil
}

// nodeText extracts the text content of a tree-sitter node.
func nodeText(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	return string(source[node.StartByte():node.EndByte()])
}

// fieldText is the text of the named field child, or "".
func fieldText(node *sitter.Node, field string, source []byte) string {
	return nodeText(node.ChildByFieldName(field), source)
}

// nodeLine is the 1-based start line of node.
func nodeLine(node *sitter.Node) int {
	return int(node.StartPosition().Row) + 1
}

// walkTree recursively walks a tree-sitter tree and calls the visitor for each node.
// Returning false from the visitor skips the node's children.
func walkTree(node *sitter.Node, visitor func(*sitter.Node) bool) {
	if node == nil {
		return
	}
	if !visitor(node) {
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		walkTree(node.Child(i), visitor)
	}
}

// namedChildren returns the named children of node.
func namedChildren(node *sitter.Node) []*sitter.Node {
	if node == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, node.NamedChildCount())
	for i := uint(0); i < node.NamedChildCount(); i++ {
		out = append(out, node.NamedChild(i))
	}
	return out
}

// findChildByType finds the first child node with the given type.
func findChildByType(node *sitter.Node, nodeType string) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() == nodeType {
			return child
		}
	}
	return nil
}

// precedingComments collects the comment nodes directly above node, stopping at
// a blank line or any other node. Comments are returned in source order.
func precedingComments(node *sitter.Node, source []byte) []string {
	var out []string
	next := node
	for prev := node.PrevSibling(); prev != nil && prev.Kind() == "comment"; prev = prev.PrevSibling() {
		if next.StartPosition().Row-prev.EndPosition().Row > 1 {
			break
		}
		out = append([]string{nodeText(prev, source)}, out...)
		next = prev
	}
	return out
}

// docAbove returns the cleaned documentation comment directly above node.
// Block comments must open with one of syntax.DocBlock.
func docAbove(node *sitter.Node, source []byte, syntax textscan.CommentSyntax) string {
	comments := precedingComments(node, source)
	if len(comments) == 0 {
		return ""
	}
	last := comments[len(comments)-1]
	for _, pair := range syntax.Block {
		if strings.HasPrefix(last, pair[0]) {
			for _, open := range syntax.DocBlock {
				if strings.HasPrefix(last, open) {
					return textscan.CleanComment(last, syntax)
				}
			}
			return ""
		}
	}
	return textscan.CleanComment(strings.Join(comments, "\n"), syntax)
}
