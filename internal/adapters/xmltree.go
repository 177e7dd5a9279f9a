package adapters

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// xmlNode is one element of a generic XML tree. Name.Space holds the resolved
// namespace URI.
type xmlNode struct {
	Name     xml.Name
	Attrs    []xml.Attr
	Children []*xmlNode
	Text     string
	Line     int
}

// parseXMLTree reads a whole document into a tree and returns its root element.
func parseXMLTree(data []byte) (*xmlNode, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	// descriptors in legacy encodings are read byte for byte
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }

	var root *xmlNode
	var stack []*xmlNode
	for {
		line, _ := dec.InputPos()
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse XML: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &xmlNode{Name: t.Name, Attrs: t.Copy().Attr, Line: line}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				top.Text = strings.TrimSpace(top.Text)
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("document has no root element")
	}
	return root, nil
}

// attr returns the value of the attribute with the given local name.
func (n *xmlNode) attr(local string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// all returns the direct children with the given local name.
func (n *xmlNode) all(local string) []*xmlNode {
	var out []*xmlNode
	for _, c := range n.Children {
		if c.Name.Local == local {
			out = append(out, c)
		}
	}
	return out
}

// first returns the first direct child with the given local name, or nil.
func (n *xmlNode) first(local string) *xmlNode {
	for _, c := range n.Children {
		if c.Name.Local == local {
			return c
		}
	}
	return nil
}

// childText is the trimmed text of the first matching child.
func (n *xmlNode) childText(local string) string {
	if c := n.first(local); c != nil {
		return c.Text
	}
	return ""
}

// walk visits n and its descendants depth first.
func (n *xmlNode) walk(visit func(*xmlNode)) {
	visit(n)
	for _, c := range n.Children {
		c.walk(visit)
	}
}

// localPart strips the prefix from a QName: "tns:GetQuote" is "GetQuote".
func localPart(qname string) string {
	if i := strings.LastIndexByte(qname, ':'); i >= 0 {
		return qname[i+1:]
	}
	return qname
}
