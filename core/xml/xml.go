// Package xml wraps xmlquery and xpath with the small surface the Bible
// parsers need: parse a document, find descendants by element name, read
// attributes and text.
//
// Security Notes:
//   - xmlquery parses with Go's encoding/xml, which never fetches external
//     entities. Validate additionally disables internal entity expansion.
package xml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Document is a parsed XML document.
type Document struct {
	root *xmlquery.Node
}

// Node is an element in a parsed document.
type Node struct {
	node *xmlquery.Node
}

// ValidationError describes why a document is not well-formed.
type ValidationError struct {
	Offset  int64
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("xml: offset %d: %s", e.Offset, e.Message)
}

// Parse parses XML data. A leading UTF-8 byte order mark is ignored.
func Parse(data []byte) (*Document, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	root, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing XML: %w", err)
	}
	return &Document{root: root}, nil
}

// Validate checks well-formedness only and returns the first error found.
func Validate(data []byte) error {
	decoder := xml.NewDecoder(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	decoder.Entity = map[string]string{}
	sawElement := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &ValidationError{Offset: decoder.InputOffset(), Message: err.Error()}
		}
		if _, ok := tok.(xml.StartElement); ok {
			sawElement = true
		}
	}
	if !sawElement {
		return &ValidationError{Message: "no root element"}
	}
	return nil
}

// Root returns the document element, or nil for an empty document.
func (d *Document) Root() *Node {
	if d == nil || d.root == nil {
		return nil
	}
	for child := d.root.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return &Node{node: child}
		}
	}
	return nil
}

// Descendants returns every element named name below the document root, in
// document order.
func (d *Document) Descendants(name string) []*Node {
	if d == nil || d.root == nil {
		return nil
	}
	return selectDescendants(d.root, name)
}

// Name returns the local element name.
func (n *Node) Name() string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.Data
}

// Text returns the concatenated text of the node and its descendants.
func (n *Node) Text() string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.InnerText()
}

// Attr returns the value of an attribute, or "" when absent.
func (n *Node) Attr(name string) string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.SelectAttr(name)
}

// FirstAttr returns the first non-empty value among the named attributes.
func (n *Node) FirstAttr(names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(n.Attr(name)); v != "" {
			return v
		}
	}
	return ""
}

// Descendants returns every element named name below n, in document order.
func (n *Node) Descendants(name string) []*Node {
	if n == nil || n.node == nil {
		return nil
	}
	return selectDescendants(n.node, name)
}

// descendant:: expressions are compiled once per element name.
var (
	exprMu    sync.Mutex
	exprCache = map[string]*xpath.Expr{}
)

func descendantExpr(name string) (*xpath.Expr, error) {
	exprMu.Lock()
	defer exprMu.Unlock()
	if e, ok := exprCache[name]; ok {
		return e, nil
	}
	e, err := xpath.Compile("descendant::" + name)
	if err != nil {
		return nil, err
	}
	exprCache[name] = e
	return e, nil
}

func selectDescendants(top *xmlquery.Node, name string) []*Node {
	expr, err := descendantExpr(name)
	if err != nil {
		// Not a valid NCName, so no element can carry it.
		return nil
	}
	return wrap(xmlquery.QuerySelectorAll(top, expr))
}

func wrap(nodes []*xmlquery.Node) []*Node {
	out := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &Node{node: n})
	}
	return out
}
