// Package gir reads GObject Introspection XML into a raw, weakly typed tree.
//
// The tree keeps element and attribute names as they appear in GIR files,
// with the c: and glib: prefixes preserved ("c:type", "glib:signal"), and
// makes no attempt to interpret the content. Semantic checks live in the
// model package.
package gir

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const (
	cNS    = "http://www.gtk.org/introspection/c/1.0"
	glibNS = "http://www.gtk.org/introspection/glib/1.0"
)

// Node is one XML element of a GIR document.
type Node struct {
	Name     string
	Attrs    map[string]string
	Children []*Node
	Text     string
	Line     int
}

// ParseError reports malformed GIR input.
type ParseError struct {
	File string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	loc := e.File
	if loc == "" {
		loc = "<input>"
	}
	if e.Line > 0 {
		loc += ":" + strconv.Itoa(e.Line)
	}
	return fmt.Sprintf("%s: parse error: %v", loc, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ErrNotRepository is wrapped by ParseError when the document root is not
// a <repository> element.
var ErrNotRepository = errors.New("root element is not <repository>")

// Parse reads a GIR document and returns its <repository> root.
func Parse(r io.Reader) (*Node, error) {
	dec := xml.NewDecoder(r)

	var stack []*Node
	var root *Node
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			var syn *xml.SyntaxError
			if errors.As(err, &syn) {
				return nil, &ParseError{Line: syn.Line, Err: errors.New(syn.Msg)}
			}
			line, _ := dec.InputPos()
			return nil, &ParseError{Line: line, Err: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			line, _ := dec.InputPos()
			n := &Node{
				Name:  qualify(t.Name),
				Attrs: make(map[string]string, len(t.Attr)),
				Line:  line,
			}
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				n.Attrs[qualify(a.Name)] = a.Value
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, &ParseError{Line: n.Line, Err: errors.New("multiple root elements")}
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				if s := strings.TrimSpace(string(t)); s != "" {
					cur := stack[len(stack)-1]
					cur.Text += s
				}
			}
		}
	}

	if root == nil {
		return nil, &ParseError{Err: errors.New("empty document")}
	}
	if root.Name != "repository" {
		return nil, &ParseError{Line: root.Line, Err: ErrNotRepository}
	}
	return root, nil
}

// ParseFile parses the GIR document at path.
func ParseFile(path string) (*Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	root, err := Parse(f)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.File = path
		}
		return nil, err
	}
	return root, nil
}

// Attr returns the attribute value or "".
func (n *Node) Attr(name string) string {
	if n == nil {
		return ""
	}
	return n.Attrs[name]
}

// HasAttr reports whether the attribute is present, even if empty.
func (n *Node) HasAttr(name string) bool {
	if n == nil {
		return false
	}
	_, ok := n.Attrs[name]
	return ok
}

// BoolAttr interprets "1" and "true" as true.
func (n *Node) BoolAttr(name string) bool {
	v := n.Attr(name)
	return v == "1" || v == "true"
}

// Child returns the first child with the given element name.
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns all children with one of the given element names, in
// document order.
func (n *Node) ChildrenNamed(names ...string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		for _, name := range names {
			if c.Name == name {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func qualify(name xml.Name) string {
	switch name.Space {
	case cNS, "c":
		return "c:" + name.Local
	case glibNS, "glib":
		return "glib:" + name.Local
	default:
		return name.Local
	}
}
