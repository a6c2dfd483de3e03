// Package htmldoc wraps golang.org/x/net/html with the handful of queries the
// search engines and the contact extractor need: title, anchors, class
// selection and visible text.
package htmldoc

import (
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"
)

// Document is a parsed HTML page.
type Document struct {
	root *html.Node
}

// Parse builds a Document from HTML source. The HTML5 parser recovers from
// almost any malformed markup, so errors are rare.
func Parse(src string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, eris.Wrap(err, "htmldoc: parse")
	}
	return &Document{root: root}, nil
}

// Root returns the document node.
func (d *Document) Root() *html.Node {
	return d.root
}

// Title returns the trimmed text of the first <title> element, or "" when
// the page has none.
func (d *Document) Title() string {
	n := First(d.root, IsElement(atom.Title))
	if n == nil {
		return ""
	}
	return strings.TrimSpace(Text(n))
}

// FindAll returns every node under the document matching pred, in document order.
func (d *Document) FindAll(pred Predicate) []*html.Node {
	return FindAll(d.root, pred)
}

// Text returns the visible text of the whole document.
func (d *Document) Text() string {
	return Text(d.root)
}

// Predicate matches a node.
type Predicate func(n *html.Node) bool

// IsElement matches elements with the given tag.
func IsElement(a atom.Atom) Predicate {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == a
	}
}

// HasClass matches elements whose class attribute contains cls.
func HasClass(cls string) Predicate {
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		for _, c := range strings.Fields(Attr(n, "class")) {
			if c == cls {
				return true
			}
		}
		return false
	}
}

// And matches when every predicate matches.
func And(preds ...Predicate) Predicate {
	return func(n *html.Node) bool {
		for _, p := range preds {
			if !p(n) {
				return false
			}
		}
		return true
	}
}

// Or matches when any predicate matches.
func Or(preds ...Predicate) Predicate {
	return func(n *html.Node) bool {
		for _, p := range preds {
			if p(n) {
				return true
			}
		}
		return false
	}
}

// First returns the first node under root matching pred, or nil.
func First(root *html.Node, pred Predicate) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if pred(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

// FindAll returns every node under root (excluding root) matching pred.
func FindAll(root *html.Node, pred Predicate) []*html.Node {
	var out []*html.Node
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		walk(c, func(n *html.Node) bool {
			if pred(n) {
				out = append(out, n)
			}
			return true
		})
	}
	return out
}

// FindOutermost returns matching nodes but does not descend into a match, so
// nested regions are not counted twice.
func FindOutermost(root *html.Node, pred Predicate) []*html.Node {
	var out []*html.Node
	walk(root, func(n *html.Node) bool {
		if pred(n) {
			out = append(out, n)
			return false
		}
		return true
	})
	return out
}

// Attr returns the value of the named attribute, or "".
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// skipText lists elements whose content is never rendered as text.
var skipText = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
}

// Text returns the visible text under n: text nodes trimmed, joined by a
// single space, whitespace collapsed and NFKC-normalized so look-alike
// characters (non-breaking spaces, full-width digits) match plain patterns.
func Text(n *html.Node) string {
	var parts []string
	walk(n, func(c *html.Node) bool {
		switch c.Type {
		case html.ElementNode:
			return !skipText[c.DataAtom]
		case html.TextNode:
			if s := strings.TrimSpace(c.Data); s != "" {
				parts = append(parts, s)
			}
		}
		return true
	})
	return Normalize(strings.Join(parts, " "))
}

// Normalize applies NFKC and collapses runs of whitespace to one space.
func Normalize(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}

// walk visits n and its descendants depth-first. visit returns false to
// skip a node's children.
func walk(n *html.Node, visit func(*html.Node) bool) {
	if !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}
