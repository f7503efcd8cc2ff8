// Package htmldoc implements dom.Document over an in-memory HTML tree.
//
// Selector queries go through cascadia. Computed style is resolved from the
// document's <style> sheets and each element's style attribute (both parsed
// with douceur), ordered by importance, origin, specificity and source
// order, with inheritance for inherited properties. Media queries are not
// evaluated: rules nested in at-rules are ignored.
package htmldoc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/restyle/dom"
	"github.com/hazyhaar/restyle/selector"
)

// Document is a parsed HTML page. All methods are safe for concurrent use.
type Document struct {
	mu   sync.Mutex
	root *html.Node
	dark bool
}

var _ dom.Document = (*Document)(nil)

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: parse: %w", err)
	}
	return &Document{root: root}, nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// SetPrefersDark sets the answer PrefersDark gives.
func (d *Document) SetPrefersDark(dark bool) {
	d.mu.Lock()
	d.dark = dark
	d.mu.Unlock()
}

// Render serialises the current tree.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

// String renders the document, ignoring errors.
func (d *Document) String() string {
	var buf bytes.Buffer
	d.Render(&buf)
	return buf.String()
}

func (d *Document) QuerySelectorAll(_ context.Context, sel string) ([]dom.Element, error) {
	g, err := cascadia.ParseGroup(sel)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: query %q: %w", sel, malformed(err))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	nodes := cascadia.QueryAll(d.root, g)
	out := make([]dom.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &Element{doc: d, n: n})
	}
	return out, nil
}

func (d *Document) InjectStyle(_ context.Context, css string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	head := findFirst(d.root, func(n *html.Node) bool { return n.DataAtom == atom.Head })
	if head == nil {
		return fmt.Errorf("htmldoc: inject style: no <head>")
	}
	style := &html.Node{Type: html.ElementNode, Data: "style", DataAtom: atom.Style}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: css})
	head.AppendChild(style)
	return nil
}

func (d *Document) MountRoot(_ context.Context, id, class string) (dom.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	body := findFirst(d.root, func(n *html.Node) bool { return n.DataAtom == atom.Body })
	if body == nil {
		return nil, fmt.Errorf("htmldoc: mount root: no <body>")
	}
	if old := findByID(d.root, id); old != nil && old.Parent != nil {
		old.Parent.RemoveChild(old)
	}

	div := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr:     []html.Attribute{{Key: "id", Val: id}, {Key: "class", Val: class}},
	}
	body.AppendChild(div)
	return &Element{doc: d, n: div}, nil
}

func (d *Document) RemoveRoot(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n := findByID(d.root, id); n != nil && n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
	return nil
}

func (d *Document) PrefersDark(context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dark, nil
}

// ElementByID returns the element with the given id, or nil.
func (d *Document) ElementByID(id string) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n := findByID(d.root, id); n != nil {
		return &Element{doc: d, n: n}
	}
	return nil
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", selector.ErrMalformed, err)
}

func findFirst(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && pred(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, pred); found != nil {
			return found
		}
	}
	return nil
}

func findByID(root *html.Node, id string) *html.Node {
	if id == "" {
		return nil
	}
	return findFirst(root, func(n *html.Node) bool {
		v, ok := getAttr(n, "id")
		return ok && v == id
	})
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
