package htmldoc

import (
	"context"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/restyle/dom"
)

// Element wraps one element node of a Document.
type Element struct {
	doc *Document
	n   *html.Node
}

var _ dom.Element = (*Element)(nil)

// Node exposes the underlying html node.
func (e *Element) Node() *html.Node { return e.n }

func (e *Element) Attrs(context.Context) (dom.Attrs, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	class, _ := getAttr(e.n, "class")
	id, _ := getAttr(e.n, "id")
	return dom.Attrs{Tag: strings.ToUpper(e.n.Data), Class: class, ID: id}, nil
}

func (e *Element) ComputedStyle(_ context.Context, props []string) (map[string]string, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	rules := e.doc.sheetRules()
	out := make(map[string]string, len(props))
	for _, p := range props {
		out[p] = computed(rules, e.n, strings.ToLower(p))
	}
	return out, nil
}

func (e *Element) SetStyle(_ context.Context, prop, value string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	raw, _ := getAttr(e.n, "style")
	decls := parseInline(raw)
	prop = strings.ToLower(strings.TrimSpace(prop))

	kept := decls[:0]
	replaced := false
	for _, d := range decls {
		if d.prop != prop {
			kept = append(kept, d)
			continue
		}
		if value != "" && !replaced {
			kept = append(kept, inlineDecl{prop: prop, value: value})
			replaced = true
		}
	}
	if value != "" && !replaced {
		kept = append(kept, inlineDecl{prop: prop, value: value})
	}
	setAttr(e.n, "style", serializeInline(kept))
	return nil
}

func (e *Element) InnerText(context.Context) (string, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			sb.WriteString(n.Data)
		case n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style):
			return
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			sb.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(e.n)
	return strings.TrimSpace(sb.String()), nil
}

func (e *Element) SetInnerText(_ context.Context, text string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	for c := e.n.FirstChild; c != nil; {
		next := c.NextSibling
		e.n.RemoveChild(c)
		c = next
	}
	if text != "" {
		e.n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	return nil
}

func (e *Element) AddClass(_ context.Context, name string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	class, _ := getAttr(e.n, "class")
	for _, c := range strings.Fields(class) {
		if c == name {
			return nil
		}
	}
	if strings.TrimSpace(class) == "" {
		setAttr(e.n, "class", name)
	} else {
		setAttr(e.n, "class", class+" "+name)
	}
	return nil
}

func (e *Element) RemoveClass(_ context.Context, name string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	class, ok := getAttr(e.n, "class")
	if !ok {
		return nil
	}
	fields := strings.Fields(class)
	kept := fields[:0]
	found := false
	for _, c := range fields {
		if c == name {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	if found {
		setAttr(e.n, "class", strings.Join(kept, " "))
	}
	return nil
}

func (e *Element) SetContentEditable(_ context.Context, on bool) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	if on {
		setAttr(e.n, "contenteditable", "true")
	} else {
		setAttr(e.n, "contenteditable", "false")
	}
	return nil
}

func (e *Element) Closest(_ context.Context, sel string) (bool, error) {
	g, err := cascadia.ParseGroup(sel)
	if err != nil {
		return false, fmt.Errorf("htmldoc: closest %q: %w", sel, malformed(err))
	}

	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	for n := e.n; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if g.Match(n) {
			return true, nil
		}
	}
	return false, nil
}
