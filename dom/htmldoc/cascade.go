package htmldoc

import (
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// initial holds CSS initial values for the properties the editor exposes,
// in the form getComputedStyle reports them.
var initial = map[string]string{
	"color":            "rgb(0, 0, 0)",
	"background-color": "rgba(0, 0, 0, 0)",
	"font-size":        "16px",
	"align-items":      "normal",
	"justify-content":  "normal",
	"flex-direction":   "row",
}

var inherited = map[string]bool{
	"color":       true,
	"font-size":   true,
	"font-family": true,
	"font-weight": true,
	"line-height": true,
	"text-align":  true,
	"visibility":  true,
}

type sheetRule struct {
	sel   cascadia.Sel
	decls []*css.Declaration
	order int
}

type candidate struct {
	value     string
	important bool
	inline    bool
	spec      cascadia.Specificity
	order     int
}

func (a candidate) beats(b candidate) bool {
	if a.important != b.important {
		return a.important
	}
	if a.inline != b.inline {
		return a.inline
	}
	if a.spec != b.spec {
		return b.spec.Less(a.spec)
	}
	return a.order > b.order
}

// sheetRules parses every <style> element in document order. Caller holds
// d.mu.
func (d *Document) sheetRules() []sheetRule {
	var rules []sheetRule
	order := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Style {
			sheet, err := parser.Parse(textOf(n))
			if err == nil {
				for _, r := range sheet.Rules {
					if r.Kind != css.QualifiedRule {
						continue
					}
					for _, s := range r.Selectors {
						sel, err := cascadia.Parse(s)
						if err != nil {
							continue
						}
						rules = append(rules, sheetRule{sel: sel, decls: r.Declarations, order: order})
						order++
					}
				}
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.root)
	return rules
}

// cascaded returns the winning declared value of prop on n, if any.
func cascaded(rules []sheetRule, n *html.Node, prop string) (string, bool) {
	var best *candidate
	consider := func(c candidate) {
		if best == nil || c.beats(*best) {
			best = &c
		}
	}

	for _, r := range rules {
		if !r.sel.Match(n) {
			continue
		}
		for _, d := range r.decls {
			if strings.ToLower(d.Property) == prop {
				consider(candidate{value: d.Value, important: d.Important, spec: r.sel.Specificity(), order: r.order})
			}
		}
	}

	if raw, ok := getAttr(n, "style"); ok {
		for _, d := range parseInline(raw) {
			if d.prop == prop {
				consider(candidate{value: d.value, important: d.important, inline: true})
			}
		}
	}

	if best == nil {
		return "", false
	}
	return best.value, true
}

func computed(rules []sheetRule, n *html.Node, prop string) string {
	v, ok := cascaded(rules, n, prop)
	if ok && v != "inherit" {
		return v
	}
	parent := n.Parent
	if parent != nil && parent.Type == html.ElementNode && (inherited[prop] || v == "inherit") {
		return computed(rules, parent, prop)
	}
	return initial[prop]
}

type inlineDecl struct {
	prop      string
	value     string
	important bool
}

// parseInline reads a style attribute. douceur drops the value of a final
// declaration that has no terminating ';', so one is added when missing.
func parseInline(raw string) []inlineDecl {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if !strings.HasSuffix(raw, ";") {
		raw += ";"
	}
	decls, err := parser.ParseDeclarations(raw)
	if err != nil {
		return nil
	}
	out := make([]inlineDecl, 0, len(decls))
	for _, d := range decls {
		if strings.TrimSpace(d.Value) == "" {
			continue
		}
		out = append(out, inlineDecl{prop: strings.ToLower(d.Property), value: d.Value, important: d.Important})
	}
	return out
}

func serializeInline(decls []inlineDecl) string {
	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		if d.value == "" {
			continue
		}
		s := d.prop + ": " + d.value
		if d.important {
			s += " !important"
		}
		parts = append(parts, s+";")
	}
	return strings.Join(parts, " ")
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}
