// Package roddoc implements dom.Document over a live Chrome page driven
// by go-rod. Every call is one Runtime.callFunctionOn round trip; nothing
// is cached on the Go side.
package roddoc

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/restyle/dom"
	"github.com/hazyhaar/restyle/selector"
)

// Document wraps a page.
type Document struct {
	page *rod.Page
}

var _ dom.Document = (*Document)(nil)

// New wraps page.
func New(page *rod.Page) *Document {
	return &Document{page: page}
}

// Page returns the underlying page.
func (d *Document) Page() *rod.Page { return d.page }

func (d *Document) QuerySelectorAll(ctx context.Context, sel string) ([]dom.Element, error) {
	if err := selector.Validate(sel); err != nil {
		return nil, fmt.Errorf("roddoc: query: %w", err)
	}
	els, err := d.page.Context(ctx).Elements(sel)
	if err != nil {
		return nil, fmt.Errorf("roddoc: query %q: %w", sel, err)
	}
	out := make([]dom.Element, len(els))
	for i, el := range els {
		out[i] = &Element{el: el}
	}
	return out, nil
}

// ElementAt resolves a selector that must match exactly one element now,
// without waiting for it to appear.
func (d *Document) ElementAt(ctx context.Context, sel string) (*Element, error) {
	el, err := d.page.Context(ctx).Sleeper(rod.NotFoundSleeper).Element(sel)
	if err != nil {
		return nil, fmt.Errorf("roddoc: element %q: %w", sel, err)
	}
	return &Element{el: el}, nil
}

func (d *Document) InjectStyle(ctx context.Context, css string) error {
	_, err := d.page.Context(ctx).Eval(`function(css) {
		const s = document.createElement("style");
		s.textContent = css;
		(document.head || document.documentElement).appendChild(s);
	}`, css)
	if err != nil {
		return fmt.Errorf("roddoc: inject style: %w", err)
	}
	return nil
}

func (d *Document) MountRoot(ctx context.Context, id, class string) (dom.Element, error) {
	el, err := d.page.Context(ctx).ElementByJS(rod.Eval(`function(id, cls) {
		const old = document.getElementById(id);
		if (old) old.remove();
		const div = document.createElement("div");
		div.id = id;
		div.className = cls;
		document.body.appendChild(div);
		return div;
	}`, id, class))
	if err != nil {
		return nil, fmt.Errorf("roddoc: mount root: %w", err)
	}
	return &Element{el: el}, nil
}

func (d *Document) RemoveRoot(ctx context.Context, id string) error {
	_, err := d.page.Context(ctx).Eval(`function(id) {
		const el = document.getElementById(id);
		if (el) el.remove();
	}`, id)
	if err != nil {
		return fmt.Errorf("roddoc: remove root: %w", err)
	}
	return nil
}

func (d *Document) PrefersDark(ctx context.Context) (bool, error) {
	res, err := d.page.Context(ctx).Eval(`() => window.matchMedia("(prefers-color-scheme: dark)").matches`)
	if err != nil {
		return false, fmt.Errorf("roddoc: color scheme: %w", err)
	}
	return res.Value.Bool(), nil
}

// HTML serialises the live DOM.
func (d *Document) HTML(ctx context.Context) (string, error) {
	res, err := d.page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("roddoc: outerHTML: %w", err)
	}
	return "<!DOCTYPE html>\n" + res.Value.Str(), nil
}
