package roddoc

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/restyle/dom"
)

// Element wraps a remote element handle.
type Element struct {
	el *rod.Element
}

var _ dom.Element = (*Element)(nil)

// Rod returns the underlying element.
func (e *Element) Rod() *rod.Element { return e.el }

func (e *Element) call(ctx context.Context, js string, args ...any) error {
	_, err := e.el.Context(ctx).Eval(js, args...)
	return err
}

func (e *Element) Attrs(ctx context.Context) (dom.Attrs, error) {
	res, err := e.el.Context(ctx).Eval(`function() {
		const cls = typeof this.className === "string" ? this.className : (this.getAttribute("class") || "");
		return {tag: this.tagName, cls: cls, id: this.id || ""};
	}`)
	if err != nil {
		return dom.Attrs{}, fmt.Errorf("roddoc: attrs: %w", err)
	}
	v := res.Value
	return dom.Attrs{Tag: v.Get("tag").Str(), Class: v.Get("cls").Str(), ID: v.Get("id").Str()}, nil
}

func (e *Element) ComputedStyle(ctx context.Context, props []string) (map[string]string, error) {
	res, err := e.el.Context(ctx).Eval(`function(props) {
		const cs = getComputedStyle(this);
		const out = {};
		for (const p of props) out[p] = cs.getPropertyValue(p);
		return out;
	}`, props)
	if err != nil {
		return nil, fmt.Errorf("roddoc: computed style: %w", err)
	}
	out := make(map[string]string, len(props))
	for _, p := range props {
		out[p] = res.Value.Get(p).Str()
	}
	return out, nil
}

func (e *Element) SetStyle(ctx context.Context, prop, value string) error {
	if err := e.call(ctx, `function(p, v) {
		if (v === "") this.style.removeProperty(p);
		else this.style.setProperty(p, v);
	}`, prop, value); err != nil {
		return fmt.Errorf("roddoc: set style %s: %w", prop, err)
	}
	return nil
}

func (e *Element) InnerText(ctx context.Context) (string, error) {
	res, err := e.el.Context(ctx).Eval(`function() { return this.innerText; }`)
	if err != nil {
		return "", fmt.Errorf("roddoc: innerText: %w", err)
	}
	return res.Value.Str(), nil
}

func (e *Element) SetInnerText(ctx context.Context, text string) error {
	if err := e.call(ctx, `function(t) { this.innerText = t; }`, text); err != nil {
		return fmt.Errorf("roddoc: set innerText: %w", err)
	}
	return nil
}

func (e *Element) AddClass(ctx context.Context, name string) error {
	if err := e.call(ctx, `function(c) { this.classList.add(c); }`, name); err != nil {
		return fmt.Errorf("roddoc: add class: %w", err)
	}
	return nil
}

func (e *Element) RemoveClass(ctx context.Context, name string) error {
	if err := e.call(ctx, `function(c) { this.classList.remove(c); }`, name); err != nil {
		return fmt.Errorf("roddoc: remove class: %w", err)
	}
	return nil
}

func (e *Element) SetContentEditable(ctx context.Context, on bool) error {
	if err := e.call(ctx, `function(on) {
		this.contentEditable = on ? "true" : "false";
		if (on) this.focus();
	}`, on); err != nil {
		return fmt.Errorf("roddoc: contentEditable: %w", err)
	}
	return nil
}

func (e *Element) Closest(ctx context.Context, sel string) (bool, error) {
	res, err := e.el.Context(ctx).Eval(`function(s) { return this.closest(s) !== null; }`, sel)
	if err != nil {
		return false, fmt.Errorf("roddoc: closest: %w", err)
	}
	return res.Value.Bool(), nil
}
