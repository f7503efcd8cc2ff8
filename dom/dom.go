// Package dom defines the document surface the editor works against.
//
// Two implementations exist: dom/htmldoc (an in-memory HTML tree, used for
// offline replay and tests) and dom/roddoc (a live Chrome page driven over
// CDP). Everything above this package (selector codec, change store,
// persistence, selection state machine, panels) only sees these interfaces.
package dom

import "context"

// Attrs is the identity triple read off an element at call time.
type Attrs struct {
	Tag   string // upper-case, as browsers report tagName
	Class string // raw class attribute, as authored
	ID    string
}

// Element is a node the editor can address, restyle and mark.
type Element interface {
	// Attrs reads tag, class and id. Never cached.
	Attrs(ctx context.Context) (Attrs, error)

	// ComputedStyle returns the resolved value of each requested property.
	ComputedStyle(ctx context.Context, props []string) (map[string]string, error)

	// SetStyle writes one inline style property.
	SetStyle(ctx context.Context, prop, value string) error

	InnerText(ctx context.Context) (string, error)
	SetInnerText(ctx context.Context, text string) error

	AddClass(ctx context.Context, name string) error
	RemoveClass(ctx context.Context, name string) error

	// SetContentEditable toggles in-place text editing (and focus when on).
	SetContentEditable(ctx context.Context, on bool) error

	// Closest reports whether the element or one of its ancestors
	// matches selector.
	Closest(ctx context.Context, selector string) (bool, error)
}

// Document is the page the editor runs in.
type Document interface {
	// QuerySelectorAll returns every element matching selector. A selector
	// that does not parse yields an error wrapping selector.ErrMalformed
	// (or the driver's own error for live pages).
	QuerySelectorAll(ctx context.Context, selector string) ([]Element, error)

	// InjectStyle appends a <style> element with css to the document head.
	InjectStyle(ctx context.Context, css string) error

	// MountRoot appends <div id=id class=class> to the body and returns it.
	MountRoot(ctx context.Context, id, class string) (Element, error)

	// RemoveRoot removes the element with the given id, if present.
	RemoveRoot(ctx context.Context, id string) error

	// PrefersDark reports the host's prefers-color-scheme media preference.
	PrefersDark(ctx context.Context) (bool, error)
}
