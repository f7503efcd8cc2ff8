package changes

import (
	"context"
	"errors"
	"fmt"

	"github.com/hazyhaar/restyle/dom"
)

// InnerText is the sentinel property addressing an element's text content.
const InnerText = "innerText"

// ErrUnknownProperty is returned for properties outside the allow-list.
var ErrUnknownProperty = errors.New("changes: unknown property")

// Kind tells an edit surface which widget fits a property.
type Kind string

const (
	KindColor  Kind = "color"
	KindSelect Kind = "select"
	KindText   Kind = "text"
)

// Property is one editable property with its typed setter.
type Property struct {
	Name    string
	Kind    Kind
	Options []string // KindSelect only

	apply func(ctx context.Context, el dom.Element, value string) error
}

// Apply writes value to el.
func (p Property) Apply(ctx context.Context, el dom.Element, value string) error {
	return p.apply(ctx, el, value)
}

// IsText reports whether p is the text-content sentinel.
func (p Property) IsText() bool { return p.Name == InnerText }

func styleProperty(name string, kind Kind, options ...string) Property {
	return Property{
		Name:    name,
		Kind:    kind,
		Options: options,
		apply: func(ctx context.Context, el dom.Element, value string) error {
			return el.SetStyle(ctx, name, value)
		},
	}
}

var textProperty = Property{
	Name: InnerText,
	Kind: KindText,
	apply: func(ctx context.Context, el dom.Element, value string) error {
		return el.SetInnerText(ctx, value)
	},
}

// properties is the allow-list, in panel display order.
var properties = []Property{
	styleProperty("color", KindColor),
	styleProperty("background-color", KindColor),
	styleProperty("font-size", KindText),
	styleProperty("align-items", KindSelect, "stretch", "center", "flex-start", "flex-end", "baseline"),
	styleProperty("justify-content", KindSelect, "flex-start", "flex-end", "center", "space-between", "space-around", "space-evenly"),
	styleProperty("flex-direction", KindSelect, "row", "row-reverse", "column", "column-reverse"),
	textProperty,
}

var byName = func() map[string]Property {
	m := make(map[string]Property, len(properties))
	for _, p := range properties {
		m[p.Name] = p
	}
	return m
}()

// Properties returns the allow-list in display order.
func Properties() []Property {
	out := make([]Property, len(properties))
	copy(out, properties)
	return out
}

// StyleNames returns the names of the style (non-text) properties.
func StyleNames() []string {
	var out []string
	for _, p := range properties {
		if !p.IsText() {
			out = append(out, p.Name)
		}
	}
	return out
}

// Lookup returns the property called name.
func Lookup(name string) (Property, error) {
	p, ok := byName[name]
	if !ok {
		return Property{}, fmt.Errorf("%w: %q", ErrUnknownProperty, name)
	}
	return p, nil
}

// ReadInitial reads the current value of every allowed property on el: the
// computed style for style properties, the live text for innerText.
func ReadInitial(ctx context.Context, el dom.Element) (map[string]string, error) {
	styles, err := el.ComputedStyle(ctx, StyleNames())
	if err != nil {
		return nil, fmt.Errorf("changes: read computed style: %w", err)
	}
	text, err := el.InnerText(ctx)
	if err != nil {
		return nil, fmt.Errorf("changes: read text: %w", err)
	}
	styles[InnerText] = text
	return styles, nil
}
