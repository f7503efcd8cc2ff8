// Package selector turns an element into a durable key and a key back into
// a CSS selector.
//
// A key is the serialised triple "TAG_CLASS1 CLASS2_ID". Identity is
// many-to-one on purpose: every element producing the same key is the same
// logical target on replay, across page loads. Delimiters inside class or id
// strings are not escaped, so collisions are possible.
package selector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"

	"github.com/hazyhaar/restyle/dom"
)

// Delimiter separates tag, class and id in a serialised key.
const Delimiter = "_"

// AffordanceClass marks the element being edited. It is never part of a key.
const AffordanceClass = "editing-element"

// ErrMalformed is returned when a derived selector does not parse.
var ErrMalformed = errors.New("selector: malformed selector")

// Key is the derived identity of an element.
type Key struct {
	Tag   string
	Class string // raw, whitespace-delimited
	ID    string
}

// Derive reads the element's current attributes and builds its key.
func Derive(ctx context.Context, el dom.Element) (Key, error) {
	a, err := el.Attrs(ctx)
	if err != nil {
		return Key{}, fmt.Errorf("selector: derive: %w", err)
	}
	return Key{Tag: a.Tag, Class: stripAffordance(a.Class), ID: a.ID}, nil
}

// String serialises the key.
func (k Key) String() string {
	return k.Tag + Delimiter + k.Class + Delimiter + k.ID
}

// Classes returns the key's class list in authored order.
func (k Key) Classes() []string {
	return strings.Fields(k.Class)
}

// Parse splits a serialised key. Only the first two delimiters count, so an
// id containing the delimiter survives; a class containing it does not.
func Parse(serialized string) Key {
	parts := strings.SplitN(serialized, Delimiter, 3)
	var k Key
	k.Tag = parts[0]
	if len(parts) > 1 {
		k.Class = parts[1]
	}
	if len(parts) > 2 {
		k.ID = parts[2]
	}
	return k
}

// ToSelector converts a serialised key into a CSS selector:
// tag, then each class prefixed with '.', then '#id'. Empty parts are
// omitted. Class and id segments are escaped.
func ToSelector(serialized string) string {
	return Parse(serialized).Selector()
}

// Selector builds the CSS selector for k.
func (k Key) Selector() string {
	var sb strings.Builder
	sb.WriteString(k.Tag)
	for _, c := range k.Classes() {
		sb.WriteByte('.')
		sb.WriteString(Escape(c))
	}
	if k.ID != "" {
		sb.WriteByte('#')
		sb.WriteString(Escape(k.ID))
	}
	return sb.String()
}

// Validate parses sel and reports ErrMalformed if it is not a usable
// selector.
func Validate(sel string) error {
	if strings.TrimSpace(sel) == "" {
		return fmt.Errorf("%w: empty", ErrMalformed)
	}
	if _, err := cascadia.ParseGroup(sel); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrMalformed, sel, err)
	}
	return nil
}

func stripAffordance(class string) string {
	fields := strings.Fields(class)
	kept := fields[:0]
	found := false
	for _, f := range fields {
		if f == AffordanceClass {
			found = true
			continue
		}
		kept = append(kept, f)
	}
	if !found {
		return class
	}
	return strings.Join(kept, " ")
}
