// Package panel defines the edit-panel contract the selection machine
// drives, and Form, the headless panel mounted into the page.
package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hazyhaar/restyle/changes"
	"github.com/hazyhaar/restyle/dom"
)

const (
	// MarkerClass tags the panel root so clicks inside it can be told apart
	// from page clicks.
	MarkerClass = "style-box"
	// RootID is the id of the mounted panel root.
	RootID = "style-box-root"
)

// ErrNotMounted is returned by Set on a panel that is not mounted.
var ErrNotMounted = errors.New("panel: not mounted")

// Binding is the write-through handle into the change store, already scoped
// to the target's key.
type Binding func(ctx context.Context, property, value string) error

// Panel is mounted on one target at a time. onClose fires exactly once per
// mount, on every dismissal path (Unmount included).
type Panel interface {
	Mount(ctx context.Context, target dom.Element, binding Binding, onClose func()) error
	Unmount(ctx context.Context) error
}

// Factory returns a fresh Panel for each selection.
type Factory func() Panel

// Field is one editable property with its current value.
type Field struct {
	Property changes.Property
	Value    string
}

// Form is the headless Panel: it mounts a marked root into the document,
// reads initial values off the target once, and writes edits to both the
// element and the binding.
type Form struct {
	doc    dom.Document
	logger *slog.Logger

	mu      sync.Mutex
	target  dom.Element
	binding Binding
	fields  []Field
	mounted bool

	onClose func()
	closed  atomic.Bool
}

var _ Panel = (*Form)(nil)

// NewForm creates an unmounted Form over doc.
func NewForm(doc dom.Document, logger *slog.Logger) *Form {
	if logger == nil {
		logger = slog.Default()
	}
	return &Form{doc: doc, logger: logger}
}

// Mount creates the panel root and reads initial values. A Form mounts once.
func (f *Form) Mount(ctx context.Context, target dom.Element, binding Binding, onClose func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mounted || f.onClose != nil {
		return errors.New("panel: form already used")
	}
	f.onClose = onClose

	if _, err := f.doc.MountRoot(ctx, RootID, MarkerClass); err != nil {
		return fmt.Errorf("panel: mount root: %w", err)
	}
	values, err := changes.ReadInitial(ctx, target)
	if err != nil {
		f.doc.RemoveRoot(ctx, RootID)
		return fmt.Errorf("panel: %w", err)
	}

	props := changes.Properties()
	f.fields = make([]Field, len(props))
	for i, p := range props {
		f.fields[i] = Field{Property: p, Value: values[p.Name]}
	}
	f.target = target
	f.binding = binding
	f.mounted = true
	f.logger.Debug("panel: mounted", "fields", len(f.fields))
	return nil
}

// Mounted reports whether the form is on screen.
func (f *Form) Mounted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mounted
}

// Fields returns a copy of the fields with their latest values.
func (f *Form) Fields() []Field {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Field, len(f.fields))
	copy(out, f.fields)
	return out
}

// Set applies value to the target and records it through the binding.
func (f *Form) Set(ctx context.Context, property, value string) error {
	prop, err := changes.Lookup(property)
	if err != nil {
		return err
	}

	f.mu.Lock()
	if !f.mounted {
		f.mu.Unlock()
		return ErrNotMounted
	}
	target, binding := f.target, f.binding
	for i := range f.fields {
		if f.fields[i].Property.Name == property {
			f.fields[i].Value = value
		}
	}
	f.mu.Unlock()

	if err := prop.Apply(ctx, target, value); err != nil {
		return fmt.Errorf("panel: apply %s: %w", property, err)
	}
	if binding != nil {
		if err := binding(ctx, property, value); err != nil {
			return fmt.Errorf("panel: record %s: %w", property, err)
		}
	}
	return nil
}

// Close is the panel's own close action. It only notifies: the owner
// reacts by unmounting.
func (f *Form) Close(ctx context.Context) {
	f.fireClose()
}

// Unmount removes the panel root and fires onClose if Close did not.
func (f *Form) Unmount(ctx context.Context) error {
	f.mu.Lock()
	wasMounted := f.mounted
	f.mounted = false
	f.target = nil
	f.binding = nil
	f.mu.Unlock()

	var err error
	if wasMounted {
		if rerr := f.doc.RemoveRoot(ctx, RootID); rerr != nil {
			err = fmt.Errorf("panel: remove root: %w", rerr)
		}
		f.logger.Debug("panel: unmounted")
	}
	f.fireClose()
	return err
}

// fireClose runs onClose at most once. The callback may re-enter Unmount,
// so this cannot be a sync.Once.
func (f *Form) fireClose() {
	if !f.closed.CompareAndSwap(false, true) {
		return
	}
	f.mu.Lock()
	cb := f.onClose
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
}
