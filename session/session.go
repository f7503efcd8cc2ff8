// Package session owns the edit session: whether edit mode is on, which
// element is the current target, and the panel mounted on it.
//
// Only the Machine adds or removes the affordance class and toggles
// contentEditable. The affordance is present on an element if and only if
// that element is the current target in state Editing.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hazyhaar/restyle/changes"
	"github.com/hazyhaar/restyle/dom"
	"github.com/hazyhaar/restyle/panel"
	"github.com/hazyhaar/restyle/persist"
	"github.com/hazyhaar/restyle/selector"
)

// AffordanceCSS is the outline rule injected once per document.
const AffordanceCSS = "." + selector.AffordanceClass + " { outline: 2px solid blue !important; }"

// State of the selection machine.
type State int

const (
	Idle      State = iota // edit mode off, no target
	ModeArmed              // edit mode on, no target
	Editing                // edit mode on, one target, panel mounted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ModeArmed:
		return "armed"
	case Editing:
		return "editing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// EditSession is the machine's owned state. Session returns copies.
type EditSession struct {
	Enabled bool
	Target  dom.Element
	Key     string // serialised key of Target, empty without one
}

// Machine drives selection, panel lifecycle and saving.
type Machine struct {
	doc      dom.Document
	store    *changes.Store
	layer    *persist.Layer
	newPanel panel.Factory
	logger   *slog.Logger

	mu       sync.Mutex
	sess     EditSession
	panel    panel.Panel
	attached bool

	// mountGen tags each mount. An onClose carrying an older generation
	// comes from a machine-initiated unmount and is ignored.
	mountGen atomic.Uint64
}

// New creates an Idle machine. layer may be nil, in which case Save only
// commits in memory.
func New(doc dom.Document, store *changes.Store, layer *persist.Layer, newPanel panel.Factory, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		doc:      doc,
		store:    store,
		layer:    layer,
		newPanel: newPanel,
		logger:   logger,
	}
}

// Attach injects the affordance style rule. Later calls are no-ops.
func (m *Machine) Attach(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attached {
		return nil
	}
	if err := m.doc.InjectStyle(ctx, AffordanceCSS); err != nil {
		return fmt.Errorf("session: attach: %w", err)
	}
	m.attached = true
	return nil
}

// State reports the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Machine) stateLocked() State {
	switch {
	case !m.sess.Enabled:
		return Idle
	case m.sess.Target != nil:
		return Editing
	default:
		return ModeArmed
	}
}

// Session returns a copy of the edit session.
func (m *Machine) Session() EditSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}

// EnableMode arms selection. No-op when already armed or editing.
func (m *Machine) EnableMode(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.sess.Enabled {
		m.sess.Enabled = true
		m.logger.Info("session: edit mode on")
	}
}

// DisableMode tears down any selection and returns to Idle. Safe with no
// target selected.
func (m *Machine) DisableMode(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.teardownLocked(ctx)
	if m.sess.Enabled {
		m.sess.Enabled = false
		m.logger.Info("session: edit mode off")
	}
	return err
}

// SelectTarget makes el the current target. Ignored when edit mode is off
// or when el lies inside the mounted panel.
func (m *Machine) SelectTarget(ctx context.Context, el dom.Element) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.sess.Enabled {
		return nil
	}
	inPanel, err := el.Closest(ctx, "."+panel.MarkerClass)
	if err != nil {
		return fmt.Errorf("session: select: %w", err)
	}
	if inPanel {
		return nil
	}

	if err := m.teardownLocked(ctx); err != nil {
		m.logger.Warn("session: teardown before select", "error", err)
	}

	key, err := selector.Derive(ctx, el)
	if err != nil {
		return fmt.Errorf("session: select: %w", err)
	}
	if err := el.AddClass(ctx, selector.AffordanceClass); err != nil {
		return fmt.Errorf("session: select: %w", err)
	}
	if err := el.SetContentEditable(ctx, true); err != nil {
		m.logger.Warn("session: contentEditable", "key", key.String(), "error", err)
	}
	skey := key.String()
	m.store.BeginTracking(skey)

	p := m.newPanel()
	gen := m.mountGen.Add(1)
	binding := func(ctx context.Context, property, value string) error {
		return m.store.Record(skey, property, value)
	}
	onClose := func() {
		// Fast path: a teardown bumps the generation before Unmount, and
		// still holds mu while the callback runs.
		if m.mountGen.Load() != gen {
			return
		}
		if err := m.closePanel(context.Background(), gen); err != nil {
			m.logger.Warn("session: close panel", "error", err)
		}
	}
	if err := p.Mount(ctx, el, binding, onClose); err != nil {
		m.mountGen.Add(1)
		el.RemoveClass(ctx, selector.AffordanceClass)
		el.SetContentEditable(ctx, false)
		return fmt.Errorf("session: mount panel: %w", err)
	}

	m.sess.Target = el
	m.sess.Key = skey
	m.panel = p
	m.logger.Debug("session: selected", "key", skey)
	return nil
}

// ClosePanel is the panel's own close path: Editing -> ModeArmed, edit
// mode untouched.
func (m *Machine) ClosePanel(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.teardownLocked(ctx)
}

// Reset forgets the target, the panel and the injected style after the
// page was replaced by a new document. Edit mode is kept. The old target
// is gone with its document, so it is not touched.
func (m *Machine) Reset(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panel != nil {
		m.mountGen.Add(1)
		p := m.panel
		m.panel = nil
		if err := p.Unmount(ctx); err != nil {
			m.logger.Debug("session: reset unmount", "error", err)
		}
	}
	m.sess.Target = nil
	m.sess.Key = ""
	m.attached = false
	m.logger.Debug("session: reset for new document", "enabled", m.sess.Enabled)
}

// closePanel tears down only if the panel of mount gen is still the
// mounted one once mu is held; a selection made meanwhile is left alone.
func (m *Machine) closePanel(ctx context.Context, gen uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mountGen.Load() != gen {
		return nil
	}
	return m.teardownLocked(ctx)
}

// teardownLocked unmounts the panel and strips the target. Caller holds mu.
func (m *Machine) teardownLocked(ctx context.Context) error {
	var firstErr error
	if m.panel != nil {
		m.mountGen.Add(1)
		p := m.panel
		m.panel = nil
		if err := p.Unmount(ctx); err != nil {
			firstErr = err
		}
	}
	if t := m.sess.Target; t != nil {
		if err := t.RemoveClass(ctx, selector.AffordanceClass); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := t.SetContentEditable(ctx, false); err != nil && firstErr == nil {
			firstErr = err
		}
		m.logger.Debug("session: released", "key", m.sess.Key)
		m.sess.Target = nil
		m.sess.Key = ""
	}
	if firstErr != nil {
		return fmt.Errorf("session: teardown: %w", firstErr)
	}
	return nil
}

// TextInput handles typing directly into the target: the live text is
// recorded under innerText and the whole set is saved. Input on any other
// element is ignored.
func (m *Machine) TextInput(ctx context.Context, el dom.Element) error {
	m.mu.Lock()
	if m.sess.Target == nil {
		m.mu.Unlock()
		return nil
	}
	key, err := selector.Derive(ctx, el)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("session: text input: %w", err)
	}
	if key.String() != m.sess.Key {
		m.mu.Unlock()
		return nil
	}
	text, err := el.InnerText(ctx)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("session: text input: %w", err)
	}
	if err := m.store.Record(m.sess.Key, changes.InnerText, text); err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()
	return m.Save(ctx)
}

// Save commits the session view and writes it to durable storage.
func (m *Machine) Save(ctx context.Context) error {
	cs := m.store.Commit()
	if m.layer == nil {
		return nil
	}
	return m.layer.Save(ctx, cs)
}
