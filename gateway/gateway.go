// Package gateway receives cross-context messages (popup, CLI, MCP
// clients) and maps them onto the selection machine and the persistence
// layer. It also runs the page-load sequence: attach, read mode, replay.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/restyle/changes"
	"github.com/hazyhaar/restyle/dom"
	"github.com/hazyhaar/restyle/journal"
	"github.com/hazyhaar/restyle/panel"
	"github.com/hazyhaar/restyle/persist"
	"github.com/hazyhaar/restyle/session"
)

// Message types.
const (
	TypeGetColorScheme = "getColorScheme"
	TypeReloadChanges  = "reloadChanges"
	TypeSaveChanges    = "saveChanges"
	TypeGetChanges     = "getChanges"
	TypeSetProperty    = "setProperty"
)

// ErrUnknownMessage is returned for a message carrying neither a known
// type nor an editMode field.
var ErrUnknownMessage = errors.New("gateway: unknown message")

// ErrNoPanel is returned by setProperty when no panel is mounted.
var ErrNoPanel = errors.New("gateway: no panel mounted")

// Message is the inbound shape. EditMode and Type are independent; a
// message may carry both.
type Message struct {
	EditMode *bool  `json:"editMode,omitempty"`
	Type     string `json:"type,omitempty"`

	// setProperty only.
	Property string `json:"property,omitempty"`
	Value    string `json:"value,omitempty"`
}

// Response answers a Message. Only the fields relevant to it are set.
type Response struct {
	State   string            `json:"state"`
	Scheme  string            `json:"scheme,omitempty"` // "light" | "dark"
	Report  *changes.Report   `json:"report,omitempty"`
	Changes changes.ChangeSet `json:"changes,omitempty"`
}

// Gateway is safe for concurrent use; the machine and store serialise.
type Gateway struct {
	doc     dom.Document
	machine *session.Machine
	store   *changes.Store
	layer   *persist.Layer
	mode    *persist.ModeStore
	panels  *panel.Host
	journal *journal.Journal
	logger  *slog.Logger
}

// New wires a Gateway. mode may be nil (the flag is then not persisted).
func New(doc dom.Document, machine *session.Machine, store *changes.Store, layer *persist.Layer, mode *persist.ModeStore, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{doc: doc, machine: machine, store: store, layer: layer, mode: mode, logger: logger}
}

// WithPanels lets setProperty reach the mounted form.
func (g *Gateway) WithPanels(h *panel.Host) *Gateway {
	g.panels = h
	return g
}

// WithJournal records every message handled through HTTP or MCP.
func (g *Gateway) WithJournal(j *journal.Journal) *Gateway {
	g.journal = j
	return g
}

// Start runs the page-load sequence. Storage failures degrade to an empty
// in-memory session and are only logged.
func (g *Gateway) Start(ctx context.Context) (changes.Report, error) {
	if err := g.machine.Attach(ctx); err != nil {
		return changes.Report{}, fmt.Errorf("gateway: start: %w", err)
	}

	if g.mode != nil {
		on, _, err := g.mode.Enabled(ctx)
		if err != nil {
			g.logger.Warn("gateway: mode unavailable, starting disabled", "error", err)
		}
		if on {
			g.machine.EnableMode(ctx)
		}
	}

	cs, found, err := g.layer.Load(ctx)
	if err != nil {
		g.logger.Warn("gateway: no prior state", "error", err)
	}
	if err != nil || !found {
		g.store.Rehydrate(changes.ChangeSet{})
		return changes.Report{}, nil
	}
	g.store.Rehydrate(cs)
	rep := changes.ApplyAll(ctx, cs, g.doc, g.logger)
	g.logger.Info("gateway: started", "keys", rep.Keys, "applied", rep.Applied, "state", g.machine.State().String())
	return rep, nil
}

// Handle dispatches one message.
func (g *Gateway) Handle(ctx context.Context, msg Message) (Response, error) {
	if msg.EditMode == nil && msg.Type == "" {
		return Response{}, ErrUnknownMessage
	}

	var resp Response
	if msg.EditMode != nil {
		if err := g.SetEditMode(ctx, *msg.EditMode); err != nil {
			return Response{}, err
		}
	}

	switch msg.Type {
	case "":
	case TypeGetColorScheme:
		scheme, err := g.ColorScheme(ctx)
		if err != nil {
			return Response{}, err
		}
		resp.Scheme = scheme
	case TypeReloadChanges:
		rep, err := g.Reload(ctx)
		if err != nil {
			return Response{}, err
		}
		resp.Report = &rep
	case TypeSaveChanges:
		if err := g.machine.Save(ctx); err != nil {
			return Response{}, err
		}
	case TypeGetChanges:
		resp.Changes = g.store.Snapshot()
	case TypeSetProperty:
		if err := g.SetProperty(ctx, msg.Property, msg.Value); err != nil {
			return Response{}, err
		}
	default:
		return Response{}, fmt.Errorf("%w: type %q", ErrUnknownMessage, msg.Type)
	}

	resp.State = g.machine.State().String()
	return resp, nil
}

// SetEditMode switches the machine and persists the flag. A storage
// failure is logged; the mode still changes for this session.
func (g *Gateway) SetEditMode(ctx context.Context, on bool) error {
	if on {
		g.machine.EnableMode(ctx)
	} else if err := g.machine.DisableMode(ctx); err != nil {
		g.logger.Warn("gateway: disable mode", "error", err)
	}
	if g.mode != nil {
		if err := g.mode.SetEnabled(ctx, on); err != nil {
			g.logger.Warn("gateway: mode not persisted", "error", err)
		}
	}
	return nil
}

// ColorScheme reads the host's color-scheme preference.
func (g *Gateway) ColorScheme(ctx context.Context) (string, error) {
	dark, err := g.doc.PrefersDark(ctx)
	if err != nil {
		return "", fmt.Errorf("gateway: color scheme: %w", err)
	}
	if dark {
		return "dark", nil
	}
	return "light", nil
}

// SetProperty edits the target through the mounted panel, exactly as a
// panel widget would.
func (g *Gateway) SetProperty(ctx context.Context, property, value string) error {
	if g.panels == nil {
		return ErrNoPanel
	}
	f := g.panels.Current()
	if f == nil {
		return ErrNoPanel
	}
	return f.Set(ctx, property, value)
}

// Reload replays the durable record into the document.
func (g *Gateway) Reload(ctx context.Context) (changes.Report, error) {
	rep, err := g.layer.ReplayIntoDocument(ctx, g.doc)
	if err != nil {
		g.logger.Warn("gateway: reload", "error", err)
		return changes.Report{}, err
	}
	return rep, nil
}
