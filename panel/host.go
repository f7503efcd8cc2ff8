package panel

import (
	"log/slog"
	"sync"

	"github.com/hazyhaar/restyle/dom"
)

// Host builds Forms for one document and remembers the latest one, so a
// front end (the terminal console, the gateway) can reach the panel that
// is currently on screen.
type Host struct {
	doc    dom.Document
	logger *slog.Logger

	mu      sync.Mutex
	current *Form
}

// NewHost creates a Host over doc.
func NewHost(doc dom.Document, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{doc: doc, logger: logger}
}

// New is a Factory.
func (h *Host) New() Panel {
	f := NewForm(h.doc, h.logger)
	h.mu.Lock()
	h.current = f
	h.mu.Unlock()
	return f
}

// Current returns the mounted form, or nil.
func (h *Host) Current() *Form {
	h.mu.Lock()
	f := h.current
	h.mu.Unlock()
	if f == nil || !f.Mounted() {
		return nil
	}
	return f
}
