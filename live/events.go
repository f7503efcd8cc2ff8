package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/restyle/dom"
	"github.com/hazyhaar/restyle/session"
)

// eventLoad is queued by the editor itself when a new document is ready;
// editor.js never sends it.
const eventLoad = "load"

// event is one report from editor.js, or a load.
type event struct {
	Type string `json:"type"` // click | input
	Path string `json:"path"` // structural CSS path of the event target
}

func decodeEvent(payload string) (event, error) {
	var ev event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return event{}, err
	}
	if ev.Path == "" {
		return event{}, fmt.Errorf("live: event without path")
	}
	switch ev.Type {
	case "click", "input":
	default:
		return event{}, fmt.Errorf("live: unknown event type %q", ev.Type)
	}
	return ev, nil
}

// dispatcher turns page events into machine transitions.
type dispatcher struct {
	resolve func(ctx context.Context, path string) (dom.Element, error)
	load    func(ctx context.Context) error
	machine *session.Machine
	logger  *slog.Logger
}

func (d *dispatcher) loop(ctx context.Context, events <-chan event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.dispatch(ctx, ev)
		}
	}
}

func (d *dispatcher) dispatch(ctx context.Context, ev event) {
	if ev.Type == eventLoad {
		if d.load == nil {
			return
		}
		if err := d.load(ctx); err != nil {
			d.logger.Warn("live: reload", "error", err)
		}
		return
	}
	el, err := d.resolve(ctx, ev.Path)
	if err != nil {
		d.logger.Warn("live: event target gone", "type", ev.Type, "path", ev.Path, "error", err)
		return
	}
	switch ev.Type {
	case "click":
		err = d.machine.SelectTarget(ctx, el)
	case "input":
		err = d.machine.TextInput(ctx, el)
	}
	if err != nil {
		d.logger.Warn("live: event", "type", ev.Type, "path", ev.Path, "error", err)
	}
}
