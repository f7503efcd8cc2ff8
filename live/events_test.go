package live

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/hazyhaar/restyle/changes"
	"github.com/hazyhaar/restyle/dom"
	"github.com/hazyhaar/restyle/dom/htmldoc"
	"github.com/hazyhaar/restyle/panel"
	"github.com/hazyhaar/restyle/persist"
	"github.com/hazyhaar/restyle/session"
)

func TestDecodeEvent(t *testing.T) {
	ev, err := decodeEvent(`{"type":"click","path":"html > body:nth-child(2)"}`)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Type != "click" || ev.Path != "html > body:nth-child(2)" {
		t.Errorf("got %+v", ev)
	}

	for _, bad := range []string{`{`, `{"type":"click"}`, `{"type":"hover","path":"html"}`} {
		if _, err := decodeEvent(bad); err == nil {
			t.Errorf("decodeEvent(%s): expected error", bad)
		}
	}
}

const page = `<html><head></head><body><div class="card hero">A</div><p id="b">B</p></body></html>`

func newDispatcher(t *testing.T) (*htmldoc.Document, *session.Machine, *persist.Memory, *dispatcher) {
	t.Helper()
	doc, err := htmldoc.ParseString(page)
	if err != nil {
		t.Fatal(err)
	}
	kv := persist.NewMemory()
	m := session.New(doc, changes.NewStore(), persist.New(kv, nil), panel.NewHost(doc, nil).New, nil)
	d := &dispatcher{
		resolve: func(ctx context.Context, path string) (dom.Element, error) {
			els, err := doc.QuerySelectorAll(ctx, path)
			if err != nil {
				return nil, err
			}
			if len(els) != 1 {
				return nil, fmt.Errorf("%d matches", len(els))
			}
			return els[0], nil
		},
		machine: m,
		logger:  slog.Default(),
	}
	return doc, m, kv, d
}

func TestDispatch_ClickAndInput(t *testing.T) {
	ctx := context.Background()
	doc, m, kv, d := newDispatcher(t)

	d.dispatch(ctx, event{Type: "click", Path: "html > body:nth-child(2) > p:nth-child(2)"})
	if m.State() != session.Idle {
		t.Fatalf("click with mode off changed state to %v", m.State())
	}

	m.EnableMode(ctx)
	d.dispatch(ctx, event{Type: "click", Path: "html > body:nth-child(2) > p:nth-child(2)"})
	if m.Session().Key != "P__b" {
		t.Fatalf("selected %q", m.Session().Key)
	}

	doc.ElementByID("b").SetInnerText(ctx, "edited")
	d.dispatch(ctx, event{Type: "input", Path: "html > body:nth-child(2) > p:nth-child(2)"})

	cs, found, err := persist.New(kv, nil).Load(ctx)
	if err != nil || !found || cs["P__b"][changes.InnerText] != "edited" {
		t.Errorf("saved = %v %v %v", cs, found, err)
	}

	// Clicking inside the panel keeps the selection.
	d.dispatch(ctx, event{Type: "click", Path: "#" + panel.RootID})
	if m.Session().Key != "P__b" {
		t.Errorf("panel click moved selection to %q", m.Session().Key)
	}

	// A vanished target is logged and dropped.
	d.dispatch(ctx, event{Type: "click", Path: "html > body:nth-child(2) > span:nth-child(9)"})
	if m.Session().Key != "P__b" {
		t.Errorf("missing target changed selection")
	}
}

func TestLoop_ArrivalOrder(t *testing.T) {
	ctx := context.Background()
	_, m, _, d := newDispatcher(t)
	m.EnableMode(ctx)

	events := make(chan event, 2)
	events <- event{Type: "click", Path: "html > body:nth-child(2) > div:nth-child(1)"}
	events <- event{Type: "click", Path: "html > body:nth-child(2) > p:nth-child(2)"}
	close(events)

	d.loop(ctx, events)

	if got := m.Session().Key; got != "P__b" {
		t.Errorf("last selection = %q, want P__b", got)
	}
}

func TestDispatch_Load(t *testing.T) {
	ctx := context.Background()
	_, m, _, d := newDispatcher(t)
	m.EnableMode(ctx)
	d.dispatch(ctx, event{Type: "click", Path: "html > body:nth-child(2) > p:nth-child(2)"})

	// Without a hook a load is ignored.
	d.dispatch(ctx, event{Type: eventLoad})
	if m.Session().Key != "P__b" {
		t.Fatalf("load without hook changed selection to %q", m.Session().Key)
	}

	loads := 0
	d.load = func(ctx context.Context) error {
		loads++
		m.Reset(ctx)
		return nil
	}
	d.dispatch(ctx, event{Type: eventLoad})
	if loads != 1 {
		t.Errorf("load hook ran %d times, want 1", loads)
	}
	if m.State() != session.ModeArmed {
		t.Errorf("state after load = %v, want armed", m.State())
	}
}

func TestDecodeEvent_RejectsLoadFromPage(t *testing.T) {
	if _, err := decodeEvent(`{"type":"load","path":"html"}`); err == nil {
		t.Error("page-sent load event accepted")
	}
}
