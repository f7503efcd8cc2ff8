package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/restyle/changes"
	"github.com/hazyhaar/restyle/dbopen"
	"github.com/hazyhaar/restyle/dom/htmldoc"
	"github.com/hazyhaar/restyle/journal"
	"github.com/hazyhaar/restyle/panel"
	"github.com/hazyhaar/restyle/persist"
	"github.com/hazyhaar/restyle/session"
)

const page = `<html><head></head><body>
<div class="card hero">A</div>
<p id="b">B</p>
</body></html>`

type harness struct {
	doc     *htmldoc.Document
	gw      *Gateway
	machine *session.Machine
	store   *changes.Store
	changes *persist.Memory
	mode    *persist.Memory
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	doc, err := htmldoc.ParseString(page)
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{doc: doc, store: changes.NewStore(), changes: persist.NewMemory(), mode: persist.NewMemory()}
	layer := persist.New(h.changes, nil)
	host := panel.NewHost(doc, nil)
	h.machine = session.New(doc, h.store, layer, host.New, nil)
	h.gw = New(doc, h.machine, h.store, layer, persist.NewModeStore(h.mode), nil).WithPanels(host)
	return h
}

func boolPtr(b bool) *bool { return &b }

func TestHandle_EditMode(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	resp, err := h.gw.Handle(ctx, Message{EditMode: boolPtr(true)})
	if err != nil {
		t.Fatal(err)
	}
	if resp.State != "armed" {
		t.Errorf("state = %q, want armed", resp.State)
	}
	on, found, _ := persist.NewModeStore(h.mode).Enabled(ctx)
	if !found || !on {
		t.Error("edit mode not persisted")
	}

	els, _ := h.doc.QuerySelectorAll(ctx, "p")
	h.machine.SelectTarget(ctx, els[0])

	resp, err = h.gw.Handle(ctx, Message{EditMode: boolPtr(false)})
	if err != nil {
		t.Fatal(err)
	}
	if resp.State != "idle" {
		t.Errorf("state = %q, want idle", resp.State)
	}
	if h.doc.ElementByID(panel.RootID) != nil {
		t.Error("panel left mounted after editMode=false")
	}
}

func TestHandle_ColorScheme(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	resp, _ := h.gw.Handle(ctx, Message{Type: TypeGetColorScheme})
	if resp.Scheme != "light" {
		t.Errorf("scheme = %q, want light", resp.Scheme)
	}
	h.doc.SetPrefersDark(true)
	resp, _ = h.gw.Handle(ctx, Message{Type: TypeGetColorScheme})
	if resp.Scheme != "dark" {
		t.Errorf("scheme = %q, want dark", resp.Scheme)
	}
}

func TestHandle_Unknown(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	if _, err := h.gw.Handle(ctx, Message{}); !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("empty message: %v", err)
	}
	if _, err := h.gw.Handle(ctx, Message{Type: "selfDestruct"}); !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("unknown type: %v", err)
	}
}

func TestHandle_SaveReloadChanges(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.store.Record("DIV_card hero_", "color", "#112233")
	if _, err := h.gw.Handle(ctx, Message{Type: TypeSaveChanges}); err != nil {
		t.Fatal(err)
	}

	resp, err := h.gw.Handle(ctx, Message{Type: TypeGetChanges})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Changes["DIV_card hero_"]["color"] != "#112233" {
		t.Errorf("changes = %v", resp.Changes)
	}

	resp, err = h.gw.Handle(ctx, Message{Type: TypeReloadChanges})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Report == nil || resp.Report.Applied != 1 {
		t.Fatalf("report = %+v", resp.Report)
	}
	els, _ := h.doc.QuerySelectorAll(ctx, "div.card.hero")
	got, _ := els[0].ComputedStyle(ctx, []string{"color"})
	if got["color"] != "#112233" {
		t.Errorf("color = %q", got["color"])
	}
}

func TestHandle_SetProperty(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	msg := Message{Type: TypeSetProperty, Property: "color", Value: "red"}
	if _, err := h.gw.Handle(ctx, msg); !errors.Is(err, ErrNoPanel) {
		t.Fatalf("without a panel: %v", err)
	}

	h.gw.Handle(ctx, Message{EditMode: boolPtr(true)})
	els, _ := h.doc.QuerySelectorAll(ctx, "p")
	h.machine.SelectTarget(ctx, els[0])

	if _, err := h.gw.Handle(ctx, msg); err != nil {
		t.Fatal(err)
	}
	if h.store.Tracked("P__b")["color"] != "red" {
		t.Errorf("not recorded: %v", h.store.Tracked("P__b"))
	}
	got, _ := els[0].ComputedStyle(ctx, []string{"color"})
	if got["color"] != "red" {
		t.Errorf("color = %q", got["color"])
	}

	bad := Message{Type: TypeSetProperty, Property: "position", Value: "fixed"}
	if _, err := h.gw.Handle(ctx, bad); !errors.Is(err, changes.ErrUnknownProperty) {
		t.Errorf("unknown property: %v", err)
	}
}

func TestStart(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	persist.NewModeStore(h.mode).SetEnabled(ctx, true)
	persist.New(h.changes, nil).Save(ctx, changes.ChangeSet{"P__b": {changes.InnerText: "saved"}})

	rep, err := h.gw.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Applied != 1 {
		t.Errorf("Applied = %d", rep.Applied)
	}
	if h.machine.State() != session.ModeArmed {
		t.Errorf("state = %v, want armed", h.machine.State())
	}
	if txt, _ := h.doc.ElementByID("b").InnerText(ctx); txt != "saved" {
		t.Errorf("text = %q", txt)
	}
	if h.store.Tracked("P__b")[changes.InnerText] != "saved" {
		t.Error("store not rehydrated")
	}
	if !strings.Contains(h.doc.String(), "outline: 2px solid blue") {
		t.Error("affordance rule missing")
	}
}

func TestStart_NothingSavedClearsSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.store.Record("P__b", "color", "red")

	if _, err := h.gw.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if got := h.store.Tracked("P__b"); got != nil {
		t.Errorf("previous document's changes survived: %v", got)
	}
}

type failingKV struct{}

func (failingKV) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("down")
}

func (failingKV) Put(context.Context, string, []byte) error {
	return errors.New("down")
}

func TestStart_StorageDown(t *testing.T) {
	ctx := context.Background()
	doc, _ := htmldoc.ParseString(page)
	store := changes.NewStore()
	layer := persist.New(failingKV{}, nil)
	m := session.New(doc, store, layer, panel.NewHost(doc, nil).New, nil)
	gw := New(doc, m, store, layer, persist.NewModeStore(failingKV{}), nil)

	if _, err := gw.Start(ctx); err != nil {
		t.Fatalf("Start must degrade, got %v", err)
	}
	if m.State() != session.Idle {
		t.Errorf("state = %v", m.State())
	}
	resp, err := gw.Handle(ctx, Message{EditMode: boolPtr(true)})
	if err != nil || resp.State != "armed" {
		t.Errorf("mode change without storage: %+v %v", resp, err)
	}
}

func TestRouter(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.gw.Router(nil))
	defer srv.Close()

	post := func(body string) (*http.Response, Response) {
		t.Helper()
		res, err := http.Post(srv.URL+"/message", "application/json", bytes.NewBufferString(body))
		if err != nil {
			t.Fatal(err)
		}
		defer res.Body.Close()
		var r Response
		json.NewDecoder(res.Body).Decode(&r)
		return res, r
	}

	res, r := post(`{"editMode": true}`)
	if res.StatusCode != http.StatusOK || r.State != "armed" {
		t.Errorf("editMode: %d %+v", res.StatusCode, r)
	}
	res, _ = post(`{"type": "nope"}`)
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown type: status %d", res.StatusCode)
	}
	res, _ = post(`not json`)
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("bad JSON: status %d", res.StatusCode)
	}

	get, err := http.Get(srv.URL + "/color-scheme")
	if err != nil {
		t.Fatal(err)
	}
	defer get.Body.Close()
	var cs Response
	json.NewDecoder(get.Body).Decode(&cs)
	if cs.Scheme != "light" {
		t.Errorf("color-scheme: %+v", cs)
	}
	if got := get.Header.Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}
}

func TestRouter_Journal(t *testing.T) {
	h := newHarness(t)
	j, err := journal.New(dbopen.OpenMemory(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	h.gw.WithJournal(j)
	srv := httptest.NewServer(h.gw.Router(nil))
	defer srv.Close()

	for _, body := range []string{`{"editMode": true}`, `{"type": "nope"}`} {
		res, err := http.Post(srv.URL+"/message", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		res.Body.Close()
	}
	j.Close()

	ctx := context.Background()
	all, err := j.Query(ctx, journal.Filter{Operation: "message"})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d journal entries, want 2", len(all))
	}
	failed, _ := j.Query(ctx, journal.Filter{Status: journal.StatusError})
	if len(failed) != 1 || !strings.Contains(failed[0].Parameters, `"nope"`) {
		t.Errorf("failed = %+v", failed)
	}
	for _, e := range all {
		if e.RequestID == "" {
			t.Errorf("entry %s has no request id", e.EntryID)
		}
	}
}

func TestMCP(t *testing.T) {
	h := newHarness(t)
	impl := &mcp.Implementation{Name: "restyle-test", Version: "0.1.0"}
	srv := mcp.NewServer(impl, nil)
	h.gw.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client, err := mcp.NewClient(impl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	call := func(name string, args any) Response {
		t.Helper()
		result, err := client.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
		if err != nil {
			t.Fatalf("CallTool(%s): %v", name, err)
		}
		if result.IsError {
			t.Fatalf("CallTool(%s) tool error: %+v", name, result.Content)
		}
		var r Response
		if err := json.Unmarshal([]byte(result.Content[0].(*mcp.TextContent).Text), &r); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return r
	}

	if r := call("restyle_set_edit_mode", map[string]any{"enabled": true}); r.State != "armed" {
		t.Errorf("set_edit_mode: %+v", r)
	}
	if r := call("restyle_color_scheme", map[string]any{}); r.Scheme != "light" {
		t.Errorf("color_scheme: %+v", r)
	}

	h.store.Record("P__b", "color", "red")
	call("restyle_save_changes", map[string]any{})
	if r := call("restyle_changes", map[string]any{}); r.Changes["P__b"]["color"] != "red" {
		t.Errorf("changes: %+v", r)
	}
	if r := call("restyle_reload_changes", map[string]any{}); r.Report == nil || r.Report.Applied != 1 {
		t.Errorf("reload: %+v", r)
	}
}
