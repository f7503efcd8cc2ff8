package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/restyle/changes"
	"github.com/hazyhaar/restyle/dom"
	"github.com/hazyhaar/restyle/dom/htmldoc"
	"github.com/hazyhaar/restyle/panel"
	"github.com/hazyhaar/restyle/persist"
	"github.com/hazyhaar/restyle/selector"
)

const page = `<html><head></head><body>
<div class="card hero" id="">A</div>
<p id="b">B</p>
</body></html>`

// countingPanel wraps a Form and counts lifecycle calls.
type countingPanel struct {
	*panel.Form
	mounts, unmounts int
}

func (c *countingPanel) Mount(ctx context.Context, t dom.Element, b panel.Binding, onClose func()) error {
	c.mounts++
	return c.Form.Mount(ctx, t, b, onClose)
}

func (c *countingPanel) Unmount(ctx context.Context) error {
	c.unmounts++
	return c.Form.Unmount(ctx)
}

type fixture struct {
	doc    *htmldoc.Document
	m      *Machine
	kv     *persist.Memory
	store  *changes.Store
	panels []*countingPanel
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	doc, err := htmldoc.ParseString(page)
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{doc: doc, kv: persist.NewMemory(), store: changes.NewStore()}
	factory := func() panel.Panel {
		p := &countingPanel{Form: panel.NewForm(doc, nil)}
		f.panels = append(f.panels, p)
		return p
	}
	f.m = New(doc, f.store, persist.New(f.kv, nil), factory, nil)
	if err := f.m.Attach(context.Background()); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) el(t *testing.T, sel string) dom.Element {
	t.Helper()
	els, err := f.doc.QuerySelectorAll(context.Background(), sel)
	if err != nil || len(els) != 1 {
		t.Fatalf("query %q: %d elements, err %v", sel, len(els), err)
	}
	return els[0]
}

func hasAffordance(t *testing.T, el dom.Element) bool {
	t.Helper()
	a, err := el.Attrs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range strings.Fields(a.Class) {
		if c == selector.AffordanceClass {
			return true
		}
	}
	return false
}

func TestAttach_InjectsOnce(t *testing.T) {
	f := newFixture(t)
	f.m.Attach(context.Background())
	if n := strings.Count(f.doc.String(), "outline: 2px solid blue"); n != 1 {
		t.Errorf("affordance rule injected %d times", n)
	}
}

func TestSelectAThenB(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.m.EnableMode(ctx)

	a, b := f.el(t, "div.card"), f.el(t, "p")
	if err := f.m.SelectTarget(ctx, a); err != nil {
		t.Fatal(err)
	}
	if !hasAffordance(t, a) || f.m.State() != Editing {
		t.Fatalf("after select A: affordance=%v state=%v", hasAffordance(t, a), f.m.State())
	}
	if err := f.m.SelectTarget(ctx, b); err != nil {
		t.Fatal(err)
	}

	if hasAffordance(t, a) {
		t.Error("A kept the affordance")
	}
	if !hasAffordance(t, b) {
		t.Error("B lacks the affordance")
	}
	if f.panels[0].mounts != 1 || f.panels[0].unmounts != 1 {
		t.Errorf("panel A: %d mounts, %d unmounts, want 1/1", f.panels[0].mounts, f.panels[0].unmounts)
	}
	if f.panels[1].mounts != 1 || f.panels[1].unmounts != 0 {
		t.Errorf("panel B: %d mounts, %d unmounts, want 1/0", f.panels[1].mounts, f.panels[1].unmounts)
	}
	if got := f.m.Session().Key; got != "P__b" {
		t.Errorf("session key = %q", got)
	}
	if roots, _ := f.doc.QuerySelectorAll(ctx, "#"+panel.RootID); len(roots) != 1 {
		t.Errorf("%d panel roots mounted, want 1", len(roots))
	}
}

func TestDisableMode_NoTarget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.m.DisableMode(ctx); err != nil {
		t.Fatalf("disable while idle: %v", err)
	}
	f.m.EnableMode(ctx)
	if err := f.m.DisableMode(ctx); err != nil {
		t.Fatalf("disable while armed: %v", err)
	}
	if f.m.State() != Idle {
		t.Errorf("state = %v, want idle", f.m.State())
	}
}

func TestDisableMode_WhileEditing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.m.EnableMode(ctx)
	a := f.el(t, "div.card")
	f.m.SelectTarget(ctx, a)

	if err := f.m.DisableMode(ctx); err != nil {
		t.Fatal(err)
	}
	if f.m.State() != Idle || hasAffordance(t, a) {
		t.Errorf("state=%v affordance=%v", f.m.State(), hasAffordance(t, a))
	}
	if f.panels[0].unmounts != 1 {
		t.Errorf("unmounts = %d", f.panels[0].unmounts)
	}
	if f.doc.ElementByID(panel.RootID) != nil {
		t.Error("panel root left behind")
	}
}

func TestSelect_IgnoredWhenModeOff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.el(t, "div.card")
	if err := f.m.SelectTarget(ctx, a); err != nil {
		t.Fatal(err)
	}
	if f.m.State() != Idle || hasAffordance(t, a) || len(f.panels) != 0 {
		t.Error("selection happened with edit mode off")
	}
}

func TestSelect_InsidePanelIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.m.EnableMode(ctx)
	a := f.el(t, "div.card")
	f.m.SelectTarget(ctx, a)

	root := f.doc.ElementByID(panel.RootID)
	if root == nil {
		t.Fatal("no panel root")
	}
	if err := f.m.SelectTarget(ctx, root); err != nil {
		t.Fatal(err)
	}
	if f.m.Session().Key != "DIV_card hero_" || f.panels[0].unmounts != 0 || len(f.panels) != 1 {
		t.Error("clicking the panel changed the selection")
	}
}

func TestPanelCloseReturnsToArmed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.m.EnableMode(ctx)
	a := f.el(t, "div.card")
	f.m.SelectTarget(ctx, a)

	f.panels[0].Close(ctx)

	if f.m.State() != ModeArmed {
		t.Errorf("state = %v, want armed", f.m.State())
	}
	if hasAffordance(t, a) {
		t.Error("affordance survived close")
	}
	if f.panels[0].unmounts != 1 {
		t.Errorf("unmounts = %d, want 1", f.panels[0].unmounts)
	}
}

func TestTextInputSaves(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.m.EnableMode(ctx)
	p := f.el(t, "p")
	f.m.SelectTarget(ctx, p)

	p.SetInnerText(ctx, "typed")
	if err := f.m.TextInput(ctx, p); err != nil {
		t.Fatal(err)
	}

	cs, found, err := persist.New(f.kv, nil).Load(ctx)
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if cs["P__b"][changes.InnerText] != "typed" {
		t.Errorf("saved = %v", cs)
	}

	// Input on a non-target is ignored.
	if err := f.m.TextInput(ctx, f.el(t, "div.card")); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.store.Tracked("DIV_card hero_")[changes.InnerText]; ok {
		t.Error("recorded text for a non-target")
	}
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.m.EnableMode(ctx)
	f.m.SelectTarget(ctx, f.el(t, "div.card"))

	if err := f.panels[0].Set(ctx, "color", "#112233"); err != nil {
		t.Fatal(err)
	}
	if err := f.m.Save(ctx); err != nil {
		t.Fatal(err)
	}

	fresh, _ := htmldoc.ParseString(`<html><body><div class="card hero">again</div></body></html>`)
	layer := persist.New(f.kv, nil)
	if _, found, err := layer.Load(ctx); err != nil || !found {
		t.Fatalf("load: %v %v", found, err)
	}
	if _, err := layer.ReplayIntoDocument(ctx, fresh); err != nil {
		t.Fatal(err)
	}

	els, _ := fresh.QuerySelectorAll(ctx, "div.card.hero")
	got, _ := els[0].ComputedStyle(ctx, []string{"color"})
	if got["color"] != "#112233" {
		t.Errorf("color = %q, want #112233", got["color"])
	}
	if hasAffordance(t, els[0]) {
		t.Error("affordance leaked into replay")
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{Idle: "idle", ModeArmed: "armed", Editing: "editing"} {
		if s.String() != want {
			t.Errorf("%d.String() = %q", int(s), s.String())
		}
	}
}

// gatedElement blocks in Closest until release is closed, holding the
// machine's lock for the duration of a SelectTarget.
type gatedElement struct {
	dom.Element
	entered chan struct{}
	release chan struct{}
}

func (g *gatedElement) Closest(ctx context.Context, sel string) (bool, error) {
	close(g.entered)
	<-g.release
	return g.Element.Closest(ctx, sel)
}

func TestPanelClose_DuringNewSelection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.m.EnableMode(ctx)
	f.m.SelectTarget(ctx, f.el(t, "div.card"))

	b := &gatedElement{Element: f.el(t, "p"), entered: make(chan struct{}), release: make(chan struct{})}
	selected := make(chan error, 1)
	go func() { selected <- f.m.SelectTarget(ctx, b) }()
	<-b.entered

	closed := make(chan struct{})
	go func() {
		f.panels[0].Close(ctx)
		close(closed)
	}()
	time.Sleep(50 * time.Millisecond)
	close(b.release)

	if err := <-selected; err != nil {
		t.Fatal(err)
	}
	<-closed

	if f.m.State() != Editing || f.m.Session().Key != "P__b" {
		t.Errorf("state=%v key=%q, want editing on P__b", f.m.State(), f.m.Session().Key)
	}
	if len(f.panels) != 2 || !f.panels[1].Mounted() {
		t.Error("new panel not mounted")
	}
}

type attrsErrElement struct{ dom.Element }

func (attrsErrElement) Attrs(context.Context) (dom.Attrs, error) {
	return dom.Attrs{}, errors.New("detached")
}

func TestTextInput_DeriveErrorWrapped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.m.EnableMode(ctx)
	f.m.SelectTarget(ctx, f.el(t, "p"))

	err := f.m.TextInput(ctx, attrsErrElement{f.el(t, "p")})
	if err == nil || !strings.HasPrefix(err.Error(), "session: text input:") {
		t.Errorf("err = %v, want session: text input prefix", err)
	}
}

func TestReset_KeepsModeAndReattaches(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.m.EnableMode(ctx)
	f.m.SelectTarget(ctx, f.el(t, "div.card"))

	f.m.Reset(ctx)
	if f.m.State() != ModeArmed || f.m.Session().Target != nil {
		t.Errorf("state=%v target=%v, want armed without target", f.m.State(), f.m.Session().Target)
	}
	if f.panels[0].unmounts != 1 || f.doc.ElementByID(panel.RootID) != nil {
		t.Error("panel still mounted after reset")
	}

	if err := f.m.Attach(ctx); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(f.doc.String(), "outline: 2px solid blue"); n != 2 {
		t.Errorf("affordance rule injected %d times, want 2 (once per document)", n)
	}
}
