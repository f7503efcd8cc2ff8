// Package live runs an edit session against a real page in Chrome.
//
// An injected script reports click and input events through a CDP
// Runtime binding, and each new document in the tab adds a load event.
// One goroutine drains them in arrival order and drives
// the selection machine, so every state transition happens on a single
// logical event loop, as it would inside the page.
package live

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/restyle/changes"
	"github.com/hazyhaar/restyle/dom"
	"github.com/hazyhaar/restyle/dom/roddoc"
	"github.com/hazyhaar/restyle/gateway"
	"github.com/hazyhaar/restyle/live/internal/browser"
	"github.com/hazyhaar/restyle/panel"
	"github.com/hazyhaar/restyle/panel/tui"
	"github.com/hazyhaar/restyle/persist"
	"github.com/hazyhaar/restyle/session"
)

//go:embed editor.js
var editorJS string

const bindingName = "__restyle_binding"

// ModeScope is the sqlite scope holding the edit-mode flag, shared by
// every origin.
const ModeScope = "extension"

// Editor is one live edit session.
type Editor struct {
	cfg    *Config
	logger *slog.Logger

	mgr     *browser.Manager
	tab     *browser.Tab
	doc     *roddoc.Document
	storage *storage

	store   *changes.Store
	machine *session.Machine
	host    *panel.Host
	gw      *gateway.Gateway

	events chan event
}

// New creates an Editor. cfg must have passed Validate.
func New(cfg *Config, logger *slog.Logger) *Editor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Editor{cfg: cfg, logger: logger, events: make(chan event, 64)}
}

// Run opens the page, replays saved changes and serves events until ctx
// ends or the console quits.
func (e *Editor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := e.open(ctx); err != nil {
		e.close()
		return err
	}
	defer e.close()

	if _, err := e.gw.Start(ctx); err != nil {
		return fmt.Errorf("live: %w", err)
	}
	if err := e.installBinding(ctx); err != nil {
		return fmt.Errorf("live: %w", err)
	}

	go e.listenPage(ctx)
	d := &dispatcher{
		resolve: func(ctx context.Context, path string) (dom.Element, error) { return e.doc.ElementAt(ctx, path) },
		load:    e.reload,
		machine: e.machine,
		logger:  e.logger,
	}
	go d.loop(ctx, e.events)

	if e.cfg.Gateway.Listen != "" {
		served := make(chan struct{})
		go func() {
			defer close(served)
			e.serve(ctx)
		}()
		// Runs before e.close: storage outlives in-flight requests.
		defer func() {
			cancel()
			<-served
		}()
	}

	e.logger.Info("live: editing", "url", e.tab.PageURL, "storage", e.cfg.Storage.Backend)
	if e.cfg.Panel.Console {
		err := tui.New(e.host, e.machine.Save, e.logger).Run(ctx)
		cancel()
		return err
	}
	<-ctx.Done()
	return nil
}

func (e *Editor) open(ctx context.Context) error {
	tab, mgr, err := openPage(ctx, e.cfg, e.logger)
	e.mgr = mgr
	if err != nil {
		return err
	}
	e.tab = tab
	e.doc = roddoc.New(tab.Page)

	st, err := openStorage(e.cfg, tab, e.logger)
	if err != nil {
		return err
	}
	e.storage = st

	layer := persist.New(st.changes, e.logger)
	e.store = changes.NewStore()
	e.host = panel.NewHost(e.doc, e.logger)
	e.machine = session.New(e.doc, e.store, layer, e.host.New, e.logger)
	e.gw = gateway.New(e.doc, e.machine, e.store, layer, persist.NewModeStore(st.mode), e.logger).WithPanels(e.host)
	if st.journal != nil {
		e.gw.WithJournal(st.journal)
	}
	return nil
}

func (e *Editor) close() {
	if e.tab != nil {
		e.tab.Close()
	}
	if e.mgr != nil {
		e.mgr.Close()
	}
	if e.storage != nil {
		e.storage.Close()
	}
}

// Gateway returns the session's gateway, nil before Run has opened the page.
func (e *Editor) Gateway() *gateway.Gateway { return e.gw }

func (e *Editor) installBinding(ctx context.Context) error {
	page := e.tab.Page.Context(ctx)
	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		e.logger.Warn("live: addBinding failed (may already exist)", "error", err)
	}
	if _, err := page.EvalOnNewDocument("(" + editorJS + ")()"); err != nil {
		e.logger.Warn("live: script not registered for reloads", "error", err)
	}
	if _, err := page.Eval(editorJS); err != nil {
		return fmt.Errorf("inject editor.js: %w", err)
	}
	return nil
}

// listenPage receives calls from editor.js via Runtime.bindingCalled and
// queues a load event each time a new document is ready.
func (e *Editor) listenPage(ctx context.Context) {
	queue := func(ev event) {
		select {
		case e.events <- ev:
		case <-ctx.Done():
		}
	}
	e.tab.Page.Context(ctx).EachEvent(
		func(ev *proto.RuntimeBindingCalled) {
			if ev.Name != bindingName {
				return
			}
			decoded, err := decodeEvent(ev.Payload)
			if err != nil {
				e.logger.Warn("live: parse binding payload", "error", err)
				return
			}
			queue(decoded)
		},
		func(*proto.PageDomContentEventFired) {
			queue(event{Type: eventLoad})
		},
	)()
}

// reload runs the page-load sequence again for a new document: the old
// selection is dropped, storage follows the new origin, the affordance
// rule is injected and saved changes are replayed.
func (e *Editor) reload(ctx context.Context) error {
	info, err := e.tab.Page.Context(ctx).Info()
	if err != nil {
		return fmt.Errorf("live: page info: %w", err)
	}
	e.machine.Reset(ctx)
	if err := e.storage.retarget(info.URL); err != nil {
		e.logger.Warn("live: storage not retargeted", "url", info.URL, "error", err)
	}
	e.tab.PageURL = info.URL

	rep, err := e.gw.Start(ctx)
	if err != nil {
		return err
	}
	e.logger.Info("live: document reloaded", "url", info.URL, "applied", rep.Applied)
	return nil
}

func (e *Editor) serve(ctx context.Context) {
	var srv *mcp.Server
	if e.cfg.Gateway.MCP {
		srv = mcp.NewServer(&mcp.Implementation{Name: "restyle", Version: "0.1.0"}, nil)
		e.gw.RegisterMCP(srv)
	}
	httpSrv := &http.Server{
		Addr:              e.cfg.Gateway.Listen,
		Handler:           e.gw.Router(srv),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	e.logger.Info("live: gateway listening", "addr", httpSrv.Addr, "mcp", srv != nil)
	go func() { errc <- httpSrv.ListenAndServe() }()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("live: gateway stopped", "error", err)
		}
		return
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		e.logger.Warn("live: gateway shutdown", "error", err)
	}
	<-errc
}

// Replay loads the page headless, replays its saved changes and returns the
// resulting HTML.
func Replay(ctx context.Context, cfg *Config, logger *slog.Logger) (string, changes.Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tab, mgr, err := openPage(ctx, cfg, logger)
	if mgr != nil {
		defer mgr.Close()
	}
	if err != nil {
		return "", changes.Report{}, err
	}
	defer tab.Close()

	st, err := openStorage(cfg, tab, logger)
	if err != nil {
		return "", changes.Report{}, err
	}
	defer st.Close()

	doc := roddoc.New(tab.Page)
	rep, err := persist.New(st.changes, logger).ReplayIntoDocument(ctx, doc)
	if err != nil {
		logger.Warn("live: replay without prior state", "error", err)
	}
	html, err := doc.HTML(ctx)
	if err != nil {
		return "", rep, err
	}
	return html, rep, nil
}

func openPage(ctx context.Context, cfg *Config, logger *slog.Logger) (*browser.Tab, *browser.Manager, error) {
	level, err := browser.ParseStealth(cfg.Browser.Stealth)
	if err != nil {
		return nil, nil, err
	}
	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		MemoryLimit:      cfg.Browser.MemoryLimit,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Stealth:          level,
		Xvfb:             cfg.Browser.Xvfb,
		XvfbDisplay:      cfg.Browser.XvfbDisplay,
		Logger:           logger,
	})
	if _, err := mgr.Start(ctx); err != nil {
		return nil, mgr, err
	}
	tab, err := browser.OpenTab(ctx, mgr, cfg.Page.URL)
	if err != nil {
		return nil, mgr, err
	}
	return tab, mgr, nil
}
