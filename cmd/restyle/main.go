// Command restyle edits the style and text of page elements and replays
// saved edits on later visits.
//
// Usage:
//
//	restyle -url https://example.com                  # edit a page (headful Chrome + terminal panel)
//	restyle -config restyle.yaml                      # edit as configured
//	restyle -replay https://example.com               # print the page with saved edits applied
//	restyle -apply page.html -origin https://example.com  # same, offline, on an HTML file
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/restyle/dom/htmldoc"
	"github.com/hazyhaar/restyle/live"
	"github.com/hazyhaar/restyle/persist"
	"github.com/hazyhaar/restyle/persist/sqlitekv"
)

type options struct {
	configPath string
	url        string
	replayURL  string
	applyFile  string
	origin     string
	dbPath     string
	listen     string
	logFile    string
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to restyle.yaml config file")
	flag.StringVar(&o.url, "url", "", "edit a single URL in a visible browser")
	flag.StringVar(&o.replayURL, "replay", "", "load URL headless, replay saved changes, print HTML")
	flag.StringVar(&o.applyFile, "apply", "", "replay saved changes into an HTML file, print HTML")
	flag.StringVar(&o.origin, "origin", "", "origin whose changes -apply uses")
	flag.StringVar(&o.dbPath, "db", "", "sqlite database holding saved changes (default restyle.db)")
	flag.StringVar(&o.listen, "listen", "", "serve the message gateway (HTTP + MCP) on this address")
	flag.StringVar(&o.logFile, "log-file", "", "write logs here instead of stderr")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// The terminal panel owns the screen in -url mode.
	if o.url != "" && o.logFile == "" {
		o.logFile = "restyle.log"
	}
	var logOut io.Writer = os.Stderr
	if o.logFile != "" {
		f, err := os.OpenFile(o.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "restyle: log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, o, os.Stdout); err != nil {
		logger.Error("restyle: fatal", "error", err)
		fmt.Fprintf(os.Stderr, "restyle: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, o options, stdout io.Writer) error {
	if o.dbPath == "" {
		o.dbPath = "restyle.db"
	}
	switch {
	case o.applyFile != "":
		return runApply(ctx, logger, o, stdout)
	case o.replayURL != "":
		return runReplay(ctx, logger, o, stdout)
	case o.url != "":
		return runEdit(ctx, logger, o)
	case o.configPath != "":
		return runConfig(ctx, logger, o)
	}
	return fmt.Errorf("usage: restyle -url <url> | -config <file> | -replay <url> | -apply <file> -origin <url>")
}

func runApply(ctx context.Context, logger *slog.Logger, o options, stdout io.Writer) error {
	if o.origin == "" {
		return fmt.Errorf("-apply needs -origin")
	}
	origin, err := sqlitekv.Origin(o.origin)
	if err != nil {
		return err
	}

	f, err := os.Open(o.applyFile)
	if err != nil {
		return fmt.Errorf("open %s: %w", o.applyFile, err)
	}
	defer f.Close()
	doc, err := htmldoc.Parse(f)
	if err != nil {
		return err
	}

	db, err := sqlitekv.Open(o.dbPath, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	rep, err := persist.New(db.Scope(origin), logger).ReplayIntoDocument(ctx, doc)
	if err != nil {
		return err
	}
	logger.Info("restyle: applied", "origin", origin, "keys", rep.Keys, "applied", rep.Applied, "skipped", len(rep.Skipped))
	return doc.Render(stdout)
}

func runReplay(ctx context.Context, logger *slog.Logger, o options, stdout io.Writer) error {
	cfg := &live.Config{
		Page:    live.PageConfig{URL: o.replayURL},
		Storage: live.StorageConfig{Backend: live.BackendSQLite, Path: o.dbPath},
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	html, rep, err := live.Replay(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	logger.Info("restyle: replayed", "url", o.replayURL, "keys", rep.Keys, "applied", rep.Applied)
	_, err = io.WriteString(stdout, html+"\n")
	return err
}

func runEdit(ctx context.Context, logger *slog.Logger, o options) error {
	cfg := &live.Config{
		Browser: live.BrowserConfig{Stealth: "headful"},
		Page:    live.PageConfig{URL: o.url},
		Storage: live.StorageConfig{Backend: live.BackendSQLite, Path: o.dbPath},
		Gateway: live.GatewayConfig{Listen: o.listen, MCP: o.listen != ""},
		Panel:   live.PanelConfig{Console: true},
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	return live.New(cfg, logger).Run(ctx)
}

func runConfig(ctx context.Context, logger *slog.Logger, o options) error {
	cfg, err := live.LoadConfigFile(o.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if o.listen != "" {
		cfg.Gateway.Listen = o.listen
	}
	return live.New(cfg, logger).Run(ctx)
}
