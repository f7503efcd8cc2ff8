// Package browser manages the Chrome process behind a live edit session:
// launch (or connect to a remote instance), optional Xvfb display, heap
// watch, shutdown.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// StealthLevel controls how the browser is driven.
type StealthLevel int

const (
	LevelHeadless StealthLevel = 1 // headless + stealth patches
	LevelHeadful  StealthLevel = 2 // visible window, on DISPLAY or Xvfb
)

// ParseStealth maps the config strings "headless" and "headful".
func ParseStealth(s string) (StealthLevel, error) {
	switch s {
	case "", "headless":
		return LevelHeadless, nil
	case "headful":
		return LevelHeadful, nil
	default:
		return 0, fmt.Errorf("browser: unknown stealth %q", s)
	}
}

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// MemoryLimit in bytes. Exceeding it is logged. 0 disables the watch.
	MemoryLimit int64

	// ResourceBlocking lists resource types to block (images, fonts, media).
	ResourceBlocking []string

	Stealth StealthLevel

	// Xvfb starts a virtual display on XvfbDisplay for headful mode.
	// Without it a headful browser opens on the caller's DISPLAY.
	Xvfb        bool
	XvfbDisplay string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Stealth == 0 {
		c.Stealth = LevelHeadless
	}
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns one Chrome.
type Manager struct {
	cfg     Config
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	xvfb    *exec.Cmd
	closed  bool
}

// NewManager creates a Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches Chrome (or connects to the remote instance) and starts
// the heap watch.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("browser: manager is closed")
	}
	if m.browser != nil {
		return m.browser, nil
	}

	b, err := m.launch()
	if err != nil {
		m.cleanup()
		return nil, err
	}
	m.browser = b

	if m.cfg.MemoryLimit > 0 {
		go m.monitorLoop(ctx)
	}
	return b, nil
}

// Browser returns the current browser handle, or nil before Start.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Close shuts down Chrome and Xvfb.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.cleanup()
}

func (m *Manager) launch() (*rod.Browser, error) {
	log := m.cfg.Logger

	if m.cfg.Stealth == LevelHeadful && m.cfg.Xvfb {
		if err := m.startXvfb(); err != nil {
			return nil, fmt.Errorf("browser: xvfb: %w", err)
		}
	}

	var wsURL string
	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New()
		if m.cfg.Stealth == LevelHeadful {
			l = l.Headless(false)
			if m.cfg.Xvfb {
				l = l.Env(append(os.Environ(), "DISPLAY="+m.cfg.XvfbDisplay)...)
			}
		} else {
			l = l.Headless(true)
		}
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "stealth", m.cfg.Stealth)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	return b, nil
}

func (m *Manager) cleanup() error {
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	m.stopXvfb()
	return nil
}

// monitorLoop logs when the JS heap crosses MemoryLimit. The page is never
// recycled under the user: a restart would drop unsaved edits.
func (m *Manager) monitorLoop(ctx context.Context) {
	log := m.cfg.Logger
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	over := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b := m.Browser()
			if b == nil {
				return
			}
			used, err := jsHeapUsage(b)
			if err != nil {
				log.Debug("browser: heap check failed", "error", err)
				continue
			}
			if used > m.cfg.MemoryLimit && !over {
				log.Warn("browser: memory limit exceeded", "used", used, "limit", m.cfg.MemoryLimit)
			}
			over = used > m.cfg.MemoryLimit
		}
	}
}

func jsHeapUsage(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil || len(pages) == 0 {
		return 0, fmt.Errorf("no pages for heap check")
	}
	res, err := pages[0].Eval(`() => performance.memory ? performance.memory.usedJSHeapSize : 0`)
	if err != nil {
		return 0, err
	}
	return int64(res.Value.Int()), nil
}
