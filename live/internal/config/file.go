// Package config handles live-editor configuration from YAML files.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendLocal  = "local"
)

// Config is the top-level live-editor configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Page    PageConfig    `yaml:"page"`
	Storage StorageConfig `yaml:"storage"`
	Gateway GatewayConfig `yaml:"gateway"`
	Panel   PanelConfig   `yaml:"panel"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Remote           string   `yaml:"remote"`
	Stealth          string   `yaml:"stealth"` // headless | headful
	ResourceBlocking []string `yaml:"resource_blocking"`
	Xvfb             bool     `yaml:"xvfb"`
	XvfbDisplay      string   `yaml:"xvfb_display"`
	MemoryLimit      int64    `yaml:"memory_limit"`
}

// PageConfig names the page to edit.
type PageConfig struct {
	URL string `yaml:"url"`
}

// StorageConfig selects where changes persist.
type StorageConfig struct {
	Backend string `yaml:"backend"` // sqlite | local
	Path    string `yaml:"path"`    // sqlite database file
}

// GatewayConfig exposes the message gateway.
type GatewayConfig struct {
	Listen string `yaml:"listen"` // empty = no HTTP server
	MCP    bool   `yaml:"mcp"`
}

// PanelConfig selects the edit surface.
type PanelConfig struct {
	Console bool `yaml:"console"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendSQLite
	}
	if c.Storage.Backend == BackendSQLite && c.Storage.Path == "" {
		c.Storage.Path = "restyle.db"
	}
}

// Validate rejects configurations the editor cannot run.
func (c *Config) Validate() error {
	if c.Page.URL == "" {
		return fmt.Errorf("config: page.url is required")
	}
	switch c.Storage.Backend {
	case BackendSQLite, BackendLocal:
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Browser.Stealth {
	case "headless", "headful":
	default:
		return fmt.Errorf("config: unknown browser.stealth %q", c.Browser.Stealth)
	}
	return nil
}
