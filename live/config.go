package live

import (
	"github.com/hazyhaar/restyle/live/internal/config"
)

// Config is the live-editor configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome.
type BrowserConfig = config.BrowserConfig

// PageConfig names the page to edit.
type PageConfig = config.PageConfig

// StorageConfig selects where changes persist.
type StorageConfig = config.StorageConfig

// GatewayConfig exposes the message gateway.
type GatewayConfig = config.GatewayConfig

// PanelConfig selects the edit surface.
type PanelConfig = config.PanelConfig

// Storage backends.
const (
	BackendSQLite = config.BackendSQLite
	BackendLocal  = config.BackendLocal
)

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}
