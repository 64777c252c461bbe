// Package config loads canary's configuration from a YAML file and its
// page list from an optional SQLite registry.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/canary/brand"
)

// ErrNoURL is returned for a page without a URL.
var ErrNoURL = errors.New("config: page without url")

// Config is the top-level canary configuration.
type Config struct {
	Brand    brand.Config   `yaml:"brand"`
	Browser  BrowserConfig  `yaml:"browser"`
	Debounce DebounceConfig `yaml:"debounce"`
	Pages    []PageConfig   `yaml:"pages"`
	Sinks    []SinkConfig   `yaml:"sinks"`
	Admin    AdminConfig    `yaml:"admin"`
	Registry RegistryConfig `yaml:"registry"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote          string        `yaml:"remote"`
	Mode            string        `yaml:"mode"` // headless | headful
	NoStealth       bool          `yaml:"no_stealth"`
	MemoryLimit     int64         `yaml:"memory_limit"`
	RecycleInterval time.Duration `yaml:"recycle_interval"`
	Block           []string      `yaml:"block"` // fonts | media | stylesheets | images
	XvfbDisplay     string        `yaml:"xvfb_display"`
}

// PageConfig is a page to keep branded.
type PageConfig struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
}

// DebounceConfig controls how DOM events are grouped into batches.
type DebounceConfig struct {
	Window    time.Duration `yaml:"window"`
	MaxBuffer int           `yaml:"max_buffer"`
}

// SinkConfig defines a cycle report backend.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook | sqlite
	URL  string `yaml:"url"`  // webhook
	Path string `yaml:"path"` // sqlite; defaults to the registry path, then canary.db
}

// AdminConfig controls the admin HTTP API. Empty Listen disables it.
// MCP also serves the page tools over streamable HTTP at /mcp.
type AdminConfig struct {
	Listen string `yaml:"listen"`
	MCP    bool   `yaml:"mcp"`
}

// RegistryConfig points at the SQLite page registry. Empty Path disables
// it.
type RegistryConfig struct {
	Path string        `yaml:"path"`
	Poll time.Duration `yaml:"poll"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and validates pages.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration of an empty file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Browser.Mode == "" {
		c.Browser.Mode = "headless"
	}
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Debounce.Window <= 0 {
		c.Debounce.Window = 100 * time.Millisecond
	}
	if c.Debounce.MaxBuffer <= 0 {
		c.Debounce.MaxBuffer = 1000
	}
	if len(c.Sinks) == 0 {
		c.Sinks = []SinkConfig{{Type: "stdout"}}
	}
	if c.Registry.Poll <= 0 {
		c.Registry.Poll = time.Second
	}
	for i := range c.Pages {
		if c.Pages[i].ID == "" {
			c.Pages[i].ID = PageID(c.Pages[i].URL)
		}
	}
}

// Validate checks pages and sinks.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Pages))
	for _, p := range c.Pages {
		if p.URL == "" {
			return fmt.Errorf("config: page %q: %w", p.ID, ErrNoURL)
		}
		if seen[p.ID] {
			return fmt.Errorf("config: duplicate page id %q", p.ID)
		}
		seen[p.ID] = true
	}
	for _, s := range c.Sinks {
		switch s.Type {
		case "stdout", "sqlite":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: webhook sink without url")
			}
		default:
			return fmt.Errorf("config: unknown sink type %q", s.Type)
		}
	}
	if c.Browser.Mode != "headless" && c.Browser.Mode != "headful" {
		return fmt.Errorf("config: unknown browser mode %q", c.Browser.Mode)
	}
	if c.Admin.MCP && c.Admin.Listen == "" {
		return fmt.Errorf("config: admin.mcp needs admin.listen")
	}
	return nil
}

// PageID derives a page ID from its URL: the host followed by the path
// segments, joined with "-". A string that does not parse as an absolute
// URL is returned unchanged.
func PageID(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	id := u.Host
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			id += "-" + seg
		}
	}
	return id
}
