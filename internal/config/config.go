// Package config handles rosterwatch configuration from YAML files with
// environment overrides applied at the CLI edge.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level rosterwatch configuration.
type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Walk    WalkConfig    `yaml:"walk"`
	Browser BrowserConfig `yaml:"browser"`
	Season  SeasonConfig  `yaml:"season"`
	Store   StoreConfig   `yaml:"store"`
	Server  ServerConfig  `yaml:"server"`
}

// SourceConfig identifies the listing to harvest.
type SourceConfig struct {
	// URL of the paginated trends listing.
	URL string `yaml:"url"`

	// ContentSelector is the container whose markup holds the data table.
	ContentSelector string `yaml:"content_selector"`

	// ReadyTimeout bounds the initial content-ready wait. A timeout here
	// is fatal for the run: no data has been collected yet.
	ReadyTimeout time.Duration `yaml:"ready_timeout"`

	// SettleDelay is the pause after the initial load and after each page
	// activation, covering render latency of the listing script.
	SettleDelay time.Duration `yaml:"settle_delay"`
}

// WalkConfig tunes the pagination state machine.
type WalkConfig struct {
	// MaxPages is the hard traversal cap. Reaching it terminates the walk
	// successfully with reason "bounded".
	MaxPages int `yaml:"max_pages"`

	// EmptyPageLimit ends the walk after this many consecutive zero-row
	// pages. 0 disables the check; unset defaults to 3.
	EmptyPageLimit *int `yaml:"empty_page_limit"`

	// NextTimeout bounds the search for a next-page control.
	NextTimeout time.Duration `yaml:"next_timeout"`

	// DistinguishTimeout reports a next-page wait timeout as
	// "completed_timeout" instead of folding it into "completed".
	DistinguishTimeout bool `yaml:"distinguish_timeout"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	// Remote is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via the rod launcher.
	Remote string `yaml:"remote"`

	// Stealth selects the automation mode: headless | headful.
	Stealth string `yaml:"stealth"`
}

// SeasonConfig anchors week resolution.
type SeasonConfig struct {
	// Anchor is the first day of week 1, formatted 2006-01-02.
	Anchor string `yaml:"anchor"`

	// Weeks is the number of weeks in a season.
	Weeks int `yaml:"weeks"`
}

// StoreConfig controls persistence.
type StoreConfig struct {
	// Path of the SQLite database. Ignored when Enabled is false.
	Path string `yaml:"path"`

	// BatchSize bounds one write operation.
	BatchSize int `yaml:"batch_size"`

	// Enabled false degrades runs to scrape-only mode.
	Enabled *bool `yaml:"enabled"`
}

// ServerConfig configures the status/trigger HTTP server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoadFile reads a YAML configuration file and applies defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied and no source
// URL. Used by tests and as the base for flag-only invocations.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values in place.
func (c *Config) ApplyDefaults() {
	if c.Source.ContentSelector == "" {
		c.Source.ContentSelector = "#bd"
	}
	if c.Source.ReadyTimeout <= 0 {
		c.Source.ReadyTimeout = 30 * time.Second
	}
	if c.Source.SettleDelay <= 0 {
		c.Source.SettleDelay = 5 * time.Second
	}
	if c.Walk.MaxPages <= 0 {
		c.Walk.MaxPages = 50
	}
	if c.Walk.EmptyPageLimit == nil {
		n := 3
		c.Walk.EmptyPageLimit = &n
	}
	if c.Walk.NextTimeout <= 0 {
		c.Walk.NextTimeout = 10 * time.Second
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Season.Weeks <= 0 {
		c.Season.Weeks = 18
	}
	if c.Store.Path == "" {
		c.Store.Path = "data/roster.db"
	}
	if c.Store.BatchSize <= 0 {
		c.Store.BatchSize = 100
	}
	if c.Store.Enabled == nil {
		t := true
		c.Store.Enabled = &t
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8086"
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Season.Anchor != "" {
		if _, err := time.Parse("2006-01-02", c.Season.Anchor); err != nil {
			return fmt.Errorf("config: season.anchor %q: %w", c.Season.Anchor, err)
		}
	}
	return nil
}

// AnchorDate parses the season anchor. Zero time when unset.
func (c *Config) AnchorDate() time.Time {
	if c.Season.Anchor == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", c.Season.Anchor)
	if err != nil {
		return time.Time{}
	}
	return t
}

// StoreEnabled reports whether persistence is on.
func (c *Config) StoreEnabled() bool {
	return c.Store.Enabled == nil || *c.Store.Enabled
}

// EmptyPageLimit returns the consecutive-empty-page cutoff, 0 = disabled.
func (c *Config) EmptyPageLimit() int {
	if c.Walk.EmptyPageLimit == nil {
		return 3
	}
	return *c.Walk.EmptyPageLimit
}
