package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"

	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"
	"media-catalog/internal/workers"
)

const defaultPreviewQuality = 80

// Config holds the full service configuration loaded from the TOML file.
type Config struct {
	// Database is the path to the SQLite database file.
	Database string `toml:"database"`
	// Paths are the base paths to index. At least one is required.
	Paths []string `toml:"paths"`
	// Threads is the scan worker count. Zero means auto.
	Threads int `toml:"threads"`
	// MaxPassBytes is a soft cap on total bytes processed in one pass.
	// Zero disables the cap. Exceeding it logs a warning; the pass continues.
	MaxPassBytes int64 `toml:"max_pass_bytes"`
	// OpsAddr is the listen address for the metrics/health endpoint.
	// Empty disables the listener.
	OpsAddr string `toml:"ops_addr"`

	MediaTypes []MediaType `toml:"mediatype"`
	Previews   Previews    `toml:"previews"`
}

// MediaType is one configured extension-to-mimetype mapping.
type MediaType struct {
	Extension string `toml:"extension"`
	Mimetype  string `toml:"mimetype"`
	Kind      string `toml:"kind"`
}

// Previews configures preview generation.
type Previews struct {
	Quality   int        `toml:"quality"`
	Templates []Template `toml:"template"`
}

// Template is one preview size template.
type Template struct {
	Name   string `toml:"name"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

// Load reads and validates the config file. Missing or malformed
// configuration is fatal at startup; callers should not continue on error.
func Load(path string) (*Config, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		logging.Warn("Config %s has unknown keys: %v", path, undecoded)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Paths) == 0 {
		return fmt.Errorf("config declares no base paths")
	}
	for i, p := range c.Paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("base path %q: %w", p, err)
		}
		c.Paths[i] = abs
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			logging.Warn("Base path %s doesn't exist or isn't a directory", abs)
		}
	}
	if c.Database == "" {
		return fmt.Errorf("config declares no database path")
	}
	for _, t := range c.Previews.Templates {
		if t.Name == "" || t.Width <= 0 || t.Height <= 0 {
			return fmt.Errorf("invalid preview template %+v", t)
		}
	}
	if c.Previews.Quality < 0 || c.Previews.Quality > 100 {
		return fmt.Errorf("preview quality %d out of range", c.Previews.Quality)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Threads <= 0 {
		c.Threads = workers.Default()
	}
	if c.Previews.Quality == 0 {
		c.Previews.Quality = defaultPreviewQuality
	}
	if len(c.Previews.Templates) == 0 {
		c.Previews.Templates = []Template{
			{Name: "large", Width: 800, Height: 800},
			{Name: "medium", Width: 400, Height: 400},
			{Name: "small", Width: 200, Height: 200},
		}
	}
	// Largest template first so the biggest fitting rendition is evaluated
	// before the smaller ones.
	sort.SliceStable(c.Previews.Templates, func(i, j int) bool {
		return c.Previews.Templates[i].Width*c.Previews.Templates[i].Height >
			c.Previews.Templates[j].Width*c.Previews.Templates[j].Height
	})
}

// Rules builds the media type rule set, falling back to the default table
// when the config file declares none.
func (c *Config) Rules() (*mediatypes.Rules, error) {
	if len(c.MediaTypes) == 0 {
		return mediatypes.NewRules(mediatypes.Defaults()), nil
	}

	rules := make([]mediatypes.Rule, 0, len(c.MediaTypes))
	for _, mt := range c.MediaTypes {
		rule, err := mediatypes.ParseRule(mt.Extension, mt.Mimetype, mediatypes.Kind(mt.Kind))
		if err != nil {
			return nil, fmt.Errorf("invalid mediatype entry: %w", err)
		}
		rules = append(rules, rule)
	}
	return mediatypes.NewRules(rules), nil
}
