// CLAUDE:SUMMARY Configuration structs (fetch, rules, tiers) and YAML loader for the feedcanon service.
package keeper

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/feedcanon/compare"
	"github.com/hazyhaar/feedcanon/rules"
	"github.com/hazyhaar/feedcanon/shield"
	"github.com/hazyhaar/feedcanon/urlnorm"
)

// Feed adapters selectable in Config.Adapter.
const (
	AdapterGofeed = "gofeed"
	AdapterXML    = "xml"
)

// Config holds all feedcanon service configuration.
type Config struct {
	DBPath string `yaml:"db_path"`
	Listen string `yaml:"listen"`
	// Timeout bounds one resolution, all fetches included.
	Timeout time.Duration `yaml:"timeout"`

	Fetch FetchConfig `yaml:"fetch"`
	// API limits inbound requests per client IP. Rate 0 disables it.
	API shield.RateConfig `yaml:"api"`

	Adapter  string `yaml:"adapter"` // gofeed | xml
	Hash     string `yaml:"hash"`    // xxhash | sha256 | blake2b
	Prefetch int    `yaml:"prefetch"`

	// Tiers replaces urlnorm.DefaultTiers when set.
	Tiers []urlnorm.Profile `yaml:"tiers"`
	// StripParams replaces urlnorm.DefaultTrackingParams when set.
	StripParams []string `yaml:"strip_params"`
	// Platforms are host alias rules. Nil means FeedBurner only; an
	// explicit empty list disables platform rewrites.
	Platforms []rules.HostAlias `yaml:"platforms"`
	// Probes are probe rule names. Nil means ["wordpress"].
	Probes []string `yaml:"probes"`
}

// FetchConfig controls the outbound HTTP client.
type FetchConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxBytes     int64         `yaml:"max_bytes"`
	UserAgent    string        `yaml:"user_agent"`
	Rate         float64       `yaml:"rate"` // requests per second, 0 = unlimited
	Burst        int           `yaml:"burst"`
	MaxRedirects int           `yaml:"max_redirects"`
	// AllowPrivate disables the private-address guard (local testing only).
	AllowPrivate bool `yaml:"allow_private"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "feedcanon.db"
	}
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 20 * time.Second
	}
	if c.Adapter == "" {
		c.Adapter = AdapterGofeed
	}
	if c.Hash == "" {
		c.Hash = compare.XXHash.Name()
	}
	if c.Prefetch <= 0 {
		c.Prefetch = 1
	}
	if c.Platforms == nil {
		c.Platforms = []rules.HostAlias{rules.FeedBurner()}
	}
	if c.Probes == nil {
		c.Probes = []string{"wordpress"}
	}
}

func (c *Config) validate() error {
	switch c.Adapter {
	case AdapterGofeed, AdapterXML:
	default:
		return fmt.Errorf("keeper: unknown adapter %q", c.Adapter)
	}
	if _, err := compare.HasherByName(c.Hash); err != nil {
		return fmt.Errorf("keeper: %w", err)
	}
	for _, name := range c.Probes {
		if _, err := rules.ProbeByName(name); err != nil {
			return fmt.Errorf("keeper: %w", err)
		}
	}
	for i, p := range c.Platforms {
		if p.Canonical == "" || len(p.Hosts) == 0 {
			return fmt.Errorf("keeper: platform %d (%s): hosts and canonical are required", i, p.Name)
		}
	}
	return nil
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
