package keeper

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedcanon.yaml")
	yml := `
db_path: /var/lib/feedcanon/registry.db
listen: ":9090"
timeout: 45s
fetch:
  timeout: 5s
  max_bytes: 1048576
  rate: 2.5
  burst: 4
api:
  rate: 5
  burst: 20
adapter: xml
hash: sha256
prefetch: 4
strip_params: [utm_*, ref]
platforms:
  - name: blogspot
    hosts: ["*.blogspot.com"]
    canonical: blogger.com
    scheme: https
probes: []
tiers:
  - strip_www: true
    lowercase_host: true
    strip_params: [utm_*]
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if cfg.Listen != ":9090" || cfg.Timeout != 45*time.Second || cfg.Fetch.Timeout != 5*time.Second {
		t.Errorf("scalars: %+v", cfg)
	}
	if cfg.Fetch.Rate != 2.5 || cfg.Fetch.Burst != 4 || cfg.Fetch.MaxBytes != 1<<20 {
		t.Errorf("fetch: %+v", cfg.Fetch)
	}
	if cfg.API.Rate != 5 || cfg.API.Burst != 20 {
		t.Errorf("api: %+v", cfg.API)
	}
	if len(cfg.Platforms) != 1 || cfg.Platforms[0].Canonical != "blogger.com" {
		t.Errorf("platforms: %+v", cfg.Platforms)
	}
	// WHAT: An explicit empty list disables probes instead of restoring the default.
	// WHY: Operators must be able to turn the WordPress probe off.
	if cfg.Probes == nil || len(cfg.Probes) != 0 {
		t.Errorf("probes: %#v", cfg.Probes)
	}
	if len(cfg.Tiers) != 1 || !cfg.Tiers[0].StripWWW || cfg.Tiers[0].StripParams[0] != "utm_*" {
		t.Errorf("tiers: %+v", cfg.Tiers)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.defaults()
	if cfg.DBPath != "feedcanon.db" || cfg.Adapter != AdapterGofeed || cfg.Hash != "xxhash" || cfg.Prefetch != 1 {
		t.Errorf("defaults: %+v", cfg)
	}
	if len(cfg.Platforms) != 1 || cfg.Platforms[0].Name != "feedburner" {
		t.Errorf("platforms: %+v", cfg.Platforms)
	}
	if len(cfg.Probes) != 1 || cfg.Probes[0] != "wordpress" {
		t.Errorf("probes: %v", cfg.Probes)
	}
	if err := cfg.validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"adapter":  func(c *Config) { c.Adapter = "json" },
		"hash":     func(c *Config) { c.Hash = "md5" },
		"probe":    func(c *Config) { c.Probes = []string{"ghost"} },
		"platform": func(c *Config) { c.Platforms[0].Canonical = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := &Config{}
			cfg.defaults()
			mutate(cfg)
			if err := cfg.validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}
