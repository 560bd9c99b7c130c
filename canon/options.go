package canon

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/feedcanon/compare"
	"github.com/hazyhaar/feedcanon/fetch"
	"github.com/hazyhaar/feedcanon/horosafe"
	"github.com/hazyhaar/feedcanon/rules"
	"github.com/hazyhaar/feedcanon/urlnorm"
)

// Fetcher is the HTTP collaborator. *fetch.Client implements it.
// Non-2xx responses and errors are both "this URL failed".
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) (*fetch.Response, error)
}

// Oracle answers "is this URL already a known canonical feed". A lookup
// error is logged and treated as a miss.
type Oracle interface {
	Lookup(ctx context.Context, url string) (bool, error)
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func(ctx context.Context, url string) (bool, error)

func (f OracleFunc) Lookup(ctx context.Context, url string) (bool, error) { return f(ctx, url) }

// Option configures an Engine.
type Option func(*config)

type config struct {
	platform    []rules.PlatformRule
	probes      []rules.ProbeRule
	tiers       []urlnorm.Profile
	tiersSet    bool
	stripParams []string
	stripSet    bool
	oracle      Oracle
	hooks       []Hooks
	hasher      compare.Hasher
	logger      *slog.Logger
	prefetch    int
	equivalence *urlnorm.Profile
	verifier    func(string) error
}

func (c *config) defaults() {
	if !c.tiersSet {
		c.tiers = urlnorm.DefaultTiers()
	}
	if !c.stripSet {
		c.stripParams = urlnorm.DefaultTrackingParams
	}
	if c.hasher == nil {
		c.hasher = compare.XXHash
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.prefetch < 1 {
		c.prefetch = 1
	}
	if c.equivalence == nil {
		p := urlnorm.Comparable()
		c.equivalence = &p
	}
	if c.verifier == nil {
		c.verifier = horosafe.ValidateURL
	}
}

// WithPlatformRules sets the ordered platform rewrite rules.
func WithPlatformRules(rs ...rules.PlatformRule) Option {
	return func(c *config) { c.platform = rs }
}

// WithProbeRules sets the ordered probe rules.
func WithProbeRules(rs ...rules.ProbeRule) Option {
	return func(c *config) { c.probes = rs }
}

// WithTiers replaces the default tiers. Order is preference order,
// cleanest first. An empty list disables tier candidates.
func WithTiers(tiers ...urlnorm.Profile) Option {
	return func(c *config) {
		c.tiers = tiers
		c.tiersSet = true
	}
}

// WithStripParams replaces the tracking parameters removed from response
// and self URLs.
func WithStripParams(params ...string) Option {
	return func(c *config) {
		c.stripParams = params
		c.stripSet = true
	}
}

// WithOracle sets the existence oracle.
func WithOracle(o Oracle) Option {
	return func(c *config) { c.oracle = o }
}

// WithHooks adds a set of observation hooks. Multiple sets run in the
// order they were added.
func WithHooks(h Hooks) Option {
	return func(c *config) { c.hooks = append(c.hooks, h) }
}

// WithHasher sets the digest used by the content comparator.
func WithHasher(h compare.Hasher) Option {
	return func(c *config) { c.hasher = h }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithPrefetch fetches up to n candidates concurrently. Results, hooks and
// the winner are still taken in candidate order.
func WithPrefetch(n int) Option {
	return func(c *config) { c.prefetch = n }
}

// WithEquivalenceProfile sets the profile Equivalent compares under.
// Default: urlnorm.Comparable().
func WithEquivalenceProfile(p urlnorm.Profile) Option {
	return func(c *config) { c.equivalence = &p }
}

// WithVerifier sets the URL check Equivalent runs before fetching.
// Default: horosafe.ValidateURL.
func WithVerifier(v func(string) error) Option {
	return func(c *config) { c.verifier = v }
}
