// CLAUDE:SUMMARY Feedcanon service. Wires registry, fetcher and engine; resolves with alias fast path, singleflight and resolution logging.
// Package keeper is the feedcanon service layer.
//
// It owns the registry database, builds the canonicalization engine from
// Config, and exposes it over HTTP (chi), MCP and the CLI:
//
//	input URL → alias fast path → singleflight → canon.Engine → registry.Save → log
//
// Usage:
//
//	s, err := keeper.New(cfg, logger)
//	defer s.Close()
//	res, err := s.Resolve(ctx, "http://www.example.com/feed?utm_source=x")
//	http.ListenAndServe(cfg.Listen, s.Handler())
//	s.RegisterMCP(mcpServer)
package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/singleflight"

	"github.com/hazyhaar/feedcanon/canon"
	"github.com/hazyhaar/feedcanon/compare"
	"github.com/hazyhaar/feedcanon/feed"
	"github.com/hazyhaar/feedcanon/fetch"
	"github.com/hazyhaar/feedcanon/horosafe"
	"github.com/hazyhaar/feedcanon/registry"
	"github.com/hazyhaar/feedcanon/rules"
	"github.com/hazyhaar/feedcanon/urlnorm"
)

// ErrInvalidInput is returned for empty or oversized request fields.
var ErrInvalidInput = errors.New("keeper: invalid input")

const maxURLLength = 4096

// engine is what the service needs from canon.Engine, whatever the feed type.
type engine interface {
	Canonicalize(ctx context.Context, input string) (string, error)
	Equivalent(ctx context.Context, a, b string) (canon.Equivalence, error)
}

// Resolution is the answer of Resolve.
type Resolution struct {
	Input        string   `json:"input"`
	CanonicalURL string   `json:"canonical_url"`
	Cached       bool     `json:"cached"`
	Aliases      []string `json:"aliases,omitempty"`
	DurationMs   int64    `json:"duration_ms"`
}

// Option configures a Service beyond Config.
type Option func(*options)

type options struct {
	fetcher  canon.Fetcher
	registry *registry.Registry
}

// WithFetcher replaces the HTTP client built from Config.Fetch.
func WithFetcher(f canon.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithRegistry uses an already-open registry instead of opening Config.DBPath.
func WithRegistry(r *registry.Registry) Option {
	return func(o *options) { o.registry = r }
}

// Service is safe for concurrent use.
type Service struct {
	config   *Config
	registry *registry.Registry
	engine   engine
	metrics  *metrics
	logger   *slog.Logger
	group    singleflight.Group
}

// New creates a Service. It opens the registry unless WithRegistry is given.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	reg := o.registry
	if reg == nil {
		var err error
		if reg, err = registry.Open(cfg.DBPath); err != nil {
			return nil, err
		}
	}

	s := &Service{
		config:   cfg,
		registry: reg,
		metrics:  newMetrics(),
		logger:   logger,
	}

	fetcher := o.fetcher
	if fetcher == nil {
		fetcher = fetch.New(s.fetchConfig())
	}
	engineOpts, err := s.engineOptions()
	if err != nil {
		if o.registry == nil {
			reg.Close()
		}
		return nil, err
	}
	switch cfg.Adapter {
	case AdapterXML:
		s.engine = canon.New[*feed.Document](feed.XML{}, fetcher, engineOpts...)
	default:
		s.engine = canon.New[*gofeed.Feed](feed.Gofeed{}, fetcher, engineOpts...)
	}
	return s, nil
}

func (s *Service) fetchConfig() fetch.Config {
	fc := s.config.Fetch
	cfg := fetch.Config{
		Timeout:      fc.Timeout,
		MaxBytes:     fc.MaxBytes,
		UserAgent:    fc.UserAgent,
		MaxRedirects: fc.MaxRedirects,
		Rate:         fc.Rate,
		Burst:        fc.Burst,
	}
	if fc.AllowPrivate {
		cfg.URLValidator = horosafe.ValidateScheme
	}
	return cfg
}

func (s *Service) engineOptions() ([]canon.Option, error) {
	cfg := s.config
	hasher, err := compare.HasherByName(cfg.Hash)
	if err != nil {
		return nil, err
	}
	platforms := make([]rules.PlatformRule, 0, len(cfg.Platforms))
	for _, p := range cfg.Platforms {
		platforms = append(platforms, p)
	}
	probes := make([]rules.ProbeRule, 0, len(cfg.Probes))
	for _, name := range cfg.Probes {
		p, err := rules.ProbeByName(name)
		if err != nil {
			return nil, err
		}
		probes = append(probes, p)
	}

	opts := []canon.Option{
		canon.WithLogger(s.logger),
		canon.WithOracle(s.registry),
		canon.WithHasher(hasher),
		canon.WithPrefetch(cfg.Prefetch),
		canon.WithPlatformRules(platforms...),
		canon.WithProbeRules(probes...),
		canon.WithHooks(s.metrics.hooks()),
		canon.WithHooks(trailHooks()),
	}
	if cfg.Tiers != nil {
		opts = append(opts, canon.WithTiers(cfg.Tiers...))
	}
	if cfg.StripParams != nil {
		opts = append(opts, canon.WithStripParams(cfg.StripParams...))
	}
	if cfg.Fetch.AllowPrivate {
		opts = append(opts, canon.WithVerifier(horosafe.ValidateScheme))
	}
	return opts, nil
}

// Close closes the registry.
func (s *Service) Close() error {
	return s.registry.Close()
}

// Registry returns the underlying registry (admin, tests).
func (s *Service) Registry() *registry.Registry {
	return s.registry
}

// Resolve returns the canonical URL for rawURL. Known aliases are answered
// from the registry without network. Concurrent calls for the same input
// share one engine run, bounded by Config.Timeout; each caller still
// returns as soon as its own ctx ends.
func (s *Service) Resolve(ctx context.Context, rawURL string) (*Resolution, error) {
	input, err := checkURL(rawURL)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	canonical, err := s.registry.Canonical(ctx, input)
	switch {
	case err == nil:
		res := &Resolution{Input: input, CanonicalURL: canonical, Cached: true, DurationMs: time.Since(start).Milliseconds()}
		s.record(ctx, res, registry.StatusCached, nil)
		return res, nil
	case !errors.Is(err, registry.ErrNotFound):
		s.logger.WarnContext(ctx, "feedcanon: alias lookup failed", "input", input, "error", err)
	}

	ch := s.group.DoChan(input, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.Timeout)
		defer cancel()
		return s.resolve(runCtx, input)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*Resolution)
		return &res, nil
	}
}

func (s *Service) resolve(ctx context.Context, input string) (*Resolution, error) {
	start := time.Now()
	t := &trail{}
	canonical, err := s.engine.Canonicalize(withTrail(ctx, t), input)
	elapsed := time.Since(start)
	s.metrics.duration.Observe(elapsed.Seconds())

	res := &Resolution{Input: input, DurationMs: elapsed.Milliseconds()}
	if err != nil {
		status := registry.StatusFailed
		if errors.Is(err, canon.ErrUnresolved) {
			status = registry.StatusUnresolved
		}
		s.record(ctx, res, status, err)
		return nil, err
	}

	res.CanonicalURL = canonical
	res.Aliases = t.aliases(input, canonical)
	if _, err := s.registry.Save(ctx, canonical, res.Aliases...); err != nil {
		s.record(ctx, res, registry.StatusFailed, err)
		return nil, fmt.Errorf("feedcanon: save %s: %w", canonical, err)
	}
	s.record(ctx, res, registry.StatusResolved, nil)
	s.logger.InfoContext(ctx, "feedcanon: resolved",
		"input", input, "canonical", canonical, "aliases", len(res.Aliases), "duration_ms", res.DurationMs)
	return res, nil
}

// record counts and logs a resolution. Log write failures are only logged.
func (s *Service) record(ctx context.Context, res *Resolution, status string, cause error) {
	s.metrics.resolutions.WithLabelValues(status).Inc()
	entry := registry.Resolution{
		InputURL:     res.Input,
		CanonicalURL: res.CanonicalURL,
		Status:       status,
		DurationMs:   res.DurationMs,
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	if err := s.registry.LogResolution(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.WarnContext(ctx, "feedcanon: resolution log failed", "input", res.Input, "error", err)
	}
}

// Equivalent reports whether a and b are the same feed.
func (s *Service) Equivalent(ctx context.Context, a, b string) (canon.Equivalence, error) {
	a, err := checkURL(a)
	if err != nil {
		return canon.Equivalence{}, err
	}
	if b, err = checkURL(b); err != nil {
		return canon.Equivalence{}, err
	}
	eq, err := s.engine.Equivalent(ctx, a, b)
	if err != nil {
		return canon.Equivalence{}, err
	}
	s.metrics.recordEquivalence(eq)
	return eq, nil
}

// Resolutions returns the most recent resolution log entries.
func (s *Service) Resolutions(ctx context.Context, limit int) ([]registry.Resolution, error) {
	return s.registry.Resolutions(ctx, limit)
}

// Feed returns the registry entry for url, canonical or alias.
func (s *Service) Feed(ctx context.Context, url string) (*registry.Feed, error) {
	url, err := checkURL(url)
	if err != nil {
		return nil, err
	}
	canonical, err := s.registry.Canonical(ctx, url)
	if err != nil {
		return nil, err
	}
	return s.registry.Feed(ctx, canonical)
}

// MergeDuplicates folds registry feeds whose canonical URLs compare equal
// under urlnorm.Comparable.
func (s *Service) MergeDuplicates(ctx context.Context) (registry.MergeStats, error) {
	p := urlnorm.Comparable()
	return s.registry.MergeDuplicates(ctx, func(u string) string {
		return urlnorm.Normalize(u, p)
	})
}

func checkURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	if len(raw) > maxURLLength {
		return "", fmt.Errorf("%w: url longer than %d bytes", ErrInvalidInput, maxURLLength)
	}
	return raw, nil
}

// --- alias trail ---

// trail collects, for one resolution, the URLs that served the feed.
type trail struct {
	mu      sync.Mutex
	fetched string   // final URL of the initial fetch
	matched []string // URLs confirmed to serve the same feed
}

type trailKey struct{}

func withTrail(ctx context.Context, t *trail) context.Context {
	return context.WithValue(ctx, trailKey{}, t)
}

func trailFrom(ctx context.Context) *trail {
	t, _ := ctx.Value(trailKey{}).(*trail)
	return t
}

func trailHooks() canon.Hooks {
	return canon.Hooks{
		OnFetch: func(ctx context.Context, ev canon.FetchEvent) error {
			t := trailFrom(ctx)
			if t == nil || ev.Phase != canon.PhaseInitial || !ev.Response.OK() {
				return nil
			}
			t.mu.Lock()
			t.fetched = ev.Response.URL
			t.mu.Unlock()
			return nil
		},
		OnMatch: func(ctx context.Context, ev canon.MatchEvent) error {
			if t := trailFrom(ctx); t != nil {
				t.mu.Lock()
				t.matched = append(t.matched, ev.URL)
				t.mu.Unlock()
			}
			return nil
		},
	}
}

// aliases returns the input and every URL seen serving the feed, minus
// the canonical URL, deduplicated in first-seen order.
func (t *trail) aliases(input, canonical string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	seen := map[string]bool{canonical: true, "": true}
	var out []string
	for _, u := range append([]string{input, t.fetched}, t.matched...) {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}
