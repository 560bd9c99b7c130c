// CLAUDE:SUMMARY Canonicalization engine: sanitize, fetch, self-URL validation, candidate generation/testing, HTTPS upgrade.
// CLAUDE:EXPORTS Engine, New, ErrUnresolved, Fetcher, Oracle, OracleFunc, Option, Hooks, FetchEvent, MatchEvent, ExistsEvent, Phase
// Package canon picks the one URL a feed should be stored under.
//
// Canonicalize fetches the input once, learns what the feed is, then looks
// for the cleanest URL that serves the same feed: the feed's own declared
// self URL, platform and probe rewrites, and each normalization tier, in
// that preference order. A URL is only ever returned if it was shown to
// serve the same feed or the existence oracle already knows it.
//
// The engine is generic over the adapter's parsed-feed type and holds no
// mutable state; one Engine serves any number of concurrent calls.
package canon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hazyhaar/feedcanon/compare"
	"github.com/hazyhaar/feedcanon/feed"
	"github.com/hazyhaar/feedcanon/fetch"
	"github.com/hazyhaar/feedcanon/resolve"
	"github.com/hazyhaar/feedcanon/rules"
	"github.com/hazyhaar/feedcanon/urlnorm"
)

// ErrUnresolved is returned when no valid feed could be established for
// the input. Hook errors and context errors are returned as themselves.
var ErrUnresolved = errors.New("canon: unresolved")

// Engine canonicalizes feed URLs. Build it once with New.
type Engine[F any] struct {
	adapter feed.Adapter[F]
	client  Fetcher
	cfg     config
}

// New builds an Engine around a feed adapter and an HTTP fetcher.
func New[F any](adapter feed.Adapter[F], client Fetcher, opts ...Option) *Engine[F] {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}
	cfg.defaults()
	return &Engine[F]{adapter: adapter, client: client, cfg: cfg}
}

// Canonicalize returns the canonical URL for input.
func (e *Engine[F]) Canonicalize(ctx context.Context, input string) (string, error) {
	log := e.cfg.logger.With("input", input)

	// 1. Input sanitation. No network on failure.
	in, err := e.sanitize(input, "")
	if err != nil {
		log.Debug("canon: input rejected", "error", err)
		return "", fmt.Errorf("%w: %v", ErrUnresolved, err)
	}

	// 2. Initial fetch.
	resp, err := e.fetchOne(ctx, PhaseInitial, in.URL)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", fmt.Errorf("%w: initial fetch of %s failed", ErrUnresolved, in.URL)
	}

	// 3. Response URL normalization.
	initial, err := e.responseURL(resp.URL, in.URL)
	if err != nil {
		return "", fmt.Errorf("%w: response URL: %v", ErrUnresolved, err)
	}

	// 4. Parse.
	parsed, err := parseFeed(e.adapter, resp.Body)
	if err != nil {
		log.Debug("canon: initial body is not a feed", "url", in.URL, "error", err)
		return "", fmt.Errorf("%w: %s is not a feed: %v", ErrUnresolved, in.URL, err)
	}
	ref := compare.NewReference(e.adapter, e.cfg.hasher, resp.Body, parsed)

	// 5–6. Self URL.
	variant, err := e.validateSelf(ctx, log, ref, initial)
	if err != nil {
		return "", err
	}
	log.Debug("canon: variant source", "initial", initial, "variant", variant)

	// 7. Candidates.
	cands := e.candidates(variant)

	// 8. Existence, then fetch testing.
	if hit, err := e.lookupExisting(ctx, log, cands, initial); err != nil || hit != "" {
		return hit, err
	}
	winner, err := e.testCandidates(ctx, log, ref, cands, variant, initial)
	if err != nil {
		return "", err
	}

	// 9. HTTPS upgrade.
	winner, err = e.upgrade(ctx, ref, winner)
	if err != nil {
		return "", err
	}
	log.Debug("canon: resolved", "canonical", winner)
	return winner, nil
}

// sanitize resolves raw against base and applies the first platform rule.
// The rewritten URL is resolved again so a rule cannot smuggle in an unsafe
// scheme.
func (e *Engine[F]) sanitize(raw, base string) (resolve.Result, error) {
	res, err := resolve.Resolve(raw, base)
	if err != nil {
		return resolve.Result{}, err
	}
	rewritten := rules.ApplyPlatform(res.URL, e.cfg.platform, e.cfg.logger)
	if rewritten == res.URL {
		return res, nil
	}
	again, err := resolve.Resolve(rewritten, "")
	if err != nil {
		return resolve.Result{}, err
	}
	return resolve.Result{URL: again.URL, Legacy: res.Legacy}, nil
}

// responseURL is the pipeline applied to every URL a server reports:
// sanitize, then strip tracking parameters. An empty raw means the fetcher
// did not report a final URL, so the requested one stands.
func (e *Engine[F]) responseURL(raw, requested string) (string, error) {
	if raw == "" {
		raw = requested
	}
	res, err := e.sanitize(raw, requested)
	if err != nil {
		return "", err
	}
	return urlnorm.StripParams(res.URL, e.cfg.stripParams), nil
}

// fetchOne fetches url and fires OnFetch. A nil response with a nil error
// means the URL failed; a non-nil error aborts the whole call.
func (e *Engine[F]) fetchOne(ctx context.Context, phase Phase, url string) (*fetch.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, ferr := e.client.Fetch(ctx, fetch.Request{URL: url, Method: http.MethodGet})
	return e.observe(ctx, phase, url, resp, ferr)
}

func (e *Engine[F]) observe(ctx context.Context, phase Phase, url string, resp *fetch.Response, ferr error) (*fetch.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.cfg.fireFetch(ctx, FetchEvent{Phase: phase, URL: url, Response: resp, Err: ferr}); err != nil {
		return nil, err
	}
	if ferr != nil {
		e.cfg.logger.Debug("canon: fetch failed", "phase", phase, "url", url, "error", ferr)
		return nil, nil
	}
	if !resp.OK() {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		e.cfg.logger.Debug("canon: fetch not ok", "phase", phase, "url", url, "status", status)
		return nil, nil
	}
	return resp, nil
}

// validateSelf tries the feed's declared self URL and returns the variant
// source URL.
func (e *Engine[F]) validateSelf(ctx context.Context, log *slog.Logger, ref *compare.Reference[F], initial string) (string, error) {
	raw := strings.TrimSpace(selfURL(e.adapter, ref.Feed()))
	if raw == "" {
		return initial, nil
	}
	res, err := e.sanitize(raw, initial)
	if err != nil {
		log.Debug("canon: self URL rejected", "self", raw, "error", err)
		return initial, nil
	}
	self := urlnorm.StripParams(res.URL, e.cfg.stripParams)
	if self == initial {
		return initial, nil
	}

	tries := []string{self}
	if res.Legacy || declaresScheme(raw) {
		if alt := resolve.FlipScheme(self); alt != self {
			tries = append(tries, alt)
		}
	}
	for _, u := range tries {
		resp, err := e.fetchOne(ctx, PhaseSelf, u)
		if err != nil {
			return "", err
		}
		if resp == nil {
			continue
		}
		m := ref.Match(resp.Body)
		if m == compare.MethodNone {
			log.Debug("canon: self URL serves different content", "url", u)
			continue
		}
		final, err := e.responseURL(resp.URL, u)
		if err != nil {
			continue
		}
		if err := e.cfg.fireMatch(ctx, MatchEvent{Phase: PhaseSelf, URL: u, Method: m}); err != nil {
			return "", err
		}
		return final, nil
	}
	return initial, nil
}

// candidates builds the ordered, de-duplicated candidate list: probe
// results, then each tier of variant, then variant itself.
func (e *Engine[F]) candidates(variant string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}

	for _, p := range rules.Probe(variant, e.cfg.probes, e.cfg.logger) {
		if res, err := e.sanitize(p, variant); err == nil {
			add(res.URL)
		}
	}
	for _, tier := range e.cfg.tiers {
		n := urlnorm.Normalize(variant, tier)
		if !declaresScheme(n) {
			// A scheme-less comparison key is not fetchable.
			continue
		}
		if res, err := e.sanitize(n, ""); err == nil {
			add(res.URL)
		}
	}
	add(variant)
	return out
}

// lookupExisting asks the oracle about candidates in order, up to and
// including the initial response URL, where the candidate walk ends. The
// first known candidate wins without any fetch.
func (e *Engine[F]) lookupExisting(ctx context.Context, log *slog.Logger, cands []string, initial string) (string, error) {
	if e.cfg.oracle == nil {
		return "", nil
	}
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		ok, err := e.cfg.oracle.Lookup(ctx, c)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			log.Warn("canon: existence lookup failed", "url", c, "error", err)
		case ok:
			if err := e.cfg.fireExists(ctx, ExistsEvent{URL: c}); err != nil {
				return "", err
			}
			log.Debug("canon: existing canonical", "url", c)
			return c, nil
		}
		if c == initial {
			break
		}
	}
	return "", nil
}

// testCandidates fetches candidates in order until one serves the same feed
// without redirecting back to a known URL. The variant source is already
// verified and is skipped; reaching the initial response URL ends the search
// with that URL.
func (e *Engine[F]) testCandidates(ctx context.Context, log *slog.Logger, ref *compare.Reference[F], cands []string, variant, initial string) (string, error) {
	var fetchable []string
	for _, c := range cands {
		if c == initial {
			break
		}
		if c != variant {
			fetchable = append(fetchable, c)
		}
	}
	pf := newPrefetcher(ctx, e.client, fetchable, e.cfg.prefetch)
	defer pf.stop()

	i := -1
	for _, c := range cands {
		if c == initial {
			return c, nil
		}
		if c == variant {
			continue
		}
		i++
		if err := ctx.Err(); err != nil {
			return "", err
		}
		resp, ferr := pf.get(ctx, i)
		resp, err := e.observe(ctx, PhaseCandidate, c, resp, ferr)
		if err != nil {
			return "", err
		}
		if resp == nil {
			continue
		}
		final, err := e.responseURL(resp.URL, c)
		if err != nil {
			continue
		}
		if final == variant || final == initial {
			log.Debug("canon: candidate redirects to a known URL", "url", c, "final", final)
			continue
		}
		m := ref.Match(resp.Body)
		if m == compare.MethodNone {
			continue
		}
		if err := e.cfg.fireMatch(ctx, MatchEvent{Phase: PhaseCandidate, URL: c, Method: m}); err != nil {
			return "", err
		}
		return c, nil
	}
	return variant, nil
}

// upgrade swaps an http winner for its https form when that serves the
// same feed without redirecting back to http.
func (e *Engine[F]) upgrade(ctx context.Context, ref *compare.Reference[F], winner string) (string, error) {
	if !strings.HasPrefix(winner, "http://") {
		return winner, nil
	}
	secure := resolve.FlipScheme(winner)
	resp, err := e.fetchOne(ctx, PhaseUpgrade, secure)
	if err != nil || resp == nil {
		return winner, err
	}
	final, err := e.responseURL(resp.URL, secure)
	if err != nil || !strings.HasPrefix(final, "https://") {
		return winner, nil
	}
	m := ref.Match(resp.Body)
	if m == compare.MethodNone {
		return winner, nil
	}
	if err := e.cfg.fireMatch(ctx, MatchEvent{Phase: PhaseUpgrade, URL: secure, Method: m}); err != nil {
		return "", err
	}
	return secure, nil
}

func declaresScheme(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func parseFeed[F any](a feed.Adapter[F], body []byte) (f F, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("adapter panic: %v", p)
		}
	}()
	return a.Parse(body)
}

func selfURL[F any](a feed.Adapter[F], f F) (u string) {
	defer func() {
		if recover() != nil {
			u = ""
		}
	}()
	return a.SelfURL(f)
}
