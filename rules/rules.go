// CLAUDE:SUMMARY Platform rewrite and probe rule contracts, ordered first-match application with per-rule panic isolation.
// CLAUDE:EXPORTS PlatformRule, ProbeRule, ApplyPlatform, Probe
// Package rules holds host-specific knowledge the generic algorithm cannot
// derive: alias hostnames that always mean one canonical host, and known
// alternate paths worth probing for a given platform.
//
// Rules are ordered. The first rule whose Match returns true is applied and
// the rest are ignored. A rule that panics or returns an error behaves as
// if it had not matched.
package rules

import (
	"fmt"
	"log/slog"
	"net/url"
)

// PlatformRule rewrites a URL onto a platform's canonical form.
type PlatformRule interface {
	Match(u *url.URL) bool
	Rewrite(u *url.URL) (*url.URL, error)
}

// ProbeRule proposes alternate URLs to try before generic normalization.
type ProbeRule interface {
	Match(u *url.URL) bool
	Candidates(u *url.URL) ([]string, error)
}

// ApplyPlatform parses raw and applies the first matching rule. It returns
// raw unchanged when it does not parse, nothing matches, or the matching
// rule fails.
func ApplyPlatform(raw string, rs []PlatformRule, logger *slog.Logger) string {
	if len(rs) == 0 {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	for i, r := range rs {
		if !safeMatch(r.Match, u) {
			continue
		}
		out, err := safeRewrite(r, u)
		if err != nil || out == nil {
			logDebug(logger, "platform rule failed", i, raw, err)
			return raw
		}
		return out.String()
	}
	return raw
}

// Probe returns the candidates of the first matching probe rule, in the
// rule's order. A failing rule yields nil.
func Probe(raw string, rs []ProbeRule, logger *slog.Logger) []string {
	if len(rs) == 0 {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	for i, r := range rs {
		if !safeMatch(r.Match, u) {
			continue
		}
		out, err := safeCandidates(r, u)
		if err != nil {
			logDebug(logger, "probe rule failed", i, raw, err)
			return nil
		}
		return out
	}
	return nil
}

// Rules receive a copy so a misbehaving rule cannot mutate the caller's URL.
func clone(u *url.URL) *url.URL {
	c := *u
	if u.User != nil {
		user := *u.User
		c.User = &user
	}
	return &c
}

func safeMatch(match func(*url.URL) bool, u *url.URL) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return match(clone(u))
}

func safeRewrite(r PlatformRule, u *url.URL) (out *url.URL, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = nil, fmt.Errorf("rules: panic: %v", p)
		}
	}()
	return r.Rewrite(clone(u))
}

func safeCandidates(r ProbeRule, u *url.URL) (out []string, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = nil, fmt.Errorf("rules: panic: %v", p)
		}
	}()
	return r.Candidates(clone(u))
}

func logDebug(logger *slog.Logger, msg string, index int, raw string, err error) {
	if logger == nil {
		return
	}
	logger.Debug(msg, "rule", index, "url", raw, "error", err)
}
