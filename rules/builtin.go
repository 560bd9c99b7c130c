// CLAUDE:SUMMARY Built-in rules: configurable host aliasing (FeedBurner preset) and the WordPress ?feed= probe.
// CLAUDE:EXPORTS HostAlias, FeedBurner, WordPress, ProbeByName, ErrUnknownProbe
package rules

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrUnknownProbe is returned by ProbeByName for an unrecognized name.
var ErrUnknownProbe = errors.New("rules: unknown probe")

// HostAlias maps a set of alias hostnames onto one canonical host.
// The canonical host itself also matches, so its scheme and query policy
// apply to every URL on the platform. Hosts may use a leading "*." to match
// any subdomain.
type HostAlias struct {
	Name       string   `yaml:"name" json:"name"`
	Hosts      []string `yaml:"hosts" json:"hosts"`
	Canonical  string   `yaml:"canonical" json:"canonical"`
	Scheme     string   `yaml:"scheme" json:"scheme"`           // forced scheme, "" keeps the input's
	StripQuery bool     `yaml:"strip_query" json:"strip_query"` // platform ignores query strings
}

func (h HostAlias) Match(u *url.URL) bool {
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" || h.Canonical == "" {
		return false
	}
	if host == strings.ToLower(h.Canonical) {
		return true
	}
	for _, alias := range h.Hosts {
		alias = strings.ToLower(strings.TrimSpace(alias))
		if suffix, ok := strings.CutPrefix(alias, "*."); ok {
			if strings.HasSuffix(host, "."+suffix) {
				return true
			}
			continue
		}
		if host == alias {
			return true
		}
	}
	return false
}

func (h HostAlias) Rewrite(u *url.URL) (*url.URL, error) {
	if strings.ContainsAny(h.Canonical, "/?#@") {
		return nil, fmt.Errorf("rules: %s: canonical %q is not a host", h.Name, h.Canonical)
	}
	out := *u
	out.Host = strings.ToLower(h.Canonical)
	if h.Scheme != "" {
		out.Scheme = strings.ToLower(h.Scheme)
	}
	if h.StripQuery {
		out.RawQuery = ""
		out.ForceQuery = false
	}
	return &out, nil
}

// FeedBurner folds the historical FeedBurner proxy hostnames onto
// https://feeds.feedburner.com. FeedBurner ignores query strings.
func FeedBurner() HostAlias {
	return HostAlias{
		Name: "feedburner",
		Hosts: []string{
			"feedproxy.google.com",
			"feedsproxy.google.com",
			"feeds2.feedburner.com",
			"feed.feedburner.com",
			"feedburner.com",
			"www.feedburner.com",
		},
		Canonical:  "feeds.feedburner.com",
		Scheme:     "https",
		StripQuery: true,
	}
}

// wordpressFeeds maps ?feed= values to WordPress pretty-permalink paths.
var wordpressFeeds = map[string]string{
	"":              "feed/",
	"rss2":          "feed/",
	"rss":           "feed/rss/",
	"rdf":           "feed/rdf/",
	"atom":          "feed/atom/",
	"comments-rss2": "comments/feed/",
	"comments-atom": "comments/feed/atom/",
}

// WordPress turns query-style WordPress feed URLs (/?feed=rss2,
// /index.php?feed=atom) into their pretty-permalink forms. Both the
// slash-terminated and bare forms are proposed, slash first.
type WordPress struct{}

func (WordPress) Match(u *url.URL) bool {
	q := u.Query()
	if !q.Has("feed") {
		return false
	}
	if _, ok := wordpressFeeds[strings.ToLower(q.Get("feed"))]; !ok {
		return false
	}
	p := u.Path
	return p == "" || strings.HasSuffix(p, "/") || strings.HasSuffix(p, "/index.php")
}

func (WordPress) Candidates(u *url.URL) ([]string, error) {
	q := u.Query()
	suffix, ok := wordpressFeeds[strings.ToLower(q.Get("feed"))]
	if !ok {
		return nil, fmt.Errorf("rules: wordpress: unsupported feed %q", q.Get("feed"))
	}
	q.Del("feed")

	dir := strings.TrimSuffix(u.Path, "index.php")
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}

	slash := *u
	slash.Path = dir + suffix
	slash.RawPath = ""
	slash.RawQuery = q.Encode()
	slash.ForceQuery = false
	slash.Fragment = ""

	bare := slash
	bare.Path = strings.TrimSuffix(slash.Path, "/")

	return []string{slash.String(), bare.String()}, nil
}

// ProbeByName maps a configured probe name to its rule.
func ProbeByName(name string) (ProbeRule, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "wordpress":
		return WordPress{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProbe, name)
}
