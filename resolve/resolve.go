// CLAUDE:SUMMARY Turns raw, relative or legacy-scheme feed URLs into absolute, safe http(s) URLs.
// CLAUDE:EXPORTS Scheme, AddMissingScheme, Absolute, Resolve, FlipScheme, Result, ErrInvalidURL, ErrUnsafeScheme
// Package resolve sanitizes URL strings before anything is fetched.
//
// Every URL that reaches the network goes through Resolve: legacy feed
// discovery schemes (feed:, rss:, pcast:, itpc:) are rewritten, missing
// schemes are added only to plausible public hosts, relative references are
// resolved against a base, and anything that is not http or https is
// rejected.
package resolve

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ErrInvalidURL is returned for input that cannot become an absolute URL.
var ErrInvalidURL = errors.New("resolve: invalid URL")

// ErrUnsafeScheme is returned when the resolved URL is not http or https.
var ErrUnsafeScheme = errors.New("resolve: scheme not allowed")

// legacySchemes are feed discovery schemes that wrap or stand in for http.
var legacySchemes = []string{"feed:", "rss:", "pcast:", "itpc:"}

// Result is a sanitized URL.
type Result struct {
	URL string
	// Legacy reports that the input used a feed discovery scheme, so its
	// http/https choice was a guess.
	Legacy bool
}

// Scheme rewrites legacy feed discovery schemes to http or https.
// A wrapped absolute URL (feed:https://host/…, feed:ftp://host/…) keeps its
// own scheme, whatever it is; otherwise fallback is used ("http" when empty). The second result is
// false when raw does not use a legacy scheme, in which case raw is
// returned unchanged.
func Scheme(raw, fallback string) (string, bool) {
	if fallback == "" {
		fallback = "http"
	}
	lower := strings.ToLower(raw)
	for _, prefix := range legacySchemes {
		if !strings.HasPrefix(lower, prefix) {
			continue
		}
		rest := raw[len(prefix):]
		restLower := lower[len(prefix):]
		switch {
		case strings.HasPrefix(restLower, "http://"), strings.HasPrefix(restLower, "https://"):
			return rest, true
		case strings.HasPrefix(restLower, "//"):
			return fallback + ":" + rest, true
		case rest == "":
			return raw, false
		case hasScheme(rest):
			// Wrapped URL with its own scheme: kept as is so the
			// allow-list in Resolve sees it.
			return rest, true
		default:
			return fallback + "://" + rest, true
		}
	}
	return raw, false
}

// AddMissingScheme prefixes scheme ("https" when empty) to protocol-relative
// (//host/…) and bare-domain (host/…) input, but only when the authority
// looks like a public host. Input that already has a scheme is returned
// unchanged with ok=true; the allow-list is applied later.
func AddMissingScheme(raw, scheme string) (string, bool) {
	if scheme == "" {
		scheme = "https"
	}
	if rest, ok := strings.CutPrefix(raw, "//"); ok {
		if !plausibleAuthority(authorityOf(rest)) {
			return raw, false
		}
		return scheme + ":" + raw, true
	}
	if hasScheme(raw) {
		return raw, true
	}
	if !plausibleAuthority(authorityOf(raw)) {
		return raw, false
	}
	return scheme + "://" + raw, true
}

// Absolute resolves ref against base using RFC 3986 reference resolution.
// base must be absolute.
func Absolute(ref, base string) (string, bool) {
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() || b.Host == "" {
		return "", false
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	return b.ResolveReference(r).String(), true
}

// Resolve sanitizes raw into an absolute http(s) URL. When base is set,
// relative references resolve against it and scheme-less legacy or
// protocol-relative input inherits its scheme. The host is lowercased and
// default ports are removed: both are always semantically safe.
func Resolve(raw, base string) (Result, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Result{}, fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if strings.ContainsAny(raw, "\x00\r\n\t") {
		return Result{}, fmt.Errorf("%w: control characters", ErrInvalidURL)
	}

	baseScheme := ""
	if base != "" {
		if b, err := url.Parse(base); err == nil {
			baseScheme = strings.ToLower(b.Scheme)
		}
	}

	out, legacy := Scheme(raw, baseScheme)
	if !legacy && !hasScheme(out) {
		switch {
		case strings.HasPrefix(out, "//") && baseScheme != "":
			out = baseScheme + ":" + out
		case base != "":
			abs, ok := Absolute(out, base)
			if !ok {
				return Result{}, fmt.Errorf("%w: cannot resolve %q against base", ErrInvalidURL, raw)
			}
			out = abs
		default:
			withScheme, ok := AddMissingScheme(out, "")
			if !ok {
				return Result{}, fmt.Errorf("%w: %q is not an absolute URL", ErrInvalidURL, raw)
			}
			out = withScheme
		}
	}

	u, err := url.Parse(out)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return Result{}, fmt.Errorf("%w: %q", ErrUnsafeScheme, scheme)
	}
	if u.Host == "" || u.Hostname() == "" {
		return Result{}, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err != nil || n < 1 || n > 65535 {
			return Result{}, fmt.Errorf("%w: bad port %q", ErrInvalidURL, p)
		}
	}

	u.Scheme = scheme
	host, port := strings.ToLower(u.Hostname()), u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}
	u.Host = host
	return Result{URL: u.String(), Legacy: legacy}, nil
}

// FlipScheme swaps http and https. Other input is returned unchanged.
func FlipScheme(raw string) string {
	switch {
	case strings.HasPrefix(raw, "https://"):
		return "http://" + raw[len("https://"):]
	case strings.HasPrefix(raw, "http://"):
		return "https://" + raw[len("http://"):]
	}
	return raw
}

// hasScheme reports whether raw starts with "scheme:". A "host:port"
// prefix (digits after the colon) is not a scheme.
func hasScheme(raw string) bool {
	i := strings.IndexByte(raw, ':')
	if i <= 0 {
		return false
	}
	for j := 0; j < i; j++ {
		c := raw[j]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case j > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	rest := raw[i+1:]
	end := strings.IndexAny(rest, "/?#")
	if end < 0 {
		end = len(rest)
	}
	if end > 0 && isDigits(rest[:end]) && strings.Contains(raw[:i], ".") {
		return false
	}
	return true
}

func authorityOf(s string) string {
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		return s[:i]
	}
	return s
}

// plausibleAuthority accepts host[:port] where host is a dotted IPv4
// literal or a multi-label LDH name with a registrable domain.
func plausibleAuthority(authority string) bool {
	if authority == "" || strings.ContainsAny(authority, "@ \\") {
		return false
	}
	host, port := authority, ""
	if h, p, err := net.SplitHostPort(authority); err == nil {
		host, port = h, p
	} else if strings.Contains(authority, ":") {
		return false
	}
	if port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return false
		}
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.To4() != nil && strings.Count(host, ".") == 3
	}

	host = strings.TrimSuffix(strings.ToLower(host), ".")
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if !validLabel(l) {
			return false
		}
	}
	tld := labels[len(labels)-1]
	if isDigits(tld) {
		return false
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(host); err != nil {
		return false
	}
	return true
}

func validLabel(l string) bool {
	if l == "" || len(l) > 63 || l[0] == '-' || l[len(l)-1] == '-' {
		return false
	}
	for i := 0; i < len(l); i++ {
		c := l[i]
		if c >= 0x80 {
			continue
		}
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-' || c == '_') {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
