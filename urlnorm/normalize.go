// CLAUDE:SUMMARY Pure textual URL normalization driven by a Profile, plus tracking-parameter stripping.
// CLAUDE:EXPORTS Normalize, StripParams
// Package urlnorm applies ordered, configurable textual transforms to URLs so
// that aliases of one feed URL collapse onto the same string.
//
// Normalization is a pure function of (URL, Profile). Steps run in a fixed
// order: authority, path, fragment, query, then encoding and Unicode, so the
// structural steps see decoded structure.
package urlnorm

import (
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
	"golang.org/x/text/unicode/norm"
)

const textDirective = ":~:"

// Normalize applies p to raw. Input that does not parse as an absolute
// (or protocol-relative) URL is returned unchanged.
func Normalize(raw string, p Profile) string {
	u, err := url.Parse(raw)
	if err != nil || u.Opaque != "" || u.Host == "" {
		return raw
	}

	// Authority.
	scheme := strings.ToLower(u.Scheme)
	var userinfo string
	if u.User != nil && !p.StripCredentials {
		userinfo = u.User.String() + "@"
	}
	host, port := u.Hostname(), u.Port()
	if p.LowercaseHost {
		host = strings.ToLower(host)
	}
	if p.StripWWW {
		host = stripWWW(host)
	}
	if p.StripDefaultPort && isDefaultPort(scheme, port) {
		port = ""
	}

	// Path.
	path := u.EscapedPath()
	if p.CollapseSlashes {
		path = collapseSlashes(path)
	}
	if p.StripTrailingSlash {
		path = strings.TrimRight(path, "/")
	}

	// Fragment.
	frag := u.EscapedFragment()
	if p.StripFragment {
		frag = ""
	} else if p.StripTextFragment {
		if i := strings.Index(frag, textDirective); i >= 0 {
			frag = frag[:i]
		}
	}

	// Query.
	hadQuery := u.ForceQuery || u.RawQuery != ""
	pairs := splitQuery(u.RawQuery)
	if len(p.StripParams) > 0 {
		pairs = filterParams(pairs, newParamMatcher(p.StripParams))
	}
	if p.SortQuery {
		sort.SliceStable(pairs, func(i, j int) bool {
			return pairKey(pairs[i]) < pairKey(pairs[j])
		})
	}

	// Encoding and Unicode last.
	if p.NormalizeEncoding {
		path = normalizeEscapes(path)
		frag = normalizeEscapes(frag)
		for i := range pairs {
			pairs[i] = normalizeEscapes(pairs[i])
		}
	}
	if p.NormalizeUnicode {
		host = asciiHost(host)
		path = escapeNonASCII(path)
		frag = escapeNonASCII(frag)
		for i := range pairs {
			pairs[i] = escapeNonASCII(pairs[i])
		}
	}
	query := strings.Join(pairs, "&")

	var b strings.Builder
	b.Grow(len(raw))
	if !p.StripScheme {
		if scheme != "" {
			b.WriteString(scheme)
			b.WriteByte(':')
		}
		b.WriteString("//")
	}
	b.WriteString(userinfo)
	if strings.Contains(host, ":") {
		b.WriteByte('[')
		b.WriteString(host)
		b.WriteByte(']')
	} else {
		b.WriteString(host)
	}
	if port != "" {
		b.WriteByte(':')
		b.WriteString(port)
	}
	b.WriteString(path)
	if query != "" {
		b.WriteByte('?')
		b.WriteString(query)
	} else if hadQuery && !p.DropEmptyQuery {
		b.WriteByte('?')
	}
	if frag != "" {
		b.WriteByte('#')
		b.WriteString(frag)
	}
	return b.String()
}

// StripParams removes the named query parameters (same matching rules as
// Profile.StripParams) and drops the "?" if nothing is left. Everything
// else about the URL is preserved. Unparseable input is returned unchanged.
func StripParams(raw string, params []string) string {
	if len(params) == 0 {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || (u.RawQuery == "" && !u.ForceQuery) {
		return raw
	}
	pairs := filterParams(splitQuery(u.RawQuery), newParamMatcher(params))
	u.RawQuery = strings.Join(pairs, "&")
	u.ForceQuery = false
	return u.String()
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}

func stripWWW(host string) string {
	if len(host) > 4 && strings.EqualFold(host[:4], "www.") && strings.Contains(host[4:], ".") {
		return host[4:]
	}
	return host
}

func collapseSlashes(path string) string {
	if !strings.Contains(path, "//") {
		return path
	}
	var b strings.Builder
	b.Grow(len(path))
	prevSlash := false
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c == '/' && prevSlash {
			continue
		}
		prevSlash = c == '/'
		b.WriteByte(c)
	}
	return b.String()
}

// splitQuery splits a raw query on "&", dropping empty segments. Pairs stay
// in their raw (escaped) form.
func splitQuery(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, "&")
	out := parts[:0]
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func pairKey(pair string) string {
	key, _, _ := strings.Cut(pair, "=")
	if k, err := url.QueryUnescape(key); err == nil {
		return k
	}
	return key
}

type paramMatcher struct {
	exact    map[string]bool
	prefixes []string
}

func newParamMatcher(params []string) paramMatcher {
	m := paramMatcher{exact: make(map[string]bool, len(params))}
	for _, p := range params {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			m.prefixes = append(m.prefixes, prefix)
			continue
		}
		m.exact[p] = true
	}
	return m
}

func (m paramMatcher) match(key string) bool {
	key = strings.ToLower(key)
	if m.exact[key] {
		return true
	}
	for _, prefix := range m.prefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

func filterParams(pairs []string, m paramMatcher) []string {
	out := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		if !m.match(pairKey(pair)) {
			out = append(out, pair)
		}
	}
	return out
}

func isUnreserved(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

const upperHex = "0123456789ABCDEF"

// normalizeEscapes decodes %XX sequences that encode unreserved characters
// and uppercases the hex digits of every other sequence. Reserved
// characters such as %2F stay encoded; malformed sequences pass through.
func normalizeEscapes(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '%' && i+2 < len(s) {
			hi, ok1 := unhex(s[i+1])
			lo, ok2 := unhex(s[i+2])
			if ok1 && ok2 {
				v := hi<<4 | lo
				if isUnreserved(v) {
					b.WriteByte(v)
				} else {
					b.WriteByte('%')
					b.WriteByte(upperHex[v>>4])
					b.WriteByte(upperHex[v&0x0f])
				}
				i += 2
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func escapeNonASCII(s string) string {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	if ascii {
		return s
	}
	s = norm.NFC.String(s)
	var b strings.Builder
	b.Grow(len(s) * 2)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= utf8.RuneSelf {
			b.WriteByte('%')
			b.WriteByte(upperHex[c>>4])
			b.WriteByte(upperHex[c&0x0f])
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// asciiHost converts an internationalized hostname to its NFC, ASCII
// compatible form. ASCII hosts and hosts IDNA rejects are left alone.
func asciiHost(host string) string {
	ascii := true
	for i := 0; i < len(host); i++ {
		if host[i] >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	if ascii {
		return host
	}
	host = norm.NFC.String(host)
	if out, err := idna.Lookup.ToASCII(host); err == nil {
		return out
	}
	return host
}
