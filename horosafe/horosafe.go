// CLAUDE:SUMMARY Outbound URL safety (SSRF guard for feed fetches) and bounded body reads.
// Package horosafe guards the fetch path of feedcanon: every URL the engine or
// the equivalence checker is about to request can be checked against private,
// loopback, link-local and metadata addresses, and response bodies are read
// with a hard cap.
package horosafe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// MaxResponseBody is the default cap for feed body reads (10 MiB).
const MaxResponseBody int64 = 10 << 20

// ErrSSRF is returned when a URL targets a private or loopback address.
var ErrSSRF = errors.New("horosafe: URL targets a private or loopback address")

// ErrUnsafeScheme is returned when a URL uses a non-HTTP(S) scheme.
var ErrUnsafeScheme = errors.New("horosafe: only http and https schemes are allowed")

// ErrTooLarge is returned by LimitedReadAll when the reader exceeds its cap.
var ErrTooLarge = errors.New("horosafe: response too large")

// LookupFunc resolves a hostname to addresses. It matches
// (*net.Resolver).LookupHost so tests can substitute a static table.
type LookupFunc func(ctx context.Context, host string) ([]string, error)

var blockedPrefixes = mustPrefixes(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.0.0.0/24",
	"192.168.0.0/16",
	"198.18.0.0/15",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustPrefixes(cidrs ...string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		out = append(out, netip.MustParsePrefix(c))
	}
	return out
}

// ValidateURL checks that rawURL uses http/https, has a hostname, and does
// not resolve to a private or loopback address. It is the default verifier
// for feed fetches and for the equivalence checker.
func ValidateURL(rawURL string) error {
	return ValidateURLContext(context.Background(), rawURL, net.DefaultResolver.LookupHost)
}

// ValidateURLContext is ValidateURL with an explicit context and resolver.
// A DNS failure is not an error here: the fetch itself will fail on
// connect, and an unresolvable host cannot reach an internal address.
func ValidateURLContext(ctx context.Context, rawURL string, lookup LookupFunc) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("horosafe: invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("horosafe: URL has no host")
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return ErrSSRF
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if IsPrivateAddr(addr) {
			return ErrSSRF
		}
		return nil
	}

	if lookup == nil {
		return nil
	}
	addrs, err := lookup(ctx, host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if addr, err := netip.ParseAddr(a); err == nil && IsPrivateAddr(addr) {
			return ErrSSRF
		}
	}
	return nil
}

// ValidateScheme only checks that rawURL is an http(s) URL with a host.
// It is the verifier used when private addresses are explicitly allowed.
func ValidateScheme(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("horosafe: invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrUnsafeScheme
	}
	if u.Hostname() == "" {
		return fmt.Errorf("horosafe: URL has no host")
	}
	return nil
}

// IsPrivateAddr reports whether addr is loopback, link-local, unspecified,
// or inside one of the private / carrier-grade / benchmark ranges.
func IsPrivateAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified() || addr.IsPrivate() {
		return true
	}
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// LimitedReadAll reads at most maxBytes from r. It returns ErrTooLarge if
// the limit is exceeded rather than silently truncating, since a truncated
// feed body would never compare equal to its full copy.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = MaxResponseBody
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}
