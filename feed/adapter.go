// CLAUDE:SUMMARY Feed adapter contract (parse, self URL, signature) and the shared signature builder.
// CLAUDE:EXPORTS Adapter, BuildSignature, ErrEmpty, ErrFormat
// Package feed holds the adapters that let the canonicalization engine look
// inside feed documents without knowing any feed format itself.
//
// Two adapters ship: Gofeed (RSS, Atom and JSON Feed via mmcdole/gofeed) and
// XML (a small encoding/xml parser for RSS 2.0, RSS 1.0/RDF and Atom).
package feed

import (
	"errors"
	"strings"
)

var (
	// ErrEmpty is returned when the body holds no document.
	ErrEmpty = errors.New("feed: empty data")
	// ErrFormat is returned when the body is not a recognized feed format.
	ErrFormat = errors.New("feed: unknown format")
)

// Adapter parses feed bodies into F and extracts what the engine needs.
// Implementations must be deterministic, side-effect free and safe for
// concurrent use.
type Adapter[F any] interface {
	// Parse decodes a fetched body. Any error means "not a feed".
	Parse(body []byte) (F, error)
	// SelfURL returns the URL the feed declares for itself, possibly
	// relative, or "" when it declares none.
	SelfURL(f F) string
	// Signature returns a comparable identity for the feed content. Two
	// copies of the same feed served with different self links,
	// timestamps or cache-busting values must give the same signature.
	// "" means no signature could be derived.
	Signature(f F) string
}

// BuildSignature combines a whitespace-collapsed title with the ordered item
// identifiers. It returns "" when there is neither a title nor any item.
func BuildSignature(title string, ids []string) string {
	title = strings.Join(strings.Fields(title), " ")
	var b strings.Builder
	b.WriteString(title)
	n := 0
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		b.WriteByte('\n')
		b.WriteString(id)
		n++
	}
	if title == "" && n == 0 {
		return ""
	}
	return b.String()
}
