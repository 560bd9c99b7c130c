package feed

import (
	"bytes"
	"fmt"

	"github.com/mmcdole/gofeed"
)

// Gofeed adapts github.com/mmcdole/gofeed. It understands RSS 0.9x–2.0,
// RSS 1.0, Atom and JSON Feed, and detects the format itself.
type Gofeed struct{}

// Parse decodes body with a fresh gofeed parser. gofeed.Parser keeps
// per-parse state, so one is built per call.
func (Gofeed) Parse(body []byte) (*gofeed.Feed, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmpty
	}
	f, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return f, nil
}

// SelfURL returns the feed's declared self link (atom:link rel="self" in
// RSS, link rel="self" in Atom, feed_url in JSON Feed).
func (Gofeed) SelfURL(f *gofeed.Feed) string {
	if f == nil {
		return ""
	}
	return f.FeedLink
}

// Signature is the title plus each item's GUID, or its link when the GUID
// is missing.
func (Gofeed) Signature(f *gofeed.Feed) string {
	if f == nil {
		return ""
	}
	ids := make([]string, 0, len(f.Items))
	for _, it := range f.Items {
		if it == nil {
			continue
		}
		id := it.GUID
		if id == "" {
			id = it.Link
		}
		ids = append(ids, id)
	}
	return BuildSignature(f.Title, ids)
}
