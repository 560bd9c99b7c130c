package canon

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/feedcanon/feed"
	"github.com/hazyhaar/feedcanon/fetch"
)

// route is one URL of the in-memory web.
type route struct {
	status   int // default 200
	body     string
	redirect string        // serve this URL's route instead, reporting it as final
	err      error         // transport failure
	delay    time.Duration // response latency
}

// fakeWeb is an in-memory Fetcher. Unknown URLs answer 404.
type fakeWeb struct {
	mu     sync.Mutex
	routes map[string]route
	calls  []string
}

func newWeb(routes map[string]route) *fakeWeb {
	return &fakeWeb{routes: routes}
}

func (w *fakeWeb) Fetch(ctx context.Context, req fetch.Request) (*fetch.Response, error) {
	w.mu.Lock()
	w.calls = append(w.calls, req.URL)
	w.mu.Unlock()

	url := req.URL
	for hops := 0; ; hops++ {
		w.mu.Lock()
		r, ok := w.routes[url]
		w.mu.Unlock()
		if !ok {
			return &fetch.Response{URL: url, StatusCode: 404}, nil
		}
		if r.delay > 0 {
			select {
			case <-time.After(r.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.err != nil {
			return nil, r.err
		}
		if r.redirect != "" {
			if hops >= 5 {
				return nil, fmt.Errorf("too many redirects")
			}
			url = r.redirect
			continue
		}
		status := r.status
		if status == 0 {
			status = 200
		}
		return &fetch.Response{URL: url, StatusCode: status, Body: []byte(r.body)}, nil
	}
}

func (w *fakeWeb) Calls() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.calls...)
}

// rss builds a small RSS document. buster lands in lastBuildDate, which
// the XML adapter's signature ignores.
func rss(self, buster string, items ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom"><channel><title>Example</title><link>https://example.com/</link>`)
	if self != "" {
		fmt.Fprintf(&b, `<atom:link rel="self" href="%s"/>`, self)
	}
	if buster != "" {
		fmt.Fprintf(&b, `<lastBuildDate>%s</lastBuildDate>`, buster)
	}
	for _, it := range items {
		fmt.Fprintf(&b, `<item><guid>%s</guid><title>%s</title></item>`, it, it)
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

func newEngine(web Fetcher, opts ...Option) *Engine[*feed.Document] {
	base := []Option{WithLogger(slog.New(slog.DiscardHandler))}
	return New[*feed.Document](feed.XML{}, web, append(base, opts...)...)
}
