package canon

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/feedcanon/fetch"
)

type fetchResult struct {
	resp *fetch.Response
	err  error
	done chan struct{}
}

// prefetcher hands out candidate fetch results strictly by index. With a
// limit of 1 it fetches lazily on demand; otherwise it runs up to limit
// fetches ahead of the consumer on an errgroup.
type prefetcher struct {
	client  Fetcher
	urls    []string
	results []*fetchResult

	cancel   context.CancelFunc
	g        *errgroup.Group
	launched chan struct{}
}

func newPrefetcher(ctx context.Context, client Fetcher, urls []string, limit int) *prefetcher {
	p := &prefetcher{client: client, urls: urls}
	if limit <= 1 || len(urls) <= 1 {
		return p
	}

	p.results = make([]*fetchResult, len(urls))
	for i := range p.results {
		p.results[i] = &fetchResult{done: make(chan struct{})}
	}
	pctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(pctx)
	g.SetLimit(limit)
	p.cancel, p.g, p.launched = cancel, g, make(chan struct{})

	go func() {
		defer close(p.launched)
		for i, u := range urls {
			r := p.results[i]
			if gctx.Err() != nil {
				r.err = gctx.Err()
				close(r.done)
				continue
			}
			g.Go(func() error {
				defer close(r.done)
				if err := gctx.Err(); err != nil {
					r.err = err
					return nil
				}
				r.resp, r.err = client.Fetch(gctx, fetch.Request{URL: u, Method: http.MethodGet})
				return nil
			})
		}
	}()
	return p
}

// get returns the result for urls[i], fetching it now in lazy mode.
func (p *prefetcher) get(ctx context.Context, i int) (*fetch.Response, error) {
	if p.results == nil {
		return p.client.Fetch(ctx, fetch.Request{URL: p.urls[i], Method: http.MethodGet})
	}
	r := p.results[i]
	select {
	case <-r.done:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// stop cancels outstanding fetches and waits for them to return.
func (p *prefetcher) stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.launched
	_ = p.g.Wait()
}
