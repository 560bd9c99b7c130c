package canon

import (
	"context"
	"net/http"

	"github.com/hazyhaar/feedcanon/fetch"
	"github.com/hazyhaar/feedcanon/urlnorm"
)

// Method names how two URLs were found equivalent.
type Method string

const (
	MethodNone      Method = ""
	MethodNormalize Method = "normalize"
	MethodRedirect  Method = "redirect"
	MethodHash      Method = "hash"
	MethodSignature Method = "signature"
)

// Equivalence is the answer of Equivalent.
type Equivalence struct {
	Equivalent bool   `json:"equivalent"`
	Method     Method `json:"method,omitempty"`
}

// Equivalent reports whether a and b are the same feed, cheapest test
// first: textual equality under the equivalence profile, redirects that
// meet, equal body digests, then equal adapter signatures. A failed
// verification or fetch means "not equivalent". The error is non-nil only
// when ctx ends.
func (e *Engine[F]) Equivalent(ctx context.Context, a, b string) (Equivalence, error) {
	profile := *e.cfg.equivalence
	na, nb := urlnorm.Normalize(a, profile), urlnorm.Normalize(b, profile)
	if na == nb {
		return Equivalence{Equivalent: true, Method: MethodNormalize}, nil
	}

	log := e.cfg.logger.With("a", a, "b", b)
	for _, u := range []string{a, b} {
		if err := e.cfg.verifier(u); err != nil {
			log.Debug("canon: equivalence verification failed", "url", u, "error", err)
			return Equivalence{}, nil
		}
	}

	ra, err := e.fetchPlain(ctx, a)
	if err != nil || ra == nil {
		return Equivalence{}, err
	}
	rb, err := e.fetchPlain(ctx, b)
	if err != nil || rb == nil {
		return Equivalence{}, err
	}

	fa, fb := finalURL(ra, a), finalURL(rb, b)
	nfa, nfb := urlnorm.Normalize(fa, profile), urlnorm.Normalize(fb, profile)
	if nfa == nfb || nfa == nb || nfb == na {
		return Equivalence{Equivalent: true, Method: MethodRedirect}, nil
	}

	if e.cfg.hasher.Sum(ra.Body) == e.cfg.hasher.Sum(rb.Body) {
		return Equivalence{Equivalent: true, Method: MethodHash}, nil
	}

	pa, err := parseFeed(e.adapter, ra.Body)
	if err != nil {
		return Equivalence{}, nil
	}
	pb, err := parseFeed(e.adapter, rb.Body)
	if err != nil {
		return Equivalence{}, nil
	}
	if sa := signature(e.adapter.Signature, pa); sa != "" && sa == signature(e.adapter.Signature, pb) {
		return Equivalence{Equivalent: true, Method: MethodSignature}, nil
	}
	return Equivalence{}, nil
}

// fetchPlain fetches without hooks. Only ctx errors are returned.
func (e *Engine[F]) fetchPlain(ctx context.Context, url string) (*fetch.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := e.client.Fetch(ctx, fetch.Request{URL: url, Method: http.MethodGet})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil || !resp.OK() {
		return nil, nil
	}
	return resp, nil
}

func finalURL(resp *fetch.Response, requested string) string {
	if resp.URL == "" {
		return requested
	}
	return resp.URL
}

func signature[F any](sig func(F) string, f F) (s string) {
	defer func() {
		if recover() != nil {
			s = ""
		}
	}()
	return sig(f)
}
