// CLAUDE:SUMMARY Transport-agnostic endpoints shared by the HTTP API and the MCP tools.
package keeper

import (
	"context"

	"github.com/hazyhaar/feedcanon/kit"
)

type resolveRequest struct {
	URL string `json:"url"`
}

type equivalentRequest struct {
	A string `json:"a"`
	B string `json:"b"`
}

type resolutionsRequest struct {
	Limit int `json:"limit,omitempty"`
}

type feedRequest struct {
	URL string `json:"url"`
}

// endpoint wraps fn with the standard middleware stack. Every call is
// bounded by Config.Timeout, whichever transport it came through.
func (s *Service) endpoint(name string, fn kit.Endpoint) kit.Endpoint {
	return kit.Chain(
		kit.Recovery(s.logger),
		kit.Logging(s.logger, name),
		kit.Timeout(s.config.Timeout),
	)(fn)
}

func (s *Service) resolveEndpoint() kit.Endpoint {
	return s.endpoint("resolve", func(ctx context.Context, req any) (any, error) {
		return s.Resolve(ctx, req.(*resolveRequest).URL)
	})
}

func (s *Service) equivalentEndpoint() kit.Endpoint {
	return s.endpoint("equivalent", func(ctx context.Context, req any) (any, error) {
		r := req.(*equivalentRequest)
		return s.Equivalent(ctx, r.A, r.B)
	})
}

func (s *Service) resolutionsEndpoint() kit.Endpoint {
	return s.endpoint("resolutions", func(ctx context.Context, req any) (any, error) {
		list, err := s.Resolutions(ctx, req.(*resolutionsRequest).Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"resolutions": list}, nil
	})
}

func (s *Service) feedEndpoint() kit.Endpoint {
	return s.endpoint("feed", func(ctx context.Context, req any) (any, error) {
		return s.Feed(ctx, req.(*feedRequest).URL)
	})
}
