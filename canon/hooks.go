package canon

import (
	"context"

	"github.com/hazyhaar/feedcanon/compare"
	"github.com/hazyhaar/feedcanon/fetch"
)

// Phase names the step of a canonicalization an event belongs to.
type Phase string

const (
	PhaseInitial   Phase = "initial"
	PhaseSelf      Phase = "self"
	PhaseCandidate Phase = "candidate"
	PhaseUpgrade   Phase = "upgrade"
)

// FetchEvent is emitted after every fetch, successful or not.
type FetchEvent struct {
	Phase    Phase
	URL      string
	Response *fetch.Response // nil on transport failure
	Err      error
}

// MatchEvent is emitted when a fetched URL is confirmed to serve the
// same feed as the initial response.
type MatchEvent struct {
	Phase  Phase
	URL    string
	Method compare.Method
}

// ExistsEvent is emitted when the oracle knows a candidate.
type ExistsEvent struct {
	URL string
}

// Hooks are synchronous observers. A non-nil error from any hook aborts
// the canonicalization and is returned to the caller unchanged.
type Hooks struct {
	OnFetch  func(ctx context.Context, ev FetchEvent) error
	OnMatch  func(ctx context.Context, ev MatchEvent) error
	OnExists func(ctx context.Context, ev ExistsEvent) error
}

func (c *config) fireFetch(ctx context.Context, ev FetchEvent) error {
	for _, h := range c.hooks {
		if h.OnFetch == nil {
			continue
		}
		if err := h.OnFetch(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (c *config) fireMatch(ctx context.Context, ev MatchEvent) error {
	for _, h := range c.hooks {
		if h.OnMatch == nil {
			continue
		}
		if err := h.OnMatch(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (c *config) fireExists(ctx context.Context, ev ExistsEvent) error {
	for _, h := range c.hooks {
		if h.OnExists == nil {
			continue
		}
		if err := h.OnExists(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
