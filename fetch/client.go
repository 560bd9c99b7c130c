// CLAUDE:SUMMARY SSRF-guarded, rate-limited HTTP client returning final URL, status, headers and a size-capped body.
// CLAUDE:EXPORTS Client, Config, Request, Response, New, ErrBlocked
// Package fetch is the HTTP collaborator of the canonicalization engine.
//
// Every request URL and every redirect hop is checked by a URL validator
// (horosafe.ValidateURL by default) before any connection is made. Bodies
// are read up to a hard cap. A response is returned for any status code;
// callers decide what a non-2xx status means.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hazyhaar/feedcanon/horosafe"
)

// ErrBlocked is returned when the validator rejects the URL or a redirect.
var ErrBlocked = errors.New("fetch: URL blocked")

const defaultAccept = "application/rss+xml, application/atom+xml, application/feed+json, " +
	"application/xml;q=0.9, text/xml;q=0.8, application/json;q=0.7, */*;q=0.5"

// Request describes one fetch. Method defaults to GET.
type Request struct {
	URL    string
	Method string
	Header http.Header
}

// Response is the outcome of a fetch that reached a server.
type Response struct {
	URL        string // final URL after redirects
	StatusCode int
	Body       []byte
	Header     http.Header
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Config configures the client.
type Config struct {
	Timeout      time.Duration // per request. Default: 30s.
	MaxBytes     int64         // body cap. Default: horosafe.MaxResponseBody.
	UserAgent    string
	MaxRedirects int // Default: 5.
	// Rate limits outbound requests per second. 0 means unlimited.
	Rate  float64
	Burst int // Default: 1 when Rate > 0.
	// URLValidator validates URLs before fetch and on each redirect.
	// Default: horosafe.ValidateURL.
	URLValidator func(string) error
	// Transport overrides the HTTP transport (tests, proxies).
	Transport http.RoundTripper
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = horosafe.MaxResponseBody
	}
	if c.UserAgent == "" {
		c.UserAgent = "feedcanon/1.0 (+https://github.com/hazyhaar/feedcanon)"
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = 5
	}
	if c.Rate > 0 && c.Burst <= 0 {
		c.Burst = 1
	}
	if c.URLValidator == nil {
		c.URLValidator = horosafe.ValidateURL
	}
}

// Client performs feed fetches. Safe for concurrent use.
type Client struct {
	client  *http.Client
	config  Config
	limiter *rate.Limiter
}

// New creates a Client with SSRF protection on redirects.
func New(cfg Config) *Client {
	cfg.defaults()
	validate := cfg.URLValidator
	maxRedirects := cfg.MaxRedirects
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst)
	}
	return &Client{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("%w: redirect to %s: %v", ErrBlocked, req.URL.Redacted(), err)
				}
				return nil
			},
		},
		config:  cfg,
		limiter: limiter,
	}
}

// Fetch performs req. Non-2xx responses are returned with a nil error.
// Transport failures, blocked URLs and oversized bodies return an error.
func (c *Client) Fetch(ctx context.Context, req Request) (*Response, error) {
	if err := c.config.URLValidator(req.URL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBlocked, err)
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	if method != http.MethodGet && method != http.MethodHead {
		return nil, fmt.Errorf("fetch: method %s not supported", method)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("fetch: rate limit: %w", err)
	}

	hreq, err := http.NewRequestWithContext(ctx, method, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: new request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	if hreq.Header.Get("User-Agent") == "" {
		hreq.Header.Set("User-Agent", c.config.UserAgent)
	}
	if hreq.Header.Get("Accept") == "" {
		hreq.Header.Set("Accept", defaultAccept)
	}

	resp, err := c.client.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("fetch: %s %s: %w", method, hreq.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	out := &Response{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
	}
	if method == http.MethodHead {
		return out, nil
	}
	body, err := horosafe.LimitedReadAll(resp.Body, c.config.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}
	out.Body = body
	return out, nil
}
