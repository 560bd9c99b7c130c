// Package shield provides HTTP hardening middleware for the feedcanon API:
// security headers for JSON responses, per-client rate limiting and a
// request body cap.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultAPIStack(shield.RateConfig{Rate: 2, Burst: 10}) {
//	    r.Use(mw)
//	}
package shield

import "net/http"

// DefaultAPIStack returns the standard middleware stack for a JSON API.
// Order: SecurityHeaders → MaxBody → RateLimiter (skipped when rc.Rate is 0).
func DefaultAPIStack(rc RateConfig) []func(http.Handler) http.Handler {
	stack := []func(http.Handler) http.Handler{
		SecurityHeaders(APIHeaders()),
		MaxBody(64 << 10),
	}
	if rc.Rate > 0 {
		stack = append(stack, NewRateLimiter(rc, "/healthz", "/metrics").Middleware)
	}
	return stack
}
