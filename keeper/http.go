// CLAUDE:SUMMARY chi HTTP API: canonical, equivalent, resolutions, feed lookup, health and Prometheus metrics.
package keeper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/feedcanon/canon"
	"github.com/hazyhaar/feedcanon/kit"
	"github.com/hazyhaar/feedcanon/registry"
	"github.com/hazyhaar/feedcanon/shield"
)

const maxRequestBody = 64 << 10

// Handler returns the HTTP API:
//
//	POST /v1/canonical    {"url": "..."}          → Resolution
//	POST /v1/equivalent   {"a": "...", "b": "..."} → canon.Equivalence
//	GET  /v1/resolutions?limit=N                  → recent resolution log
//	GET  /v1/feeds?url=...                        → registry entry
//	GET  /healthz
//	GET  /metrics
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	for _, mw := range shield.DefaultAPIStack(s.config.API) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := s.registry.DB().PingContext(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", s.metrics.handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/canonical", serve(s.resolveEndpoint(), decodeBody[resolveRequest]))
		r.Post("/equivalent", serve(s.equivalentEndpoint(), decodeBody[equivalentRequest]))
		r.Get("/resolutions", serve(s.resolutionsEndpoint(), func(r *http.Request) (any, error) {
			return &resolutionsRequest{Limit: queryInt(r, "limit", 50)}, nil
		}))
		r.Get("/feeds", serve(s.feedEndpoint(), func(r *http.Request) (any, error) {
			return &feedRequest{URL: r.URL.Query().Get("url")}, nil
		}))
	})
	return r
}

func serve(ep kit.Endpoint, decode func(*http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decode(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		ctx := kit.WithTransport(r.Context(), "http")
		ctx = kit.WithRequestID(ctx, middleware.GetReqID(r.Context()))
		ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)

		resp, err := ep(ctx, req)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func decodeBody[T any](r *http.Request) (any, error) {
	var req T
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return &req, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, canon.ErrUnresolved):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
