// CLAUDE:SUMMARY Prometheus metrics for resolutions, fetches, matches and equivalence checks, fed by engine hooks.
package keeper

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/feedcanon/canon"
)

// metrics uses its own registry so several services can live in one
// process (tests).
type metrics struct {
	reg *prometheus.Registry

	resolutions *prometheus.CounterVec
	duration    prometheus.Histogram
	fetches     *prometheus.CounterVec
	matches     *prometheus.CounterVec
	oracleHits  prometheus.Counter
	equivalence *prometheus.CounterVec
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &metrics{
		reg: reg,
		resolutions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "feedcanon",
				Name:      "resolutions_total",
				Help:      "Resolutions by outcome (resolved, cached, unresolved, failed)",
			},
			[]string{"status"},
		),
		duration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "feedcanon",
				Name:      "resolution_duration_seconds",
				Help:      "Duration of engine resolutions in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		fetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "feedcanon",
				Name:      "fetches_total",
				Help:      "Engine fetches by phase and outcome (ok, status, error)",
			},
			[]string{"phase", "outcome"},
		),
		matches: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "feedcanon",
				Name:      "matches_total",
				Help:      "Content matches by phase and method",
			},
			[]string{"phase", "method"},
		),
		oracleHits: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "feedcanon",
				Name:      "oracle_hits_total",
				Help:      "Candidates already known to the registry",
			},
		),
		equivalence: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "feedcanon",
				Name:      "equivalence_checks_total",
				Help:      "Equivalence checks by deciding method (none when not equivalent)",
			},
			[]string{"method"},
		),
	}
}

// hooks observes the engine. Metric hooks never fail.
func (m *metrics) hooks() canon.Hooks {
	return canon.Hooks{
		OnFetch: func(_ context.Context, ev canon.FetchEvent) error {
			outcome := "ok"
			switch {
			case ev.Err != nil:
				outcome = "error"
			case !ev.Response.OK():
				outcome = "status"
			}
			m.fetches.WithLabelValues(string(ev.Phase), outcome).Inc()
			return nil
		},
		OnMatch: func(_ context.Context, ev canon.MatchEvent) error {
			m.matches.WithLabelValues(string(ev.Phase), string(ev.Method)).Inc()
			return nil
		},
		OnExists: func(context.Context, canon.ExistsEvent) error {
			m.oracleHits.Inc()
			return nil
		},
	}
}

func (m *metrics) recordEquivalence(eq canon.Equivalence) {
	method := string(eq.Method)
	if !eq.Equivalent || method == "" {
		method = "none"
	}
	m.equivalence.WithLabelValues(method).Inc()
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
