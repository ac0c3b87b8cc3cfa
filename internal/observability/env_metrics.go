package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EnvCollector bundles Prometheus metrics for the RL environment API: request
// counters and latencies per route, plus episode lifecycle accounting.
type EnvCollector struct {
	gatherer prometheus.Gatherer

	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	EpisodesActive  prometheus.Gauge
	EpisodeOutcomes *prometheus.CounterVec
	EpisodeSteps    prometheus.Histogram
}

// NewEnvCollector registers environment API metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewEnvCollector(reg prometheus.Registerer) (*EnvCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "envapi_requests_total",
		Help: "Total HTTP requests handled by the environment API.",
	}, []string{"route", "method", "code"})
	requests, err := registerCounterVec(reg, requests, "envapi_requests_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "envapi_request_duration_seconds",
		Help:    "HTTP request latency of the environment API.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"route", "method"})
	durations, err = registerHistogramVec(reg, durations, "envapi_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	active, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "envapi_episodes_active",
		Help: "Number of currently open RL episodes.",
	}), "envapi_episodes_active")
	if err != nil {
		return nil, err
	}

	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "envapi_episode_outcomes_total",
		Help: "Finished episodes by outcome (delivered, lost, timed_out, truncated).",
	}, []string{"outcome"})
	outcomes, err = registerCounterVec(reg, outcomes, "envapi_episode_outcomes_total")
	if err != nil {
		return nil, err
	}

	steps := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "envapi_episode_steps",
		Help:    "Steps taken per finished episode.",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
	})
	steps, err = registerHistogram(reg, steps, "envapi_episode_steps")
	if err != nil {
		return nil, err
	}

	return &EnvCollector{
		gatherer:        gatherer,
		Requests:        requests,
		RequestDuration: durations,
		EpisodesActive:  active,
		EpisodeOutcomes: outcomes,
		EpisodeSteps:    steps,
	}, nil
}

// Gatherer exposes the underlying gatherer, usually to share one /metrics
// endpoint with the simulation collector.
func (c *EnvCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Middleware instruments an HTTP handler under a fixed route label. Routes
// that hijack the connection must not be wrapped: the recorder hides the
// http.Hijacker interface from upgraders.
func (c *EnvCollector) Middleware(route string, next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)
		if c.Requests != nil {
			c.Requests.WithLabelValues(route, r.Method, strconv.Itoa(rec.code)).Inc()
		}
		if c.RequestDuration != nil {
			c.RequestDuration.WithLabelValues(route, r.Method).Observe(elapsed.Seconds())
		}
	})
}

// EpisodeStarted records a newly opened episode.
func (c *EnvCollector) EpisodeStarted() {
	if c == nil || c.EpisodesActive == nil {
		return
	}
	c.EpisodesActive.Inc()
}

// EpisodeFinished records a closed episode with its outcome and step count.
// Episodes abandoned without a terminal step pass an empty outcome.
func (c *EnvCollector) EpisodeFinished(outcome string, steps int) {
	if c == nil {
		return
	}
	if c.EpisodesActive != nil {
		c.EpisodesActive.Dec()
	}
	if outcome == "" {
		return
	}
	if c.EpisodeOutcomes != nil {
		c.EpisodeOutcomes.WithLabelValues(outcome).Inc()
	}
	if c.EpisodeSteps != nil {
		c.EpisodeSteps.Observe(float64(steps))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
