// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors groups the service metrics on a private registry so tests can
// build as many as they like.
type Collectors struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	transitions *prometheus.CounterVec
	searches    *prometheus.CounterVec
}

// New registers the collectors, plus the Go runtime and process collectors.
func New() *Collectors {
	reg := prometheus.NewRegistry()
	c := &Collectors{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proposaldesk",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "proposaldesk",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proposaldesk",
			Name:      "stage_transitions_total",
			Help:      "Stage status writes by stage and resulting status.",
		}, []string{"stage", "status"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proposaldesk",
			Name:      "search_requests_total",
			Help:      "Search requests by backend that answered.",
		}, []string{"backend"}),
	}
	reg.MustRegister(
		c.requests,
		c.latency,
		c.transitions,
		c.searches,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveRequest records one served request.
func (c *Collectors) ObserveRequest(route, method string, code int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	c.latency.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Transition records a stage status write, e.g. ("supervisor", "SUP_APPROVED").
func (c *Collectors) Transition(stage, status string) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(stage, status).Inc()
}

// Search records which backend served a search.
func (c *Collectors) Search(backend string) {
	if c == nil {
		return
	}
	c.searches.WithLabelValues(backend).Inc()
}

// Registry exposes the underlying registry for tests.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
