// Package observability holds the process-wide Prometheus collectors shared
// by the API server and the block processor.
package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry groups the API and event collectors.
type Registry struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
	events    *prometheus.CounterVec
}

var (
	registryOnce sync.Once
	registry     *Registry
)

// Default returns the lazily registered collectors.
func Default() *Registry {
	registryOnce.Do(func() {
		registry = &Registry{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdp",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "API requests by module, method and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "cdp",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "API handler latency.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdp",
				Subsystem: "api",
				Name:      "throttled_total",
				Help:      "API requests rejected before reaching a handler.",
			}, []string{"module", "reason"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdp",
				Subsystem: "events",
				Name:      "committed_total",
				Help:      "Committed chain events by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(registry.requests, registry.latency, registry.throttles, registry.events)
	})
	return registry
}

func orUnknown(v string) string {
	if v = strings.TrimSpace(v); v == "" {
		return "unknown"
	}
	return v
}

// Observe records a served request with the status code actually written.
func (r *Registry) Observe(module, method string, status int, took time.Duration) {
	if r == nil {
		return
	}
	module, method = orUnknown(module), orUnknown(method)
	r.requests.WithLabelValues(module, method, strconv.Itoa(status)).Inc()
	r.latency.WithLabelValues(module, method).Observe(took.Seconds())
}

// RecordThrottle counts a rejected request, e.g. reason "rate_limit" or
// "pool_full".
func (r *Registry) RecordThrottle(module, reason string) {
	if r == nil {
		return
	}
	r.throttles.WithLabelValues(orUnknown(module), orUnknown(reason)).Inc()
}

// RecordEvent counts one committed event.
func (r *Registry) RecordEvent(eventType string) {
	if r == nil {
		return
	}
	r.events.WithLabelValues(orUnknown(eventType)).Inc()
}
