// Package metrics defines the Prometheus collectors exported by the mediator.
// A nil *Metrics is valid and records nothing, so components can be built in
// tests without a registry.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mediator"

// Metrics bundles every collector used by the application.
type Metrics struct {
	TokenCache       *prometheus.CounterVec
	TokenRefreshes   *prometheus.CounterVec
	UpstreamRequests *prometheus.HistogramVec
	DanglingRefs     *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. Passing nil uses
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		TokenCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_cache_lookups_total",
			Help:      "Token cache lookups by result (hit or miss).",
		}, []string{"result"}),
		TokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Calls to the provider token endpoint by outcome.",
		}, []string{"outcome"}),
		UpstreamRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of provider data calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint", "status"}),
		DanglingRefs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dangling_references_total",
			Help:      "Relationships that pointed at entities missing from the included list.",
		}, []string{"relation"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Inbound HTTP requests by route and status code.",
		}, []string{"route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Inbound HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	reg.MustRegister(m.TokenCache, m.TokenRefreshes, m.UpstreamRequests, m.DanglingRefs, m.HTTPRequests, m.HTTPDuration)
	return m
}

// TokenCacheHit records a lookup served from the cache.
func (m *Metrics) TokenCacheHit() {
	if m == nil {
		return
	}
	m.TokenCache.WithLabelValues("hit").Inc()
}

// TokenCacheMiss records a lookup that needed a refresh.
func (m *Metrics) TokenCacheMiss() {
	if m == nil {
		return
	}
	m.TokenCache.WithLabelValues("miss").Inc()
}

// TokenRefreshed records one call to the token endpoint.
func (m *Metrics) TokenRefreshed(ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.TokenRefreshes.WithLabelValues(outcome).Inc()
}

// ObserveUpstream records a provider data call. status is 0 for transport
// failures.
func (m *Metrics) ObserveUpstream(endpoint string, status int, d time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.UpstreamRequests.WithLabelValues(endpoint, label).Observe(d.Seconds())
}

// DanglingReference implements catalog.Observer.
func (m *Metrics) DanglingReference(relation string) {
	if m == nil {
		return
	}
	m.DanglingRefs.WithLabelValues(relation).Inc()
}

// ObserveHTTP records an inbound request.
func (m *Metrics) ObserveHTTP(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}
