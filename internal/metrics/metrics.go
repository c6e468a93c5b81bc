// Package metrics exposes the sync orchestrator's per-provider and global
// counters as Prometheus collectors, in the same promauto-against-a-
// private-registry style the rest of this codebase's services use.
// Mounting the resulting handler on an HTTP mux is left to the host
// application; this core has no HTTP surface of its own.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SyncMetrics collects counters the sync orchestrator updates after every
// protected provider call: attempts, successes, failures and response
// time, labeled by provider, plus an unlabeled sync-cycle duration.
type SyncMetrics struct {
	registry *prometheus.Registry

	attempts        *prometheus.CounterVec
	successes       *prometheus.CounterVec
	failures        *prometheus.CounterVec
	responseTime    *prometheus.HistogramVec
	syncDuration    prometheus.Histogram

	mu               sync.RWMutex
	lastSuccessTime  map[string]time.Time
	lastFailureTime  map[string]time.Time
	nextScheduled    time.Time
}

// New constructs a SyncMetrics backed by a private registry, so this
// core's metrics never collide with a host application's default
// registry.
func New() *SyncMetrics {
	registry := prometheus.NewRegistry()

	return &SyncMetrics{
		registry: registry,
		attempts: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "sync_provider_attempts_total",
			Help: "Total number of protected provider calls attempted by the sync orchestrator",
		}, []string{"provider"}),
		successes: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "sync_provider_successes_total",
			Help: "Total number of protected provider calls that succeeded",
		}, []string{"provider"}),
		failures: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "sync_provider_failures_total",
			Help: "Total number of protected provider calls that failed",
		}, []string{"provider"}),
		responseTime: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sync_provider_response_seconds",
			Help:    "Response time of protected provider calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		syncDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "sync_cycle_duration_seconds",
			Help:    "Total duration of a sync orchestrator cycle",
			Buckets: prometheus.DefBuckets,
		}),
		lastSuccessTime: make(map[string]time.Time),
		lastFailureTime: make(map[string]time.Time),
	}
}

// RecordAttempt records a protected call's outcome and response time for
// a provider.
func (m *SyncMetrics) RecordAttempt(provider string, duration time.Duration, success bool) {
	m.attempts.WithLabelValues(provider).Inc()
	m.responseTime.WithLabelValues(provider).Observe(duration.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.successes.WithLabelValues(provider).Inc()
		m.lastSuccessTime[provider] = time.Now()
	} else {
		m.failures.WithLabelValues(provider).Inc()
		m.lastFailureTime[provider] = time.Now()
	}
}

// RecordSyncCycle records one sync cycle's total duration and the next
// time the orchestrator expects to run, if scheduled.
func (m *SyncMetrics) RecordSyncCycle(duration time.Duration, nextScheduled time.Time) {
	m.syncDuration.Observe(duration.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextScheduled = nextScheduled
}

// ProviderSnapshot is the per-provider view returned by getSyncMetrics.
type ProviderSnapshot struct {
	LastSuccessTime time.Time
	LastFailureTime time.Time
}

// Snapshot returns the last-success/last-failure times the orchestrator's
// getSyncMetrics surface reports, plus the nextScheduled value last passed
// to RecordSyncCycle. The sync orchestrator passes the zero time on every
// cycle, scheduled or not, so the time it reports here is always zero.
func (m *SyncMetrics) Snapshot() (map[string]ProviderSnapshot, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]ProviderSnapshot)
	for provider, t := range m.lastSuccessTime {
		s := out[provider]
		s.LastSuccessTime = t
		out[provider] = s
	}
	for provider, t := range m.lastFailureTime {
		s := out[provider]
		s.LastFailureTime = t
		out[provider] = s
	}
	return out, m.nextScheduled
}

// Handler returns an http.Handler serving this collector's registry in
// the Prometheus exposition format, for a host application to mount.
func (m *SyncMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
