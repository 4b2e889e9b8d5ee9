// Package observability provides Prometheus metrics for scans and their external calls.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	registry *prometheus.Registry

	// Scan metrics
	ScansTotal      prometheus.Counter
	ScanDuration    prometheus.Histogram
	ScanOwners      prometheus.Histogram
	OwnersScanned   *prometheus.CounterVec
	ItemFailures    *prometheus.CounterVec
	ExternalCalls   *prometheus.CounterVec
	ExternalLatency *prometheus.HistogramVec
	CacheLookups    *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "approval_scope"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ScansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "runs_total",
			Help:      "Total number of scans run",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Wall time of a scan",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		ScanOwners: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "owners_per_scan",
			Help:      "Owner addresses requested per scan",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
		OwnersScanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "owners_total",
			Help:      "Owners scanned by outcome",
		}, []string{"outcome"}),
		ItemFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "item_failures_total",
			Help:      "Logs or approvals skipped by failure kind",
		}, []string{"kind"}),
		ExternalCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "external",
			Name:      "calls_total",
			Help:      "External calls by target, method and status",
		}, []string{"target", "method", "status"}),
		ExternalLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "external",
			Name:      "call_duration_seconds",
			Help:      "Latency of external calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target", "method"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by cache and result",
		}, []string{"cache", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ScansTotal,
		m.ScanDuration,
		m.ScanOwners,
		m.OwnersScanned,
		m.ItemFailures,
		m.ExternalCalls,
		m.ExternalLatency,
		m.CacheLookups,
	)
	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCall records one external call.
func (m *Metrics) ObserveCall(target, method string, took time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ExternalCalls.WithLabelValues(target, method, status).Inc()
	m.ExternalLatency.WithLabelValues(target, method).Observe(took.Seconds())
}

// CacheLookup records a cache hit or miss.
func (m *Metrics) CacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(cache, result).Inc()
}

// OwnerScanned records the outcome of one owner.
func (m *Metrics) OwnerScanned(outcome string) {
	m.OwnersScanned.WithLabelValues(outcome).Inc()
}

// ItemFailed records one skipped log or approval.
func (m *Metrics) ItemFailed(kind string) {
	m.ItemFailures.WithLabelValues(kind).Inc()
}

// ScanCompleted records a finished scan.
func (m *Metrics) ScanCompleted(owners int, took time.Duration) {
	m.ScansTotal.Inc()
	m.ScanOwners.Observe(float64(owners))
	m.ScanDuration.Observe(took.Seconds())
}
