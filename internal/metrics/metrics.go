// ============================================================================
// Custodian Metrics - Prometheus Monitoring
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Collect and expose Prometheus metrics for a running Custodian
// supervisor: attempt counts, correction counts by handler, quota hits
// by kind, and job duration.
//
// HTTP Endpoint:
//   Exposed via /metrics, scraped by Prometheus, on the port passed to
//   StartServer (the CLI's --metrics-port; 0 there disables the server).
//
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects Prometheus metrics for one Custodian run.
type Collector struct {
	attemptsTotal   prometheus.Counter
	correctionsTotal *prometheus.CounterVec
	quotaHitsTotal  *prometheus.CounterVec
	jobDuration     prometheus.Histogram
}

// NewCollector builds and registers a Collector against the default
// Prometheus registry.
func NewCollector() *Collector {
	c := &Collector{
		attemptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "custodian_attempts_total",
			Help: "Total number of job attempts started, across all jobs",
		}),
		correctionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "custodian_corrections_total",
			Help: "Total number of corrections applied, by handler",
		}, []string{"handler"}),
		quotaHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "custodian_quota_hits_total",
			Help: "Total number of times a correction quota was exceeded, by kind",
		}, []string{"kind"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "custodian_job_duration_seconds",
			Help:    "Wall-clock duration of one job's full attempt loop",
			Buckets: prometheus.DefBuckets,
		}),
	}

	prometheus.MustRegister(c.attemptsTotal)
	prometheus.MustRegister(c.correctionsTotal)
	prometheus.MustRegister(c.quotaHitsTotal)
	prometheus.MustRegister(c.jobDuration)

	return c
}

// RecordAttempt records one job attempt starting.
func (c *Collector) RecordAttempt() {
	c.attemptsTotal.Inc()
}

// RecordCorrection records one correction applied by the named handler.
func (c *Collector) RecordCorrection(handler string) {
	c.correctionsTotal.WithLabelValues(handler).Inc()
}

// RecordQuotaHit records a quota of the given kind ("max_errors",
// "max_errors_per_job", "max_errors_per_handler") being exceeded.
func (c *Collector) RecordQuotaHit(kind string) {
	c.quotaHitsTotal.WithLabelValues(kind).Inc()
}

// RecordJobDuration records one job's completed attempt loop duration.
func (c *Collector) RecordJobDuration(seconds float64) {
	c.jobDuration.Observe(seconds)
}

// StartServer starts the Prometheus metrics HTTP server on port,
// blocking until it exits or errors.
func StartServer(port int) error {
	http.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, nil)
}
