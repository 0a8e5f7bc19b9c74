// Package metrics defines Prometheus collectors for Viewfinder's ingestion
// and enrichment pipelines. Collectors are registered via promauto at init
// and exposed on /metrics by the app router.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "viewfinder_uploads_total",
	Help: "Total number of image uploads, labelled by outcome.",
}, []string{"outcome"})

var taggingTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "viewfinder_tagging_tasks_total",
	Help: "Total number of background tagging tasks, labelled by outcome.",
}, []string{"outcome"})

var oracleFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "viewfinder_oracle_failures_total",
	Help: "Total number of degraded external calls, labelled by service.",
}, []string{"service"})

var oracleLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "viewfinder_oracle_latency_seconds",
	Help:    "Latency of external oracle and geocoder calls.",
	Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30},
}, []string{"service"})

// RecordUpload counts one completed upload. Outcome is "ok", "invalid",
// or "failed".
func RecordUpload(outcome string) {
	uploadsTotal.WithLabelValues(outcome).Inc()
}

// RecordTaggingTask counts one finished tagging task. Outcome is "ok",
// "empty" (oracle returned no tags), "skipped" (image removed before the
// task ran), or "failed".
func RecordTaggingTask(outcome string) {
	taggingTasksTotal.WithLabelValues(outcome).Inc()
}

// RecordOracleFailure counts one degraded external call. Service is
// "tagger", "describer", "ranker", or "geocoder".
func RecordOracleFailure(service string) {
	oracleFailuresTotal.WithLabelValues(service).Inc()
}

// ObserveOracleLatency records the duration of one external call.
func ObserveOracleLatency(service string, elapsed time.Duration) {
	oracleLatency.WithLabelValues(service).Observe(elapsed.Seconds())
}
