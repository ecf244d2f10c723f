// Package metrics holds the Prometheus instruments of the ingestion service.
// Counters here are always updated; the sampled database rollups are a
// separate, cheaper view for the admin console.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IngestRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swipe_ingest_requests_total",
			Help: "Total number of swipe ingest requests by result",
		},
		[]string{"result"}, // "ok", "bad_json", "rate_limited", "unexpected"
	)

	IngestEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swipe_ingest_events_total",
			Help: "Total number of swipe events by outcome",
		},
		[]string{"outcome"}, // "accepted", "rejected", "retry"
	)

	IngestIssues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swipe_ingest_issues_total",
			Help: "Total number of response issues by code",
		},
		[]string{"code"},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "swipe_ingest_duration_seconds",
			Help:    "Time from request parse to response assembly",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	BulkFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "swipe_ingest_bulk_fallbacks_total",
			Help: "Bulk upserts that failed and were replayed row by row",
		},
	)

	FanoutQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "swipe_fanout_queue_depth",
			Help: "Accepted batches waiting for background fan-out",
		},
	)

	FanoutDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "swipe_fanout_dropped_total",
			Help: "Accepted batches dropped because the fan-out queue was full",
		},
	)

	FanoutTaskFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swipe_fanout_task_failures_total",
			Help: "Best-effort fan-out sub-task failures",
		},
		[]string{"task"}, // "diary", "taste", "centroids", "labels", "rollup"
	)
)
