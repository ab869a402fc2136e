// Package metrics exposes Prometheus collectors for the crawl lifecycle
// engine.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	targetsUpsertedTotal *prometheus.CounterVec
	pagesFetchedTotal    *prometheus.CounterVec
	fetchBytesTotal      prometheus.Counter
	factsUpsertedTotal   *prometheus.CounterVec
	sweepDeletedTotal    *prometheus.CounterVec
	sweepDurationSeconds prometheus.Histogram
	batchFailuresTotal   *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		targetsUpsertedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revloop_targets_upserted_total",
				Help: "Total crawl targets upserted by discovery, labeled by kind.",
			},
			[]string{"kind"},
		)

		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revloop_pages_fetched_total",
				Help: "Total fetch attempts, labeled by HTTP status.",
			},
			[]string{"status"},
		)

		fetchBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "revloop_fetch_bytes_total",
				Help: "Total bytes fetched across all targets.",
			},
		)

		factsUpsertedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revloop_facts_upserted_total",
				Help: "Total facts written by parser dispatch, labeled by kind.",
			},
			[]string{"kind"},
		)

		sweepDeletedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revloop_sweep_deleted_total",
				Help: "Rows deleted by reconciliation sweeps, labeled by store.",
			},
			[]string{"store"},
		)

		sweepDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "revloop_sweep_duration_seconds",
				Help:    "Histogram of per-user reconciliation sweep durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		)

		batchFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revloop_batch_failures_total",
				Help: "Per-item failures inside batch operations, labeled by operation.",
			},
			[]string{"op"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTargetUpsert increments the target upsert counter for a kind.
func ObserveTargetUpsert(kind string) {
	Init()
	targetsUpsertedTotal.WithLabelValues(kind).Inc()
}

// ObserveFetch records one fetch attempt outcome.
func ObserveFetch(statusCode int, bytesFetched int) {
	Init()
	pagesFetchedTotal.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.Add(float64(bytesFetched))
	}
}

// ObserveFactUpsert increments the fact upsert counter for a kind.
func ObserveFactUpsert(kind string) {
	Init()
	factsUpsertedTotal.WithLabelValues(kind).Inc()
}

// ObserveSweepDeletions records rows deleted from a store during a sweep.
func ObserveSweepDeletions(store string, count int) {
	Init()
	sweepDeletedTotal.WithLabelValues(store).Add(float64(count))
}

// ObserveSweepDuration records how long one user's sweep took.
func ObserveSweepDuration(duration time.Duration) {
	Init()
	sweepDurationSeconds.Observe(duration.Seconds())
}

// ObserveBatchFailure counts one failed item inside a batch operation.
func ObserveBatchFailure(op string) {
	Init()
	batchFailuresTotal.WithLabelValues(op).Inc()
}
