// Package metrics provides Prometheus metrics for the case console.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultAuth    = "auth"
	ResultStale   = "stale"
)

// ConsoleMetrics contains the repository, bulk and ingest metrics. A nil
// *ConsoleMetrics is valid and records nothing.
type ConsoleMetrics struct {
	fetchesTotal   *prometheus.CounterVec // by result
	fetchDuration  prometheus.Histogram
	collectionSize prometheus.Gauge
	pollsSkipped   prometheus.Counter

	bulkItemsTotal *prometheus.CounterVec   // by operation, result
	bulkDuration   *prometheus.HistogramVec // by operation

	ingestTotal *prometheus.CounterVec // by result
}

// NewConsoleMetrics creates the metrics and registers them with registry.
func NewConsoleMetrics(registry *prometheus.Registry) (*ConsoleMetrics, error) {
	m := &ConsoleMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register console metrics: %w", err)
	}
	return m, nil
}

func (m *ConsoleMetrics) initMetrics() {
	m.fetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "case_console_fetches_total",
			Help: "Total number of case collection fetches by result",
		},
		[]string{"result"}, // success, error, auth, stale
	)
	m.fetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "case_console_fetch_duration_seconds",
			Help:    "Time taken to fetch and transform the case collection",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)
	m.collectionSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "case_console_collection_size",
			Help: "Number of cases currently held by the repository",
		},
	)
	m.pollsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "case_console_polls_skipped_total",
			Help: "Poll ticks skipped because a refetch was still in flight",
		},
	)
	m.bulkItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "case_console_bulk_items_total",
			Help: "Bulk sub-operations by operation and result",
		},
		[]string{"operation", "result"},
	)
	m.bulkDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "case_console_bulk_duration_seconds",
			Help:    "Time taken by a whole bulk dispatch",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	m.ingestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "case_console_ingested_files_total",
			Help: "Case records processed by folder ingestion by result",
		},
		[]string{"result"},
	)
}

// RecordFetch records one fetch outcome.
func (m *ConsoleMetrics) RecordFetch(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchesTotal.WithLabelValues(result).Inc()
	if result == ResultSuccess {
		m.fetchDuration.Observe(d.Seconds())
	}
}

// SetCollectionSize sets the current collection size.
func (m *ConsoleMetrics) SetCollectionSize(n int) {
	if m == nil {
		return
	}
	m.collectionSize.Set(float64(n))
}

// RecordPollSkipped counts a skipped poll tick.
func (m *ConsoleMetrics) RecordPollSkipped() {
	if m == nil {
		return
	}
	m.pollsSkipped.Inc()
}

// RecordBulkItem counts one bulk sub-operation.
func (m *ConsoleMetrics) RecordBulkItem(operation string, ok bool) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if !ok {
		result = ResultError
	}
	m.bulkItemsTotal.WithLabelValues(operation, result).Inc()
}

// RecordBulkBatch observes the duration of a bulk dispatch.
func (m *ConsoleMetrics) RecordBulkBatch(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.bulkDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordIngest counts one case record read by folder ingestion.
func (m *ConsoleMetrics) RecordIngest(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.ingestTotal.WithLabelValues(ResultSuccess).Inc()
		return
	}
	m.ingestTotal.WithLabelValues(ResultError).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *ConsoleMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.fetchesTotal.Describe(ch)
	m.fetchDuration.Describe(ch)
	m.collectionSize.Describe(ch)
	m.pollsSkipped.Describe(ch)
	m.bulkItemsTotal.Describe(ch)
	m.bulkDuration.Describe(ch)
	m.ingestTotal.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *ConsoleMetrics) Collect(ch chan<- prometheus.Metric) {
	m.fetchesTotal.Collect(ch)
	m.fetchDuration.Collect(ch)
	m.collectionSize.Collect(ch)
	m.pollsSkipped.Collect(ch)
	m.bulkItemsTotal.Collect(ch)
	m.bulkDuration.Collect(ch)
	m.ingestTotal.Collect(ch)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
