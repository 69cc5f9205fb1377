// Package metrics defines the Prometheus instruments of the engine. All
// methods are safe on a nil *Metrics so components can run uninstrumented.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ChecksTotal         *prometheus.CounterVec
	CheckDuration       *prometheus.HistogramVec
	BackendErrorsTotal  *prometheus.CounterVec
	LedgerUpsertsTotal  prometheus.Counter
	LedgerFlushesTotal  *prometheus.CounterVec
	LedgerFlushDuration prometheus.Histogram
	LedgerRecords       prometheus.Gauge
	BatchRunsTotal      *prometheus.CounterVec
	BatchItemsTotal     *prometheus.CounterVec
	BatchDuration       prometheus.Histogram
	ExportsTotal        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates and registers all metrics with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ChecksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "numcheck_verification_checks_total",
			Help: "Verification checks by resulting status",
		}, []string{"status"}),
		CheckDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "numcheck_verification_check_duration_seconds",
			Help:    "Backend lookup latency, excluding rate limit waits",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend"}),
		BackendErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "numcheck_verification_backend_errors_total",
			Help: "Backend failures by error category",
		}, []string{"backend", "category"}),
		LedgerUpsertsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "numcheck_ledger_upserts_total",
			Help: "Status ledger upserts",
		}),
		LedgerFlushesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "numcheck_ledger_flushes_total",
			Help: "Ledger flushes by outcome",
		}, []string{"outcome"}),
		LedgerFlushDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "numcheck_ledger_flush_duration_seconds",
			Help:    "Time spent persisting a ledger snapshot",
			Buckets: prometheus.DefBuckets,
		}),
		LedgerRecords: f.NewGauge(prometheus.GaugeOpts{
			Name: "numcheck_ledger_records",
			Help: "Numbers currently tracked by the ledger",
		}),
		BatchRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "numcheck_batch_runs_total",
			Help: "Batch runs by outcome",
		}, []string{"outcome"}),
		BatchItemsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "numcheck_batch_items_total",
			Help: "Batch items processed by status",
		}, []string{"status"}),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "numcheck_batch_duration_seconds",
			Help:    "Wall-clock duration of completed batch runs",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		ExportsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "numcheck_exports_total",
			Help: "Exports by format",
		}, []string{"format"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "numcheck_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) RecordCheck(status string) {
	if m == nil {
		return
	}
	m.ChecksTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveCheckDuration(backend string, seconds float64) {
	if m == nil {
		return
	}
	m.CheckDuration.WithLabelValues(backend).Observe(seconds)
}

func (m *Metrics) RecordBackendError(backend, category string) {
	if m == nil {
		return
	}
	m.BackendErrorsTotal.WithLabelValues(backend, category).Inc()
}

func (m *Metrics) RecordUpsert(records int) {
	if m == nil {
		return
	}
	m.LedgerUpsertsTotal.Inc()
	m.LedgerRecords.Set(float64(records))
}

// RecordFlush counts a flush attempt; outcome is "ok" or "error".
func (m *Metrics) RecordFlush(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.LedgerFlushesTotal.WithLabelValues(outcome).Inc()
	m.LedgerFlushDuration.Observe(seconds)
}

func (m *Metrics) SetLedgerRecords(n int) {
	if m == nil {
		return
	}
	m.LedgerRecords.Set(float64(n))
}

// RecordBatchRun counts a run; outcome is "completed", "cancelled" or "rejected".
func (m *Metrics) RecordBatchRun(outcome string) {
	if m == nil {
		return
	}
	m.BatchRunsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordBatchItem(status string) {
	if m == nil {
		return
	}
	m.BatchItemsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveBatchDuration(seconds float64) {
	if m == nil {
		return
	}
	m.BatchDuration.Observe(seconds)
}

func (m *Metrics) RecordExport(format string) {
	if m == nil {
		return
	}
	m.ExportsTotal.WithLabelValues(format).Inc()
}

func (m *Metrics) ObserveHTTPRequest(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(seconds)
}
