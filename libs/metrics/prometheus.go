// Package metrics provides Prometheus metrics for export runs
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exporter_runs_total",
			Help: "Total number of export runs by final state",
		},
		[]string{"exporter", "state"},
	)

	ExportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exporter_run_duration_seconds",
			Help:    "Duration of export runs",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"exporter"},
	)

	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exporter_step_duration_seconds",
			Help:    "Time spent in each pipeline state",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"exporter", "step"},
	)

	// Data metrics
	RecordsExported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exporter_records_exported_total",
			Help: "Total number of product records written to the export file",
		},
		[]string{"exporter"},
	)

	BytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exporter_bytes_total",
			Help: "Bytes produced by the CSV assembler",
		},
		[]string{"exporter", "kind"},
	)

	Degradations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exporter_degraded_lookups_total",
			Help: "Enrichment lookups that fell back to default values",
		},
		[]string{"exporter", "lookup"},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exporter_errors_total",
			Help: "Total number of errors",
		},
		[]string{"exporter", "type", "step"},
	)

	// API call metrics
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exporter_api_calls_total",
			Help: "Total number of API calls made to the commerce backend",
		},
		[]string{"exporter", "endpoint", "status"},
	)

	APICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exporter_api_call_duration_seconds",
			Help:    "Duration of API calls to the commerce backend",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"exporter", "endpoint"},
	)

	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exporter_retries_total",
			Help: "Total number of retried units of work",
		},
		[]string{"exporter", "operation"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exporter_cache_lookups_total",
			Help: "Cache lookups by cache name and result",
		},
		[]string{"exporter", "cache", "result"},
	)

	// Storage metrics
	StorageWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exporter_storage_writes_total",
			Help: "Storage writes by backend and status",
		},
		[]string{"exporter", "backend", "status"},
	)
)

// ExportMetrics provides a convenient interface for recording export metrics
type ExportMetrics struct {
	exporterName string
}

// NewExportMetrics creates a new metrics recorder
func NewExportMetrics(exporterName string) *ExportMetrics {
	return &ExportMetrics{
		exporterName: exporterName,
	}
}

// RecordRun records the outcome of an export run
func (m *ExportMetrics) RecordRun(state string, duration time.Duration) {
	if m == nil {
		return
	}
	ExportsTotal.WithLabelValues(m.exporterName, state).Inc()
	ExportDuration.WithLabelValues(m.exporterName).Observe(duration.Seconds())
}

// RecordStep records time spent in a pipeline state
func (m *ExportMetrics) RecordStep(step string, duration time.Duration) {
	if m == nil {
		return
	}
	StepDuration.WithLabelValues(m.exporterName, step).Observe(duration.Seconds())
}

// RecordAssembly records the CSV output of a run
func (m *ExportMetrics) RecordAssembly(records int, originalBytes, compressedBytes int64) {
	if m == nil {
		return
	}
	RecordsExported.WithLabelValues(m.exporterName).Add(float64(records))
	BytesWritten.WithLabelValues(m.exporterName, "original").Add(float64(originalBytes))
	BytesWritten.WithLabelValues(m.exporterName, "compressed").Add(float64(compressedBytes))
}

// RecordDegraded records lookups that fell back to defaults
func (m *ExportMetrics) RecordDegraded(lookup string, count int) {
	if m == nil || count == 0 {
		return
	}
	Degradations.WithLabelValues(m.exporterName, lookup).Add(float64(count))
}

// RecordError records an error
func (m *ExportMetrics) RecordError(errorType string, step string) {
	if m == nil {
		return
	}
	ErrorsTotal.WithLabelValues(m.exporterName, errorType, step).Inc()
}

// RecordAPICall records an API call
func (m *ExportMetrics) RecordAPICall(endpoint string, status string, duration time.Duration) {
	if m == nil {
		return
	}
	APICallsTotal.WithLabelValues(m.exporterName, endpoint, status).Inc()
	APICallDuration.WithLabelValues(m.exporterName, endpoint).Observe(duration.Seconds())
}

// RecordRetry records a retried attempt
func (m *ExportMetrics) RecordRetry(operation string) {
	if m == nil {
		return
	}
	RetriesTotal.WithLabelValues(m.exporterName, operation).Inc()
}

// RecordCacheLookup records a cache hit or miss
func (m *ExportMetrics) RecordCacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(m.exporterName, cache, result).Inc()
}

// RecordStorageWrite records a storage write attempt
func (m *ExportMetrics) RecordStorageWrite(backend string, ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	StorageWrites.WithLabelValues(m.exporterName, backend, status).Inc()
}

// Timer is a helper for measuring duration
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
