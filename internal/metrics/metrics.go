// Package metrics defines the Prometheus instruments of the file service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation results used as label values.
const (
	ResultOK          = "ok"
	ResultNotFound    = "not_found"
	ResultError       = "error"
	ResultInvalidArgs = "invalid"
)

// FileMetrics holds the counters and histograms for upload, retrieve and
// delete. A nil *FileMetrics is valid and records nothing.
type FileMetrics struct {
	OperationsTotal    *prometheus.CounterVec   // fileversions_operations_total{operation,result}
	OperationDuration  *prometheus.HistogramVec // fileversions_operation_duration_seconds{operation}
	BytesUploaded      prometheus.Counter       // fileversions_bytes_uploaded_total
	BytesDownloaded    prometheus.Counter       // fileversions_bytes_downloaded_total
	AuditWriteFailures *prometheus.CounterVec   // fileversions_audit_write_failures_total{action}
}

// New registers the file metrics with registry, or with the default
// registerer when registry is nil.
func New(registry prometheus.Registerer) *FileMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &FileMetrics{
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fileversions_operations_total",
			Help: "File operations by operation and result",
		}, []string{"operation", "result"}),

		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fileversions_operation_duration_seconds",
			Help:    "File operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),

		BytesUploaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "fileversions_bytes_uploaded_total",
			Help: "Total bytes committed to the object store",
		}),

		BytesDownloaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "fileversions_bytes_downloaded_total",
			Help: "Total bytes served from the object store",
		}),

		AuditWriteFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fileversions_audit_write_failures_total",
			Help: "Audit ledger appends that failed, by action",
		}, []string{"action"}),
	}
}

// RecordOperation records the outcome and latency of one operation.
func (m *FileMetrics) RecordOperation(operation, result string, started time.Time) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, result).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// RecordUpload records bytes committed by an upload.
func (m *FileMetrics) RecordUpload(bytes int64) {
	if m == nil || bytes <= 0 {
		return
	}
	m.BytesUploaded.Add(float64(bytes))
}

// RecordDownload records bytes returned by a retrieval.
func (m *FileMetrics) RecordDownload(bytes int64) {
	if m == nil || bytes <= 0 {
		return
	}
	m.BytesDownloaded.Add(float64(bytes))
}

// RecordAuditFailure counts a ledger append that did not persist.
func (m *FileMetrics) RecordAuditFailure(action string) {
	if m == nil {
		return
	}
	m.AuditWriteFailures.WithLabelValues(action).Inc()
}
