// Package metrics defines custom Prometheus metrics for BlobDock.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce ensures Register() is idempotent.
var registerOnce sync.Once

// sizeBuckets are exponential buckets for payload size histograms (bytes).
var sizeBuckets = []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 67108864, 268435456}

// Adapter operation metrics (RED: Rate, Errors, Duration).
var (
	// OperationsTotal counts adapter operations by operation name and status.
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blobdock_operations_total",
			Help: "Adapter operations by type and status",
		},
		[]string{"operation", "status"},
	)

	// OperationDuration observes operation latency in seconds by operation.
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blobdock_operation_duration_seconds",
			Help:    "Adapter operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// PayloadSize observes payload sizes in bytes by operation.
	PayloadSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blobdock_payload_size_bytes",
			Help:    "Payload size in bytes by operation",
			Buckets: sizeBuckets,
		},
		[]string{"operation"},
	)

	// BytesUploadedTotal counts total bytes written to the remote store.
	BytesUploadedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blobdock_bytes_uploaded_total",
			Help: "Total bytes uploaded to the remote store",
		},
	)

	// BytesDownloadedTotal counts total bytes read from the remote store.
	BytesDownloadedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blobdock_bytes_downloaded_total",
			Help: "Total bytes downloaded from the remote store",
		},
	)

	// MultipartUploadsTotal counts uploads that took the multipart path.
	MultipartUploadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blobdock_multipart_uploads_total",
			Help: "Uploads that used the multipart strategy",
		},
	)

	// IntegrityFailuresTotal counts checksum mismatches, server- or client-side.
	IntegrityFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blobdock_integrity_failures_total",
			Help: "Checksum verification failures",
		},
	)
)

// Register registers all Prometheus collectors with the default registry.
// This must be called explicitly (typically from main) so that metrics
// registration can be made conditional on configuration. It is safe to call
// multiple times; subsequent calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			OperationsTotal,
			OperationDuration,
			PayloadSize,
			BytesUploadedTotal,
			BytesDownloadedTotal,
			MultipartUploadsTotal,
			IntegrityFailuresTotal,
		)
		// Initialize OperationsTotal so it appears in scrape output even
		// before any operations have been performed.
		OperationsTotal.WithLabelValues("upload", "success")
	})
}
