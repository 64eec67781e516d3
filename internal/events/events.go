// Package events defines the observability hooks fired around each public
// adapter operation. The adapter itself never logs or counts; it emits one
// Event per operation and recorders decide what to do with it.
package events

import (
	"log/slog"
	"time"

	"github.com/blobdock/blobdock/internal/metrics"
	"github.com/blobdock/blobdock/internal/storeerr"
)

// Operation names emitted by the adapter.
const (
	OpUpload            = "upload"
	OpDownload          = "download"
	OpStreamingDownload = "streaming_download"
	OpDownloadChunk     = "download_chunk"
	OpDelete            = "delete"
	OpDeletePrefixed    = "delete_prefixed"
	OpExist             = "exist"
	OpURL               = "url"
	OpCompose           = "compose"
)

// Event describes one completed adapter operation.
type Event struct {
	// Operation is one of the Op* constants.
	Operation string
	// Key is the object key the operation addressed. For delete_prefixed
	// it holds the prefix; for compose, the destination key.
	Key string
	// URL is the generated URL, set only for the url operation.
	URL string
	// Bytes is the payload size moved, when known.
	Bytes int64
	// Multipart is set on uploads that took the multipart path.
	Multipart bool
	// Duration is how long the operation took.
	Duration time.Duration
	// Err is the operation's error, nil on success.
	Err error
}

// Recorder receives one Event per public adapter operation.
type Recorder interface {
	Record(ev Event)
}

// Nop is a Recorder that discards all events.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(Event) {}

// Log is a Recorder that writes each event to a slog logger at debug level
// (warn for failures).
type Log struct {
	Logger *slog.Logger
}

// Record implements Recorder.
func (l Log) Record(ev Event) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"key", ev.Key, "duration", ev.Duration}
	if ev.Bytes > 0 {
		attrs = append(attrs, "bytes", ev.Bytes)
	}
	if ev.Multipart {
		attrs = append(attrs, "multipart", true)
	}
	if ev.URL != "" {
		attrs = append(attrs, "url", ev.URL)
	}
	if ev.Err != nil {
		attrs = append(attrs, "error", ev.Err)
		logger.Warn(ev.Operation, attrs...)
		return
	}
	logger.Debug(ev.Operation, attrs...)
}

// Prom is a Recorder that feeds the Prometheus collectors in
// internal/metrics. metrics.Register must have been called for the
// collectors to be scrapeable.
type Prom struct{}

// Record implements Recorder.
func (Prom) Record(ev Event) {
	status := "success"
	if ev.Err != nil {
		status = "error"
	}
	metrics.OperationsTotal.WithLabelValues(ev.Operation, status).Inc()
	metrics.OperationDuration.WithLabelValues(ev.Operation).Observe(ev.Duration.Seconds())
	if ev.Bytes > 0 {
		metrics.PayloadSize.WithLabelValues(ev.Operation).Observe(float64(ev.Bytes))
		switch ev.Operation {
		case OpUpload, OpCompose:
			metrics.BytesUploadedTotal.Add(float64(ev.Bytes))
		case OpDownload, OpStreamingDownload, OpDownloadChunk:
			metrics.BytesDownloadedTotal.Add(float64(ev.Bytes))
		}
	}
	if ev.Multipart {
		metrics.MultipartUploadsTotal.Inc()
	}
	if storeerr.IsIntegrity(ev.Err) {
		metrics.IntegrityFailuresTotal.Inc()
	}
}

// Multi fans an event out to several recorders in order.
type Multi []Recorder

// Record implements Recorder.
func (m Multi) Record(ev Event) {
	for _, r := range m {
		r.Record(ev)
	}
}
