package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the recording service.
type Metrics struct {
	// Session lifecycle metrics
	SessionsCreated  prometheus.Counter
	SessionsPaused   prometheus.Counter
	SessionsResumed  prometheus.Counter
	SessionsFinished prometheus.Counter
	SessionsDeleted  prometheus.Counter
	FinishFailures   *prometheus.CounterVec

	// Chunk ingestion metrics
	ChunksUploaded prometheus.Counter
	ChunkSize      prometheus.Histogram

	// Finish pipeline metrics
	FinishDuration    prometheus.Histogram
	AssembledDuration prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests prometheus.Counter
	TranscriptionFailures prometheus.Counter
	TranscriptionDuration prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_sessions_created_total",
			Help: "Total number of recording sessions created",
		}),
		SessionsPaused: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_sessions_paused_total",
			Help: "Total number of pause transitions",
		}),
		SessionsResumed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_sessions_resumed_total",
			Help: "Total number of resume transitions",
		}),
		SessionsFinished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_sessions_finished_total",
			Help: "Total number of sessions successfully finished",
		}),
		SessionsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_sessions_deleted_total",
			Help: "Total number of sessions deleted",
		}),
		FinishFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_finish_failures_total",
			Help: "Finish pipeline failures by stage",
		}, []string{"stage"}),

		ChunksUploaded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_chunks_uploaded_total",
			Help: "Total number of audio chunks accepted",
		}),
		ChunkSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_chunk_size_bytes",
			Help:    "Size of uploaded audio chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),

		FinishDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_finish_duration_seconds",
			Help:    "Wall time of the finish pipeline",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7 minutes
		}),
		AssembledDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_assembled_audio_seconds",
			Help:    "Playback duration of assembled audio artifacts",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),

		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_transcription_requests_total",
			Help: "Total transcription requests sent to the provider",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_transcription_failures_total",
			Help: "Total transcription requests that failed after retries",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_transcription_duration_seconds",
			Help:    "Time spent in remote transcription calls",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~34 minutes
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_http_requests_total",
			Help: "Total HTTP requests by method, endpoint, and status",
		}, []string{"method", "endpoint", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scribe_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_http_errors_total",
			Help: "HTTP error responses by method, endpoint, and error class",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, status string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records one HTTP error response.
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
