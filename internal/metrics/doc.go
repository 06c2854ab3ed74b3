// Package metrics defines the Prometheus instrumentation for the recording
// service: session lifecycle counters, chunk ingestion, finish-pipeline and
// transcription timings, and HTTP request accounting.
package metrics
