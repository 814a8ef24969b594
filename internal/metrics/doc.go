// Package metrics defines the Prometheus instrumentation for the whisper
// streaming service and helpers for recording measurements from the ingest,
// segmentation, and transcription paths.
package metrics
