// Package audio provides the sample-level building blocks of the service:
// float32 PCM conversion, the single-pole high-pass pre-filter used by the
// voice activity detector, in-memory WAV encoding for transcription uploads,
// and a sequence-ordered chunk queue that absorbs UDP reordering before audio
// reaches a session worker.
package audio
