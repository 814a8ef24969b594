// Package session ties the ingest, segmentation, and transcription layers
// together. Each session owns a reorder queue, a voice activity detector, and
// a segmenter, with a single worker goroutine feeding chunks through them so
// the stateful pipeline never sees concurrent calls. The manager tracks all
// live sessions and reaps the ones that go idle.
package session
