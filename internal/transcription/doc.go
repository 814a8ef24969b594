// Package transcription implements the HTTP client for the whisper engine
// API. It uploads WAV-encoded segments as multipart form data with the
// engine parameters passed through verbatim, retries transient failures with
// exponential backoff, and limits concurrent in-flight requests.
package transcription
