// Package protocol implements the TLV packet framing used on the UDP ingest
// path. It covers header parsing and validation, hello payloads that open a
// transcription session, and audio payloads that carry sequenced PCM-16
// chunks together with their per-call segmentation parameters.
package protocol
