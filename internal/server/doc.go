// Package server implements the service's network surfaces: the UDP listener
// that ingests TLV packets from clients and the HTTP API for monitoring,
// transcript retrieval, and Prometheus metrics.
package server
