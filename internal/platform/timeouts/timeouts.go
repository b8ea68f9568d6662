// Package timeouts defines shared timeout constants used across the
// platform. Centralizing these values prevents drift between the HTTP
// surface and the command entrypoints.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Request bounds a single API request end to end.
const Request = 60 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// Preload caps how long segment media prefetching may block playback.
const Preload = 2 * time.Second
