// Package server exposes the watcher's state over HTTP and streams its
// events over WebSocket.
package server

import "time"

// Server configuration constants
const (
	// Per-connection rate limit for client messages
	RateLimitMessages = 10
	RateLimitWindow   = time.Second

	// Outbound WebSocket queue per connection
	EventBuffer = 32

	WriteTimeout      = 5 * time.Second
	ReadHeaderTimeout = 5 * time.Second
	ShutdownTimeout   = 5 * time.Second

	// History served by /api/history
	HistoryWindow = 10 * time.Minute
)
