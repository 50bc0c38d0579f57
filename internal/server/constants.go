// Package server provides HTTP and WebSocket handlers
package server

import "time"

// Server configuration constants
const (
	// Per-connection inbound message limit
	RateLimitMessages = 20
	RateLimitWindow   = time.Second

	// Outbound queue per websocket client; messages beyond it are dropped
	ClientSendBuffer = 32

	// Deadline for a single websocket write
	WriteTimeout = 5 * time.Second

	// Upper bound for the history window query parameter
	MaxHistoryWindow = time.Hour
)
