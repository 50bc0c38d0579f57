// Package orchestrator wires capture, frame processing and result fan-out
package orchestrator

import "time"

// Orchestrator configuration constants
const (
	// History event channel buffer
	HistoryEventBuffer = 64

	// Alert event channel buffer
	AlertChannelBuffer = 16

	// How long Stop waits for the processor to deliver Quit
	StopTimeout = 5 * time.Second
)
