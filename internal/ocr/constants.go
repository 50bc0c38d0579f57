// Package ocr turns image regions into short numeric strings using one of a
// closed set of recognition engines.
package ocr

// Engine defaults.
const (
	// Capacity of a ShortString in bytes.
	Capacity = 8

	DefaultBatchSize = 8
	DefaultWorkers   = 4
	DefaultMinScore  = 0.5
)
