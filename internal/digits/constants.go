// Package digits recognizes short digit/slash strings by template matching.
package digits

// Matcher defaults.
const (
	DefaultMatchThreshold = 0.7
	DefaultMinConfidence  = 0.75
	DefaultMinSeparation  = 10
	DefaultMaxSymbols     = 8

	// SlashSymbol is the only non-digit symbol recognized.
	SlashSymbol = '/'
)
