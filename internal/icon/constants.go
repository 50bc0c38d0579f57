package icon

// Search area for the villager icon, relative to the bottom-left of the
// capture area. Y is negative, measured up from the bottom edge.
const (
	DefaultX      = 0
	DefaultY      = -486
	DefaultWidth  = 250
	DefaultHeight = 80

	DefaultThreshold = 0.6
)
