//go:build windows

package screen

import apperrors "github.com/GriffinCanCode/hudreader/internal/errors"

// New reports that live capture is unavailable; replay a directory instead.
func New() (Capturer, error) {
	return nil, apperrors.New(apperrors.CodeConfigInvalid, "live screen capture is not supported on windows; set CAPTURE_SOURCE to a directory")
}
