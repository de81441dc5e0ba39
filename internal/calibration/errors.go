package calibration

import (
	"errors"
	"fmt"

	"floorplan/api/internal/coords"
)

var (
	ErrInvalidDistance   = errors.New("real-world distance must be positive")
	ErrUnknownUnit       = errors.New("unknown distance unit")
	ErrUnexpectedCapture = errors.New("calibration is not waiting for a point")
	ErrNotReady          = errors.New("calibration needs two points before commit")
	ErrNotCalibrated     = errors.New("page has no calibration")
)

// DegenerateError reports a calibration whose two points coincide.
type DegenerateError struct {
	Page  int
	Point coords.Point
}

func (e *DegenerateError) Error() string {
	return fmt.Sprintf("calibration points on page %d coincide at (%g, %g)", e.Page, e.Point.X, e.Point.Y)
}
