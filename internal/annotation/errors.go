package annotation

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("marker not found")

// NotFoundError names the missing marker. It matches ErrNotFound.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("marker %s not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// DegenerateShapeError rejects shapes below the minimum size.
type DegenerateShapeError struct {
	Kind   Kind
	Width  float64
	Height float64
}

func (e *DegenerateShapeError) Error() string {
	return fmt.Sprintf("%s is degenerate (%gx%g, minimum %g)", e.Kind, e.Width, e.Height, MinShapeSize)
}

// InvalidMarkerError reports a field that breaks the kind rules.
type InvalidMarkerError struct {
	Field  string
	Reason string
}

func (e *InvalidMarkerError) Error() string {
	return fmt.Sprintf("invalid marker %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &InvalidMarkerError{Field: field, Reason: reason}
}
