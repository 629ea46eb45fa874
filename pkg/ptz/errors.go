package ptz

import (
	"errors"
	"fmt"
)

// Sentinel errors for camera failures.
var (
	// ErrMoveRejected is returned when the camera refuses or fails a move.
	ErrMoveRejected = errors.New("ptz: move rejected")

	// ErrCaptureFailed is returned when no image could be obtained.
	ErrCaptureFailed = errors.New("ptz: capture failed")

	// ErrPositionUnavailable is returned when the pose cannot be queried.
	ErrPositionUnavailable = errors.New("ptz: position unavailable")

	// ErrStopFailed is returned when a stop request fails.
	ErrStopFailed = errors.New("ptz: stop failed")
)

// ToolError is an error reply from the camera façade.
type ToolError struct {
	Tool    string
	Message string

	// Kind is one of the sentinel errors above.
	Kind error
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	return fmt.Sprintf("ptz [%s]: %s", e.Tool, e.Message)
}

// Unwrap returns the sentinel kind so errors.Is works.
func (e *ToolError) Unwrap() error {
	return e.Kind
}
