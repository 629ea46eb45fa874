// Package tracking turns a detection into the camera motion that centers it
// and enlarges it in frame.
package tracking

import (
	"errors"
	"fmt"
)

// DefaultTargetFill is the fraction of the frame width a tracked object
// should occupy after zooming.
const DefaultTargetFill = 0.8

// Config holds the tracking parameters.
type Config struct {
	// TargetFill is the fraction of the frame the object should fill (0-1].
	TargetFill float64

	// Zoom computes the zoom multiplier. Defaults to WidthRatio.
	Zoom ZoomPolicy

	// Maneuver selects one combined move or center-then-zoom.
	Maneuver Maneuver

	// InvertPan and InvertTilt flip the axis sign for cameras whose positive
	// pan turns left or positive tilt turns up.
	InvertPan  bool
	InvertTilt bool
}

// DefaultConfig returns the single-move, width-ratio configuration.
func DefaultConfig() Config {
	return Config{
		TargetFill: DefaultTargetFill,
		Zoom:       WidthRatio,
		Maneuver:   Combined,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.TargetFill <= 0 || c.TargetFill > 1 {
		errs = append(errs, fmt.Errorf("target fill must be in (0,1], got %v", c.TargetFill))
	}
	if c.Zoom == nil {
		errs = append(errs, errors.New("zoom policy required"))
	}
	if c.Maneuver != Combined && c.Maneuver != TwoStep {
		errs = append(errs, fmt.Errorf("unknown maneuver %q", c.Maneuver))
	}
	return errors.Join(errs...)
}
