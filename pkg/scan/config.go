package scan

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-ptzscan/pkg/detection"
	"github.com/teslashibe/go-ptzscan/pkg/ptz"
	"github.com/teslashibe/go-ptzscan/pkg/tracking"
)

// Minimum settle times the mechanism needs before a capture is sharp.
const (
	MinMoveSettle  = 2 * time.Second
	MinTrackSettle = 3 * time.Second
)

// DefaultQueries are the phrases searched for when none are configured.
const DefaultQueries = "a bird;a cat;a dog;a horse;a sheep;a cow;a bear"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("scan: invalid config")

// Config holds the scan parameters.
type Config struct {
	// Iterations is the number of sweeps. Zero or less runs until stopped.
	Iterations int

	// PanStep is the spacing of probe positions in degrees.
	PanStep float64

	// Tilt is the initial base tilt in degrees.
	Tilt float64

	// Zoom is the probe zoom.
	Zoom float64

	// Confidence is the detection threshold in (0,1). A detection qualifies
	// when its reward is at most 1 - Confidence.
	Confidence float64

	// IterationDelay is the target time from one sweep start to the next.
	IterationDelay time.Duration

	// BoredomStep is subtracted from the base tilt after an empty sweep.
	BoredomStep float64

	// Queries are the phrases passed to the detector.
	Queries []string

	// MoveSettle is waited after each probe move, TrackSettle after each
	// tracking move.
	MoveSettle  time.Duration
	TrackSettle time.Duration

	// BatchTracking visits every qualifying detection of a frame with one
	// absolute move each instead of tracking only the best one.
	BatchTracking bool

	// StopSweepOnTrack ends the sweep after the first successful track.
	// By default the sweep continues to cover the remaining angles.
	StopSweepOnTrack bool

	Tracking tracking.Config
}

// DefaultConfig returns the field defaults: ten sweeps of 15 degree steps at
// tilt 0 and zoom 1, one sweep per minute.
func DefaultConfig() Config {
	return Config{
		Iterations:     10,
		PanStep:        15,
		Tilt:           0,
		Zoom:           1,
		Confidence:     0.1,
		IterationDelay: 60 * time.Second,
		BoredomStep:    5,
		Queries:        detection.ParseQueries(DefaultQueries),
		MoveSettle:     MinMoveSettle,
		TrackSettle:    MinTrackSettle,
		Tracking:       tracking.DefaultConfig(),
	}
}

// Validate checks the configuration. All problems are reported together.
func (c Config) Validate() error {
	var errs []error
	if c.PanStep <= 0 || c.PanStep > 360 {
		errs = append(errs, fmt.Errorf("pan step must be in (0,360], got %v", c.PanStep))
	}
	if c.Tilt < ptz.MinTilt || c.Tilt > ptz.MaxTilt {
		errs = append(errs, fmt.Errorf("tilt must be in [%v,%v], got %v", ptz.MinTilt, ptz.MaxTilt, c.Tilt))
	}
	if c.Zoom < ptz.MinZoom || c.Zoom > ptz.MaxZoom {
		errs = append(errs, fmt.Errorf("zoom must be in [%v,%v], got %v", ptz.MinZoom, ptz.MaxZoom, c.Zoom))
	}
	if c.Confidence <= 0 || c.Confidence >= 1 {
		errs = append(errs, fmt.Errorf("confidence must be in (0,1), got %v", c.Confidence))
	}
	if c.IterationDelay < 0 {
		errs = append(errs, fmt.Errorf("iteration delay must not be negative, got %v", c.IterationDelay))
	}
	if c.BoredomStep < 0 {
		errs = append(errs, fmt.Errorf("boredom step must not be negative, got %v", c.BoredomStep))
	}
	if len(c.Queries) == 0 {
		errs = append(errs, errors.New("at least one query required"))
	}
	if c.MoveSettle < 0 || c.TrackSettle < 0 {
		errs = append(errs, errors.New("settle times must not be negative"))
	}
	if err := c.Tracking.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
