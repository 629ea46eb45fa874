// Package events records the images and metadata of each probe and track.
//
// A probe that finds something produces a "before" capture (the probe frame
// with every detection) and, once the camera has tracked the best match, an
// "after" capture taken at the pose the camera reports after settling.
package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-ptzscan/pkg/detection"
	"github.com/teslashibe/go-ptzscan/pkg/ptz"
)

// View says which side of a track a capture belongs to.
type View string

const (
	ViewBefore View = "before"
	ViewAfter  View = "after"
)

// TimestampLayout is used in capture file names.
const TimestampLayout = "20060102_150405"

// Capture is one recorded image with its metadata.
type Capture struct {
	ID         string                `json:"id"`
	EventID    string                `json:"event_id"`
	View       View                  `json:"view"`
	Pose       ptz.Pose              `json:"ptz"`
	Label      string                `json:"label,omitempty"`
	Confidence float64               `json:"confidence,omitempty"`
	Detections []detection.Detection `json:"detections,omitempty"`
	Image      []byte                `json:"-"`
	CreatedAt  time.Time             `json:"created_at"`
}

// NewEventID returns a fresh id for one probe/track cycle.
func NewEventID() string {
	return uuid.New().String()
}

// Filename is the image file name: initial_<ts>.jpg for before captures and
// zoomed_<label>_conf<c>_<ts>.jpg for after captures.
func (c Capture) Filename() string {
	ts := c.CreatedAt.Format(TimestampLayout)
	if c.View == ViewAfter {
		return fmt.Sprintf("zoomed_%s_conf%.2f_%s.jpg", sanitize(c.Label), c.Confidence, ts)
	}
	return fmt.Sprintf("initial_%s.jpg", ts)
}

// Validate checks the fields every recorder relies on.
func (c Capture) Validate() error {
	var errs []error
	if c.EventID == "" {
		errs = append(errs, errors.New("event id required"))
	}
	if c.View != ViewBefore && c.View != ViewAfter {
		errs = append(errs, fmt.Errorf("unknown view %q", c.View))
	}
	if len(c.Image) == 0 {
		errs = append(errs, errors.New("image required"))
	}
	return errors.Join(errs...)
}

// fill assigns an id and timestamp when they are missing.
func (c *Capture) fill(now time.Time) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "object"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		}
		return '_'
	}, s)
}

// Recorder receives captures. Failures are reported to the caller, which
// logs them; a failed recording never stops the scan.
type Recorder interface {
	Record(ctx context.Context, c Capture) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, c Capture) error

// Record calls f.
func (f RecorderFunc) Record(ctx context.Context, c Capture) error {
	return f(ctx, c)
}

// Discard drops every capture.
var Discard Recorder = RecorderFunc(func(context.Context, Capture) error { return nil })
