package tracking

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-ptzscan/pkg/detection"
	"github.com/teslashibe/go-ptzscan/pkg/ptz"
)

// Sentinel errors for unusable input.
var (
	// ErrDegenerateBox is returned for a box with zero or negative width or
	// height. Such a box cannot be zoomed onto.
	ErrDegenerateBox = errors.New("tracking: degenerate bounding box")

	// ErrBadFrame is returned when the image size is not positive.
	ErrBadFrame = errors.New("tracking: bad frame size")
)

// Offset computes the relative move that centers det and zooms to fill. zoom
// is the camera's current zoom as freshly queried, not the probe's commanded
// zoom.
//
// The signs assume positive pan turns right and positive tilt turns down,
// so the move drives the box center toward the frame center. Cameras with
// other axis conventions set InvertPan or InvertTilt.
func (c Config) Offset(det detection.Detection, width, height int, zoom float64) (ptz.Offset, error) {
	if width <= 0 || height <= 0 {
		return ptz.Offset{}, fmt.Errorf("%w: %dx%d", ErrBadFrame, width, height)
	}
	if !det.BBox.Valid() {
		return ptz.Offset{}, fmt.Errorf("%w: %+v", ErrDegenerateBox, det.BBox)
	}

	w, h := float64(width), float64(height)
	bx, by := det.BBox.Center()
	dx := w/2 - bx
	dy := h/2 - by

	hFOV, vFOV := ptz.FOV(zoom)
	off := ptz.Offset{
		Pan:  -(dx / w) * hFOV,
		Tilt: -(dy / h) * vFOV,
	}
	if c.InvertPan {
		off.Pan = -off.Pan
	}
	if c.InvertTilt {
		off.Tilt = -off.Tilt
	}

	ratio := c.policy()(det.BBox, w, h, c.fill())
	off.Zoom = ptz.ClampZoom(zoom*ratio) - zoom

	// Keep exact zeros exact so callers can compare against a no-op move.
	off.Pan = noNegZero(off.Pan)
	off.Tilt = noNegZero(off.Tilt)
	off.Zoom = noNegZero(off.Zoom)
	return off, nil
}

func (c Config) policy() ZoomPolicy {
	if c.Zoom == nil {
		return WidthRatio
	}
	return c.Zoom
}

func (c Config) fill() float64 {
	if c.TargetFill <= 0 || c.TargetFill > 1 {
		return DefaultTargetFill
	}
	return c.TargetFill
}

func noNegZero(v float64) float64 {
	if v == 0 {
		return 0
	}
	return v
}
