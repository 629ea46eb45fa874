package tracking

import (
	"fmt"
	"math"
	"strings"

	"github.com/teslashibe/go-ptzscan/pkg/detection"
	"github.com/teslashibe/go-ptzscan/pkg/ptz"
)

// ZoomPolicy returns the zoom multiplier that makes box fill the requested
// fraction of a width x height frame. box is never degenerate.
type ZoomPolicy func(box detection.BoundingBox, width, height, fill float64) float64

// WidthRatio scales so the box width becomes fill*width.
func WidthRatio(box detection.BoundingBox, width, height, fill float64) float64 {
	return fill * width / box.Width()
}

// FitRatio scales so the box fits within fill of both frame axes, which keeps
// tall objects from overflowing vertically.
func FitRatio(box detection.BoundingBox, width, height, fill float64) float64 {
	return math.Min(fill*width/box.Width(), fill*height/box.Height())
}

// ParseZoomPolicy resolves "width" or "fit".
func ParseZoomPolicy(name string) (ZoomPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "width":
		return WidthRatio, nil
	case "fit":
		return FitRatio, nil
	}
	return nil, fmt.Errorf("tracking: unknown zoom policy %q (want width or fit)", name)
}

// Maneuver is how a tracking offset is sent to the camera.
type Maneuver string

const (
	// Combined sends pan, tilt and zoom as one relative move.
	Combined Maneuver = "combined"

	// TwoStep centers first, then zooms in a second relative move.
	TwoStep Maneuver = "two-step"
)

// ParseManeuver resolves "combined" or "two-step".
func ParseManeuver(name string) (Maneuver, error) {
	switch m := Maneuver(strings.ToLower(strings.TrimSpace(name))); m {
	case "":
		return Combined, nil
	case Combined, TwoStep:
		return m, nil
	}
	return "", fmt.Errorf("tracking: unknown maneuver %q (want combined or two-step)", name)
}

// Steps splits an offset into the relative moves of the maneuver.
func (m Maneuver) Steps(off ptz.Offset) []ptz.Offset {
	if m != TwoStep {
		return []ptz.Offset{off}
	}
	return []ptz.Offset{
		{Pan: off.Pan, Tilt: off.Tilt},
		{Zoom: off.Zoom},
	}
}
