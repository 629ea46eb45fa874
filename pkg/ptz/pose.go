package ptz

import (
	"fmt"
	"math"
)

// Mechanical and optical limits of the camera.
const (
	MinTilt = -20.0
	MaxTilt = 90.0
	MinZoom = 1.0
	MaxZoom = 40.0
)

// Pose is an absolute camera position. Pan and tilt are in degrees, zoom is
// the optical magnification (1 = widest).
type Pose struct {
	Pan  float64 `json:"pan"`
	Tilt float64 `json:"tilt"`
	Zoom float64 `json:"zoom"`
}

// Normalize returns the pose with pan wrapped into [0,360) and tilt and zoom
// clamped to the camera limits.
func (p Pose) Normalize() Pose {
	return Pose{
		Pan:  WrapPan(p.Pan),
		Tilt: ClampTilt(p.Tilt),
		Zoom: ClampZoom(p.Zoom),
	}
}

// Add applies a relative offset and normalizes the result.
func (p Pose) Add(o Offset) Pose {
	return Pose{
		Pan:  p.Pan + o.Pan,
		Tilt: p.Tilt + o.Tilt,
		Zoom: p.Zoom + o.Zoom,
	}.Normalize()
}

func (p Pose) String() string {
	return fmt.Sprintf("P=%.2f T=%.2f Z=%.2f", p.Pan, p.Tilt, p.Zoom)
}

// Offset is a relative move in the same units as Pose.
type Offset struct {
	Pan  float64 `json:"pan"`
	Tilt float64 `json:"tilt"`
	Zoom float64 `json:"zoom"`
}

// IsZero reports whether the offset would not move the camera at all.
func (o Offset) IsZero() bool {
	return o.Pan == 0 && o.Tilt == 0 && o.Zoom == 0
}

func (o Offset) String() string {
	return fmt.Sprintf("dP=%.2f dT=%.2f dZ=%.2f", o.Pan, o.Tilt, o.Zoom)
}

// WrapPan maps any angle into [0,360).
func WrapPan(pan float64) float64 {
	p := math.Mod(pan, 360)
	if p < 0 {
		p += 360
	}
	// math.Mod(-1e-18, 360) + 360 rounds to 360.
	if p >= 360 {
		p = 0
	}
	return p
}

// ClampTilt limits tilt to [MinTilt, MaxTilt].
func ClampTilt(tilt float64) float64 {
	return clamp(tilt, MinTilt, MaxTilt)
}

// ClampZoom limits zoom to [MinZoom, MaxZoom].
func ClampZoom(zoom float64) float64 {
	return clamp(zoom, MinZoom, MaxZoom)
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
