// Package detection finds objects matching query phrases in still images.
//
// Every backend reports a Reward in [0,1] where lower is better, so callers
// pick the best match with a single minimum no matter how the backend
// scored it (classifier confidence, box area ratio, ...).
package detection

import (
	"context"
	"sort"
)

// rewardEpsilon absorbs float error in 1-confidence, e.g. 1-0.9.
const rewardEpsilon = 1e-9

// BoundingBox is an axis-aligned box in image pixels.
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width returns the box width in pixels.
func (b BoundingBox) Width() float64 {
	return b.X2 - b.X1
}

// Height returns the box height in pixels.
func (b BoundingBox) Height() float64 {
	return b.Y2 - b.Y1
}

// Center returns the center point of the box.
func (b BoundingBox) Center() (x, y float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Area returns the box area, or 0 for a degenerate box.
func (b BoundingBox) Area() float64 {
	if !b.Valid() {
		return 0
	}
	return b.Width() * b.Height()
}

// Valid reports whether the box has positive width and height.
func (b BoundingBox) Valid() bool {
	return b.X1 < b.X2 && b.Y1 < b.Y2
}

// Detection is one object found in an image.
type Detection struct {
	BBox   BoundingBox `json:"bbox"`
	Label  string      `json:"label"`
	Reward float64     `json:"reward"`
}

// Confidence returns 1 - Reward.
func (d Detection) Confidence() float64 {
	return 1 - d.Reward
}

// Detector is the interface for detection backends.
type Detector interface {
	// Detect finds objects matching any of queries in a JPEG image.
	// The returned slice has no particular order.
	Detect(ctx context.Context, image []byte, queries []string) ([]Detection, error)

	// Close releases resources.
	Close() error
}

// Best returns the lowest-reward detection with a usable bounding box.
// It returns false when there is none.
func Best(dets []Detection) (Detection, bool) {
	var (
		best  Detection
		found bool
	)
	for _, d := range dets {
		if !d.BBox.Valid() {
			continue
		}
		if !found || d.Reward < best.Reward {
			best = d
			found = true
		}
	}
	return best, found
}

// Qualifies reports whether d meets a confidence threshold, i.e.
// reward <= 1 - threshold.
func Qualifies(d Detection, threshold float64) bool {
	return d.Reward <= 1-threshold+rewardEpsilon
}

// Qualifying returns the detections that meet threshold and have a usable
// box, ordered best first.
func Qualifying(dets []Detection, threshold float64) []Detection {
	var out []Detection
	for _, d := range dets {
		if d.BBox.Valid() && Qualifies(d, threshold) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Reward < out[j].Reward
	})
	return out
}
