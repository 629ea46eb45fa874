// Package ptz provides the camera side of the scanner: poses, the zoom to
// field-of-view model, and the capability interfaces the scan loop drives.
//
// Interfaces are split by capability so consumers depend only on what they
// use. None of the calls wait for the mechanism to settle; callers own the
// settle delay.
package ptz

import "context"

// Mover commands camera motion.
type Mover interface {
	MoveAbsolute(ctx context.Context, pose Pose) error
	MoveRelative(ctx context.Context, off Offset) error
}

// Positioner reports where the camera actually is.
type Positioner interface {
	Position(ctx context.Context) (Pose, error)
}

// Snapshotter captures a still JPEG.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]byte, error)
}

// Stopper halts any motion in progress.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Camera is the composite interface for full camera control.
type Camera interface {
	Mover
	Positioner
	Snapshotter
	Stopper
}

var (
	_ Camera = (*Client)(nil)
	_ Camera = (*Mock)(nil)
)
