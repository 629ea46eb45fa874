package scan

import (
	"time"

	"github.com/teslashibe/go-ptzscan/pkg/ptz"
)

// ProbeOutcome is how a probe position ended.
type ProbeOutcome int

const (
	ProbeEmpty ProbeOutcome = iota
	ProbeFound
	ProbeMoveFailed
	ProbeCaptureFailed
	ProbeDetectFailed
)

func (o ProbeOutcome) String() string {
	switch o {
	case ProbeEmpty:
		return "empty"
	case ProbeFound:
		return "found"
	case ProbeMoveFailed:
		return "move_failed"
	case ProbeCaptureFailed:
		return "capture_failed"
	case ProbeDetectFailed:
		return "detect_failed"
	default:
		return "unknown"
	}
}

// ProbeResult describes one visited position.
type ProbeResult struct {
	EventID    string
	Iteration  int
	Pose       ptz.Pose
	Outcome    ProbeOutcome
	Detections int
	Qualifying int
	Err        error
}

// TrackOutcome is how a tracking maneuver ended.
type TrackOutcome int

const (
	TrackOK TrackOutcome = iota
	TrackPositionFailed
	TrackUnusable
	TrackMoveFailed
	TrackCaptureFailed
)

func (o TrackOutcome) String() string {
	switch o {
	case TrackOK:
		return "ok"
	case TrackPositionFailed:
		return "position_failed"
	case TrackUnusable:
		return "unusable"
	case TrackMoveFailed:
		return "move_failed"
	case TrackCaptureFailed:
		return "capture_failed"
	default:
		return "unknown"
	}
}

// TrackResult describes one tracking maneuver.
type TrackResult struct {
	EventID    string
	Label      string
	Confidence float64

	// Offset is the relative move sent, zero for batch targets.
	Offset ptz.Offset

	// Target is the absolute pose sent in batch mode.
	Target *ptz.Pose

	// Final is the pose reported after settling, if it could be read.
	Final   *ptz.Pose
	Outcome TrackOutcome
	Err     error
}

// SweepResult summarizes one iteration.
type SweepResult struct {
	Iteration int
	Tilt      float64
	NextTilt  float64
	Found     bool
	Probes    int
	Tracks    int
	Elapsed   time.Duration
}

// Observer receives controller progress. Calls are made synchronously from
// the scan loop and must not block.
type Observer interface {
	StateChanged(from, to State)
	SweepStarted(iteration int, tilt float64)
	ProbeFinished(r ProbeResult)
	TrackFinished(r TrackResult)
	SweepFinished(r SweepResult)
}

// Observers fans out to several observers.
type Observers []Observer

func (o Observers) StateChanged(from, to State) {
	for _, x := range o {
		x.StateChanged(from, to)
	}
}

func (o Observers) SweepStarted(iteration int, tilt float64) {
	for _, x := range o {
		x.SweepStarted(iteration, tilt)
	}
}

func (o Observers) ProbeFinished(r ProbeResult) {
	for _, x := range o {
		x.ProbeFinished(r)
	}
}

func (o Observers) TrackFinished(r TrackResult) {
	for _, x := range o {
		x.TrackFinished(r)
	}
}

func (o Observers) SweepFinished(r SweepResult) {
	for _, x := range o {
		x.SweepFinished(r)
	}
}
