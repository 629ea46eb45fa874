package scan

import "github.com/teslashibe/go-ptzscan/pkg/ptz"

// State is the controller state.
type State int

const (
	Idle State = iota
	Sweeping
	Tracking
	Cooldown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sweeping:
		return "sweeping"
	case Tracking:
		return "tracking"
	case Cooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// PanPositions returns 0, step, 2*step, ... below 360.
func PanPositions(step float64) []float64 {
	if step <= 0 {
		return nil
	}
	var out []float64
	for i := 0; ; i++ {
		p := float64(i) * step
		if p >= 360 {
			break
		}
		out = append(out, p)
	}
	return out
}

// NextTilt returns the base tilt after an empty sweep: one boredom step
// lower, or back to initial once that would pass below -20.
func NextTilt(current, initial, boredom float64) float64 {
	next := current - boredom
	if next < ptz.MinTilt {
		return initial
	}
	return next
}
