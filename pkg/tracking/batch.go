package tracking

import (
	"github.com/teslashibe/go-ptzscan/pkg/detection"
	"github.com/teslashibe/go-ptzscan/pkg/ptz"
)

// Targets computes one absolute pose per detection, all against the same
// frame captured at pose. Pan is wrapped and tilt and zoom are clamped.
//
// Every offset is measured in the pre-move frame, so later targets are less
// precise than a closed-loop track. Unusable detections are skipped; the
// returned slice holds the detections that produced a target, in order.
func (c Config) Targets(dets []detection.Detection, width, height int, pose ptz.Pose) ([]ptz.Pose, []detection.Detection) {
	var (
		poses []ptz.Pose
		used  []detection.Detection
	)
	for _, d := range dets {
		off, err := c.Offset(d, width, height, pose.Zoom)
		if err != nil {
			continue
		}
		poses = append(poses, pose.Add(off))
		used = append(used, d)
	}
	return poses, used
}
