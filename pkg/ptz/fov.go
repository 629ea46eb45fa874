package ptz

// Field of view at the two ends of the zoom range, in degrees.
const (
	HFOVWide = 65.66
	HFOVTele = 1.88
	VFOVWide = 39.40
	VFOVTele = 1.09
)

// FOV returns the horizontal and vertical field of view in degrees for a zoom
// level. Zoom is clamped to [MinZoom, MaxZoom] and both axes are linearly
// interpolated between the wide and tele ends.
func FOV(zoom float64) (h, v float64) {
	t := (ClampZoom(zoom) - MinZoom) / (MaxZoom - MinZoom)
	h = HFOVWide - t*(HFOVWide-HFOVTele)
	v = VFOVWide - t*(VFOVWide-VFOVTele)
	return h, v
}
