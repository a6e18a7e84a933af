// Package orientation converts display rotation and sensor mounting into the
// rotation metadata written into stills and recordings.
package orientation

// Rotation is the display rotation relative to its natural orientation.
type Rotation int

const (
	Rotation0 Rotation = iota
	Rotation90
	Rotation180
	Rotation270
)

// Degrees returns the rotation in degrees.
func (r Rotation) Degrees() int {
	switch r {
	case Rotation90:
		return 90
	case Rotation180:
		return 180
	case Rotation270:
		return 270
	default:
		return 0
	}
}

// IsQuarterTurn reports whether the display is rotated by 90 or 270 degrees.
func (r Rotation) IsQuarterTurn() bool {
	return r == Rotation90 || r == Rotation270
}

// FromDegrees maps 0/90/180/270 to a Rotation. Other values map to Rotation0.
func FromDegrees(deg int) Rotation {
	switch normalize(deg) {
	case 90:
		return Rotation90
	case 180:
		return Rotation180
	case 270:
		return Rotation270
	default:
		return Rotation0
	}
}

// StillOrientation returns the JPEG orientation for a still capture.
func StillOrientation(displayDeg, sensorDeg int, frontFacing bool) int {
	if frontFacing {
		displayDeg = -displayDeg
	}
	return normalize(-displayDeg + sensorDeg)
}

// VideoOrientationHint returns the rotation hint stored in a recording.
func VideoOrientationHint(displayDeg, sensorDeg int, frontFacing bool) int {
	if frontFacing {
		displayDeg = -displayDeg
	}
	return normalize(displayDeg + sensorDeg)
}

func normalize(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}
