package orientation

import "testing"

func TestStillOrientation(t *testing.T) {
	tests := []struct {
		display, sensor int
		front           bool
		want            int
	}{
		{0, 90, false, 90},
		{90, 90, false, 0},
		{180, 90, false, 270},
		{270, 90, false, 180},
		{0, 270, true, 270},
		{90, 270, true, 0},
		{270, 270, true, 180},
	}

	for _, tt := range tests {
		if got := StillOrientation(tt.display, tt.sensor, tt.front); got != tt.want {
			t.Errorf("StillOrientation(%d, %d, %v) = %d, want %d", tt.display, tt.sensor, tt.front, got, tt.want)
		}
	}
}

func TestVideoOrientationHint(t *testing.T) {
	tests := []struct {
		display, sensor int
		front           bool
		want            int
	}{
		{0, 90, false, 90},
		{90, 90, false, 180},
		{270, 90, false, 0},
		{90, 270, true, 180},
		{180, 270, true, 90},
	}

	for _, tt := range tests {
		if got := VideoOrientationHint(tt.display, tt.sensor, tt.front); got != tt.want {
			t.Errorf("VideoOrientationHint(%d, %d, %v) = %d, want %d", tt.display, tt.sensor, tt.front, got, tt.want)
		}
	}
}

func TestOrientationRangeAndSymmetry(t *testing.T) {
	for _, display := range []int{0, 90, 180, 270} {
		for _, sensor := range []int{0, 90, 180, 270} {
			for _, front := range []bool{false, true} {
				still := StillOrientation(display, sensor, front)
				video := VideoOrientationHint(display, sensor, front)
				if still < 0 || still >= 360 || video < 0 || video >= 360 {
					t.Fatalf("out of range: still=%d video=%d", still, video)
				}
				if still%90 != 0 || video%90 != 0 {
					t.Fatalf("not a quarter turn: still=%d video=%d", still, video)
				}
				// flipping the lens facing swaps the two formulas
				if StillOrientation(display, sensor, !front) != video {
					t.Errorf("display=%d sensor=%d front=%v: still(!front)=%d, video=%d",
						display, sensor, front, StillOrientation(display, sensor, !front), video)
				}
			}
		}
	}
}

func TestRotation(t *testing.T) {
	for _, r := range []Rotation{Rotation0, Rotation90, Rotation180, Rotation270} {
		if FromDegrees(r.Degrees()) != r {
			t.Errorf("FromDegrees(%d) != %v", r.Degrees(), r)
		}
	}
	if !Rotation90.IsQuarterTurn() || !Rotation270.IsQuarterTurn() {
		t.Error("90 and 270 should be quarter turns")
	}
	if Rotation0.IsQuarterTurn() || Rotation180.IsQuarterTurn() {
		t.Error("0 and 180 should not be quarter turns")
	}
	if FromDegrees(-90) != Rotation270 {
		t.Errorf("FromDegrees(-90) = %v", FromDegrees(-90))
	}
}
