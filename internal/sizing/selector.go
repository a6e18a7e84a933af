// Package sizing picks still, preview and recording sizes from the output
// sizes a camera device reports.
package sizing

import (
	"errors"
	"slices"
)

// DefaultMaxShortSide is the largest short side most hardware encoders accept.
const DefaultMaxShortSide = 1080

// ErrNoSizes is returned when a device reports no output sizes.
var ErrNoSizes = errors.New("no output sizes available")

// Selection is the outcome of BestPreviewAndRecordSize.
type Selection struct {
	Preview Resolution
	Record  Resolution
	// Ideal is false when no size matched the aspect ratio and minimum
	// and both sizes fell back to the first reported size.
	Ideal bool
}

// BestCaptureSize returns the size with the largest area. The first of
// several equal-area sizes wins.
func BestCaptureSize(sizes []Resolution) (Resolution, error) {
	if len(sizes) == 0 {
		return Resolution{}, ErrNoSizes
	}
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.Area() > best.Area() {
			best = s
		}
	}
	return best, nil
}

// TargetAspectRatio returns requested when positive, otherwise the aspect
// ratio of the still capture size.
func TargetAspectRatio(requested float64, capture Resolution) float64 {
	if requested > 0 {
		return requested
	}
	return capture.AspectRatio()
}

// AdjustForDisplayRotation swaps the minimum preview size when the display is
// rotated by a quarter turn, so comparisons happen in sensor orientation.
func AdjustForDisplayRotation(minPreview Resolution, quarterTurn bool) Resolution {
	if quarterTurn {
		return minPreview.Swapped()
	}
	return minPreview
}

// BestPreviewAndRecordSize keeps the sizes whose aspect ratio equals
// targetRatio (single precision, as devices report it) and that are strictly
// larger than minPreview in both dimensions. The smallest survivor becomes the
// preview size; the largest survivor whose short side fits maxShortSide
// becomes the record size. A non-positive maxShortSide means
// DefaultMaxShortSide.
func BestPreviewAndRecordSize(sizes []Resolution, minPreview Resolution, targetRatio float64, maxShortSide int) (Selection, error) {
	if len(sizes) == 0 {
		return Selection{}, ErrNoSizes
	}
	if maxShortSide <= 0 {
		maxShortSide = DefaultMaxShortSide
	}

	target := float32(targetRatio)
	var candidates []Resolution
	for _, s := range sizes {
		if s.Height == 0 {
			continue
		}
		if float32(s.Width)/float32(s.Height) != target {
			continue
		}
		if s.Width > minPreview.Width && s.Height > minPreview.Height {
			candidates = append(candidates, s)
		}
	}

	if len(candidates) == 0 {
		return Selection{Preview: sizes[0], Record: sizes[0]}, nil
	}

	slices.SortStableFunc(candidates, func(a, b Resolution) int {
		switch {
		case a.Area() < b.Area():
			return -1
		case a.Area() > b.Area():
			return 1
		}
		return 0
	})

	sel := Selection{Preview: candidates[0], Record: candidates[0], Ideal: true}
	for i := len(candidates) - 1; i >= 0; i-- {
		if candidates[i].ShortSide() <= maxShortSide {
			sel.Record = candidates[i]
			break
		}
	}
	return sel, nil
}
