package sizing

import (
	"errors"
	"fmt"
	"strings"
)

// Resolution is a width/height pair in pixels.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns Width*Height.
func (r Resolution) Area() int64 {
	return int64(r.Width) * int64(r.Height)
}

// AspectRatio returns Width/Height, or 0 for a zero height.
func (r Resolution) AspectRatio() float64 {
	if r.Height == 0 {
		return 0
	}
	return float64(r.Width) / float64(r.Height)
}

// ShortSide returns the smaller of the two dimensions.
func (r Resolution) ShortSide() int {
	return min(r.Width, r.Height)
}

// Swapped returns the resolution with width and height exchanged.
func (r Resolution) Swapped() Resolution {
	return Resolution{Width: r.Height, Height: r.Width}
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Preset names a minimum preview resolution requested by the caller.
type Preset string

const (
	PresetLow    Preset = "low"
	PresetMedium Preset = "medium"
	PresetHigh   Preset = "high"
)

// ErrUnknownPreset is returned by ParsePreset for names outside low/medium/high.
var ErrUnknownPreset = errors.New("unknown preset")

// ParsePreset validates a preset name. Matching is case-sensitive.
func ParsePreset(name string) (Preset, error) {
	switch p := Preset(name); p {
	case PresetLow, PresetMedium, PresetHigh:
		return p, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownPreset, name)
}

// MinPreviewSize returns the smallest preview size the preset accepts.
func (p Preset) MinPreviewSize() Resolution {
	switch p {
	case PresetHigh:
		return Resolution{Width: 1024, Height: 768}
	case PresetMedium:
		return Resolution{Width: 640, Height: 480}
	default:
		return Resolution{Width: 320, Height: 240}
	}
}

// ParseResolution parses "WxH".
func ParseResolution(s string) (Resolution, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Resolution{}, fmt.Errorf("invalid resolution %q", s)
	}
	var r Resolution
	if _, err := fmt.Sscanf(w+" "+h, "%d %d", &r.Width, &r.Height); err != nil {
		return Resolution{}, fmt.Errorf("invalid resolution %q: %w", s, err)
	}
	if r.Width <= 0 || r.Height <= 0 {
		return Resolution{}, fmt.Errorf("invalid resolution %q", s)
	}
	return r, nil
}
