// Package led drives a board LED as a camera activity indicator.
package led

// Pattern is what the indicator shows.
type Pattern string

// Indicator patterns.
const (
	PatternOff   Pattern = "off"
	PatternBlink Pattern = "blink"
	PatternSolid Pattern = "solid"
)

// Controller abstracts LED hardware control across different SBC boards.
type Controller interface {
	// Set switches the LED to pattern.
	Set(pattern Pattern) error
	// Name returns the LED the controller drives, empty for no-op.
	Name() string
}
