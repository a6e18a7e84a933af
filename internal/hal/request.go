package hal

import (
	"slices"

	"github.com/smazurov/camctl/internal/sizing"
)

// Template selects the device-tuned defaults a request starts from.
type Template int

const (
	TemplatePreview Template = iota
	TemplateStillCapture
	TemplateRecord
)

func (t Template) String() string {
	switch t {
	case TemplateStillCapture:
		return "still"
	case TemplateRecord:
		return "record"
	default:
		return "preview"
	}
}

type ControlMode int

const (
	ControlModeOff ControlMode = iota
	ControlModeAuto
)

type AFMode int

const (
	AFModeOff AFMode = iota
	AFModeAuto
	AFModeContinuousPicture
)

type AFTrigger int

const (
	AFTriggerIdle AFTrigger = iota
	AFTriggerStart
	AFTriggerCancel
)

// MeteringWeightMax is the largest metering region weight.
const MeteringWeightMax = 1000

// MeteringRectangle is a metering region in sensor active-array coordinates.
type MeteringRectangle struct {
	X, Y, Width, Height int
	Weight              int
}

// FocusRegion returns a size x size rectangle centered on (x, y) with its
// origin clamped to the array.
func FocusRegion(x, y, size, weight int) MeteringRectangle {
	return MeteringRectangle{
		X:      max(x-size/2, 0),
		Y:      max(y-size/2, 0),
		Width:  size,
		Height: size,
		Weight: weight,
	}
}

// Request is an immutable capture request. The With methods return copies.
type Request struct {
	Template        Template
	Targets         []Surface
	ControlMode     ControlMode
	AFMode          AFMode
	AFTrigger       AFTrigger
	AFRegions       []MeteringRectangle
	JPEGOrientation int
	Tag             string
}

// NewRequest starts a request from a template.
func NewRequest(t Template, targets ...Surface) Request {
	return Request{Template: t, Targets: slices.Clone(targets)}
}

func (r Request) clone() Request {
	r.Targets = slices.Clone(r.Targets)
	r.AFRegions = slices.Clone(r.AFRegions)
	return r
}

func (r Request) WithControlMode(m ControlMode) Request {
	r = r.clone()
	r.ControlMode = m
	return r
}

func (r Request) WithAFMode(m AFMode) Request {
	r = r.clone()
	r.AFMode = m
	return r
}

func (r Request) WithAFTrigger(t AFTrigger) Request {
	r = r.clone()
	r.AFTrigger = t
	return r
}

func (r Request) WithAFRegions(regions ...MeteringRectangle) Request {
	r = r.clone()
	r.AFRegions = slices.Clone(regions)
	return r
}

func (r Request) WithJPEGOrientation(deg int) Request {
	r = r.clone()
	r.JPEGOrientation = deg
	return r
}

func (r Request) WithTag(tag string) Request {
	r = r.clone()
	r.Tag = tag
	return r
}

// HasTarget reports whether s is one of the request targets.
func (r Request) HasTarget(s Surface) bool {
	return slices.ContainsFunc(r.Targets, func(t Surface) bool { return t.SurfaceID() == s.SurfaceID() })
}

// EncoderConfig configures a recording.
type EncoderConfig struct {
	OutputPath      string
	VideoSize       sizing.Resolution
	VideoBitRate    int
	VideoFrameRate  int
	AudioSampleRate int
	OrientationHint int
}

// EncoderFactory configures and prepares encoders.
type EncoderFactory interface {
	NewEncoder(cfg EncoderConfig) (Encoder, error)
}

// Encoder is a prepared MPEG-4 (H.264 + AAC) recorder fed from a surface and
// the microphone.
type Encoder interface {
	InputSurface() Surface
	Start() error
	// Stop finalizes the output file.
	Stop() error
	Reset()
	Release()
}
