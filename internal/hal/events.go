package hal

// Event is a hardware notification.
type Event interface {
	halEvent()
}

// DeviceErrorCode classifies fatal device errors.
type DeviceErrorCode int

const (
	DeviceErrorInUse DeviceErrorCode = iota + 1
	DeviceErrorMaxInUse
	DeviceErrorDisabled
	DeviceErrorDevice
	DeviceErrorService
)

// Description is the message surfaced to callers for the code.
func (c DeviceErrorCode) Description() string {
	switch c {
	case DeviceErrorInUse:
		return "The camera device is in use already."
	case DeviceErrorMaxInUse:
		return "Max cameras in use"
	case DeviceErrorDisabled:
		return "The camera device could not be opened due to a device policy."
	case DeviceErrorDevice:
		return "The camera device has encountered a fatal error"
	case DeviceErrorService:
		return "The camera service has encountered a fatal error."
	default:
		return "Unknown camera error"
	}
}

// FailureReason classifies failed captures.
type FailureReason int

const (
	FailureUnknown FailureReason = iota
	FailureError
	FailureFlushed
)

// Description is the message surfaced to callers for the reason.
func (r FailureReason) Description() string {
	switch r {
	case FailureError:
		return "An error happened in the framework"
	case FailureFlushed:
		return "The capture has failed due to an abortCaptures() call"
	default:
		return "Unknown reason"
	}
}

type (
	DeviceOpened struct {
		Device Device
	}
	DeviceClosed       struct{}
	DeviceDisconnected struct{}
	DeviceError        struct {
		Code DeviceErrorCode
	}

	SessionConfigured struct {
		Session Session
	}
	SessionConfigureFailed struct{}
	SessionClosed          struct{}

	CaptureCompleted struct {
		Request Request
	}
	CaptureFailed struct {
		Request Request
		Reason  FailureReason
	}

	ImageAvailable struct {
		Data []byte
	}
)

func (DeviceOpened) halEvent()           {}
func (DeviceClosed) halEvent()           {}
func (DeviceDisconnected) halEvent()     {}
func (DeviceError) halEvent()            {}
func (SessionConfigured) halEvent()      {}
func (SessionConfigureFailed) halEvent() {}
func (SessionClosed) halEvent()          {}
func (CaptureCompleted) halEvent()       {}
func (CaptureFailed) halEvent()          {}
func (ImageAvailable) halEvent()         {}
