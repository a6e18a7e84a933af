package natsbridge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/smazurov/camctl/internal/commands"
	"github.com/smazurov/camctl/internal/events"
)

// Subject prefixes for NATS topics.
const (
	SubjectControlPrefix = "camctl.control"
	SubjectCamerasPrefix = "camctl.cameras"
)

// SubjectControl returns the request subject of a command method.
func SubjectControl(method string) string {
	return SubjectControlPrefix + "." + method
}

// SubjectCameraEvents returns the subject carrying the events of one camera session.
func SubjectCameraEvents(textureID int64) string {
	return fmt.Sprintf("%s.%d.events", SubjectCamerasPrefix, textureID)
}

// methodFromSubject extracts the method of a control subject.
func methodFromSubject(subject string) (string, bool) {
	method, ok := strings.CutPrefix(subject, SubjectControlPrefix+".")
	return method, ok && method != "" && !strings.Contains(method, ".")
}

// Reply is the response to a control request. Exactly one of Result and
// Error is set; a successful command without a value carries a null result.
type Reply struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *commands.Error `json:"error,omitempty"`
}

// Marshal serializes the message to JSON.
func (r Reply) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalReply deserializes a Reply from JSON.
func UnmarshalReply(data []byte) (Reply, error) {
	var r Reply
	err := json.Unmarshal(data, &r)
	return r, err
}

func newReply(result any, err error) Reply {
	if err != nil {
		return Reply{Error: commands.WireError(err)}
	}
	data, merr := json.Marshal(result)
	if merr != nil {
		return Reply{Error: &commands.Error{Code: commands.CodeIOError, Message: merr.Error()}}
	}
	return Reply{Result: data}
}

// EventMessage wraps a camera event with its name.
type EventMessage struct {
	Type  string          `json:"type"`
	Event json.RawMessage `json:"event"`
}

// UnmarshalEvent deserializes an EventMessage from JSON.
func UnmarshalEvent(data []byte) (EventMessage, error) {
	var m EventMessage
	err := json.Unmarshal(data, &m)
	return m, err
}

// eventName matches the SSE event names of the HTTP binding.
func eventName(e events.CameraEvent) string {
	switch e.(type) {
	case events.CameraErrorEvent:
		return "error"
	case events.CameraClosingEvent:
		return "camera-closing"
	case events.CameraStateChangedEvent:
		return "state-changed"
	case events.RecordingStateChangedEvent:
		return "recording-changed"
	case events.StillCapturedEvent:
		return "still-captured"
	case events.ContainerRepairedEvent:
		return "recording-repaired"
	default:
		return "unknown"
	}
}

func marshalEvent(e events.CameraEvent) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(EventMessage{Type: eventName(e), Event: body})
}
