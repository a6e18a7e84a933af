package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers
// Usage: bus.Publish(CameraErrorEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case CameraErrorEvent:
		event.Publish(b.dispatcher, e)
	case CameraClosingEvent:
		event.Publish(b.dispatcher, e)
	case CameraStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case RecordingStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case StillCapturedEvent:
		event.Publish(b.dispatcher, e)
	case ContainerRepairedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler type selects the event type. Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e CameraErrorEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(CameraErrorEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CameraClosingEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CameraStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RecordingStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StillCapturedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ContainerRepairedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// SubscribeCamera delivers every camera-scoped event to handler. Returns a
// function that removes all the subscriptions.
func (b *Bus) SubscribeCamera(handler func(CameraEvent)) func() {
	unsubs := []func(){
		event.Subscribe(b.dispatcher, func(e CameraErrorEvent) { handler(e) }),
		event.Subscribe(b.dispatcher, func(e CameraClosingEvent) { handler(e) }),
		event.Subscribe(b.dispatcher, func(e CameraStateChangedEvent) { handler(e) }),
		event.Subscribe(b.dispatcher, func(e RecordingStateChangedEvent) { handler(e) }),
		event.Subscribe(b.dispatcher, func(e StillCapturedEvent) { handler(e) }),
		event.Subscribe(b.dispatcher, func(e ContainerRepairedEvent) { handler(e) }),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
