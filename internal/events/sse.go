package events

import "github.com/kelindar/event"

// SubscribeToChannel bridges kelindar/event callback-based subscriptions to channels
// This is needed for SSE integration where Huma expects a channel-based select loop.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
			// Drop event if channel is full (non-blocking)
		}
	})
}

// SubscribeTextureToChannel forwards the camera events of one texture id to ch,
// dropping events when ch is full.
func SubscribeTextureToChannel(bus *Bus, textureID int64, ch chan<- any) func() {
	return bus.SubscribeCamera(func(e CameraEvent) {
		if e.Texture() != textureID {
			return
		}
		select {
		case ch <- e:
		default:
		}
	})
}
