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
// Usage: bus.Publish(ModeChangedEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case ModeChangedEvent:
		event.Publish(b.dispatcher, e)
	case InterlockTrippedEvent:
		event.Publish(b.dispatcher, e)
	case DeviceErrorEvent:
		event.Publish(b.dispatcher, e)
	case PowerChangedEvent:
		event.Publish(b.dispatcher, e)
	case ContextChangedEvent:
		event.Publish(b.dispatcher, e)
	case CapabilityChangedEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function
// The handler type determines which events it receives
// Returns an unsubscribe function
// Usage: unsub := bus.Subscribe(func(e PowerChangedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(ModeChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(InterlockTrippedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DeviceErrorEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PowerChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ContextChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CapabilityChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Return a no-op function if handler type is not recognized
		return func() {}
	}
}
