package heap

// Handle is the 32-bit identity of a host value inside the sandbox.
// It travels as an externref; handle 0 is the null reference.
type Handle uint32

// Reserved handles. They are never allocated, counted or released.
const (
	Null      Handle = 0
	Undefined Handle = 1
	True      Handle = 2
	False     Handle = 3
	Global    Handle = 4

	firstDynamic Handle = 8
)

// Reserved reports whether h is one of the fixed handles.
func (h Handle) Reserved() bool {
	return h < firstDynamic
}

// EventType identifies a handle lifecycle event.
type EventType uint8

const (
	EventCreated EventType = iota
	EventRetained
	EventReleased
)

func (e EventType) String() string {
	switch e {
	case EventCreated:
		return "created"
	case EventRetained:
		return "retained"
	case EventReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Event represents a handle lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Refs   uint32
	Type   EventType
}

// Observer receives notifications about handle lifecycle events.
type Observer interface {
	OnHandleEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnHandleEvent implements Observer.
func (f ObserverFunc) OnHandleEvent(e Event) { f(e) }

// Dropper is optionally implemented by values that need cleanup when their
// last handle is released.
type Dropper interface {
	Drop()
}
