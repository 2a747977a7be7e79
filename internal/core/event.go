package core

type EventKind int

const (
	EventStreamReady EventKind = iota + 1
	EventStreamStopped
	EventError
	EventDisconnected
	EventReconnected
)

func (k EventKind) String() string {
	switch k {
	case EventStreamReady:
		return "stream_ready"
	case EventStreamStopped:
		return "stream_stopped"
	case EventError:
		return "error"
	case EventDisconnected:
		return "disconnected"
	case EventReconnected:
		return "reconnected"
	}
	return "unknown"
}

// Event is emitted by a SessionClient. Stream is set for EventStreamReady,
// Message for EventError.
type Event struct {
	Kind    EventKind
	Stream  MediaStream
	Message string
}
