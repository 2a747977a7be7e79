package core

// Frame is a raw payload pushed to a viewer.
type Frame []byte

// SignalConnection abstracts a viewer messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
