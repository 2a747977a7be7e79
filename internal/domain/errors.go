package domain

import "errors"

type ErrorKind int

const (
	KindAuth ErrorKind = iota + 1
	KindClientStart
	KindTimeout
	KindStream
	KindDisconnected
	KindMuteToggle
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindClientStart:
		return "client_start"
	case KindTimeout:
		return "timeout"
	case KindStream:
		return "stream"
	case KindDisconnected:
		return "disconnected"
	case KindMuteToggle:
		return "mute_toggle"
	}
	return "unknown"
}

const (
	MsgTokenMissing  = "Failed to get token"
	MsgUnknown       = "Unknown error occurred"
	MsgTimeout       = "Stream initialization timeout"
	MsgDisconnected  = "Stream disconnected"
	MsgStreamStopped = "Stream stopped"
)

var (
	ErrNoSession      = errors.New("no live session client")
	ErrToggleInFlight = errors.New("mute toggle already in flight")
	ErrTerminated     = errors.New("session terminated")
)

// SessionError is the single error type surfaced by the session lifecycle.
// Msg is the user-facing text; Err the underlying cause, if any.
type SessionError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func NewSessionError(kind ErrorKind, msg string, err error) *SessionError {
	return &SessionError{Kind: kind, Msg: msg, Err: err}
}

func (e *SessionError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil && e.Err.Error() != "" {
		return e.Err.Error()
	}
	return MsgUnknown
}

func (e *SessionError) Unwrap() error { return e.Err }

// AsSessionError wraps err in kind unless it already is a SessionError.
func AsSessionError(kind ErrorKind, err error) *SessionError {
	var se *SessionError
	if errors.As(err, &se) {
		return se
	}
	return NewSessionError(kind, "", err)
}
