package domain

import "github.com/pion/webrtc/v4"

// Phase is the comparable tag of a State.
type Phase int

const (
	PhaseInitializing Phase = iota
	PhaseAwaitingToken
	PhaseCreatingClient
	PhaseStarting
	PhaseReady
	PhaseFailed
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseAwaitingToken:
		return "awaiting_token"
	case PhaseCreatingClient:
		return "creating_client"
	case PhaseStarting:
		return "starting"
	case PhaseReady:
		return "ready"
	case PhaseFailed:
		return "failed"
	case PhaseTerminated:
		return "terminated"
	}
	return "unknown"
}

// Stream is the inbound avatar media. Implemented by the session client adapter.
type Stream interface {
	ID() string
	Tracks() []*webrtc.TrackRemote
}

// State is one of Initializing, AwaitingToken, CreatingClient, Starting,
// Ready, Failed or Terminated. Values are immutable.
type State interface {
	Phase() Phase
	sealed()
}

type (
	Initializing   struct{}
	AwaitingToken  struct{}
	CreatingClient struct{}
	Starting       struct{}
	Terminated     struct{}
)

// Ready always carries a stream.
type Ready struct {
	Stream Stream
}

// Failed always carries an error. Resume is set only for recoverable
// failures and holds the state to restore when the condition clears.
type Failed struct {
	Err    *SessionError
	Resume State
}

func (Initializing) Phase() Phase   { return PhaseInitializing }
func (AwaitingToken) Phase() Phase  { return PhaseAwaitingToken }
func (CreatingClient) Phase() Phase { return PhaseCreatingClient }
func (Starting) Phase() Phase       { return PhaseStarting }
func (Ready) Phase() Phase          { return PhaseReady }
func (Failed) Phase() Phase         { return PhaseFailed }
func (Terminated) Phase() Phase     { return PhaseTerminated }

func (Initializing) sealed()   {}
func (AwaitingToken) sealed()  {}
func (CreatingClient) sealed() {}
func (Starting) sealed()       {}
func (Ready) sealed()          {}
func (Failed) sealed()         {}
func (Terminated) sealed()     {}

// NewReady returns ok=false for a nil stream.
func NewReady(s Stream) (Ready, bool) {
	if s == nil {
		return Ready{}, false
	}
	return Ready{Stream: s}, true
}

// NewFailed never returns a Failed without an error.
func NewFailed(err *SessionError) Failed {
	if err == nil {
		err = NewSessionError(KindClientStart, "", nil)
	}
	return Failed{Err: err}
}

// Reason is the plain-text message shown to the user.
func (f Failed) Reason() string { return f.Err.Error() }

// Recoverable reports whether a later reconnection clears this failure.
func (f Failed) Recoverable() bool {
	return f.Err.Kind == KindDisconnected && f.Resume != nil
}

// StreamOf returns the stream held by s, looking through a recoverable failure.
func StreamOf(s State) Stream {
	switch v := s.(type) {
	case Ready:
		return v.Stream
	case Failed:
		if v.Resume != nil {
			return StreamOf(v.Resume)
		}
	}
	return nil
}
