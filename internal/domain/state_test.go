package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
)

type stream struct{ id string }

func (s stream) ID() string                    { return s.id }
func (s stream) Tracks() []*webrtc.TrackRemote { return nil }

func TestNewReady_RequiresStream(t *testing.T) {
	_, ok := NewReady(nil)
	assert.False(t, ok)

	r, ok := NewReady(stream{id: "s"})
	assert.True(t, ok)
	assert.Equal(t, PhaseReady, r.Phase())
}

func TestNewFailed_AlwaysCarriesError(t *testing.T) {
	f := NewFailed(nil)
	assert.NotNil(t, f.Err)
	assert.Equal(t, MsgUnknown, f.Reason())
	assert.False(t, f.Recoverable())
}

func TestFailed_Recoverable(t *testing.T) {
	ready := Ready{Stream: stream{id: "s"}}

	f := NewFailed(NewSessionError(KindDisconnected, MsgDisconnected, nil))
	assert.False(t, f.Recoverable(), "no resume state")
	f.Resume = ready
	assert.True(t, f.Recoverable())
	assert.Equal(t, "s", StreamOf(f).ID())

	stopped := NewFailed(NewSessionError(KindStream, MsgStreamStopped, nil))
	stopped.Resume = Starting{}
	assert.False(t, stopped.Recoverable())
	assert.Nil(t, StreamOf(stopped))
}

func TestStreamOf(t *testing.T) {
	assert.Nil(t, StreamOf(Starting{}))
	assert.Nil(t, StreamOf(Terminated{}))
	assert.Nil(t, StreamOf(NewFailed(NewSessionError(KindTimeout, MsgTimeout, nil))))
	assert.Equal(t, "x", StreamOf(Ready{Stream: stream{id: "x"}}).ID())
}

func TestPhaseString(t *testing.T) {
	states := []State{Initializing{}, AwaitingToken{}, CreatingClient{}, Starting{}, Ready{}, Failed{}, Terminated{}}
	seen := map[string]bool{}
	for _, s := range states {
		name := s.Phase().String()
		assert.NotEqual(t, "unknown", name)
		assert.False(t, seen[name], name)
		seen[name] = true
	}
	assert.Equal(t, "unknown", Phase(99).String())
}

func TestSessionError(t *testing.T) {
	cause := errors.New("dial tcp: refused")

	withMsg := NewSessionError(KindAuth, MsgTokenMissing, cause)
	assert.Equal(t, MsgTokenMissing, withMsg.Error())
	assert.ErrorIs(t, withMsg, cause)

	assert.Equal(t, "dial tcp: refused", NewSessionError(KindAuth, "", cause).Error())
	assert.Equal(t, MsgUnknown, NewSessionError(KindAuth, "", nil).Error())
	assert.Equal(t, MsgUnknown, NewSessionError(KindAuth, "", errors.New("")).Error())
}

func TestAsSessionError(t *testing.T) {
	inner := NewSessionError(KindAuth, MsgTokenMissing, nil)
	wrapped := AsSessionError(KindClientStart, inner)
	assert.Same(t, inner, wrapped, "existing kind is kept")

	plain := AsSessionError(KindClientStart, errors.New("boom"))
	assert.Equal(t, KindClientStart, plain.Kind)
	assert.Equal(t, "boom", plain.Error())
}

func TestParseViewerID(t *testing.T) {
	_, err := ParseViewerID("")
	assert.ErrorIs(t, err, ErrViewerIDEmpty)

	_, err = ParseViewerID(strings.Repeat("x", MaxViewerIDLen+1))
	assert.ErrorIs(t, err, ErrViewerIDTooLong)

	v := NewViewer()
	id, err := ParseViewerID(string(v.ID))
	assert.NoError(t, err)
	assert.Equal(t, v.ID, id)
}

func TestToken_Redacted(t *testing.T) {
	tok := Token("secret")
	assert.Equal(t, "[redacted]", tok.String())
	assert.Equal(t, "secret", tok.Value())
	assert.Equal(t, "", Token("").String())
}
