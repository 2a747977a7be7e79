package view

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"

	"github.com/dkeye/Avatar/internal/app"
	"github.com/dkeye/Avatar/internal/domain"
)

type stubStream string

func (s stubStream) ID() string                    { return string(s) }
func (s stubStream) Tracks() []*webrtc.TrackRemote { return nil }

func TestRender_ReadyUnmuted(t *testing.T) {
	ready, ok := domain.NewReady(stubStream("s-1"))
	assert.True(t, ok)

	v := Render(app.Snapshot{State: ready})
	assert.True(t, v.Ready)
	assert.Equal(t, StatusReady, v.Status)
	assert.Equal(t, "s-1", v.StreamID)
	assert.Equal(t, MicOn, v.MicIcon)
	assert.Empty(t, v.Error)
}

func TestRender_ReadyMuted(t *testing.T) {
	ready, _ := domain.NewReady(stubStream("s-1"))
	v := Render(app.Snapshot{State: ready, Muted: true})
	assert.Equal(t, MicOff, v.MicIcon)
	assert.True(t, v.Muted)
}

func TestRender_FailedShowsReason(t *testing.T) {
	f := domain.NewFailed(domain.NewSessionError(domain.KindAuth, domain.MsgTokenMissing, nil))
	v := Render(app.Snapshot{State: f})
	assert.False(t, v.Ready)
	assert.Equal(t, StatusFailed, v.Status)
	assert.Equal(t, "Failed to get token", v.Error)
	assert.Empty(t, v.MicIcon)
}

func TestRender_DisconnectedHidesStream(t *testing.T) {
	ready, _ := domain.NewReady(stubStream("s-1"))
	f := domain.NewFailed(domain.NewSessionError(domain.KindDisconnected, domain.MsgDisconnected, nil))
	f.Resume = ready

	v := Render(app.Snapshot{State: f})
	assert.False(t, v.Ready)
	assert.Equal(t, "Stream disconnected", v.Error)
}

func TestRender_StatusLabels(t *testing.T) {
	cases := []struct {
		state domain.State
		want  string
	}{
		{domain.Initializing{}, StatusInitializing},
		{domain.AwaitingToken{}, StatusGettingToken},
		{domain.CreatingClient{}, StatusCreating},
		{domain.Starting{}, StatusStarting},
		{domain.Terminated{}, StatusStopped},
		{nil, StatusInitializing},
	}
	for _, tc := range cases {
		v := Render(app.Snapshot{State: tc.state})
		assert.Equal(t, tc.want, v.Status)
		assert.False(t, v.Ready)
	}
}
