package heygen

import (
	"strconv"
	"sync"

	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Avatar/internal/core"
)

// room is the part of *lksdk.Room the client needs.
type room interface {
	Disconnect()
}

type roomDialer func(url, token string, cb *lksdk.RoomCallback) (room, error)

func dialLiveKit(url, token string, cb *lksdk.RoomCallback) (room, error) {
	r, err := lksdk.ConnectToRoomWithToken(url, token, cb, lksdk.WithAutoSubscribe(true))
	if err != nil {
		return nil, err
	}
	return r, nil
}

// mediaStream is an immutable view of the avatar tracks at one moment.
type mediaStream struct {
	id     string
	tracks []*webrtc.TrackRemote
}

func (s *mediaStream) ID() string                    { return s.id }
func (s *mediaStream) Tracks() []*webrtc.TrackRemote { return s.tracks }

// trackSet collects subscribed tracks and decides when the stream is
// complete. A stream is announced once both audio and video are present.
type trackSet struct {
	mu        sync.Mutex
	sessionID string
	gen       int
	audio     *webrtc.TrackRemote
	video     *webrtc.TrackRemote
	announced bool
}

func (t *trackSet) add(kind webrtc.RTPCodecType, track *webrtc.TrackRemote) (core.MediaStream, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch kind {
	case webrtc.RTPCodecTypeAudio:
		t.audio = track
	case webrtc.RTPCodecTypeVideo:
		t.video = track
	default:
		return nil, false
	}
	if t.audio == nil || t.video == nil || t.announced {
		return nil, false
	}
	t.announced = true
	t.gen++
	return t.snapshot(), true
}

// remove reports whether an announced stream just lost a track.
func (t *trackSet) remove(track *webrtc.TrackRemote) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch track {
	case t.audio:
		t.audio = nil
	case t.video:
		t.video = nil
	default:
		return false
	}
	if !t.announced {
		return false
	}
	t.announced = false
	return true
}

// reset drops everything and reports whether a stream was live.
func (t *trackSet) reset() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.announced
	t.audio, t.video, t.announced = nil, nil, false
	return was
}

func (t *trackSet) snapshot() *mediaStream {
	id := t.sessionID
	if t.gen > 1 {
		// Relays key on the stream id, so a re-announced stream needs a new one.
		id = id + "#" + strconv.Itoa(t.gen)
	}
	return &mediaStream{id: id, tracks: []*webrtc.TrackRemote{t.video, t.audio}}
}

func (c *Client) roomCallback() *lksdk.RoomCallback {
	return &lksdk.RoomCallback{
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed: func(track *webrtc.TrackRemote, _ *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				c.logger.Debug().Str("track", track.ID()).Str("from", rp.Identity()).Msg("track subscribed")
				c.trackSubscribed(track.Kind(), track)
			},
			OnTrackUnsubscribed: func(track *webrtc.TrackRemote, _ *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				c.logger.Debug().Str("track", track.ID()).Str("from", rp.Identity()).Msg("track unsubscribed")
				c.trackUnsubscribed(track)
			},
		},
		OnReconnecting: func() {
			c.logger.Warn().Msg("room reconnecting")
			c.emit(core.Event{Kind: core.EventDisconnected})
		},
		OnReconnected: func() {
			c.logger.Info().Msg("room reconnected")
			c.emit(core.Event{Kind: core.EventReconnected})
		},
		OnDisconnected: func() {
			c.logger.Info().Msg("room disconnected")
			if c.tracks.reset() {
				c.emit(core.Event{Kind: core.EventStreamStopped})
			}
		},
	}
}

func (c *Client) trackSubscribed(kind webrtc.RTPCodecType, track *webrtc.TrackRemote) {
	if stream, ok := c.tracks.add(kind, track); ok {
		c.logger.Info().Str("stream", stream.ID()).Msg("stream ready")
		c.emit(core.Event{Kind: core.EventStreamReady, Stream: stream})
	}
}

func (c *Client) trackUnsubscribed(track *webrtc.TrackRemote) {
	if c.tracks.remove(track) {
		c.emit(core.Event{Kind: core.EventStreamStopped})
	}
}
