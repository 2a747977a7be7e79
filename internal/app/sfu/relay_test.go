package sfu

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localTrack(t *testing.T) *webrtc.TrackLocalStaticRTP {
	t.Helper()
	tr, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264}, "video", "avatar")
	require.NoError(t, err)
	return tr
}

// packets returns a read func yielding n packets and then an error.
func packets(n int) func() (*rtp.Packet, error) {
	i := 0
	return func() (*rtp.Packet, error) {
		if i >= n {
			return nil, errors.New("eof")
		}
		i++
		return &rtp.Packet{Header: rtp.Header{SequenceNumber: uint16(i)}}, nil
	}
}

func TestRelay_ForwardDropsDeleted(t *testing.T) {
	r := NewRelay(nil, nil)
	keep, drop := NewOutTrack(localTrack(t)), NewOutTrack(localTrack(t))
	r.AddOutTrack("keep", keep)
	r.AddOutTrack("drop", drop)
	drop.MarkDelete()

	logger := zerolog.Nop()
	r.forward(&rtp.Packet{}, &logger)

	assert.Equal(t, 1, r.subscribers())
	assert.Equal(t, TrackStateOk, keep.GetState())
}

func TestRelay_AddOutTrackReplaces(t *testing.T) {
	r := NewRelay(nil, nil)
	old := NewOutTrack(localTrack(t))
	r.AddOutTrack("v", old)
	r.AddOutTrack("v", NewOutTrack(localTrack(t)))

	assert.Equal(t, TrackStateDelete, old.GetState())
	assert.Equal(t, 1, r.subscribers())
}

func TestRelay_LoopStopsOnReadError(t *testing.T) {
	r := NewRelay(nil, nil)
	r.read = packets(3)
	ot := NewOutTrack(localTrack(t))
	r.AddOutTrack("v", ot)

	logger := zerolog.Nop()
	done := make(chan struct{})
	go func() {
		r.loop(context.Background(), &logger)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay loop did not stop")
	}
	assert.Equal(t, TrackStateDelete, ot.GetState())
}

// fakeRelays makes m build relays whose reads block until release is closed.
func fakeRelays(m *RelayManager, release <-chan struct{}) *atomic.Int32 {
	var built atomic.Int32
	m.newRelay = func(track *webrtc.TrackRemote) *Relay {
		built.Add(1)
		r := NewRelay(nil, nil)
		r.Src = track
		r.read = func() (*rtp.Packet, error) {
			<-release
			return nil, errors.New("closed")
		}
		return r
	}
	return &built
}

func TestRelayManager_StartStop(t *testing.T) {
	m := NewRelayManager()
	block := make(chan struct{})
	defer close(block)

	blocking := func() (*rtp.Packet, error) {
		<-block
		return nil, errors.New("closed")
	}
	r1 := NewRelay(nil, nil)
	r1.read = blocking
	m.start(context.Background(), "video", r1)
	r2 := NewRelay(nil, nil)
	r2.read = blocking
	m.start(context.Background(), "audio", r2)

	assert.Equal(t, 2, m.Len())

	ot := NewOutTrack(localTrack(t))
	r1.AddOutTrack("viewer", ot)
	m.MarkSubscriberDelete("viewer")
	assert.Equal(t, TrackStateDelete, ot.GetState())

	m.StopRelay("video")
	assert.Equal(t, 1, m.Len())
	m.StopRelay("missing")

	m.StopAll()
	assert.Equal(t, 0, m.Len())
}

func TestRelayManager_StartReplaces(t *testing.T) {
	m := NewRelayManager()
	block := make(chan struct{})
	defer close(block)

	old := NewRelay(nil, nil)
	old.read = func() (*rtp.Packet, error) { <-block; return nil, errors.New("closed") }
	m.start(context.Background(), "video", old)
	ot := NewOutTrack(localTrack(t))
	old.AddOutTrack("v", ot)

	fresh := NewRelay(nil, nil)
	fresh.read = old.read
	m.start(context.Background(), "video", fresh)

	assert.Equal(t, 1, m.Len())
	assert.Equal(t, TrackStateDelete, ot.GetState())
}

func TestRelayManager_SyncKeepsSameTrack(t *testing.T) {
	m := NewRelayManager()
	release := make(chan struct{})
	defer close(release)
	built := fakeRelays(m, release)
	ctx := context.Background()

	a, b := &webrtc.TrackRemote{}, &webrtc.TrackRemote{}
	m.Sync(ctx, []*webrtc.TrackRemote{a, nil})
	assert.Equal(t, int32(1), built.Load())
	assert.True(t, m.HasRelay(a))
	assert.False(t, m.HasRelay(b))

	m.Sync(ctx, []*webrtc.TrackRemote{a})
	assert.Equal(t, int32(1), built.Load(), "relay on the same track is kept")

	// Same track id, new source: replaced.
	m.Sync(ctx, []*webrtc.TrackRemote{b})
	assert.Equal(t, int32(2), built.Load())
	assert.True(t, m.HasRelay(b))
	assert.False(t, m.HasRelay(a))
	assert.Equal(t, 1, m.Len())

	m.Sync(ctx, nil)
	assert.Equal(t, 0, m.Len())
	assert.False(t, m.HasRelay(b))
}

func TestRelayManager_SyncRestartsDeadRelay(t *testing.T) {
	m := NewRelayManager()
	var built atomic.Int32
	m.newRelay = func(track *webrtc.TrackRemote) *Relay {
		built.Add(1)
		r := NewRelay(nil, nil)
		r.Src = track
		r.read = packets(0)
		return r
	}
	track := &webrtc.TrackRemote{}

	m.Sync(context.Background(), []*webrtc.TrackRemote{track})
	require.Eventually(t, func() bool { return !m.HasRelay(track) }, time.Second, 5*time.Millisecond)

	m.Sync(context.Background(), []*webrtc.TrackRemote{track})
	assert.Equal(t, int32(2), built.Load())
}

func TestRelayManager_StopUnblocksRead(t *testing.T) {
	m := NewRelayManager()
	r := NewRelay(nil, nil)

	var mu sync.Mutex
	var deadlines []time.Time
	expired := make(chan struct{})
	r.deadline = func(d time.Time) error {
		mu.Lock()
		defer mu.Unlock()
		deadlines = append(deadlines, d)
		if !d.IsZero() {
			close(expired)
		}
		return nil
	}
	reads := 0
	r.read = func() (*rtp.Packet, error) {
		reads++
		<-expired
		// A packet that arrived together with the deadline.
		return &rtp.Packet{}, nil
	}
	ot := NewOutTrack(localTrack(t))
	r.AddOutTrack("v", ot)

	m.start(context.Background(), "video", r)
	m.StopRelay("video")

	assert.False(t, r.running(), "stop waits for the loop to exit")
	assert.Equal(t, 1, reads, "no read after stop")
	assert.Equal(t, TrackStateDelete, ot.GetState())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, deadlines, 2)
	assert.True(t, deadlines[0].IsZero(), "start clears a stale deadline")
	assert.False(t, deadlines[1].IsZero())
}
