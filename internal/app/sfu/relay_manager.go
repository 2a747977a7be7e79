package sfu

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Avatar/internal/core"
	"github.com/dkeye/Avatar/internal/domain"
)

const stopTimeout = 2 * time.Second

// RelayManager owns one Relay per inbound avatar track, keyed by track id.
type RelayManager struct {
	mu     sync.RWMutex
	relays map[string]*Relay

	newRelay func(*webrtc.TrackRemote) *Relay
}

func NewRelayManager() *RelayManager {
	return &RelayManager{
		relays: make(map[string]*Relay),
		newRelay: func(track *webrtc.TrackRemote) *Relay {
			return NewRelay(track, nil)
		},
	}
}

func relayLogger(id string) zerolog.Logger {
	return log.With().
		Str("module", "relay").
		Str("track", id).
		Logger()
}

// Sync makes the relays match tracks. A relay still reading one of the
// tracks is kept, relays for tracks no longer present are stopped and the
// missing ones are started.
func (m *RelayManager) Sync(ctx context.Context, tracks []*webrtc.TrackRemote) {
	want := make(map[string]*webrtc.TrackRemote, len(tracks))
	for _, track := range tracks {
		if track != nil {
			want[track.ID()] = track
		}
	}

	m.mu.RLock()
	stale := make([]string, 0, len(m.relays))
	for id := range m.relays {
		if _, ok := want[id]; !ok {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()
	for _, id := range stale {
		m.StopRelay(id)
	}

	for id, track := range want {
		if m.HasRelay(track) {
			continue
		}
		m.start(ctx, id, m.newRelay(track))
	}
}

func (m *RelayManager) start(ctx context.Context, id string, relay *Relay) {
	logger := relayLogger(id)

	relayCtx, cancel := context.WithCancel(ctx)
	relay.cancel = cancel

	m.mu.Lock()
	old, replaced := m.relays[id]
	m.relays[id] = relay
	m.mu.Unlock()

	if replaced {
		logger.Info().Msg("replacing existing relay for track")
		old.stop(&logger)
	}
	if relay.deadline != nil {
		// A previous relay on this track may have left a past deadline.
		if err := relay.deadline(time.Time{}); err != nil {
			logger.Warn().Err(err).Msg("relay read deadline reset")
		}
	}

	logger.Info().Msg("starting relay loop")

	go relay.loop(relayCtx, &logger)
}

// Subscribe attaches every current relay to the viewer's media connection
// and returns the number of tracks added.
func (m *RelayManager) Subscribe(dst domain.ViewerID, mc core.MediaConnection) (int, error) {
	m.mu.RLock()
	relays := make([]*Relay, 0, len(m.relays))
	for _, r := range m.relays {
		relays = append(relays, r)
	}
	m.mu.RUnlock()

	added := 0
	for _, relay := range relays {
		src := relay.Src
		local, err := webrtc.NewTrackLocalStaticRTP(src.Codec().RTPCodecCapability, src.ID(), src.StreamID())
		if err != nil {
			return added, fmt.Errorf("local track %s: %w", src.ID(), err)
		}
		sender, err := mc.AddLocalTrack(local)
		if err != nil {
			return added, fmt.Errorf("add track %s: %w", src.ID(), err)
		}
		go drainRTCP(sender)
		relay.AddOutTrack(dst, NewOutTrack(local))
		added++
	}
	return added, nil
}

// drainRTCP keeps the sender's interceptors running until it is closed.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// MarkSubscriberDelete detaches a viewer from every relay.
func (m *RelayManager) MarkSubscriberDelete(dst domain.ViewerID) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, relay := range m.relays {
		relay.mu.RLock()
		ot, ok := relay.outTracks[dst]
		relay.mu.RUnlock()
		if ok {
			ot.MarkDelete()
		}
	}
}

// StopRelay stops a relay and removes it from the manager.
func (m *RelayManager) StopRelay(id string) {
	m.mu.Lock()
	relay, ok := m.relays[id]
	if ok {
		delete(m.relays, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	logger := relayLogger(id)
	relay.stop(&logger)
}

func (m *RelayManager) StopAll() {
	m.mu.Lock()
	relays := m.relays
	m.relays = make(map[string]*Relay)
	m.mu.Unlock()
	for id, relay := range relays {
		logger := relayLogger(id)
		relay.stop(&logger)
	}
}

// HasRelay reports whether a running relay reads exactly this track.
func (m *RelayManager) HasRelay(track *webrtc.TrackRemote) bool {
	m.mu.RLock()
	relay, ok := m.relays[track.ID()]
	m.mu.RUnlock()
	return ok && relay.Src == track && relay.running()
}

func (m *RelayManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.relays)
}
