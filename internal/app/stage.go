package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Avatar/internal/app/sfu"
	"github.com/dkeye/Avatar/internal/core"
	"github.com/dkeye/Avatar/internal/domain"
)

// Stage mirrors the controller's current stream into relays that viewers
// subscribe to. Only Run mutates current.
type Stage struct {
	Relays *sfu.RelayManager

	mu      sync.RWMutex
	current string
}

func NewStage(relays *sfu.RelayManager) *Stage {
	return &Stage{Relays: relays}
}

// Run follows snapshots until ctx is done or snaps is closed.
func (s *Stage) Run(ctx context.Context, snaps <-chan Snapshot) {
	defer s.Relays.StopAll()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			s.apply(ctx, snap)
		}
	}
}

func (s *Stage) apply(ctx context.Context, snap Snapshot) {
	// A recoverable failure keeps its stream, so relays survive a reconnect.
	stream := domain.StreamOf(snap.State)
	id := ""
	if stream != nil {
		id = stream.ID()
	}
	if id == s.Staged() {
		return
	}

	if stream == nil {
		s.Relays.StopAll()
		s.setCurrent("")
		log.Info().Str("module", "app.stage").Msg("stream released")
		return
	}
	// Tracks the new stream shares with the old one keep their relays.
	s.Relays.Sync(ctx, stream.Tracks())
	s.setCurrent(id)
	log.Info().Str("module", "app.stage").Str("stream", id).Int("tracks", s.Relays.Len()).Msg("stream staged")
}

func (s *Stage) setCurrent(id string) {
	s.mu.Lock()
	s.current = id
	s.mu.Unlock()
}

// Staged returns the id of the stream whose relays are running, or "".
func (s *Stage) Staged() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Attach subscribes a viewer's connection to every staged track.
func (s *Stage) Attach(id domain.ViewerID, mc core.MediaConnection) (int, error) {
	s.Relays.MarkSubscriberDelete(id)
	return s.Relays.Subscribe(id, mc)
}

func (s *Stage) Detach(id domain.ViewerID) {
	s.Relays.MarkSubscriberDelete(id)
}
