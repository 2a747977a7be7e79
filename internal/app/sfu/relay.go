package sfu

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/dkeye/Avatar/internal/domain"
)

// Relay copies RTP from one avatar track to every subscribed viewer.
type Relay struct {
	Src *webrtc.TrackRemote

	read func() (*rtp.Packet, error)
	// deadline, when set, bounds the pending read; the zero time clears it.
	deadline func(time.Time) error

	mu        sync.RWMutex
	outTracks map[domain.ViewerID]*OutTrack

	cancel context.CancelFunc
	done   chan struct{}
}

func NewRelay(src *webrtc.TrackRemote, cancel context.CancelFunc) *Relay {
	r := &Relay{
		Src:       src,
		outTracks: make(map[domain.ViewerID]*OutTrack),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	if src != nil {
		r.read = func() (*rtp.Packet, error) {
			pkt, _, err := src.ReadRTP()
			return pkt, err
		}
		r.deadline = src.SetReadDeadline
	}
	return r
}

// loop reads RTP packets from the source track and forwards them to all OutTracks.
func (r *Relay) loop(ctx context.Context, logger *zerolog.Logger) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("relay ctx done, marking all out tracks for delete")
			r.markAllDelete()
			return
		default:
		}
		pkt, err := r.read()
		if ctx.Err() != nil {
			// Stopped while reading; the packet is dropped.
			logger.Info().Msg("relay stopped during read")
			r.markAllDelete()
			return
		}
		if err != nil {
			logger.Error().Err(err).Msg("relay read RTP error, stopping")
			r.markAllDelete()
			return
		}
		r.forward(pkt, logger)
	}
}

// stop cancels the loop and, when the source supports read deadlines,
// unblocks the pending read and waits for the loop to exit so the track
// can be handed to a new relay.
func (r *Relay) stop(logger *zerolog.Logger) {
	r.markAllDelete()
	if r.cancel != nil {
		r.cancel()
	}
	if r.deadline == nil {
		return
	}
	if err := r.deadline(time.Now()); err != nil {
		logger.Warn().Err(err).Msg("relay read deadline")
	}
	select {
	case <-r.done:
	case <-time.After(stopTimeout):
		logger.Warn().Msg("relay loop did not stop in time")
	}
}

// running reports whether the loop has not exited yet.
func (r *Relay) running() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	snapshot := make(map[domain.ViewerID]*OutTrack, len(r.outTracks))
	r.mu.RLock()
	maps.Copy(snapshot, r.outTracks)
	r.mu.RUnlock()

	dirty := make([]domain.ViewerID, 0, len(snapshot))
	for dst, ot := range snapshot {
		switch ot.GetState() {
		case TrackStateDelete:
			dirty = append(dirty, dst)
		case TrackStateOk:
			if err := ot.Track.WriteRTP(pkt); err != nil {
				logger.Error().
					Err(err).
					Str("viewer", string(dst)).
					Msg("relay write RTP error, marking outtrack as delete")
				ot.MarkDelete()
				dirty = append(dirty, dst)
			}
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		r.cleanupDeleted(dirty)
	}
}

func (r *Relay) cleanupDeleted(dirty []domain.ViewerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range dirty {
		if ot, ok := r.outTracks[id]; ok && ot.GetState() == TrackStateDelete {
			delete(r.outTracks, id)
		}
	}
}

func (r *Relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ot := range r.outTracks {
		ot.MarkDelete()
	}
}

func (r *Relay) AddOutTrack(dst domain.ViewerID, ot *OutTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.outTracks[dst]; ok {
		old.MarkDelete()
	}
	r.outTracks[dst] = ot
}

func (r *Relay) subscribers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.outTracks)
}
