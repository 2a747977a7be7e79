// Package view renders session snapshots for the overlay.
package view

import (
	"github.com/dkeye/Avatar/internal/app"
	"github.com/dkeye/Avatar/internal/domain"
)

const (
	StatusInitializing = "initializing..."
	StatusGettingToken = "getting token..."
	StatusCreating     = "creating avatar instance..."
	StatusStarting     = "starting avatar..."
	StatusReady        = "ready"
	StatusFailed       = "failed"
	StatusStopped      = "stopped"

	MicOn  = "🎤"
	MicOff = "🎤 ❌"
)

// View is everything the overlay page needs; it holds no state of its own.
type View struct {
	Phase    string `json:"phase"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Ready    bool   `json:"ready"`
	StreamID string `json:"stream_id,omitempty"`
	Muted    bool   `json:"muted"`
	MicIcon  string `json:"mic_icon,omitempty"`
}

// Render is a pure function of the snapshot.
func Render(s app.Snapshot) View {
	v := View{Phase: phaseOf(s.State).String(), Muted: s.Muted}

	switch st := s.State.(type) {
	case domain.Ready:
		v.Status = StatusReady
		v.Ready = true
		v.StreamID = st.Stream.ID()
		v.MicIcon = MicOn
		if s.Muted {
			v.MicIcon = MicOff
		}
	case domain.Failed:
		v.Status = StatusFailed
		v.Error = st.Reason()
	case domain.AwaitingToken:
		v.Status = StatusGettingToken
	case domain.CreatingClient:
		v.Status = StatusCreating
	case domain.Starting:
		v.Status = StatusStarting
	case domain.Terminated:
		v.Status = StatusStopped
	default:
		v.Status = StatusInitializing
	}
	return v
}

func phaseOf(s domain.State) domain.Phase {
	if s == nil {
		return domain.PhaseInitializing
	}
	return s.Phase()
}
