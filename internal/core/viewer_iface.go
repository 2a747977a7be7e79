package core

import "github.com/dkeye/Avatar/internal/domain"

// ViewerSession binds a domain.Viewer to its transport endpoints.
type ViewerSession interface {
	Meta() *domain.Viewer
	Signal() SignalConnection
	Media() MediaConnection
	UpdateSignal(SignalConnection) ViewerSession
	UpdateMedia(MediaConnection) ViewerSession
}
