package core

import (
	"sync"

	"github.com/dkeye/Avatar/internal/domain"
)

// viewerSession implements ViewerSession by pairing meta + transports.
type viewerSession struct {
	meta *domain.Viewer

	mu     sync.RWMutex
	signal SignalConnection
	media  MediaConnection
}

func NewViewerSession(meta *domain.Viewer) ViewerSession {
	return &viewerSession{meta: meta}
}

func (v *viewerSession) Meta() *domain.Viewer { return v.meta }

func (v *viewerSession) Signal() SignalConnection {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.signal
}

func (v *viewerSession) Media() MediaConnection {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.media
}

func (v *viewerSession) UpdateSignal(sc SignalConnection) ViewerSession {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.signal = sc
	return v
}

// UpdateMedia replaces the media connection; the previous one is closed.
func (v *viewerSession) UpdateMedia(mc MediaConnection) ViewerSession {
	v.mu.Lock()
	old := v.media
	v.media = mc
	v.mu.Unlock()
	if old != nil && old != mc {
		old.Close()
	}
	return v
}
