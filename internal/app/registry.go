package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Avatar/internal/core"
	"github.com/dkeye/Avatar/internal/domain"
)

type viewerEntry struct {
	Session core.ViewerSession
	Cancel  context.CancelFunc
}

// Registry tracks the viewers attached to the presentation surface.
type Registry struct {
	mu      sync.RWMutex
	viewers map[domain.ViewerID]*viewerEntry
}

func NewRegistry() *Registry {
	return &Registry{
		viewers: make(map[domain.ViewerID]*viewerEntry),
	}
}

// Bind registers a viewer session. A previous session for the same viewer
// (a second tab with the same cookie) is cancelled and replaced.
func (r *Registry) Bind(sess core.ViewerSession, cancel context.CancelFunc) {
	id := sess.Meta().ID
	r.mu.Lock()
	old, ok := r.viewers[id]
	r.viewers[id] = &viewerEntry{Session: sess, Cancel: cancel}
	r.mu.Unlock()

	if ok && old.Cancel != nil {
		old.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("viewer", string(id)).Bool("replaced", ok).Msg("bound viewer")
}

func (r *Registry) Get(id domain.ViewerID) (core.ViewerSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.viewers[id]; ok {
		return e.Session, true
	}
	return nil, false
}

// Unbind removes the viewer only if sess is still the bound session.
func (r *Registry) Unbind(id domain.ViewerID, sess core.ViewerSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.viewers[id]; ok && e.Session == sess {
		delete(r.viewers, id)
		log.Info().Str("module", "app.registry").Str("viewer", string(id)).Msg("unbind viewer")
	}
}

func (r *Registry) Sessions() []core.ViewerSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.ViewerSession, 0, len(r.viewers))
	for _, e := range r.viewers {
		out = append(out, e.Session)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.viewers)
}

// CancelAll cancels every viewer's context.
func (r *Registry) CancelAll() {
	r.mu.RLock()
	entries := make([]*viewerEntry, 0, len(r.viewers))
	for _, e := range r.viewers {
		entries = append(entries, e)
	}
	r.mu.RUnlock()
	for _, e := range entries {
		if e.Cancel != nil {
			e.Cancel()
		}
	}
	log.Info().Str("module", "app.registry").Int("viewers", len(entries)).Msg("canceled all viewers")
}
