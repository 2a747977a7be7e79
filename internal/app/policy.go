package app

import "github.com/dkeye/Avatar/internal/domain"

type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	KickViewer
)

// Policy decides what happens to a viewer whose outbound queue is full.
// dropped counts consecutive frames lost so far, including this one.
type Policy interface {
	OnBackpressure(viewer domain.ViewerID, dropped int) BackpressureAction
}

const DefaultMaxDropped = 8

// SimplePolicy drops frames and kicks a viewer that keeps falling behind.
type SimplePolicy struct {
	MaxDropped int
}

func (p SimplePolicy) OnBackpressure(_ domain.ViewerID, dropped int) BackpressureAction {
	limit := p.MaxDropped
	if limit <= 0 {
		limit = DefaultMaxDropped
	}
	if dropped >= limit {
		return KickViewer
	}
	return DropFrame
}
