// Package domain contains the session state and value types, no transport
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxViewerIDLen = 36

var (
	ErrViewerIDTooLong = errors.New("viewer id too long")
	ErrViewerIDEmpty   = errors.New("viewer id empty")
)

type ViewerID string

// Viewer is one browser attached to the presentation surface.
type Viewer struct {
	ID ViewerID `json:"id"`
}

func NewViewer() *Viewer {
	return &Viewer{ID: ViewerID(uuid.NewString())}
}

// ParseViewerID validates an id taken from a client cookie.
func ParseViewerID(raw string) (ViewerID, error) {
	if len(raw) == 0 {
		return "", ErrViewerIDEmpty
	}
	if len(raw) > MaxViewerIDLen {
		return "", ErrViewerIDTooLong
	}
	return ViewerID(raw), nil
}
