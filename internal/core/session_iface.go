package core

import (
	"context"

	"github.com/dkeye/Avatar/internal/domain"
)

// MediaStream is the inbound avatar audio/video.
type MediaStream = domain.Stream

// SessionInfo is what the vendor returns when a session is created.
type SessionInfo struct {
	SessionID string
	URL       string
}

// SessionClient is the vendor boundary: one real-time avatar session.
// Every method may block on network I/O and must honour ctx.
type SessionClient interface {
	// Subscribe registers sink for lifecycle events. Must be called before
	// StartSession so no event is missed. The client never closes sink.
	Subscribe(sink chan<- Event) (unsubscribe func())

	StartSession(ctx context.Context, cfg domain.StartConfig) (SessionInfo, error)
	StartVoiceChat(ctx context.Context, cfg domain.VoiceChatConfig) error
	Speak(ctx context.Context, req domain.SpeakRequest) error
	StartListening(ctx context.Context) error
	StopListening(ctx context.Context) error

	// Destroy releases the session and all media. Safe to call once per handle.
	Destroy(ctx context.Context) error
}

// ClientFactory constructs a SessionClient bound to a token.
type ClientFactory interface {
	NewClient(ctx context.Context, token domain.Token) (SessionClient, error)
}

// TokenFetcher obtains a short-lived session token.
type TokenFetcher interface {
	FetchToken(ctx context.Context) (domain.Token, error)
}
