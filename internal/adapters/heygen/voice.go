package heygen

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/dkeye/Avatar/internal/core"
	"github.com/dkeye/Avatar/internal/domain"
)

const (
	DefaultWSBase = "wss://api.heygen.com"

	pathChat = "/v1/ws/streaming.chat"

	msgStartListening = "agent.start_listening"
	msgStopListening  = "agent.stop_listening"

	voiceWriteWait = 5 * time.Second
)

var ErrVoiceChatNotStarted = errors.New("voice chat not started")

type voiceCommand struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`
}

// voiceChannel owns the chat websocket. Writes are serialized by mu, one
// goroutine reads.
type voiceChannel struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	once   sync.Once
	closed chan struct{}
}

func chatURL(base, sessionID string, token domain.Token, cfg domain.VoiceChatConfig, language string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + pathChat)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("session_id", sessionID)
	q.Set("session_token", token.Value())
	q.Set("silence_response", strconv.FormatBool(cfg.UseSilencePrompt))
	if language != "" {
		q.Set("stt_language", language)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func dialVoice(ctx context.Context, d *websocket.Dialer, rawURL string) (*voiceChannel, error) {
	conn, resp, err := d.DialContext(ctx, rawURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("voice dial: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("voice dial: %w", err)
	}
	return &voiceChannel{conn: conn, closed: make(chan struct{})}, nil
}

func (v *voiceChannel) send(ctx context.Context, kind string) error {
	deadline := time.Now().Add(voiceWriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	select {
	case <-v.closed:
		return ErrVoiceChatNotStarted
	default:
	}
	_ = v.conn.SetWriteDeadline(deadline)
	if err := v.conn.WriteJSON(voiceCommand{Type: kind, EventID: uuid.NewString()}); err != nil {
		return fmt.Errorf("voice %s: %w", kind, err)
	}
	return nil
}

// readLoop reports vendor error frames and closes not started by close()
// through emit.
func (v *voiceChannel) readLoop(logger zerolog.Logger, emit func(core.Event)) {
	defer v.close()
	for {
		_, data, err := v.conn.ReadMessage()
		if err != nil {
			select {
			case <-v.closed:
				return
			default:
			}
			// Any close we did not start leaves the session without a
			// microphone, including a clean close from the vendor.
			logger.Warn().Err(err).Msg("voice channel dropped")
			emit(core.Event{Kind: core.EventError, Message: "voice channel closed"})
			return
		}

		typ := gjson.GetBytes(data, "type").String()
		switch typ {
		case "error":
			msg := gjson.GetBytes(data, "message").String()
			if msg == "" {
				msg = "voice channel error"
			}
			logger.Warn().Str("message", msg).Msg("voice channel error frame")
			emit(core.Event{Kind: core.EventError, Message: msg})
		default:
			logger.Debug().Str("type", typ).Msg("voice frame")
		}
	}
}

func (v *voiceChannel) close() {
	v.once.Do(func() {
		close(v.closed)
		v.mu.Lock()
		_ = v.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		v.mu.Unlock()
		_ = v.conn.Close()
	})
}
