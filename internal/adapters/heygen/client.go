package heygen

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Avatar/internal/core"
	"github.com/dkeye/Avatar/internal/domain"
)

// Options configure how clients reach the vendor. Zero values fall back to
// the public endpoints.
type Options struct {
	APIBase    string
	WSBase     string
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
}

func (o Options) withDefaults() Options {
	if o.APIBase == "" {
		o.APIBase = DefaultAPIBase
	}
	if o.WSBase == "" {
		o.WSBase = DefaultWSBase
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if o.Dialer == nil {
		o.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	return o
}

// Client is one avatar session. It is created per token and never reused.
type Client struct {
	api      *api
	token    domain.Token
	wsBase   string
	dialer   *websocket.Dialer
	dialRoom roomDialer
	logger   zerolog.Logger
	tracks   trackSet

	mu        sync.Mutex
	sinks     map[int]chan<- core.Event
	nextSink  int
	sessionID string
	language  string
	room      room
	voice     *voiceChannel
	destroyed bool
	done      chan struct{}
}

var _ core.SessionClient = (*Client)(nil)

func NewClient(token domain.Token, opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		api:      &api{base: opts.APIBase, token: token, http: opts.HTTPClient},
		token:    token,
		wsBase:   opts.WSBase,
		dialer:   opts.Dialer,
		dialRoom: dialLiveKit,
		logger:   log.With().Str("module", "adapters.heygen").Logger(),
		sinks:    make(map[int]chan<- core.Event),
		done:     make(chan struct{}),
	}
}

func (c *Client) Subscribe(sink chan<- core.Event) func() {
	c.mu.Lock()
	id := c.nextSink
	c.nextSink++
	c.sinks[id] = sink
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.sinks, id)
			c.mu.Unlock()
		})
	}
}

// emit blocks until every sink took the event or the client is destroyed.
func (c *Client) emit(ev core.Event) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	sinks := make([]chan<- core.Event, 0, len(c.sinks))
	for _, s := range c.sinks {
		sinks = append(sinks, s)
	}
	c.mu.Unlock()

	for _, s := range sinks {
		select {
		case s <- ev:
		case <-c.done:
			return
		}
	}
}

// StartSession creates the vendor session, starts it and joins its room.
// Stream events start flowing once the room delivers the avatar tracks.
func (c *Client) StartSession(ctx context.Context, cfg domain.StartConfig) (core.SessionInfo, error) {
	sd, err := c.api.newSession(ctx, cfg)
	if err != nil {
		return core.SessionInfo{}, err
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return core.SessionInfo{}, domain.ErrTerminated
	}
	c.sessionID = sd.SessionID
	c.language = cfg.Language
	c.mu.Unlock()
	c.tracks.mu.Lock()
	c.tracks.sessionID = sd.SessionID
	c.tracks.mu.Unlock()

	logger := c.logger.With().Str("session", sd.SessionID).Logger()
	logger.Info().Msg("session created")

	if err := c.api.startSession(ctx, sd.SessionID); err != nil {
		return core.SessionInfo{}, err
	}

	r, err := c.dialRoom(sd.URL, sd.AccessToken, c.roomCallback())
	if err != nil {
		return core.SessionInfo{}, err
	}
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		r.Disconnect()
		return core.SessionInfo{}, domain.ErrTerminated
	}
	c.room = r
	c.mu.Unlock()
	logger.Info().Msg("room joined")

	return core.SessionInfo{SessionID: sd.SessionID, URL: sd.URL}, nil
}

func (c *Client) StartVoiceChat(ctx context.Context, cfg domain.VoiceChatConfig) error {
	c.mu.Lock()
	sessionID, language, started := c.sessionID, c.language, c.voice != nil
	c.mu.Unlock()
	if sessionID == "" {
		return domain.ErrNoSession
	}
	if started {
		return nil
	}

	u, err := chatURL(c.wsBase, sessionID, c.token, cfg, language)
	if err != nil {
		return err
	}
	v, err := dialVoice(ctx, c.dialer, u)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		v.close()
		return domain.ErrTerminated
	}
	c.voice = v
	c.mu.Unlock()

	go v.readLoop(c.logger.With().Str("session", sessionID).Logger(), c.emit)
	c.logger.Info().Str("session", sessionID).Msg("voice chat started")
	return nil
}

func (c *Client) Speak(ctx context.Context, req domain.SpeakRequest) error {
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()
	if sessionID == "" {
		return domain.ErrNoSession
	}
	return c.api.task(ctx, sessionID, req)
}

func (c *Client) StartListening(ctx context.Context) error {
	return c.sendVoice(ctx, msgStartListening)
}

func (c *Client) StopListening(ctx context.Context) error {
	return c.sendVoice(ctx, msgStopListening)
}

func (c *Client) sendVoice(ctx context.Context, kind string) error {
	c.mu.Lock()
	v := c.voice
	c.mu.Unlock()
	if v == nil {
		return ErrVoiceChatNotStarted
	}
	return v.send(ctx, kind)
}

// Destroy stops the vendor session and releases the room and voice channel.
// Later calls are no-ops.
func (c *Client) Destroy(ctx context.Context) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	close(c.done)
	sessionID, r, v := c.sessionID, c.room, c.voice
	c.sinks = make(map[int]chan<- core.Event)
	c.mu.Unlock()

	if v != nil {
		v.close()
	}
	if r != nil {
		r.Disconnect()
	}
	c.tracks.reset()

	var err error
	if sessionID != "" {
		err = c.api.stopSession(ctx, sessionID)
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("session", sessionID).Msg("stop session failed")
	} else {
		c.logger.Info().Str("session", sessionID).Msg("session destroyed")
	}
	return err
}

// Factory builds a Client per token.
type Factory struct {
	Options Options
}

var _ core.ClientFactory = (*Factory)(nil)

func NewFactory(opts Options) *Factory {
	return &Factory{Options: opts}
}

func (f *Factory) NewClient(_ context.Context, token domain.Token) (core.SessionClient, error) {
	if token == "" {
		return nil, errors.New("heygen: empty token")
	}
	return NewClient(token, f.Options), nil
}
