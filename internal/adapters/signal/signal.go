package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Avatar/internal/app"
	"github.com/dkeye/Avatar/internal/core"
	"github.com/dkeye/Avatar/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// Session is the part of the lifecycle controller the surface drives.
type Session interface {
	Snapshot() app.Snapshot
	Subscribe() (<-chan app.Snapshot, func())
	ToggleMute(ctx context.Context) (bool, error)
}

type SignalWSController struct {
	Session  Session
	Registry *app.Registry
	Stage    *app.Stage
	Limiter  *MuteRateLimiter
	Policy   app.Policy

	ICEURLs    []string
	ReadLimit  int64
	PingPeriod time.Duration
}

type WsSignalConn struct {
	conn    *websocket.Conn
	send    chan core.Frame
	viewer  domain.ViewerID
	dropped atomic.Int32

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (c *WsSignalConn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	id, err := domain.ParseViewerID(c.GetString("viewer_id"))
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("rejecting ws without viewer id")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log.Info().Str("module", "signal").Str("viewer", string(id)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := &WsSignalConn{
		conn:   ws,
		send:   make(chan core.Frame, 32),
		viewer: id,
	}

	sess := core.NewViewerSession(&domain.Viewer{ID: id}).UpdateSignal(conn)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Registry.Bind(sess, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.pushViews(ctx, conn)
	go ctl.readPump(ctx, cancel, sess, conn)
}
