package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Avatar/internal/app"
	"github.com/dkeye/Avatar/internal/core"
	"github.com/dkeye/Avatar/internal/view"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	var ping <-chan time.Time
	if ctl.PingPeriod > 0 {
		t := time.NewTicker(ctl.PingPeriod)
		defer t.Stop()
		ping = t.C
	}
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			c.Close()
			return
		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump ping")
				c.Close()
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sess core.ViewerSession, c *WsSignalConn) {
	id := sess.Meta().ID
	defer func() {
		log.Info().Str("module", "signal").Str("viewer", string(id)).Msg("readPump closing")
		cancel()
		ctl.Stage.Detach(id)
		if mc := sess.Media(); mc != nil {
			mc.Close()
		}
		ctl.Registry.Unbind(id, sess)
		c.Close()
	}()

	if ctl.PingPeriod > 0 {
		wait := ctl.PingPeriod * 2
		_ = c.conn.SetReadDeadline(time.Now().Add(wait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(wait))
		})
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("viewer", string(id)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Str("viewer", string(id)).Msg("readPump read error")
				return
			}
			ctl.handleSignal(ctx, sess, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, sess core.ViewerSession, c *WsSignalConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "ping":
		ctl.handlePing(c)
	case "view":
		ctl.sendView(c, view.Render(ctl.Session.Snapshot()))
	case "toggle_mute":
		ctl.handleToggleMute(ctx, sess, c)
	case "offer":
		ctl.handleOffer(ctx, sess, c, data)
	case "candidate":
		ctl.handleCandidate(sess, data)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

// pushViews sends a view message for every snapshot until ctx is done.
func (ctl *SignalWSController) pushViews(ctx context.Context, c *WsSignalConn) {
	snaps, cancel := ctl.Session.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			ctl.sendView(c, view.Render(snap))
		}
	}
}

type viewMsg struct {
	Type string `json:"type"`
	view.View
}

func (ctl *SignalWSController) sendView(c *WsSignalConn, v view.View) {
	ctl.sendJSON(c, viewMsg{Type: "view", View: v})
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, msg string) {
	ctl.sendJSON(c, map[string]any{
		"type":  "error",
		"error": msg,
	})
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	err = c.TrySend(b)
	if err == nil {
		c.dropped.Store(0)
		return
	}
	if !errors.Is(err, ErrBackpressure) {
		log.Debug().Err(err).Str("module", "signal").Msg("sendJSON dropped")
		return
	}

	dropped := int(c.dropped.Add(1))
	if ctl.Policy == nil {
		log.Warn().Str("module", "signal").Str("viewer", string(c.viewer)).Msg("backpressure, frame dropped")
		return
	}
	switch ctl.Policy.OnBackpressure(c.viewer, dropped) {
	case app.KickViewer:
		log.Warn().Str("module", "signal").Str("viewer", string(c.viewer)).Int("dropped", dropped).Msg("backpressure, kicking viewer")
		c.Close()
	default:
		log.Warn().Str("module", "signal").Str("viewer", string(c.viewer)).Int("dropped", dropped).Msg("backpressure, frame dropped")
	}
}
