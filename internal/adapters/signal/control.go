package signal

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Avatar/internal/core"
)

const toggleTimeout = 10 * time.Second

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(conn, resp)
}

func (ctl *SignalWSController) handleToggleMute(
	ctx context.Context,
	sess core.ViewerSession,
	conn *WsSignalConn,
) {
	id := sess.Meta().ID
	if ctl.Limiter != nil && !ctl.Limiter.Allow(id) {
		log.Warn().Str("module", "signal").Str("viewer", string(id)).Msg("toggle_mute rate limited")
		ctl.sendError(conn, "rate_limited")
		return
	}

	// The vendor call can take a while; keep reading other messages meanwhile.
	go func() {
		ctx, cancel := context.WithTimeout(ctx, toggleTimeout)
		defer cancel()
		muted, err := ctl.Session.ToggleMute(ctx)
		if err != nil {
			ctl.sendError(conn, err.Error())
			return
		}
		ctl.sendJSON(conn, struct {
			Type  string `json:"type"`
			Muted bool   `json:"muted"`
		}{"muted", muted})
	}()
}
