package signal

import (
	"context"
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Avatar/internal/adapters/rtc"
	"github.com/dkeye/Avatar/internal/core"
	"github.com/dkeye/Avatar/internal/domain"
)

// errStreamNotStaged asks the viewer to offer again shortly: the stream is
// live but its relays are not running yet.
const errStreamNotStaged = "stream_not_staged"

func (ctl *SignalWSController) sendCandidate(c *WsSignalConn, ci webrtc.ICECandidateInit) {
	resp := struct {
		Type          string `json:"type"`
		Candidate     string `json:"candidate"`
		SDPMid        string `json:"sdpMid,omitempty"`
		SDPMLineIndex uint16 `json:"sdpMLineIndex,omitempty"`
	}{
		Type:      "candidate",
		Candidate: ci.Candidate,
	}
	if ci.SDPMid != nil {
		resp.SDPMid = *ci.SDPMid
	}
	if ci.SDPMLineIndex != nil {
		resp.SDPMLineIndex = *ci.SDPMLineIndex
	}
	ctl.sendJSON(c, resp)
}

// handleOffer answers a viewer's recvonly offer with the staged avatar
// tracks. A new offer replaces the viewer's previous connection.
func (ctl *SignalWSController) handleOffer(
	ctx context.Context,
	sess core.ViewerSession,
	conn *WsSignalConn,
	data []byte,
) {
	type offerPayload struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	var p offerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad offer payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	id := sess.Meta().ID

	if want := domain.StreamOf(ctl.Session.Snapshot().State); want != nil && ctl.Stage.Staged() != want.ID() {
		log.Info().Str("module", "signal").Str("viewer", string(id)).Str("stream", want.ID()).Msg("offer before stream staged")
		ctl.sendError(conn, errStreamNotStaged)
		return
	}

	cfg := rtc.DefaultWebRTCConfig()
	if ctl.ICEURLs != nil {
		cfg = rtc.WebRTCConfig(ctl.ICEURLs)
	}
	wc, err := rtc.NewWebRTCConnection(cfg, id)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc new pc")
		ctl.sendError(conn, "webrtc_unavailable")
		return
	}

	wc.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		ctl.sendCandidate(conn, ci)
	})
	wc.OnClosed(func() { ctl.Stage.Detach(id) })

	if err = wc.Start(ctx); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc start")
		wc.Close()
		return
	}

	offer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  p.SDP,
	}
	if err := wc.ApplyOffer(offer); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc apply offer")
		wc.Close()
		ctl.sendError(conn, "bad_offer")
		return
	}

	sess.UpdateMedia(wc)
	tracks, err := ctl.Stage.Attach(id, wc)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("viewer", string(id)).Msg("attach tracks")
	}

	answer, err := wc.CreateAnswer()
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc create answer")
		wc.Close()
		return
	}
	log.Info().Str("module", "signal").Str("viewer", string(id)).Int("tracks", tracks).Msg("answered offer")

	ctl.sendJSON(conn, map[string]string{
		"type": "answer",
		"sdp":  answer.SDP,
	})
}

func (ctl *SignalWSController) handleCandidate(
	sess core.ViewerSession,
	data []byte,
) {
	type candidatePayload struct {
		Type          string `json:"type"`
		Candidate     string `json:"candidate"`
		SDPMid        string `json:"sdpMid"`
		SDPMLineIndex uint16 `json:"sdpMLineIndex"`
	}
	var p candidatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		return
	}

	cand := webrtc.ICECandidateInit{
		Candidate: p.Candidate,
	}
	if p.SDPMid != "" {
		cand.SDPMid = &p.SDPMid
	}
	cand.SDPMLineIndex = &p.SDPMLineIndex

	mc := sess.Media()
	if mc == nil {
		log.Warn().Str("module", "signal").Str("viewer", string(sess.Meta().ID)).Msg("candidate: no media connection for")
		return
	}
	if err := mc.AddICECandidate(cand); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("add ice candidate")
	}
}
