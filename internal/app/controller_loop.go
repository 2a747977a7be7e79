package app

import (
	"context"
	"time"

	"github.com/dkeye/Avatar/internal/core"
	"github.com/dkeye/Avatar/internal/domain"
)

type message interface{ isMessage() }

type (
	stepMsg   struct{ state domain.State }
	failMsg   struct{ err *domain.SessionError }
	clientMsg struct {
		client core.SessionClient
		unsub  func()
	}
	toggleReq struct {
		ctx   context.Context
		reply chan toggleResult
	}
	toggleDone struct {
		wasMuted bool
		err      error
		reply    chan toggleResult
	}
	stopMsg struct{}
)

func (stepMsg) isMessage()    {}
func (failMsg) isMessage()    {}
func (clientMsg) isMessage()  {}
func (toggleReq) isMessage()  {}
func (toggleDone) isMessage() {}
func (stopMsg) isMessage()    {}

type toggleResult struct {
	muted bool
	err   error
}

func (c *Controller) loop() {
	for {
		var fire <-chan time.Time
		if c.watchdog != nil {
			fire = c.watchdog.C
		}

		select {
		case m := <-c.msgs:
			if _, ok := m.(stopMsg); ok {
				c.teardown()
				return
			}
			c.handle(m)
		case ev := <-c.events:
			c.onEvent(ev)
		case <-fire:
			c.watchdog = nil
			c.onWatchdog()
		}
	}
}

func (c *Controller) handle(m message) {
	switch m := m.(type) {
	case stepMsg:
		switch c.state.(type) {
		case domain.Initializing, domain.AwaitingToken, domain.CreatingClient:
			c.setState(m.state)
		default:
			c.logger.Debug().Str("step", m.state.Phase().String()).Str("state", c.state.Phase().String()).Msg("stale startup step ignored")
		}
	case failMsg:
		c.fail(m.err)
	case clientMsg:
		c.client, c.unsub = m.client, m.unsub
		c.logger.Info().Msg("session client registered")
		if fatal(c.state) {
			c.destroyClient()
		}
	case toggleReq:
		c.onToggle(m)
	case toggleDone:
		c.toggling = false
		if m.err != nil {
			c.logger.Error().Err(m.err).Bool("muted", m.wasMuted).Msg("failed to toggle mute")
			m.reply <- toggleResult{muted: c.muted, err: domain.NewSessionError(domain.KindMuteToggle, "", m.err)}
			return
		}
		c.muted = !m.wasMuted
		c.logger.Info().Bool("muted", c.muted).Msg("microphone toggled")
		c.publish()
		m.reply <- toggleResult{muted: c.muted}
	}
}

func (c *Controller) setState(s domain.State) {
	c.state = s
	ev := c.logger.Info().Str("state", s.Phase().String())
	if f, ok := s.(domain.Failed); ok {
		ev = ev.Str("kind", f.Err.Kind.String()).Str("reason", f.Reason())
	}
	ev.Msg("state changed")
	if c.observe != nil {
		c.observe(s)
	}
	c.publish()
}

// fatal reports whether s is a failure nothing but a reload recovers from.
func fatal(s domain.State) bool {
	switch v := s.(type) {
	case domain.Failed:
		return v.Resume == nil
	case domain.Terminated:
		return true
	}
	return false
}

// fail moves to Failed and releases the session. A state that is already
// fatal is kept, so the first fatal reason wins.
func (c *Controller) fail(err *domain.SessionError) {
	if fatal(c.state) {
		c.logger.Debug().Err(err).Msg("failure after fatal state ignored")
		return
	}
	c.stopWatchdog()
	c.setState(domain.NewFailed(err))
	if c.lifeCancel != nil {
		c.lifeCancel()
	}
	c.destroyClient()
}

func (c *Controller) onEvent(ev core.Event) {
	c.logger.Debug().Str("event", ev.Kind.String()).Str("state", c.state.Phase().String()).Msg("session event")

	switch ev.Kind {
	case core.EventStreamReady:
		ready, ok := domain.NewReady(ev.Stream)
		if !ok {
			c.logger.Warn().Msg("stream ready without a stream")
			return
		}
		switch s := c.state.(type) {
		case domain.Starting, domain.Ready:
		case domain.Failed:
			if s.Resume == nil {
				return
			}
		default:
			return
		}
		c.sawReady = true
		c.stopWatchdog()
		c.setState(ready)

	case core.EventStreamStopped:
		if domain.StreamOf(c.state) == nil {
			return
		}
		f := domain.NewFailed(domain.NewSessionError(domain.KindStream, domain.MsgStreamStopped, nil))
		f.Resume = domain.Starting{}
		c.setState(f)

	case core.EventError:
		if fatal(c.state) {
			return
		}
		c.fail(domain.NewSessionError(domain.KindStream, "Stream error: "+ev.Message, nil))

	case core.EventDisconnected:
		switch c.state.(type) {
		case domain.Starting, domain.Ready:
			f := domain.NewFailed(domain.NewSessionError(domain.KindDisconnected, domain.MsgDisconnected, nil))
			f.Resume = c.state
			c.setState(f)
		}

	case core.EventReconnected:
		if f, ok := c.state.(domain.Failed); ok && f.Recoverable() {
			c.setState(f.Resume)
		}
	}
}

// onWatchdog judges the live state at fire time.
func (c *Controller) onWatchdog() {
	if c.sawReady || fatal(c.state) {
		return
	}
	c.logger.Warn().Str("state", c.state.Phase().String()).Msg("stream timeout")
	c.fail(domain.NewSessionError(domain.KindTimeout, domain.MsgTimeout, nil))
}

func (c *Controller) onToggle(req toggleReq) {
	if c.client == nil {
		req.reply <- toggleResult{muted: c.muted, err: domain.ErrNoSession}
		return
	}
	if c.toggling {
		req.reply <- toggleResult{muted: c.muted, err: domain.ErrToggleInFlight}
		return
	}
	c.toggling = true
	client, wasMuted := c.client, c.muted

	ctx, cancel := context.WithCancel(c.lifeCtx)
	stop := context.AfterFunc(req.ctx, cancel)
	c.wg.Go(func() {
		defer cancel()
		defer stop()
		var err error
		if wasMuted {
			c.logger.Info().Msg("unmuting microphone")
			err = client.StartListening(ctx)
		} else {
			c.logger.Info().Msg("muting microphone")
			err = client.StopListening(ctx)
		}
		if !c.send(toggleDone{wasMuted: wasMuted, err: err, reply: req.reply}) {
			req.reply <- toggleResult{muted: wasMuted, err: domain.ErrTerminated}
		}
	})
}

func (c *Controller) stopWatchdog() {
	if c.watchdog != nil {
		c.watchdog.Stop()
		c.watchdog = nil
	}
}

func (c *Controller) destroyClient() {
	if c.client == nil {
		return
	}
	client, unsub := c.client, c.unsub
	c.client, c.unsub = nil, nil
	if unsub != nil {
		unsub()
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.DestroyTimeout)
	defer cancel()
	if err := client.Destroy(ctx); err != nil {
		c.logger.Error().Err(err).Msg("destroy session client")
		return
	}
	c.logger.Info().Msg("cleaned up session client")
}

func (c *Controller) teardown() {
	c.stopWatchdog()
	c.lifeCancel()
	c.destroyClient()
	c.state = domain.Terminated{}
	c.logger.Info().Msg("session terminated")
	c.publish()
	c.closeSubscribers()
	close(c.done)
}
