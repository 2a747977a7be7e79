package app

import (
	"context"

	"github.com/dkeye/Avatar/internal/core"
	"github.com/dkeye/Avatar/internal/domain"
)

// startup runs the startup sequence once. Each step waits for the previous
// one; the first failure ends the sequence and is reported to the loop.
func (c *Controller) startup(ctx context.Context) {
	if !c.send(stepMsg{state: domain.AwaitingToken{}}) {
		return
	}
	c.logger.Info().Msg("getting token")
	token, err := c.fetcher.FetchToken(ctx)
	if err != nil {
		c.send(failMsg{err: domain.AsSessionError(domain.KindAuth, err)})
		return
	}
	c.logger.Info().Bool("token", token != "").Msg("got token")

	if !c.send(stepMsg{state: domain.CreatingClient{}}) {
		return
	}
	client, err := c.factory.NewClient(ctx, token)
	if err != nil {
		c.send(failMsg{err: domain.AsSessionError(domain.KindClientStart, err)})
		return
	}
	unsub := client.Subscribe(c.events)
	if !c.send(clientMsg{client: client, unsub: unsub}) {
		// Torn down while constructing: the loop never owned this handle.
		unsub()
		dctx, cancel := context.WithTimeout(context.Background(), c.opts.DestroyTimeout)
		defer cancel()
		if err := client.Destroy(dctx); err != nil {
			c.logger.Error().Err(err).Msg("destroy orphaned session client")
		}
		return
	}
	c.logger.Info().Msg("avatar instance created")

	steps := []struct {
		name string
		run  func() error
	}{
		{"starting avatar", func() error {
			info, err := client.StartSession(ctx, c.opts.Persona.Start)
			if err == nil {
				c.logger.Info().Str("session_id", info.SessionID).Msg("avatar started")
			}
			return err
		}},
		{"starting voice chat", func() error {
			return client.StartVoiceChat(ctx, c.opts.Persona.VoiceChat)
		}},
		{"sending greeting", func() error {
			if c.opts.Persona.Greeting.Text == "" {
				return nil
			}
			return client.Speak(ctx, c.opts.Persona.Greeting)
		}},
	}

	if !c.send(stepMsg{state: domain.Starting{}}) {
		return
	}
	for _, step := range steps {
		if ctx.Err() != nil {
			return
		}
		c.logger.Info().Msg(step.name)
		if err := step.run(); err != nil {
			c.logger.Error().Err(err).Str("step", step.name).Msg("failed to init avatar")
			c.send(failMsg{err: domain.AsSessionError(domain.KindClientStart, err)})
			return
		}
	}
	c.logger.Info().Msg("startup sequence complete")
}

var _ core.TokenFetcher = TokenFetcherFunc(nil)

// TokenFetcherFunc adapts a function to core.TokenFetcher.
type TokenFetcherFunc func(ctx context.Context) (domain.Token, error)

func (f TokenFetcherFunc) FetchToken(ctx context.Context) (domain.Token, error) { return f(ctx) }
