package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/Avatar/internal/core"
	"github.com/dkeye/Avatar/internal/domain"
)

const (
	DefaultWatchdogTimeout = 30 * time.Second
	DefaultDestroyTimeout  = 5 * time.Second

	eventBuffer = 32
)

type Options struct {
	Persona         domain.Persona
	WatchdogTimeout time.Duration
	DestroyTimeout  time.Duration
}

// Snapshot is what the presentation surface renders.
type Snapshot struct {
	State domain.State
	Muted bool
}

// Controller drives one avatar session from token acquisition to teardown.
// All state is owned by a single loop goroutine; callers and the session
// client talk to it through channels.
type Controller struct {
	fetcher core.TokenFetcher
	factory core.ClientFactory
	opts    Options
	logger  zerolog.Logger

	msgs   chan message
	events chan core.Event
	done   chan struct{}

	lifeMu     sync.Mutex
	mounted    bool
	stopped    bool
	lifeCtx    context.Context
	lifeCancel context.CancelFunc
	wg         conc.WaitGroup

	snap atomic.Pointer[Snapshot]

	subMu   sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int

	// Loop-owned.
	state    domain.State
	muted    bool
	client   core.SessionClient
	unsub    func()
	watchdog *time.Timer
	sawReady bool
	toggling bool

	// observe, when set before Mount, sees every transition in order.
	observe func(domain.State)
}

func NewController(fetcher core.TokenFetcher, factory core.ClientFactory, opts Options) *Controller {
	if opts.WatchdogTimeout <= 0 {
		opts.WatchdogTimeout = DefaultWatchdogTimeout
	}
	if opts.DestroyTimeout <= 0 {
		opts.DestroyTimeout = DefaultDestroyTimeout
	}
	c := &Controller{
		fetcher: fetcher,
		factory: factory,
		opts:    opts,
		logger:  log.With().Str("module", "app.controller").Logger(),
		msgs:    make(chan message),
		events:  make(chan core.Event, eventBuffer),
		done:    make(chan struct{}),
		subs:    make(map[int]chan Snapshot),
		state:   domain.Initializing{},
	}
	c.snap.Store(&Snapshot{State: c.state})
	return c
}

// Mount starts the loop and the startup sequence. Subsequent calls, and
// calls after Unmount, do nothing.
func (c *Controller) Mount(ctx context.Context) {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.mounted || c.stopped {
		return
	}
	c.mounted = true
	c.lifeCtx, c.lifeCancel = context.WithCancel(context.WithoutCancel(ctx))

	// Armed before the first step so a hung step still times out.
	c.watchdog = time.NewTimer(c.opts.WatchdogTimeout)
	c.logger.Info().Dur("watchdog", c.opts.WatchdogTimeout).Msg("mounting session")

	c.wg.Go(c.loop)
	c.wg.Go(func() { c.startup(c.lifeCtx) })
}

// Unmount tears the session down: the watchdog is cancelled and the client
// handle, if any, destroyed. Idempotent; blocks until all goroutines exit.
func (c *Controller) Unmount() {
	c.lifeMu.Lock()
	first := !c.stopped
	c.stopped = true
	mounted := c.mounted
	c.lifeMu.Unlock()

	if first {
		if mounted {
			c.send(stopMsg{})
		} else {
			c.state = domain.Terminated{}
			c.publish()
			c.closeSubscribers()
			close(c.done)
		}
	}
	<-c.done
	c.wg.Wait()
}

// Done is closed once the session has been torn down.
func (c *Controller) Done() <-chan struct{} { return c.done }

func (c *Controller) Snapshot() Snapshot { return *c.snap.Load() }

// Subscribe returns a channel receiving the latest snapshot, starting with
// the current one. A slow reader only ever misses intermediate snapshots.
// The channel is closed after teardown or when cancel is called.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	c.subMu.Lock()
	defer c.subMu.Unlock()
	ch <- c.Snapshot()
	if c.subs == nil {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	return ch, func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if s, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(s)
		}
	}
}

// ToggleMute stops listening when unmuted and starts listening when muted.
// The flag flips only when the command succeeds. Without a live client it
// returns domain.ErrNoSession and changes nothing.
func (c *Controller) ToggleMute(ctx context.Context) (bool, error) {
	c.lifeMu.Lock()
	mounted, stopped := c.mounted, c.stopped
	c.lifeMu.Unlock()
	if stopped {
		return c.Snapshot().Muted, domain.ErrTerminated
	}
	if !mounted {
		return c.Snapshot().Muted, domain.ErrNoSession
	}

	reply := make(chan toggleResult, 1)
	if !c.send(toggleReq{ctx: ctx, reply: reply}) {
		return c.Snapshot().Muted, domain.ErrTerminated
	}
	select {
	case r := <-reply:
		return r.muted, r.err
	case <-ctx.Done():
		return c.Snapshot().Muted, ctx.Err()
	}
}

// send delivers m to the loop. It reports false once the loop has exited.
func (c *Controller) send(m message) bool {
	select {
	case c.msgs <- m:
		return true
	case <-c.done:
		return false
	}
}

func (c *Controller) publish() {
	s := Snapshot{State: c.state, Muted: c.muted}
	c.snap.Store(&s)

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

func (c *Controller) closeSubscribers() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.subs = nil
}
