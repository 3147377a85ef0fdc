package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/switchboard/internal/idgen"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/presence"
)

// State is the guest connection state.
type State int

const (
	// StateNoThread: no thread id yet. The first Send creates one.
	StateNoThread State = iota
	// StateActive: subscribed to the own thread with the log in sync.
	StateActive
	// StateResuming: a thread id is known but the feed is down or the log
	// has not been re-pulled since reconnecting.
	StateResuming
)

func (s State) String() string {
	switch s {
	case StateNoThread:
		return "NO_THREAD"
	case StateActive:
		return "ACTIVE"
	case StateResuming:
		return "RESUMING"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// GuestOpts holds parameters for creating a Guest.
type GuestOpts struct {
	API       *API
	Identity  IdentityStore
	Name      string
	Contact   string
	OnMessage func(models.Message) // called once per message new to the local log
	Log       zerolog.Logger

	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Guest is a storefront visitor's chat session: one thread, persisted across
// restarts, kept in sync by push with history pulls on reconnect or gaps.
type Guest struct {
	api        *API
	identity   IdentityStore
	name       string
	contact    string
	onMessage  func(models.Message)
	logger     zerolog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration

	msgs Log

	mu       sync.Mutex
	threadID string
	state    State
	feed     *Feed
}

// NewGuest creates a Guest, restoring any persisted thread id.
func NewGuest(opts GuestOpts) (*Guest, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("client: guest: api is required")
	}
	if opts.Identity == nil {
		return nil, fmt.Errorf("client: guest: identity store is required")
	}
	id, err := opts.Identity.Load()
	if err != nil {
		return nil, err
	}
	g := &Guest{
		api:       opts.API,
		identity:  opts.Identity,
		name:      opts.Name,
		contact:   opts.Contact,
		onMessage: opts.OnMessage,
		logger:    opts.Log,
		threadID:  id,
		state:     StateNoThread,
	}
	g.minBackoff, g.maxBackoff = backoffBounds(opts.MinBackoff, opts.MaxBackoff)
	if id != "" {
		g.state = StateResuming
	}
	return g, nil
}

// ThreadID returns the current thread id, or "".
func (g *Guest) ThreadID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.threadID
}

// State returns the current state.
func (g *Guest) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Messages returns the local log in Seq order.
func (g *Guest) Messages() []models.Message {
	return g.msgs.Messages()
}

// Send submits text to the guest's thread, creating the thread on first use.
func (g *Guest) Send(ctx context.Context, text string) (*models.Message, error) {
	g.mu.Lock()
	id := g.threadID
	fresh := id == ""
	if fresh {
		id = idgen.ThreadID()
		if err := g.identity.Save(id); err != nil {
			g.mu.Unlock()
			return nil, err
		}
		g.threadID = id
		g.state = StateResuming
	}
	feed := g.feed
	g.mu.Unlock()

	if fresh && feed != nil {
		if err := feed.Subscribe(ctx, id); err != nil {
			g.logger.Debug().Err(err).Msg("subscribe after first send failed")
		}
	}

	msg, err := g.api.Send(ctx, GuestMessage{ThreadID: id, Text: text, Name: g.name, Contact: g.contact})
	if err != nil {
		return nil, err
	}
	if gap := g.merge(*msg); gap {
		g.resync(ctx, false)
	}
	return msg, nil
}

// Run keeps the feed connected until ctx ends, reconnecting with capped
// exponential backoff. It returns nil when ctx is cancelled.
func (g *Guest) Run(ctx context.Context) error {
	backoff := g.minBackoff
	for {
		connected, err := g.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			backoff = g.minBackoff
		}
		g.mu.Lock()
		if g.threadID != "" {
			g.state = StateResuming
		}
		g.mu.Unlock()
		g.logger.Debug().Err(err).Dur("retry_in", backoff).Msg("feed lost")

		if !sleepCtx(ctx, backoff) {
			return nil
		}
		backoff = nextBackoff(backoff, g.maxBackoff)
	}
}

// session runs one feed connection. connected reports whether the dial
// succeeded.
func (g *Guest) session(ctx context.Context) (connected bool, err error) {
	id := g.ThreadID()
	feed, err := DialFeed(ctx, g.api.BaseURL(), "", FeedTarget{ThreadID: id})
	if err != nil {
		return false, err
	}
	defer feed.Close()

	g.mu.Lock()
	g.feed = feed
	current := g.threadID
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.feed = nil
		g.mu.Unlock()
	}()

	// A first Send raced the dial.
	if id == "" && current != "" {
		if err := feed.Subscribe(ctx, current); err != nil {
			return true, err
		}
	}

	for {
		ev, err := feed.Next(ctx)
		if err != nil {
			return true, err
		}
		g.handle(ctx, ev)
	}
}

func (g *Guest) handle(ctx context.Context, ev presence.Event) {
	switch ev.Type {
	case presence.KindSubscribed:
		if ev.ThreadID == g.ThreadID() {
			g.resync(ctx, true)
		}
	case presence.KindError:
		g.logger.Debug().Str("error", ev.Error).Msg("feed error frame")
		// A rejected subscription leaves the guest resuming; the history
		// pull decides whether the stored id is usable at all.
		if g.State() == StateResuming {
			g.resync(ctx, false)
		}
	case presence.KindMessageCreated, presence.KindMessageReplied:
		if ev.Message == nil || ev.Message.ThreadID != g.ThreadID() {
			return
		}
		if gap := g.merge(*ev.Message); gap {
			g.resync(ctx, true)
		}
	}
}

// merge adds m to the log and reports whether it skipped a Seq.
func (g *Guest) merge(m models.Message) bool {
	added, gap := g.msgs.Merge(m)
	if added && g.onMessage != nil {
		g.onMessage(m)
	}
	return gap
}

// resync replaces the log with the server's history, retrying until the
// pull succeeds or ctx ends. A validation error means the stored id is
// unusable: it is discarded. activate moves a resuming guest to ACTIVE and
// is set only once the feed has confirmed the subscription.
func (g *Guest) resync(ctx context.Context, activate bool) {
	id := g.ThreadID()
	if id == "" {
		return
	}
	var history []models.Message
	err := retry(ctx, g.minBackoff, g.maxBackoff, IsValidation, func() error {
		var err error
		history, err = g.api.History(ctx, id)
		if err != nil && !IsValidation(err) {
			g.logger.Debug().Err(err).Str("thread", id).Msg("history pull failed")
		}
		return err
	})
	if IsValidation(err) {
		g.logger.Warn().Str("thread", id).Msg("stored thread id rejected, starting over")
		g.discard(id)
		return
	}
	if err != nil || g.ThreadID() != id {
		return
	}
	for _, m := range g.msgs.Replace(history) {
		if g.onMessage != nil {
			g.onMessage(m)
		}
	}
	if !activate {
		return
	}
	g.mu.Lock()
	if g.threadID == id && g.feed != nil {
		g.state = StateActive
	}
	g.mu.Unlock()
}

func (g *Guest) discard(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.threadID != id {
		return
	}
	if err := g.identity.Clear(); err != nil {
		g.logger.Warn().Err(err).Msg("clear identity")
	}
	g.threadID = ""
	g.state = StateNoThread
	g.msgs.Reset()
}
