package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/presence"
)

// ErrNoThreadOpen is returned by Reply before Open.
var ErrNoThreadOpen = errors.New("client: no thread open")

// ConsoleOpts holds parameters for creating a Console.
type ConsoleOpts struct {
	API       *API // must carry the operator token
	OnThreads func([]models.ThreadSummary)
	OnMessage func(models.Message) // messages new to the open thread's log
	Log       zerolog.Logger

	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Console is an operator's view: the all-threads feed, the thread summary
// list, and at most one open thread.
type Console struct {
	api        *API
	onThreads  func([]models.ThreadSummary)
	onMessage  func(models.Message)
	logger     zerolog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration

	msgs Log

	mu      sync.Mutex
	threads []models.ThreadSummary
	openID  string
	live    bool
}

// NewConsole creates a Console.
func NewConsole(opts ConsoleOpts) (*Console, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("client: console: api is required")
	}
	if opts.API.token == "" {
		return nil, fmt.Errorf("client: console: operator token is required")
	}
	c := &Console{
		api:       opts.API,
		onThreads: opts.OnThreads,
		onMessage: opts.OnMessage,
		logger:    opts.Log,
	}
	c.minBackoff, c.maxBackoff = backoffBounds(opts.MinBackoff, opts.MaxBackoff)
	return c, nil
}

// Threads returns the last loaded summary list.
func (c *Console) Threads() []models.ThreadSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ThreadSummary(nil), c.threads...)
}

// OpenThread returns the id of the open thread, or "".
func (c *Console) OpenThread() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openID
}

// Live reports whether the feed is connected and subscribed.
func (c *Console) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// Messages returns the open thread's log.
func (c *Console) Messages() []models.Message {
	return c.msgs.Messages()
}

// Refresh reloads the summary list.
func (c *Console) Refresh(ctx context.Context) error {
	threads, err := c.api.ListThreads(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.threads = threads
	c.mu.Unlock()
	if c.onThreads != nil {
		c.onThreads(threads)
	}
	return nil
}

// Open scopes later pushes to threadID, pulls its history, and returns the
// resulting log.
func (c *Console) Open(ctx context.Context, threadID string) ([]models.Message, error) {
	c.mu.Lock()
	c.openID = threadID
	c.msgs.Reset()
	c.mu.Unlock()

	history, err := c.api.ThreadHistory(ctx, threadID)
	if err != nil {
		c.mu.Lock()
		if c.openID == threadID {
			c.openID = ""
		}
		c.mu.Unlock()
		return nil, err
	}
	c.fold(threadID, history)
	return c.msgs.Messages(), nil
}

// Reply sends text to the open thread.
func (c *Console) Reply(ctx context.Context, text string) (*models.Message, error) {
	id := c.OpenThread()
	if id == "" {
		return nil, ErrNoThreadOpen
	}
	msg, err := c.api.Reply(ctx, id, text)
	if err != nil {
		return nil, err
	}
	if gap := c.merge(*msg); gap {
		c.pullOpen(ctx)
	}
	return msg, nil
}

// Run keeps the all-threads feed connected until ctx ends. It returns an
// error only when the server refuses the operator token.
func (c *Console) Run(ctx context.Context) error {
	backoff := c.minBackoff
	for {
		connected, err := c.session(ctx)
		c.setLive(false)
		if IsUnauthorized(err) {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			backoff = c.minBackoff
		}
		c.logger.Debug().Err(err).Dur("retry_in", backoff).Msg("operator feed lost")

		if !sleepCtx(ctx, backoff) {
			return nil
		}
		backoff = nextBackoff(backoff, c.maxBackoff)
	}
}

func (c *Console) session(ctx context.Context) (bool, error) {
	feed, err := DialFeed(ctx, c.api.BaseURL(), c.api.token, FeedTarget{All: true})
	if err != nil {
		return false, err
	}
	defer feed.Close()

	for {
		ev, err := feed.Next(ctx)
		if err != nil {
			return true, err
		}
		c.handle(ctx, ev)
	}
}

func (c *Console) handle(ctx context.Context, ev presence.Event) {
	switch ev.Type {
	case presence.KindSubscribed:
		if c.resync(ctx) {
			c.setLive(true)
		}
	case presence.KindError:
		c.logger.Warn().Str("error", ev.Error).Msg("operator feed error")
	case presence.KindMessageCreated, presence.KindMessageReplied:
		if err := c.Refresh(ctx); err != nil {
			c.logger.Debug().Err(err).Msg("refresh threads")
		}
		if ev.Message == nil {
			return
		}
		if gap := c.merge(*ev.Message); gap {
			c.pullOpen(ctx)
		}
	}
}

// resync reloads summaries and re-pulls the open thread after (re)connecting,
// retrying until both succeed. It reports whether they did.
func (c *Console) resync(ctx context.Context) bool {
	err := retry(ctx, c.minBackoff, c.maxBackoff, IsUnauthorized, func() error {
		err := c.Refresh(ctx)
		if err != nil {
			c.logger.Debug().Err(err).Msg("refresh threads")
		}
		return err
	})
	if err != nil {
		return false
	}
	return c.pullOpen(ctx)
}

// pullOpen folds the open thread's history into the log, retrying transient
// failures. It reports whether the log is in sync.
func (c *Console) pullOpen(ctx context.Context) bool {
	id := c.OpenThread()
	if id == "" {
		return true
	}
	var history []models.Message
	err := retry(ctx, c.minBackoff, c.maxBackoff, permanentConsoleError, func() error {
		var err error
		history, err = c.api.ThreadHistory(ctx, id)
		if err != nil {
			c.logger.Debug().Err(err).Str("thread", id).Msg("history pull failed")
		}
		return err
	})
	if err != nil {
		return false
	}
	for _, m := range c.fold(id, history) {
		if c.onMessage != nil {
			c.onMessage(m)
		}
	}
	return true
}

func permanentConsoleError(err error) bool {
	return IsUnauthorized(err) || IsValidation(err)
}

// fold merges history into the log if threadID is still open and returns
// the messages it added.
func (c *Console) fold(threadID string, history []models.Message) []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openID != threadID {
		return nil
	}
	return c.msgs.Replace(history)
}

// merge adds m to the open thread's log; messages for other threads are
// ignored.
func (c *Console) merge(m models.Message) bool {
	c.mu.Lock()
	if m.ThreadID != c.openID {
		c.mu.Unlock()
		return false
	}
	added, gap := c.msgs.Merge(m)
	c.mu.Unlock()
	if added && c.onMessage != nil {
		c.onMessage(m)
	}
	return gap
}

func (c *Console) setLive(v bool) {
	c.mu.Lock()
	c.live = v
	c.mu.Unlock()
}
