// Package relay accepts chat messages, records them in the thread store, and
// pushes them to the connections watching their thread.
//
// Push is at-most-once. A connection that misses an event recovers by pulling
// History, which is always authoritative.
package relay

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/zulandar/switchboard/internal/idgen"
	"github.com/zulandar/switchboard/internal/keylock"
	"github.com/zulandar/switchboard/internal/metrics"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/presence"
	"github.com/zulandar/switchboard/internal/threadstore"
)

// Limits.
const (
	DefaultMaxTextLen = 4000
	MaxParticipantLen = 128
)

// Watchers resolves the connections interested in a thread.
type Watchers interface {
	WatchersOf(threadID string) []presence.Conn
}

// Observer is told about every accepted message, off the submit path.
type Observer interface {
	OnAccepted(msg models.Message, firstInThread bool)
}

// SubmitRequest is one message offered for acceptance.
type SubmitRequest struct {
	ThreadID string
	Role     models.Role
	Text     string
	Name     string
	Contact  string
}

// Relay is the single entry point for accepting messages.
type Relay struct {
	store      threadstore.Store
	watchers   Watchers
	maxTextLen int
	log        zerolog.Logger

	locks keylock.Map

	obsMu     sync.RWMutex
	observers []Observer
	obsWG     sync.WaitGroup
}

// Opts holds parameters for creating a Relay.
type Opts struct {
	Store      threadstore.Store
	Watchers   Watchers
	MaxTextLen int // defaults to DefaultMaxTextLen
	Log        zerolog.Logger
}

// New creates a Relay.
func New(opts Opts) (*Relay, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("relay: store is required")
	}
	if opts.Watchers == nil {
		return nil, fmt.Errorf("relay: watchers is required")
	}
	maxLen := opts.MaxTextLen
	if maxLen <= 0 {
		maxLen = DefaultMaxTextLen
	}
	return &Relay{
		store:      opts.Store,
		watchers:   opts.Watchers,
		maxTextLen: maxLen,
		log:        opts.Log,
	}, nil
}

// AddObserver registers o for every subsequently accepted message.
func (r *Relay) AddObserver(o Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.observers = append(r.observers, o)
}

// Submit validates req, appends it, and pushes the stored message to every
// watcher of its thread. The thread stays locked from append through push so
// all watchers see a thread's messages in acceptance order. Delivery failures
// are absorbed.
func (r *Relay) Submit(ctx context.Context, req SubmitRequest) (*models.Message, error) {
	in, verr := r.validate(req)
	if verr != nil {
		metrics.SubmitsRejected.WithLabelValues(string(KindValidation)).Inc()
		return nil, verr
	}

	unlock := r.locks.Lock(in.ThreadID)
	start := time.Now()
	msg, err := r.store.Append(ctx, in)
	metrics.AppendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		unlock()
		metrics.SubmitsRejected.WithLabelValues(string(KindStorage)).Inc()
		r.log.Error().Err(err).Str("thread", in.ThreadID).Msg("append failed")
		return nil, storageError("could not record message", err)
	}
	r.push(*msg)
	unlock()

	metrics.MessagesAccepted.WithLabelValues(string(msg.Role)).Inc()
	r.log.Debug().Str("thread", msg.ThreadID).Int("seq", msg.Seq).Str("role", string(msg.Role)).Msg("accepted")
	r.notify(*msg)
	return msg, nil
}

func (r *Relay) push(msg models.Message) {
	ev := presence.MessageEvent(msg)
	for _, c := range r.watchers.WatchersOf(msg.ThreadID) {
		ok := c.Deliver(ev)
		metrics.RecordPush(ok)
		if !ok {
			r.log.Debug().Str("conn", c.ID()).Str("thread", msg.ThreadID).Int("seq", msg.Seq).Msg("push dropped")
		}
	}
}

func (r *Relay) notify(msg models.Message) {
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	first := msg.Seq == 1
	for _, o := range r.observers {
		r.obsWG.Add(1)
		go func(o Observer) {
			defer r.obsWG.Done()
			o.OnAccepted(msg, first)
		}(o)
	}
}

// Wait blocks until all in-flight observer callbacks return.
func (r *Relay) Wait() {
	r.obsWG.Wait()
}

func (r *Relay) validate(req SubmitRequest) (models.NewMessage, *Error) {
	if req.ThreadID == "" {
		return models.NewMessage{}, validationError("threadId is required")
	}
	if !idgen.ValidThreadID(req.ThreadID) {
		return models.NewMessage{}, validationError("threadId is malformed")
	}
	if !req.Role.Valid() {
		return models.NewMessage{}, validationError(fmt.Sprintf("unknown role %q", req.Role))
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return models.NewMessage{}, validationError("text is required")
	}
	if n := utf8.RuneCountInString(text); n > r.maxTextLen {
		return models.NewMessage{}, validationError(fmt.Sprintf("text is %d characters, limit is %d", n, r.maxTextLen))
	}
	name := strings.TrimSpace(req.Name)
	contact := strings.TrimSpace(req.Contact)
	if utf8.RuneCountInString(name) > MaxParticipantLen || utf8.RuneCountInString(contact) > MaxParticipantLen {
		return models.NewMessage{}, validationError(fmt.Sprintf("name and contact are limited to %d characters", MaxParticipantLen))
	}
	return models.NewMessage{
		ThreadID: req.ThreadID,
		Role:     req.Role,
		Text:     text,
		Name:     name,
		Contact:  contact,
	}, nil
}

// History returns the authoritative message log of a thread.
func (r *Relay) History(ctx context.Context, threadID string) ([]models.Message, error) {
	if threadID == "" {
		return nil, validationError("threadId is required")
	}
	if !idgen.ValidThreadID(threadID) {
		return nil, validationError("threadId is malformed")
	}
	msgs, err := r.store.History(ctx, threadID)
	if err != nil {
		return nil, storageError("could not read history", err)
	}
	return msgs, nil
}

// ListThreads returns every thread summary, most recently active first.
func (r *Relay) ListThreads(ctx context.Context) ([]models.ThreadSummary, error) {
	threads, err := r.store.ListThreads(ctx)
	if err != nil {
		return nil, storageError("could not list threads", err)
	}
	return threads, nil
}
