// Package presence tracks which live connections watch which threads.
// It holds no message content and is rebuilt from scratch on restart.
package presence

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/zulandar/switchboard/internal/idgen"
)

// All is the subscription target for the operator all-threads feed. It can
// never collide with a thread id.
const All = "*"

var (
	ErrNotOperator   = errors.New("presence: all-threads feed requires an operator")
	ErrInvalidThread = errors.New("presence: invalid thread id")
)

// Conn is one live push connection.
type Conn interface {
	ID() string
	Operator() bool
	// Deliver enqueues ev without blocking; false means it was dropped.
	Deliver(ev Event) bool
}

// Registry maps thread ids to watching connections. Each connection holds at
// most one subscription; subscribing again replaces it.
type Registry struct {
	mu      sync.RWMutex
	current map[string]string          // conn id -> thread id or All
	threads map[string]map[string]Conn // thread id -> conn id -> conn
	all     map[string]Conn
	log     zerolog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		current: make(map[string]string),
		threads: make(map[string]map[string]Conn),
		all:     make(map[string]Conn),
		log:     log,
	}
}

// Subscribe attaches c to threadID, or to the all-threads tier when threadID
// is All.
func (r *Registry) Subscribe(c Conn, threadID string) error {
	if threadID == All {
		if !c.Operator() {
			return ErrNotOperator
		}
	} else if !idgen.ValidThreadID(threadID) {
		return ErrInvalidThread
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(c.ID())
	r.current[c.ID()] = threadID
	if threadID == All {
		r.all[c.ID()] = c
	} else {
		set, ok := r.threads[threadID]
		if !ok {
			set = make(map[string]Conn)
			r.threads[threadID] = set
		}
		set[c.ID()] = c
	}
	r.log.Debug().Str("conn", c.ID()).Str("thread", threadID).Msg("subscribed")
	return nil
}

// Unsubscribe detaches c from whatever it watches. Unknown connections are
// ignored.
func (r *Registry) Unsubscribe(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.removeLocked(c.ID()) {
		r.log.Debug().Str("conn", c.ID()).Msg("unsubscribed")
	}
}

func (r *Registry) removeLocked(connID string) bool {
	prev, ok := r.current[connID]
	if !ok {
		return false
	}
	delete(r.current, connID)
	if prev == All {
		delete(r.all, connID)
		return true
	}
	if set := r.threads[prev]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.threads, prev)
		}
	}
	return true
}

// WatchersOf returns the connections that should see events for threadID:
// its own watchers plus every all-threads subscriber, each at most once.
func (r *Registry) WatchersOf(threadID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.threads[threadID]
	out := make([]Conn, 0, len(set)+len(r.all))
	for _, c := range set {
		out = append(out, c)
	}
	for id, c := range r.all {
		if _, dup := set[id]; dup {
			continue
		}
		out = append(out, c)
	}
	return out
}

// SubscriptionOf returns what connID currently watches.
func (r *Registry) SubscriptionOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.current[connID]
	return t, ok
}

// Counts reports the number of watched threads, thread-tier connections, and
// all-threads connections.
func (r *Registry) Counts() (threads, threadWatchers, operators int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	threads = len(r.threads)
	threadWatchers = len(r.current) - len(r.all)
	operators = len(r.all)
	return
}
