package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/switchboard/internal/db"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/presence"
	"github.com/zulandar/switchboard/internal/threadstore"
)

// recordingConn collects delivered events. When full is set it drops
// everything, like a connection with a saturated queue.
type recordingConn struct {
	id       string
	operator bool
	full     bool

	mu     sync.Mutex
	events []presence.Event
}

func (c *recordingConn) ID() string     { return c.id }
func (c *recordingConn) Operator() bool { return c.operator }

func (c *recordingConn) Deliver(ev presence.Event) bool {
	if c.full {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return true
}

func (c *recordingConn) Events() []presence.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]presence.Event(nil), c.events...)
}

// failingStore rejects every operation.
type failingStore struct{}

var errDiskFull = errors.New("disk full")

func (failingStore) Append(context.Context, models.NewMessage) (*models.Message, error) {
	return nil, errDiskFull
}
func (failingStore) History(context.Context, string) ([]models.Message, error) {
	return nil, errDiskFull
}
func (failingStore) ListThreads(context.Context) ([]models.ThreadSummary, error) {
	return nil, errDiskFull
}
func (failingStore) Close() error { return nil }

type fixture struct {
	relay    *Relay
	registry *presence.Registry
	store    threadstore.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	store, err := threadstore.NewGormStore(threadstore.GormOpts{DB: gdb})
	if err != nil {
		t.Fatalf("NewGormStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	reg := presence.NewRegistry(zerolog.Nop())
	r, err := New(Opts{Store: store, Watchers: reg, MaxTextLen: 100, Log: zerolog.Nop()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{relay: r, registry: reg, store: store}
}

func (f *fixture) subscribe(t *testing.T, c presence.Conn, threadID string) {
	t.Helper()
	if err := f.registry.Subscribe(c, threadID); err != nil {
		t.Fatalf("Subscribe(%s, %s): %v", c.ID(), threadID, err)
	}
}

func TestNew_RequiredFields(t *testing.T) {
	reg := presence.NewRegistry(zerolog.Nop())
	tests := []struct {
		name string
		opts Opts
		want string
	}{
		{"no store", Opts{Watchers: reg}, "store is required"},
		{"no watchers", Opts{Store: failingStore{}}, "watchers is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("New() error = %v, want to contain %q", err, tt.want)
			}
		})
	}
}

func TestSubmit_NeedHelpScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	guestConn := &recordingConn{id: "guest"}
	opConn := &recordingConn{id: "op", operator: true}
	f.subscribe(t, guestConn, "T1")
	f.subscribe(t, opConn, presence.All)

	msg, err := f.relay.Submit(ctx, SubmitRequest{ThreadID: "T1", Role: models.RoleGuest, Text: "need help"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if msg.Seq != 1 || msg.Text != "need help" {
		t.Errorf("msg = %+v, want seq 1 %q", msg, "need help")
	}

	threads, err := f.relay.ListThreads(ctx)
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(threads) != 1 || threads[0].LastText != "need help" {
		t.Errorf("threads = %+v", threads)
	}

	if _, err := f.relay.Submit(ctx, SubmitRequest{ThreadID: "T1", Role: models.RoleOperator, Text: "how can I help?"}); err != nil {
		t.Fatalf("Submit reply: %v", err)
	}

	for _, c := range []*recordingConn{guestConn, opConn} {
		evs := c.Events()
		if len(evs) != 2 {
			t.Fatalf("%s received %d events, want 2", c.id, len(evs))
		}
		if evs[0].Type != presence.KindMessageCreated || evs[1].Type != presence.KindMessageReplied {
			t.Errorf("%s event types = %s,%s", c.id, evs[0].Type, evs[1].Type)
		}
		if evs[1].Message.Text != "how can I help?" {
			t.Errorf("%s reply text = %q", c.id, evs[1].Message.Text)
		}
	}

	h, err := f.relay.History(ctx, "T1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(h) != 2 || h[0].Role != models.RoleGuest || h[1].Role != models.RoleOperator {
		t.Errorf("history = %+v", h)
	}
}

func TestSubmit_TwoGuestsIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := &recordingConn{id: "a"}
	b := &recordingConn{id: "b"}
	op := &recordingConn{id: "op", operator: true}
	f.subscribe(t, a, "TA")
	f.subscribe(t, b, "TB")
	f.subscribe(t, op, presence.All)

	var wg sync.WaitGroup
	for _, req := range []SubmitRequest{
		{ThreadID: "TA", Role: models.RoleGuest, Text: "from a"},
		{ThreadID: "TB", Role: models.RoleGuest, Text: "from b"},
	} {
		wg.Add(1)
		go func(req SubmitRequest) {
			defer wg.Done()
			if _, err := f.relay.Submit(ctx, req); err != nil {
				t.Errorf("Submit: %v", err)
			}
		}(req)
	}
	wg.Wait()

	if evs := a.Events(); len(evs) != 1 || evs[0].Message.ThreadID != "TA" {
		t.Errorf("a events = %+v, want only TA", evs)
	}
	if evs := b.Events(); len(evs) != 1 || evs[0].Message.ThreadID != "TB" {
		t.Errorf("b events = %+v, want only TB", evs)
	}
	if evs := op.Events(); len(evs) != 2 {
		t.Errorf("operator received %d events, want 2", len(evs))
	}
}

func TestSubmit_ConcurrentSendersOrdered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	watchers := []*recordingConn{
		{id: "g1"}, {id: "g2"}, {id: "op", operator: true},
	}
	f.subscribe(t, watchers[0], "busy")
	f.subscribe(t, watchers[1], "busy")
	f.subscribe(t, watchers[2], presence.All)

	const n = 30
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			role := models.RoleGuest
			if i%3 == 0 {
				role = models.RoleOperator
			}
			if _, err := f.relay.Submit(ctx, SubmitRequest{ThreadID: "busy", Role: role, Text: fmt.Sprintf("m%d", i)}); err != nil {
				t.Errorf("Submit: %v", err)
			}
		}(i)
	}
	wg.Wait()

	h, err := f.relay.History(ctx, "busy")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(h) != n {
		t.Fatalf("len(history) = %d, want %d", len(h), n)
	}

	for _, w := range watchers {
		evs := w.Events()
		if len(evs) != n {
			t.Fatalf("%s received %d events, want %d", w.id, len(evs), n)
		}
		for i, ev := range evs {
			if ev.Message.Seq != i+1 {
				t.Fatalf("%s event %d has seq %d, want %d", w.id, i, ev.Message.Seq, i+1)
			}
			if ev.Message.ID != h[i].ID {
				t.Errorf("%s event %d id = %s, history id = %s", w.id, i, ev.Message.ID, h[i].ID)
			}
		}
	}
}

func TestSubmit_ValidationRejects(t *testing.T) {
	tests := []struct {
		name string
		req  SubmitRequest
	}{
		{"missing thread", SubmitRequest{Role: models.RoleGuest, Text: "hi"}},
		{"malformed thread", SubmitRequest{ThreadID: "a b", Role: models.RoleGuest, Text: "hi"}},
		{"empty text", SubmitRequest{ThreadID: "T1", Role: models.RoleGuest}},
		{"whitespace text", SubmitRequest{ThreadID: "T1", Role: models.RoleGuest, Text: " \n\t "}},
		{"too long", SubmitRequest{ThreadID: "T1", Role: models.RoleGuest, Text: strings.Repeat("x", 101)}},
		{"unknown role", SubmitRequest{ThreadID: "T1", Role: "admin", Text: "hi"}},
		{"long name", SubmitRequest{ThreadID: "T1", Role: models.RoleGuest, Text: "hi", Name: strings.Repeat("n", 129)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			op := &recordingConn{id: "op", operator: true}
			f.subscribe(t, op, presence.All)

			_, err := f.relay.Submit(context.Background(), tt.req)
			if !IsValidation(err) {
				t.Fatalf("Submit() error = %v, want validation error", err)
			}
			if IsRetryable(err) {
				t.Error("validation error reported as retryable")
			}
			if evs := op.Events(); len(evs) != 0 {
				t.Errorf("rejected message was pushed: %+v", evs)
			}
			threads, _ := f.relay.ListThreads(context.Background())
			if len(threads) != 0 {
				t.Errorf("rejected message was stored: %+v", threads)
			}
		})
	}
}

func TestSubmit_TrimsText(t *testing.T) {
	f := newFixture(t)
	msg, err := f.relay.Submit(context.Background(), SubmitRequest{ThreadID: "T1", Role: models.RoleGuest, Text: "  hello \n", Name: " Lan "})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if msg.Text != "hello" || msg.Name != "Lan" {
		t.Errorf("msg text/name = %q/%q, want hello/Lan", msg.Text, msg.Name)
	}
}

func TestSubmit_MaxLengthCountsRunes(t *testing.T) {
	f := newFixture(t)
	// 100 multi-byte runes is within the limit.
	if _, err := f.relay.Submit(context.Background(), SubmitRequest{ThreadID: "T1", Role: models.RoleGuest, Text: strings.Repeat("é", 100)}); err != nil {
		t.Errorf("Submit(100 runes) = %v, want nil", err)
	}
}

func TestSubmit_StorageFailure(t *testing.T) {
	reg := presence.NewRegistry(zerolog.Nop())
	r, err := New(Opts{Store: failingStore{}, Watchers: reg, Log: zerolog.Nop()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	op := &recordingConn{id: "op", operator: true}
	reg.Subscribe(op, presence.All)

	_, err = r.Submit(context.Background(), SubmitRequest{ThreadID: "T1", Role: models.RoleGuest, Text: "hi"})
	if !IsRetryable(err) {
		t.Fatalf("Submit() error = %v, want retryable storage error", err)
	}
	if !errors.Is(err, errDiskFull) {
		t.Errorf("error does not wrap the store cause: %v", err)
	}
	if evs := op.Events(); len(evs) != 0 {
		t.Errorf("failed append was pushed: %+v", evs)
	}

	if _, err := r.History(context.Background(), "T1"); !IsRetryable(err) {
		t.Errorf("History() error = %v, want retryable", err)
	}
	if _, err := r.ListThreads(context.Background()); !IsRetryable(err) {
		t.Errorf("ListThreads() error = %v, want retryable", err)
	}
}

func TestSubmit_DroppedDeliveryAbsorbed(t *testing.T) {
	f := newFixture(t)
	slow := &recordingConn{id: "slow", full: true}
	ok := &recordingConn{id: "ok"}
	f.subscribe(t, slow, "T1")
	f.subscribe(t, ok, "T1")

	msg, err := f.relay.Submit(context.Background(), SubmitRequest{ThreadID: "T1", Role: models.RoleGuest, Text: "hi"})
	if err != nil {
		t.Fatalf("Submit() = %v, want success despite a full watcher", err)
	}
	if msg == nil {
		t.Fatal("Submit() returned nil message")
	}
	if len(ok.Events()) != 1 {
		t.Errorf("healthy watcher received %d events, want 1", len(ok.Events()))
	}
}

func TestHistory_MalformedThread(t *testing.T) {
	f := newFixture(t)
	if _, err := f.relay.History(context.Background(), "../../etc"); !IsValidation(err) {
		t.Errorf("History(malformed) = %v, want validation error", err)
	}
	h, err := f.relay.History(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("History(unknown) = %v", err)
	}
	if len(h) != 0 {
		t.Errorf("History(unknown) = %+v, want empty", h)
	}
}

func TestSubmit_ReconnectRecovery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g := &recordingConn{id: "g"}
	f.subscribe(t, g, "T1")
	if _, err := f.relay.Submit(ctx, SubmitRequest{ThreadID: "T1", Role: models.RoleGuest, Text: "hello?"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// The guest drops; the operator answers while it is away.
	f.registry.Unsubscribe(g)
	if _, err := f.relay.Submit(ctx, SubmitRequest{ThreadID: "T1", Role: models.RoleOperator, Text: "still there?"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(g.Events()) != 1 {
		t.Fatalf("disconnected guest received %d events, want 1", len(g.Events()))
	}

	h, err := f.relay.History(ctx, "T1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(h) != 2 || h[1].Text != "still there?" {
		t.Errorf("history after reconnect = %+v, want the missed reply", h)
	}
}

type observerFunc func(models.Message, bool)

func (f observerFunc) OnAccepted(m models.Message, first bool) { f(m, first) }

func TestSubmit_ObserversNotified(t *testing.T) {
	f := newFixture(t)
	type call struct {
		seq   int
		first bool
	}
	calls := make(chan call, 4)
	f.relay.AddObserver(observerFunc(func(m models.Message, first bool) {
		calls <- call{m.Seq, first}
	}))

	ctx := context.Background()
	f.relay.Submit(ctx, SubmitRequest{ThreadID: "T1", Role: models.RoleGuest, Text: "one"})
	f.relay.Submit(ctx, SubmitRequest{ThreadID: "T1", Role: models.RoleGuest, Text: "two"})
	f.relay.Wait()
	close(calls)

	got := map[int]bool{}
	for c := range calls {
		got[c.seq] = c.first
	}
	if len(got) != 2 {
		t.Fatalf("observer calls = %v, want 2", got)
	}
	if !got[1] || got[2] {
		t.Errorf("firstInThread flags = %v, want seq 1 only", got)
	}
}

func TestSubmit_SlowObserverDoesNotBlock(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	f.relay.AddObserver(observerFunc(func(models.Message, bool) { <-release }))
	defer func() {
		close(release)
		f.relay.Wait()
	}()

	done := make(chan error, 1)
	go func() {
		_, err := f.relay.Submit(context.Background(), SubmitRequest{ThreadID: "T1", Role: models.RoleGuest, Text: "hi"})
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked on observer")
	}
}

func TestError_Message(t *testing.T) {
	e := &Error{Kind: KindStorage, Reason: "could not record message", Err: errDiskFull}
	if got := e.Error(); got != "relay: storage: could not record message: disk full" {
		t.Errorf("Error() = %q", got)
	}
	v := validationError("text is required")
	if got := v.Error(); got != "relay: validation: text is required" {
		t.Errorf("Error() = %q", got)
	}
}
