package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func waitSnapshot(t *testing.T, c *Conversation, desc string, ok func(Snapshot) bool) Snapshot {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := c.Snapshot()
		if ok(snap) {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached: %s; last snapshot: %+v", desc, c.Snapshot())
	return Snapshot{}
}

func eventually(t *testing.T, desc string, ok func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ok() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached: %s", desc)
}

type fakeGate struct {
	valid    atomic.Bool
	userID   string
	username string
}

func newFakeGate(userID, username string) *fakeGate {
	g := &fakeGate{userID: userID, username: username}
	g.valid.Store(true)
	return g
}

func (g *fakeGate) Valid() bool      { return g.valid.Load() }
func (g *fakeGate) UserID() string   { return g.userID }
func (g *fakeGate) Username() string { return g.username }

var errFakeNetwork = fmt.Errorf("%w: connection reset", ErrTransientNetwork)

type fakeAPI struct {
	mu           sync.Mutex
	sends        []SendRequest
	uploads      []UploadRequest
	historyCalls int
	history      []Record
	sendFn       func(n int, req SendRequest) (Ack, error)
}

func (a *fakeAPI) SendMessage(ctx context.Context, req SendRequest) (Ack, error) {
	a.mu.Lock()
	a.sends = append(a.sends, req)
	n := len(a.sends)
	fn := a.sendFn
	a.mu.Unlock()
	if fn != nil {
		return fn(n, req)
	}
	return Ack{ServerID: fmt.Sprintf("srv-%d", n), Status: StatusSent, Content: req.Content}, nil
}

func (a *fakeAPI) FetchHistory(ctx context.Context, conversationID string) ([]Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.historyCalls++
	out := make([]Record, len(a.history))
	copy(out, a.history)
	return out, nil
}

func (a *fakeAPI) Upload(ctx context.Context, req UploadRequest) (Attachment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.uploads = append(a.uploads, req)
	return Attachment{Path: "/files/" + req.Name}, nil
}

func (a *fakeAPI) sent() []SendRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]SendRequest, len(a.sends))
	copy(out, a.sends)
	return out
}

func (a *fakeAPI) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.historyCalls
}

type typingCall struct {
	conversationID string
	isTyping       bool
}

type receiptCall struct {
	kind      ReceiptKind
	messageID string
}

type fakeSignaler struct {
	mu       sync.Mutex
	typing   []typingCall
	receipts []receiptCall
}

func (s *fakeSignaler) SendTyping(ctx context.Context, conversationID, chatType string, isTyping bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typing = append(s.typing, typingCall{conversationID: conversationID, isTyping: isTyping})
	return nil
}

func (s *fakeSignaler) SendReceipt(ctx context.Context, kind ReceiptKind, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, receiptCall{kind: kind, messageID: messageID})
	return nil
}

func (s *fakeSignaler) typingCalls() []typingCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]typingCall, len(s.typing))
	copy(out, s.typing)
	return out
}

func (s *fakeSignaler) receiptCalls() []receiptCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]receiptCall, len(s.receipts))
	copy(out, s.receipts)
	return out
}

func (s *fakeSignaler) count(isTyping bool) int {
	n := 0
	for _, c := range s.typingCalls() {
		if c.isTyping == isTyping {
			n++
		}
	}
	return n
}

type testEnv struct {
	hub   *Hub
	api   *fakeAPI
	sig   *fakeSignaler
	gate  *fakeGate
	clock *clock.Mock
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()

	env := &testEnv{
		api:   &fakeAPI{},
		sig:   &fakeSignaler{},
		gate:  newFakeGate("alice", "Alice"),
		clock: clock.NewMock(),
	}
	env.hub = NewHub(Deps{
		Gate:     env.gate,
		API:      env.api,
		Signaler: env.sig,
		Clock:    env.clock,
	}, opts)
	t.Cleanup(env.hub.Logout)
	return env
}

// open opens a conversation and waits until its initial history has landed.
func (e *testEnv) open(t *testing.T, id string) *Conversation {
	t.Helper()

	c := e.hub.Open(id, "chat")
	waitSnapshot(t, c, "history loaded", func(s Snapshot) bool { return s.Version >= 2 })
	return c
}
