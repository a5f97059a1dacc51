package core

import (
	"context"
	"testing"
	"time"
)

func TestHubOpenSwitchesConversation(t *testing.T) {
	env := newTestEnv(t, Options{})

	bob := env.open(t, "bob")
	if again := env.hub.Open("bob", "direct"); again != bob {
		t.Fatalf("reopening the active conversation should return it")
	}

	carol := env.open(t, "carol")
	if env.hub.Active() != carol {
		t.Fatalf("carol should be active")
	}
	select {
	case <-bob.done:
	default:
		t.Fatalf("previous conversation not closed")
	}

	// Intents on a closed conversation are dropped.
	bob.Compose("late")
	bob.Send()
	time.Sleep(20 * time.Millisecond)
	if n := len(env.api.sent()); n != 0 {
		t.Fatalf("closed conversation sent %d messages", n)
	}
}

func TestHubDeliveredReceiptForInactiveConversation(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.open(t, "bob")

	env.hub.Dispatch(Event{
		Kind:           EventNewMessage,
		ConversationID: "carol",
		Record:         &Record{ServerID: "c1", SenderID: "carol", Content: "psst"},
	})
	env.hub.Dispatch(Event{
		Kind:           EventNewMessage,
		ConversationID: "carol",
		Record:         &Record{ServerID: "c1", SenderID: "carol", Content: "psst"},
	})

	r := env.sig.receiptCalls()
	if len(r) != 1 || r[0].kind != ReceiptDelivered || r[0].messageID != "c1" {
		t.Fatalf("expected one delivered receipt, got %+v", r)
	}
	if n := len(env.hub.Active().Snapshot().Messages); n != 0 {
		t.Fatalf("message leaked into the wrong conversation")
	}
}

func TestHubOwnMessageElsewhereSendsNoReceipt(t *testing.T) {
	env := newTestEnv(t, Options{})

	env.hub.Dispatch(Event{
		Kind:           EventNewMessage,
		ConversationID: "carol",
		Record:         &Record{ServerID: "c2", SenderID: "alice", Content: "from my phone"},
	})
	if r := env.sig.receiptCalls(); len(r) != 0 {
		t.Fatalf("unexpected receipts: %+v", r)
	}
}

func TestHubAuthSuccessResyncsActive(t *testing.T) {
	env := newTestEnv(t, Options{})
	c := env.open(t, "bob")
	before := env.api.calls()

	env.api.mu.Lock()
	env.api.history = []Record{{ServerID: "m1", SenderID: "bob", Content: "missed while offline"}}
	env.api.mu.Unlock()

	env.hub.Dispatch(Event{Kind: EventAuthSuccess})
	waitSnapshot(t, c, "resynced", func(s Snapshot) bool { return len(s.Messages) == 1 })
	if env.api.calls() != before+1 {
		t.Fatalf("expected one history fetch, got %d", env.api.calls()-before)
	}
}

func TestHubRunStopsOnContext(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan Event)
	done := make(chan error, 1)
	go func() { done <- env.hub.Run(ctx, events) }()

	events <- Event{Kind: EventUnrecognized, RawType: "presence_update"}
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop")
	}
}

func TestHubLogoutClearsReceipts(t *testing.T) {
	env := newTestEnv(t, Options{})
	ev := Event{Kind: EventNewMessage, ConversationID: "carol", Record: &Record{ServerID: "c1", SenderID: "carol"}}

	env.hub.Dispatch(ev)
	env.hub.Logout()
	env.hub.Dispatch(ev)

	if r := env.sig.receiptCalls(); len(r) != 2 {
		t.Fatalf("receipt log should reset on logout, got %+v", r)
	}
	if env.hub.Active() != nil {
		t.Fatalf("logout should close the active conversation")
	}
}
