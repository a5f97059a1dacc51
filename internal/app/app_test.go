package app

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xipher-messenger/chatcore/internal/config"
	"github.com/xipher-messenger/chatcore/internal/core"
	"github.com/xipher-messenger/chatcore/internal/proto"
	"github.com/xipher-messenger/chatcore/internal/testserver"
)

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startBackend(t *testing.T) (*testserver.Server, *config.Config) {
	t.Helper()
	srv := testserver.New(testserver.Options{EchoToSender: true}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg := config.Default()
	cfg.APIBaseURL = ts.URL
	cfg.WSURL = strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	cfg.RequestTimeout = 2 * time.Second
	cfg.RetryBaseDelay = 10 * time.Millisecond
	cfg.WSReconnectBase = 10 * time.Millisecond
	cfg.WSReconnectMax = 50 * time.Millisecond
	return srv, &cfg
}

func startApp(t *testing.T, srv *testserver.Server, cfg *config.Config, userID, username string) *App {
	t.Helper()
	a, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	token, err := srv.Token(userID, username)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if err := a.Login(token, "", ""); err != nil {
		t.Fatalf("login: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("run: %v", err)
		}
	})
	eventually(t, userID+" online", func() bool { return srv.Online(userID) })
	return a
}

func find(snap core.Snapshot, content string) (core.Message, bool) {
	for _, m := range snap.Messages {
		if m.Content == content {
			return m, true
		}
	}
	return core.Message{}, false
}

func TestTwoClientsExchangeMessages(t *testing.T) {
	srv, cfg := startBackend(t)
	alice := startApp(t, srv, cfg, "1", "alice")
	bob := startApp(t, srv, cfg, "2", "bob")

	aliceConv := alice.Open("2", "chat")
	bobConv := bob.Open("1", "chat")
	eventually(t, "histories loaded", func() bool {
		return aliceConv.Snapshot().Version >= 2 && bobConv.Snapshot().Version >= 2
	})

	aliceConv.Compose("hello bob")
	eventually(t, "bob sees alice typing", func() bool {
		typing := bobConv.Snapshot().Typing
		return len(typing) == 1 && typing[0] == "alice"
	})

	aliceConv.Send()
	eventually(t, "bob receives message", func() bool {
		_, ok := find(bobConv.Snapshot(), "hello bob")
		return ok
	})
	eventually(t, "alice sees read receipt", func() bool {
		m, ok := find(aliceConv.Snapshot(), "hello bob")
		return ok && m.ServerID != "" && m.Status == core.StatusRead
	})

	// Ack and echo must reconcile into one entry.
	snap := aliceConv.Snapshot()
	count := 0
	for _, m := range snap.Messages {
		if m.Content == "hello bob" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected one entry after ack and echo, got %d", count)
	}
	if m, _ := find(snap, "hello bob"); m.Direction != core.DirectionOutgoing {
		t.Fatalf("expected outgoing entry, got %v", m.Direction)
	}
	if m, _ := find(bobConv.Snapshot(), "hello bob"); m.Direction != core.DirectionIncoming || m.SenderID != "1" {
		t.Fatalf("unexpected entry on bob's side: %+v", m)
	}
}

func TestReplyCarriesQuote(t *testing.T) {
	srv, cfg := startBackend(t)
	first := srv.Seed(proto.MessageRecord{SenderID: "2", SenderUsername: "bob", ReceiverID: "1", Content: "lunch?"})
	alice := startApp(t, srv, cfg, "1", "alice")

	conv := alice.Open("2", "chat")
	eventually(t, "history loaded", func() bool {
		_, ok := find(conv.Snapshot(), "lunch?")
		return ok
	})

	conv.SelectReply(first)
	conv.Compose("sure")
	conv.Send()
	eventually(t, "reply acked", func() bool {
		m, ok := find(conv.Snapshot(), "sure")
		return ok && m.ServerID != ""
	})

	m, _ := find(conv.Snapshot(), "sure")
	if m.ReplyTo == nil || m.ReplyTo.TargetID != first || m.ReplyTo.SenderLabel != "bob" {
		t.Fatalf("reply quote missing: %+v", m.ReplyTo)
	}
	stored := srv.Messages()
	if got := stored[len(stored)-1].ReplyToMessageID.String(); got != first {
		t.Fatalf("server stored reply id %q, want %q", got, first)
	}
	// Opening a conversation reads its last incoming message.
	eventually(t, "read receipt sent", func() bool { return len(srv.Received(proto.TypeMessageRead)) == 1 })
}

func TestSendFailsThenResend(t *testing.T) {
	srv, cfg := startBackend(t)
	cfg.MaxRetries = 0
	alice := startApp(t, srv, cfg, "1", "alice")

	conv := alice.Open("2", "chat")
	eventually(t, "history loaded", func() bool { return conv.Snapshot().Version >= 2 })

	srv.FailNext("/api/send-message", 200)
	conv.Compose("retry me")
	conv.Send()
	eventually(t, "send failed", func() bool {
		m, ok := find(conv.Snapshot(), "retry me")
		return ok && m.Status == core.StatusFailed
	})

	m, _ := find(conv.Snapshot(), "retry me")
	conv.Resend(m.LocalID)
	eventually(t, "resend acked", func() bool {
		got, ok := find(conv.Snapshot(), "retry me")
		return ok && got.Status >= core.StatusSent && got.Status != core.StatusFailed && got.LocalID == m.LocalID
	})
}

func TestLogoutPurgesCacheAndDisconnects(t *testing.T) {
	srv, cfg := startBackend(t)
	cfg.CachePath = ":memory:"
	alice := startApp(t, srv, cfg, "1", "alice")

	conv := alice.Open("2", "chat")
	eventually(t, "history loaded", func() bool { return conv.Snapshot().Version >= 2 })
	conv.Compose("cached")
	conv.Send()
	eventually(t, "cached message stored", func() bool {
		msgs, err := alice.cache.LoadMessages(context.Background(), "2")
		return err == nil && len(msgs) == 1 && msgs[0].ServerID != ""
	})

	if err := alice.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	eventually(t, "socket closed", func() bool { return !srv.Online("1") })
	msgs, err := alice.cache.LoadMessages(context.Background(), "2")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("cache not purged: %d messages", len(msgs))
	}
	if alice.hub.Active() != nil {
		t.Fatalf("conversation should be closed on logout")
	}

	// Intents after logout are inert.
	conv.Compose("ignored")
	conv.Send()
	time.Sleep(50 * time.Millisecond)
	if _, ok := find(conv.Snapshot(), "ignored"); ok {
		t.Fatalf("send after logout should be ignored")
	}
}
