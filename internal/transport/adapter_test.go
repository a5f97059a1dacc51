package transport

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xipher-messenger/chatcore/internal/core"
	"github.com/xipher-messenger/chatcore/internal/proto"
	"github.com/xipher-messenger/chatcore/internal/session"
	"github.com/xipher-messenger/chatcore/internal/testserver"
	transporthttp "github.com/xipher-messenger/chatcore/internal/transport/http"
	"github.com/xipher-messenger/chatcore/internal/transport/ws"
)

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestAdapter(t *testing.T) (*Adapter, *session.Gate, *testserver.Server) {
	t.Helper()
	srv := testserver.New(testserver.Options{}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	gate := session.NewGate(nil, nil)
	rest := transporthttp.NewClient(transporthttp.Options{BaseURL: ts.URL}, gate, nil, nil)
	rt := ws.NewClient(ws.Options{
		URL:           strings.Replace(ts.URL, "http", "ws", 1) + "/ws",
		ReconnectBase: 10 * time.Millisecond,
		ReconnectMax:  50 * time.Millisecond,
	}, nil, nil)
	a := NewAdapter(rest, rt, gate, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return a, gate, srv
}

func TestAdapterFollowsSession(t *testing.T) {
	a, gate, srv := newTestAdapter(t)

	token, err := srv.Token("1", "alice")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if err := gate.Login(token, "", ""); err != nil {
		t.Fatalf("login: %v", err)
	}
	eventually(t, "socket online", func() bool { return srv.Online("1") })

	gate.Logout()
	eventually(t, "socket closed", func() bool { return !srv.Online("1") })
	eventually(t, "client disconnected", func() bool { return a.ws.State() == ws.StateDisconnected })
}

func TestAdapterSignals(t *testing.T) {
	a, gate, srv := newTestAdapter(t)
	ctx := context.Background()

	if err := a.SendTyping(ctx, "2", "chat", true); err == nil {
		t.Fatalf("expected error without a session")
	}

	token, _ := srv.Token("1", "alice")
	_ = gate.Login(token, "", "")

	if err := a.SendTyping(ctx, "2", "chat", true); err != nil {
		t.Fatalf("send typing: %v", err)
	}
	if err := a.SendTyping(ctx, "2", "chat", false); err != nil {
		t.Fatalf("send typing: %v", err)
	}
	if err := a.SendReceipt(ctx, core.ReceiptRead, "42"); err != nil {
		t.Fatalf("send receipt: %v", err)
	}

	eventually(t, "typing frames", func() bool { return len(srv.Received(proto.TypeTyping)) == 2 })
	typing := srv.Received(proto.TypeTyping)
	if typing[0].Body["is_typing"] != "1" || typing[1].Body["is_typing"] != "0" {
		t.Fatalf("unexpected typing flags: %v / %v", typing[0].Body, typing[1].Body)
	}
	if typing[0].Body["chat_id"] != "2" || typing[0].Body["token"] != token {
		t.Fatalf("typing frame missing fields: %v", typing[0].Body)
	}
	eventually(t, "read receipt", func() bool { return len(srv.Received(proto.TypeMessageRead)) == 1 })
	if got := srv.Received(proto.TypeMessageRead)[0].Body["message_id"]; got != "42" {
		t.Fatalf("unexpected receipt id %v", got)
	}
}

func TestAdapterRESTUsesSession(t *testing.T) {
	a, gate, srv := newTestAdapter(t)
	token, _ := srv.Token("1", "alice")
	_ = gate.Login(token, "", "")

	ack, err := a.SendMessage(context.Background(), core.SendRequest{
		ConversationID:   "2",
		Content:          "hi",
		Kind:             core.KindText,
		CorrelationToken: "tmp-1",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if ack.ServerID == "" || ack.Content != "hi" {
		t.Fatalf("unexpected ack: %+v", ack)
	}
	if got := srv.Messages()[0].TempID; got != "tmp-1" {
		t.Fatalf("server stored temp_id %q", got)
	}
}
