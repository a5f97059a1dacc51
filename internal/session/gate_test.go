package session

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/xipher-messenger/chatcore/internal/auth"
	"github.com/xipher-messenger/chatcore/internal/core"
)

func TestGateLoginWithJWT(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Now())
	g := NewGate(clk, nil)

	token, err := auth.GenerateToken(&auth.JWTConfig{Secret: []byte("s"), TTL: time.Hour}, "42", "alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := g.Login(token, "", ""); err != nil {
		t.Fatalf("login: %v", err)
	}
	if g.UserID() != "42" || g.Username() != "alice" || !g.Valid() {
		t.Fatalf("unexpected session: id=%q name=%q valid=%v", g.UserID(), g.Username(), g.Valid())
	}

	clk.Add(2 * time.Hour)
	if g.Valid() {
		t.Fatalf("expired token should not be valid")
	}
	if _, err := g.Token(); !errors.Is(err, core.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestGateOpaqueTokenAndLogout(t *testing.T) {
	g := NewGate(nil, nil)

	if err := g.Login("  ", "1", "a"); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
	if err := g.Login("opaque-token", "1", ""); err != nil {
		t.Fatalf("login: %v", err)
	}
	if tok, err := g.Token(); err != nil || tok != "opaque-token" {
		t.Fatalf("token = %q, %v", tok, err)
	}
	if g.Username() != "1" {
		t.Fatalf("username should fall back to user id, got %q", g.Username())
	}

	g.Logout()
	if g.Valid() || g.UserID() != "" {
		t.Fatalf("logout left a session behind")
	}
}

func TestGateChangesKeepsLatest(t *testing.T) {
	g := NewGate(nil, nil)
	_ = g.Login("first", "1", "a")

	ch := g.Changes()
	if got := <-ch; got != "first" {
		t.Fatalf("initial token = %q", got)
	}

	_ = g.Login("second", "1", "a")
	_ = g.Login("third", "1", "a")
	if got := <-ch; got != "third" {
		t.Fatalf("expected latest token, got %q", got)
	}

	_ = g.Login("third", "1", "a")
	g.Logout()
	select {
	case got := <-ch:
		if got != "" {
			t.Fatalf("expected logout notification, got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("no logout notification")
	}
}
