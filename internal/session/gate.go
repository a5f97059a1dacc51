package session

import (
	"errors"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/xipher-messenger/chatcore/internal/auth"
	"github.com/xipher-messenger/chatcore/internal/core"
)

// ErrEmptyToken is returned by Login for a blank token.
var ErrEmptyToken = errors.New("empty session token")

// Gate holds the current session. Every outbound operation asks it for a
// token first; with no valid token the engine stays inert.
type Gate struct {
	clock clock.Clock
	log   *zerolog.Logger

	mu       sync.RWMutex
	token    string
	userID   string
	username string
	claims   *auth.Claims
	subs     []chan string
}

// NewGate returns a gate with no session.
func NewGate(clk clock.Clock, logger *zerolog.Logger) *Gate {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Gate{clock: clk, log: logger}
}

// Login installs a session. userID and username may be left empty when the
// token is a JWT that carries them. Opaque tokens are accepted as-is.
func (g *Gate) Login(token, userID, username string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	claims, err := auth.Inspect(token)
	if err != nil {
		claims = nil
		g.log.Debug().Msg("session token is opaque; no expiry known")
	}
	if claims != nil {
		if userID == "" {
			userID = claims.User()
		}
		if username == "" {
			username = claims.DisplayName()
		}
	}
	if username == "" {
		username = userID
	}

	g.mu.Lock()
	changed := g.token != token
	g.token = token
	g.userID = userID
	g.username = username
	g.claims = claims
	subs := g.subs
	g.mu.Unlock()

	if changed {
		notify(subs, token)
	}
	g.log.Info().Str("user_id", userID).Msg("session started")
	return nil
}

// Logout drops the session.
func (g *Gate) Logout() {
	g.mu.Lock()
	had := g.token != ""
	g.token = ""
	g.userID = ""
	g.username = ""
	g.claims = nil
	subs := g.subs
	g.mu.Unlock()

	if had {
		notify(subs, "")
		g.log.Info().Msg("session ended")
	}
}

// Token returns the current token if it is present and unexpired.
func (g *Gate) Token() (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.token == "" {
		return "", core.ErrUnauthenticated
	}
	if g.expiredLocked() {
		return "", core.ErrUnauthenticated
	}
	return g.token, nil
}

// Valid reports whether a usable token is present.
func (g *Gate) Valid() bool {
	_, err := g.Token()
	return err == nil
}

// UserID returns the signed-in user's id.
func (g *Gate) UserID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.userID
}

// Username returns the signed-in user's display name.
func (g *Gate) Username() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.username
}

// Changes returns a channel that receives the new token on every login or
// token change and "" on logout. Only the latest value is kept.
func (g *Gate) Changes() <-chan string {
	ch := make(chan string, 1)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subs = append(g.subs, ch)
	if g.token != "" {
		ch <- g.token
	}
	return ch
}

func (g *Gate) expiredLocked() bool {
	if g.claims == nil {
		return false
	}
	exp := g.claims.Expiry()
	return !exp.IsZero() && !g.clock.Now().Before(exp)
}

func notify(subs []chan string, token string) {
	for _, ch := range subs {
		offer(ch, token)
	}
}

func offer(ch chan string, v string) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

var _ core.Gate = (*Gate)(nil)
