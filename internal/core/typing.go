package core

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Default typing timings, in line with the mobile and desktop clients.
const (
	DefaultTypingCooldown       = 2 * time.Second
	DefaultTypingQuiet          = 1500 * time.Millisecond
	DefaultTypingDisplayTimeout = 4500 * time.Millisecond
)

// TypingSender broadcasts the local user's typing state.
type TypingSender interface {
	SendTyping(ctx context.Context, conversationID, chatType string, isTyping bool) error
}

// TypingCoordinator throttles outgoing typing=true signals to one per
// cooldown window and sends typing=false once input goes quiet or is
// cleared. It is safe for concurrent use.
type TypingCoordinator struct {
	mu sync.Mutex

	conversationID string
	chatType       string
	sender         TypingSender
	clock          clock.Clock
	limiter        *rate.Limiter
	quiet          time.Duration
	logger         *zerolog.Logger

	active bool
	timer  *clock.Timer
	gen    uint64
	closed bool
}

// NewTypingCoordinator binds a coordinator to one conversation.
func NewTypingCoordinator(conversationID, chatType string, sender TypingSender, clk clock.Clock, cooldown, quiet time.Duration, logger *zerolog.Logger) *TypingCoordinator {
	if clk == nil {
		clk = clock.New()
	}
	if cooldown <= 0 {
		cooldown = DefaultTypingCooldown
	}
	if quiet <= 0 {
		quiet = DefaultTypingQuiet
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &TypingCoordinator{
		conversationID: conversationID,
		chatType:       chatType,
		sender:         sender,
		clock:          clk,
		limiter:        rate.NewLimiter(rate.Every(cooldown), 1),
		quiet:          quiet,
		logger:         logger,
	}
}

// OnInput is called on every composer change.
func (t *TypingCoordinator) OnInput(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if strings.TrimSpace(text) == "" {
		t.stopLocked()
		return
	}

	if t.limiter.AllowN(t.clock.Now(), 1) {
		t.send(true)
		t.active = true
	}

	t.gen++
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = t.clock.AfterFunc(t.quiet, func() { t.onQuiet(gen) })
}

// Stop is called when the message is sent or the composer is cleared.
func (t *TypingCoordinator) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.stopLocked()
}

// Close cancels any pending broadcast without sending it. Used when the
// user leaves the conversation.
func (t *TypingCoordinator) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *TypingCoordinator) stopLocked() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.active {
		t.send(false)
		t.active = false
	}
}

func (t *TypingCoordinator) onQuiet(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || gen != t.gen {
		return
	}
	t.timer = nil
	if t.active {
		t.send(false)
		t.active = false
	}
}

// send must not block: signalers enqueue and return.
func (t *TypingCoordinator) send(isTyping bool) {
	if t.sender == nil {
		return
	}
	if err := t.sender.SendTyping(context.Background(), t.conversationID, t.chatType, isTyping); err != nil {
		t.logger.Debug().Err(err).Str("conversation", t.conversationID).Bool("typing", isTyping).Msg("typing signal not sent")
	}
}
